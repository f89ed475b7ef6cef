package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/facegate/internal/auth"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/rs/zerolog/hlog"
)

type contextKey string

const identityContextKey contextKey = "identity"

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// RequireAuth is middleware that requires a session resolving to a live identity.
func RequireAuth(gw *auth.Gateway, cookies *Cookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := gw.CurrentIdentity(r.Context(), cookies.TokenFromRequest(r))
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("resolve current identity")
				writeError(w, http.StatusInternalServerError, "authentication check failed")
				return
			}
			if identity == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(SetIdentityInContext(r.Context(), identity)))
		})
	}
}

// IdentityFromContext retrieves the authenticated identity from the request context.
func IdentityFromContext(ctx context.Context) *database.Identity {
	identity, ok := ctx.Value(identityContextKey).(*database.Identity)
	if !ok {
		return nil
	}
	return identity
}

// SetIdentityInContext adds an identity to the context.
// This is primarily for testing - use RequireAuth middleware in production.
func SetIdentityInContext(ctx context.Context, identity *database.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
