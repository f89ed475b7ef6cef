package handlers

import (
	"net/http"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/profile"
	"github.com/kozaktomas/facegate/internal/web/middleware"
	"github.com/rs/zerolog/hlog"
)

// ProfileHandler handles profile endpoints. Routes sit behind RequireAuth.
type ProfileHandler struct {
	identities database.IdentityWriter
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(identities database.IdentityWriter) *ProfileHandler {
	return &ProfileHandler{identities: identities}
}

type updateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	Name        *string `json:"name"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	Bio         string  `json:"bio"`
}

func (u updateProfileRequest) displayName() string {
	switch {
	case u.DisplayName != nil:
		return *u.DisplayName
	case u.Name != nil:
		return *u.Name
	default:
		return ""
	}
}

// Get returns the caller's profile.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, newProfileResponse(identity))
}

// Update replaces the caller's profile fields. Omitted optional fields are cleared.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	p, err := profile.Normalize(database.Profile{
		DisplayName: req.displayName(),
		Email:       req.Email,
		Phone:       req.Phone,
		Bio:         req.Bio,
	})
	if err != nil {
		respondDomainError(w, r, err, "update profile")
		return
	}

	updated, err := h.identities.UpdateProfile(r.Context(), identity.ID, p)
	if err != nil {
		respondDomainError(w, r, err, "update profile")
		return
	}

	hlog.FromRequest(r).Info().Str("identity_id", identity.ID).Msg("profile updated")
	respondJSON(w, http.StatusOK, newProfileResponse(updated))
}
