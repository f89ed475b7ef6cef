package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/kozaktomas/facegate/internal/web/handlers"
	"github.com/kozaktomas/facegate/internal/web/middleware"
)

// authRateLimit limits the unauthenticated endpoints that create identities and sessions.
func (s *Server) authRateLimit() func(http.Handler) http.Handler {
	if s.config.Web.RateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.config.Web.RateLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}`))
		}),
	)
}

func (s *Server) setupRoutes() {
	svc := s.services

	authHandler := handlers.NewAuthHandler(svc.Coordinator, svc.Gateway, svc.Validator, s.cookies)
	profileHandler := handlers.NewProfileHandler(svc.Identities)
	filesHandler := handlers.NewFilesHandler(svc.Files)

	s.router.Method(http.MethodGet, "/metrics", svc.Metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		limited := r.With(s.authRateLimit())
		limited.Post("/auth/enroll", authHandler.Enroll)
		limited.Post("/auth/face", authHandler.Face)

		r.Get("/auth/check", authHandler.Check)
		r.Post("/auth/logout", authHandler.Logout)

		// Everything below acts on behalf of the caller's identity
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(svc.Gateway, s.cookies))

			r.Get("/profile", profileHandler.Get)
			r.Put("/profile", profileHandler.Update)

			r.Get("/files", filesHandler.List)
			r.Post("/files", filesHandler.Upload)
			r.Get("/files/{id}", filesHandler.Download)
			r.Delete("/files/{id}", filesHandler.Delete)
			r.Get("/files/{id}/thumb", filesHandler.Thumbnail)
		})
	})
}
