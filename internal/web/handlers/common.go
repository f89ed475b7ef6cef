// Package handlers implements the HTTP endpoints of the face login API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/enrollment"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/files"
	"github.com/kozaktomas/facegate/internal/profile"
	"github.com/rs/zerolog/hlog"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

const errUnauthorized = "unauthorized"

// maxJSONBody bounds JSON request bodies. A descriptor is a few kilobytes.
const maxJSONBody = 1 << 20

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
}

// errorStatus maps a domain error onto a status code and a client-facing message.
// Errors it does not recognise are internal and get a generic message.
func errorStatus(err error) (int, string) {
	var fieldErr *profile.FieldError
	switch {
	case facematch.IsValidationError(err):
		return http.StatusBadRequest, "Invalid face descriptor: " + err.Error()
	case errors.Is(err, enrollment.ErrInvalidProgress):
		return http.StatusBadRequest, "Invalid progress value"
	case errors.Is(err, enrollment.ErrNoActiveSession):
		return http.StatusBadRequest, "No active enrollment session"
	case errors.Is(err, enrollment.ErrInvalidSession):
		return http.StatusBadRequest, "Invalid enrollment session"
	case errors.Is(err, profile.ErrDisplayNameRequired):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, fieldErr.Error()
	case errors.Is(err, files.ErrEmpty):
		return http.StatusBadRequest, files.ErrEmpty.Error()
	case errors.Is(err, files.ErrUnsupportedType):
		return http.StatusBadRequest, files.ErrUnsupportedType.Error()
	case errors.Is(err, files.ErrNotImage):
		return http.StatusBadRequest, files.ErrNotImage.Error()
	case errors.Is(err, files.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, files.ErrTooLarge.Error()
	case errors.Is(err, files.ErrNotFound), errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, files.ErrForbidden):
		return http.StatusUnauthorized, errUnauthorized
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// respondDomainError logs internal failures and writes the mapped error.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error, action string) {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg(action)
	} else {
		hlog.FromRequest(r).Debug().Err(err).Int("status", status).Msg(action)
	}
	respondError(w, status, message)
}

// profileResponse is the public view of an identity. Descriptors never leave the server.
type profileResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Bio         string    `json:"bio"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newProfileResponse(identity *database.Identity) profileResponse {
	return profileResponse{
		ID:          identity.ID,
		DisplayName: identity.DisplayName,
		Name:        identity.DisplayName,
		Email:       identity.Email,
		Phone:       identity.Phone,
		Bio:         identity.Bio,
		CreatedAt:   identity.CreatedAt,
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
