package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kozaktomas/facegate/internal/auth"
	"github.com/kozaktomas/facegate/internal/enrollment"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/web/middleware"
	"github.com/rs/zerolog/hlog"
)

// AuthHandler handles enrollment, face login, session check and logout.
type AuthHandler struct {
	coordinator *enrollment.Coordinator
	gateway     *auth.Gateway
	validator   facematch.Validator
	cookies     *middleware.Cookies
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(coordinator *enrollment.Coordinator, gw *auth.Gateway, validator facematch.Validator, cookies *middleware.Cookies) *AuthHandler {
	return &AuthHandler{
		coordinator: coordinator,
		gateway:     gw,
		validator:   validator,
		cookies:     cookies,
	}
}

// descriptorRequest carries a descriptor under either of its accepted names.
type descriptorRequest struct {
	Vector         json.RawMessage `json:"vector"`
	FaceDescriptor json.RawMessage `json:"faceDescriptor"`
}

func (d descriptorRequest) raw() json.RawMessage {
	if len(d.Vector) > 0 {
		return d.Vector
	}
	return d.FaceDescriptor
}

type enrollRequest struct {
	descriptorRequest
	Progress *int `json:"progress"`
}

// EnrollResponse is returned for every accepted enrollment step.
type EnrollResponse struct {
	IdentityID string `json:"identityId"`
	SessionID  string `json:"sessionId"`
	Completed  bool   `json:"completed"`
	Progress   int    `json:"progress,omitempty"`
	Message    string `json:"message"`
}

// Enroll handles one enrollment step. The session cookie is (re)issued on every accepted step.
func (h *AuthHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	descriptor, err := h.validator.Parse(req.raw())
	if err != nil {
		respondDomainError(w, r, err, "enroll")
		return
	}
	if req.Progress == nil {
		respondDomainError(w, r, enrollment.ErrInvalidProgress, "enroll")
		return
	}

	res, err := h.coordinator.Submit(r.Context(), enrollment.Submission{
		Progress:   *req.Progress,
		Descriptor: descriptor,
		SessionID:  h.cookies.TokenFromRequest(r),
	})
	if err != nil {
		respondDomainError(w, r, err, "enroll")
		return
	}

	h.cookies.Set(w, res.SessionID)

	resp := EnrollResponse{
		IdentityID: res.IdentityID,
		SessionID:  res.SessionID,
		Completed:  res.Completed,
		Message:    "Enrollment completed successfully",
	}
	if !res.Completed {
		resp.Progress = res.Progress
		resp.Message = fmt.Sprintf("Enrollment progress: %d/%d", res.Progress, h.coordinator.Steps())
	}
	respondJSON(w, http.StatusOK, resp)
}

// FaceLoginResponse is returned on a successful face login.
type FaceLoginResponse struct {
	IdentityID string `json:"identityId"`
	Message    string `json:"message"`
}

// Face handles face login.
func (h *AuthHandler) Face(w http.ResponseWriter, r *http.Request) {
	var req descriptorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	probe, err := h.validator.Parse(req.raw())
	if err != nil {
		respondDomainError(w, r, err, "face login")
		return
	}

	identity, s, err := h.gateway.Login(r.Context(), probe)
	if errors.Is(err, auth.ErrNoMatch) {
		respondError(w, http.StatusUnauthorized, "Face not recognized. Please enroll first.")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("face login")
		respondError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}

	h.cookies.Set(w, s.ID)
	respondJSON(w, http.StatusOK, FaceLoginResponse{
		IdentityID: identity.ID,
		Message:    "Authentication successful",
	})
}

// Check returns the public profile of the caller.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	identity, err := h.gateway.CurrentIdentity(r.Context(), h.cookies.TokenFromRequest(r))
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("auth check")
		respondError(w, http.StatusInternalServerError, "Authentication check failed")
		return
	}
	if identity == nil {
		respondError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"user": newProfileResponse(identity)})
}

// Logout revokes the session and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.cookies.TokenFromRequest(r); token != "" {
		if err := h.gateway.Logout(r.Context(), token); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("logout")
			respondError(w, http.StatusInternalServerError, "Logout failed")
			return
		}
	}

	h.cookies.Clear(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
