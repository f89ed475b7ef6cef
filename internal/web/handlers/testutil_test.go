package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facegate/internal/auth"
	"github.com/kozaktomas/facegate/internal/blob"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/database/memory"
	"github.com/kozaktomas/facegate/internal/enrollment"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/files"
	"github.com/kozaktomas/facegate/internal/session"
	"github.com/kozaktomas/facegate/internal/web/middleware"
)

// testDim keeps descriptors small in handler tests.
const testDim = 4

// testEnv wires the handlers over in-memory stores.
type testEnv struct {
	store    *memory.Store
	blobs    *blob.MemoryStore
	sessions *session.Manager
	gateway  *auth.Gateway
	cookies  *middleware.Cookies
	auth     *AuthHandler
	profile  *ProfileHandler
	files    *FilesHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	blobs := blob.NewMemoryStore()
	validator := facematch.NewValidator(testDim)
	sessions := session.NewManager(store, session.DefaultTTL)
	matcher := facematch.NewLinearMatcher(store, facematch.NewScorer(0.6, false), validator)
	gw := auth.NewGateway(sessions, store, matcher, nil)
	cookies := middleware.NewCookies("test-secret", session.DefaultTTL, false)
	coordinator := enrollment.NewCoordinator(store, sessions, validator, enrollment.DefaultSteps)

	return &testEnv{
		store:    store,
		blobs:    blobs,
		sessions: sessions,
		gateway:  gw,
		cookies:  cookies,
		auth:     NewAuthHandler(coordinator, gw, validator, cookies),
		profile:  NewProfileHandler(store),
		files:    NewFilesHandler(files.NewService(store, blobs)),
	}
}

// enrolledIdentity creates an identity with one descriptor and a live session for it.
func (e *testEnv) enrolledIdentity(t *testing.T, id string, descriptor []float32) *database.Session {
	t.Helper()
	ctx := context.Background()
	if err := e.store.CreateIdentity(ctx, &database.Identity{
		ID:          id,
		DisplayName: "User " + id,
		Descriptors: [][]float32{descriptor},
	}); err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}
	s, err := e.sessions.Create(ctx, id)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s
}

// sessionCookie returns the signed cookie a client holding sessionID would send.
func (e *testEnv) sessionCookie(sessionID string) *http.Cookie {
	w := httptest.NewRecorder()
	e.cookies.Set(w, sessionID)
	return w.Result().Cookies()[0]
}

// requestAs creates a request with the identity in context, as RequireAuth would.
func requestAs(t *testing.T, method, path string, body *bytes.Buffer, identity *database.Identity) *http.Request {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	return req.WithContext(middleware.SetIdentityInContext(req.Context(), identity))
}

// jsonBody encodes v as a request body.
func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	return &buf
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// responseCookie returns the session cookie set on the response, or nil.
func responseCookie(recorder *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range recorder.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
