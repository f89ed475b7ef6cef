package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/facegate/internal/auth"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/database/memory"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/session"
)

func setupAuth(t *testing.T) (*auth.Gateway, *Cookies, *memory.Store, *session.Manager) {
	t.Helper()
	store := memory.New()
	sessions := session.NewManager(store, time.Hour)
	matcher := facematch.NewLinearMatcher(store, facematch.NewScorer(0.6, false), facematch.NewValidator(2))
	gw := auth.NewGateway(sessions, store, matcher, nil)
	return gw, NewCookies("test-secret", time.Hour, false), store, sessions
}

func TestRequireAuth(t *testing.T) {
	gw, cookies, store, sessions := setupAuth(t)
	ctx := context.Background()

	_ = store.CreateIdentity(ctx, &database.Identity{ID: "alice", DisplayName: "Alice", Descriptors: [][]float32{{0, 0}}})
	s, _ := sessions.Create(ctx, "alice")
	dangling, _ := sessions.Create(ctx, "ghost")

	handlerCalled := false
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		identity := IdentityFromContext(r.Context())
		if identity == nil || identity.ID != "alice" {
			t.Errorf("identity in context = %+v, want alice", identity)
		}
		w.WriteHeader(http.StatusOK)
	})
	protectedHandler := RequireAuth(gw, cookies)(testHandler)

	signed := httptest.NewRecorder()
	cookies.Set(signed, s.ID)
	sessionCookie := signed.Result().Cookies()[0]

	tests := []struct {
		name       string
		prepare    func(r *http.Request)
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "signed cookie",
			prepare:    func(r *http.Request) { r.AddCookie(sessionCookie) },
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "bearer token",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+s.ID) },
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "no session",
			prepare:    func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "forged cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: s.ID + ".forged"})
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "dangling session",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+dangling.ID) },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled = false
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/protected", nil)
			tt.prepare(req)

			protectedHandler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if handlerCalled != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", handlerCalled, tt.wantCalled)
			}
		})
	}
}

func TestRequireAuth_BackendError(t *testing.T) {
	gw, cookies, store, sessions := setupAuth(t)
	ctx := context.Background()

	_ = store.CreateIdentity(ctx, &database.Identity{ID: "alice", Descriptors: [][]float32{{0, 0}}})
	s, _ := sessions.Create(ctx, "alice")
	store.GetIdentityError = errors.New("connection refused")

	handler := RequireAuth(gw, cookies)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called on backend error")
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+s.ID)
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestIdentityFromContext(t *testing.T) {
	identity := &database.Identity{ID: "test123"}
	ctx := SetIdentityInContext(context.Background(), identity)

	retrieved := IdentityFromContext(ctx)
	if retrieved == nil {
		t.Fatal("IdentityFromContext() returned nil")
		return
	}
	if retrieved.ID != "test123" {
		t.Errorf("Identity ID = %s, want test123", retrieved.ID)
	}

	if notFound := IdentityFromContext(context.Background()); notFound != nil {
		t.Error("IdentityFromContext() should return nil for empty context")
	}
}
