package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func findCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatal("Session cookie not found")
	return nil
}

func TestCookies_SetAndRead(t *testing.T) {
	c := NewCookies("test-secret", 24*time.Hour, true)

	w := httptest.NewRecorder()
	c.Set(w, "abc123")
	cookie := findCookie(t, w)

	if !strings.HasPrefix(cookie.Value, "abc123.") {
		t.Errorf("Value = %q, want abc123.<signature>", cookie.Value)
	}
	if cookie.MaxAge != 86400 {
		t.Errorf("MaxAge = %d, want 86400", cookie.MaxAge)
	}
	if cookie.Path != "/" {
		t.Errorf("Path = %q, want /", cookie.Path)
	}
	if !cookie.HttpOnly {
		t.Error("HttpOnly = false, want true")
	}
	if !cookie.Secure {
		t.Error("Secure = false, want true")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", cookie.SameSite)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)
	if got := c.TokenFromRequest(req); got != "abc123" {
		t.Errorf("TokenFromRequest() = %q, want abc123", got)
	}
}

func TestCookies_TokenFromRequest(t *testing.T) {
	c := NewCookies("test-secret", time.Hour, false)
	other := NewCookies("other-secret", time.Hour, false)

	w := httptest.NewRecorder()
	other.Set(w, "abc123")
	foreign := findCookie(t, w)

	tests := []struct {
		name   string
		cookie *http.Cookie
		header string
		want   string
	}{
		{name: "nothing", want: ""},
		{name: "unsigned cookie", cookie: &http.Cookie{Name: SessionCookieName, Value: "abc123"}, want: ""},
		{name: "invalid signature", cookie: &http.Cookie{Name: SessionCookieName, Value: "abc123.invalid"}, want: ""},
		{name: "signed with other secret", cookie: foreign, want: ""},
		{name: "bearer header", header: "Bearer xyz", want: "xyz"},
		{name: "basic header ignored", header: "Basic xyz", want: ""},
		{name: "bad cookie falls back to header", cookie: &http.Cookie{Name: SessionCookieName, Value: "a.b"}, header: "Bearer xyz", want: "xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := c.TokenFromRequest(req); got != tt.want {
				t.Errorf("TokenFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCookies_Clear(t *testing.T) {
	c := NewCookies("", time.Hour, false)

	w := httptest.NewRecorder()
	c.Clear(w)
	cookie := findCookie(t, w)

	if cookie.MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1 (expired)", cookie.MaxAge)
	}
	if cookie.Value != "" {
		t.Errorf("Value = %q, want empty", cookie.Value)
	}
}
