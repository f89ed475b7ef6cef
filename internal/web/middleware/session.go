package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "session"

const devSecret = "facegate-dev-secret-change-in-production"

// Cookies signs session tokens into cookies and reads them back.
type Cookies struct {
	secret []byte
	maxAge time.Duration
	secure bool
}

// NewCookies creates a cookie codec. maxAge should equal the session TTL.
func NewCookies(secret string, maxAge time.Duration, secure bool) *Cookies {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = devSecret
	}
	return &Cookies{
		secret: []byte(secret),
		maxAge: maxAge,
		secure: secure,
	}
}

// Set issues the session cookie.
func (c *Cookies) Set(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID + "." + c.sign(sessionID),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(c.maxAge.Seconds()),
	})
}

// Clear removes the session cookie from the client.
func (c *Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// TokenFromRequest returns the session token from a correctly signed cookie,
// falling back to an Authorization bearer header. Returns "" when neither is present.
func (c *Cookies) TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		sessionID, signature, ok := strings.Cut(cookie.Value, ".")
		if ok && sessionID != "" && c.verify(sessionID, signature) {
			return sessionID
		}
	}

	authHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func (c *Cookies) sign(data string) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func (c *Cookies) verify(data, signature string) bool {
	expected := c.sign(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}
