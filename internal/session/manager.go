// Package session issues and validates login sessions bound to an identity.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is the lifetime of a session. It is not renewed on use.
const DefaultTTL = 24 * time.Hour

// Manager creates, resolves and revokes sessions. Expired sessions are
// removed when read; the optional sweeper only bounds storage growth.
type Manager struct {
	store   database.SessionStore
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics records session counters.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a session manager. A non-positive ttl selects DefaultTTL.
func NewManager(store database.SessionStore, ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func newSessionID() (string, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(idBytes), nil
}

// Create issues a fresh session for identityID expiring after the TTL.
func (m *Manager) Create(ctx context.Context, identityID string) (*database.Session, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	now := m.now()
	s := &database.Session{
		ID:         sessionID,
		IdentityID: identityID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.store.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	m.metrics.SessionCreated()
	log.Debug().Str("identity_id", identityID).Time("expires_at", s.ExpiresAt).Msg("session created")
	return s, nil
}

// Resolve returns the live session for sessionID, or nil if it does not exist
// or has expired. An expired session is deleted before returning.
func (m *Manager) Resolve(ctx context.Context, sessionID string) (*database.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return nil, nil
	}

	if s.Expired(m.now()) {
		if err := m.store.DeleteSession(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("delete expired session: %w", err)
		}
		m.metrics.SessionsExpiredAdd(1)
		log.Debug().Str("identity_id", s.IdentityID).Msg("expired session removed on read")
		return nil, nil
	}
	return s, nil
}

// Revoke deletes a session. Revoking an unknown session is not an error.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	m.metrics.SessionRevoked()
	return nil
}

// Sweep deletes every session that has expired and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpiredSessions(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	m.metrics.SessionsExpiredAdd(n)
	return n, nil
}

// StartSweeper runs Sweep every interval until ctx is done or Stop is called.
// A non-positive interval disables the sweeper.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				n, err := m.Sweep(ctx)
				if err != nil {
					log.Error().Err(err).Msg("session sweep failed")
					continue
				}
				if n > 0 {
					log.Info().Int64("removed", n).Msg("expired sessions swept")
				}
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit. Safe to call if it never started.
func (m *Manager) Stop() {
	if m.stop == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}
