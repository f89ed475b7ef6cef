// Package auth resolves the identity behind a request and performs face login.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/session"
	"github.com/rs/zerolog/log"
)

// ErrNoMatch is returned by Login when no enrolled identity is close enough.
var ErrNoMatch = errors.New("face not recognized")

// Gateway is the single place that answers "who is making this request".
type Gateway struct {
	sessions   *session.Manager
	identities database.IdentityReader
	matcher    facematch.Matcher
	metrics    *metrics.Metrics
}

// NewGateway creates a Gateway. m may be nil.
func NewGateway(sessions *session.Manager, identities database.IdentityReader, matcher facematch.Matcher, m *metrics.Metrics) *Gateway {
	return &Gateway{
		sessions:   sessions,
		identities: identities,
		matcher:    matcher,
		metrics:    m,
	}
}

// CurrentIdentity returns the identity owning the session token, or nil when
// the token is empty, unknown, expired, or points at a deleted identity.
// Only backend failures are returned as errors.
func (g *Gateway) CurrentIdentity(ctx context.Context, token string) (*database.Identity, error) {
	if token == "" {
		return nil, nil
	}

	s, err := g.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}

	identity, err := g.identities.GetIdentity(ctx, s.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if identity == nil {
		log.Debug().Str("identity_id", s.IdentityID).Msg("session points at a deleted identity")
		return nil, nil
	}
	return identity, nil
}

// Login matches the probe against all enrolled identities and opens a session
// for the best match. Returns ErrNoMatch when nobody clears the threshold.
func (g *Gateway) Login(ctx context.Context, probe facematch.Descriptor) (*database.Identity, *database.Session, error) {
	match, err := g.matcher.FindMatch(ctx, probe)
	if err != nil {
		g.metrics.LoginAttempt(metrics.ResultError)
		return nil, nil, fmt.Errorf("find match: %w", err)
	}
	if match == nil {
		g.metrics.LoginAttempt(metrics.ResultNoMatch)
		return nil, nil, ErrNoMatch
	}

	s, err := g.sessions.Create(ctx, match.Identity.ID)
	if err != nil {
		g.metrics.LoginAttempt(metrics.ResultError)
		return nil, nil, err
	}

	g.metrics.LoginAttempt(metrics.ResultOK)
	g.metrics.ObserveMatch(match.Distance)
	log.Info().Str("identity_id", match.Identity.ID).Float64("distance", match.Distance).Msg("face login")
	return match.Identity, s, nil
}

// Logout revokes the session token.
func (g *Gateway) Logout(ctx context.Context, token string) error {
	return g.sessions.Revoke(ctx, token)
}
