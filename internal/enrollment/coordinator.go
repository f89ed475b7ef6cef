// Package enrollment accumulates the reference descriptors of a new identity
// across a fixed number of capture steps.
package enrollment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/profile"
	"github.com/kozaktomas/facegate/internal/session"
	"github.com/rs/zerolog/log"
)

// DefaultSteps is the number of descriptors captured per enrollment.
const DefaultSteps = 5

// Enrollment errors.
var (
	ErrInvalidProgress = errors.New("invalid progress")
	ErrNoActiveSession = errors.New("no active enrollment session")
	ErrInvalidSession  = errors.New("invalid enrollment session")
)

// Indexer receives descriptors once they are stored.
type Indexer interface {
	IndexDescriptor(identityID string, d facematch.Descriptor)
}

// Submission is one capture step.
type Submission struct {
	Progress   int
	Descriptor facematch.Descriptor
	SessionID  string // required for steps after the first
}

// Result is returned for every accepted step.
type Result struct {
	IdentityID string
	SessionID  string
	Completed  bool
	Progress   int
}

// Coordinator drives the enrollment steps.
// Step 1 creates the identity and its session; steps 2..N append to the
// identity owning the session. Step order is the caller's responsibility.
type Coordinator struct {
	identities database.IdentityWriter
	sessions   *session.Manager
	validator  facematch.Validator
	steps      int
	indexer    Indexer
	metrics    *metrics.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithIndexer feeds stored descriptors to an index.
func WithIndexer(indexer Indexer) Option {
	return func(c *Coordinator) { c.indexer = indexer }
}

// WithMetrics records enrollment step counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a Coordinator. A non-positive steps selects DefaultSteps.
func NewCoordinator(identities database.IdentityWriter, sessions *session.Manager, validator facematch.Validator, steps int, opts ...Option) *Coordinator {
	if steps <= 0 {
		steps = DefaultSteps
	}
	c := &Coordinator{
		identities: identities,
		sessions:   sessions,
		validator:  validator,
		steps:      steps,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Steps returns the number of enrollment steps.
func (c *Coordinator) Steps() int {
	return c.steps
}

// Submit processes one enrollment step. Validation and session errors leave the store untouched.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if sub.Progress < 1 || sub.Progress > c.steps {
		c.metrics.EnrollmentStep(metrics.ResultInvalid)
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidProgress, sub.Progress, c.steps)
	}

	var (
		res *Result
		err error
	)
	if sub.Progress == 1 {
		res, err = c.begin(ctx, sub)
	} else {
		res, err = c.append(ctx, sub)
	}

	switch {
	case err == nil && res.Completed:
		c.metrics.EnrollmentStep(metrics.ResultComplete)
	case err == nil:
		c.metrics.EnrollmentStep(metrics.ResultOK)
	case facematch.IsValidationError(err):
		c.metrics.EnrollmentStep(metrics.ResultInvalid)
	case errors.Is(err, ErrNoActiveSession), errors.Is(err, ErrInvalidSession):
		c.metrics.EnrollmentStep(metrics.ResultNoAuth)
	default:
		c.metrics.EnrollmentStep(metrics.ResultError)
	}
	return res, err
}

func (c *Coordinator) begin(ctx context.Context, sub Submission) (*Result, error) {
	if err := c.validator.Check(sub.Descriptor); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	identity := &database.Identity{
		ID:          id,
		DisplayName: profile.DefaultDisplayName(id),
		Descriptors: [][]float32{sub.Descriptor},
	}
	if err := c.identities.CreateIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	s, err := c.sessions.Create(ctx, id)
	if err != nil {
		// Without a session nobody can continue this enrollment.
		if delErr := c.identities.DeleteIdentity(ctx, id); delErr != nil {
			log.Error().Err(delErr).Str("identity_id", id).Msg("failed to remove identity after session error")
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	c.index(id, sub.Descriptor)
	log.Info().Str("identity_id", id).Int("progress", 1).Int("steps", c.steps).Msg("enrollment started")

	return &Result{
		IdentityID: id,
		SessionID:  s.ID,
		Completed:  c.steps == 1,
		Progress:   1,
	}, nil
}

func (c *Coordinator) append(ctx context.Context, sub Submission) (*Result, error) {
	if sub.SessionID == "" {
		return nil, ErrNoActiveSession
	}

	s, err := c.sessions.Resolve(ctx, sub.SessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if s == nil {
		return nil, ErrInvalidSession
	}

	if err := c.validator.Check(sub.Descriptor); err != nil {
		return nil, err
	}

	if err := c.identities.AppendDescriptor(ctx, s.IdentityID, sub.Descriptor); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("append descriptor: %w", err)
	}

	c.index(s.IdentityID, sub.Descriptor)

	completed := sub.Progress == c.steps
	log.Info().
		Str("identity_id", s.IdentityID).
		Int("progress", sub.Progress).
		Bool("completed", completed).
		Msg("enrollment step stored")

	return &Result{
		IdentityID: s.IdentityID,
		SessionID:  s.ID,
		Completed:  completed,
		Progress:   sub.Progress,
	}, nil
}

func (c *Coordinator) index(identityID string, d facematch.Descriptor) {
	if c.indexer != nil {
		c.indexer.IndexDescriptor(identityID, d)
	}
}
