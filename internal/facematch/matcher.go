package facematch

import (
	"context"
	"fmt"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/rs/zerolog/log"
)

// Match is the best identity found for a probe descriptor.
type Match struct {
	Identity   *database.Identity
	Distance   float64
	Descriptor int // position of the closest stored descriptor
}

// Matcher finds the enrolled identity closest to a probe descriptor.
// A nil Match with a nil error means no identity cleared the threshold.
type Matcher interface {
	FindMatch(ctx context.Context, probe Descriptor) (*Match, error)
}

// IdentityLister enumerates all identities with their descriptors.
type IdentityLister interface {
	ListIdentities(ctx context.Context) ([]database.Identity, error)
}

// LinearMatcher compares the probe with every stored descriptor of every identity.
type LinearMatcher struct {
	identities IdentityLister
	scorer     Scorer
	validator  Validator
}

// NewLinearMatcher creates an exhaustive matcher.
func NewLinearMatcher(identities IdentityLister, scorer Scorer, validator Validator) *LinearMatcher {
	return &LinearMatcher{
		identities: identities,
		scorer:     scorer,
		validator:  validator,
	}
}

// FindMatch returns the identity owning the globally closest descriptor,
// provided that distance is below the threshold. Invalid probes match nothing.
func (m *LinearMatcher) FindMatch(ctx context.Context, probe Descriptor) (*Match, error) {
	if err := m.validator.Check(probe); err != nil {
		log.Debug().Err(err).Msg("rejecting invalid probe descriptor")
		return nil, nil
	}

	identities, err := m.identities.ListIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	return bestMatch(m.scorer, probe, identities), nil
}

// bestMatch scans identities in order. On equal distances the first evaluated
// pairing wins, so the result depends on enumeration order for exact ties.
func bestMatch(scorer Scorer, probe Descriptor, identities []database.Identity) *Match {
	prepared := scorer.Prepare(probe)

	var best *Match
	skipped := 0
	for i := range identities {
		for j, stored := range identities[i].Descriptors {
			d, err := EuclideanDistance(prepared, scorer.Prepare(stored))
			if err != nil {
				skipped++
				continue
			}
			if best == nil || d < best.Distance {
				best = &Match{Identity: &identities[i], Distance: d, Descriptor: j}
			}
		}
	}

	if skipped > 0 {
		log.Debug().Int("skipped", skipped).Msg("skipped descriptors with mismatched length")
	}
	if best == nil {
		return nil
	}

	log.Debug().
		Str("identity_id", best.Identity.ID).
		Float64("distance", best.Distance).
		Float64("threshold", scorer.Threshold).
		Msg("closest descriptor")

	if !scorer.Accepts(best.Distance) {
		return nil
	}
	return best
}
