package facematch

import (
	"context"
	"fmt"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/rs/zerolog/log"
)

// IndexedMatcher narrows candidates with an HNSW index and re-scores them exactly.
// It falls back to a linear scan while the index is empty and for probes whose
// length differs from the index dimension.
type IndexedMatcher struct {
	index      *database.DescriptorIndex
	identities database.IdentityReader
	scorer     Scorer
	validator  Validator
	candidates int
	fallback   *LinearMatcher
}

// NewIndexedMatcher creates a matcher backed by index. candidates is the number of
// nearest descriptors requested from the index per probe.
func NewIndexedMatcher(index *database.DescriptorIndex, identities database.IdentityReader, scorer Scorer, validator Validator, candidates int) *IndexedMatcher {
	if candidates <= 0 {
		candidates = 10
	}
	return &IndexedMatcher{
		index:      index,
		identities: identities,
		scorer:     scorer,
		validator:  validator,
		candidates: candidates,
		fallback:   NewLinearMatcher(identities, scorer, validator),
	}
}

// FindMatch returns the best identity among the index candidates.
func (m *IndexedMatcher) FindMatch(ctx context.Context, probe Descriptor) (*Match, error) {
	if err := m.validator.Check(probe); err != nil {
		log.Debug().Err(err).Msg("rejecting invalid probe descriptor")
		return nil, nil
	}
	if m.index.Count() == 0 {
		return m.fallback.FindMatch(ctx, probe)
	}

	// The index only holds descriptors of its own dimension.
	if len(probe) != m.index.Dim() {
		return m.fallback.FindMatch(ctx, probe)
	}

	hits, err := m.index.Search(m.scorer.Prepare(probe), m.candidates*database.HNSWSearchMultiplier)
	if err != nil {
		return nil, fmt.Errorf("search descriptor index: %w", err)
	}

	// Candidate identities keep the order in which the index ranked them.
	seen := make(map[string]struct{}, len(hits))
	candidates := make([]database.Identity, 0, m.candidates)
	for _, hit := range hits {
		if _, ok := seen[hit.IdentityID]; ok {
			continue
		}
		seen[hit.IdentityID] = struct{}{}

		identity, err := m.identities.GetIdentity(ctx, hit.IdentityID)
		if err != nil {
			return nil, fmt.Errorf("get identity %s: %w", hit.IdentityID, err)
		}
		if identity == nil {
			continue
		}
		candidates = append(candidates, *identity)
		if len(candidates) == m.candidates {
			break
		}
	}

	return bestMatch(m.scorer, probe, candidates), nil
}

// IndexDescriptor adds a freshly stored descriptor to the index.
func (m *IndexedMatcher) IndexDescriptor(identityID string, d Descriptor) {
	if err := m.index.Add(identityID, m.scorer.Prepare(d)); err != nil {
		log.Warn().Err(err).Str("identity_id", identityID).Msg("descriptor not indexed")
	}
}

// RemoveIdentity drops an identity from the index.
func (m *IndexedMatcher) RemoveIdentity(identityID string) {
	m.index.RemoveIdentity(identityID)
}

// Rebuild reloads every stored descriptor into the index.
func (m *IndexedMatcher) Rebuild(ctx context.Context, progress func()) (int, error) {
	identities, err := m.identities.ListIdentities(ctx)
	if err != nil {
		return 0, fmt.Errorf("list identities: %w", err)
	}
	prepare := func(v []float32) []float32 { return m.scorer.Prepare(v) }
	n := m.index.BuildFromIdentities(identities, prepare, progress)
	log.Info().Int("descriptors", n).Int("identities", len(identities)).Msg("descriptor index rebuilt")
	return n, nil
}
