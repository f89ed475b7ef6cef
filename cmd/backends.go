package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/database/memory"
	"github.com/kozaktomas/facegate/internal/database/postgres"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/rs/zerolog/log"
)

// openStore connects to PostgreSQL and applies pending migrations.
// With inMemory set, an empty in-process store is returned instead.
func openStore(ctx context.Context, cfg *config.Config, inMemory bool) (database.Store, error) {
	if inMemory {
		log.Warn().Msg("using in-memory store, all data is lost on exit")
		return memory.New(), nil
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required (or use --in-memory)")
	}

	log.Info().Msg("connecting to PostgreSQL")
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return postgres.NewStore(pool), nil
}

// descriptorCount sums the stored descriptors of all identities.
func descriptorCount(identities []database.Identity) int {
	n := 0
	for i := range identities {
		n += len(identities[i].Descriptors)
	}
	return n
}

// loadOrRebuildIndex loads the saved index when it still covers every stored
// descriptor and rebuilds it from the store otherwise.
func loadOrRebuildIndex(ctx context.Context, m *facematch.IndexedMatcher, index *database.DescriptorIndex, store database.IdentityReader, path string) error {
	if path != "" {
		meta, err := database.LoadHNSWMetadata(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Info().Str("path", path).Msg("no saved descriptor index")
		case err != nil:
			log.Warn().Err(err).Msg("ignoring unreadable descriptor index")
		default:
			identities, err := store.ListIdentities(ctx)
			if err != nil {
				return fmt.Errorf("list identities: %w", err)
			}
			if len(meta.Entries) != descriptorCount(identities) {
				log.Info().Msg("saved descriptor index is stale")
				break
			}
			if err := index.Load(path); err != nil {
				log.Warn().Err(err).Msg("failed to load descriptor index")
				break
			}
			log.Info().Str("path", path).Int("descriptors", index.Count()).Msg("descriptor index loaded")
			return nil
		}
	}

	_, err := m.Rebuild(ctx, nil)
	return err
}

// buildMatcher returns the matcher selected by MATCH_INDEX. For the HNSW matcher the
// index is returned too so callers can feed enrollments into it and save it.
func buildMatcher(ctx context.Context, cfg *config.Config, store database.IdentityReader, scorer facematch.Scorer, validator facematch.Validator) (facematch.Matcher, *facematch.IndexedMatcher, *database.DescriptorIndex, error) {
	if cfg.Matching.Index != config.IndexHNSW {
		return facematch.NewLinearMatcher(store, scorer, validator), nil, nil, nil
	}

	index := database.NewDescriptorIndex(cfg.Matching.DescriptorDim)
	indexed := facematch.NewIndexedMatcher(index, store, scorer, validator, 0)
	if err := loadOrRebuildIndex(ctx, indexed, index, store, cfg.Database.HNSWIndexPath); err != nil {
		return nil, nil, nil, fmt.Errorf("prepare descriptor index: %w", err)
	}
	return indexed, indexed, index, nil
}
