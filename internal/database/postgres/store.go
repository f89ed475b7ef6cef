package postgres

import (
	"github.com/kozaktomas/facegate/internal/database"
)

// Store bundles the repositories over one pool into a database.Store.
type Store struct {
	*IdentityRepository
	*SessionRepository
	*FileRepository
	pool *Pool
}

// NewStore creates a Store over pool. Closing the store closes the pool.
func NewStore(pool *Pool) *Store {
	return &Store{
		IdentityRepository: NewIdentityRepository(pool),
		SessionRepository:  NewSessionRepository(pool),
		FileRepository:     NewFileRepository(pool),
		pool:               pool,
	}
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

var _ database.Store = (*Store)(nil)
