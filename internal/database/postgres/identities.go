package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
)

// pqForeignKeyViolation is the SQLSTATE of a foreign key violation.
const pqForeignKeyViolation = "23503"

// IdentityRepository provides PostgreSQL-backed identity storage.
// Descriptors live in their own table; their id order is the enrollment order.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation
}

const identityColumns = `id, display_name, email, phone, bio, created_at, updated_at`

func scanIdentity(scanner interface{ Scan(...any) error }) (database.Identity, error) {
	var identity database.Identity
	err := scanner.Scan(
		&identity.ID,
		&identity.DisplayName,
		&identity.Email,
		&identity.Phone,
		&identity.Bio,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return identity, fmt.Errorf("scan identity: %w", err)
	}
	return identity, nil
}

// GetIdentity returns the identity with its descriptors, or nil if it does not exist.
func (r *IdentityRepository) GetIdentity(ctx context.Context, id string) (*database.Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT embedding FROM descriptors WHERE identity_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get descriptors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		identity.Descriptors = append(identity.Descriptors, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descriptors: %w", err)
	}
	return &identity, nil
}

// ListIdentities returns all identities with descriptors, oldest first.
func (r *IdentityRepository) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []database.Identity
	index := make(map[string]int)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		index[identity.ID] = len(identities)
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	if len(identities) == 0 {
		return identities, nil
	}

	descRows, err := r.pool.Query(ctx, `SELECT identity_id, embedding FROM descriptors ORDER BY identity_id, id`)
	if err != nil {
		return nil, fmt.Errorf("list descriptors: %w", err)
	}
	defer descRows.Close()

	for descRows.Next() {
		var identityID string
		var vec pgvector.Vector
		if err := descRows.Scan(&identityID, &vec); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		// Identity created after the first query.
		i, ok := index[identityID]
		if !ok {
			continue
		}
		identities[i].Descriptors = append(identities[i].Descriptors, vec.Slice())
	}
	if err := descRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descriptors: %w", err)
	}
	return identities, nil
}

// CountIdentities returns the number of enrolled identities.
func (r *IdentityRepository) CountIdentities(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// CreateIdentity inserts the identity row and its descriptors in one transaction.
func (r *IdentityRepository) CreateIdentity(ctx context.Context, identity *database.Identity) error {
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = identity.CreatedAt
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identities (id, display_name, email, phone, bio, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		identity.ID,
		identity.DisplayName,
		identity.Email,
		identity.Phone,
		identity.Bio,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	for i, d := range identity.Descriptors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO descriptors (identity_id, embedding, dim) VALUES ($1, $2::vector, $3)`,
			identity.ID, pgvector.NewVector(d), len(d),
		); err != nil {
			return fmt.Errorf("insert descriptor %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AppendDescriptor adds one descriptor with a single INSERT.
func (r *IdentityRepository) AppendDescriptor(ctx context.Context, identityID string, descriptor []float32) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO descriptors (identity_id, embedding, dim) VALUES ($1, $2::vector, $3)`,
		identityID, pgvector.NewVector(descriptor), len(descriptor),
	)
	if isForeignKeyViolation(err) {
		return database.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("append descriptor: %w", err)
	}

	// The descriptor is already stored.
	if _, err := r.pool.Exec(ctx, `UPDATE identities SET updated_at = NOW() WHERE id = $1`, identityID); err != nil {
		log.Warn().Err(err).Str("identity_id", identityID).Msg("failed to touch identity updated_at")
	}
	return nil
}

// UpdateProfile replaces the profile attributes and returns the updated identity.
func (r *IdentityRepository) UpdateProfile(ctx context.Context, identityID string, profile database.Profile) (*database.Identity, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE identities
		SET display_name = $2, email = $3, phone = $4, bio = $5, updated_at = NOW()
		WHERE id = $1
	`, identityID, profile.DisplayName, profile.Email, profile.Phone, profile.Bio)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return nil, database.ErrNotFound
	}

	identity, err := r.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, database.ErrNotFound
	}
	return identity, nil
}

// DeleteIdentity removes the identity; descriptors and files cascade.
// Returns database.ErrNotFound if no identity was deleted.
func (r *IdentityRepository) DeleteIdentity(ctx context.Context, identityID string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE id = $1", identityID)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}
