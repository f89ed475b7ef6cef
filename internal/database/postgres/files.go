package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
)

// FileRepository stores metadata of uploaded files.
type FileRepository struct {
	pool *Pool
}

// NewFileRepository creates a new PostgreSQL file repository
func NewFileRepository(pool *Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

const fileColumns = `id, identity_id, filename, original_name, mime_type, kind, size, width, height, blob_key, fingerprint, uploaded_at`

func scanFile(scanner interface{ Scan(...any) error }) (database.StoredFile, error) {
	var f database.StoredFile
	err := scanner.Scan(
		&f.ID,
		&f.IdentityID,
		&f.Filename,
		&f.OriginalName,
		&f.MimeType,
		&f.Kind,
		&f.Size,
		&f.Width,
		&f.Height,
		&f.BlobKey,
		&f.Fingerprint,
		&f.UploadedAt,
	)
	if err != nil {
		return f, fmt.Errorf("scan file: %w", err)
	}
	return f, nil
}

// SaveFile inserts or replaces file metadata. Returns ErrNotFound if the owner does not exist.
func (r *FileRepository) SaveFile(ctx context.Context, file *database.StoredFile) error {
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			original_name = EXCLUDED.original_name,
			mime_type = EXCLUDED.mime_type,
			kind = EXCLUDED.kind,
			size = EXCLUDED.size,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			blob_key = EXCLUDED.blob_key,
			fingerprint = EXCLUDED.fingerprint
	`,
		file.ID,
		file.IdentityID,
		file.Filename,
		file.OriginalName,
		file.MimeType,
		file.Kind,
		file.Size,
		file.Width,
		file.Height,
		file.BlobKey,
		file.Fingerprint,
		file.UploadedAt,
	)
	if isForeignKeyViolation(err) {
		return database.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("save file: %w", err)
	}
	return nil
}

// GetFile returns file metadata or nil if not found.
func (r *FileRepository) GetFile(ctx context.Context, fileID string) (*database.StoredFile, error) {
	f, err := scanFile(r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, fileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &f, nil
}

// ListFiles returns the files of an identity, newest first.
func (r *FileRepository) ListFiles(ctx context.Context, identityID string) ([]database.StoredFile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+fileColumns+` FROM files WHERE identity_id = $1 ORDER BY uploaded_at DESC, id DESC`,
		identityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []database.StoredFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

// DeleteFile removes file metadata.
func (r *FileRepository) DeleteFile(ctx context.Context, fileID string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM files WHERE id = $1", fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}
