// Package files manages the pictures and documents an identity uploads.
// Metadata lives in the database, contents in the blob store.
package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/facegate/internal/blob"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/rs/zerolog/log"
)

// Thumbnail size bounds in pixels.
const (
	DefaultThumbnailSize = 256
	MaxThumbnailSize     = 1024
)

var (
	ErrNotFound        = errors.New("file not found")
	ErrForbidden       = errors.New("file belongs to another identity")
	ErrUnsupportedType = errors.New("only images, documents (PDF, DOC, DOCX, TXT) and spreadsheets (XLS, XLSX) are allowed")
	ErrTooLarge        = errors.New("file is too large")
	ErrEmpty           = errors.New("file is empty")
	ErrNotImage        = errors.New("thumbnails are only available for images")
)

// Upload is one incoming file.
type Upload struct {
	Filename    string
	ContentType string // as declared by the client; sniffed when empty
	Data        []byte
}

// UploadResult is the stored file plus the id of an earlier upload of the same picture, if any.
type UploadResult struct {
	File        *database.StoredFile
	DuplicateOf string
}

// Service enforces ownership on every file operation.
type Service struct {
	meta  database.FileStore
	blobs blob.Store
	now   func() time.Time
}

// NewService creates a file service.
func NewService(meta database.FileStore, blobs blob.Store) *Service {
	return &Service{meta: meta, blobs: blobs, now: time.Now}
}

// Save validates and stores an upload for identityID.
func (s *Service) Save(ctx context.Context, identityID string, u Upload) (*UploadResult, error) {
	if len(u.Data) == 0 {
		return nil, ErrEmpty
	}
	if len(u.Data) > MaxUploadSize {
		return nil, ErrTooLarge
	}

	contentType := detectContentType(u)
	kind, ok := kindOf(contentType)
	if !ok {
		return nil, ErrUnsupportedType
	}
	if len(u.Data) > kind.MaxSize() {
		return nil, ErrTooLarge
	}

	info := &imageInfo{}
	if kind == KindImage {
		var err error
		if info, err = inspectImage(u.Data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
	} else if !contentMatches(contentType, u.Data) {
		return nil, fmt.Errorf("%w: content is not %s", ErrUnsupportedType, contentType)
	}

	id := uuid.NewString()
	original := filepath.Base(strings.ReplaceAll(u.Filename, "\\", "/"))
	if original == "." || original == "/" {
		original = ""
	}
	f := &database.StoredFile{
		ID:           id,
		IdentityID:   identityID,
		Filename:     id + strings.ToLower(filepath.Ext(original)),
		OriginalName: original,
		MimeType:     contentType,
		Kind:         string(kind),
		Size:         int64(len(u.Data)),
		Width:        info.Width,
		Height:       info.Height,
		BlobKey:      "files/" + identityID + "/" + id,
		Fingerprint:  info.Fingerprint,
		UploadedAt:   s.now(),
	}

	var duplicateOf string
	if kind == KindImage {
		duplicateOf = s.findDuplicate(ctx, identityID, info.Fingerprint)
	}

	if err := s.blobs.Put(ctx, f.BlobKey, bytes.NewReader(u.Data), f.Size, f.MimeType); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	if err := s.meta.SaveFile(ctx, f); err != nil {
		if delErr := s.blobs.Delete(ctx, f.BlobKey); delErr != nil {
			log.Error().Err(delErr).Str("key", f.BlobKey).Msg("failed to remove orphaned blob")
		}
		return nil, fmt.Errorf("save file metadata: %w", err)
	}

	log.Info().
		Str("identity_id", identityID).
		Str("file_id", id).
		Str("kind", f.Kind).
		Str("format", info.Format).
		Int64("size", f.Size).
		Msg("file uploaded")

	return &UploadResult{File: f, DuplicateOf: duplicateOf}, nil
}

// findDuplicate returns the newest file of identityID showing the same picture.
func (s *Service) findDuplicate(ctx context.Context, identityID, fingerprint string) string {
	existing, err := s.meta.ListFiles(ctx, identityID)
	if err != nil {
		log.Warn().Err(err).Msg("duplicate check skipped")
		return ""
	}
	for _, f := range existing {
		if d := fingerprintDistance(fingerprint, f.Fingerprint); d >= 0 && d <= DuplicateDistance {
			return f.ID
		}
	}
	return ""
}

// List returns the files of identityID, newest first.
func (s *Service) List(ctx context.Context, identityID string) ([]database.StoredFile, error) {
	files, err := s.meta.ListFiles(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// get loads metadata and checks ownership.
func (s *Service) get(ctx context.Context, identityID, fileID string) (*database.StoredFile, error) {
	f, err := s.meta.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if f == nil {
		return nil, ErrNotFound
	}
	if f.IdentityID != identityID {
		return nil, ErrForbidden
	}
	return f, nil
}

// Open returns the metadata and the content of a file owned by identityID.
// The caller must close the returned object's Body.
func (s *Service) Open(ctx context.Context, identityID, fileID string) (*database.StoredFile, *blob.Object, error) {
	f, err := s.get(ctx, identityID, fileID)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.openBlob(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	return f, obj, nil
}

func (s *Service) openBlob(ctx context.Context, f *database.StoredFile) (*blob.Object, error) {
	obj, err := s.blobs.Get(ctx, f.BlobKey)
	if errors.Is(err, blob.ErrNotFound) {
		log.Warn().Str("file_id", f.ID).Str("key", f.BlobKey).Msg("file metadata without blob")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return obj, nil
}

// Thumbnail returns a JPEG preview no larger than size pixels on either side.
// Returns ErrNotImage for documents and spreadsheets.
func (s *Service) Thumbnail(ctx context.Context, identityID, fileID string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	size = min(size, MaxThumbnailSize)

	f, err := s.get(ctx, identityID, fileID)
	if err != nil {
		return nil, err
	}
	if Kind(f.Kind) != KindImage {
		return nil, ErrNotImage
	}

	obj, err := s.openBlob(ctx, f)
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(io.LimitReader(obj.Body, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return thumbnail(data, size)
}

// Delete removes a file owned by identityID: first the content, then the metadata.
func (s *Service) Delete(ctx context.Context, identityID, fileID string) error {
	f, err := s.get(ctx, identityID, fileID)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, f.BlobKey); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if err := s.meta.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete file metadata: %w", err)
	}
	log.Info().Str("identity_id", identityID).Str("file_id", fileID).Msg("file deleted")
	return nil
}
