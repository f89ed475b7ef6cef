package database

import (
	"time"
)

// Identity is one enrolled person together with their reference descriptors.
type Identity struct {
	ID          string
	DisplayName string
	Email       string
	Phone       string
	Bio         string
	Descriptors [][]float32 // enrollment order, append-only
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Profile holds the mutable identity attributes.
type Profile struct {
	DisplayName string
	Email       string
	Phone       string
	Bio         string
}

// Session binds a bearer token to an identity until ExpiresAt.
type Session struct {
	ID         string
	IdentityID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// StoredFile is the metadata of an uploaded file. The content lives in the blob store under BlobKey.
type StoredFile struct {
	ID           string
	IdentityID   string
	Filename     string
	OriginalName string
	MimeType     string
	Kind         string // image, document or spreadsheet
	Size         int64
	Width        int
	Height       int
	BlobKey      string
	Fingerprint  string // 64-bit difference hash as hex, empty if not computed
	UploadedAt   time.Time
}
