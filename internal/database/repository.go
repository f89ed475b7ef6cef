package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by writers when the record they should modify does not exist.
var ErrNotFound = errors.New("not found")

// IdentityReader provides read-only access to enrolled identities
type IdentityReader interface {
	// GetIdentity retrieves an identity with its descriptors, returns nil if not found
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	// ListIdentities returns all identities with descriptors, oldest first
	ListIdentities(ctx context.Context) ([]Identity, error)
	// CountIdentities returns the total number of identities
	CountIdentities(ctx context.Context) (int, error)
}

// IdentityWriter provides write access to identities
type IdentityWriter interface {
	IdentityReader

	// CreateIdentity stores a new identity and its initial descriptors atomically.
	CreateIdentity(ctx context.Context, identity *Identity) error

	// AppendDescriptor atomically appends one descriptor to an identity.
	// Returns ErrNotFound if the identity does not exist.
	AppendDescriptor(ctx context.Context, identityID string, descriptor []float32) error

	// UpdateProfile replaces the profile attributes and returns the updated identity.
	// Returns ErrNotFound if the identity does not exist.
	UpdateProfile(ctx context.Context, identityID string, profile Profile) (*Identity, error)

	// DeleteIdentity removes an identity, its descriptors and file metadata.
	// Returns ErrNotFound if the identity does not exist.
	DeleteIdentity(ctx context.Context, identityID string) error
}

// SessionStore persists sessions. Reads return records regardless of expiry;
// expiry policy belongs to the session manager.
type SessionStore interface {
	// SaveSession inserts or replaces a session
	SaveSession(ctx context.Context, session *Session) error
	// GetSession retrieves a session by ID, returns nil if not found
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// DeleteSession removes a session; deleting a missing session is not an error
	DeleteSession(ctx context.Context, sessionID string) error
	// DeleteExpiredSessions removes sessions with expires_at before now and returns the count deleted
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// FileStore persists uploaded file metadata
type FileStore interface {
	// SaveFile stores file metadata
	SaveFile(ctx context.Context, file *StoredFile) error
	// GetFile retrieves file metadata by ID, returns nil if not found
	GetFile(ctx context.Context, fileID string) (*StoredFile, error)
	// ListFiles returns the files owned by an identity, newest first
	ListFiles(ctx context.Context, identityID string) ([]StoredFile, error)
	// DeleteFile removes file metadata; deleting a missing file is not an error
	DeleteFile(ctx context.Context, fileID string) error
}

// Store is the full backend used by the server.
type Store interface {
	IdentityWriter
	SessionStore
	FileStore
	Close() error
}
