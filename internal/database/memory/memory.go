// Package memory provides an in-process implementation of the database store interfaces.
// It backs tests and `serve --in-memory`.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
)

// Store keeps identities, sessions and file metadata in maps guarded by one mutex.
// Identities are enumerated in insertion order.
type Store struct {
	mu         sync.RWMutex
	identities map[string]*database.Identity
	order      []string
	sessions   map[string]*database.Session
	files      map[string]*database.StoredFile

	// Error injection
	GetIdentityError      error
	ListIdentitiesError   error
	CreateIdentityError   error
	AppendDescriptorError error
	UpdateProfileError    error
	DeleteIdentityError   error
	SaveSessionError      error
	GetSessionError       error
	DeleteSessionError    error
	SaveFileError         error
	GetFileError          error
	ListFilesError        error
	DeleteFileError       error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		identities: make(map[string]*database.Identity),
		sessions:   make(map[string]*database.Session),
		files:      make(map[string]*database.StoredFile),
	}
}

func copyIdentity(src *database.Identity) *database.Identity {
	dst := *src
	dst.Descriptors = make([][]float32, len(src.Descriptors))
	for i, d := range src.Descriptors {
		dst.Descriptors[i] = append([]float32(nil), d...)
	}
	return &dst
}

// GetIdentity returns a copy of the identity or nil if it does not exist.
func (s *Store) GetIdentity(_ context.Context, id string) (*database.Identity, error) {
	if s.GetIdentityError != nil {
		return nil, s.GetIdentityError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, nil
	}
	return copyIdentity(identity), nil
}

// ListIdentities returns copies of all identities, oldest first.
func (s *Store) ListIdentities(_ context.Context) ([]database.Identity, error) {
	if s.ListIdentitiesError != nil {
		return nil, s.ListIdentitiesError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]database.Identity, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, *copyIdentity(s.identities[id]))
	}
	return result, nil
}

// CountIdentities returns the number of identities.
func (s *Store) CountIdentities(_ context.Context) (int, error) {
	if s.ListIdentitiesError != nil {
		return 0, s.ListIdentitiesError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities), nil
}

// CreateIdentity stores a new identity. CreatedAt and UpdatedAt are set when zero.
func (s *Store) CreateIdentity(_ context.Context, identity *database.Identity) error {
	if s.CreateIdentityError != nil {
		return s.CreateIdentityError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = identity.CreatedAt
	}
	if _, exists := s.identities[identity.ID]; !exists {
		s.order = append(s.order, identity.ID)
	}
	s.identities[identity.ID] = copyIdentity(identity)
	return nil
}

// AppendDescriptor adds a descriptor at the end of the identity's list.
func (s *Store) AppendDescriptor(_ context.Context, identityID string, descriptor []float32) error {
	if s.AppendDescriptorError != nil {
		return s.AppendDescriptorError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return database.ErrNotFound
	}
	identity.Descriptors = append(identity.Descriptors, append([]float32(nil), descriptor...))
	identity.UpdatedAt = time.Now()
	return nil
}

// UpdateProfile replaces the profile attributes of an identity.
func (s *Store) UpdateProfile(_ context.Context, identityID string, profile database.Profile) (*database.Identity, error) {
	if s.UpdateProfileError != nil {
		return nil, s.UpdateProfileError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return nil, database.ErrNotFound
	}
	identity.DisplayName = profile.DisplayName
	identity.Email = profile.Email
	identity.Phone = profile.Phone
	identity.Bio = profile.Bio
	identity.UpdatedAt = time.Now()
	return copyIdentity(identity), nil
}

// DeleteIdentity removes an identity and its files. Sessions are left dangling.
func (s *Store) DeleteIdentity(_ context.Context, identityID string) error {
	if s.DeleteIdentityError != nil {
		return s.DeleteIdentityError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[identityID]; !ok {
		return database.ErrNotFound
	}
	delete(s.identities, identityID)
	for i, id := range s.order {
		if id == identityID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for id, f := range s.files {
		if f.IdentityID == identityID {
			delete(s.files, id)
		}
	}
	return nil
}

// SaveSession inserts or replaces a session.
func (s *Store) SaveSession(_ context.Context, session *database.Session) error {
	if s.SaveSessionError != nil {
		return s.SaveSessionError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *session
	s.sessions[session.ID] = &stored
	return nil
}

// GetSession returns the stored session as is, expired or not.
func (s *Store) GetSession(_ context.Context, sessionID string) (*database.Session, error) {
	if s.GetSessionError != nil {
		return nil, s.GetSessionError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	result := *session
	return &result, nil
}

// DeleteSession removes a session. Missing sessions are ignored.
func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	if s.DeleteSessionError != nil {
		return s.DeleteSessionError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// DeleteExpiredSessions removes all sessions that expired before now.
func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	if s.DeleteSessionError != nil {
		return 0, s.DeleteSessionError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// SessionCount returns the number of stored sessions, including expired ones.
func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SaveFile inserts or replaces file metadata.
func (s *Store) SaveFile(_ context.Context, file *database.StoredFile) error {
	if s.SaveFileError != nil {
		return s.SaveFileError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now()
	}
	stored := *file
	s.files[file.ID] = &stored
	return nil
}

// GetFile returns file metadata or nil if it does not exist.
func (s *Store) GetFile(_ context.Context, fileID string) (*database.StoredFile, error) {
	if s.GetFileError != nil {
		return nil, s.GetFileError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileID]
	if !ok {
		return nil, nil
	}
	result := *f
	return &result, nil
}

// ListFiles returns files of an identity, newest first.
func (s *Store) ListFiles(_ context.Context, identityID string) ([]database.StoredFile, error) {
	if s.ListFilesError != nil {
		return nil, s.ListFilesError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []database.StoredFile
	for _, f := range s.files {
		if f.IdentityID == identityID {
			result = append(result, *f)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UploadedAt.Equal(result[j].UploadedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].UploadedAt.After(result[j].UploadedAt)
	})
	return result, nil
}

// DeleteFile removes file metadata. Missing files are ignored.
func (s *Store) DeleteFile(_ context.Context, fileID string) error {
	if s.DeleteFileError != nil {
		return s.DeleteFileError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, fileID)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

var _ database.Store = (*Store)(nil)
