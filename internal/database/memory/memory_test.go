package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
)

func TestStore_IdentityLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	identity := &database.Identity{ID: "id-1", DisplayName: "User id-1", Descriptors: [][]float32{{1, 2}}}
	if err := s.CreateIdentity(ctx, identity); err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}
	if identity.CreatedAt.IsZero() {
		t.Error("CreateIdentity() did not set CreatedAt")
	}

	// Mutating the caller's copy must not leak into the store.
	identity.Descriptors[0][0] = 99

	if err := s.AppendDescriptor(ctx, "id-1", []float32{3, 4}); err != nil {
		t.Fatalf("AppendDescriptor() error = %v", err)
	}

	got, err := s.GetIdentity(ctx, "id-1")
	if err != nil {
		t.Fatalf("GetIdentity() error = %v", err)
	}
	if len(got.Descriptors) != 2 {
		t.Fatalf("len(Descriptors) = %d, want 2", len(got.Descriptors))
	}
	if got.Descriptors[0][0] != 1 || got.Descriptors[1][0] != 3 {
		t.Errorf("Descriptors = %v, want [[1 2] [3 4]]", got.Descriptors)
	}

	updated, err := s.UpdateProfile(ctx, "id-1", database.Profile{DisplayName: "Alice", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.DisplayName != "Alice" || len(updated.Descriptors) != 2 {
		t.Errorf("UpdateProfile() = %+v", updated)
	}

	if err := s.DeleteIdentity(ctx, "id-1"); err != nil {
		t.Fatalf("DeleteIdentity() error = %v", err)
	}
	if got, _ := s.GetIdentity(ctx, "id-1"); got != nil {
		t.Error("GetIdentity() after delete returned identity")
	}
	if err := s.DeleteIdentity(ctx, "id-1"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("DeleteIdentity() twice error = %v, want %v", err, database.ErrNotFound)
	}
}

func TestStore_MissingIdentity(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.AppendDescriptor(ctx, "nope", []float32{1}); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("AppendDescriptor() error = %v, want %v", err, database.ErrNotFound)
	}
	if _, err := s.UpdateProfile(ctx, "nope", database.Profile{DisplayName: "x"}); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("UpdateProfile() error = %v, want %v", err, database.ErrNotFound)
	}
	if err := s.DeleteIdentity(ctx, "nope"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("DeleteIdentity() error = %v, want %v", err, database.ErrNotFound)
	}
}

func TestStore_ListIdentitiesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, id := range []string{"c", "a", "b"} {
		_ = s.CreateIdentity(ctx, &database.Identity{ID: id, Descriptors: [][]float32{{0}}})
	}

	list, err := s.ListIdentities(ctx)
	if err != nil {
		t.Fatalf("ListIdentities() error = %v", err)
	}
	var ids []string
	for _, identity := range list {
		ids = append(ids, identity.ID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Errorf("ListIdentities() order = %v, want [c a b]", ids)
	}

	if n, _ := s.CountIdentities(ctx); n != 3 {
		t.Errorf("CountIdentities() = %d, want 3", n)
	}
}

func TestStore_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreateIdentity(ctx, &database.Identity{ID: "id", Descriptors: [][]float32{{0}}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AppendDescriptor(ctx, "id", []float32{float32(i)})
		}(i)
	}
	wg.Wait()

	got, _ := s.GetIdentity(ctx, "id")
	if len(got.Descriptors) != 51 {
		t.Errorf("len(Descriptors) = %d, want 51", len(got.Descriptors))
	}
}

func TestStore_Sessions(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	_ = s.SaveSession(ctx, &database.Session{ID: "live", IdentityID: "i", ExpiresAt: now.Add(time.Hour)})
	_ = s.SaveSession(ctx, &database.Session{ID: "old", IdentityID: "i", ExpiresAt: now.Add(-time.Hour)})

	// GetSession does not filter expired records.
	if got, _ := s.GetSession(ctx, "old"); got == nil {
		t.Error("GetSession(old) = nil, want raw record")
	}

	n, err := s.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpiredSessions() = %d, want 1", n)
	}
	if s.SessionCount() != 1 {
		t.Errorf("SessionCount() = %d, want 1", s.SessionCount())
	}

	if err := s.DeleteSession(ctx, "live"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if err := s.DeleteSession(ctx, "live"); err != nil {
		t.Errorf("second DeleteSession() error = %v, want nil", err)
	}
}

func TestStore_Files(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.SaveFile(ctx, &database.StoredFile{ID: "f1", IdentityID: "a", UploadedAt: base})
	_ = s.SaveFile(ctx, &database.StoredFile{ID: "f2", IdentityID: "a", UploadedAt: base.Add(time.Minute)})
	_ = s.SaveFile(ctx, &database.StoredFile{ID: "f3", IdentityID: "b", UploadedAt: base})

	files, err := s.ListFiles(ctx, "a")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 2 || files[0].ID != "f2" {
		t.Errorf("ListFiles() = %+v, want f2 first", files)
	}

	_ = s.DeleteIdentity(ctx, "b")
	if f, _ := s.GetFile(ctx, "f3"); f != nil {
		t.Error("files of a deleted identity must be removed")
	}

	_ = s.DeleteFile(ctx, "f1")
	if f, _ := s.GetFile(ctx, "f1"); f != nil {
		t.Error("GetFile() after delete returned file")
	}
}

func TestStore_ErrorInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	s.ListIdentitiesError = boom

	if _, err := s.ListIdentities(ctx); !errors.Is(err, boom) {
		t.Errorf("ListIdentities() error = %v, want %v", err, boom)
	}
}
