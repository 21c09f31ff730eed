package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/autohook/internal/apperror"
	"github.com/sakif/autohook/internal/model"
	"github.com/sakif/autohook/internal/store/sqlite"
)

// newTestUserRepo returns a UserRepo backed by an in-memory record store.
func newTestUserRepo(t *testing.T) *UserRepo {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewUserRepo(s)
}

// saveTestUser is a helper that persists a user and fails the test on error.
func saveTestUser(t *testing.T, r *UserRepo, id, username, email string) *model.User {
	t.Helper()
	user := &model.User{
		ID:        id,
		Username:  username,
		Email:     email,
		CreatedAt: time.Now(),
		IsActive:  true,
	}
	if err := r.Save(context.Background(), user); err != nil {
		t.Fatalf("failed to save test user: %v", err)
	}
	return user
}

func TestUserSaveAndGetByID(t *testing.T) {
	r := newTestUserRepo(t)
	created := saveTestUser(t, r, "u1", "alice", "alice@example.com")

	found, err := r.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}
	if found.Username != "alice" {
		t.Errorf("Username = %q, want %q", found.Username, "alice")
	}
	if !found.IsActive {
		t.Error("IsActive = false, want true")
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	r := newTestUserRepo(t)

	_, err := r.GetByID(context.Background(), "nonexistent")
	if err == nil {
		t.Fatal("GetByID() should fail for a missing user")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestUserGetByUsername_CaseInsensitive(t *testing.T) {
	r := newTestUserRepo(t)
	saveTestUser(t, r, "u1", "Alice", "alice@example.com")

	// Lookups must hit regardless of the case used at registration or at
	// lookup time — the index stores the normalized form.
	for _, lookup := range []string{"alice", "ALICE", "Alice"} {
		found, err := r.GetByUsername(context.Background(), lookup)
		if err != nil {
			t.Fatalf("GetByUsername(%q) error = %v", lookup, err)
		}
		if found.ID != "u1" {
			t.Errorf("GetByUsername(%q).ID = %q, want u1", lookup, found.ID)
		}
	}
}

func TestUserGetByEmail_CaseInsensitive(t *testing.T) {
	r := newTestUserRepo(t)
	saveTestUser(t, r, "u1", "alice", "Alice@Example.COM")

	found, err := r.GetByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if found.ID != "u1" {
		t.Errorf("GetByEmail().ID = %q, want u1", found.ID)
	}
}

func TestUserSave_PreservesPasswordHash(t *testing.T) {
	r := newTestUserRepo(t)
	user := &model.User{
		ID:           "u1",
		Username:     "alice",
		PasswordHash: "deadbeef",
		CreatedAt:    time.Now(),
		IsActive:     true,
	}
	if err := r.Save(context.Background(), user); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	found, err := r.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.PasswordHash != "deadbeef" {
		t.Errorf("PasswordHash = %q, want %q", found.PasswordHash, "deadbeef")
	}
}

func TestUserSave_UpdateLastLogin(t *testing.T) {
	r := newTestUserRepo(t)
	user := saveTestUser(t, r, "u1", "alice", "alice@example.com")

	now := time.Now().UTC()
	user.LastLogin = &now
	if err := r.Save(context.Background(), user); err != nil {
		t.Fatalf("Save() update error = %v", err)
	}

	found, _ := r.GetByID(context.Background(), "u1")
	if found.LastLogin == nil {
		t.Fatal("LastLogin not persisted")
	}
	if !found.LastLogin.Equal(now) {
		t.Errorf("LastLogin = %v, want %v", found.LastLogin, now)
	}
}
