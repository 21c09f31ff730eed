// Package record implements the repository interfaces on top of the keyed
// record store. Each entity is serialized as JSON under a path-style key;
// secondary lookups (username, email) go through small index records that
// map a normalized value to the owning user ID.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/autohook/internal/apperror"
	"github.com/sakif/autohook/internal/model"
	"github.com/sakif/autohook/internal/repository"
	"github.com/sakif/autohook/internal/store"
)

// compile-time check that *UserRepo implements repository.UserRepository
var _ repository.UserRepository = (*UserRepo)(nil)

const (
	userPrefix          = "users/"
	usernameIndexPrefix = "users/index/username/"
	emailIndexPrefix    = "users/index/email/"
)

// UserRepo persists users in the record store.
//
// INDEX RECORDS INSTEAD OF DATABASE CONSTRAINTS:
// The record store has no unique constraints, so uniqueness of username
// and email is advisory: Save writes `users/index/username/{name} -> id`
// alongside the user record, and lookups read the index first. Two
// concurrent registrations for the same username can both pass the
// caller's existence check before either index write lands; the last
// writer wins and the earlier account is shadowed. Closing that race
// needs an atomic create-if-absent in the store contract — documented,
// not worked around.
type UserRepo struct {
	records store.RecordStore
}

// NewUserRepo creates a UserRepo over the given record store.
func NewUserRepo(records store.RecordStore) *UserRepo {
	return &UserRepo{records: records}
}

func userKey(id string) string { return userPrefix + id }

// isNotFound reports whether err means "key absent" rather than "store
// failed". The distinction matters: absent is a normal outcome, failure
// must propagate.
func isNotFound(err error) bool { return errors.Is(err, apperror.ErrNotFound) }

// normalize lowercases an index value. All username/email comparisons in
// the system are case-insensitive, and this is the single place that
// defines what that means.
func normalize(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

// Save persists the user record and refreshes its index entries.
func (r *UserRepo) Save(ctx context.Context, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("record: encoding user %s: %w", user.ID, err)
	}
	if err := r.records.Put(ctx, userKey(user.ID), data); err != nil {
		return fmt.Errorf("record: saving user %s: %w", user.ID, err)
	}

	// Index writes happen after the record write so a dangling index can
	// only point at a user that exists.
	if user.Username != "" {
		key := usernameIndexPrefix + normalize(user.Username)
		if err := r.records.Put(ctx, key, []byte(user.ID)); err != nil {
			return fmt.Errorf("record: indexing username for %s: %w", user.ID, err)
		}
	}
	if user.Email != "" {
		key := emailIndexPrefix + normalize(user.Email)
		if err := r.records.Put(ctx, key, []byte(user.ID)); err != nil {
			return fmt.Errorf("record: indexing email for %s: %w", user.ID, err)
		}
	}
	return nil
}

// GetByID loads a user by internal ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	data, err := r.records.Get(ctx, userKey(id))
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("record: getting user %s: %w", id, err)
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("record: decoding user %s: %w", id, err)
	}
	return &user, nil
}

// GetByUsername resolves a user via the username index (case-insensitive).
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getByIndex(ctx, usernameIndexPrefix+normalize(username), "user", username)
}

// GetByEmail resolves a user via the email index (case-insensitive).
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getByIndex(ctx, emailIndexPrefix+normalize(email), "user", email)
}

func (r *UserRepo) getByIndex(ctx context.Context, indexKey, resource, lookup string) (*model.User, error) {
	idBytes, err := r.records.Get(ctx, indexKey)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound(resource, lookup)
		}
		return nil, fmt.Errorf("record: reading index %s: %w", indexKey, err)
	}

	user, err := r.GetByID(ctx, string(idBytes))
	if err != nil {
		// A dangling index entry (user record deleted out from under it)
		// reads the same as no user at all.
		return nil, err
	}
	return user, nil
}
