// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account capable of authenticating.
//
// We generate our own internal string ID (xid) rather than using the username
// as the key — usernames are user-visible and people ask to change them;
// primary keys should never change.
//
// WHY PasswordHash string (not *string)?
// Accounts created through a linked provider identity have no password at
// all. We use the empty string as the zero value rather than a nullable
// pointer — simpler to work with, and an empty hash can never verify, so
// there is no way to log into such an account with a password.
//
// The struct is what gets persisted (as JSON) in the record store, so the
// hash IS serialized here. Handlers must never write a User to a client
// directly — they return UserResponse, which has no hash field.
//
// WHY ExternalIDs map?
// A user may link identities from several providers (github, gitlab,
// bitbucket). The map is keyed by provider name and holds the provider's
// user ID as an opaque string. Linking flows themselves live outside this
// service; we only persist the association.
type User struct {
	ID            string            `json:"userId"`
	Username      string            `json:"username"`
	Email         string            `json:"email,omitempty"`
	PasswordHash  string            `json:"passwordHash,omitempty"`
	ExternalIDs   map[string]string `json:"externalIds,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	LastLogin     *time.Time        `json:"lastLogin,omitempty"`
	IsActive      bool              `json:"isActive"`
	EmailVerified bool              `json:"emailVerified"`
}

// HasPassword reports whether this account can authenticate with a password.
// Provider-only accounts return false and must never pass password login.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// UserResponse is the client-facing view of a User. It exists so the
// password hash can never leak through an API response by accident.
type UserResponse struct {
	ID            string     `json:"userId"`
	Username      string     `json:"username"`
	Email         string     `json:"email,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
}

// Response converts a User to its client-facing representation.
func (u *User) Response() UserResponse {
	return UserResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		CreatedAt:     u.CreatedAt,
		LastLogin:     u.LastLogin,
		EmailVerified: u.EmailVerified,
	}
}
