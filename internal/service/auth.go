// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
// Code is organised into three layers:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the record store
//
// WHY A SEPARATE SERVICE LAYER?
// Without a service layer, handlers do everything: parse HTTP, validate data,
// call the store, format responses. That makes business rules untestable
// without HTTP requests and impossible to reuse from a CLI or background job.
//
// THE DEPENDENCY CHAIN:
//
//	main.go creates:  Store → Repository → Service → Handler
//	At runtime:       Handler calls Service calls Repository calls Store
//
// Services take repository INTERFACES, not concrete types. Tests pass fakes;
// main.go passes the record-store implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/autohook/internal/apperror"
	"github.com/sakif/autohook/internal/auth"
	"github.com/sakif/autohook/internal/metrics"
	"github.com/sakif/autohook/internal/model"
	"github.com/sakif/autohook/internal/repository"
)

// Validation constants for registration.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MinPasswordLength = 8
)

// genericLoginMessage is returned for EVERY login failure: unknown username,
// wrong password, passwordless account, deactivated account. A distinct
// message per cause would let an attacker probe which usernames exist.
const genericLoginMessage = "Invalid username or password"

// LoginResult is what a successful login returns: the authenticated user
// plus a freshly minted bearer token and its expiry.
type LoginResult struct {
	User        *model.User
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// AuthService handles registration, login and token verification.
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewAuthService creates a new AuthService with its dependencies injected.
func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	rec metrics.Recorder,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		metrics:   rec,
		logger:    logger,
	}
}

// Register validates the input, checks both uniqueness indexes and persists
// a new active user with a hashed password.
//
// UNIQUENESS IS CASE-INSENSITIVE: "Alice" and "alice" are the same username,
// "A@b.com" and "a@b.com" the same email. The repository's lookup indexes
// are keyed on the lowercased value, so a single GetByUsername/GetByEmail
// answers the question.
//
// Note the check-then-save window: two concurrent registrations for the same
// username can both pass the lookup before either saves. The record store has
// no cross-key transaction to close it; the last writer's index entry wins.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	// === VALIDATION ===
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength))
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	// net/mail accepts anything RFC 5322 would — a structural check, not
	// deliverability. Good enough to reject "not-an-email".
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.ValidationFailed("email", "invalid email address")
	}

	// === UNIQUENESS ===
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, apperror.Conflict("user", "username already taken")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict("user", "email already registered")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	// === CREATE ===
	now := time.Now().UTC()
	user := &model.User{
		ID:           xid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: s.passwords.Hash(password),
		CreatedAt:    now,
		IsActive:     true,
	}

	if err := s.users.Save(ctx, user); err != nil {
		s.logger.Error("failed to save user",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("saving user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login verifies a username/password pair and mints a bearer token.
//
// FAILURE IS DELIBERATELY OPAQUE. Every way a login can fail — no such user,
// wrong password, account without a password, deactivated account — returns
// the same apperror.Unauthenticated with the same message. Only genuine
// store failures surface as internal errors.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.metrics.RecordLogin(false)
			return nil, apperror.Unauthenticated(genericLoginMessage)
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	// An account created through a federated provider may have no local
	// password at all. Treat it like a wrong password.
	if !user.HasPassword() || !s.passwords.Verify(password, user.PasswordHash) {
		s.metrics.RecordLogin(false)
		return nil, apperror.Unauthenticated(genericLoginMessage)
	}
	if !user.IsActive {
		s.metrics.RecordLogin(false)
		return nil, apperror.Unauthenticated(genericLoginMessage)
	}

	// Record the login time. If the save fails the login still succeeds —
	// losing a last_login update is not worth failing authentication over.
	now := time.Now().UTC()
	user.LastLogin = &now
	if err := s.users.Save(ctx, user); err != nil {
		s.logger.Error("failed to record last login",
			slog.String("id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Username, user.Email, auth.DefaultTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	s.metrics.RecordLogin(true)
	s.logger.Info("user logged in",
		slog.String("id", user.ID),
		slog.String("username", user.Username),
	)

	return &LoginResult{
		User:        user,
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// VerifyToken validates a bearer token and resolves it to the live user
// record. A syntactically valid token for a user that has since been
// deleted is still rejected — the token is only as good as the account
// behind it.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthenticated("invalid or expired token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("invalid or expired token")
		}
		return nil, fmt.Errorf("resolving token subject: %w", err)
	}

	return user, nil
}

// GetUserByID fetches a user by ID. Returns apperror.ErrNotFound if no such
// user exists.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetByID(ctx, id)
}
