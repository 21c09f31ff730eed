// Package auth provides password hashing and JWT token issue/verify for the
// autohook API.
//
// AUTHENTICATION FLOW OVERVIEW:
// 1. Client POSTs username/password to /api/auth/login
// 2. Server verifies the credentials and issues a JWT access token
// 3. Client presents "Authorization: Bearer <token>" on subsequent calls
// 4. Middleware validates the JWT and sets the user identity in the
//    request context
//
// WHY JWT?
// JWT is stateless — the server doesn't store session data. Everything
// needed (user ID, username, email, expiry) is inside the signed token,
// and the HMAC signature ensures nobody can tamper with it without the
// secret key. Verification needs no store lookup.
//
// KEY ROTATION IS BREAKING BY DESIGN:
// The signing key is process-wide state loaded once at startup. If it is
// not supplied externally, a random one is generated — which means every
// token issued before a restart becomes unverifiable afterwards. That is
// intentional: there is no key ring and no grace window. Deployments that
// need stable sessions across restarts must set JWT_SECRET.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// issuer is embedded in every token and checked on validation, so tokens
// minted by other services sharing the same secret are still rejected.
const issuer = "autohook"

// DefaultTokenTTL is the lifetime of tokens issued by login.
const DefaultTokenTTL = 24 * time.Hour

// Claims is the verified payload of a bearer token.
//
// Subject carries the internal user ID ("sub" is the standard claim for
// identifying who a token belongs to). Username and email ride along so
// callers that only need display fields can skip the directory lookup.
type Claims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim — the internal user ID.
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenService signs and verifies time-bounded bearer tokens.
//
// It holds the HMAC secret used for both operations. The same secret must
// be used to sign and verify — keep it out of logs and error messages.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Issue creates and signs a JWT for the given user identity.
//
// Signing algorithm: HS256 (HMAC-SHA256) — symmetric, fast, and right for
// a single-service deployment where issuer and verifier share a process.
func (s *TokenService) Issue(userID, username, email string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	c := Claims{
		Username: username,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, expiresAt, nil
}

// Validate parses and verifies a JWT string, returning its claims.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired (ExpiresAt is in the future)
//   - Issuer matches (prevents tokens from other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks —
//     without jwt.WithValidMethods an attacker could present a token
//     signed with "none" and some parsers would accept it)
//
// The error never says WHICH check failed beyond expired-vs-invalid;
// callers surface a single generic unauthenticated response either way.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	return c, nil
}
