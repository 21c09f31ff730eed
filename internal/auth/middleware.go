package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string
// like "claims", ANY package that knows the string can read or shadow the
// value. A package-private type prevents collisions: only this package can
// create keys of type contextKey, so only this package can set the value.
type contextKey string

const claimsKey contextKey = "claims"

// RequireAuth is middleware that enforces bearer-token authentication.
//
// It reads the JWT from the Authorization header ("Bearer <token>"),
// validates it, and stores the verified claims in the request context.
// Missing or invalid tokens get a 401 with a single generic message —
// the response never distinguishes absent, expired, or tampered tokens.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractClaims(r, tokens)
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, `{"error":"unauthenticated","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext retrieves the verified token claims set by RequireAuth.
// Returns (nil, false) on unauthenticated requests.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// UserIDFromContext is a convenience accessor for the authenticated user ID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return "", false
	}
	return c.UserID(), true
}

// extractClaims reads and validates the bearer token from the request.
func extractClaims(r *http.Request, tokens *TokenService) (*Claims, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, errors.New("auth: no bearer credential")
	}
	return tokens.Validate(strings.TrimPrefix(header, prefix))
}
