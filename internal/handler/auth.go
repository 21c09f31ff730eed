package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/autohook/internal/apperror"
	"github.com/sakif/autohook/internal/auth"
	"github.com/sakif/autohook/internal/service"
)

// AuthHandler exposes registration, login and token endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create a new account, return its public profile
//   - HandleLogin    → verify credentials, return a bearer token
//   - HandleToken    → OAuth2-password-style token endpoint (form encoded)
//   - HandleMe       → return the authenticated user's profile
//
// The handler only parses HTTP and formats JSON. All rules — validation,
// uniqueness, the uniform login failure — live in service.AuthService.
type AuthHandler struct {
	authSvc *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authSvc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authSvc: authSvc,
		logger:  logger,
	}
}

// registerRequest is the JSON body for POST /api/auth/register.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest is the JSON body for POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is the shape both login endpoints return.
type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HandleRegister creates a new user account.
//
// HTTP: POST /api/auth/register
//
// Returns 201 with the public profile (never the password hash) on success,
// 400 for validation failures, 409 when the username or email is taken.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	user, err := h.authSvc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user.Response())
}

// HandleLogin verifies credentials and returns a bearer token.
//
// HTTP: POST /api/auth/login
//
// Every failure — unknown user, wrong password, deactivated account — is
// the same 401. The service layer guarantees that; the handler just relays.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.authSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		ExpiresAt:   result.ExpiresAt,
	})
}

// HandleToken is the form-encoded variant of login, for OAuth2
// password-grant style clients that POST username/password as
// application/x-www-form-urlencoded instead of JSON.
//
// HTTP: POST /api/auth/token
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid form body"))
		return
	}

	result, err := h.authSvc.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		ExpiresAt:   result.ExpiresAt,
	})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /api/auth/me
// Auth: Required (RequireAuth middleware sets the claims in context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Should never happen on a RequireAuth-protected route, but be safe.
		writeError(w, apperror.Unauthenticated("missing credentials"))
		return
	}

	user, err := h.authSvc.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("me: user lookup failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user.Response())
}
