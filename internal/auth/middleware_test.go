package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// okHandler records whether it ran and what identity it saw.
func okHandler(t *testing.T, sawUserID *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := UserIDFromContext(r.Context()); ok {
			*sawUserID = id
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth_ValidToken(t *testing.T) {
	ts := newTestTokenService(t)
	token, _, _ := ts.Issue("user-42", "alice", "alice@x.com", time.Hour)

	var sawUserID string
	h := RequireAuth(ts)(okHandler(t, &sawUserID))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sawUserID != "user-42" {
		t.Errorf("handler saw userID %q, want %q", sawUserID, "user-42")
	}
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	ts := newTestTokenService(t)

	var sawUserID string
	h := RequireAuth(ts)(okHandler(t, &sawUserID))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if sawUserID != "" {
		t.Error("handler ran despite missing credential")
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)
	token, _, _ := ts.Issue("user-42", "alice", "", -time.Minute)

	var sawUserID string
	h := RequireAuth(ts)(okHandler(t, &sawUserID))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_NonBearerScheme(t *testing.T) {
	ts := newTestTokenService(t)

	var sawUserID string
	h := RequireAuth(ts)(okHandler(t, &sawUserID))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
