package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"

	"github.com/sakif/autohook/internal/apperror"
	"github.com/sakif/autohook/internal/engine"
	"github.com/sakif/autohook/internal/model"
)

// =========================================================================
// FAKE ENGINE
// =========================================================================

// fakeEngine records the events it was asked to process and returns a
// canned result (or error).
type fakeEngine struct {
	events []engine.PullRequestEvent
	err    error
}

func (f *fakeEngine) ProcessPullRequestEvent(_ context.Context, event engine.PullRequestEvent) (*engine.Result, error) {
	f.events = append(f.events, event)
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Result{StatusCode: http.StatusAccepted, Message: "queued"}, nil
}

// =========================================================================
// TEST HELPERS
// =========================================================================

func newTestDispatcher(t *testing.T, globalSecret string) (*Dispatcher, *mockWebhookRepo, *fakeEngine) {
	t.Helper()
	repo := newMockWebhookRepo()
	eng := &fakeEngine{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewDispatcher(repo, eng, nopRecorder{}, globalSecret, logger), repo, eng
}

// sign computes the X-Hub-Signature-256 value for body under secret.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

const prOpenedBody = `{
	"action": "opened",
	"repository": {"full_name": "acme/widgets"},
	"pull_request": {
		"number": 42,
		"title": "Add frobnicator",
		"body": "Please review",
		"head": {"ref": "feature/frob"},
		"base": {"ref": "main"},
		"user": {"login": "octocat"}
	}
}`

// singleLog fetches the one delivery log the test expects to exist.
func singleLog(t *testing.T, repo *mockWebhookRepo) *model.DeliveryLog {
	t.Helper()
	if len(repo.logs) != 1 {
		t.Fatalf("have %d delivery logs, want 1", len(repo.logs))
	}
	for _, entry := range repo.logs {
		return entry
	}
	return nil
}

// =========================================================================
// DISPATCH TESTS
// =========================================================================

func TestReceive_PullRequestOpened(t *testing.T) {
	d, repo, eng := newTestDispatcher(t, "")

	result, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Body:      []byte(prOpenedBody),
		OwnerID:   "user-a",
		WebhookID: "wh-1",
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	if result.Status != "processed" {
		t.Errorf("Status = %q, want %q", result.Status, "processed")
	}
	if len(eng.events) != 1 {
		t.Fatalf("engine saw %d events, want 1", len(eng.events))
	}

	event := eng.events[0]
	if event.Repository != "acme/widgets" {
		t.Errorf("Repository = %q, want %q", event.Repository, "acme/widgets")
	}
	if event.Number != 42 {
		t.Errorf("Number = %d, want 42", event.Number)
	}
	if event.HeadBranch != "feature/frob" || event.BaseBranch != "main" {
		t.Errorf("branches = %q → %q, want feature/frob → main", event.HeadBranch, event.BaseBranch)
	}
	if event.Sender != "octocat" {
		t.Errorf("Sender = %q, want %q", event.Sender, "octocat")
	}
	if event.UserID != "user-a" {
		t.Errorf("UserID = %q, want %q", event.UserID, "user-a")
	}

	entry := singleLog(t, repo)
	if entry.Status != model.DeliverySuccess {
		t.Errorf("log Status = %q, want success", entry.Status)
	}
	if entry.ResponseStatus != http.StatusAccepted {
		t.Errorf("log ResponseStatus = %d, want %d", entry.ResponseStatus, http.StatusAccepted)
	}
	if entry.Repository != "acme/widgets" || entry.PRNumber != 42 {
		t.Errorf("log attribution = %q #%d, want acme/widgets #42", entry.Repository, entry.PRNumber)
	}
}

// TestReceive_IgnoredAction checks that a pull_request action outside the
// allow-list is acknowledged but never reaches the engine.
func TestReceive_IgnoredAction(t *testing.T) {
	d, repo, eng := newTestDispatcher(t, "")

	body := []byte(`{"action": "closed", "repository": {"full_name": "acme/widgets"}, "pull_request": {"number": 7}}`)
	result, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Body:      body,
		OwnerID:   "user-a",
		WebhookID: "wh-1",
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	if result.Status != "ignored" {
		t.Errorf("Status = %q, want %q", result.Status, "ignored")
	}
	if len(eng.events) != 0 {
		t.Errorf("engine saw %d events, want 0", len(eng.events))
	}

	// An ignored delivery is still a handled one: SUCCESS, with the reason
	// in the error message field.
	entry := singleLog(t, repo)
	if entry.Status != model.DeliverySuccess {
		t.Errorf("log Status = %q, want success", entry.Status)
	}
	if entry.ErrorMessage != "Event pull_request with action closed not processed" {
		t.Errorf("log ErrorMessage = %q", entry.ErrorMessage)
	}
}

func TestReceive_IgnoredEventKind(t *testing.T) {
	d, _, eng := newTestDispatcher(t, "")

	result, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "push",
		Body:      []byte(`{"ref": "refs/heads/main", "repository": {"full_name": "acme/widgets"}}`),
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if result.Status != "ignored" {
		t.Errorf("Status = %q, want %q", result.Status, "ignored")
	}
	if len(eng.events) != 0 {
		t.Errorf("engine saw %d events, want 0", len(eng.events))
	}
}

func TestReceive_AllowedActions(t *testing.T) {
	for _, action := range []string{"opened", "synchronize", "reopened"} {
		d, _, eng := newTestDispatcher(t, "")

		body := []byte(`{"action": "` + action + `", "repository": {"full_name": "acme/widgets"}, "pull_request": {"number": 1}}`)
		result, err := d.Receive(context.Background(), InboundDelivery{
			EventKind: "pull_request",
			Body:      body,
		})
		if err != nil {
			t.Fatalf("Receive(%s) error = %v", action, err)
		}
		if result.Status != "processed" {
			t.Errorf("Receive(%s): Status = %q, want processed", action, result.Status)
		}
		if len(eng.events) != 1 {
			t.Errorf("Receive(%s): engine saw %d events, want 1", action, len(eng.events))
		}
	}
}

// =========================================================================
// SIGNATURE TESTS
// =========================================================================

func TestReceive_ValidGlobalSignature(t *testing.T) {
	d, _, _ := newTestDispatcher(t, "global-secret")

	body := []byte(prOpenedBody)
	result, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Signature: sign("global-secret", body),
		Body:      body,
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if result.Status != "processed" {
		t.Errorf("Status = %q, want processed", result.Status)
	}
}

func TestReceive_InvalidSignature(t *testing.T) {
	d, repo, eng := newTestDispatcher(t, "global-secret")

	body := []byte(prOpenedBody)
	_, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Signature: sign("wrong-secret", body),
		Body:      body,
		OwnerID:   "user-a",
		WebhookID: "wh-1",
	})
	if !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Fatalf("error = %v, want ErrUnauthenticated", err)
	}
	if len(eng.events) != 0 {
		t.Errorf("engine saw %d events, want 0", len(eng.events))
	}

	entry := singleLog(t, repo)
	if entry.Status != model.DeliveryFailure {
		t.Errorf("log Status = %q, want failure", entry.Status)
	}
	if entry.ErrorMessage != "Invalid webhook signature" {
		t.Errorf("log ErrorMessage = %q", entry.ErrorMessage)
	}
}

// TestReceive_TamperedBody signs one body and delivers another. The HMAC
// is over the raw bytes, so any change to the payload must be caught.
func TestReceive_TamperedBody(t *testing.T) {
	d, _, _ := newTestDispatcher(t, "global-secret")

	signature := sign("global-secret", []byte(prOpenedBody))
	tampered := []byte(`{"action": "opened", "repository": {"full_name": "evil/repo"}, "pull_request": {"number": 1}}`)

	_, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Signature: signature,
		Body:      tampered,
	})
	if !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("error = %v, want ErrUnauthenticated", err)
	}
}

// TestReceive_WebhookSecretWins checks that an attributed registration's
// own secret takes precedence over the global one.
func TestReceive_WebhookSecretWins(t *testing.T) {
	d, repo, _ := newTestDispatcher(t, "global-secret")

	webhook := &model.Webhook{
		ID:      "wh-1",
		OwnerID: "user-a",
		Name:    "hook",
		Secret:  "per-hook-secret",
		Status:  model.WebhookActive,
	}
	if err := repo.SaveConfig(context.Background(), webhook); err != nil {
		t.Fatalf("setup: SaveConfig() error = %v", err)
	}

	body := []byte(prOpenedBody)

	// Signed with the per-hook secret: accepted.
	if _, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Signature: sign("per-hook-secret", body),
		Body:      body,
		OwnerID:   "user-a",
		WebhookID: "wh-1",
	}); err != nil {
		t.Fatalf("Receive() with per-hook signature error = %v", err)
	}

	// Signed with the global secret: rejected, the per-hook secret governs.
	_, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Signature: sign("global-secret", body),
		Body:      body,
		OwnerID:   "user-a",
		WebhookID: "wh-1",
	})
	if !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("error = %v, want ErrUnauthenticated", err)
	}
}

// TestReceive_NoSecretSkipsVerification covers the permissive default: with
// no secret configured anywhere, unsigned deliveries are accepted.
func TestReceive_NoSecretSkipsVerification(t *testing.T) {
	d, _, _ := newTestDispatcher(t, "")

	result, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Body:      []byte(prOpenedBody),
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if result.Status != "processed" {
		t.Errorf("Status = %q, want processed", result.Status)
	}
}

func TestReceive_NoSignatureHeaderSkipsVerification(t *testing.T) {
	d, _, _ := newTestDispatcher(t, "global-secret")

	// Secret configured but the sender sent no signature header at all.
	result, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Body:      []byte(prOpenedBody),
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if result.Status != "processed" {
		t.Errorf("Status = %q, want processed", result.Status)
	}
}

// =========================================================================
// FAILURE PATH TESTS
// =========================================================================

func TestReceive_MalformedBody(t *testing.T) {
	d, repo, _ := newTestDispatcher(t, "")

	_, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Body:      []byte(`{not json`),
		OwnerID:   "user-a",
		WebhookID: "wh-1",
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}

	entry := singleLog(t, repo)
	if entry.Status != model.DeliveryFailure {
		t.Errorf("log Status = %q, want failure", entry.Status)
	}
}

func TestReceive_EngineError(t *testing.T) {
	d, repo, eng := newTestDispatcher(t, "")
	eng.err = errors.New("no automation configured for repository")

	_, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Body:      []byte(prOpenedBody),
		OwnerID:   "user-a",
		WebhookID: "wh-1",
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}

	entry := singleLog(t, repo)
	if entry.Status != model.DeliveryFailure {
		t.Errorf("log Status = %q, want failure", entry.Status)
	}
	if entry.ErrorMessage != "no automation configured for repository" {
		t.Errorf("log ErrorMessage = %q", entry.ErrorMessage)
	}
}

// TestReceive_LogStoreFailureSwallowed checks that an unavailable log store
// never takes down delivery handling.
func TestReceive_LogStoreFailureSwallowed(t *testing.T) {
	d, repo, _ := newTestDispatcher(t, "")
	repo.saveLogErr = errors.New("store is down")

	result, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Body:      []byte(prOpenedBody),
		OwnerID:   "user-a",
		WebhookID: "wh-1",
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if result.Status != "processed" {
		t.Errorf("Status = %q, want processed", result.Status)
	}
}

// TestReceive_UnattributedDeliveryNotLogged: without a user attribution
// there is nowhere to file a delivery log.
func TestReceive_UnattributedDeliveryNotLogged(t *testing.T) {
	d, repo, _ := newTestDispatcher(t, "")

	if _, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Body:      []byte(prOpenedBody),
	}); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(repo.logs) != 0 {
		t.Errorf("have %d delivery logs, want 0", len(repo.logs))
	}
}

// TestReceive_PartialAttributionNotLogged: a user_id alone doesn't name a
// registration, so no delivery log is opened either.
func TestReceive_PartialAttributionNotLogged(t *testing.T) {
	d, repo, _ := newTestDispatcher(t, "")

	if _, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Body:      []byte(prOpenedBody),
		OwnerID:   "user-a",
	}); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(repo.logs) != 0 {
		t.Errorf("have %d delivery logs, want 0", len(repo.logs))
	}
}

// TestReceive_SecretLookupFailureFallsBack: when the registration can't be
// loaded, the global secret still applies rather than the delivery failing.
func TestReceive_SecretLookupFailureFallsBack(t *testing.T) {
	d, repo, _ := newTestDispatcher(t, "global-secret")
	repo.getErr = errors.New("store is down")

	body := []byte(prOpenedBody)
	result, err := d.Receive(context.Background(), InboundDelivery{
		EventKind: "pull_request",
		Signature: sign("global-secret", body),
		Body:      body,
		OwnerID:   "user-a",
		WebhookID: "wh-1",
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if result.Status != "processed" {
		t.Errorf("Status = %q, want processed", result.Status)
	}
}
