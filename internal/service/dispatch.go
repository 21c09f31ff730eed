package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/autohook/internal/apperror"
	"github.com/sakif/autohook/internal/engine"
	"github.com/sakif/autohook/internal/metrics"
	"github.com/sakif/autohook/internal/model"
	"github.com/sakif/autohook/internal/repository"
)

// signaturePrefix is how GitHub prefixes the hex HMAC digest in the
// X-Hub-Signature-256 header.
const signaturePrefix = "sha256="

// processedActions is the allow-list of pull_request actions forwarded to
// the automation engine. Everything else is acknowledged and logged but
// never processed.
var processedActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

// InboundDelivery is one raw inbound webhook delivery as it arrived on the
// wire. Body must be the VERBATIM request bytes — the HMAC signature is
// computed over exactly what the sender sent, so a decoded-and-re-encoded
// payload would never verify.
type InboundDelivery struct {
	EventKind string // X-GitHub-Event header
	Signature string // X-Hub-Signature-256 header, may be empty
	Body      []byte
	OwnerID   string // optional attribution, from the callback URL
	WebhookID string // optional attribution, from the callback URL
}

// DispatchResult is the dispatcher's answer for an accepted delivery.
type DispatchResult struct {
	Status  string `json:"status"` // "processed" or "ignored"
	Message string `json:"message"`
	Event   string `json:"event"`
	Action  string `json:"action,omitempty"`
}

// Dispatcher receives raw inbound webhook deliveries, verifies their HMAC
// signatures, records a delivery log, and forwards allow-listed events to
// the automation engine.
//
// globalSecret is the process-wide fallback signing secret: a delivery
// attributed to a registration with its own Secret is verified against
// that, everything else against globalSecret. When BOTH are absent (or the
// sender sent no signature header) verification is skipped entirely — a
// permissive default that keeps unsecured development setups working.
type Dispatcher struct {
	webhooks     repository.WebhookRepository
	engine       engine.Engine
	metrics      metrics.Recorder
	globalSecret string
	logger       *slog.Logger
}

// NewDispatcher creates a Dispatcher. globalSecret may be empty.
func NewDispatcher(
	webhooks repository.WebhookRepository,
	eng engine.Engine,
	rec metrics.Recorder,
	globalSecret string,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		webhooks:     webhooks,
		engine:       eng,
		metrics:      rec,
		globalSecret: globalSecret,
		logger:       logger,
	}
}

// Receive handles one inbound delivery end to end:
//
//  1. Best-effort parse of the body for attribution fields (repository,
//     action, PR number). A malformed body is NOT an error yet — it still
//     gets logged, and may still fail signature verification first.
//  2. If the delivery is attributed to a user's registration (both
//     user_id and webhook_id on the callback URL), open a PENDING
//     delivery log.
//     Log-store failures are swallowed: the audit trail is best-effort and
//     must never take down delivery handling.
//  3. Verify the HMAC signature against the verified secret for this
//     delivery. Mismatch finalizes the log as FAILURE and returns
//     Unauthenticated.
//  4. Allow-listed pull_request actions go to the automation engine;
//     everything else is acknowledged as ignored. Both outcomes finalize
//     the log exactly once.
func (d *Dispatcher) Receive(ctx context.Context, delivery InboundDelivery) (*DispatchResult, error) {
	payload, action, repo, prNumber := parsePayload(delivery.Body)

	logEntry := d.openLog(ctx, delivery, payload, repo, prNumber)

	if err := d.verifySignature(ctx, delivery); err != nil {
		d.finalizeLog(ctx, logEntry, model.DeliveryFailure, http.StatusUnauthorized, "", "Invalid webhook signature")
		d.metrics.RecordDelivery(metrics.OutcomeRejected)
		return nil, err
	}

	// A body that never parsed can't be dispatched, but it passed signature
	// verification, so the sender is legitimate — tell them what's wrong.
	if payload == nil {
		d.finalizeLog(ctx, logEntry, model.DeliveryFailure, http.StatusBadRequest, "", "Invalid JSON payload")
		d.metrics.RecordDelivery(metrics.OutcomeFailed)
		return nil, apperror.ValidationFailed("payload", "request body is not valid JSON")
	}

	if delivery.EventKind != string(model.EventPullRequest) || !processedActions[action] {
		msg := fmt.Sprintf("Event %s with action %s not processed", delivery.EventKind, action)
		d.finalizeLog(ctx, logEntry, model.DeliverySuccess, http.StatusOK, "", msg)
		d.metrics.RecordDelivery(metrics.OutcomeIgnored)
		d.logger.Info("delivery ignored",
			slog.String("event", delivery.EventKind),
			slog.String("action", action),
		)
		return &DispatchResult{
			Status:  "ignored",
			Message: msg,
			Event:   delivery.EventKind,
			Action:  action,
		}, nil
	}

	event := pullRequestEventFrom(payload, action, repo, prNumber, delivery.OwnerID)

	result, err := d.engine.ProcessPullRequestEvent(ctx, event)
	if err != nil {
		d.finalizeLog(ctx, logEntry, model.DeliveryFailure, http.StatusBadRequest, "", err.Error())
		d.metrics.RecordDelivery(metrics.OutcomeFailed)
		d.logger.Error("engine rejected pull request event",
			slog.String("repository", repo),
			slog.Int("pr_number", prNumber),
			slog.String("error", err.Error()),
		)
		return nil, apperror.ValidationFailed("payload",
			fmt.Sprintf("error processing webhook: %s", err))
	}

	d.finalizeLog(ctx, logEntry, model.DeliverySuccess, result.StatusCode, result.Message, "")
	d.metrics.RecordDelivery(metrics.OutcomeProcessed)
	d.logger.Info("delivery processed",
		slog.String("repository", repo),
		slog.Int("pr_number", prNumber),
		slog.String("action", action),
	)

	return &DispatchResult{
		Status:  "processed",
		Message: result.Message,
		Event:   delivery.EventKind,
		Action:  action,
	}, nil
}

// verifySignature checks the delivery's HMAC-SHA256 signature when both a
// secret and a signature header are present.
//
// The secret is resolved per delivery: the attributed registration's own
// Secret wins, then the global secret. A failed registration lookup falls
// back to the global secret rather than failing the delivery — the store
// being briefly unavailable shouldn't bounce signed deliveries.
func (d *Dispatcher) verifySignature(ctx context.Context, delivery InboundDelivery) error {
	secret := d.globalSecret
	if delivery.OwnerID != "" && delivery.WebhookID != "" {
		webhook, err := d.webhooks.GetConfig(ctx, delivery.OwnerID, delivery.WebhookID)
		switch {
		case err == nil && webhook.Secret != "":
			secret = webhook.Secret
		case err != nil:
			d.logger.Warn("could not resolve webhook for secret lookup",
				slog.String("owner_id", delivery.OwnerID),
				slog.String("webhook_id", delivery.WebhookID),
				slog.String("error", err.Error()),
			)
		}
	}

	if secret == "" || delivery.Signature == "" {
		return nil
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(delivery.Body)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))

	// hmac.Equal is constant-time — a naive == would leak, byte by byte,
	// how much of a guessed signature was correct.
	if !hmac.Equal([]byte(expected), []byte(delivery.Signature)) {
		d.logger.Warn("invalid webhook signature",
			slog.String("event", delivery.EventKind),
			slog.String("owner_id", delivery.OwnerID),
		)
		return apperror.Unauthenticated("Invalid webhook signature")
	}
	return nil
}

// openLog creates a PENDING delivery log when the delivery is fully
// attributed — both the owner and the registration must be named on the
// callback URL; either one alone isn't attribution. Returns nil (and logs)
// when attribution is missing or the save fails; every later finalizeLog
// call tolerates a nil entry.
func (d *Dispatcher) openLog(ctx context.Context, delivery InboundDelivery, payload map[string]any, repo string, prNumber int) *model.DeliveryLog {
	if delivery.OwnerID == "" || delivery.WebhookID == "" {
		return nil
	}

	entry := &model.DeliveryLog{
		ID:             xid.New().String(),
		WebhookID:      delivery.WebhookID,
		OwnerID:        delivery.OwnerID,
		EventKind:      delivery.EventKind,
		Repository:     repo,
		PRNumber:       prNumber,
		Status:         model.DeliveryPending,
		RequestPayload: payload,
		CreatedAt:      time.Now().UTC(),
	}

	if err := d.webhooks.SaveLog(ctx, entry); err != nil {
		d.logger.Error("failed to create delivery log",
			slog.String("owner_id", delivery.OwnerID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return entry
}

// finalizeLog transitions a PENDING log to its terminal status. Best-effort:
// a nil entry is skipped and save failures are logged, never propagated.
func (d *Dispatcher) finalizeLog(ctx context.Context, entry *model.DeliveryLog, status model.DeliveryStatus, responseStatus int, responseBody, errorMessage string) {
	if entry == nil {
		return
	}

	entry.Status = status
	entry.ResponseStatus = responseStatus
	entry.ResponseBody = responseBody
	entry.ErrorMessage = errorMessage

	if err := d.webhooks.SaveLog(ctx, entry); err != nil {
		d.logger.Error("failed to finalize delivery log",
			slog.String("log_id", entry.ID),
			slog.String("error", err.Error()),
		)
	}
}

// parsePayload pulls the attribution fields out of a GitHub-style payload.
// Returns a nil map when the body isn't valid JSON; the fields come back
// zero-valued when absent.
func parsePayload(body []byte) (payload map[string]any, action, repo string, prNumber int) {
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", "", 0
	}

	action, _ = payload["action"].(string)
	if r, ok := payload["repository"].(map[string]any); ok {
		repo, _ = r["full_name"].(string)
	}
	if pr, ok := payload["pull_request"].(map[string]any); ok {
		// JSON numbers decode to float64 through map[string]any.
		if n, ok := pr["number"].(float64); ok {
			prNumber = int(n)
		}
	}
	return payload, action, repo, prNumber
}

// pullRequestEventFrom builds the engine's event from an allow-listed
// pull_request payload.
func pullRequestEventFrom(payload map[string]any, action, repo string, prNumber int, userID string) engine.PullRequestEvent {
	event := engine.PullRequestEvent{
		Repository: repo,
		Number:     prNumber,
		Action:     action,
		UserID:     userID,
	}

	if pr, ok := payload["pull_request"].(map[string]any); ok {
		event.Title, _ = pr["title"].(string)
		event.Body, _ = pr["body"].(string)
		if head, ok := pr["head"].(map[string]any); ok {
			event.HeadBranch, _ = head["ref"].(string)
		}
		if base, ok := pr["base"].(map[string]any); ok {
			event.BaseBranch, _ = base["ref"].(string)
		}
		if user, ok := pr["user"].(map[string]any); ok {
			event.Sender, _ = user["login"].(string)
		}
	}
	return event
}
