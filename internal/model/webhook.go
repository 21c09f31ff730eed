package model

import "time"

// EventKind identifies the category of inbound events a webhook subscribes to.
type EventKind string

// Event kinds a registration can subscribe to. EventAll matches everything.
const (
	EventPullRequest EventKind = "pull_request"
	EventPush        EventKind = "push"
	EventIssue       EventKind = "issue"
	EventComment     EventKind = "comment"
	EventAll         EventKind = "all"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventPullRequest, EventPush, EventIssue, EventComment, EventAll:
		return true
	}
	return false
}

// WebhookStatus is the lifecycle state of a webhook registration.
type WebhookStatus string

const (
	WebhookActive   WebhookStatus = "active"
	WebhookInactive WebhookStatus = "inactive"
)

// Valid reports whether s is one of the known lifecycle states.
func (s WebhookStatus) Valid() bool {
	return s == WebhookActive || s == WebhookInactive
}

// Webhook is a user-owned registration describing where and when to forward
// inbound events.
//
// OWNERSHIP INVARIANT:
// Every read/write/delete of a Webhook must verify OwnerID against the
// requesting user before returning or mutating anything. The record store
// keys webhooks under the owner's ID, so a lookup with the wrong owner
// simply misses — which is exactly the behaviour we want: other users'
// webhooks should be indistinguishable from webhooks that don't exist.
//
// Secret is the per-registration HMAC signing secret. Like PasswordHash on
// User, it is persisted with the record but stripped from API responses
// via WebhookResponse.
type Webhook struct {
	ID         string        `json:"webhookId"`
	OwnerID    string        `json:"ownerId"`
	Name       string        `json:"name"`
	TargetURL  string        `json:"targetUrl"`
	Events     []EventKind   `json:"events"`
	Repository string        `json:"repository,omitempty"` // owner/repo filter, empty = all
	Secret     string        `json:"secret,omitempty"`
	Status     WebhookStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// WebhookResponse is the client-facing view of a Webhook (no secret).
type WebhookResponse struct {
	ID         string        `json:"webhookId"`
	Name       string        `json:"name"`
	TargetURL  string        `json:"targetUrl"`
	Events     []EventKind   `json:"events"`
	Repository string        `json:"repository,omitempty"`
	Status     WebhookStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Response converts a Webhook to its client-facing representation.
func (w *Webhook) Response() WebhookResponse {
	return WebhookResponse{
		ID:         w.ID,
		Name:       w.Name,
		TargetURL:  w.TargetURL,
		Events:     w.Events,
		Repository: w.Repository,
		Status:     w.Status,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
}

// DeliveryStatus tracks the outcome of one inbound delivery attempt.
//
// Lifecycle: a log is created PENDING as soon as a delivery is attributable
// to a user+webhook, then transitions exactly once to SUCCESS or FAILURE.
// Logs are append-only after that — never mutated again, never deleted here.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailure DeliveryStatus = "failure"
)

// DeliveryLog is an audit record of one inbound webhook processing attempt.
//
// A log only exists for deliveries attributed to a registration, so both
// OwnerID and WebhookID are always set. RequestPayload holds the parsed body as raw
// JSON so the log is self-contained for later inspection; storing the
// re-serialized form is fine here because the signature was already checked
// against the verbatim bytes before the log is finalized.
type DeliveryLog struct {
	ID             string         `json:"logId"`
	WebhookID      string         `json:"webhookId,omitempty"`
	OwnerID        string         `json:"ownerId"`
	EventKind      string         `json:"eventKind"`
	Repository     string         `json:"repository,omitempty"`
	PRNumber       int            `json:"prNumber,omitempty"`
	Status         DeliveryStatus `json:"status"`
	RequestPayload map[string]any `json:"requestPayload,omitempty"`
	ResponseStatus int            `json:"responseStatus,omitempty"`
	ResponseBody   string         `json:"responseBody,omitempty"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}
