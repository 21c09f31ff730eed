// Package engine defines the automation engine that validated webhook
// events are handed to. The dispatcher doesn't care what the engine does —
// it cares about the contract: take a structured pull-request event, return
// a status, or fail.
package engine

import (
	"context"
	"log/slog"
	"net/http"
)

// PullRequestEvent is the minimal structured payload forwarded to the
// engine after an inbound delivery is verified and allow-listed. Fields are
// extracted from the provider payload; UserID carries the attributed owner
// when the delivery named one.
type PullRequestEvent struct {
	Repository string // full name, e.g. "octocat/hello-world"
	Number     int
	Title      string
	Body       string
	HeadBranch string
	BaseBranch string
	Action     string // opened | synchronize | reopened
	Sender     string // provider login of whoever triggered the event
	UserID     string // attributed owner, may be empty
}

// Result is what the engine reports back for a processed event.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message,omitempty"`
}

// Engine processes recognized pull-request events.
//
// CANCELLATION CONTRACT:
// Implementations receive a context for propagating deadlines into their
// own I/O, but the dispatcher deliberately calls with a context that is
// not cancelled mid-flight once signature verification has passed — a
// half-applied automation trigger is worse than a slow response.
type Engine interface {
	ProcessPullRequestEvent(ctx context.Context, event PullRequestEvent) (*Result, error)
}

// Local is the in-process engine used when no external automation backend
// is configured. It acknowledges events after logging them, which keeps
// the delivery pipeline (and its logs) fully exercisable in deployments
// that haven't attached a real engine yet.
type Local struct {
	logger *slog.Logger
}

// NewLocal creates a Local engine.
func NewLocal(logger *slog.Logger) *Local {
	return &Local{logger: logger}
}

// ProcessPullRequestEvent logs the event and reports 202 Accepted.
func (l *Local) ProcessPullRequestEvent(_ context.Context, event PullRequestEvent) (*Result, error) {
	l.logger.Info("pull request event accepted",
		slog.String("repository", event.Repository),
		slog.Int("prNumber", event.Number),
		slog.String("action", event.Action),
		slog.String("sender", event.Sender),
		slog.String("userID", event.UserID),
	)
	return &Result{StatusCode: http.StatusAccepted, Message: "queued"}, nil
}
