package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/autohook/internal/apperror"
	"github.com/sakif/autohook/internal/service"
)

// maxInboundBodyBytes caps how much of an inbound delivery we will read.
// GitHub's own limit for webhook payloads is 25 MB; anything bigger is
// not a legitimate delivery.
const maxInboundBodyBytes = 25 << 20

// InboundHandler receives webhook deliveries from the outside world.
//
// THIS ROUTE IS UNAUTHENTICATED BY DESIGN. GitHub can't log in — the
// sender proves itself with the X-Hub-Signature-256 HMAC over the body,
// which the dispatcher verifies against the registration's secret. That is
// also why the handler passes the RAW body bytes through untouched: decode
// the JSON first and re-encode it, and no signature would ever match.
type InboundHandler struct {
	dispatcher *service.Dispatcher
	logger     *slog.Logger
}

// NewInboundHandler creates an InboundHandler.
func NewInboundHandler(dispatcher *service.Dispatcher, logger *slog.Logger) *InboundHandler {
	return &InboundHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleGitHub receives a GitHub-style webhook delivery.
//
// HTTP: POST /api/webhooks/github?user_id=xxx&webhook_id=yyy
//
// HEADERS:
//   - X-GitHub-Event: the event kind ("pull_request", "push", ...)
//   - X-Hub-Signature-256: "sha256=<hex hmac>" over the raw body, optional
//
// The query parameters attribute the delivery to a user's registration —
// they decide whose delivery log records it and whose secret verifies it.
// Both are optional; an unattributed delivery is verified against the
// global secret and leaves no log.
//
// Responses: 200 with {"status": "processed"|"ignored", ...} when handled,
// 401 on a bad signature, 400 on an unusable payload.
func (h *InboundHandler) HandleGitHub(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBodyBytes))
	if err != nil {
		h.logger.Warn("failed to read inbound delivery body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "could not read request body"))
		return
	}

	result, err := h.dispatcher.Receive(r.Context(), service.InboundDelivery{
		EventKind: r.Header.Get("X-GitHub-Event"),
		Signature: r.Header.Get("X-Hub-Signature-256"),
		Body:      body,
		OwnerID:   r.URL.Query().Get("user_id"),
		WebhookID: r.URL.Query().Get("webhook_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
