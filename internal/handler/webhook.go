package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/autohook/internal/apperror"
	"github.com/sakif/autohook/internal/auth"
	"github.com/sakif/autohook/internal/model"
	"github.com/sakif/autohook/internal/service"
)

// WebhookHandler manages CRUD for the authenticated user's webhook
// registrations plus read access to their delivery logs.
//
// Every route here sits behind RequireAuth: the owner ID always comes from
// the verified token in the request context, never from the request body.
// A client cannot name another user's webhooks — the service scopes every
// call to the caller.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
	logger     *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(webhookSvc *service.WebhookService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhookSvc: webhookSvc,
		logger:     logger,
	}
}

// createWebhookRequest is the JSON body for POST /api/webhooks/configs.
type createWebhookRequest struct {
	Name       string            `json:"name"`
	TargetURL  string            `json:"targetUrl"`
	Events     []model.EventKind `json:"events"`
	Repository string            `json:"repository"`
	Secret     string            `json:"secret"`
}

// updateWebhookRequest is the JSON body for PATCH. Pointer fields so an
// absent JSON key (nil) is distinguishable from an explicit empty value —
// that's what makes partial updates work.
type updateWebhookRequest struct {
	Name       *string              `json:"name"`
	TargetURL  *string              `json:"targetUrl"`
	Events     []model.EventKind    `json:"events"`
	Repository *string              `json:"repository"`
	Secret     *string              `json:"secret"`
	Status     *model.WebhookStatus `json:"status"`
}

// ownerID pulls the authenticated user's ID out of the request context.
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// Should never happen behind RequireAuth.
		writeError(w, apperror.Unauthenticated("missing credentials"))
		return "", false
	}
	return id, true
}

// HandleCreate registers a new webhook for the authenticated user.
//
// HTTP: POST /api/webhooks/configs
func (h *WebhookHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	webhook, err := h.webhookSvc.Create(r.Context(), owner, req.Name, req.TargetURL, req.Events, req.Repository, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, webhook.Response())
}

// HandleList returns all of the authenticated user's webhooks.
//
// HTTP: GET /api/webhooks/configs
func (h *WebhookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	webhooks, err := h.webhookSvc.List(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	// Always return a JSON array, never null.
	responses := make([]model.WebhookResponse, 0, len(webhooks))
	for i := range webhooks {
		responses = append(responses, webhooks[i].Response())
	}
	writeJSON(w, http.StatusOK, responses)
}

// HandleGet returns one of the authenticated user's webhooks.
//
// HTTP: GET /api/webhooks/configs/{id}
func (h *WebhookHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	webhook, err := h.webhookSvc.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, webhook.Response())
}

// HandleUpdate applies a partial update to one of the user's webhooks.
//
// HTTP: PATCH /api/webhooks/configs/{id}
func (h *WebhookHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req updateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	webhook, err := h.webhookSvc.Update(r.Context(), owner, chi.URLParam(r, "id"), service.UpdateParams{
		Name:       req.Name,
		TargetURL:  req.TargetURL,
		Events:     req.Events,
		Repository: req.Repository,
		Secret:     req.Secret,
		Status:     req.Status,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, webhook.Response())
}

// HandleDelete removes one of the user's webhooks. Idempotent: deleting a
// webhook that is already gone still returns 204.
//
// HTTP: DELETE /api/webhooks/configs/{id}
func (h *WebhookHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	if err := h.webhookSvc.Delete(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListLogs returns the user's delivery logs, newest first.
//
// HTTP: GET /api/webhooks/logs?webhook_id=xxx&limit=50
//
// webhook_id narrows to one registration; limit defaults to 50 and is
// capped at 100 by the service.
func (h *WebhookHandler) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, apperror.ValidationFailed("limit", "limit must be an integer"))
			return
		}
		limit = parsed
	}

	logs, err := h.webhookSvc.ListLogs(r.Context(), owner, r.URL.Query().Get("webhook_id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	if logs == nil {
		logs = []model.DeliveryLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// HandleGetLog returns a single delivery log by ID. Another user's log is
// a 404, same as the webhook routes.
//
// HTTP: GET /api/webhooks/logs/{id}
func (h *WebhookHandler) HandleGetLog(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	entry, err := h.webhookSvc.GetLog(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}
