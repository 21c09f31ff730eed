package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/autohook/internal/apperror"
	"github.com/sakif/autohook/internal/model"
	"github.com/sakif/autohook/internal/repository"
)

// Validation constants for webhook registrations.
const (
	MaxWebhookNameLength = 100
	DefaultLogLimit      = 50
	MaxLogLimit          = 100
)

// WebhookService handles CRUD for a user's webhook registrations and reads
// of their delivery logs. Every method takes the OWNER's user ID first:
// callers never see registrations belonging to anyone else.
type WebhookService struct {
	webhooks repository.WebhookRepository
	logger   *slog.Logger
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(webhooks repository.WebhookRepository, logger *slog.Logger) *WebhookService {
	return &WebhookService{
		webhooks: webhooks,
		logger:   logger,
	}
}

// UpdateParams carries a partial update. Nil pointer means "leave as is";
// a nil Events slice likewise. This is how PATCH semantics survive the trip
// through a typed language — an absent JSON field decodes to nil.
type UpdateParams struct {
	Name       *string
	TargetURL  *string
	Events     []model.EventKind
	Repository *string
	Secret     *string
	Status     *model.WebhookStatus
}

// Create validates and saves a new webhook registration for ownerID.
//
// Defaults: an empty events list becomes ["all"] (subscribe to everything),
// and new registrations start active.
func (s *WebhookService) Create(ctx context.Context, ownerID, name, targetURL string, events []model.EventKind, repo, secret string) (*model.Webhook, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		return nil, apperror.ValidationFailed("name", "webhook name is required")
	}
	if len(name) > MaxWebhookNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("webhook name must be %d characters or less", MaxWebhookNameLength))
	}
	if err := validateTargetURL(targetURL); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		events = []model.EventKind{model.EventAll}
	}
	for _, ev := range events {
		if !ev.Valid() {
			return nil, apperror.ValidationFailed("events",
				fmt.Sprintf("unknown event kind %q", ev))
		}
	}

	now := time.Now().UTC()
	webhook := &model.Webhook{
		ID:         xid.New().String(),
		OwnerID:    ownerID,
		Name:       name,
		TargetURL:  targetURL,
		Events:     events,
		Repository: strings.TrimSpace(repo),
		Secret:     secret,
		Status:     model.WebhookActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.webhooks.SaveConfig(ctx, webhook); err != nil {
		s.logger.Error("failed to save webhook",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("saving webhook: %w", err)
	}

	s.logger.Info("webhook created",
		slog.String("id", webhook.ID),
		slog.String("owner_id", ownerID),
		slog.String("name", webhook.Name),
	)

	return webhook, nil
}

// Get fetches one of ownerID's webhooks. A webhook that exists but belongs
// to a different user comes back as NotFound, exactly like one that never
// existed — ownership is never disclosed across accounts.
func (s *WebhookService) Get(ctx context.Context, ownerID, webhookID string) (*model.Webhook, error) {
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return nil, apperror.ValidationFailed("id", "webhook ID is required")
	}
	return s.webhooks.GetConfig(ctx, ownerID, webhookID)
}

// List returns all of ownerID's webhook registrations.
func (s *WebhookService) List(ctx context.Context, ownerID string) ([]model.Webhook, error) {
	webhooks, err := s.webhooks.ListConfigs(ctx, ownerID)
	if err != nil {
		s.logger.Error("failed to list webhooks",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	return webhooks, nil
}

// Update applies a partial update to one of ownerID's webhooks.
//
// STRATEGY: fetch then update. The fetch enforces ownership (NotFound for
// anyone else's webhook), the provided fields are validated and applied,
// and UpdatedAt is refreshed only when something was actually saved.
func (s *WebhookService) Update(ctx context.Context, ownerID, webhookID string, params UpdateParams) (*model.Webhook, error) {
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return nil, apperror.ValidationFailed("id", "webhook ID is required")
	}

	webhook, err := s.webhooks.GetConfig(ctx, ownerID, webhookID)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, apperror.ValidationFailed("name", "webhook name is required")
		}
		if len(name) > MaxWebhookNameLength {
			return nil, apperror.ValidationFailed("name",
				fmt.Sprintf("webhook name must be %d characters or less", MaxWebhookNameLength))
		}
		webhook.Name = name
	}
	if params.TargetURL != nil {
		if err := validateTargetURL(*params.TargetURL); err != nil {
			return nil, err
		}
		webhook.TargetURL = *params.TargetURL
	}
	if params.Events != nil {
		if len(params.Events) == 0 {
			return nil, apperror.ValidationFailed("events", "events list cannot be empty")
		}
		for _, ev := range params.Events {
			if !ev.Valid() {
				return nil, apperror.ValidationFailed("events",
					fmt.Sprintf("unknown event kind %q", ev))
			}
		}
		webhook.Events = params.Events
	}
	if params.Repository != nil {
		webhook.Repository = strings.TrimSpace(*params.Repository)
	}
	if params.Secret != nil {
		webhook.Secret = *params.Secret
	}
	if params.Status != nil {
		if !params.Status.Valid() {
			return nil, apperror.ValidationFailed("status",
				fmt.Sprintf("unknown status %q", *params.Status))
		}
		webhook.Status = *params.Status
	}

	webhook.UpdatedAt = time.Now().UTC()

	if err := s.webhooks.SaveConfig(ctx, webhook); err != nil {
		s.logger.Error("failed to update webhook",
			slog.String("id", webhookID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating webhook: %w", err)
	}

	s.logger.Info("webhook updated",
		slog.String("id", webhook.ID),
		slog.String("owner_id", ownerID),
	)

	return webhook, nil
}

// Delete removes one of ownerID's webhooks. Deleting a webhook that does
// not exist (or belongs to someone else) is a silent no-op — delete is
// idempotent.
func (s *WebhookService) Delete(ctx context.Context, ownerID, webhookID string) error {
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return apperror.ValidationFailed("id", "webhook ID is required")
	}

	if err := s.webhooks.DeleteConfig(ctx, ownerID, webhookID); err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}

	s.logger.Info("webhook deleted",
		slog.String("id", webhookID),
		slog.String("owner_id", ownerID),
	)
	return nil
}

// GetLog fetches a single delivery log by ID. The same ownership rule as
// Get applies: another user's log is NotFound, not Forbidden.
func (s *WebhookService) GetLog(ctx context.Context, ownerID, logID string) (*model.DeliveryLog, error) {
	logID = strings.TrimSpace(logID)
	if logID == "" {
		return nil, apperror.ValidationFailed("id", "log ID is required")
	}
	return s.webhooks.GetLog(ctx, ownerID, logID)
}

// ListLogs returns ownerID's delivery logs, newest first. webhookID is
// optional: empty means logs across all of the owner's webhooks. limit is
// clamped to 1..MaxLogLimit, defaulting to DefaultLogLimit.
func (s *WebhookService) ListLogs(ctx context.Context, ownerID, webhookID string, limit int) ([]model.DeliveryLog, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}

	logs, err := s.webhooks.ListLogs(ctx, ownerID, strings.TrimSpace(webhookID), limit)
	if err != nil {
		s.logger.Error("failed to list delivery logs",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing delivery logs: %w", err)
	}
	return logs, nil
}

// validateTargetURL accepts only absolute http/https URLs with a host.
// "example.com/hook" (no scheme) parses fine but is not something we can
// deliver to, so it is rejected too.
func validateTargetURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return apperror.ValidationFailed("url", "target URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return apperror.ValidationFailed("url", "target URL is not a valid URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperror.ValidationFailed("url", "target URL must be an absolute http or https URL")
	}
	return nil
}
