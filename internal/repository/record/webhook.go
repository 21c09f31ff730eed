package record

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sakif/autohook/internal/apperror"
	"github.com/sakif/autohook/internal/model"
	"github.com/sakif/autohook/internal/repository"
	"github.com/sakif/autohook/internal/store"
)

// compile-time check that *WebhookRepo implements repository.WebhookRepository
var _ repository.WebhookRepository = (*WebhookRepo)(nil)

const (
	configPrefix = "webhooks/configs/"
	logPrefix    = "webhooks/logs/"
)

// WebhookRepo persists webhook registrations and delivery logs.
//
// PER-OWNER KEYING IS THE ISOLATION MECHANISM:
// Config and log keys embed the owner ID (`webhooks/configs/{owner}/{id}`),
// so every read and list is scoped to one owner by construction. A lookup
// with the wrong owner doesn't hit a permission check — it just misses,
// and the caller sees NotFound. That is deliberate: reporting Forbidden
// would confirm that someone else's webhook ID exists.
type WebhookRepo struct {
	records store.RecordStore
}

// NewWebhookRepo creates a WebhookRepo over the given record store.
func NewWebhookRepo(records store.RecordStore) *WebhookRepo {
	return &WebhookRepo{records: records}
}

func configKey(ownerID, webhookID string) string {
	return configPrefix + ownerID + "/" + webhookID
}

func logKey(ownerID, logID string) string {
	return logPrefix + ownerID + "/" + logID
}

// SaveConfig persists a webhook registration under its owner.
func (r *WebhookRepo) SaveConfig(ctx context.Context, webhook *model.Webhook) error {
	if webhook.OwnerID == "" {
		return fmt.Errorf("record: webhook %s has no owner", webhook.ID)
	}
	data, err := json.Marshal(webhook)
	if err != nil {
		return fmt.Errorf("record: encoding webhook %s: %w", webhook.ID, err)
	}
	if err := r.records.Put(ctx, configKey(webhook.OwnerID, webhook.ID), data); err != nil {
		return fmt.Errorf("record: saving webhook %s: %w", webhook.ID, err)
	}
	return nil
}

// GetConfig loads one webhook registration scoped to ownerID.
func (r *WebhookRepo) GetConfig(ctx context.Context, ownerID, webhookID string) (*model.Webhook, error) {
	data, err := r.records.Get(ctx, configKey(ownerID, webhookID))
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("webhook", webhookID)
		}
		return nil, fmt.Errorf("record: getting webhook %s: %w", webhookID, err)
	}

	var webhook model.Webhook
	if err := json.Unmarshal(data, &webhook); err != nil {
		return nil, fmt.Errorf("record: decoding webhook %s: %w", webhookID, err)
	}

	// Defensive check on the stored owner. The key already scopes the
	// lookup, but a record written under the wrong key must not leak.
	if webhook.OwnerID != ownerID {
		return nil, apperror.NotFound("webhook", webhookID)
	}
	return &webhook, nil
}

// DeleteConfig removes a registration. Absent IDs are a silent success.
func (r *WebhookRepo) DeleteConfig(ctx context.Context, ownerID, webhookID string) error {
	if err := r.records.Delete(ctx, configKey(ownerID, webhookID)); err != nil {
		return fmt.Errorf("record: deleting webhook %s: %w", webhookID, err)
	}
	return nil
}

// ListConfigs returns all registrations for one owner, in store key order.
func (r *WebhookRepo) ListConfigs(ctx context.Context, ownerID string) ([]model.Webhook, error) {
	keys, err := r.records.List(ctx, configPrefix+ownerID+"/")
	if err != nil {
		return nil, fmt.Errorf("record: listing webhooks for %s: %w", ownerID, err)
	}

	webhooks := make([]model.Webhook, 0, len(keys))
	for _, key := range keys {
		data, err := r.records.Get(ctx, key)
		if err != nil {
			if isNotFound(err) {
				continue // deleted between list and get; skip
			}
			return nil, fmt.Errorf("record: reading %s: %w", key, err)
		}
		var webhook model.Webhook
		if err := json.Unmarshal(data, &webhook); err != nil {
			// A corrupt record should not take down the whole listing.
			continue
		}
		if webhook.OwnerID == ownerID {
			webhooks = append(webhooks, webhook)
		}
	}
	return webhooks, nil
}

// SaveLog persists a delivery log entry under its owner.
func (r *WebhookRepo) SaveLog(ctx context.Context, log *model.DeliveryLog) error {
	if log.OwnerID == "" {
		return fmt.Errorf("record: delivery log %s has no owner", log.ID)
	}
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("record: encoding log %s: %w", log.ID, err)
	}
	if err := r.records.Put(ctx, logKey(log.OwnerID, log.ID), data); err != nil {
		return fmt.Errorf("record: saving log %s: %w", log.ID, err)
	}
	return nil
}

// GetLog loads one of an owner's delivery logs. Absent logs and logs
// belonging to another owner both come back NotFound.
func (r *WebhookRepo) GetLog(ctx context.Context, ownerID, logID string) (*model.DeliveryLog, error) {
	data, err := r.records.Get(ctx, logKey(ownerID, logID))
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("delivery log", logID)
		}
		return nil, fmt.Errorf("record: getting log %s: %w", logID, err)
	}

	var entry model.DeliveryLog
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("record: decoding log %s: %w", logID, err)
	}
	// The key already scopes by owner; the stored field is checked anyway
	// so a mis-keyed record can't leak across accounts.
	if entry.OwnerID != ownerID {
		return nil, apperror.NotFound("delivery log", logID)
	}
	return &entry, nil
}

// ListLogs returns an owner's delivery logs newest-first, optionally
// filtered by webhook, truncated to limit.
func (r *WebhookRepo) ListLogs(ctx context.Context, ownerID, webhookID string, limit int) ([]model.DeliveryLog, error) {
	keys, err := r.records.List(ctx, logPrefix+ownerID+"/")
	if err != nil {
		return nil, fmt.Errorf("record: listing logs for %s: %w", ownerID, err)
	}

	logs := make([]model.DeliveryLog, 0, len(keys))
	for _, key := range keys {
		data, err := r.records.Get(ctx, key)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("record: reading %s: %w", key, err)
		}
		var entry model.DeliveryLog
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.OwnerID != ownerID {
			continue
		}
		if webhookID != "" && entry.WebhookID != webhookID {
			continue
		}
		logs = append(logs, entry)
	}

	// Newest first. Sorting happens after the filter so limit applies to
	// the most recent matching entries, not the most recent keys.
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}
