// Package repository declares the persistence interfaces the service layer
// depends on. Concrete implementations live in subpackages (record is the
// record-store-backed one); services only ever see these interfaces, so
// tests can substitute in-memory fakes and the storage backend can change
// without touching business logic.
package repository

import (
	"context"

	"github.com/sakif/autohook/internal/model"
)

// UserRepository reads and writes user accounts.
//
// Username and email lookups are case-insensitive: implementations index
// by a normalized (lowercased) form. Get methods return an error wrapping
// apperror.ErrNotFound when no user matches.
type UserRepository interface {
	// Save persists the user and refreshes the username/email indexes.
	// Used both for creation and for updates (e.g. last_login).
	Save(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// WebhookRepository reads and writes webhook registrations and their
// delivery logs. All operations are scoped to an owner: records are keyed
// under the owner's ID, so one user's queries can never surface another
// user's data.
type WebhookRepository interface {
	SaveConfig(ctx context.Context, webhook *model.Webhook) error
	// GetConfig returns ErrNotFound both when the webhook is absent and
	// when it exists under a different owner — hiding existence is the
	// point of per-owner keying.
	GetConfig(ctx context.Context, ownerID, webhookID string) (*model.Webhook, error)
	// DeleteConfig is idempotent: deleting an absent webhook succeeds.
	DeleteConfig(ctx context.Context, ownerID, webhookID string) error
	ListConfigs(ctx context.Context, ownerID string) ([]model.Webhook, error)

	SaveLog(ctx context.Context, log *model.DeliveryLog) error
	// GetLog follows the same hiding rule as GetConfig: absent logs and
	// other owners' logs are both ErrNotFound.
	GetLog(ctx context.Context, ownerID, logID string) (*model.DeliveryLog, error)
	// ListLogs returns the owner's delivery logs newest-first, optionally
	// filtered to one webhook, truncated to limit.
	ListLogs(ctx context.Context, ownerID, webhookID string, limit int) ([]model.DeliveryLog, error)
}
