// Package store defines the keyed record store this service persists into.
//
// WHY A KEY-VALUE CONTRACT AND NOT A SQL REPOSITORY?
// User records, webhook configs, and delivery logs are read and written
// whole — there are no partial-row updates and no relational queries beyond
// "list everything under this prefix". A get/put/delete/list contract keeps
// the persistence pluggable: the sqlite implementation below is what ships,
// but a networked blob store satisfies the same four methods.
//
// KEY LAYOUT (illustrative — callers own their prefixes):
//
//	users/{id}
//	users/index/username/{normalized}
//	users/index/email/{normalized}
//	webhooks/configs/{ownerID}/{webhookID}
//	webhooks/logs/{ownerID}/{logID}
//
// NO ATOMIC PRIMITIVES:
// The contract has no compare-and-swap. Two concurrent writers to the same
// key race and the last writer wins. Callers that check-then-write (for
// example uniqueness checks before registration) inherit that race; it is
// documented at the call sites rather than papered over here.
package store

import (
	"context"

	"github.com/sakif/autohook/internal/apperror"
)

// RecordStore is a persisted keyed blob store.
//
// Get returns apperror.ErrNotFound (wrapped) when the key is absent —
// callers distinguish "missing" from "failed" with errors.Is, because
// behaviours like idempotent delete depend on that distinction.
type RecordStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// NotFound builds the canonical missing-key error for implementations.
func NotFound(key string) error {
	return apperror.NotFound("record", key)
}
