// Package outbox persists lifecycle events until the relay has handed them
// to the broker. A crash between order persistence and publication delays the
// event; it never loses it.
package outbox

import (
	"context"

	"printhub/internal/events"
)

// Entry is a stored event awaiting publication. Aliased from the events
// package so implementations here satisfy the relay's source contract.
type Entry = events.OutboxEntry

// Store is the outbox contract. Append must be cheap and local to the
// service; FetchPending returns entries oldest-first so per-order sequence
// order survives the relay.
type Store interface {
	Append(ctx context.Context, event events.LifecycleEvent) error
	FetchPending(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []int64) error
}
