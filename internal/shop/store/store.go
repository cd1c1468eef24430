// Package store provides shop persistence. Two implementations exist: an
// in-memory store for tests and single-node development, and a MongoDB store
// backed by a 2dsphere index for production.
package store

import (
	"context"

	"printhub/internal/shop/models"
)

// CapacityPatch carries the administrative capacity fields that may be
// reconfigured. Nil fields are left untouched. CurrentQueue is deliberately
// absent: only the conditional admit/release operations may move it.
type CapacityPatch struct {
	MaxQueue       *int
	ProcessingRate *int
}

// Store is the shop persistence contract.
//
// TryAdmit and Release are the per-shop serialization points backing the
// capacity ledger. TryAdmit must atomically verify currentQueue < maxQueue
// and increment, returning sentinel.ErrCapacityExceeded without mutation when
// the queue is full. Release must atomically decrement, never below zero.
type Store interface {
	Create(ctx context.Context, shop *models.Shop) error
	Get(ctx context.Context, id string) (*models.Shop, error)

	// FindNearby returns active shops within radiusKm of origin, nearest
	// first, capped at limit.
	FindNearby(ctx context.Context, origin models.GeoPoint, radiusKm float64, limit int) ([]*models.Shop, error)

	TryAdmit(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error

	// UpdateCapacity applies a CapacityPatch. A MaxQueue below the live
	// currentQueue would break the queue invariant and must be rejected
	// with sentinel.ErrConflict.
	UpdateCapacity(ctx context.Context, id string, patch CapacityPatch) (*models.Shop, error)
	SetActive(ctx context.Context, id string, active bool) (*models.Shop, error)
}
