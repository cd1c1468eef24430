// Package store persists orders. Two implementations share the contract: an
// in-memory map for tests and single-instance runs, and a mongo-backed store
// for real deployments.
package store

import (
	"context"

	"printhub/internal/order/models"
)

// Store is the order persistence contract.
//
// Update is compare-and-swap on Version: it persists the order only if the
// stored version is exactly order.Version-1, returning sentinel.ErrConflict
// otherwise. Callers re-load and re-apply on conflict. List methods return
// newest-first.
type Store interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	ListByRequester(ctx context.Context, requesterID string) ([]*models.Order, error)
	ListByShop(ctx context.Context, shopID string) ([]*models.Order, error)
}
