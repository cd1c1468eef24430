package store

import (
	"context"
	"sort"
	"sync"

	"printhub/internal/order/models"
	"printhub/pkg/platform/sentinel"
)

// InMemoryStore implements Store with a process-local map.
type InMemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

// NewInMemoryStore creates an empty in-memory order store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orders: make(map[string]*models.Order)}
}

func (s *InMemoryStore) Create(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (s *InMemoryStore) Update(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[order.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != order.Version-1 {
		return sentinel.ErrConflict
	}
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *InMemoryStore) ListByRequester(ctx context.Context, requesterID string) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(o *models.Order) bool { return o.RequesterID == requesterID }), nil
}

func (s *InMemoryStore) ListByShop(ctx context.Context, shopID string) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(o *models.Order) bool { return o.ShopID == shopID }), nil
}

func (s *InMemoryStore) collect(match func(*models.Order) bool) []*models.Order {
	var out []*models.Order
	for _, order := range s.orders {
		if match(order) {
			cp := *order
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
