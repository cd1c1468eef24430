package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"printhub/internal/shop/models"
	"printhub/pkg/platform/sentinel"
)

// InMemoryStore implements Store with a process-local map. Adequate for tests
// and single-instance deployments; the mutex is the per-shop serialization
// point required by the admission invariant.
type InMemoryStore struct {
	mu    sync.RWMutex
	shops map[string]*models.Shop
}

// NewInMemoryStore creates an empty in-memory shop store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{shops: make(map[string]*models.Shop)}
}

func (s *InMemoryStore) Create(ctx context.Context, shop *models.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.shops[shop.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *shop
	s.shops[shop.ID] = &cp
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*models.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shop, ok := s.shops[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *shop
	return &cp, nil
}

func (s *InMemoryStore) FindNearby(ctx context.Context, origin models.GeoPoint, radiusKm float64, limit int) ([]*models.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		shop *models.Shop
		dist float64
	}
	var hits []hit
	for _, shop := range s.shops {
		if !shop.IsActive {
			continue
		}
		if d := origin.DistanceKm(shop.Location); d <= radiusKm {
			cp := *shop
			hits = append(hits, hit{shop: &cp, dist: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]*models.Shop, len(hits))
	for i, h := range hits {
		out[i] = h.shop
	}
	return out, nil
}

func (s *InMemoryStore) TryAdmit(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shop, ok := s.shops[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if shop.Capacity.CurrentQueue >= shop.Capacity.MaxQueue {
		return sentinel.ErrCapacityExceeded
	}
	shop.Capacity.CurrentQueue++
	shop.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shop, ok := s.shops[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if shop.Capacity.CurrentQueue > 0 {
		shop.Capacity.CurrentQueue--
	}
	shop.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) UpdateCapacity(ctx context.Context, id string, patch CapacityPatch) (*models.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shop, ok := s.shops[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if patch.MaxQueue != nil {
		if *patch.MaxQueue < shop.Capacity.CurrentQueue {
			return nil, sentinel.ErrConflict
		}
		shop.Capacity.MaxQueue = *patch.MaxQueue
	}
	if patch.ProcessingRate != nil {
		shop.Capacity.ProcessingRate = *patch.ProcessingRate
	}
	shop.UpdatedAt = time.Now().UTC()
	cp := *shop
	return &cp, nil
}

func (s *InMemoryStore) SetActive(ctx context.Context, id string, active bool) (*models.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shop, ok := s.shops[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	shop.IsActive = active
	shop.UpdatedAt = time.Now().UTC()
	cp := *shop
	return &cp, nil
}
