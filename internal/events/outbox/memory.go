package outbox

import (
	"context"
	"sync"

	"printhub/internal/events"
)

// InMemoryStore implements Store for tests and single-instance deployments.
// Pending entries survive broker outages but not process restarts; use the
// postgres store where that matters.
type InMemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	pending []Entry
}

// NewInMemoryStore creates an empty in-memory outbox.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event events.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.pending = append(s.pending, Entry{ID: s.nextID, Event: event})
	return nil
}

func (s *InMemoryStore) FetchPending(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.pending)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, s.pending[:n])
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	published := make(map[int64]bool, len(ids))
	for _, id := range ids {
		published[id] = true
	}
	remaining := s.pending[:0]
	for _, entry := range s.pending {
		if !published[entry.ID] {
			remaining = append(remaining, entry)
		}
	}
	s.pending = remaining
	return nil
}

// PendingCount reports how many entries await publication. Test helper.
func (s *InMemoryStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
