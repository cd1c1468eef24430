package events

import (
	"sync"
	"time"
)

// terminalRetention is how long a finished order's high-water mark is kept.
// The relay redelivers whole batches when marking published fails, so the
// mark must outlive that redelivery horizon or a late duplicate of a
// finished order would be admitted again.
const terminalRetention = time.Hour

// SequenceGuard enforces causal ordering for at-least-once consumers. An
// event is admitted only when its sequence is exactly one greater than the
// last admitted sequence for its order; duplicates and out-of-order
// deliveries are discarded. Unseen orders start at zero, so the first
// admissible event is the creation event with sequence 1.
type SequenceGuard struct {
	mu       sync.Mutex
	last     map[string]int64
	finished map[string]time.Time
	now      func() time.Time
}

// NewSequenceGuard creates an empty guard.
func NewSequenceGuard() *SequenceGuard {
	return &SequenceGuard{
		last:     make(map[string]int64),
		finished: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Admit reports whether the event should be applied and, if so, records its
// sequence as the new high-water mark for the order.
func (g *SequenceGuard) Admit(orderID string, sequence int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sequence != g.last[orderID]+1 {
		return false
	}
	g.last[orderID] = sequence
	return true
}

// Last returns the last admitted sequence for an order, zero if unseen.
func (g *SequenceGuard) Last(orderID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last[orderID]
}

// MarkTerminal records that no further events can legitimately arrive for
// the order. The high-water mark is retained so redelivered duplicates keep
// being discarded, and evicted once the retention window passes.
func (g *SequenceGuard) MarkTerminal(orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.finished[orderID] = now
	for id, at := range g.finished {
		if now.Sub(at) > terminalRetention {
			delete(g.finished, id)
			delete(g.last, id)
		}
	}
}
