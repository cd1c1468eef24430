package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ordermodels "printhub/internal/order/models"
)

type fakeOutbox struct {
	mu      sync.Mutex
	nextID  int64
	pending []OutboxEntry
}

func (s *fakeOutbox) Append(_ context.Context, event LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.pending = append(s.pending, OutboxEntry{ID: s.nextID, Event: event})
	return nil
}

func (s *fakeOutbox) FetchPending(_ context.Context, limit int) ([]OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]OutboxEntry, n)
	copy(out, s.pending[:n])
	return out, nil
}

func (s *fakeOutbox) MarkPublished(_ context.Context, ids []int64) error {
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

func (s *fakeOutbox) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

type fakeBroker struct {
	mu        sync.Mutex
	published []publishedRecord
	failUntil int
	calls     int
}

type publishedRecord struct {
	key   string
	value []byte
	kind  Kind
}

func (b *fakeBroker) Publish(_ context.Context, key string, value []byte, kind Kind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls <= b.failUntil {
		return errors.New("broker unreachable")
	}
	b.published = append(b.published, publishedRecord{key: key, value: value, kind: kind})
	return nil
}

func (b *fakeBroker) records() []publishedRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishedRecord, len(b.published))
	copy(out, b.published)
	return out
}

func seqEvent(orderID string, seq int64) LifecycleEvent {
	kind := KindStatus
	if seq == 1 {
		kind = KindCreated
	}
	return LifecycleEvent{
		OrderID:     orderID,
		Sequence:    seq,
		Kind:        kind,
		NewStatus:   ordermodels.StatusPending,
		ShopID:      "shop-1",
		RequesterID: "user-1",
		OccurredAt:  time.Now().UTC(),
	}
}

func TestRelayDrainsOutboxInOrder(t *testing.T) {
	store := &fakeOutbox{}
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, seqEvent("order-1", 1)))
	require.NoError(t, store.Append(ctx, seqEvent("order-2", 1)))
	require.NoError(t, store.Append(ctx, seqEvent("order-1", 2)))

	broker := &fakeBroker{}
	relay := NewRelay(store, broker, slog.Default())

	published, err := relay.drainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, published)
	assert.Equal(t, 0, store.pendingCount())

	records := broker.records()
	require.Len(t, records, 3)
	assert.Equal(t, "order-1", records[0].key)
	assert.Equal(t, "order-2", records[1].key)
	assert.Equal(t, "order-1", records[2].key)
	assert.Equal(t, KindCreated, records[0].kind)
	assert.Equal(t, KindStatus, records[2].kind)
}

func TestRelayKeepsFailedEntriesPending(t *testing.T) {
	store := &fakeOutbox{}
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, seqEvent("order-1", 1)))
	require.NoError(t, store.Append(ctx, seqEvent("order-1", 2)))

	broker := &fakeBroker{failUntil: 1}
	relay := NewRelay(store, broker, slog.Default())

	published, err := relay.drainOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, published)
	assert.Equal(t, 2, store.pendingCount())

	// Broker recovered: both entries go through, still in order.
	published, err = relay.drainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	assert.Equal(t, 0, store.pendingCount())

	records := broker.records()
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), mustDecode(t, records[0].value).Sequence)
	assert.Equal(t, int64(2), mustDecode(t, records[1].value).Sequence)
}

func TestRelayPartialBatchMarksOnlyAccepted(t *testing.T) {
	store := &fakeOutbox{}
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, seqEvent("order-1", 1)))
	require.NoError(t, store.Append(ctx, seqEvent("order-1", 2)))
	require.NoError(t, store.Append(ctx, seqEvent("order-1", 3)))

	// First call succeeds, second fails, so entry 1 commits and 2, 3 stay.
	broker := &brokerFailingOnCall{failOn: 2}
	relay := NewRelay(store, broker, slog.Default())

	published, err := relay.drainOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, published)
	assert.Equal(t, 2, store.pendingCount())
}

func TestRelayRunStopsOnContextCancel(t *testing.T) {
	store := &fakeOutbox{}
	broker := &fakeBroker{}
	relay := NewRelay(store, broker, slog.Default(), WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.NoError(t, store.Append(ctx, seqEvent("order-1", 1)))
	require.Eventually(t, func() bool {
		return len(broker.records()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

func TestNextBackoffDoublesUpToLimit(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(500*time.Millisecond, 30*time.Second))
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, 30*time.Second))
	assert.Equal(t, 30*time.Second, nextBackoff(20*time.Second, 30*time.Second))
	assert.Equal(t, 30*time.Second, nextBackoff(30*time.Second, 30*time.Second))
}

func TestRelayRetriesAfterFailureWithoutExtraTick(t *testing.T) {
	store := &fakeOutbox{}
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, seqEvent("order-1", 1)))

	broker := &fakeBroker{failUntil: 2}
	relay := NewRelay(store, broker, slog.Default(), WithPollInterval(time.Millisecond))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- relay.Run(runCtx) }()

	// Two failed drains back off to 2ms and 4ms; the entry still clears well
	// inside the deadline because the backoff replaces the poll wait.
	require.Eventually(t, func() bool {
		return store.pendingCount() == 0
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

type brokerFailingOnCall struct {
	mu     sync.Mutex
	calls  int
	failOn int
}

func (b *brokerFailingOnCall) Publish(context.Context, string, []byte, Kind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls == b.failOn {
		return errors.New("broker unreachable")
	}
	return nil
}

func mustDecode(t *testing.T, data []byte) LifecycleEvent {
	t.Helper()
	event, err := Decode(data)
	require.NoError(t, err)
	return event
}
