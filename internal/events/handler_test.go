package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ordermodels "printhub/internal/order/models"
	"printhub/internal/platform/kafka/consumer"
)

type recordingApplier struct {
	applied []LifecycleEvent
	failOn  int64
}

func (a *recordingApplier) Apply(_ context.Context, event LifecycleEvent) error {
	if a.failOn != 0 && event.Sequence == a.failOn {
		return errors.New("downstream unavailable")
	}
	a.applied = append(a.applied, event)
	return nil
}

func toConsumerMessage(t *testing.T, event LifecycleEvent) *consumer.Message {
	t.Helper()
	payload, err := event.Encode()
	require.NoError(t, err)
	return &consumer.Message{
		Topic: "orders.lifecycle",
		Key:   []byte(event.OrderID),
		Value: payload,
	}
}

func TestLifecycleHandlerAppliesInSequence(t *testing.T) {
	applier := &recordingApplier{}
	h := NewLifecycleHandler(applier, slog.Default())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, seqEvent("order-1", 1))))
	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, seqEvent("order-1", 2))))

	require.Len(t, applier.applied, 2)
	assert.Equal(t, int64(1), applier.applied[0].Sequence)
	assert.Equal(t, int64(2), applier.applied[1].Sequence)
}

func TestLifecycleHandlerDiscardsDuplicates(t *testing.T) {
	applier := &recordingApplier{}
	h := NewLifecycleHandler(applier, slog.Default())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, seqEvent("order-1", 1))))
	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, seqEvent("order-1", 1))))

	assert.Len(t, applier.applied, 1)
}

func TestLifecycleHandlerDiscardsSequenceGaps(t *testing.T) {
	applier := &recordingApplier{}
	h := NewLifecycleHandler(applier, slog.Default())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, seqEvent("order-1", 1))))
	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, seqEvent("order-1", 3))))

	require.Len(t, applier.applied, 1)
	assert.Equal(t, int64(1), applier.applied[0].Sequence)

	// The gap never closes retroactively; sequence 2 is still the only
	// admissible next event.
	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, seqEvent("order-1", 2))))
	assert.Len(t, applier.applied, 2)
}

func TestLifecycleHandlerRetriesFailedApply(t *testing.T) {
	applier := &recordingApplier{failOn: 2}
	h := NewLifecycleHandler(applier, slog.Default())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, seqEvent("order-1", 1))))
	require.Error(t, h.Handle(ctx, toConsumerMessage(t, seqEvent("order-1", 2))))

	// Redelivery after the downstream recovers is applied, not treated as a
	// duplicate.
	applier.failOn = 0
	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, seqEvent("order-1", 2))))
	assert.Len(t, applier.applied, 2)
}

func TestLifecycleHandlerDiscardsDuplicatesAfterTerminal(t *testing.T) {
	applier := &recordingApplier{}
	h := NewLifecycleHandler(applier, slog.Default())
	ctx := context.Background()

	created := seqEvent("order-1", 1)
	cancelled := seqEvent("order-1", 2)
	cancelled.NewStatus = ordermodels.StatusCancelled

	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, created)))
	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, cancelled)))

	// A redelivered creation event after the order finished must not reach
	// the applier; the high-water mark survives the terminal transition.
	require.NoError(t, h.Handle(ctx, toConsumerMessage(t, created)))
	require.Len(t, applier.applied, 2)
	assert.Equal(t, ordermodels.StatusCancelled, applier.applied[1].NewStatus)
}

func TestLifecycleHandlerDiscardsUndecodable(t *testing.T) {
	applier := &recordingApplier{}
	h := NewLifecycleHandler(applier, slog.Default())

	msg := &consumer.Message{Topic: "orders.lifecycle", Value: []byte("{not json")}
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Empty(t, applier.applied)
}

func TestSequenceGuardIndependentPerOrder(t *testing.T) {
	g := NewSequenceGuard()

	assert.True(t, g.Admit("a", 1))
	assert.True(t, g.Admit("b", 1))
	assert.False(t, g.Admit("a", 1))
	assert.True(t, g.Admit("a", 2))
	assert.False(t, g.Admit("b", 3))
}

func TestSequenceGuardRetainsTerminalMarks(t *testing.T) {
	g := NewSequenceGuard()

	require.True(t, g.Admit("a", 1))
	g.MarkTerminal("a")

	assert.False(t, g.Admit("a", 1))
	assert.Equal(t, int64(1), g.Last("a"))
}

func TestSequenceGuardEvictsFinishedOrdersAfterRetention(t *testing.T) {
	g := NewSequenceGuard()
	now := time.Now()
	g.now = func() time.Time { return now }

	require.True(t, g.Admit("a", 1))
	g.MarkTerminal("a")

	now = now.Add(terminalRetention + time.Second)
	g.MarkTerminal("b")

	assert.Zero(t, g.Last("a"))
	assert.True(t, g.Admit("a", 1))
}
