package events

import (
	"context"
	"log/slog"

	"printhub/internal/platform/kafka/consumer"
)

// Applier receives lifecycle events that passed the sequence guard, in
// causal order per order.
type Applier interface {
	Apply(ctx context.Context, event LifecycleEvent) error
}

// LifecycleHandler consumes lifecycle events from the broker, discards
// duplicates and out-of-order deliveries, and hands the rest to an Applier.
type LifecycleHandler struct {
	guard   *SequenceGuard
	applier Applier
	logger  *slog.Logger
}

// NewLifecycleHandler creates a handler with a fresh sequence guard.
func NewLifecycleHandler(applier Applier, logger *slog.Logger) *LifecycleHandler {
	return &LifecycleHandler{
		guard:   NewSequenceGuard(),
		applier: applier,
		logger:  logger,
	}
}

// Handle decodes and applies one consumed message. Undecodable and
// out-of-sequence messages return nil so their offsets commit; only applier
// failures hold the offset for redelivery.
func (h *LifecycleHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := Decode(msg.Value)
	if err != nil {
		h.logger.Warn("discarding undecodable lifecycle event",
			"topic", msg.Topic,
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	last := h.guard.Last(event.OrderID)
	if event.Sequence != last+1 {
		h.logger.Debug("discarding duplicate or out-of-order lifecycle event",
			"order_id", event.OrderID,
			"sequence", event.Sequence,
			"last_applied", last,
		)
		return nil
	}

	if err := h.applier.Apply(ctx, event); err != nil {
		return err
	}
	// Advance the high-water mark only once the event is applied, so a failed
	// apply is retried on redelivery rather than discarded as a duplicate.
	h.guard.Admit(event.OrderID, event.Sequence)
	if event.NewStatus.IsTerminal() {
		h.guard.MarkTerminal(event.OrderID)
	}
	return nil
}
