package events

import (
	"context"
	"log/slog"

	"printhub/internal/notify"
	"printhub/internal/platform/metrics"
)

// Propagator fans a lifecycle event out to its two targets: the durable
// outbox (picked up by the relay for at-least-once broker delivery) and the
// best-effort live rooms of the order's requester and shop.
//
// Publish never returns an error. The originating mutation has already been
// persisted; losing the event to a full outbox or a dead push transport is a
// logged degradation, not a failure of the mutation.
type Propagator struct {
	outbox  Appender
	sink    notify.Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Appender is the write half of the outbox.
type Appender interface {
	Append(ctx context.Context, event LifecycleEvent) error
}

// Option configures the Propagator.
type Option func(*Propagator)

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Propagator) { p.metrics = m }
}

// WithSink sets the live-push sink. Defaults to the no-op sink.
func WithSink(sink notify.Sink) Option {
	return func(p *Propagator) { p.sink = sink }
}

// New creates a propagator writing to the given outbox.
func New(outbox Appender, logger *slog.Logger, opts ...Option) *Propagator {
	p := &Propagator{
		outbox: outbox,
		sink:   notify.Noop{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish records the event durably and pushes it to live subscribers.
func (p *Propagator) Publish(ctx context.Context, event LifecycleEvent) {
	if err := p.outbox.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.EventPublishFails.Inc()
		}
		p.logger.ErrorContext(ctx, "failed to append lifecycle event to outbox",
			"order_id", event.OrderID,
			"sequence", event.Sequence,
			"error", err,
		)
		// Fall through: the live push may still reach whoever is watching.
	}

	payload, err := event.Encode()
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode lifecycle event", "order_id", event.OrderID, "error", err)
		return
	}
	if err := p.sink.NotifyUser(ctx, event.RequesterID, payload); err != nil {
		p.logger.WarnContext(ctx, "live push to requester room failed",
			"order_id", event.OrderID,
			"requester_id", event.RequesterID,
			"error", err,
		)
	}
	if err := p.sink.NotifyShop(ctx, event.ShopID, payload); err != nil {
		p.logger.WarnContext(ctx, "live push to shop room failed",
			"order_id", event.OrderID,
			"shop_id", event.ShopID,
			"error", err,
		)
	}
}
