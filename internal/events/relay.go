package events

import (
	"context"
	"log/slog"
	"time"

	"printhub/internal/platform/metrics"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBatchSize    = 100
	maxBackoff          = 30 * time.Second
)

// Broker is the downstream the relay drains the outbox into. Messages are
// keyed by order ID so a partitioned broker preserves per-order ordering.
type Broker interface {
	Publish(ctx context.Context, key string, value []byte, kind Kind) error
}

// OutboxEntry is a stored event awaiting publication.
type OutboxEntry struct {
	ID    int64
	Event LifecycleEvent
}

// OutboxSource is the read half of the outbox. FetchPending returns entries
// oldest-first so per-order sequence order survives the relay.
type OutboxSource interface {
	FetchPending(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// Relay moves pending outbox entries to the broker. Entries are marked
// published only after the broker accepts them, so delivery is at-least-once
// and consumers must tolerate duplicates.
type Relay struct {
	store    OutboxSource
	broker   Broker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	breaker  *circuitBreaker
	interval time.Duration
	batch    int
}

// RelayOption configures the Relay.
type RelayOption func(*Relay)

// WithRelayMetrics sets the metrics collector.
func WithRelayMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

// WithPollInterval overrides how often the relay checks for pending entries.
func WithPollInterval(d time.Duration) RelayOption {
	return func(r *Relay) { r.interval = d }
}

// WithBatchSize overrides how many entries are fetched per poll.
func WithBatchSize(n int) RelayOption {
	return func(r *Relay) { r.batch = n }
}

// NewRelay creates a relay draining store into broker.
func NewRelay(store OutboxSource, broker Broker, logger *slog.Logger, opts ...RelayOption) *Relay {
	r := &Relay{
		store:    store,
		broker:   broker,
		logger:   logger,
		breaker:  newCircuitBreaker(5, time.Minute),
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	backoff := r.interval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if !r.breaker.Allow() {
			continue
		}

		published, err := r.drainOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.breaker.RecordFailure()
			backoff = nextBackoff(backoff, maxBackoff)
			ticker.Reset(backoff)
			r.logger.WarnContext(ctx, "outbox drain failed, backing off",
				"backoff", backoff, "error", err)
			continue
		}

		r.breaker.RecordSuccess()
		if backoff != r.interval {
			backoff = r.interval
			ticker.Reset(r.interval)
		}
		if published > 0 {
			r.logger.DebugContext(ctx, "relayed lifecycle events", "count", published)
		}
	}
}

// nextBackoff doubles the current delay up to limit. The result feeds the
// poll ticker directly, so retry spacing is exactly the backoff, not backoff
// plus a trailing poll interval.
func nextBackoff(cur, limit time.Duration) time.Duration {
	if cur *= 2; cur > limit {
		return limit
	}
	return cur
}

// drainOnce publishes one batch. A broker rejection mid-batch marks the
// entries already accepted and surfaces the error; the failed entry and its
// successors stay pending and are retried in order on the next pass.
func (r *Relay) drainOnce(ctx context.Context) (int, error) {
	entries, err := r.store.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	done := make([]int64, 0, len(entries))
	var publishErr error
	for _, entry := range entries {
		payload, err := entry.Event.Encode()
		if err != nil {
			// Undecodable entries would wedge the relay forever; drop with a log.
			r.logger.ErrorContext(ctx, "dropping undecodable outbox entry",
				"outbox_id", entry.ID, "order_id", entry.Event.OrderID, "error", err)
			done = append(done, entry.ID)
			continue
		}
		if err := r.broker.Publish(ctx, entry.Event.OrderID, payload, entry.Event.Kind); err != nil {
			if r.metrics != nil {
				r.metrics.EventPublishFails.Inc()
			}
			publishErr = err
			break
		}
		if r.metrics != nil {
			r.metrics.EventsPublished.Inc()
		}
		done = append(done, entry.ID)
	}

	if len(done) > 0 {
		if err := r.store.MarkPublished(ctx, done); err != nil {
			return len(done), err
		}
	}
	return len(done), publishErr
}
