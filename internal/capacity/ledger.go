// Package capacity implements the admission-control ledger. It is the only
// component allowed to move a shop's currentQueue; everything else treats
// queue depth as a read-only snapshot.
package capacity

import (
	"context"
	"errors"
	"log/slog"

	"printhub/internal/platform/metrics"
	"printhub/internal/shop/store"
	dErrors "printhub/pkg/domain-errors"
	"printhub/pkg/platform/sentinel"
)

// Ledger gates order admission against a shop's finite queue. Atomicity is
// delegated to the shop store's conditional admit/release operations, so
// concurrent admissions for the same shop serialize there while different
// shops proceed independently.
type Ledger struct {
	shops   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New creates a capacity ledger over the shop store.
func New(shops store.Store, logger *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{shops: shops, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAdmit reserves one queue slot for the shop. A denial is terminal for the
// request: callers surface it and never retry automatically.
func (l *Ledger) TryAdmit(ctx context.Context, shopID string) error {
	err := l.shops.TryAdmit(ctx, shopID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrCapacityExceeded):
		if l.metrics != nil {
			l.metrics.AdmissionsDenied.Inc()
		}
		l.logger.InfoContext(ctx, "admission denied, shop at capacity", "shop_id", shopID)
		return dErrors.Wrap(err, dErrors.CodeConflict, "shop at capacity")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "shop not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "admit shop slot")
	}
}

// Release frees one queue slot, floored at zero. Callers must release at most
// once per successful admit; the coordinator does so only after the
// cancelling status change has been persisted.
func (l *Ledger) Release(ctx context.Context, shopID string) error {
	err := l.shops.Release(ctx, shopID)
	switch {
	case err == nil:
		if l.metrics != nil {
			l.metrics.SlotsReleased.Inc()
		}
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "shop not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "release shop slot")
	}
}
