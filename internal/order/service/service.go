// Package service hosts the order coordinator: the one place where ranking,
// admission, persistence, and event propagation compose. It owns no state.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"printhub/internal/authz"
	"printhub/internal/capacity"
	"printhub/internal/discovery"
	"printhub/internal/events"
	"printhub/internal/order/models"
	"printhub/internal/order/statemachine"
	"printhub/internal/order/store"
	"printhub/internal/platform/metrics"
	"printhub/internal/platform/middleware"
	shopmodels "printhub/internal/shop/models"
	shopstore "printhub/internal/shop/store"
	dErrors "printhub/pkg/domain-errors"
	"printhub/pkg/platform/sentinel"
)

// Coordinator orchestrates the order lifecycle. All mutations follow the same
// shape: decide, persist, then publish, so a crash can delay events but never
// invent or lose a mutation.
type Coordinator struct {
	orders     store.Store
	shops      shopstore.Store
	ranker     *discovery.Ranker
	ledger     *capacity.Ledger
	propagator *events.Propagator
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates the coordinator.
func New(
	orders store.Store,
	shops shopstore.Store,
	ranker *discovery.Ranker,
	ledger *capacity.Ledger,
	propagator *events.Propagator,
	logger *slog.Logger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		orders:     orders,
		shops:      shops,
		ranker:     ranker,
		ledger:     ledger,
		propagator: propagator,
		logger:     logger,
		tracer:     otel.Tracer("printhub/order"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateOrderInput carries a create request. ShopID pins the target shop;
// when empty, Origin is required and the ranker picks the best candidate
// within RadiusKm (platform default when zero).
type CreateOrderInput struct {
	ShopID   string
	Origin   *shopmodels.GeoPoint
	RadiusKm float64
	Spec     models.PrintJobSpec
}

// CreateOrder validates, selects a shop, reserves a queue slot, and persists
// the order as pending. The admission is the gate: a denial aborts with no
// record created. Cost is computed once here and never recomputed.
func (c *Coordinator) CreateOrder(ctx context.Context, input CreateOrderInput, actor middleware.Actor) (*models.Order, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.create_order")
	defer span.End()

	if err := input.Spec.Validate(); err != nil {
		return nil, err
	}

	shop, err := c.selectShop(ctx, input)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("shop.id", shop.ID))

	if err := c.ledger.TryAdmit(ctx, shop.ID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:          uuid.NewString(),
		RequesterID: actor.UserID,
		ShopID:      shop.ID,
		Status:      models.StatusPending,
		PrintConfig: input.Spec,
		TotalCost:   input.Spec.Cost(shop.Pricing),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := c.orders.Create(ctx, order); err != nil {
		// The slot was reserved but the order never existed; hand it back.
		if relErr := c.ledger.Release(ctx, shop.ID); relErr != nil {
			c.logger.ErrorContext(ctx, "failed to release slot after create failure",
				"shop_id", shop.ID, "error", relErr)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist order")
	}

	if c.metrics != nil {
		c.metrics.OrdersCreated.Inc()
	}
	c.logger.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"shop_id", order.ShopID,
		"requester_id", order.RequesterID,
		"total_cost", order.TotalCost,
	)
	c.propagator.Publish(ctx, events.Created(order))
	return order, nil
}

func (c *Coordinator) selectShop(ctx context.Context, input CreateOrderInput) (*shopmodels.Shop, error) {
	if input.ShopID != "" {
		shop, err := c.shops.Get(ctx, input.ShopID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "shop not found")
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load shop")
		}
		if !shop.IsActive {
			return nil, dErrors.New(dErrors.CodeConflict, "shop is not accepting orders")
		}
		return shop, nil
	}

	if input.Origin == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "either shopId or origin is required")
	}
	candidates, err := c.ranker.Rank(ctx, *input.Origin, input.Spec, input.RadiusKm)
	if err != nil {
		return nil, err
	}
	best := discovery.Best(candidates)
	if best == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no shop available")
	}
	return best.Shop, nil
}

// UpdateStatus applies one lifecycle transition. Persistence is
// compare-and-swap on the order version; a lost race surfaces as a conflict
// and the caller retries against fresh state.
func (c *Coordinator) UpdateStatus(ctx context.Context, orderID string, requested models.Status, actor middleware.Actor) (*models.Order, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.update_status",
		trace.WithAttributes(attribute.String("order.requested_status", string(requested))))
	defer span.End()

	order, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	oldStatus := order.Status

	updated, err := statemachine.Apply(order, requested, actor)
	if err != nil {
		return nil, err
	}

	if err := c.orders.Update(ctx, updated); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "order was modified concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist status change")
	}

	// The queue slot tracks orders admitted and not yet terminal, so it is
	// handed back on entry to either terminal state. Release runs after the
	// persist committed and at most once: a replay of the same transition
	// loses the version swap above and never reaches this point.
	if updated.Status.IsTerminal() {
		if err := c.ledger.Release(ctx, updated.ShopID); err != nil {
			c.logger.ErrorContext(ctx, "failed to release slot for terminal order",
				"order_id", updated.ID, "shop_id", updated.ShopID, "error", err)
		}
	}

	if c.metrics != nil {
		c.metrics.StatusTransitions.WithLabelValues(string(updated.Status)).Inc()
	}
	c.logger.InfoContext(ctx, "order status changed",
		"order_id", updated.ID,
		"from", oldStatus,
		"to", updated.Status,
		"actor_id", actor.UserID,
	)
	c.propagator.Publish(ctx, events.StatusChanged(updated, oldStatus))
	return updated, nil
}

// Cancel is update-status targeting cancelled.
func (c *Coordinator) Cancel(ctx context.Context, orderID string, actor middleware.Actor) (*models.Order, error) {
	return c.UpdateStatus(ctx, orderID, models.StatusCancelled, actor)
}

// GetOrder loads one order, visible only to its requester, the owning shop,
// or an administrator.
func (c *Coordinator) GetOrder(ctx context.Context, orderID string, actor middleware.Actor) (*models.Order, error) {
	order, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	res := authz.Resource{RequesterID: order.RequesterID, ShopID: order.ShopID}
	if !authz.Can(actor, authz.ActionViewOrder, res) {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor may not view this order")
	}
	return order, nil
}

// ListMine returns the actor's own orders, newest first.
func (c *Coordinator) ListMine(ctx context.Context, actor middleware.Actor) ([]*models.Order, error) {
	orders, err := c.orders.ListByRequester(ctx, actor.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list orders")
	}
	return orders, nil
}

// ListForShop returns a shop's orders, newest first. Only the owning shop or
// an administrator may list them.
func (c *Coordinator) ListForShop(ctx context.Context, shopID string, actor middleware.Actor) ([]*models.Order, error) {
	res := authz.Resource{ShopID: shopID}
	if !authz.Can(actor, authz.ActionManageShop, res) {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor may not view this shop's orders")
	}
	orders, err := c.orders.ListByShop(ctx, shopID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list shop orders")
	}
	return orders, nil
}

func (c *Coordinator) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := c.orders.Get(ctx, orderID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load order")
	}
	return order, nil
}
