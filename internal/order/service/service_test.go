package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printhub/internal/capacity"
	"printhub/internal/discovery"
	"printhub/internal/events"
	"printhub/internal/events/outbox"
	"printhub/internal/order/models"
	"printhub/internal/order/statemachine"
	orderstore "printhub/internal/order/store"
	"printhub/internal/platform/middleware"
	shopmodels "printhub/internal/shop/models"
	shopstore "printhub/internal/shop/store"
	dErrors "printhub/pkg/domain-errors"
)

type fixture struct {
	coordinator *Coordinator
	shops       *shopstore.InMemoryStore
	orders      *orderstore.InMemoryStore
	outbox      *outbox.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.Default()
	shops := shopstore.NewInMemoryStore()
	orders := orderstore.NewInMemoryStore()
	box := outbox.NewInMemoryStore()

	coordinator := New(
		orders,
		shops,
		discovery.New(shops, logger),
		capacity.New(shops, logger),
		events.New(box, logger),
		logger,
	)
	return &fixture{coordinator: coordinator, shops: shops, orders: orders, outbox: box}
}

func (f *fixture) addShop(t *testing.T, id string, maxQueue int) *shopmodels.Shop {
	t.Helper()
	return f.addShopAt(t, id, maxQueue, shopmodels.GeoPoint{Longitude: 77.59, Latitude: 12.97})
}

func (f *fixture) addShopAt(t *testing.T, id string, maxQueue int, loc shopmodels.GeoPoint) *shopmodels.Shop {
	t.Helper()
	shop := &shopmodels.Shop{
		ID:       id,
		OwnerID:  "owner-" + id,
		Name:     "Shop " + id,
		Location: loc,
		Capacity: shopmodels.Capacity{MaxQueue: maxQueue, ProcessingRate: 10},
		Pricing:  shopmodels.Pricing{ColorPerPage: 2, MonoPerPage: 1},
		IsActive: true,
	}
	shop.CreatedAt = time.Now().UTC()
	shop.UpdatedAt = shop.CreatedAt
	require.NoError(t, f.shops.Create(context.Background(), shop))
	return shop
}

func (f *fixture) pendingEvents(t *testing.T) []events.LifecycleEvent {
	t.Helper()
	entries, err := f.outbox.FetchPending(context.Background(), 0)
	require.NoError(t, err)
	out := make([]events.LifecycleEvent, len(entries))
	for i, e := range entries {
		out[i] = e.Event
	}
	return out
}

func validSpec() models.PrintJobSpec {
	return models.PrintJobSpec{Pages: 10, Copies: 1, PaperSize: "A4", PaperType: "normal"}
}

func requester(id string) middleware.Actor {
	return middleware.Actor{UserID: id, Role: middleware.RoleRequester}
}

func shopOwner(userID, shopID string) middleware.Actor {
	return middleware.Actor{UserID: userID, Role: middleware.RoleShopOwner, ShopID: shopID}
}

func TestCreateOrderAgainstPinnedShop(t *testing.T) {
	f := newFixture(t)
	f.addShop(t, "s1", 5)
	ctx := context.Background()

	order, err := f.coordinator.CreateOrder(ctx, CreateOrderInput{
		ShopID: "s1",
		Spec:   validSpec(),
	}, requester("u1"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, "u1", order.RequesterID)
	assert.Equal(t, "s1", order.ShopID)
	assert.Equal(t, int64(1), order.Version)
	assert.Equal(t, 10.0, order.TotalCost) // 10 mono pages at base rate

	shop, err := f.shops.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, shop.Capacity.CurrentQueue)

	pending := f.pendingEvents(t)
	require.Len(t, pending, 1)
	assert.Equal(t, events.KindCreated, pending[0].Kind)
	assert.Equal(t, int64(1), pending[0].Sequence)
}

func TestCreateOrderRanksWhenNoShopPinned(t *testing.T) {
	f := newFixture(t)
	near := f.addShop(t, "near", 5)
	f.addShopAt(t, "far", 5, shopmodels.GeoPoint{Longitude: 77.62, Latitude: 12.99})

	origin := near.Location
	order, err := f.coordinator.CreateOrder(context.Background(), CreateOrderInput{
		Origin: &origin,
		Spec:   validSpec(),
	}, requester("u1"))
	require.NoError(t, err)
	assert.Equal(t, "near", order.ShopID)
}

func TestCreateOrderNoShopAvailable(t *testing.T) {
	f := newFixture(t)
	origin := shopmodels.GeoPoint{Longitude: 0, Latitude: 0}

	_, err := f.coordinator.CreateOrder(context.Background(), CreateOrderInput{
		Origin: &origin,
		Spec:   validSpec(),
	}, requester("u1"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func TestCreateOrderAdmissionDeniedLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	f.addShop(t, "s1", 1)
	ctx := context.Background()

	_, err := f.coordinator.CreateOrder(ctx, CreateOrderInput{ShopID: "s1", Spec: validSpec()}, requester("u1"))
	require.NoError(t, err)

	_, err = f.coordinator.CreateOrder(ctx, CreateOrderInput{ShopID: "s1", Spec: validSpec()}, requester("u2"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeConflict, dErrors.CodeOf(err))

	orders, err := f.orders.ListByRequester(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Len(t, f.pendingEvents(t), 1)
}

func TestCreateOrderRejectsInvalidSpec(t *testing.T) {
	f := newFixture(t)
	f.addShop(t, "s1", 5)

	spec := validSpec()
	spec.Pages = 0
	_, err := f.coordinator.CreateOrder(context.Background(), CreateOrderInput{ShopID: "s1", Spec: spec}, requester("u1"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

func TestCreateOrderRejectsInactiveShop(t *testing.T) {
	f := newFixture(t)
	f.addShop(t, "s1", 5)
	_, err := f.shops.SetActive(context.Background(), "s1", false)
	require.NoError(t, err)

	_, err = f.coordinator.CreateOrder(context.Background(), CreateOrderInput{ShopID: "s1", Spec: validSpec()}, requester("u1"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeConflict, dErrors.CodeOf(err))
}

func TestUpdateStatusForwardPath(t *testing.T) {
	f := newFixture(t)
	f.addShop(t, "s1", 5)
	ctx := context.Background()
	owner := shopOwner("owner-s1", "s1")

	order, err := f.coordinator.CreateOrder(ctx, CreateOrderInput{ShopID: "s1", Spec: validSpec()}, requester("u1"))
	require.NoError(t, err)

	for i, next := range []models.Status{models.StatusAccepted, models.StatusPrinting, models.StatusCompleted} {
		order, err = f.coordinator.UpdateStatus(ctx, order.ID, next, owner)
		require.NoError(t, err)
		assert.Equal(t, next, order.Status)
		assert.Equal(t, int64(i+2), order.Version)
	}

	// Completion hands the queue slot back.
	shop, err := f.shops.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, shop.Capacity.CurrentQueue)

	pending := f.pendingEvents(t)
	require.Len(t, pending, 4)
	for i, event := range pending {
		assert.Equal(t, int64(i+1), event.Sequence)
	}
	assert.Equal(t, models.StatusCompleted, pending[3].NewStatus)
	assert.Equal(t, models.StatusPrinting, pending[3].OldStatus)
}

func TestUpdateStatusRequesterCannotAdvance(t *testing.T) {
	f := newFixture(t)
	f.addShop(t, "s1", 5)
	ctx := context.Background()

	order, err := f.coordinator.CreateOrder(ctx, CreateOrderInput{ShopID: "s1", Spec: validSpec()}, requester("u1"))
	require.NoError(t, err)

	_, err = f.coordinator.UpdateStatus(ctx, order.ID, models.StatusAccepted, requester("u1"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeForbidden, dErrors.CodeOf(err))
}

func TestCancelReleasesSlotAndEmitsStatusEvent(t *testing.T) {
	f := newFixture(t)
	f.addShop(t, "s1", 5)
	ctx := context.Background()

	order, err := f.coordinator.CreateOrder(ctx, CreateOrderInput{ShopID: "s1", Spec: validSpec()}, requester("u1"))
	require.NoError(t, err)

	cancelled, err := f.coordinator.Cancel(ctx, order.ID, requester("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, int64(2), cancelled.Version)

	shop, err := f.shops.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, shop.Capacity.CurrentQueue)

	pending := f.pendingEvents(t)
	require.Len(t, pending, 2)
	assert.Equal(t, events.KindCreated, pending[0].Kind)
	assert.Equal(t, int64(1), pending[0].Sequence)
	assert.Equal(t, events.KindStatus, pending[1].Kind)
	assert.Equal(t, int64(2), pending[1].Sequence)
	assert.Equal(t, models.StatusCancelled, pending[1].NewStatus)
}

func TestCancelTerminalOrderFailsWithoutSecondRelease(t *testing.T) {
	f := newFixture(t)
	f.addShop(t, "s1", 5)
	ctx := context.Background()

	order, err := f.coordinator.CreateOrder(ctx, CreateOrderInput{ShopID: "s1", Spec: validSpec()}, requester("u1"))
	require.NoError(t, err)
	_, err = f.coordinator.Cancel(ctx, order.ID, requester("u1"))
	require.NoError(t, err)

	_, err = f.coordinator.Cancel(ctx, order.ID, requester("u1"))
	require.Error(t, err)
	assert.True(t, statemachine.IsTerminalStateError(err))

	shop, err := f.shops.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, shop.Capacity.CurrentQueue)
	assert.Len(t, f.pendingEvents(t), 2)
}

func TestGetOrderVisibility(t *testing.T) {
	f := newFixture(t)
	f.addShop(t, "s1", 5)
	ctx := context.Background()

	order, err := f.coordinator.CreateOrder(ctx, CreateOrderInput{ShopID: "s1", Spec: validSpec()}, requester("u1"))
	require.NoError(t, err)

	_, err = f.coordinator.GetOrder(ctx, order.ID, requester("u1"))
	assert.NoError(t, err)

	_, err = f.coordinator.GetOrder(ctx, order.ID, shopOwner("owner-s1", "s1"))
	assert.NoError(t, err)

	_, err = f.coordinator.GetOrder(ctx, order.ID, requester("stranger"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeForbidden, dErrors.CodeOf(err))

	_, err = f.coordinator.GetOrder(ctx, "missing", requester("u1"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func TestListForShopRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	f.addShop(t, "s1", 5)
	ctx := context.Background()

	_, err := f.coordinator.CreateOrder(ctx, CreateOrderInput{ShopID: "s1", Spec: validSpec()}, requester("u1"))
	require.NoError(t, err)

	orders, err := f.coordinator.ListForShop(ctx, "s1", shopOwner("owner-s1", "s1"))
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	_, err = f.coordinator.ListForShop(ctx, "s1", shopOwner("other", "s2"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeForbidden, dErrors.CodeOf(err))

	_, err = f.coordinator.ListForShop(ctx, "s1", requester("u1"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeForbidden, dErrors.CodeOf(err))
}
