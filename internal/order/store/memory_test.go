package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printhub/internal/order/models"
	"printhub/pkg/platform/sentinel"
)

func newOrder(id, requesterID, shopID string, createdAt time.Time) *models.Order {
	return &models.Order{
		ID:          id,
		RequesterID: requesterID,
		ShopID:      shopID,
		Status:      models.StatusPending,
		Version:     1,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestInMemoryStoreCreateAndGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	order := newOrder("o1", "u1", "s1", now)
	require.NoError(t, s.Create(ctx, order))

	got, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order, got)

	assert.ErrorIs(t, s.Create(ctx, order), sentinel.ErrConflict)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStoreUpdateCompareAndSwap(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Create(ctx, newOrder("o1", "u1", "s1", now)))

	next := newOrder("o1", "u1", "s1", now)
	next.Status = models.StatusAccepted
	next.Version = 2
	require.NoError(t, s.Update(ctx, next))

	// Replaying the same version loses the swap.
	assert.ErrorIs(t, s.Update(ctx, next), sentinel.ErrConflict)

	stale := newOrder("o1", "u1", "s1", now)
	stale.Status = models.StatusCancelled
	stale.Version = 2
	assert.ErrorIs(t, s.Update(ctx, stale), sentinel.ErrConflict)

	got, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
	assert.Equal(t, int64(2), got.Version)

	missing := newOrder("nope", "u1", "s1", now)
	missing.Version = 2
	assert.ErrorIs(t, s.Update(ctx, missing), sentinel.ErrNotFound)
}

func TestInMemoryStoreListsNewestFirst(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, s.Create(ctx, newOrder("o1", "u1", "s1", base)))
	require.NoError(t, s.Create(ctx, newOrder("o2", "u1", "s2", base.Add(time.Minute))))
	require.NoError(t, s.Create(ctx, newOrder("o3", "u2", "s1", base.Add(2*time.Minute))))

	byRequester, err := s.ListByRequester(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, byRequester, 2)
	assert.Equal(t, "o2", byRequester[0].ID)
	assert.Equal(t, "o1", byRequester[1].ID)

	byShop, err := s.ListByShop(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, byShop, 2)
	assert.Equal(t, "o3", byShop[0].ID)

	empty, err := s.ListByRequester(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInMemoryStoreReturnsCopies(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newOrder("o1", "u1", "s1", time.Now().UTC())))

	got, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	got.Status = models.StatusCompleted

	again, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)
}
