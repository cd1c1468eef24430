package discovery

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printhub/internal/order/models"
	shopmodels "printhub/internal/shop/models"
	"printhub/internal/shop/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func plainSpec() models.PrintJobSpec {
	return models.PrintJobSpec{
		Pages:     10,
		Color:     true,
		Copies:    1,
		PaperSize: "A4",
		PaperType: "standard",
	}
}

func shopAt(id string, lng, lat float64, queue, max, rate int) *shopmodels.Shop {
	return &shopmodels.Shop{
		ID:       id,
		OwnerID:  "owner-" + id,
		Name:     id,
		IsActive: true,
		Location: shopmodels.GeoPoint{Longitude: lng, Latitude: lat},
		Capacity: shopmodels.Capacity{MaxQueue: max, CurrentQueue: queue, ProcessingRate: rate},
		Pricing:  shopmodels.Pricing{ColorPerPage: 2, MonoPerPage: 1},
	}
}

func newRanker(t *testing.T, shops ...*shopmodels.Shop) *Ranker {
	t.Helper()
	st := store.NewInMemoryStore()
	for _, s := range shops {
		require.NoError(t, st.Create(context.Background(), s))
	}
	return New(st, testLogger())
}

// Equal wait and cost: the closer shop wins the tie-break.
func TestDistanceTieBreak(t *testing.T) {
	origin := shopmodels.GeoPoint{Longitude: 77.0, Latitude: 12.9}
	// Both shops idle (wait 0); B is ~1km east, A ~2km east.
	a := shopAt("a", 77.018, 12.9, 0, 10, 10)
	b := shopAt("b", 77.009, 12.9, 0, 10, 10)
	ranker := newRanker(t, a, b)

	got, err := ranker.Rank(context.Background(), origin, plainSpec(), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Shop.ID)
	assert.Equal(t, "a", got[1].Shop.ID)
}

func TestWaitDominatesDistance(t *testing.T) {
	origin := shopmodels.GeoPoint{Longitude: 77.0, Latitude: 12.9}
	near := shopAt("near", 77.001, 12.9, 5, 10, 10) // wait 30min
	far := shopAt("far", 77.02, 12.9, 0, 10, 10)    // wait 0min
	ranker := newRanker(t, near, far)

	got, err := ranker.Rank(context.Background(), origin, plainSpec(), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "far", got[0].Shop.ID)
}

func TestFullShopsFiltered(t *testing.T) {
	origin := shopmodels.GeoPoint{Longitude: 77.0, Latitude: 12.9}
	full := shopAt("full", 77.001, 12.9, 10, 10, 10)
	open := shopAt("open", 77.002, 12.9, 0, 10, 10)
	ranker := newRanker(t, full, open)

	got, err := ranker.Rank(context.Background(), origin, plainSpec(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "open", got[0].Shop.ID)
}

func TestNoCandidatesIsNotAnError(t *testing.T) {
	ranker := newRanker(t)
	got, err := ranker.Rank(context.Background(), shopmodels.GeoPoint{}, plainSpec(), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, Best(got))
}

func TestRankingIsDeterministic(t *testing.T) {
	origin := shopmodels.GeoPoint{Longitude: 77.0, Latitude: 12.9}
	shops := []*shopmodels.Shop{
		shopAt("a", 77.01, 12.9, 2, 10, 10),
		shopAt("b", 77.012, 12.9, 2, 10, 10),
		shopAt("c", 77.005, 12.9, 0, 10, 10),
		shopAt("d", 77.03, 12.91, 1, 10, 10),
	}
	ranker := newRanker(t, shops...)

	first, err := ranker.Rank(context.Background(), origin, plainSpec(), 10)
	require.NoError(t, err)
	second, err := ranker.Rank(context.Background(), origin, plainSpec(), 10)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Shop.ID, second[i].Shop.ID)
	}
}

func TestEstimatedWait(t *testing.T) {
	// 5 queued at 10 jobs/hour is half an hour.
	assert.Equal(t, 30, estimateWaitMinutes(shopmodels.Capacity{CurrentQueue: 5, ProcessingRate: 10}))
	// Rate floors at 1 to keep the division defined.
	assert.Equal(t, 120, estimateWaitMinutes(shopmodels.Capacity{CurrentQueue: 2, ProcessingRate: 0}))
}

func TestCostTable(t *testing.T) {
	pricing := shopmodels.Pricing{ColorPerPage: 2, MonoPerPage: 1}

	spec := plainSpec()
	assert.InDelta(t, 20.00, spec.Cost(pricing), 0.001)

	spec.DoubleSided = true
	assert.InDelta(t, 18.00, spec.Cost(pricing), 0.001)

	spec.PaperType = "premium"
	assert.InDelta(t, 27.00, spec.Cost(pricing), 0.001)

	// Non-A4 sizes carry a 1.2x surcharge.
	spec = plainSpec()
	spec.PaperSize = "A3"
	assert.InDelta(t, 24.00, spec.Cost(pricing), 0.001)
}
