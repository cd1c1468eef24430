// Package discovery ranks candidate shops for a print job. Ranking is a pure
// read: no locks, no side effects, safe to call concurrently.
package discovery

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"printhub/internal/order/models"
	"printhub/internal/platform/metrics"
	shopmodels "printhub/internal/shop/models"
	dErrors "printhub/pkg/domain-errors"
)

const (
	// DefaultRadiusKm applies when a ranking request omits the radius.
	DefaultRadiusKm = 5

	// fetchLimit bounds how many shops a single ranking pulls from the store.
	fetchLimit = 100
)

// Candidate is one ranked shop with the figures that ordered it.
type Candidate struct {
	Shop                 *shopmodels.Shop `json:"shop"`
	DistanceKm           float64          `json:"distanceKm"`
	EstimatedWaitMinutes int              `json:"estimatedWaitMinutes"`
	Cost                 float64          `json:"cost"`
}

// ShopSource is the read-only slice of the shop store the ranker needs.
type ShopSource interface {
	FindNearby(ctx context.Context, origin shopmodels.GeoPoint, radiusKm float64, limit int) ([]*shopmodels.Shop, error)
}

// Ranker scores and orders candidate shops for a job.
type Ranker struct {
	shops   ShopSource
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Ranker.
type Option func(*Ranker)

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Ranker) { r.metrics = m }
}

// New creates a ranker over the shop source.
func New(shops ShopSource, logger *slog.Logger, opts ...Option) *Ranker {
	r := &Ranker{shops: shops, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank returns candidates within radiusKm of origin ordered best-first:
// ascending estimated wait, then distance, then cost. Shops with no free
// queue slot are excluded up front; that is an optimistic filter, the
// capacity ledger still has the last word at admission time. An empty result
// is not an error.
func (r *Ranker) Rank(ctx context.Context, origin shopmodels.GeoPoint, spec models.PrintJobSpec, radiusKm float64) ([]Candidate, error) {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	start := time.Now()

	shops, err := r.shops.FindNearby(ctx, origin, radiusKm, fetchLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query nearby shops")
	}

	candidates := make([]Candidate, 0, len(shops))
	for _, shop := range shops {
		if !shop.Capacity.HasFreeSlot() {
			continue
		}
		candidates = append(candidates, Candidate{
			Shop:                 shop,
			DistanceKm:           origin.DistanceKm(shop.Location),
			EstimatedWaitMinutes: estimateWaitMinutes(shop.Capacity),
			Cost:                 spec.Cost(shop.Pricing),
		})
	}

	// Stable sort keeps equal candidates in store order, so identical inputs
	// always rank identically.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.EstimatedWaitMinutes != b.EstimatedWaitMinutes {
			return a.EstimatedWaitMinutes < b.EstimatedWaitMinutes
		}
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		return a.Cost < b.Cost
	})

	if r.metrics != nil {
		r.metrics.RankingRequests.Inc()
		r.metrics.RankingDuration.Observe(time.Since(start).Seconds())
	}
	r.logger.DebugContext(ctx, "ranked candidate shops",
		"radius_km", radiusKm,
		"fetched", len(shops),
		"candidates", len(candidates),
	)
	return candidates, nil
}

// Best returns the top candidate, or nil when none qualify.
func Best(candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	return &candidates[0]
}

// estimateWaitMinutes projects queue drain time from the processing rate.
// The rate is floored at one job per hour to keep the division defined.
func estimateWaitMinutes(c shopmodels.Capacity) int {
	rate := c.ProcessingRate
	if rate < 1 {
		rate = 1
	}
	return int(math.Round(float64(c.CurrentQueue) / float64(rate) * 60))
}
