package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	OrdersCreated     prometheus.Counter
	AdmissionsDenied  prometheus.Counter
	SlotsReleased     prometheus.Counter
	StatusTransitions *prometheus.CounterVec
	EventsPublished   prometheus.Counter
	EventPublishFails prometheus.Counter
	RankingRequests   prometheus.Counter
	RankingDuration   prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		OrdersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "printhub_orders_created_total",
			Help: "Total number of orders admitted and persisted",
		}),
		AdmissionsDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "printhub_admissions_denied_total",
			Help: "Total number of order admissions refused at capacity",
		}),
		SlotsReleased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "printhub_slots_released_total",
			Help: "Total number of shop queue slots released",
		}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "printhub_status_transitions_total",
			Help: "Order status transitions applied, by target status",
		}, []string{"to"}),
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "printhub_lifecycle_events_published_total",
			Help: "Lifecycle events handed to the durable broker",
		}),
		EventPublishFails: promauto.NewCounter(prometheus.CounterOpts{
			Name: "printhub_lifecycle_event_publish_failures_total",
			Help: "Broker publish attempts that failed and will be retried",
		}),
		RankingRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "printhub_ranking_requests_total",
			Help: "Discovery ranking requests served",
		}),
		RankingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "printhub_ranking_duration_seconds",
			Help:    "Time spent ranking candidate shops",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
