package metrics

import (
	"mercator-hq/saturn/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics tracks metrics for the router's query surface.
//
// Metrics:
//   - saturn_router_queries_total: Total query count by op and outcome
//   - saturn_router_query_duration_seconds: Query duration histogram by op
type QueryMetrics struct {
	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

// NewQueryMetrics creates and registers query metrics with the provided registry.
func NewQueryMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *QueryMetrics {
	qm := &QueryMetrics{
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queries_total",
				Help:      "Total number of queries processed",
			},
			[]string{"op", "outcome"},
		),

		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "query_duration_seconds",
				Help:      "Duration of queries in seconds",
				Buckets:   cfg.QueryDurationBuckets,
			},
			[]string{"op"},
		),
	}

	registry.MustRegister(
		qm.queriesTotal,
		qm.queryDuration,
	)

	return qm
}

// Observe records one completed query.
func (qm *QueryMetrics) Observe(op, outcome string, seconds float64) {
	qm.queriesTotal.WithLabelValues(op, outcome).Inc()
	qm.queryDuration.WithLabelValues(op).Observe(seconds)
}
