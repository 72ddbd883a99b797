package metrics

import (
	"time"

	"mercator-hq/saturn/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the main orchestrator for all Prometheus metrics in the router.
// It manages metric registration and provides a unified interface for
// recording metrics across the query surface and the worker fleet.
type Metrics struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Query surface metrics
	queryMetrics *QueryMetrics

	// Worker fleet metrics
	fleetMetrics *FleetMetrics

	// Shard index cache metrics
	cacheMetrics *CacheMetrics
}

// New creates a new metrics collector with the specified configuration and
// Prometheus registry. If registry is nil, a fresh registry is created.
func New(cfg *config.MetricsConfig, registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "saturn"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "router"
	}
	if len(cfg.QueryDurationBuckets) == 0 {
		// Query latencies cluster well under a second once shards are
		// indexed; the tail covers cold indexing passes.
		cfg.QueryDurationBuckets = []float64{0.001, 0.005, 0.025, 0.1, 0.5, 2.0, 10.0, 30.0}
	}

	m := &Metrics{
		config:   cfg,
		registry: registry,
	}

	m.queryMetrics = NewQueryMetrics(cfg, registry)
	m.fleetMetrics = NewFleetMetrics(cfg, registry)
	m.cacheMetrics = NewCacheMetrics(cfg, registry)

	return m
}

// ObserveQuery records one completed query operation.
//
// Parameters:
//   - op: query operation name (e.g. "workspace_symbols", "update_file",
//     "index_workspace")
//   - outcome: "ok" or "error"
//   - seconds: wall-clock duration of the operation
func (m *Metrics) ObserveQuery(op, outcome string, seconds float64) {
	if !m.config.Enabled {
		return
	}

	m.queryMetrics.Observe(op, outcome, seconds)
}

// SetShardSymbols updates the indexed symbol count gauge for a shard.
func (m *Metrics) SetShardSymbols(shard uint32, n float64) {
	if !m.config.Enabled {
		return
	}

	m.fleetMetrics.SetShardSymbols(shard, n)
}

// RecordWorkerRestart records a worker process restart for a shard.
func (m *Metrics) RecordWorkerRestart(shard uint32) {
	if !m.config.Enabled {
		return
	}

	m.fleetMetrics.RecordRestart(shard)
}

// RecordHandshakeRejection records a rejected worker handshake.
//
// Parameters:
//   - code: rejection code (e.g. "unauthorized", "busy", "transport")
func (m *Metrics) RecordHandshakeRejection(code string) {
	if !m.config.Enabled {
		return
	}

	m.fleetMetrics.RecordHandshakeRejection(code)
}

// RecordCachePrune records the result of one shard index cache prune pass.
func (m *Metrics) RecordCachePrune(removed int, removedBytes, keptBytes int64, duration time.Duration) {
	if !m.config.Enabled {
		return
	}

	m.cacheMetrics.RecordPrune(removed, removedBytes, keptBytes, duration)
}

// Registry returns the Prometheus registry used by this collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
