package metrics

import (
	"time"

	"mercator-hq/saturn/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics tracks the on-disk shard index cache.
//
// Metrics:
//   - saturn_router_cache_prunes_total: Total prune passes
//   - saturn_router_cache_pruned_files_total: Files removed by pruning
//   - saturn_router_cache_pruned_bytes_total: Bytes removed by pruning
//   - saturn_router_cache_bytes: Cache size after the last prune pass
//   - saturn_router_cache_prune_duration_seconds: Prune pass duration
type CacheMetrics struct {
	prunesTotal      prometheus.Counter
	prunedFilesTotal prometheus.Counter
	prunedBytesTotal prometheus.Counter
	cacheBytes       prometheus.Gauge
	pruneDuration    prometheus.Histogram
}

// NewCacheMetrics creates and registers cache metrics with the provided registry.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		prunesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_prunes_total",
				Help:      "Total number of shard index cache prune passes",
			},
		),

		prunedFilesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_pruned_files_total",
				Help:      "Total number of cache files removed by pruning",
			},
		),

		prunedBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_pruned_bytes_total",
				Help:      "Total bytes removed from the cache by pruning",
			},
		),

		cacheBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_bytes",
				Help:      "Shard index cache size after the last prune pass",
			},
		),

		pruneDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_prune_duration_seconds",
				Help:      "Duration of cache prune passes in seconds",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 2.0, 10.0},
			},
		),
	}

	registry.MustRegister(
		cm.prunesTotal,
		cm.prunedFilesTotal,
		cm.prunedBytesTotal,
		cm.cacheBytes,
		cm.pruneDuration,
	)

	return cm
}

// RecordPrune records the result of one prune pass.
func (cm *CacheMetrics) RecordPrune(removed int, removedBytes, keptBytes int64, duration time.Duration) {
	cm.prunesTotal.Inc()
	cm.prunedFilesTotal.Add(float64(removed))
	cm.prunedBytesTotal.Add(float64(removedBytes))
	cm.cacheBytes.Set(float64(keptBytes))
	cm.pruneDuration.Observe(duration.Seconds())
}
