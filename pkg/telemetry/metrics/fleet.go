package metrics

import (
	"strconv"

	"mercator-hq/saturn/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// FleetMetrics tracks the state of the worker fleet.
//
// Metrics:
//   - saturn_router_shard_symbols: Indexed symbol count gauge per shard
//   - saturn_router_worker_restarts_total: Worker restarts per shard
//   - saturn_router_handshake_rejections_total: Rejected handshakes by code
type FleetMetrics struct {
	shardSymbols        *prometheus.GaugeVec
	workerRestarts      *prometheus.CounterVec
	handshakeRejections *prometheus.CounterVec
}

// NewFleetMetrics creates and registers fleet metrics with the provided registry.
func NewFleetMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *FleetMetrics {
	fm := &FleetMetrics{
		shardSymbols: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "shard_symbols",
				Help:      "Number of indexed symbols per shard",
			},
			[]string{"shard"},
		),

		workerRestarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "worker_restarts_total",
				Help:      "Total number of worker process restarts",
			},
			[]string{"shard"},
		),

		handshakeRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "handshake_rejections_total",
				Help:      "Total number of rejected worker handshakes",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		fm.shardSymbols,
		fm.workerRestarts,
		fm.handshakeRejections,
	)

	return fm
}

// SetShardSymbols updates the symbol count gauge for a shard.
func (fm *FleetMetrics) SetShardSymbols(shard uint32, n float64) {
	fm.shardSymbols.WithLabelValues(shardLabel(shard)).Set(n)
}

// RecordRestart records a worker restart for a shard.
func (fm *FleetMetrics) RecordRestart(shard uint32) {
	fm.workerRestarts.WithLabelValues(shardLabel(shard)).Inc()
}

// RecordHandshakeRejection records a rejected handshake by rejection code.
func (fm *FleetMetrics) RecordHandshakeRejection(code string) {
	fm.handshakeRejections.WithLabelValues(code).Inc()
}

// shardLabel renders a shard id as a metric label. Shard counts are small
// and fixed by the workspace layout, so cardinality is bounded.
func shardLabel(shard uint32) string {
	return strconv.FormatUint(uint64(shard), 10)
}
