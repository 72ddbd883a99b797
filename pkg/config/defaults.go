package config

import (
	"path/filepath"
	"time"
)

// Default values for configuration fields.
const (
	// Router defaults
	DefaultListenNetwork         = "unix"
	DefaultWorkerCommand         = "saturn-worker"
	DefaultSpawnWorkers          = true
	DefaultMaxInflightHandshakes = 128
	DefaultMaxWorkerConnections  = 1024
	DefaultShutdownTimeout       = 5 * time.Second

	// Cache defaults
	DefaultCacheDir           = "data/shard-cache"
	DefaultCacheMaxAge        = 14 * 24 * time.Hour
	DefaultCacheMaxTotalBytes = int64(1 << 30) // 1 GiB
	DefaultCachePruneSchedule = "0 3 * * *"

	// Watch defaults
	DefaultWatchDebounce = 100 * time.Millisecond

	// Logging defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultLogRedactSecrets = true
	DefaultLogBufferSize    = 10000

	// Metrics defaults
	DefaultMetricsEnabled = true
	DefaultMetricsListen  = "127.0.0.1:9600"
	DefaultMetricsPath    = "/metrics"
	DefaultMetricsNS      = "saturn"
	DefaultMetricsSub     = "router"

	// Security defaults
	DefaultTLSMinVersion      = "1.3"
	DefaultMTLSClientAuthType = "require"

	// DefaultSocketName is the listener socket filename used when no
	// listen address is configured for a unix listener. It is placed
	// under the cache directory.
	DefaultSocketName = "saturn.sock"
)

// DefaultQueryDurationBuckets are the histogram buckets for query
// durations. Warm queries cluster under a second; the tail covers cold
// indexing passes.
var DefaultQueryDurationBuckets = []float64{0.001, 0.005, 0.025, 0.1, 0.5, 2.0, 10.0, 30.0}

// ApplyDefaults fills in default values for any unset configuration
// fields. It modifies the config in place. Boolean fields that default to
// true (spawn_workers, metrics enabled, redact_secrets) are handled by
// NewDefaultConfig rather than here: a false in the file must stay false.
func ApplyDefaults(cfg *Config) {
	// Router defaults
	if cfg.Router.ListenNetwork == "" {
		cfg.Router.ListenNetwork = DefaultListenNetwork
	}
	if cfg.Router.WorkerCommand == "" {
		cfg.Router.WorkerCommand = DefaultWorkerCommand
	}
	if cfg.Router.MaxInflightHandshakes <= 0 {
		cfg.Router.MaxInflightHandshakes = DefaultMaxInflightHandshakes
	}
	if cfg.Router.MaxWorkerConnections <= 0 {
		cfg.Router.MaxWorkerConnections = DefaultMaxWorkerConnections
	}
	if cfg.Router.ShutdownTimeout <= 0 {
		cfg.Router.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Cache defaults
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = DefaultCacheDir
	}
	if cfg.Cache.MaxAge == 0 {
		cfg.Cache.MaxAge = DefaultCacheMaxAge
	}
	if cfg.Cache.MaxTotalBytes == 0 {
		cfg.Cache.MaxTotalBytes = DefaultCacheMaxTotalBytes
	}
	if cfg.Cache.PruneSchedule == "" {
		cfg.Cache.PruneSchedule = DefaultCachePruneSchedule
	}

	// The default socket lives under the cache directory so a bare
	// config works without choosing a path.
	if cfg.Router.ListenAddress == "" && cfg.Router.ListenNetwork == "unix" {
		cfg.Router.ListenAddress = filepath.Join(cfg.Cache.Dir, DefaultSocketName)
	}

	// Watch defaults
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}

	// Logging defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Logging.BufferSize <= 0 {
		cfg.Telemetry.Logging.BufferSize = DefaultLogBufferSize
	}

	// Metrics defaults
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListen
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNS
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSub
	}
	if len(cfg.Telemetry.Metrics.QueryDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.QueryDurationBuckets = append(
			[]float64(nil), DefaultQueryDurationBuckets...,
		)
	}

	// Security defaults
	if cfg.Security.TLS.MinVersion == "" {
		cfg.Security.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Security.TLS.MTLS.ClientAuthType == "" {
		cfg.Security.TLS.MTLS.ClientAuthType = DefaultMTLSClientAuthType
	}
}

// baseline returns a config holding only the booleans that default to
// true. A YAML file is decoded over this so an absent field keeps the
// default while an explicit false in the file stays false.
func baseline() *Config {
	return &Config{
		Router: RouterConfig{
			SpawnWorkers: DefaultSpawnWorkers,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				RedactSecrets: DefaultLogRedactSecrets,
			},
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
			},
		},
	}
}

// NewDefaultConfig returns a configuration with all default values set.
func NewDefaultConfig() *Config {
	cfg := baseline()
	ApplyDefaults(cfg)
	return cfg
}
