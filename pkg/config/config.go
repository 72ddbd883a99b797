package config

import "time"

// Config is the root configuration structure for the Saturn query router.
// It contains all configuration sections for the workspace layout, the
// router daemon, the shard index cache, telemetry, and security settings.
type Config struct {
	// Workspace contains the source root layout. Each root becomes one
	// shard; the shard id is the root's position in the list.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Router contains the router daemon configuration including the worker
	// listen address, worker spawning, and RPC limits.
	Router RouterConfig `yaml:"router"`

	// Cache contains the persisted shard index cache configuration.
	Cache CacheConfig `yaml:"cache"`

	// Watch contains filesystem watch mode configuration.
	Watch WatchConfig `yaml:"watch"`

	// Telemetry contains observability configuration: logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains TLS and mutual TLS settings for the worker
	// listener.
	Security SecurityConfig `yaml:"security"`
}

// WorkspaceConfig describes the workspace the router serves.
type WorkspaceConfig struct {
	// Roots lists the source root directories, one shard per entry.
	// Shard ids follow list order: the first root is shard 0.
	Roots []string `yaml:"roots"`
}

// RouterConfig contains the router daemon configuration.
type RouterConfig struct {
	// ListenNetwork selects the worker listener transport.
	// Options: "tcp", "unix"
	// Default: "unix"
	ListenNetwork string `yaml:"listen_network"`

	// ListenAddress is the address workers connect to. For tcp this is
	// "host:port"; for unix it is a socket path.
	// Default: "saturn.sock" under the cache directory
	ListenAddress string `yaml:"listen_address"`

	// AuthToken is the shared secret workers must present during the
	// handshake. Prefer the SATURN_ROUTER_AUTH_TOKEN environment variable
	// over placing the token in a configuration file. When workers are
	// spawned by the router and no token is set, one is generated.
	AuthToken string `yaml:"auth_token"`

	// AllowInsecureTCP permits a plaintext TCP listener with an auth token
	// or a non-loopback bind address. Intended for local testing only.
	// Default: false
	AllowInsecureTCP bool `yaml:"allow_insecure_tcp"`

	// SpawnWorkers controls whether the router launches and supervises one
	// worker process per shard. When false, workers are started
	// externally and connect on their own.
	// Default: true
	SpawnWorkers bool `yaml:"spawn_workers"`

	// WorkerCommand is the worker binary launched per shard when
	// SpawnWorkers is enabled.
	// Default: "saturn-worker"
	WorkerCommand string `yaml:"worker_command"`

	// MaxRPCBytes caps the size of a single RPC frame. Zero uses the
	// built-in default (32 MiB); values are clamped to the 64 MiB hard
	// ceiling.
	// Default: 0
	MaxRPCBytes int `yaml:"max_rpc_bytes"`

	// MaxInflightHandshakes caps concurrent worker handshakes.
	// Default: 128
	MaxInflightHandshakes int `yaml:"max_inflight_handshakes"`

	// MaxWorkerConnections caps accepted worker connections.
	// Default: 1024
	MaxWorkerConnections int `yaml:"max_worker_connections"`

	// ShutdownTimeout is the maximum duration to wait for workers to
	// acknowledge shutdown before connections are closed.
	// Default: 5s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CacheConfig contains the persisted shard index cache configuration.
type CacheConfig struct {
	// Dir is the directory holding persisted shard indexes.
	// Default: "data/shard-cache"
	Dir string `yaml:"dir"`

	// MaxAge removes cached indexes older than this during pruning.
	// Zero disables the age bound.
	// Default: 336h (14 days)
	MaxAge time.Duration `yaml:"max_age"`

	// MaxTotalBytes caps the cache directory's total size during pruning.
	// Zero disables the size bound.
	// Default: 1073741824 (1 GiB)
	MaxTotalBytes int64 `yaml:"max_total_bytes"`

	// PruneSchedule is the cron schedule for cache prune passes.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`
}

// WatchConfig contains filesystem watch mode configuration.
type WatchConfig struct {
	// Enabled turns on the recursive filesystem watcher. Changed files
	// are re-sent to their shard's worker as they settle.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Debounce is the quiet period a file must hold before its change is
	// forwarded. Editors often write several events per save.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets enables automatic redaction of token-bearing values
	// in log output.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`

	// BufferSize is the size of the async log buffer.
	// Logs are written asynchronously to avoid blocking.
	// Default: 10000
	BufferSize int `yaml:"buffer_size"`

	// RedactPatterns contains custom redaction patterns applied on top of
	// the built-in secret redaction.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address for the Prometheus metrics endpoint.
	// Default: "127.0.0.1:9600"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "saturn"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "router"
	Subsystem string `yaml:"subsystem"`

	// QueryDurationBuckets defines histogram buckets for query duration
	// (seconds).
	// Default: [0.001, 0.005, 0.025, 0.1, 0.5, 2.0, 10.0, 30.0]
	QueryDurationBuckets []float64 `yaml:"query_duration_buckets"`
}

// SecurityConfig contains security-related configuration for the worker
// listener.
type SecurityConfig struct {
	// TLS contains TLS configuration for the worker listener.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS configuration. It mirrors the shape consumed by
// pkg/security/tls so a section can be copied across verbatim.
type TLSConfig struct {
	// Enabled controls whether TLS is enabled for the worker listener.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the TLS certificate file.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the TLS private key file.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the minimum TLS version to accept.
	// Options: "1.2", "1.3"
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// CipherSuites restricts TLS 1.2 cipher suites. Empty uses Go's
	// secure defaults.
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadInterval is how often certificates are re-read from disk.
	// Empty disables reloading.
	ReloadInterval string `yaml:"cert_reload_interval"`

	// MTLS contains mutual TLS configuration.
	MTLS MTLSConfig `yaml:"mtls"`
}

// MTLSConfig contains mutual TLS configuration.
type MTLSConfig struct {
	// Enabled controls whether client certificates are required.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ClientCAFile is the path to the CA bundle used to verify worker
	// certificates.
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuthType controls how strictly client certificates are
	// demanded.
	// Options: "require", "verify_if_given", "request"
	// Default: "require"
	ClientAuthType string `yaml:"client_auth_type"`

	// AllowedFingerprints lists SHA-256 certificate fingerprints accepted
	// from any shard. Empty admits any certificate the CA verifies.
	AllowedFingerprints []string `yaml:"allowed_fingerprints"`

	// ShardFingerprints maps a shard id to the fingerprints accepted for
	// that shard. A shard entry overrides AllowedFingerprints for that
	// shard.
	ShardFingerprints map[uint32][]string `yaml:"shard_fingerprints"`
}
