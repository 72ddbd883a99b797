package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	// Decode over the true-boolean baseline so absent fields keep their
	// defaults.
	cfg := baseline()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Environment variables follow the
// naming convention SATURN_SECTION_FIELD (e.g., SATURN_ROUTER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format SATURN_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Workspace overrides
	if val := os.Getenv("SATURN_WORKSPACE_ROOTS"); val != "" {
		cfg.Workspace.Roots = splitList(val)
	}

	// Router overrides
	if val := os.Getenv("SATURN_ROUTER_LISTEN_NETWORK"); val != "" {
		cfg.Router.ListenNetwork = val
	}
	if val := os.Getenv("SATURN_ROUTER_LISTEN_ADDRESS"); val != "" {
		cfg.Router.ListenAddress = val
	}
	if val := os.Getenv("SATURN_ROUTER_AUTH_TOKEN"); val != "" {
		cfg.Router.AuthToken = val
	}
	if val := os.Getenv("SATURN_ROUTER_ALLOW_INSECURE_TCP"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Router.AllowInsecureTCP = b
		}
	}
	if val := os.Getenv("SATURN_ROUTER_SPAWN_WORKERS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Router.SpawnWorkers = b
		}
	}
	if val := os.Getenv("SATURN_ROUTER_WORKER_COMMAND"); val != "" {
		cfg.Router.WorkerCommand = val
	}
	if val := os.Getenv("SATURN_ROUTER_MAX_RPC_BYTES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Router.MaxRPCBytes = i
		}
	}
	if val := os.Getenv("SATURN_ROUTER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Router.ShutdownTimeout = d
		}
	}

	// Cache overrides
	if val := os.Getenv("SATURN_CACHE_DIR"); val != "" {
		cfg.Cache.Dir = val
	}
	if val := os.Getenv("SATURN_CACHE_MAX_AGE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Cache.MaxAge = d
		}
	}
	if val := os.Getenv("SATURN_CACHE_MAX_TOTAL_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Cache.MaxTotalBytes = i
		}
	}
	if val := os.Getenv("SATURN_CACHE_PRUNE_SCHEDULE"); val != "" {
		cfg.Cache.PruneSchedule = val
	}

	// Watch overrides
	if val := os.Getenv("SATURN_WATCH_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Watch.Enabled = b
		}
	}
	if val := os.Getenv("SATURN_WATCH_DEBOUNCE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Watch.Debounce = d
		}
	}

	// Telemetry overrides
	if val := os.Getenv("SATURN_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("SATURN_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("SATURN_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("SATURN_TELEMETRY_METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Telemetry.Metrics.ListenAddress = val
	}
	if val := os.Getenv("SATURN_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}

	// Security overrides
	if val := os.Getenv("SATURN_SECURITY_TLS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Security.TLS.Enabled = b
		}
	}
	if val := os.Getenv("SATURN_SECURITY_TLS_CERT_FILE"); val != "" {
		cfg.Security.TLS.CertFile = val
	}
	if val := os.Getenv("SATURN_SECURITY_TLS_KEY_FILE"); val != "" {
		cfg.Security.TLS.KeyFile = val
	}
	if val := os.Getenv("SATURN_SECURITY_TLS_MIN_VERSION"); val != "" {
		cfg.Security.TLS.MinVersion = val
	}
	if val := os.Getenv("SATURN_SECURITY_MTLS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Security.TLS.MTLS.Enabled = b
		}
	}
	if val := os.Getenv("SATURN_SECURITY_MTLS_CLIENT_CA_FILE"); val != "" {
		cfg.Security.TLS.MTLS.ClientCAFile = val
	}
	if val := os.Getenv("SATURN_SECURITY_MTLS_ALLOWED_FINGERPRINTS"); val != "" {
		cfg.Security.TLS.MTLS.AllowedFingerprints = splitList(val)
	}
}

// splitList splits a comma-separated environment value into its entries,
// trimming whitespace and dropping empties.
func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
