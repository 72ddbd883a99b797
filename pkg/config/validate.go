package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "router.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
//
// Transport security rules that depend on the assembled listener (plaintext
// TCP with an auth token, allowlist without mTLS) are enforced by the router
// when the daemon starts; this validation covers everything knowable from
// the file alone.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateWorkspace(&cfg.Workspace)...)
	errs = append(errs, validateRouter(&cfg.Router)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateWorkspace validates workspace configuration.
func validateWorkspace(cfg *WorkspaceConfig) []FieldError {
	var errs []FieldError

	if len(cfg.Roots) == 0 {
		errs = append(errs, FieldError{
			Field:   "workspace.roots",
			Message: "at least one source root is required",
		})
	}
	for i, root := range cfg.Roots {
		if root == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("workspace.roots[%d]", i),
				Message: "source root must not be empty",
			})
		}
	}

	return errs
}

// validateRouter validates router configuration.
func validateRouter(cfg *RouterConfig) []FieldError {
	var errs []FieldError

	switch cfg.ListenNetwork {
	case "tcp", "unix":
	default:
		errs = append(errs, FieldError{
			Field:   "router.listen_network",
			Message: fmt.Sprintf("invalid listen network %q (must be tcp or unix)", cfg.ListenNetwork),
		})
	}

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "router.listen_address",
			Message: "listen address is required",
		})
	} else if cfg.ListenNetwork == "tcp" {
		if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "router.listen_address",
				Message: fmt.Sprintf("invalid address %q (expected host:port)", cfg.ListenAddress),
			})
		}
	}

	if cfg.SpawnWorkers && cfg.WorkerCommand == "" {
		errs = append(errs, FieldError{
			Field:   "router.worker_command",
			Message: "worker command is required when spawn_workers is enabled",
		})
	}

	if cfg.MaxRPCBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "router.max_rpc_bytes",
			Message: "max RPC bytes must not be negative",
		})
	}

	if cfg.MaxInflightHandshakes <= 0 {
		errs = append(errs, FieldError{
			Field:   "router.max_inflight_handshakes",
			Message: "max inflight handshakes must be positive",
		})
	}

	if cfg.MaxWorkerConnections <= 0 {
		errs = append(errs, FieldError{
			Field:   "router.max_worker_connections",
			Message: "max worker connections must be positive",
		})
	}

	return errs
}

// validateCache validates cache configuration.
func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	if cfg.Dir == "" {
		errs = append(errs, FieldError{
			Field:   "cache.dir",
			Message: "cache directory is required",
		})
	}

	if cfg.MaxAge < 0 {
		errs = append(errs, FieldError{
			Field:   "cache.max_age",
			Message: "max age must not be negative",
		})
	}

	if cfg.MaxTotalBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "cache.max_total_bytes",
			Message: "max total bytes must not be negative",
		})
	}

	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "cache.prune_schedule",
				Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.PruneSchedule, err),
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json, text, or console)", cfg.Logging.Format),
		})
	}

	for i, pattern := range cfg.Logging.RedactPatterns {
		if pattern.Pattern == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: "redaction pattern must not be empty",
			})
			continue
		}
		if _, err := regexp.Compile(pattern.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: fmt.Sprintf("invalid address %q (expected host:port)", cfg.Metrics.ListenAddress),
			})
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: fmt.Sprintf("metrics path %q must start with /", cfg.Metrics.Path),
			})
		}
	}

	return errs
}

// validateSecurity validates security configuration.
func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	tls := &cfg.TLS
	if tls.Enabled {
		if tls.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_file",
				Message: "certificate file is required when TLS is enabled",
			})
		}
		if tls.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_file",
				Message: "key file is required when TLS is enabled",
			})
		}
	}

	switch tls.MinVersion {
	case "1.2", "1.3":
	default:
		errs = append(errs, FieldError{
			Field:   "security.tls.min_version",
			Message: fmt.Sprintf("invalid TLS version %q (must be 1.2 or 1.3)", tls.MinVersion),
		})
	}

	if tls.ReloadInterval != "" {
		if _, err := time.ParseDuration(tls.ReloadInterval); err != nil {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_reload_interval",
				Message: fmt.Sprintf("invalid duration %q: %v", tls.ReloadInterval, err),
			})
		}
	}

	mtls := &tls.MTLS
	if mtls.Enabled {
		if !tls.Enabled {
			errs = append(errs, FieldError{
				Field:   "security.tls.mtls.enabled",
				Message: "mutual TLS requires TLS to be enabled",
			})
		}
		if mtls.ClientCAFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.mtls.client_ca_file",
				Message: "client CA file is required when mutual TLS is enabled",
			})
		}
		switch mtls.ClientAuthType {
		case "require", "verify_if_given", "request":
		default:
			errs = append(errs, FieldError{
				Field:   "security.tls.mtls.client_auth_type",
				Message: fmt.Sprintf("invalid client auth type %q (must be require, verify_if_given, or request)", mtls.ClientAuthType),
			})
		}
	}

	errs = append(errs, validateFingerprints("security.tls.mtls.allowed_fingerprints", mtls.AllowedFingerprints)...)
	for shard, fps := range mtls.ShardFingerprints {
		field := fmt.Sprintf("security.tls.mtls.shard_fingerprints[%d]", shard)
		errs = append(errs, validateFingerprints(field, fps)...)
	}

	return errs
}

var fingerprintHex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// validateFingerprints checks that each entry looks like a SHA-256
// fingerprint: 64 hex digits, optionally colon-separated, optionally
// carrying the openssl "SHA256 Fingerprint=" prefix.
func validateFingerprints(field string, fps []string) []FieldError {
	var errs []FieldError

	for i, fp := range fps {
		norm := strings.ToLower(strings.TrimSpace(fp))
		if idx := strings.Index(norm, "="); idx >= 0 {
			norm = norm[idx+1:]
		}
		norm = strings.ReplaceAll(norm, ":", "")
		if !fingerprintHex.MatchString(norm) {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("invalid SHA-256 fingerprint %q", fp),
			})
		}
	}

	return errs
}
