// Package config provides configuration management for the Saturn query
// router daemon.
//
// # Overview
//
// The config package handles loading, validating, and accessing
// configuration from YAML files with support for:
//
//   - YAML-based configuration files
//   - Environment variable overrides (SATURN_SECTION_FIELD)
//   - Comprehensive validation that collects every error
//   - Default values for all optional settings
//   - Thread-safe singleton access pattern
//
// # Configuration Structure
//
// The configuration is organized into sections:
//
//   - Workspace: source roots, one shard per root
//   - Router: listen address, worker spawning, auth, RPC limits
//   - Cache: persisted shard index location and prune policy
//   - Watch: filesystem watch mode
//   - Telemetry: logging and metrics
//   - Security: TLS and mutual TLS with a fingerprint allowlist
//
// # Usage
//
// Load configuration at application startup:
//
//	err := config.Initialize("/etc/saturn/config.yaml")
//	if err != nil {
//	    log.Fatalf("Failed to load configuration: %v", err)
//	}
//
//	cfg := config.GetConfig()
//
// # Environment Variable Overrides
//
// Any configuration value can be overridden using environment variables
// with the format SATURN_SECTION_FIELD:
//
//	SATURN_ROUTER_LISTEN_ADDRESS="0.0.0.0:7600"
//	SATURN_ROUTER_AUTH_TOKEN="..."   # preferred over auth_token in the file
//	SATURN_CACHE_DIR="/var/cache/saturn"
//	SATURN_TELEMETRY_LOGGING_LEVEL="debug"
//
// Environment variables take precedence over file-based configuration.
//
// # Validation
//
// Validation happens automatically during load and collects every
// problem instead of stopping at the first one:
//
//	var verr config.ValidationError
//	if errors.As(err, &verr) {
//	    for _, fieldErr := range verr.Errors {
//	        fmt.Printf("  %s: %s\n", fieldErr.Field, fieldErr.Message)
//	    }
//	}
package config
