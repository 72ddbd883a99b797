package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

const sampleConfig = `
workspace:
  roots:
    - /src/core
    - /src/api

router:
  listen_network: tcp
  listen_address: 127.0.0.1:7600
  allow_insecure_tcp: true
  spawn_workers: false
  max_rpc_bytes: 16777216

cache:
  dir: /var/cache/saturn
  max_age: 72h
  prune_schedule: "30 2 * * *"

watch:
  enabled: true
  debounce: 250ms

telemetry:
  logging:
    level: debug
    format: text
  metrics:
    listen_address: 127.0.0.1:9700
`

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, sampleConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if len(cfg.Workspace.Roots) != 2 {
		t.Errorf("Expected 2 workspace roots, got %d", len(cfg.Workspace.Roots))
	}
	if cfg.Router.ListenAddress != "127.0.0.1:7600" {
		t.Errorf("Expected listen address from file, got %q", cfg.Router.ListenAddress)
	}
	if cfg.Router.SpawnWorkers {
		t.Error("Expected explicit spawn_workers: false to survive defaults")
	}
	if cfg.Router.MaxRPCBytes != 16777216 {
		t.Errorf("Expected max_rpc_bytes from file, got %d", cfg.Router.MaxRPCBytes)
	}
	if cfg.Cache.MaxAge != 72*time.Hour {
		t.Errorf("Expected cache max age 72h, got %v", cfg.Cache.MaxAge)
	}
	if !cfg.Watch.Enabled || cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("Expected watch enabled with 250ms debounce, got %+v", cfg.Watch)
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("Expected debug/text logging, got %q/%q",
			cfg.Telemetry.Logging.Level, cfg.Telemetry.Logging.Format)
	}

	// Absent fields fall back to defaults.
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("Expected metrics to stay enabled when absent from file")
	}
	if cfg.Cache.PruneSchedule != "30 2 * * *" {
		t.Errorf("Expected prune schedule from file, got %q", cfg.Cache.PruneSchedule)
	}
	if cfg.Router.MaxInflightHandshakes != DefaultMaxInflightHandshakes {
		t.Errorf("Expected default handshake cap, got %d", cfg.Router.MaxInflightHandshakes)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "workspace: [unclosed")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("Expected error for malformed YAML")
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	path := writeConfigFile(t, `
workspace:
  roots: []
`)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected wrapped ValidationError, got %T: %v", err, err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, sampleConfig)

	t.Setenv("SATURN_ROUTER_LISTEN_ADDRESS", "127.0.0.1:7700")
	t.Setenv("SATURN_ROUTER_AUTH_TOKEN", "env-token")
	t.Setenv("SATURN_CACHE_DIR", "/tmp/saturn-cache")
	t.Setenv("SATURN_TELEMETRY_LOGGING_LEVEL", "warn")
	t.Setenv("SATURN_WORKSPACE_ROOTS", "/src/one, /src/two, /src/three")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Router.ListenAddress != "127.0.0.1:7700" {
		t.Errorf("Expected env listen address, got %q", cfg.Router.ListenAddress)
	}
	if cfg.Router.AuthToken != "env-token" {
		t.Errorf("Expected env auth token, got %q", cfg.Router.AuthToken)
	}
	if cfg.Cache.Dir != "/tmp/saturn-cache" {
		t.Errorf("Expected env cache dir, got %q", cfg.Cache.Dir)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("Expected env log level, got %q", cfg.Telemetry.Logging.Level)
	}
	want := []string{"/src/one", "/src/two", "/src/three"}
	if len(cfg.Workspace.Roots) != len(want) {
		t.Fatalf("Expected %d roots from env, got %d", len(want), len(cfg.Workspace.Roots))
	}
	for i := range want {
		if cfg.Workspace.Roots[i] != want[i] {
			t.Errorf("Root %d: expected %q, got %q", i, want[i], cfg.Workspace.Roots[i])
		}
	}
}

func TestLoadConfigWithEnvOverrides_InvalidOverride(t *testing.T) {
	path := writeConfigFile(t, sampleConfig)

	t.Setenv("SATURN_TELEMETRY_LOGGING_LEVEL", "shouting")

	_, err := LoadConfigWithEnvOverrides(path)
	if err == nil {
		t.Fatal("Expected validation error after env override")
	}
}
