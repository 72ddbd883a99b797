package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Router.ListenNetwork != "unix" {
		t.Errorf("Expected default listen network unix, got %q", cfg.Router.ListenNetwork)
	}
	wantSock := filepath.Join(DefaultCacheDir, DefaultSocketName)
	if cfg.Router.ListenAddress != wantSock {
		t.Errorf("Expected default listen address %q, got %q", wantSock, cfg.Router.ListenAddress)
	}
	if cfg.Router.WorkerCommand != "saturn-worker" {
		t.Errorf("Expected default worker command, got %q", cfg.Router.WorkerCommand)
	}
	if cfg.Router.MaxInflightHandshakes != 128 {
		t.Errorf("Expected default handshake cap 128, got %d", cfg.Router.MaxInflightHandshakes)
	}
	if cfg.Cache.MaxAge != 14*24*time.Hour {
		t.Errorf("Expected default cache max age 14d, got %v", cfg.Cache.MaxAge)
	}
	if cfg.Cache.PruneSchedule != "0 3 * * *" {
		t.Errorf("Expected default prune schedule, got %q", cfg.Cache.PruneSchedule)
	}
	if cfg.Watch.Debounce != 100*time.Millisecond {
		t.Errorf("Expected default debounce 100ms, got %v", cfg.Watch.Debounce)
	}
	if cfg.Telemetry.Logging.Level != "info" || cfg.Telemetry.Logging.Format != "json" {
		t.Errorf("Expected info/json logging defaults, got %q/%q",
			cfg.Telemetry.Logging.Level, cfg.Telemetry.Logging.Format)
	}
	if cfg.Telemetry.Metrics.Path != "/metrics" {
		t.Errorf("Expected default metrics path, got %q", cfg.Telemetry.Metrics.Path)
	}
	if cfg.Security.TLS.MinVersion != "1.3" {
		t.Errorf("Expected default TLS min version 1.3, got %q", cfg.Security.TLS.MinVersion)
	}
}

func TestApplyDefaults_SocketFollowsCacheDir(t *testing.T) {
	cfg := &Config{}
	cfg.Cache.Dir = "/var/cache/saturn"
	ApplyDefaults(cfg)

	want := filepath.Join("/var/cache/saturn", DefaultSocketName)
	if cfg.Router.ListenAddress != want {
		t.Errorf("Expected socket under cache dir %q, got %q", want, cfg.Router.ListenAddress)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Router.ListenNetwork = "tcp"
	cfg.Router.ListenAddress = "127.0.0.1:7600"
	cfg.Cache.MaxAge = time.Hour
	cfg.Telemetry.Logging.Level = "debug"
	ApplyDefaults(cfg)

	if cfg.Router.ListenAddress != "127.0.0.1:7600" {
		t.Errorf("Explicit listen address overwritten: %q", cfg.Router.ListenAddress)
	}
	if cfg.Cache.MaxAge != time.Hour {
		t.Errorf("Explicit cache max age overwritten: %v", cfg.Cache.MaxAge)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Explicit log level overwritten: %q", cfg.Telemetry.Logging.Level)
	}
}

func TestApplyDefaults_TCPGetsNoSocketDefault(t *testing.T) {
	cfg := &Config{}
	cfg.Router.ListenNetwork = "tcp"
	ApplyDefaults(cfg)

	if cfg.Router.ListenAddress != "" {
		t.Errorf("Expected no default address for tcp, got %q", cfg.Router.ListenAddress)
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if !cfg.Router.SpawnWorkers {
		t.Error("Expected spawn_workers to default to true")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("Expected metrics to default to enabled")
	}
	if !cfg.Telemetry.Logging.RedactSecrets {
		t.Error("Expected redact_secrets to default to true")
	}
	if len(cfg.Telemetry.Metrics.QueryDurationBuckets) == 0 {
		t.Error("Expected default query duration buckets")
	}
}
