package config

import (
	"errors"
	"strings"
	"testing"
)

// validConfig returns a configuration that passes validation.
func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Workspace.Roots = []string{"/src/core", "/src/api"}
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Expected valid config, got: %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "no workspace roots",
			mutate: func(c *Config) { c.Workspace.Roots = nil },
			field:  "workspace.roots",
		},
		{
			name:   "empty workspace root",
			mutate: func(c *Config) { c.Workspace.Roots = []string{"/src/core", ""} },
			field:  "workspace.roots[1]",
		},
		{
			name:   "bad listen network",
			mutate: func(c *Config) { c.Router.ListenNetwork = "udp" },
			field:  "router.listen_network",
		},
		{
			name:   "missing listen address",
			mutate: func(c *Config) { c.Router.ListenAddress = "" },
			field:  "router.listen_address",
		},
		{
			name: "tcp address without port",
			mutate: func(c *Config) {
				c.Router.ListenNetwork = "tcp"
				c.Router.ListenAddress = "127.0.0.1"
			},
			field: "router.listen_address",
		},
		{
			name: "spawn without worker command",
			mutate: func(c *Config) {
				c.Router.SpawnWorkers = true
				c.Router.WorkerCommand = ""
			},
			field: "router.worker_command",
		},
		{
			name:   "negative max rpc bytes",
			mutate: func(c *Config) { c.Router.MaxRPCBytes = -1 },
			field:  "router.max_rpc_bytes",
		},
		{
			name:   "missing cache dir",
			mutate: func(c *Config) { c.Cache.Dir = "" },
			field:  "cache.dir",
		},
		{
			name:   "bad prune schedule",
			mutate: func(c *Config) { c.Cache.PruneSchedule = "every day at 3" },
			field:  "cache.prune_schedule",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			field:  "telemetry.logging.level",
		},
		{
			name:   "bad log format",
			mutate: func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			field:  "telemetry.logging.format",
		},
		{
			name: "bad redact pattern",
			mutate: func(c *Config) {
				c.Telemetry.Logging.RedactPatterns = []RedactPattern{
					{Name: "broken", Pattern: "([unclosed"},
				}
			},
			field: "telemetry.logging.redact_patterns[0].pattern",
		},
		{
			name:   "bad metrics address",
			mutate: func(c *Config) { c.Telemetry.Metrics.ListenAddress = "localhost" },
			field:  "telemetry.metrics.listen_address",
		},
		{
			name:   "metrics path without slash",
			mutate: func(c *Config) { c.Telemetry.Metrics.Path = "metrics" },
			field:  "telemetry.metrics.path",
		},
		{
			name: "tls enabled without cert",
			mutate: func(c *Config) {
				c.Security.TLS.Enabled = true
				c.Security.TLS.KeyFile = "key.pem"
			},
			field: "security.tls.cert_file",
		},
		{
			name:   "bad tls version",
			mutate: func(c *Config) { c.Security.TLS.MinVersion = "1.1" },
			field:  "security.tls.min_version",
		},
		{
			name: "mtls without tls",
			mutate: func(c *Config) {
				c.Security.TLS.MTLS.Enabled = true
				c.Security.TLS.MTLS.ClientCAFile = "ca.pem"
			},
			field: "security.tls.mtls.enabled",
		},
		{
			name: "mtls without client ca",
			mutate: func(c *Config) {
				c.Security.TLS.Enabled = true
				c.Security.TLS.CertFile = "cert.pem"
				c.Security.TLS.KeyFile = "key.pem"
				c.Security.TLS.MTLS.Enabled = true
			},
			field: "security.tls.mtls.client_ca_file",
		},
		{
			name: "malformed fingerprint",
			mutate: func(c *Config) {
				c.Security.TLS.MTLS.AllowedFingerprints = []string{"not-a-fingerprint"}
			},
			field: "security.tls.mtls.allowed_fingerprints[0]",
		},
		{
			name: "malformed shard fingerprint",
			mutate: func(c *Config) {
				c.Security.TLS.MTLS.ShardFingerprints = map[uint32][]string{
					3: {"zz"},
				}
			},
			field: "security.tls.mtls.shard_fingerprints[3][0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %T", err)
			}

			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected error for field %q, got: %v", tt.field, verr.Errors)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Workspace.Roots = nil
	cfg.Router.ListenAddress = ""
	cfg.Telemetry.Logging.Level = "loud"

	err := Validate(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %T", err)
	}
	if len(verr.Errors) < 3 {
		t.Errorf("Expected at least 3 collected errors, got %d: %v", len(verr.Errors), verr.Errors)
	}
	if !strings.Contains(verr.Error(), "3 errors") {
		t.Errorf("Expected error count in message, got %q", verr.Error())
	}
}

func TestValidate_FingerprintForms(t *testing.T) {
	hex64 := strings.Repeat("ab", 32)
	colons := make([]string, 32)
	for i := range colons {
		colons[i] = "AB"
	}

	valid := []string{
		hex64,
		strings.ToUpper(hex64),
		strings.Join(colons, ":"),
		"SHA256 Fingerprint=" + strings.Join(colons, ":"),
	}
	for _, fp := range valid {
		cfg := validConfig()
		cfg.Security.TLS.MTLS.AllowedFingerprints = []string{fp}
		if err := Validate(cfg); err != nil {
			t.Errorf("Expected fingerprint %q to validate, got: %v", fp, err)
		}
	}
}

func TestFieldError_Error(t *testing.T) {
	fe := FieldError{Field: "router.listen_address", Message: "listen address is required"}
	want := "router.listen_address: listen address is required"
	if fe.Error() != want {
		t.Errorf("Expected %q, got %q", want, fe.Error())
	}
}
