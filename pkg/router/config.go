package router

import (
	"fmt"
	"net"
	"strings"

	"mercator-hq/saturn/pkg/config"
	tlssec "mercator-hq/saturn/pkg/security/tls"
	"mercator-hq/saturn/pkg/wire"
)

// Admission and query defaults.
const (
	DefaultMaxInflightHandshakes = 128
	DefaultMaxWorkerConnections  = 1024

	// WorkspaceSymbolLimit caps a merged workspace symbol result.
	WorkspaceSymbolLimit = 200
)

// ListenAddr is the worker-facing listen address: a Unix socket, plain
// TCP, or TCP+TLS.
type ListenAddr struct {
	// Network is "tcp" (default) or "unix".
	Network string `yaml:"network"`

	// Addr is "host:port" for TCP, a socket path for Unix.
	Addr string `yaml:"addr"`

	// TLS upgrades a TCP listener to TCP+TLS when enabled.
	TLS *tlssec.Config `yaml:"tls,omitempty"`
}

// IsUnix reports whether the listener is a Unix socket.
func (l ListenAddr) IsUnix() bool { return l.Network == "unix" }

// IsTLS reports whether the listener terminates TLS.
func (l ListenAddr) IsTLS() bool {
	return !l.IsUnix() && l.TLS != nil && l.TLS.Enabled
}

// IsLoopback reports whether a TCP listener binds a loopback address.
// An empty or wildcard host binds every interface and is not loopback.
func (l ListenAddr) IsLoopback() bool {
	if l.IsUnix() {
		return true
	}
	host, _, err := net.SplitHostPort(l.Addr)
	if err != nil {
		host = l.Addr
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (l ListenAddr) String() string {
	switch {
	case l.IsUnix():
		return "unix://" + l.Addr
	case l.IsTLS():
		return "tcp+tls://" + l.Addr
	default:
		return "tcp://" + l.Addr
	}
}

// connectAddr is the address handed to spawned workers.
func (l ListenAddr) connectAddr(bound net.Addr) string {
	if l.IsUnix() {
		return "unix://" + l.Addr
	}
	return bound.String()
}

// DistributedConfig configures NewDistributed.
type DistributedConfig struct {
	Listen ListenAddr `yaml:"listen"`

	// AuthToken must be presented by every worker hello when non-empty.
	// Auto-generated when SpawnWorkers is set and no token is configured.
	AuthToken string `yaml:"auth_token"`

	// AllowInsecureTCP opts in to plaintext TCP listeners that the
	// validation rules below would otherwise refuse.
	AllowInsecureTCP bool `yaml:"allow_insecure_tcp"`

	// SpawnWorkers starts one supervised local worker process per shard.
	SpawnWorkers bool `yaml:"spawn_workers"`

	// WorkerCommand is the worker binary path for spawned workers.
	WorkerCommand string `yaml:"worker_command"`

	// CacheDir is handed to spawned workers for index persistence.
	CacheDir string `yaml:"cache_dir"`

	// MaxRPCBytes overrides the frame size limit. Zero means default.
	MaxRPCBytes uint32 `yaml:"max_rpc_bytes"`

	MaxInflightHandshakes int `yaml:"max_inflight_handshakes"`
	MaxWorkerConnections  int `yaml:"max_worker_connections"`
}

// LocalIPC returns the conservative configuration for a Unix socket
// with locally spawned workers. Frontends use this instead of filling
// in the struct field by field.
func LocalIPC(socketPath, workerCommand, cacheDir string) DistributedConfig {
	return DistributedConfig{
		Listen:        ListenAddr{Network: "unix", Addr: socketPath},
		SpawnWorkers:  true,
		WorkerCommand: workerCommand,
		CacheDir:      cacheDir,
	}
}

// ApplyDefaults fills zero-valued admission limits.
func (c *DistributedConfig) ApplyDefaults() {
	if c.Listen.Network == "" {
		c.Listen.Network = "tcp"
	}
	if c.MaxInflightHandshakes <= 0 {
		c.MaxInflightHandshakes = DefaultMaxInflightHandshakes
	}
	if c.MaxWorkerConnections <= 0 {
		c.MaxWorkerConnections = DefaultMaxWorkerConnections
	}
}

// Limits returns the wire limits for this configuration.
func (c *DistributedConfig) Limits() wire.Limits {
	if c.MaxRPCBytes > 0 {
		return wire.WithMaxFrameBytes(c.MaxRPCBytes)
	}
	return wire.DefaultLimits()
}

// Validate collects every configuration violation. The transport rules:
// a plaintext TCP listener must be loopback, must not carry an auth
// token, and must not carry a fingerprint allowlist; spawned workers
// cannot be pointed at a TLS listener.
func (c *DistributedConfig) Validate() error {
	var errs []config.FieldError

	if c.SpawnWorkers && c.Listen.IsTLS() {
		errs = append(errs, config.FieldError{
			Field: "router.spawn_workers",
			Message: "spawn_workers is not supported with a tcp+tls listen address: " +
				"the router has no way to hand TLS client configuration to spawned workers " +
				"(use a unix socket, or set spawn_workers to false and start workers with TLS flags)",
		})
	}
	if c.SpawnWorkers && c.WorkerCommand == "" {
		errs = append(errs, config.FieldError{
			Field:   "router.worker_command",
			Message: "worker_command is required when spawn_workers is set",
		})
	}

	if allowlistConfigured(c.Listen.TLS) {
		switch {
		case c.Listen.IsUnix():
			errs = append(errs, config.FieldError{
				Field:   "router.listen.tls.mtls.allowed_fingerprints",
				Message: "certificate fingerprint allowlist requires tcp+tls: a unix socket provides no TLS identities",
			})
		case !c.Listen.IsTLS():
			errs = append(errs, config.FieldError{
				Field:   "router.listen.tls.mtls.allowed_fingerprints",
				Message: "certificate fingerprint allowlist requires tcp+tls, not plaintext TCP",
			})
		case !c.Listen.TLS.MTLS.Enabled:
			errs = append(errs, config.FieldError{
				Field:   "router.listen.tls.mtls",
				Message: "certificate fingerprint allowlist requires mTLS client verification (configure a client CA)",
			})
		}
	}

	if !c.Listen.IsUnix() && !c.Listen.IsTLS() && !c.AllowInsecureTCP {
		if c.AuthToken != "" {
			errs = append(errs, config.FieldError{
				Field: "router.auth_token",
				Message: "refusing plaintext TCP while an auth token is configured: the token and shard " +
					"source code would travel in cleartext (use tcp+tls, or set allow_insecure_tcp for local testing)",
			})
		}
		if !c.Listen.IsLoopback() {
			errs = append(errs, config.FieldError{
				Field: "router.listen.addr",
				Message: fmt.Sprintf("refusing plaintext TCP on %s: the address is not loopback, so worker "+
					"traffic would cross the network unencrypted (use tcp+tls, or set allow_insecure_tcp)", c.Listen.Addr),
			})
		}
	}

	if len(errs) > 0 {
		return config.ValidationError{Errors: errs}
	}
	return nil
}

func allowlistConfigured(t *tlssec.Config) bool {
	if t == nil {
		return false
	}
	if len(t.MTLS.AllowedFingerprints) > 0 {
		return true
	}
	for _, fps := range t.MTLS.ShardFingerprints {
		if len(fps) > 0 {
			return true
		}
	}
	return false
}

// String renders the configuration for logs without exposing the auth
// token.
func (c DistributedConfig) String() string {
	token := "absent"
	if c.AuthToken != "" {
		token = "present"
	}
	return fmt.Sprintf(
		"DistributedConfig{listen=%s, auth_token=%s, allow_insecure_tcp=%t, spawn_workers=%t, max_inflight_handshakes=%d, max_worker_connections=%d}",
		c.Listen, token, c.AllowInsecureTCP, c.SpawnWorkers, c.MaxInflightHandshakes, c.MaxWorkerConnections)
}
