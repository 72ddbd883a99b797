package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"mercator-hq/saturn/pkg/protocol"
	"mercator-hq/saturn/pkg/protocol/legacy"
	v3 "mercator-hq/saturn/pkg/protocol/v3"
	"mercator-hq/saturn/pkg/rpc"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/wire"
)

// ErrInsecureToken is returned when an auth token would be sent over
// plaintext TCP without an explicit override.
var ErrInsecureToken = errors.New("refusing to send auth token over plaintext tcp (use --allow-insecure to override)")

const (
	dialTimeout = 10 * time.Second

	// ShutdownFlushTimeout bounds waiting for the router to close the
	// connection after a requested shutdown.
	ShutdownFlushTimeout = 2 * time.Second
)

// RunnerConfig configures a standalone worker process.
type RunnerConfig struct {
	// ConnectAddr is "unix:///path" or "host:port".
	ConnectAddr  string
	ShardID      protocol.ShardID
	CacheDir     string
	BuildVersion string

	// AuthToken is read from the environment by the caller, never argv.
	AuthToken string

	// AllowInsecure permits sending AuthToken over plaintext TCP.
	AllowInsecure bool

	// TLS, when set, wraps the TCP connection.
	TLS *tls.Config

	// Legacy selects the protocol version 2 lockstep session instead of
	// the multiplexed v3 one.
	Legacy bool

	Limits wire.Limits
	Log    *logging.Logger
}

// Runner owns one worker session: dial, handshake, serve, exit.
type Runner struct {
	cfg   RunnerConfig
	state *State
	log   *logging.Logger
}

// NewRunner builds a runner and its shard state. The cache is not read
// until Run.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Limits.MaxFrameBytes == 0 {
		cfg.Limits = wire.DefaultLimits()
	}
	log := cfg.Log.With("component", "worker", "shard_id", cfg.ShardID)
	return &Runner{
		cfg: cfg,
		state: NewState(StateConfig{
			ShardID:      cfg.ShardID,
			CacheDir:     cfg.CacheDir,
			BuildVersion: cfg.BuildVersion,
		}, cfg.Log),
		log: log,
	}
}

// Run connects to the router and serves until the router shuts the
// worker down, the connection fails, or ctx is cancelled. A clean
// router-requested shutdown returns nil.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.checkTransportSecurity(); err != nil {
		return err
	}

	cached := r.state.RestoreFromCache()

	conn, err := r.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial %s: %w", r.cfg.ConnectAddr, err)
	}

	if r.cfg.Legacy {
		return r.runLegacy(ctx, conn, cached)
	}

	hello := &v3.WorkerHello{
		ShardID:           r.cfg.ShardID,
		AuthToken:         r.cfg.AuthToken,
		SupportedVersions: v3.DefaultSupportedVersions,
		Capabilities:      v3.DefaultCapabilities(r.cfg.Limits.MaxFrameBytes),
		CachedIndexInfo:   cached,
		WorkerBuild:       r.cfg.BuildVersion,
	}
	rc, welcome, err := rpc.WorkerHandshake(conn, hello, r.cfg.Limits, r.log)
	if err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	defer rc.Close()
	r.log.Info("connected",
		"worker_id", welcome.WorkerID,
		"revision", welcome.Revision,
		"protocol", welcome.ChosenVersion.String())

	handler, shutdown := Handler(r.state, r.log)
	rc.SetRequestHandler(handler)

	select {
	case <-shutdown:
		r.log.Info("shutdown requested")
		// The router closes the connection once it has the ack; wait for
		// that so the ack is flushed before teardown.
		select {
		case <-rc.Done():
		case <-time.After(ShutdownFlushTimeout):
		}
		r.state.Flush()
		return nil
	case <-rc.Done():
		r.state.Flush()
		return fmt.Errorf("connection lost: %w", rc.Err())
	case <-ctx.Done():
		r.state.Flush()
		return ctx.Err()
	}
}

// runLegacy performs the protocol version 2 handshake and serves the
// lockstep loop until the router requests shutdown or ctx is cancelled.
func (r *Runner) runLegacy(ctx context.Context, conn net.Conn, cached *protocol.ShardIndexInfo) error {
	defer conn.Close()

	hello := &legacy.WorkerHello{
		ShardID:        r.cfg.ShardID,
		AuthToken:      r.cfg.AuthToken,
		HasAuthToken:   r.cfg.AuthToken != "",
		HasCachedIndex: cached != nil,
	}
	buf, err := legacy.Encode(hello)
	if err != nil {
		return fmt.Errorf("encode hello: %w", err)
	}
	_ = conn.SetDeadline(time.Now().Add(rpc.HandshakeTimeout))
	if err := wire.WriteFrame(conn, buf, r.cfg.Limits); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	payload, err := wire.ReadFrame(conn, r.cfg.Limits)
	if err != nil {
		return fmt.Errorf("read handshake reply: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	msg, err := legacy.Decode(payload)
	if err != nil {
		return fmt.Errorf("decode handshake reply: %w", err)
	}
	switch m := msg.(type) {
	case *legacy.RouterHello:
		if m.ShardID != r.cfg.ShardID {
			return fmt.Errorf("handshake: router assigned shard %d, expected %d", m.ShardID, r.cfg.ShardID)
		}
		if m.ProtocolVersion != legacy.Version {
			return fmt.Errorf("handshake: router speaks protocol %d, expected %d", m.ProtocolVersion, legacy.Version)
		}
		r.log.Info("connected",
			"worker_id", m.WorkerID,
			"revision", m.Revision,
			"protocol", "v2")
	case *legacy.Error:
		return fmt.Errorf("handshake rejected: %s", m.Message)
	default:
		return fmt.Errorf("handshake: unexpected reply %T", msg)
	}

	done := make(chan error, 1)
	go func() {
		done <- ServeLegacy(conn, r.state, r.cfg.Limits, r.log)
	}()
	select {
	case err := <-done:
		r.state.Flush()
		if errors.Is(err, ErrShutdownRequested) {
			r.log.Info("shutdown requested")
			return nil
		}
		return fmt.Errorf("connection lost: %w", err)
	case <-ctx.Done():
		conn.Close()
		<-done
		r.state.Flush()
		return ctx.Err()
	}
}

// checkTransportSecurity enforces the token-exposure rule: an auth token
// never travels over plaintext TCP unless explicitly allowed. Unix
// sockets and TLS are always fine.
func (r *Runner) checkTransportSecurity() error {
	if r.cfg.AuthToken == "" || r.cfg.AllowInsecure || r.cfg.TLS != nil {
		return nil
	}
	if strings.HasPrefix(r.cfg.ConnectAddr, "unix://") {
		return nil
	}
	return ErrInsecureToken
}

func (r *Runner) dial(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: dialTimeout}
	if path, ok := strings.CutPrefix(r.cfg.ConnectAddr, "unix://"); ok {
		return d.DialContext(ctx, "unix", path)
	}
	if r.cfg.TLS != nil {
		td := &tls.Dialer{NetDialer: d, Config: r.cfg.TLS}
		return td.DialContext(ctx, "tcp", r.cfg.ConnectAddr)
	}
	return d.DialContext(ctx, "tcp", r.cfg.ConnectAddr)
}
