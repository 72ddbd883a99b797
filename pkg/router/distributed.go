package router

import (
	"context"
	stdtls "crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/google/uuid"

	"mercator-hq/saturn/pkg/protocol"
	v3 "mercator-hq/saturn/pkg/protocol/v3"
	"mercator-hq/saturn/pkg/rpc"
	tlssec "mercator-hq/saturn/pkg/security/tls"
	"mercator-hq/saturn/pkg/supervisor"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/workspace"
)

// NewDistributed builds a router that accepts worker connections on the
// configured listener and, with SpawnWorkers, starts one supervised
// local worker process per shard.
func NewDistributed(cfg DistributedConfig, layout *workspace.Layout, log *logging.Logger, opts ...Option) (*QueryRouter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SpawnWorkers && cfg.AuthToken == "" {
		cfg.AuthToken = uuid.NewString()
	}

	r := newBase(layout, log, cfg.Limits(), opts)
	r.cfg = &cfg
	r.handshakeSem = make(chan struct{}, cfg.MaxInflightHandshakes)
	r.log.Info("starting distributed router", "config", cfg.String(), "shards", layout.NumShards())

	var allowlist *tlssec.Allowlist
	var tlsCfg *stdtls.Config
	var err error
	if cfg.Listen.IsTLS() {
		tlsCfg, err = cfg.Listen.TLS.ToTLSConfig()
		if err != nil {
			return nil, err
		}
		reloader := tlssec.NewCertificateReloader(cfg.Listen.TLS.CertFile, cfg.Listen.TLS.KeyFile,
			cfg.Listen.TLS.ParseReloadInterval(), log)
		reloadCtx, stopReloader := context.WithCancel(context.Background())
		if err := reloader.Start(reloadCtx); err != nil {
			stopReloader()
			return nil, fmt.Errorf("certificate reloader: %w", err)
		}
		r.stopReloader = stopReloader
		// The reloader owns the serving certificate from here on, so
		// rotated cert files are picked up without a restart.
		tlsCfg.Certificates = nil
		tlsCfg.GetCertificate = reloader.GetCertificateFunc()

		allowlist, err = cfg.Listen.TLS.Allowlist()
		if err != nil {
			stopReloader()
			return nil, fmt.Errorf("fingerprint allowlist: %w", err)
		}
	}
	ln, err := listen(cfg.Listen, tlsCfg)
	if err != nil {
		if r.stopReloader != nil {
			r.stopReloader()
		}
		return nil, err
	}
	r.listener = ln

	r.wg.Add(1)
	go r.acceptLoop(allowlist)

	if cfg.SpawnWorkers {
		connectAddr := cfg.Listen.connectAddr(ln.Addr())
		for _, slot := range r.slots {
			spec := supervisor.ProcessSpec{
				Binary:        cfg.WorkerCommand,
				ConnectAddr:   connectAddr,
				ShardID:       slot.shard,
				CacheDir:      cfg.CacheDir,
				MaxRPCBytes:   cfg.MaxRPCBytes,
				AuthToken:     cfg.AuthToken,
				AllowInsecure: cfg.AllowInsecureTCP,
			}
			supOpts := []supervisor.Option{}
			if r.journal != nil {
				supOpts = append(supOpts, supervisor.WithJournal(r.journal))
			}
			if r.met != nil {
				supOpts = append(supOpts, supervisor.WithRestartHook(func(shard protocol.ShardID) {
					r.met.RecordWorkerRestart(uint32(shard))
				}))
			}
			sup := supervisor.New(spec, log, supOpts...)
			sup.Start()
			r.sups = append(r.sups, sup)
		}
	}
	return r, nil
}

func listen(addr ListenAddr, tlsCfg *stdtls.Config) (net.Listener, error) {
	if addr.IsUnix() {
		// A stale socket from an unclean shutdown blocks the bind.
		_ = os.Remove(addr.Addr)
		return net.Listen("unix", addr.Addr)
	}
	ln, err := net.Listen("tcp", addr.Addr)
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		ln = stdtls.NewListener(ln, tlsCfg)
	}
	return ln, nil
}

// Addr returns the bound listener address, or nil for in-process mode.
func (r *QueryRouter) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// AuthToken returns the effective worker auth token, which may have been
// auto-generated. Callers must not log it.
func (r *QueryRouter) AuthToken() string {
	if r.cfg == nil {
		return ""
	}
	return r.cfg.AuthToken
}

func (r *QueryRouter) acceptLoop(allowlist *tlssec.Allowlist) {
	defer r.wg.Done()
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			select {
			case <-r.closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Warn("accept failed", "error", err)
			continue
		}

		if int(r.workerConns.Load()) >= r.cfg.MaxWorkerConnections {
			conn.Close()
			continue
		}
		select {
		case r.handshakeSem <- struct{}{}:
			r.wg.Add(1)
			go r.handleConn(conn, allowlist)
		default:
			// Handshake pressure: drop rather than queue.
			conn.Close()
		}
	}
}

func (r *QueryRouter) handleConn(conn net.Conn, allowlist *tlssec.Allowlist) {
	defer r.wg.Done()
	defer func() { <-r.handshakeSem }()

	var reserved *shardSlot
	res, err := rpc.RouterHandshake(conn, rpc.RouterHandshakeConfig{
		Limits:    r.limits,
		AuthToken: r.cfg.AuthToken,
		Authorize: func(shard protocol.ShardID) error {
			if allowlist.Empty() {
				return nil
			}
			cert := tlssec.PeerCertificate(conn)
			if !allowlist.Allowed(uint32(shard), cert) {
				return fmt.Errorf("client certificate is not in the fingerprint allowlist for shard %d", shard)
			}
			return nil
		},
		Revision: r.shardRevision,
		Admission: func(shard protocol.ShardID) error {
			slot, ok := r.slot(shard)
			if !ok {
				return fmt.Errorf("shard %d is not in the workspace layout", shard)
			}
			if err := slot.tryReserve(); err != nil {
				return err
			}
			reserved = slot
			return nil
		},
		AssignWorkerID: r.assignWorkerID,
		Log:            r.log,
	})
	if err != nil {
		if reserved != nil {
			reserved.releaseReservation()
		}
		conn.Close()
		r.log.Warn("worker handshake failed", "remote", conn.RemoteAddr(), "error", err)
		r.recordHandshakeRejection(err)
		return
	}

	var wc workerConn
	if res.Conn != nil {
		wc = newV3Conn(res.Conn, res.ShardID)
		slot := reserved
		res.Conn.SetNotificationHandler(func(n *v3.Notification) {
			if n.CachedIndex != nil {
				info := n.CachedIndex.Info
				slot.setCachedInfo(&info)
			}
		})
	} else {
		wc = newLegacyConn(res.Legacy, res.ShardID)
	}

	cached := res.CachedIndexInfo
	reserved.attach(wc, res.WorkerID, cached)
	r.workerConns.Add(1)
	r.log.Info("worker connected",
		"worker_id", res.WorkerID,
		"shard_id", res.ShardID,
		"remote", conn.RemoteAddr(),
		"legacy", res.Legacy != nil,
		"has_cached_index", res.HasCachedIndex)

	r.wg.Add(1)
	go func(slot *shardSlot) {
		defer r.wg.Done()
		select {
		case <-wc.Done():
		case <-r.closed:
		}
		slot.detach(wc)
		r.workerConns.Add(-1)
		r.log.Info("worker disconnected", "worker_id", res.WorkerID, "shard_id", res.ShardID)
	}(reserved)
}

func (r *QueryRouter) recordHandshakeRejection(err error) {
	if r.met == nil {
		return
	}
	code := "transport"
	var rejected *rpc.RejectedError
	if errors.As(err, &rejected) {
		code = rejected.Code.String()
	}
	r.met.RecordHandshakeRejection(code)
}
