package router

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/saturn/pkg/protocol"
	"mercator-hq/saturn/pkg/rpc"
	"mercator-hq/saturn/pkg/supervisor"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/telemetry/metrics"
	"mercator-hq/saturn/pkg/wire"
	"mercator-hq/saturn/pkg/worker"
	"mercator-hq/saturn/pkg/workspace"
)

// ShutdownRPCTimeout bounds the graceful Shutdown call per worker.
const ShutdownRPCTimeout = 2 * time.Second

// QueryRouter coordinates shard workers: it partitions the workspace by
// source root, delegates indexing, and fans queries out across shards.
type QueryRouter struct {
	layout *workspace.Layout
	log    *logging.Logger
	limits wire.Limits
	met    *metrics.Metrics

	slots        []*shardSlot
	nextWorkerID atomic.Uint32

	// Distributed mode only.
	cfg          *DistributedConfig
	listener     net.Listener
	handshakeSem chan struct{}
	workerConns  atomic.Int32
	sups         []*supervisor.Supervisor
	journal      *supervisor.Journal
	stopReloader context.CancelFunc

	// In-process mode only: the worker halves, closed on shutdown.
	inproc []*rpc.Conn

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// Option configures a QueryRouter.
type Option func(*QueryRouter)

// WithMetrics records router activity to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *QueryRouter) { r.met = m }
}

// WithJournal records spawned worker lifecycle transitions to j. Only
// distributed routers that spawn their own workers write to it.
func WithJournal(j *supervisor.Journal) Option {
	return func(r *QueryRouter) { r.journal = j }
}

func newBase(layout *workspace.Layout, log *logging.Logger, limits wire.Limits, opts []Option) *QueryRouter {
	r := &QueryRouter{
		layout: layout,
		log:    log.With("component", "router"),
		limits: limits,
		slots:  make([]*shardSlot, layout.NumShards()),
		closed: make(chan struct{}),
	}
	for i := range r.slots {
		r.slots[i] = &shardSlot{shard: protocol.ShardID(i)}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// New builds an in-process router: every shard is served by a worker
// running inside this process over a paired in-memory transport. The
// message contract is identical to distributed mode.
func New(layout *workspace.Layout, log *logging.Logger, opts ...Option) (*QueryRouter, error) {
	r := newBase(layout, log, wire.DefaultLimits(), opts)

	for _, slot := range r.slots {
		routerSide, workerSide := net.Pipe()

		state := worker.NewState(worker.StateConfig{ShardID: slot.shard}, log)
		handler, _ := worker.Handler(state, log.With("shard_id", slot.shard))

		wc := rpc.NewConn(workerSide, r.limits, log.With("shard_id", slot.shard), rpc.RoleWorker)
		wc.SetRequestHandler(handler)
		r.inproc = append(r.inproc, wc)

		conn := rpc.NewConn(routerSide, r.limits, r.log.With("shard_id", slot.shard), rpc.RoleRouter)
		slot.attach(newV3Conn(conn, slot.shard), r.assignWorkerID(), nil)
	}
	return r, nil
}

// Layout returns the workspace layout the router partitions by.
func (r *QueryRouter) Layout() *workspace.Layout { return r.layout }

func (r *QueryRouter) assignWorkerID() protocol.WorkerID {
	return protocol.WorkerID(r.nextWorkerID.Add(1))
}

func (r *QueryRouter) slot(shard protocol.ShardID) (*shardSlot, bool) {
	if int(shard) >= len(r.slots) {
		return nil, false
	}
	return r.slots[shard], true
}

// shardRevision is the handshake revision callback.
func (r *QueryRouter) shardRevision(shard protocol.ShardID) (protocol.Revision, bool) {
	slot, ok := r.slot(shard)
	if !ok {
		return 0, false
	}
	return slot.currentRevision(), true
}

// WaitReady blocks until every shard has a connected worker or ctx
// expires. In-process routers are ready immediately.
func (r *QueryRouter) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		ready := true
		for _, slot := range r.slots {
			if _, _, ok := slot.get(); !ok {
				ready = false
				break
			}
		}
		if ready {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("waiting for workers: %w", ctx.Err())
		case <-r.closed:
			return fmt.Errorf("router shut down while waiting for workers")
		}
	}
}

// disconnect drops a worker whose responses violated the protocol.
func (r *QueryRouter) disconnect(slot *shardSlot, conn workerConn, reason error) {
	r.log.Warn("disconnecting worker",
		"shard_id", slot.shard,
		"error", reason)
	slot.detach(conn)
	conn.Close()
}

// Shutdown gracefully stops every worker and tears the router down. Each
// connected worker gets a Shutdown RPC bounded by ShutdownRPCTimeout;
// supervised workers are stopped without restart backoff.
func (r *QueryRouter) Shutdown(ctx context.Context) error {
	var firstErr error
	r.closeOnce.Do(func() {
		close(r.closed)
		if r.listener != nil {
			r.listener.Close()
		}
		if r.stopReloader != nil {
			r.stopReloader()
		}

		var wg sync.WaitGroup
		for _, slot := range r.slots {
			conn, _, ok := slot.get()
			if !ok {
				continue
			}
			wg.Add(1)
			go func(slot *shardSlot, conn workerConn) {
				defer wg.Done()
				callCtx, cancel := context.WithTimeout(ctx, ShutdownRPCTimeout)
				defer cancel()
				if err := conn.Shutdown(callCtx); err != nil {
					r.log.Debug("worker shutdown call failed", "shard_id", slot.shard, "error", err)
				}
				slot.detach(conn)
				conn.Close()
			}(slot, conn)
		}
		wg.Wait()

		for _, wc := range r.inproc {
			wc.Close()
		}
		for _, sup := range r.sups {
			if err := sup.Stop(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		r.wg.Wait()
	})
	return firstErr
}

func (r *QueryRouter) observe(op string, start time.Time, err error) {
	if r.met == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.met.ObserveQuery(op, outcome, time.Since(start).Seconds())
}
