package router

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/protocol"
	v3 "mercator-hq/saturn/pkg/protocol/v3"
	"mercator-hq/saturn/pkg/rpc"
	"mercator-hq/saturn/pkg/wire"
)

// newV3Pair wires a v3Conn for shard to a peer answering with h.
func newV3Pair(t *testing.T, shard protocol.ShardID, h rpc.RequestHandler) *v3Conn {
	t.Helper()
	log := testLogger(t)
	limits := wire.DefaultLimits()
	routerSide, workerSide := net.Pipe()

	peer := rpc.NewConn(workerSide, limits, log, rpc.RoleWorker)
	peer.SetRequestHandler(h)
	rc := rpc.NewConn(routerSide, limits, log, rpc.RoleRouter)
	t.Cleanup(func() {
		rc.Close()
		peer.Close()
	})
	return newV3Conn(rc, shard)
}

func TestV3ConnRejectsWrongShardResponses(t *testing.T) {
	conn := newV3Pair(t, 3, func(ctx context.Context, req *v3.Request) *v3.Response {
		switch {
		case req.IndexShard != nil:
			return &v3.Response{ShardIndex: &v3.ShardIndexResponse{
				Info: protocol.ShardIndexInfo{ShardID: 5, IndexGeneration: 1},
			}}
		case req.GetWorkerStats != nil:
			return &v3.Response{WorkerStats: &v3.WorkerStatsResponse{
				Stats: protocol.WorkerStats{ShardID: 5},
			}}
		default:
			return &v3.Response{Ack: &v3.AckResponse{}}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := conn.IndexShard(ctx, nil)
	if !errors.Is(err, errShardMismatch) {
		t.Errorf("IndexShard err = %v, want a shard mismatch", err)
	}
	_, err = conn.WorkerStats(ctx)
	if !errors.Is(err, errShardMismatch) {
		t.Errorf("WorkerStats err = %v, want a shard mismatch", err)
	}
}

func TestIndexShardDisconnectsMismatchedWorker(t *testing.T) {
	conn := newV3Pair(t, 0, func(ctx context.Context, req *v3.Request) *v3.Response {
		return &v3.Response{ShardIndex: &v3.ShardIndexResponse{
			Info: protocol.ShardIndexInfo{ShardID: 9, IndexGeneration: 1},
		}}
	})

	layout, _ := newTestWorkspace(t)
	r := newBase(layout, testLogger(t), wire.DefaultLimits(), nil)
	slot := r.slots[0]
	slot.attach(conn, 1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	oc := r.indexShard(ctx, slot, nil)
	if !errors.Is(oc.Err, errShardMismatch) {
		t.Fatalf("outcome err = %v, want a shard mismatch", oc.Err)
	}
	// A protocol violation costs the worker its slot.
	if _, _, ok := slot.get(); ok {
		t.Error("mismatched worker still attached")
	}
}
