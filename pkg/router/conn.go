package router

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/saturn/pkg/protocol"
	"mercator-hq/saturn/pkg/protocol/legacy"
	v3 "mercator-hq/saturn/pkg/protocol/v3"
	"mercator-hq/saturn/pkg/rpc"
)

// errShardMismatch marks a response claiming the wrong shard. The router
// treats it as a protocol violation and disconnects the worker.
var errShardMismatch = errors.New("response for wrong shard")

// workerConn is what the router holds per connected worker, independent
// of the protocol version negotiated at handshake.
type workerConn interface {
	IndexShard(ctx context.Context, files []protocol.FileText) (protocol.ShardIndexInfo, error)
	LoadFiles(ctx context.Context, files []protocol.FileText) error
	UpdateFile(ctx context.Context, path, text string) error
	SearchSymbols(ctx context.Context, query string, limit uint32) ([]protocol.Symbol, error)
	WorkerStats(ctx context.Context) (protocol.WorkerStats, error)
	Shutdown(ctx context.Context) error
	Done() <-chan struct{}
	Close() error
}

// v3Conn serves requests over a multiplexed connection.
type v3Conn struct {
	conn  *rpc.Conn
	shard protocol.ShardID
}

func newV3Conn(conn *rpc.Conn, shard protocol.ShardID) *v3Conn {
	return &v3Conn{conn: conn, shard: shard}
}

func (c *v3Conn) Done() <-chan struct{} { return c.conn.Done() }
func (c *v3Conn) Close() error          { return c.conn.Close() }

func (c *v3Conn) call(ctx context.Context, req *v3.Request) (*v3.Response, error) {
	resp, err := c.conn.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp, nil
}

func (c *v3Conn) IndexShard(ctx context.Context, files []protocol.FileText) (protocol.ShardIndexInfo, error) {
	resp, err := c.call(ctx, &v3.Request{IndexShard: &v3.IndexShardRequest{Files: files}})
	if err != nil {
		return protocol.ShardIndexInfo{}, err
	}
	if resp.ShardIndex == nil {
		return protocol.ShardIndexInfo{}, fmt.Errorf("unexpected response to IndexShard")
	}
	info := resp.ShardIndex.Info
	if info.ShardID != c.shard {
		return protocol.ShardIndexInfo{}, fmt.Errorf("%w: got shard %d, want %d", errShardMismatch, info.ShardID, c.shard)
	}
	return info, nil
}

func (c *v3Conn) LoadFiles(ctx context.Context, files []protocol.FileText) error {
	resp, err := c.call(ctx, &v3.Request{LoadFiles: &v3.LoadFilesRequest{Files: files}})
	if err != nil {
		return err
	}
	if resp.Ack == nil {
		return fmt.Errorf("unexpected response to LoadFiles")
	}
	return nil
}

func (c *v3Conn) UpdateFile(ctx context.Context, path, text string) error {
	resp, err := c.call(ctx, &v3.Request{UpdateFile: &v3.UpdateFileRequest{Path: path, Text: text}})
	if err != nil {
		return err
	}
	if resp.Ack == nil {
		return fmt.Errorf("unexpected response to UpdateFile")
	}
	return nil
}

func (c *v3Conn) SearchSymbols(ctx context.Context, query string, limit uint32) ([]protocol.Symbol, error) {
	resp, err := c.call(ctx, &v3.Request{SearchSymbols: &v3.SearchSymbolsRequest{Query: query, Limit: limit}})
	if err != nil {
		return nil, err
	}
	if resp.SearchResults == nil {
		return nil, fmt.Errorf("unexpected response to SearchSymbols")
	}
	return resp.SearchResults.Symbols, nil
}

func (c *v3Conn) WorkerStats(ctx context.Context) (protocol.WorkerStats, error) {
	resp, err := c.call(ctx, &v3.Request{GetWorkerStats: &v3.GetWorkerStatsReq{}})
	if err != nil {
		return protocol.WorkerStats{}, err
	}
	if resp.WorkerStats == nil {
		return protocol.WorkerStats{}, fmt.Errorf("unexpected response to GetWorkerStats")
	}
	stats := resp.WorkerStats.Stats
	if stats.ShardID != c.shard {
		return protocol.WorkerStats{}, fmt.Errorf("%w: got shard %d, want %d", errShardMismatch, stats.ShardID, c.shard)
	}
	return stats, nil
}

func (c *v3Conn) Shutdown(ctx context.Context) error {
	resp, err := c.call(ctx, &v3.Request{Shutdown: &v3.ShutdownRequest{}})
	if err != nil {
		return err
	}
	if resp.Shutdown == nil {
		return fmt.Errorf("unexpected response to Shutdown")
	}
	return nil
}

// legacyConn serves requests over a protocol version 2 lockstep session.
// The session is strictly one request at a time; context cancellation
// can only abandon the session, not the request.
type legacyConn struct {
	sess  *rpc.Lockstep
	shard protocol.ShardID
}

func newLegacyConn(sess *rpc.Lockstep, shard protocol.ShardID) *legacyConn {
	return &legacyConn{sess: sess, shard: shard}
}

func (c *legacyConn) Done() <-chan struct{} { return c.sess.Done() }
func (c *legacyConn) Close() error          { return c.sess.Close() }

// roundtrip runs one exchange, honoring ctx by closing the session. A
// lockstep session has no way to cancel a single request; abandoning it
// mid-exchange would desynchronize request and reply.
func (c *legacyConn) roundtrip(ctx context.Context, req legacy.Message) (legacy.Message, error) {
	type result struct {
		reply legacy.Message
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		reply, err := c.sess.Roundtrip(req)
		ch <- result{reply, err}
	}()
	select {
	case r := <-ch:
		return r.reply, r.err
	case <-ctx.Done():
		c.sess.Close()
		return nil, ctx.Err()
	}
}

func (c *legacyConn) IndexShard(ctx context.Context, files []protocol.FileText) (protocol.ShardIndexInfo, error) {
	reply, err := c.roundtrip(ctx, &legacy.IndexShard{Files: files})
	if err != nil {
		return protocol.ShardIndexInfo{}, err
	}
	info, ok := reply.(*legacy.ShardIndexInfo)
	if !ok {
		return protocol.ShardIndexInfo{}, fmt.Errorf("unexpected reply %T to IndexShard", reply)
	}
	if info.Info.ShardID != c.shard {
		return protocol.ShardIndexInfo{}, fmt.Errorf("%w: got shard %d, want %d", errShardMismatch, info.Info.ShardID, c.shard)
	}
	return info.Info, nil
}

func (c *legacyConn) LoadFiles(ctx context.Context, files []protocol.FileText) error {
	reply, err := c.roundtrip(ctx, &legacy.LoadFiles{Files: files})
	if err != nil {
		return err
	}
	if _, ok := reply.(*legacy.Ack); !ok {
		return fmt.Errorf("unexpected reply %T to LoadFiles", reply)
	}
	return nil
}

func (c *legacyConn) UpdateFile(ctx context.Context, path, text string) error {
	reply, err := c.roundtrip(ctx, &legacy.UpdateFile{Path: path, Text: text})
	if err != nil {
		return err
	}
	if _, ok := reply.(*legacy.Ack); !ok {
		return fmt.Errorf("unexpected reply %T to UpdateFile", reply)
	}
	return nil
}

func (c *legacyConn) SearchSymbols(ctx context.Context, query string, limit uint32) ([]protocol.Symbol, error) {
	reply, err := c.roundtrip(ctx, &legacy.SearchSymbols{Query: query, Limit: limit})
	if err != nil {
		return nil, err
	}
	res, ok := reply.(*legacy.SearchSymbolsResult)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %T to SearchSymbols", reply)
	}
	return res.Symbols, nil
}

func (c *legacyConn) WorkerStats(ctx context.Context) (protocol.WorkerStats, error) {
	reply, err := c.roundtrip(ctx, &legacy.GetWorkerStats{})
	if err != nil {
		return protocol.WorkerStats{}, err
	}
	stats, ok := reply.(*legacy.WorkerStats)
	if !ok {
		return protocol.WorkerStats{}, fmt.Errorf("unexpected reply %T to GetWorkerStats", reply)
	}
	if stats.Stats.ShardID != c.shard {
		return protocol.WorkerStats{}, fmt.Errorf("%w: got shard %d, want %d", errShardMismatch, stats.Stats.ShardID, c.shard)
	}
	return stats.Stats, nil
}

func (c *legacyConn) Shutdown(ctx context.Context) error {
	reply, err := c.roundtrip(ctx, &legacy.Shutdown{})
	if err != nil {
		return err
	}
	if _, ok := reply.(*legacy.Ack); !ok {
		return fmt.Errorf("unexpected reply %T to Shutdown", reply)
	}
	return nil
}
