package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mercator-hq/saturn/pkg/protocol"
	"mercator-hq/saturn/pkg/workspace"
)

// WorkspaceSymbolTimeout is the overall fan-out budget of one workspace
// symbol query. A shard that cannot answer inside the budget contributes
// nothing.
const WorkspaceSymbolTimeout = 2 * time.Second

// ShardIndexOutcome is one shard's part of an IndexReport.
type ShardIndexOutcome struct {
	Info protocol.ShardIndexInfo
	Err  error
}

// IndexReport is the result of IndexWorkspace. A failed shard is
// reported here; it does not abort the other shards.
type IndexReport struct {
	Shards map[protocol.ShardID]ShardIndexOutcome
}

// Failed lists the shards whose indexing failed.
func (r *IndexReport) Failed() []protocol.ShardID {
	var out []protocol.ShardID
	for shard, oc := range r.Shards {
		if oc.Err != nil {
			out = append(out, shard)
		}
	}
	return out
}

// IndexWorkspace collects the workspace's source files, partitions them
// by shard, and indexes every shard concurrently. A worker that
// announced a usable cached index is brought current with LoadFiles
// instead of a full rebuild.
func (r *QueryRouter) IndexWorkspace(ctx context.Context) (*IndexReport, error) {
	start := time.Now()
	byShard, err := workspace.CollectFiles(r.layout)
	if err != nil {
		r.observe("index_workspace", start, err)
		return nil, fmt.Errorf("collect files: %w", err)
	}

	report := &IndexReport{Shards: make(map[protocol.ShardID]ShardIndexOutcome, len(r.slots))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, slot := range r.slots {
		wg.Add(1)
		go func(slot *shardSlot) {
			defer wg.Done()
			oc := r.indexShard(ctx, slot, byShard[slot.shard])
			mu.Lock()
			report.Shards[slot.shard] = oc
			mu.Unlock()
		}(slot)
	}
	wg.Wait()

	r.observe("index_workspace", start, firstOutcomeErr(report))
	return report, nil
}

func firstOutcomeErr(report *IndexReport) error {
	for _, oc := range report.Shards {
		if oc.Err != nil {
			return oc.Err
		}
	}
	return nil
}

func (r *QueryRouter) indexShard(ctx context.Context, slot *shardSlot, files []protocol.FileText) ShardIndexOutcome {
	conn, _, ok := slot.get()
	if !ok {
		return ShardIndexOutcome{Err: fmt.Errorf("shard %d has no connected worker", slot.shard)}
	}

	if cached := slot.takeCachedInfo(); cached != nil {
		info, err := r.rehydrate(ctx, slot, conn, files, cached)
		if err == nil {
			return ShardIndexOutcome{Info: info}
		}
		r.log.Warn("cached index rehydration failed, falling back to reindex",
			"shard_id", slot.shard, "error", err)
		if errors.Is(err, errShardMismatch) {
			r.disconnect(slot, conn, err)
			return ShardIndexOutcome{Err: err}
		}
	}

	info, err := conn.IndexShard(ctx, files)
	if err != nil {
		if errors.Is(err, errShardMismatch) {
			r.disconnect(slot, conn, err)
		}
		return ShardIndexOutcome{Err: err}
	}
	if !slot.applyIndex(info) {
		r.log.Debug("ignoring stale shard index",
			"shard_id", slot.shard,
			"revision", info.Revision,
			"index_generation", info.IndexGeneration)
	}
	r.recordShardSymbols(slot.shard, info.SymbolCount)
	return ShardIndexOutcome{Info: info}
}

// rehydrate brings a cache-restored worker current by loading file text
// without discarding its persisted index.
func (r *QueryRouter) rehydrate(ctx context.Context, slot *shardSlot, conn workerConn, files []protocol.FileText, cached *protocol.ShardIndexInfo) (protocol.ShardIndexInfo, error) {
	if err := conn.LoadFiles(ctx, files); err != nil {
		return protocol.ShardIndexInfo{}, err
	}
	stats, err := conn.WorkerStats(ctx)
	if err != nil {
		return protocol.ShardIndexInfo{}, err
	}
	info := protocol.ShardIndexInfo{
		ShardID:         slot.shard,
		Revision:        stats.Revision,
		IndexGeneration: stats.IndexGeneration,
		SymbolCount:     cached.SymbolCount,
	}
	slot.applyIndex(info)
	r.recordShardSymbols(slot.shard, info.SymbolCount)
	r.log.Info("shard rehydrated from worker cache",
		"shard_id", slot.shard,
		"file_count", len(files),
		"symbol_count", info.SymbolCount)
	return info, nil
}

func (r *QueryRouter) recordShardSymbols(shard protocol.ShardID, count uint64) {
	if r.met != nil {
		r.met.SetShardSymbols(uint32(shard), float64(count))
	}
}

// UpdateFile routes one file edit to its owning shard. A path outside
// every source root is a no-op; applied reports whether a worker took
// the edit.
func (r *QueryRouter) UpdateFile(ctx context.Context, path, text string) (applied bool, err error) {
	start := time.Now()
	defer func() { r.observe("update_file", start, err) }()

	shard, ok := r.layout.ShardForPath(path)
	if !ok {
		return false, nil
	}
	slot, ok := r.slot(shard)
	if !ok {
		return false, nil
	}
	conn, _, ok := slot.get()
	if !ok {
		return false, fmt.Errorf("shard %d has no connected worker", shard)
	}
	if err := conn.UpdateFile(ctx, path, text); err != nil {
		if errors.Is(err, errShardMismatch) {
			r.disconnect(slot, conn, err)
		}
		return false, err
	}
	slot.noteUpdate()
	return true, nil
}

// WorkspaceSymbols fans the query out to every shard under one time
// budget and merges the results in shard order. No re-ranking happens
// across shards; an unreachable or slow shard contributes nothing.
func (r *QueryRouter) WorkspaceSymbols(ctx context.Context, query string) ([]protocol.Symbol, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, WorkspaceSymbolTimeout)
	defer cancel()

	perShard := make([][]protocol.Symbol, len(r.slots))
	var wg sync.WaitGroup
	for i, slot := range r.slots {
		conn, _, ok := slot.get()
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, slot *shardSlot, conn workerConn) {
			defer wg.Done()
			symbols, err := conn.SearchSymbols(ctx, query, WorkspaceSymbolLimit)
			if err != nil {
				if errors.Is(err, errShardMismatch) {
					r.disconnect(slot, conn, err)
				}
				r.log.Debug("shard query failed", "shard_id", slot.shard, "error", err)
				return
			}
			perShard[i] = symbols
		}(i, slot, conn)
	}
	wg.Wait()

	merged := make([]protocol.Symbol, 0, WorkspaceSymbolLimit)
	for _, symbols := range perShard {
		for _, s := range symbols {
			if len(merged) >= WorkspaceSymbolLimit {
				break
			}
			merged = append(merged, s)
		}
	}
	r.observe("workspace_symbols", start, nil)
	return merged, nil
}

// WorkerStats queries every connected worker.
func (r *QueryRouter) WorkerStats(ctx context.Context) (map[protocol.WorkerID]protocol.WorkerStats, error) {
	start := time.Now()
	out := make(map[protocol.WorkerID]protocol.WorkerStats, len(r.slots))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, slot := range r.slots {
		conn, id, ok := slot.get()
		if !ok {
			continue
		}
		wg.Add(1)
		go func(slot *shardSlot, conn workerConn, id protocol.WorkerID) {
			defer wg.Done()
			stats, err := conn.WorkerStats(ctx)
			if err != nil {
				if errors.Is(err, errShardMismatch) {
					r.disconnect(slot, conn, err)
				}
				return
			}
			mu.Lock()
			out[id] = stats
			mu.Unlock()
		}(slot, conn, id)
	}
	wg.Wait()
	r.observe("worker_stats", start, nil)
	return out, nil
}
