// Package metrics provides Prometheus metrics collection for the Saturn
// query router.
//
// # Overview
//
// The metrics package tracks the router's query surface (workspace symbol
// searches, file updates, workspace indexing), the worker fleet (per-shard
// index sizes, worker restarts, handshake rejections), and the on-disk
// shard index cache (prune passes).
//
// # Usage
//
//	m := metrics.New(cfg, nil)
//
//	// Record query metrics
//	m.ObserveQuery("workspace_symbols", "ok", 0.012)
//
//	// Record fleet metrics
//	m.SetShardSymbols(3, 15000)
//	m.RecordWorkerRestart(3)
//	m.RecordHandshakeRejection("unauthorized")
//
// # Prometheus Endpoint
//
// All metrics are exposed through Handler in standard Prometheus format:
//
//	# HELP saturn_router_queries_total Total number of queries processed
//	# TYPE saturn_router_queries_total counter
//	saturn_router_queries_total{op="workspace_symbols",outcome="ok"} 1234
package metrics
