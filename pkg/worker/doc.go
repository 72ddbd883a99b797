// Package worker implements the shard worker runtime: the indexed state
// of one shard and the serve loops for both protocol versions.
//
// The same State backs an in-process worker inside the router and the
// standalone saturn-worker process, so both modes answer queries with
// identical semantics.
package worker
