// Package router implements the query router: the coordination point
// that partitions the workspace into shards, delegates indexing to
// workers, and fans queries out across them.
//
// Two modes share one query surface. New builds an in-process router
// whose workers run inside the router over paired in-memory transports.
// NewDistributed listens for worker connections and can additionally
// spawn and supervise local worker processes.
package router
