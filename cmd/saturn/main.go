// Saturn is a distributed query router for Java code intelligence.
//
// It partitions a workspace into shards by source root, delegates
// indexing to one worker per shard, and fans symbol queries out across
// the fleet:
//   - One router process, one worker process per shard
//   - Workers connect over a Unix socket, plain TCP, or TCP+TLS
//   - Shard indexes persist across restarts through an on-disk cache
//   - Source trees are watched and re-indexed file by file
//
// Usage:
//
//	# Start the router with default configuration
//	saturn run
//
//	# Start with a custom configuration file
//	saturn run --config /etc/saturn/config.yaml
//
//	# Validate configuration without starting
//	saturn run --dry-run
//
//	# Show version information
//	saturn version
package main

func main() {
	Execute()
}
