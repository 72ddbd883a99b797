// Package protocol holds the data model shared by every protocol version:
// shard and worker identifiers, symbols, file payloads, shard indexes, and
// the per-message size ceilings enforced on decode.
package protocol
