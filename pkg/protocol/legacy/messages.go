package legacy

import (
	"fmt"

	"mercator-hq/saturn/pkg/protocol"
)

// Version is the single protocol version integer. Both sides must present
// exactly this value during the handshake.
const Version uint32 = 2

// Message tags. The tag is the first byte of every encoded message.
const (
	tagWorkerHello         = 0x01
	tagRouterHello         = 0x02
	tagIndexShard          = 0x03
	tagLoadFiles           = 0x04
	tagUpdateFile          = 0x05
	tagGetWorkerStats      = 0x06
	tagSearchSymbols       = 0x07
	tagSearchSymbolsResult = 0x08
	tagShardIndexInfo      = 0x09
	tagWorkerStats         = 0x0a
	tagAck                 = 0x0b
	tagError               = 0x0c
	tagShutdown            = 0x0d
)

// Message is one protocol version 2 message.
type Message interface {
	tag() byte
}

// WorkerHello opens the handshake. The auth token is optional; its
// presence is part of the wire layout.
type WorkerHello struct {
	ShardID        protocol.ShardID
	AuthToken      string
	HasAuthToken   bool
	HasCachedIndex bool
}

// RouterHello answers a WorkerHello and completes the handshake. The
// worker must verify ShardID and ProtocolVersion and disconnect on any
// mismatch.
type RouterHello struct {
	WorkerID        protocol.WorkerID
	ShardID         protocol.ShardID
	Revision        protocol.Revision
	ProtocolVersion uint32
}

// IndexShard asks the worker to rebuild its index from the given files.
type IndexShard struct {
	Files []protocol.FileText
}

// LoadFiles adds or replaces files without a full rebuild.
type LoadFiles struct {
	Files []protocol.FileText
}

// UpdateFile replaces one file's contents.
type UpdateFile struct {
	Path string
	Text string
}

// GetWorkerStats requests a WorkerStats reply.
type GetWorkerStats struct{}

// SearchSymbols requests up to Limit symbols matching Query.
type SearchSymbols struct {
	Query string
	Limit uint32
}

// SearchSymbolsResult answers SearchSymbols.
type SearchSymbolsResult struct {
	Symbols []protocol.Symbol
}

// ShardIndexInfo answers IndexShard with a summary of the rebuilt index.
type ShardIndexInfo struct {
	Info protocol.ShardIndexInfo
}

// WorkerStats answers GetWorkerStats.
type WorkerStats struct {
	Stats protocol.WorkerStats
}

// Ack is the generic success reply.
type Ack struct{}

// Error is the generic failure reply.
type Error struct {
	Message string
}

// Shutdown asks the worker to exit cleanly. The worker replies Ack and
// terminates.
type Shutdown struct{}

func (*WorkerHello) tag() byte         { return tagWorkerHello }
func (*RouterHello) tag() byte         { return tagRouterHello }
func (*IndexShard) tag() byte          { return tagIndexShard }
func (*LoadFiles) tag() byte           { return tagLoadFiles }
func (*UpdateFile) tag() byte          { return tagUpdateFile }
func (*GetWorkerStats) tag() byte      { return tagGetWorkerStats }
func (*SearchSymbols) tag() byte       { return tagSearchSymbols }
func (*SearchSymbolsResult) tag() byte { return tagSearchSymbolsResult }
func (*ShardIndexInfo) tag() byte      { return tagShardIndexInfo }
func (*WorkerStats) tag() byte         { return tagWorkerStats }
func (*Ack) tag() byte                 { return tagAck }
func (*Error) tag() byte               { return tagError }
func (*Shutdown) tag() byte            { return tagShutdown }

// String renders the hello for logs without exposing the auth token.
func (h *WorkerHello) String() string {
	present := "absent"
	if h.HasAuthToken {
		present = "present"
	}
	return fmt.Sprintf("WorkerHello{shard_id=%d, auth_token=%s, has_cached_index=%t}",
		h.ShardID, present, h.HasCachedIndex)
}
