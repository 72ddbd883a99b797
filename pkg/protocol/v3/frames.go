package v3

import (
	"fmt"

	"mercator-hq/saturn/pkg/protocol"
)

// FrameType discriminates WireFrame variants. Unknown values decode to a
// frame with Type preserved and no body; receivers skip them.
type FrameType uint8

const (
	FrameHello       FrameType = 1
	FrameWelcome     FrameType = 2
	FrameReject      FrameType = 3
	FramePacket      FrameType = 4
	FramePacketChunk FrameType = 5
)

// WireFrame is the top-level unit on a version 3 connection. Exactly one
// body pointer matching Type is set; all others are nil.
type WireFrame struct {
	Type    FrameType      `cbor:"type"`
	Hello   *WorkerHello   `cbor:"hello,omitempty"`
	Welcome *RouterWelcome `cbor:"welcome,omitempty"`
	Reject  *RouterReject  `cbor:"reject,omitempty"`
	Packet  *Packet        `cbor:"packet,omitempty"`
	Chunk   *PacketChunk   `cbor:"chunk,omitempty"`
}

// Known reports whether the frame type is one this implementation handles.
func (f *WireFrame) Known() bool {
	switch f.Type {
	case FrameHello, FrameWelcome, FrameReject, FramePacket, FramePacketChunk:
		return true
	}
	return false
}

// WorkerHello opens the version 3 handshake.
type WorkerHello struct {
	ShardID           protocol.ShardID         `cbor:"shard_id"`
	AuthToken         string                   `cbor:"auth_token,omitempty"`
	SupportedVersions SupportedVersions        `cbor:"supported_versions"`
	Capabilities      Capabilities             `cbor:"capabilities"`
	CachedIndexInfo   *protocol.ShardIndexInfo `cbor:"cached_index_info,omitempty"`
	WorkerBuild       string                   `cbor:"worker_build,omitempty"`
}

// String renders the hello for logs. The auth token never appears; only
// its presence does.
func (h *WorkerHello) String() string {
	present := "absent"
	if h.AuthToken != "" {
		present = "present"
	}
	return fmt.Sprintf("WorkerHello{shard_id=%d, auth_token=%s, versions=%s..%s, cached_index=%t, build=%q}",
		h.ShardID, present, h.SupportedVersions.Min, h.SupportedVersions.Max,
		h.CachedIndexInfo != nil, h.WorkerBuild)
}

// RouterWelcome accepts a hello and fixes the negotiated version and
// capabilities for the connection.
type RouterWelcome struct {
	WorkerID           protocol.WorkerID `cbor:"worker_id"`
	ShardID            protocol.ShardID  `cbor:"shard_id"`
	Revision           protocol.Revision `cbor:"revision"`
	ChosenVersion      ProtocolVersion   `cbor:"chosen_version"`
	ChosenCapabilities Capabilities      `cbor:"chosen_capabilities"`
}

// RejectCode classifies handshake rejections.
type RejectCode uint8

const (
	RejectUnauthorized       RejectCode = 1
	RejectUnsupportedVersion RejectCode = 2
	RejectShardUnknown       RejectCode = 3
	RejectBusy               RejectCode = 4
	RejectInternal           RejectCode = 5
)

func (c RejectCode) String() string {
	switch c {
	case RejectUnauthorized:
		return "unauthorized"
	case RejectUnsupportedVersion:
		return "unsupported_version"
	case RejectShardUnknown:
		return "shard_unknown"
	case RejectBusy:
		return "busy"
	case RejectInternal:
		return "internal"
	}
	return fmt.Sprintf("reject(%d)", uint8(c))
}

// RouterReject refuses a hello. The connection closes after it is sent.
type RouterReject struct {
	Code    RejectCode `cbor:"code"`
	Message string     `cbor:"message"`
}

// Packet carries one encoded RpcPayload with its multiplexing id.
type Packet struct {
	ID          uint64 `cbor:"id"`
	Compression uint8  `cbor:"compression"`
	Data        []byte `cbor:"data"`
}

// PacketChunk is one piece of a packet too large for a single frame. Only
// sent when both sides negotiated SupportsChunking.
type PacketChunk struct {
	ID   uint64 `cbor:"id"`
	Seq  uint32 `cbor:"seq"`
	Last bool   `cbor:"last"`
	Data []byte `cbor:"data"`
}
