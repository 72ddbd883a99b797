package v3

import (
	"fmt"

	"mercator-hq/saturn/pkg/protocol"
)

// RpcPayload is the body of a Packet. Exactly one pointer is set.
type RpcPayload struct {
	Request      *Request      `cbor:"request,omitempty"`
	Response     *Response     `cbor:"response,omitempty"`
	Notification *Notification `cbor:"notification,omitempty"`
	Cancel       *Cancel       `cbor:"cancel,omitempty"`
}

// Request is a router-to-worker (or worker-to-router) call body. Exactly
// one pointer is set; an all-nil request decodes as unknown and is
// answered with ErrCodeUnsupported rather than failing the connection.
type Request struct {
	LoadFiles      *LoadFilesRequest     `cbor:"load_files,omitempty"`
	IndexShard     *IndexShardRequest    `cbor:"index_shard,omitempty"`
	UpdateFile     *UpdateFileRequest    `cbor:"update_file,omitempty"`
	Diagnostics    *DiagnosticsRequest   `cbor:"diagnostics,omitempty"`
	GetWorkerStats *GetWorkerStatsReq    `cbor:"get_worker_stats,omitempty"`
	SearchSymbols  *SearchSymbolsRequest `cbor:"search_symbols,omitempty"`
	Shutdown       *ShutdownRequest      `cbor:"shutdown,omitempty"`
}

type LoadFilesRequest struct {
	Files []protocol.FileText `cbor:"files"`
}

type IndexShardRequest struct {
	Files []protocol.FileText `cbor:"files"`
}

type UpdateFileRequest struct {
	Path string `cbor:"path"`
	Text string `cbor:"text"`
}

type DiagnosticsRequest struct {
	Path string `cbor:"path"`
}

type GetWorkerStatsReq struct{}

type SearchSymbolsRequest struct {
	Query string `cbor:"query"`
	Limit uint32 `cbor:"limit"`
}

type ShutdownRequest struct{}

// Response answers a Request under the same packet id. Exactly one
// pointer is set.
type Response struct {
	Ack           *AckResponse           `cbor:"ack,omitempty"`
	ShardIndex    *ShardIndexResponse    `cbor:"shard_index,omitempty"`
	SearchResults *SearchResultsResponse `cbor:"search_results,omitempty"`
	Diagnostics   *DiagnosticsResponse   `cbor:"diagnostics,omitempty"`
	WorkerStats   *WorkerStatsResponse   `cbor:"worker_stats,omitempty"`
	Shutdown      *ShutdownAckResponse   `cbor:"shutdown,omitempty"`
	Err           *RpcError              `cbor:"error,omitempty"`
}

type AckResponse struct{}

type ShardIndexResponse struct {
	Info protocol.ShardIndexInfo `cbor:"info"`
}

type SearchResultsResponse struct {
	Symbols []protocol.Symbol `cbor:"symbols"`
}

// Diagnostic is one analyzer finding for a file.
type Diagnostic struct {
	Path     string `cbor:"path"`
	Line     uint32 `cbor:"line"`
	Severity string `cbor:"severity"`
	Message  string `cbor:"message"`
}

type DiagnosticsResponse struct {
	Diagnostics []Diagnostic `cbor:"diagnostics"`
}

type WorkerStatsResponse struct {
	Stats protocol.WorkerStats `cbor:"stats"`
}

type ShutdownAckResponse struct{}

// Notification is a one-way payload needing no response.
type Notification struct {
	CachedIndex *CachedIndexNotification `cbor:"cached_index,omitempty"`
}

// CachedIndexNotification tells the router a worker restored an index
// from its local cache.
type CachedIndexNotification struct {
	Info protocol.ShardIndexInfo `cbor:"info"`
}

// Cancel asks the peer to abandon the request with the given packet id.
// Best effort; the response may still arrive.
type Cancel struct {
	RequestID uint64 `cbor:"request_id"`
}

// RpcErrorCode classifies call failures.
type RpcErrorCode uint16

const (
	ErrCodeInternal      RpcErrorCode = 1
	ErrCodeUnsupported   RpcErrorCode = 2
	ErrCodeShardMismatch RpcErrorCode = 3
	ErrCodeTooLarge      RpcErrorCode = 4
	ErrCodeCancelled     RpcErrorCode = 5
	ErrCodeShuttingDown  RpcErrorCode = 6
)

func (c RpcErrorCode) String() string {
	switch c {
	case ErrCodeInternal:
		return "internal"
	case ErrCodeUnsupported:
		return "unsupported"
	case ErrCodeShardMismatch:
		return "shard_mismatch"
	case ErrCodeTooLarge:
		return "too_large"
	case ErrCodeCancelled:
		return "cancelled"
	case ErrCodeShuttingDown:
		return "shutting_down"
	}
	return fmt.Sprintf("error(%d)", uint16(c))
}

// RpcError is a structured call failure. Retryable tells the caller
// whether the same request may succeed later on the same connection.
type RpcError struct {
	Code      RpcErrorCode      `cbor:"code"`
	Message   string            `cbor:"message"`
	Retryable bool              `cbor:"retryable"`
	Details   map[string]string `cbor:"details,omitempty"`
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("rpc error %s: %s", e.Code, e.Message)
}
