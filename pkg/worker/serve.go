package worker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"mercator-hq/saturn/pkg/protocol/legacy"
	v3 "mercator-hq/saturn/pkg/protocol/v3"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/wire"
)

// ErrShutdownRequested is returned by the serve loops when the router
// asked for a clean exit.
var ErrShutdownRequested = errors.New("shutdown requested")

// Handler adapts the state into a request handler for a multiplexed
// connection. The returned shutdown channel is closed when the router
// requests shutdown.
func Handler(state *State, log *logging.Logger) (h func(ctx context.Context, req *v3.Request) *v3.Response, shutdown <-chan struct{}) {
	ch := make(chan struct{})
	var closeShutdown = func() {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
	h = func(ctx context.Context, req *v3.Request) *v3.Response {
		switch {
		case req.IndexShard != nil:
			info, err := state.IndexShard(req.IndexShard.Files)
			if err != nil {
				return errResponse(v3.ErrCodeTooLarge, err)
			}
			log.Info("indexed shard",
				"file_count", len(req.IndexShard.Files),
				"symbol_count", info.SymbolCount,
				"index_generation", info.IndexGeneration)
			return &v3.Response{ShardIndex: &v3.ShardIndexResponse{Info: info}}

		case req.LoadFiles != nil:
			if err := state.LoadFiles(req.LoadFiles.Files); err != nil {
				return errResponse(v3.ErrCodeTooLarge, err)
			}
			return &v3.Response{Ack: &v3.AckResponse{}}

		case req.UpdateFile != nil:
			if _, err := state.UpdateFile(req.UpdateFile.Path, req.UpdateFile.Text); err != nil {
				return errResponse(v3.ErrCodeTooLarge, err)
			}
			return &v3.Response{Ack: &v3.AckResponse{}}

		case req.SearchSymbols != nil:
			if err := ctx.Err(); err != nil {
				return errResponse(v3.ErrCodeCancelled, err)
			}
			symbols := state.Search(req.SearchSymbols.Query, req.SearchSymbols.Limit)
			return &v3.Response{SearchResults: &v3.SearchResultsResponse{Symbols: symbols}}

		case req.Diagnostics != nil:
			return &v3.Response{Diagnostics: &v3.DiagnosticsResponse{
				Diagnostics: state.Diagnostics(req.Diagnostics.Path),
			}}

		case req.GetWorkerStats != nil:
			return &v3.Response{WorkerStats: &v3.WorkerStatsResponse{Stats: state.Stats()}}

		case req.Shutdown != nil:
			defer closeShutdown()
			return &v3.Response{Shutdown: &v3.ShutdownAckResponse{}}

		default:
			return &v3.Response{Err: &v3.RpcError{
				Code:    v3.ErrCodeUnsupported,
				Message: "unknown request variant",
			}}
		}
	}
	return h, ch
}

func errResponse(code v3.RpcErrorCode, err error) *v3.Response {
	return &v3.Response{Err: &v3.RpcError{Code: code, Message: err.Error()}}
}

// ServeLegacy runs the protocol version 2 loop: one request in, one reply
// out, until the transport fails or the router sends Shutdown. The
// handshake must already be complete.
func ServeLegacy(transport io.ReadWriter, state *State, limits wire.Limits, log *logging.Logger) error {
	for {
		payload, err := wire.ReadFrame(transport, limits)
		if err != nil {
			return fmt.Errorf("read request: %w", err)
		}
		msg, err := legacy.Decode(payload)
		if err != nil {
			return fmt.Errorf("decode request: %w", err)
		}

		reply, done := serveLegacyMessage(state, log, msg)
		buf, err := legacy.Encode(reply)
		if err != nil {
			return fmt.Errorf("encode reply: %w", err)
		}
		if err := wire.WriteFrame(transport, buf, limits); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
		if done {
			return ErrShutdownRequested
		}
	}
}

func serveLegacyMessage(state *State, log *logging.Logger, msg legacy.Message) (reply legacy.Message, done bool) {
	switch m := msg.(type) {
	case *legacy.IndexShard:
		info, err := state.IndexShard(m.Files)
		if err != nil {
			return &legacy.Error{Message: err.Error()}, false
		}
		log.Info("indexed shard",
			"file_count", len(m.Files),
			"symbol_count", info.SymbolCount,
			"index_generation", info.IndexGeneration)
		return &legacy.ShardIndexInfo{Info: info}, false

	case *legacy.LoadFiles:
		if err := state.LoadFiles(m.Files); err != nil {
			return &legacy.Error{Message: err.Error()}, false
		}
		return &legacy.Ack{}, false

	case *legacy.UpdateFile:
		if _, err := state.UpdateFile(m.Path, m.Text); err != nil {
			return &legacy.Error{Message: err.Error()}, false
		}
		return &legacy.Ack{}, false

	case *legacy.SearchSymbols:
		return &legacy.SearchSymbolsResult{Symbols: state.Search(m.Query, m.Limit)}, false

	case *legacy.GetWorkerStats:
		return &legacy.WorkerStats{Stats: state.Stats()}, false

	case *legacy.Shutdown:
		return &legacy.Ack{}, true

	default:
		return &legacy.Error{Message: fmt.Sprintf("unsupported request %T", msg)}, false
	}
}
