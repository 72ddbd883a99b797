package protocol

import "fmt"

// ShardID identifies a shard. Shard ids are dense: shard i serves the i-th
// source root of the workspace layout.
type ShardID uint32

// WorkerID identifies a worker connection for the lifetime of the router.
// Ids are never reused, so a reconnecting worker process gets a fresh id.
type WorkerID uint32

// Revision counts accepted file updates for a shard. It increases
// monotonically within a worker session.
type Revision uint64

// IndexGeneration counts full index rebuilds for a shard.
type IndexGeneration uint64

// Symbol is one indexed declaration.
type Symbol struct {
	Name string `cbor:"name"`
	Path string `cbor:"path"`
}

// FileText carries one file's full contents.
type FileText struct {
	Path string `cbor:"path"`
	Text string `cbor:"text"`
}

// ShardIndex is the complete symbol index of one shard.
type ShardIndex struct {
	ShardID         ShardID         `cbor:"shard_id"`
	Revision        Revision        `cbor:"revision"`
	IndexGeneration IndexGeneration `cbor:"index_generation"`
	Symbols         []Symbol        `cbor:"symbols"`
}

// ShardIndexInfo summarizes a shard index without its symbols.
type ShardIndexInfo struct {
	ShardID         ShardID         `cbor:"shard_id"`
	Revision        Revision        `cbor:"revision"`
	IndexGeneration IndexGeneration `cbor:"index_generation"`
	SymbolCount     uint64          `cbor:"symbol_count"`
}

// Info returns the summary form of the index.
func (si *ShardIndex) Info() ShardIndexInfo {
	return ShardIndexInfo{
		ShardID:         si.ShardID,
		Revision:        si.Revision,
		IndexGeneration: si.IndexGeneration,
		SymbolCount:     uint64(len(si.Symbols)),
	}
}

// WorkerStats reports a worker's current shard state.
type WorkerStats struct {
	ShardID         ShardID         `cbor:"shard_id"`
	Revision        Revision        `cbor:"revision"`
	IndexGeneration IndexGeneration `cbor:"index_generation"`
	FileCount       uint64          `cbor:"file_count"`
}

// Per-message ceilings. Decoders reject messages exceeding these before
// handing them to callers.
const (
	MaxFilesPerMessage         = 100_000
	MaxSearchResultsPerMessage = 10_000
	MaxSymbolsPerShardIndex    = 1_000_000
	MaxFileTextBytes           = 8 * 1024 * 1024
	MaxSmallStringBytes        = 16 * 1024
)

// LimitError reports a message field exceeding one of the ceilings above.
type LimitError struct {
	Field string
	Got   int
	Max   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s exceeds limit (%d > %d)", e.Field, e.Got, e.Max)
}

// ValidateFiles checks a file batch against the message ceilings.
func ValidateFiles(files []FileText) error {
	if len(files) > MaxFilesPerMessage {
		return &LimitError{Field: "files", Got: len(files), Max: MaxFilesPerMessage}
	}
	for i := range files {
		if len(files[i].Text) > MaxFileTextBytes {
			return &LimitError{Field: "file text", Got: len(files[i].Text), Max: MaxFileTextBytes}
		}
		if len(files[i].Path) > MaxSmallStringBytes {
			return &LimitError{Field: "file path", Got: len(files[i].Path), Max: MaxSmallStringBytes}
		}
	}
	return nil
}

// ValidateSymbols checks a symbol batch against the search result ceiling.
func ValidateSymbols(symbols []Symbol) error {
	if len(symbols) > MaxSearchResultsPerMessage {
		return &LimitError{Field: "symbols", Got: len(symbols), Max: MaxSearchResultsPerMessage}
	}
	return nil
}

// ValidateShardIndex checks an index against the symbol ceiling.
func ValidateShardIndex(si *ShardIndex) error {
	if len(si.Symbols) > MaxSymbolsPerShardIndex {
		return &LimitError{Field: "shard index symbols", Got: len(si.Symbols), Max: MaxSymbolsPerShardIndex}
	}
	return nil
}
