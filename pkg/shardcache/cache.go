package shardcache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"mercator-hq/saturn/pkg/protocol"
	"mercator-hq/saturn/pkg/protocol/legacy"
)

const (
	// SchemaVersion invalidates every cache file when the persisted
	// layout changes.
	SchemaVersion = 1

	// MaxCacheFileBytes bounds how large a cache file may be before it is
	// treated as a miss. Checked by stat before the file is read.
	MaxCacheFileBytes = 128 * 1024 * 1024
)

// PersistedShardIndex is the on-disk cache envelope. Any field mismatch
// on load, against the running build, is a miss.
type PersistedShardIndex struct {
	SchemaVersion   uint32              `cbor:"schema_version"`
	SaturnVersion   string              `cbor:"saturn_version"`
	ProtocolVersion uint32              `cbor:"protocol_version"`
	SavedAtMillis   int64               `cbor:"saved_at_millis"`
	Index           protocol.ShardIndex `cbor:"index"`
}

// Path returns the cache file path for a shard.
func Path(dir string, shard protocol.ShardID) string {
	return filepath.Join(dir, fmt.Sprintf("shard-%d.idx", shard))
}

// Save persists the index atomically. buildVersion stamps the file so an
// upgraded worker ignores caches written by a different build.
func Save(dir string, index *protocol.ShardIndex, buildVersion string, savedAtMillis int64) error {
	if err := protocol.ValidateShardIndex(index); err != nil {
		return err
	}
	env := PersistedShardIndex{
		SchemaVersion:   SchemaVersion,
		SaturnVersion:   buildVersion,
		ProtocolVersion: legacy.Version,
		SavedAtMillis:   savedAtMillis,
		Index:           *index,
	}
	data, err := cbor.Marshal(&env)
	if err != nil {
		return fmt.Errorf("encode shard index: %w", err)
	}
	return atomicWriteFile(Path(dir, index.ShardID), data)
}

// Load returns the cached index for the shard, or nil on any kind of
// miss: missing file, unreadable file, oversized file, undecodable
// contents, version skew, or a file written for a different shard.
// Load never returns an error; corruption and absence look the same.
func Load(dir string, shard protocol.ShardID, buildVersion string) *protocol.ShardIndex {
	path := Path(dir, shard)

	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() || st.Size() > MaxCacheFileBytes {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var env PersistedShardIndex
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil
	}
	if env.SchemaVersion != SchemaVersion ||
		env.SaturnVersion != buildVersion ||
		env.ProtocolVersion != legacy.Version ||
		env.Index.ShardID != shard {
		return nil
	}
	if protocol.ValidateShardIndex(&env.Index) != nil {
		return nil
	}
	return &env.Index
}
