package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mercator-hq/saturn/pkg/protocol"
)

// sourceExt is the file extension collected into shard indexes.
const sourceExt = ".java"

// IsSourceFile reports whether path is an indexable source file.
func IsSourceFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), sourceExt)
}

// CollectFiles walks every source root and returns the files for each
// shard, keyed by shard id. Files larger than the per-file ceiling and
// hidden directories are skipped. Missing roots yield empty shards, not
// errors, so a partially checked-out workspace still indexes.
func CollectFiles(layout *Layout) (map[protocol.ShardID][]protocol.FileText, error) {
	out := make(map[protocol.ShardID][]protocol.FileText, layout.NumShards())
	for i, root := range layout.Roots {
		shard := protocol.ShardID(i)
		out[shard] = nil

		err := filepath.WalkDir(root.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root.Path {
					return filepath.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != root.Path {
					return filepath.SkipDir
				}
				return nil
			}
			if !IsSourceFile(path) {
				return nil
			}
			st, err := d.Info()
			if err != nil || st.Size() > protocol.MaxFileTextBytes {
				return nil
			}
			text, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			out[shard] = append(out[shard], protocol.FileText{Path: path, Text: string(text)})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
