package shardcache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PruneResult reports what a prune pass removed.
type PruneResult struct {
	Removed      int
	RemovedBytes int64
	KeptBytes    int64
}

// Prune removes cache files older than maxAge, then removes the oldest
// remaining files until the directory's cache total fits maxTotalBytes.
// Zero disables either bound. Leftover temp files from interrupted saves
// are always removed. Unremovable files are skipped, not fatal.
func Prune(dir string, maxAge time.Duration, maxTotalBytes int64, now time.Time) (PruneResult, error) {
	var res PruneResult

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, err
	}

	type cacheFile struct {
		path string
		size int64
		mod  time.Time
	}
	var files []cacheFile
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "shard-") {
			continue
		}
		path := filepath.Join(dir, name)
		if strings.Contains(name, ".tmp-") {
			if os.Remove(path) == nil {
				res.Removed++
			}
			continue
		}
		if !strings.HasSuffix(name, ".idx") {
			continue
		}
		st, err := e.Info()
		if err != nil {
			continue
		}
		if maxAge > 0 && now.Sub(st.ModTime()) > maxAge {
			if os.Remove(path) == nil {
				res.Removed++
				res.RemovedBytes += st.Size()
			}
			continue
		}
		files = append(files, cacheFile{path: path, size: st.Size(), mod: st.ModTime()})
	}

	var total int64
	for _, f := range files {
		total += f.size
	}
	if maxTotalBytes > 0 && total > maxTotalBytes {
		sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
		for _, f := range files {
			if total <= maxTotalBytes {
				break
			}
			if os.Remove(f.path) == nil {
				res.Removed++
				res.RemovedBytes += f.size
				total -= f.size
			}
		}
	}
	res.KeptBytes = total
	return res, nil
}
