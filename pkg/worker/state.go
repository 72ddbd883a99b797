package worker

import (
	"strings"
	"sync"
	"time"

	"mercator-hq/saturn/pkg/protocol"
	v3 "mercator-hq/saturn/pkg/protocol/v3"
	"mercator-hq/saturn/pkg/shardcache"
	"mercator-hq/saturn/pkg/telemetry/logging"
)

// State holds one shard's indexed content. All methods are safe for
// concurrent use; the v3 serve loop dispatches requests from multiple
// goroutines.
type State struct {
	shardID      protocol.ShardID
	cacheDir     string
	buildVersion string
	log          *logging.Logger

	mu          sync.Mutex
	revision    protocol.Revision
	indexGen    protocol.IndexGeneration
	files       map[string]string
	fileSymbols map[string][]protocol.Symbol
	sorted      []protocol.Symbol
	sortedStale bool

	saveWG sync.WaitGroup
}

// StateConfig configures a worker state. CacheDir may be empty, in which
// case the index is never persisted.
type StateConfig struct {
	ShardID      protocol.ShardID
	CacheDir     string
	BuildVersion string
}

// NewState builds an empty state for a shard.
func NewState(cfg StateConfig, log *logging.Logger) *State {
	return &State{
		shardID:      cfg.ShardID,
		cacheDir:     cfg.CacheDir,
		buildVersion: cfg.BuildVersion,
		log:          log.With("shard_id", cfg.ShardID),
		files:        make(map[string]string),
		fileSymbols:  make(map[string][]protocol.Symbol),
	}
}

// ShardID returns the shard this state serves.
func (s *State) ShardID() protocol.ShardID { return s.shardID }

// RestoreFromCache loads a persisted index if one matches the running
// build. Returns the restored summary, or nil on a cache miss. Restored
// state has symbols but no file text; the router tops it up with
// LoadFiles before routing edits here.
func (s *State) RestoreFromCache() *protocol.ShardIndexInfo {
	if s.cacheDir == "" {
		return nil
	}
	idx := shardcache.Load(s.cacheDir, s.shardID, s.buildVersion)
	if idx == nil {
		return nil
	}
	s.mu.Lock()
	s.revision = idx.Revision
	s.indexGen = idx.IndexGeneration
	s.sorted = idx.Symbols
	s.sortedStale = false
	s.mu.Unlock()

	info := idx.Info()
	s.log.Info("restored index from cache",
		"revision", info.Revision,
		"index_generation", info.IndexGeneration,
		"symbol_count", info.SymbolCount)
	return &info
}

// IndexShard rebuilds the index from a full file set. The previous file
// map is discarded, the index generation advances, and the new index is
// persisted in the background.
func (s *State) IndexShard(files []protocol.FileText) (protocol.ShardIndexInfo, error) {
	if err := protocol.ValidateFiles(files); err != nil {
		return protocol.ShardIndexInfo{}, err
	}

	s.mu.Lock()
	s.files = make(map[string]string, len(files))
	s.fileSymbols = make(map[string][]protocol.Symbol, len(files))
	for _, f := range files {
		s.files[f.Path] = f.Text
		s.fileSymbols[f.Path] = ExtractSymbols(f.Path, f.Text)
	}
	s.indexGen++
	s.rebuildSortedLocked()
	info := s.infoLocked()
	s.mu.Unlock()

	s.saveCacheAsync()
	return info, nil
}

// LoadFiles adds or replaces files without a rebuild. Revision and index
// generation are unchanged; this is how a cache-restored worker regains
// file text.
func (s *State) LoadFiles(files []protocol.FileText) error {
	if err := protocol.ValidateFiles(files); err != nil {
		return err
	}
	s.mu.Lock()
	for _, f := range files {
		s.files[f.Path] = f.Text
		s.fileSymbols[f.Path] = ExtractSymbols(f.Path, f.Text)
	}
	s.sortedStale = true
	s.mu.Unlock()
	return nil
}

// UpdateFile applies one edit and advances the revision. Empty text
// removes the file.
func (s *State) UpdateFile(path, text string) (protocol.Revision, error) {
	if err := protocol.ValidateFiles([]protocol.FileText{{Path: path, Text: text}}); err != nil {
		return 0, err
	}
	s.mu.Lock()
	if text == "" {
		delete(s.files, path)
		delete(s.fileSymbols, path)
	} else {
		s.files[path] = text
		s.fileSymbols[path] = ExtractSymbols(path, text)
	}
	s.revision++
	s.sortedStale = true
	rev := s.revision
	s.mu.Unlock()

	s.saveCacheAsync()
	return rev, nil
}

// Search returns up to limit symbols whose name contains query,
// case-insensitively. Results keep index order (name, then path).
func (s *State) Search(query string, limit uint32) []protocol.Symbol {
	if limit == 0 || limit > protocol.MaxSearchResultsPerMessage {
		limit = protocol.MaxSearchResultsPerMessage
	}
	needle := strings.ToLower(query)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshSortedLocked()

	out := make([]protocol.Symbol, 0, 16)
	for _, sym := range s.sorted {
		if needle == "" || strings.Contains(strings.ToLower(sym.Name), needle) {
			out = append(out, sym)
			if uint32(len(out)) >= limit {
				break
			}
		}
	}
	return out
}

// Diagnostics runs the per-file checks on one path. An unknown path
// yields no diagnostics.
func (s *State) Diagnostics(path string) []v3.Diagnostic {
	s.mu.Lock()
	text, ok := s.files[path]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return analyzeFile(path, text)
}

// Stats reports the current state summary.
func (s *State) Stats() protocol.WorkerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.WorkerStats{
		ShardID:         s.shardID,
		Revision:        s.revision,
		IndexGeneration: s.indexGen,
		FileCount:       uint64(len(s.files)),
	}
}

// Info reports the current index summary.
func (s *State) Info() protocol.ShardIndexInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshSortedLocked()
	return s.infoLocked()
}

// Flush waits for in-flight background cache saves.
func (s *State) Flush() { s.saveWG.Wait() }

func (s *State) infoLocked() protocol.ShardIndexInfo {
	return protocol.ShardIndexInfo{
		ShardID:         s.shardID,
		Revision:        s.revision,
		IndexGeneration: s.indexGen,
		SymbolCount:     uint64(len(s.sorted)),
	}
}

func (s *State) refreshSortedLocked() {
	if s.sortedStale {
		s.rebuildSortedLocked()
	}
}

func (s *State) rebuildSortedLocked() {
	total := 0
	for _, syms := range s.fileSymbols {
		total += len(syms)
	}
	merged := make([]protocol.Symbol, 0, total)
	for _, syms := range s.fileSymbols {
		merged = append(merged, syms...)
	}
	s.sorted = sortSymbols(merged)
	s.sortedStale = false
}

func (s *State) saveCacheAsync() {
	if s.cacheDir == "" {
		return
	}
	s.mu.Lock()
	s.refreshSortedLocked()
	idx := &protocol.ShardIndex{
		ShardID:         s.shardID,
		Revision:        s.revision,
		IndexGeneration: s.indexGen,
		Symbols:         s.sorted,
	}
	s.mu.Unlock()

	s.saveWG.Add(1)
	go func() {
		defer s.saveWG.Done()
		if err := shardcache.Save(s.cacheDir, idx, s.buildVersion, time.Now().UnixMilli()); err != nil {
			s.log.Warn("cache save failed", "error", err)
		}
	}()
}
