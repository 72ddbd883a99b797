package worker

import (
	"io"
	"testing"

	"mercator-hq/saturn/pkg/protocol"
	"mercator-hq/saturn/pkg/telemetry/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New(logging.Config{Level: "error", Format: "text", Writer: io.Discard})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	return log
}

func newTestState(t *testing.T, cacheDir string) *State {
	t.Helper()
	return NewState(StateConfig{ShardID: 3, CacheDir: cacheDir, BuildVersion: "test"}, testLogger(t))
}

var fixtureFiles = []protocol.FileText{
	{Path: "a/Alpha.java", Text: "package a;\npublic class Alpha {\n  public void runAlpha() {}\n}\n"},
	{Path: "b/Beta.java", Text: "package b;\npublic class Beta {\n  public void runBeta() {}\n}\n"},
}

func TestIndexShardBuildsIndex(t *testing.T) {
	s := newTestState(t, "")

	info, err := s.IndexShard(fixtureFiles)
	if err != nil {
		t.Fatalf("IndexShard: %v", err)
	}
	if info.ShardID != 3 {
		t.Errorf("shard id = %d, want 3", info.ShardID)
	}
	if info.IndexGeneration != 1 {
		t.Errorf("index generation = %d, want 1", info.IndexGeneration)
	}
	if info.Revision != 0 {
		t.Errorf("revision = %d, want 0", info.Revision)
	}
	if info.SymbolCount != 4 {
		t.Errorf("symbol count = %d, want 4 (Alpha, Beta, runAlpha, runBeta)", info.SymbolCount)
	}

	// Reindexing advances the generation and replaces the file set.
	info, err = s.IndexShard(fixtureFiles[:1])
	if err != nil {
		t.Fatalf("IndexShard: %v", err)
	}
	if info.IndexGeneration != 2 {
		t.Errorf("index generation = %d, want 2", info.IndexGeneration)
	}
	if got := s.Stats().FileCount; got != 1 {
		t.Errorf("file count after reindex = %d, want 1", got)
	}
	if res := s.Search("Beta", 10); len(res) != 0 {
		t.Errorf("dropped file still searchable: %v", res)
	}
}

func TestUpdateFileAdvancesRevision(t *testing.T) {
	s := newTestState(t, "")
	if _, err := s.IndexShard(fixtureFiles); err != nil {
		t.Fatalf("IndexShard: %v", err)
	}

	rev, err := s.UpdateFile("a/Alpha.java", "package a;\npublic class Gamma {}\n")
	if err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}
	if rev != 1 {
		t.Errorf("revision = %d, want 1", rev)
	}
	if res := s.Search("Gamma", 10); len(res) != 1 {
		t.Errorf("Gamma not found after update: %v", res)
	}
	if res := s.Search("runAlpha", 10); len(res) != 0 {
		t.Errorf("stale symbol survived update: %v", res)
	}

	// Empty text removes the file.
	rev, err = s.UpdateFile("a/Alpha.java", "")
	if err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}
	if rev != 2 {
		t.Errorf("revision = %d, want 2", rev)
	}
	if got := s.Stats().FileCount; got != 1 {
		t.Errorf("file count after removal = %d, want 1", got)
	}
}

func TestSearchMatching(t *testing.T) {
	s := newTestState(t, "")
	if _, err := s.IndexShard(fixtureFiles); err != nil {
		t.Fatalf("IndexShard: %v", err)
	}

	tests := []struct {
		name  string
		query string
		limit uint32
		want  []string
	}{
		{"case insensitive", "alpha", 10, []string{"Alpha", "runAlpha"}},
		{"exact", "Beta", 10, []string{"Beta", "runBeta"}},
		{"no match", "Delta", 10, nil},
		{"empty query matches all", "", 10, []string{"Alpha", "Beta", "runAlpha", "runBeta"}},
		{"limit respected", "", 2, []string{"Alpha", "Beta"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := s.Search(tc.query, tc.limit)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want names %v", got, tc.want)
			}
			for i, name := range tc.want {
				if got[i].Name != name {
					t.Errorf("result %d = %q, want %q", i, got[i].Name, name)
				}
			}
		})
	}
}

func TestSearchLimitZeroMeansCeiling(t *testing.T) {
	s := newTestState(t, "")
	if _, err := s.IndexShard(fixtureFiles); err != nil {
		t.Fatalf("IndexShard: %v", err)
	}
	if got := s.Search("", 0); len(got) != 4 {
		t.Errorf("limit 0 returned %d results, want all 4", len(got))
	}
}

func TestLoadFilesKeepsRevisionAndGeneration(t *testing.T) {
	s := newTestState(t, "")
	if err := s.LoadFiles(fixtureFiles); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	stats := s.Stats()
	if stats.Revision != 0 || stats.IndexGeneration != 0 {
		t.Errorf("LoadFiles moved revision/generation: %+v", stats)
	}
	if stats.FileCount != 2 {
		t.Errorf("file count = %d, want 2", stats.FileCount)
	}
	if res := s.Search("Alpha", 10); len(res) != 2 {
		t.Errorf("loaded files not searchable: %v", res)
	}
}

func TestIndexShardRejectsOversizedBatch(t *testing.T) {
	s := newTestState(t, "")
	big := []protocol.FileText{{Path: "x.java", Text: string(make([]byte, protocol.MaxFileTextBytes+1))}}
	if _, err := s.IndexShard(big); err == nil {
		t.Fatal("oversized file accepted")
	}
}

func TestCacheRoundTripThroughState(t *testing.T) {
	dir := t.TempDir()

	s := newTestState(t, dir)
	if _, err := s.IndexShard(fixtureFiles); err != nil {
		t.Fatalf("IndexShard: %v", err)
	}
	if _, err := s.UpdateFile("a/Alpha.java", "package a;\npublic class Alpha2 {}\n"); err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}
	s.Flush()

	restored := newTestState(t, dir)
	info := restored.RestoreFromCache()
	if info == nil {
		t.Fatal("cache miss after save")
	}
	if info.Revision != 1 || info.IndexGeneration != 1 {
		t.Errorf("restored info = %+v, want revision 1 generation 1", info)
	}
	if res := restored.Search("Alpha2", 10); len(res) != 1 {
		t.Errorf("restored index not searchable: %v", res)
	}
	// File text is not cached; only the symbol index survives.
	if got := restored.Stats().FileCount; got != 0 {
		t.Errorf("restored file count = %d, want 0", got)
	}
}

func TestRestoreFromCacheMissesAcrossBuilds(t *testing.T) {
	dir := t.TempDir()
	s := NewState(StateConfig{ShardID: 3, CacheDir: dir, BuildVersion: "v1"}, testLogger(t))
	if _, err := s.IndexShard(fixtureFiles); err != nil {
		t.Fatalf("IndexShard: %v", err)
	}
	s.Flush()

	other := NewState(StateConfig{ShardID: 3, CacheDir: dir, BuildVersion: "v2"}, testLogger(t))
	if info := other.RestoreFromCache(); info != nil {
		t.Errorf("cache written by v1 restored by v2: %+v", info)
	}
}

func TestDiagnostics(t *testing.T) {
	s := newTestState(t, "")
	files := []protocol.FileText{
		{Path: "good.java", Text: "package a;\nclass Ok {}\n"},
		{Path: "unclosed.java", Text: "package a;\nclass Bad {\n"},
		{Path: "extra.java", Text: "package a;\n}\n"},
		{Path: "nopkg.java", Text: "class Floating {}\n"},
	}
	if _, err := s.IndexShard(files); err != nil {
		t.Fatalf("IndexShard: %v", err)
	}

	if d := s.Diagnostics("good.java"); len(d) != 0 {
		t.Errorf("clean file has diagnostics: %v", d)
	}
	if d := s.Diagnostics("unclosed.java"); len(d) != 1 || d[0].Severity != "error" {
		t.Errorf("unclosed brace diagnostics = %v", d)
	}
	if d := s.Diagnostics("extra.java"); len(d) != 1 || d[0].Line != 2 {
		t.Errorf("unmatched brace diagnostics = %v", d)
	}
	if d := s.Diagnostics("nopkg.java"); len(d) != 1 || d[0].Severity != "warning" {
		t.Errorf("missing package diagnostics = %v", d)
	}
	if d := s.Diagnostics("missing.java"); d != nil {
		t.Errorf("unknown path has diagnostics: %v", d)
	}
}
