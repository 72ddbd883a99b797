package shardcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/protocol"
)

func writeCacheFile(t *testing.T, dir string, shard protocol.ShardID, size int, mod time.Time) string {
	t.Helper()
	path := Path(dir, shard)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	return path
}

func TestPruneByAge(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := writeCacheFile(t, dir, 0, 100, now.Add(-48*time.Hour))
	fresh := writeCacheFile(t, dir, 1, 100, now.Add(-time.Hour))

	res, err := Prune(dir, 24*time.Hour, 0, now)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.Removed != 1 {
		t.Errorf("Removed = %d, want 1", res.Removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale file survived")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file removed")
	}
}

func TestPruneBySize(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	oldest := writeCacheFile(t, dir, 0, 400, now.Add(-3*time.Hour))
	middle := writeCacheFile(t, dir, 1, 400, now.Add(-2*time.Hour))
	newest := writeCacheFile(t, dir, 2, 400, now.Add(-time.Hour))

	res, err := Prune(dir, 0, 900, now)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.Removed != 1 || res.RemovedBytes != 400 {
		t.Errorf("result = %+v, want 1 file / 400 bytes removed", res)
	}
	if _, err := os.Stat(oldest); !os.IsNotExist(err) {
		t.Error("oldest file should be removed first")
	}
	for _, p := range []string{middle, newest} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s removed, should be kept", filepath.Base(p))
		}
	}
	if res.KeptBytes != 800 {
		t.Errorf("KeptBytes = %d, want 800", res.KeptBytes)
	}
}

func TestPruneRemovesAbandonedTempFiles(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "shard-3.idx.tmp-123456")
	if err := os.WriteFile(tmp, []byte("partial"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Prune(dir, 0, 0, time.Now()); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("abandoned temp file survived")
	}
}

func TestPruneMissingDir(t *testing.T) {
	res, err := Prune(filepath.Join(t.TempDir(), "nope"), time.Hour, 1, time.Now())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.Removed != 0 {
		t.Errorf("Removed = %d, want 0", res.Removed)
	}
}

func TestPruneIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	foreign := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(foreign, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Prune(dir, time.Nanosecond, 1, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Error("foreign file removed")
	}
}
