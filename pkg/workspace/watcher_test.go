package workspace

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

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

func startWatcher(t *testing.T, l *Layout) (*Watcher, func() []FileChange) {
	t.Helper()
	w, err := NewWatcher(l, WatcherConfig{DebounceInterval: 50 * time.Millisecond}, testLogger(t))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	var mu sync.Mutex
	var changes []FileChange
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Watch(ctx, func(c FileChange) {
			mu.Lock()
			changes = append(changes, c)
			mu.Unlock()
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Stop()
	})
	// Give the watcher a beat to register its roots.
	time.Sleep(100 * time.Millisecond)

	return w, func() []FileChange {
		mu.Lock()
		defer mu.Unlock()
		return append([]FileChange(nil), changes...)
	}
}

func waitForChanges(t *testing.T, snapshot func() []FileChange, want int) []FileChange {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := snapshot(); len(got) >= want {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("never saw %d changes (have %d)", want, len(snapshot()))
	return nil
}

func TestWatcherEmitsSettledChange(t *testing.T) {
	root := t.TempDir()
	l, err := NewLayout(root)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	_, snapshot := startWatcher(t, l)

	path := filepath.Join(root, "A.java")
	writeFile(t, path, "class A {}")

	changes := waitForChanges(t, snapshot, 1)
	last := changes[len(changes)-1]
	if last.Path != path || last.Removed || last.Text != "class A {}" {
		t.Errorf("change = %+v", last)
	}
}

func TestWatcherDebouncesRapidWrites(t *testing.T) {
	root := t.TempDir()
	l, err := NewLayout(root)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	_, snapshot := startWatcher(t, l)

	path := filepath.Join(root, "B.java")
	for i := 0; i < 5; i++ {
		writeFile(t, path, "class B {}")
		time.Sleep(5 * time.Millisecond)
	}

	changes := waitForChanges(t, snapshot, 1)
	// Settled once (or at most twice if a write straddled the quiet
	// period), not once per write.
	if len(changes) >= 5 {
		t.Errorf("got %d changes for 5 rapid writes, debounce not working", len(changes))
	}
	if changes[len(changes)-1].Text != "class B {}" {
		t.Errorf("final text = %q", changes[len(changes)-1].Text)
	}
}

func TestWatcherIgnoresNonSourceFiles(t *testing.T) {
	root := t.TempDir()
	l, err := NewLayout(root)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	_, snapshot := startWatcher(t, l)

	writeFile(t, filepath.Join(root, "notes.txt"), "irrelevant")
	writeFile(t, filepath.Join(root, "C.java"), "class C {}")

	changes := waitForChanges(t, snapshot, 1)
	for _, c := range changes {
		if filepath.Ext(c.Path) != ".java" {
			t.Errorf("non-source change emitted: %+v", c)
		}
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	l, err := NewLayout(root)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	_, snapshot := startWatcher(t, l)

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	// Give the watcher time to add the new directory.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Join(sub, "D.java"), "class D {}")

	changes := waitForChanges(t, snapshot, 1)
	found := false
	for _, c := range changes {
		if filepath.Base(c.Path) == "D.java" {
			found = true
		}
	}
	if !found {
		t.Error("change in new subdirectory never emitted")
	}
}

func TestWatcherReportsRemoval(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "E.java")
	writeFile(t, path, "class E {}")

	l, err := NewLayout(root)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	_, snapshot := startWatcher(t, l)

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	changes := waitForChanges(t, snapshot, 1)
	last := changes[len(changes)-1]
	if !last.Removed || last.Path != path {
		t.Errorf("change = %+v, want removal of %s", last, path)
	}
}
