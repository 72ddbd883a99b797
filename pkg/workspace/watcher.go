package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/saturn/pkg/telemetry/logging"
)

// FileChange is one settled filesystem change. Removed files arrive with
// empty Text and Removed set.
type FileChange struct {
	Path    string
	Text    string
	Removed bool
}

// WatcherConfig configures source tree watching.
type WatcherConfig struct {
	// DebounceInterval is the quiet period a file must hold before its
	// change is emitted. Editors often write several events per save.
	// Default: 100ms.
	DebounceInterval time.Duration
}

// Watcher turns filesystem events under the layout's roots into per-file
// changes. New subdirectories are picked up as they appear.
type Watcher struct {
	layout   *Layout
	watcher  *fsnotify.Watcher
	log      *logging.Logger
	interval time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the layout's roots.
func NewWatcher(layout *Layout, cfg WatcherConfig, log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	interval := cfg.DebounceInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Watcher{
		layout:   layout,
		watcher:  fsw,
		log:      log,
		interval: interval,
		pending:  make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks, emitting settled changes until ctx is cancelled or Stop
// is called. Watcher errors are logged and watching continues.
func (w *Watcher) Watch(ctx context.Context, emit func(FileChange)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	for _, root := range w.layout.Roots {
		if err := w.addTree(root.Path); err != nil {
			return fmt.Errorf("watch %q: %w", root.Path, err)
		}
	}
	w.log.Info("workspace watcher started",
		"roots", len(w.layout.Roots),
		"debounce_ms", w.interval.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			w.handleEvent(event, emit)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.Error("workspace watcher error", "error", err)
		}
	}
}

// Stop ends watching and cancels pending debounce timers.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event, emit func(FileChange)) {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return
	}

	// A new directory extends the watch set.
	if event.Op&fsnotify.Create == fsnotify.Create {
		if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.log.Warn("watching new directory failed", "path", event.Name, "error", err)
			}
			return
		}
	}

	if !IsSourceFile(event.Name) {
		return
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}
	if _, ok := w.layout.ShardForPath(event.Name); !ok {
		return
	}

	w.debounce(event.Name, func() {
		change := FileChange{Path: event.Name}
		text, err := os.ReadFile(event.Name)
		if err != nil {
			change.Removed = true
		} else {
			change.Text = string(text)
		}
		w.log.Debug("file change settled", "path", change.Path, "removed", change.Removed)
		emit(change)
	})
}

// debounce schedules fn after the quiet interval, replacing any pending
// schedule for the same path.
func (w *Watcher) debounce(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.interval, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case <-w.stopCh:
		default:
			fn()
		}
	})
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return filepath.SkipAll
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}
