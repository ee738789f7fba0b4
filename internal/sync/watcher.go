package sync

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rgonek/confluence-mirror/internal/mdfs"
)

// defaultDebounce collapses editor write bursts into one push attempt.
const defaultDebounce = 500 * time.Millisecond

// Watcher observes the working tree recursively and reports changed markdown
// files (workspace-relative, slash-separated) after a debounce window.
// Changes under an attachments directory are attributed to the owning page
// file.
type Watcher struct {
	root     string
	ignore   *mdfs.IgnoreMatcher
	debounce time.Duration
	onChange func(relPath string)
	logger   *slog.Logger

	fsw    *fsnotify.Watcher
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher walks root and registers a watch on every non-ignored
// directory.
func NewWatcher(root string, ignore *mdfs.IgnoreMatcher, debounce time.Duration, onChange func(string), logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		ignore:   ignore,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		fsw:      fsw,
		timers:   map[string]*time.Timer{},
	}
	if err := w.watchTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run dispatches filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	for _, timer := range w.timers {
		timer.Stop()
	}
	w.timers = map[string]*time.Timer{}
	w.mu.Unlock()
	w.fsw.Close()
}

// watchTree registers watches on dir and all non-ignored subdirectories.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		if rel != "." && w.ignore.ShouldIgnore(rel+"/") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if w.ignore.ShouldIgnore(rel) {
		return
	}

	// New directories join the watch set so nested creation is seen.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchTree(event.Name); err != nil {
				w.logger.Warn("adding watch failed", "path", rel, "error", err)
			}
			return
		}
	}

	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	target := rel
	if owner, ok := mdfs.OwningPage(rel); ok {
		target = owner
	}
	if !strings.HasSuffix(target, ".md") {
		return
	}
	w.schedule(target)
}

// schedule arms (or re-arms) the debounce timer for one page file.
func (w *Watcher) schedule(relPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[relPath]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[relPath] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, relPath)
		w.mu.Unlock()
		w.onChange(relPath)
	})
}
