// Package watcher turns filesystem events under the inbox and library roots
// into change notifications for the orchestrator. It watches directories
// recursively, following new subdirectories as they appear, and filters out
// noise before anything reaches a queue.
package watcher

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

	"tonearm/internal/logging"
)

// NotifyFunc receives the root a change belongs to and the changed path.
type NotifyFunc func(root, path string)

// Watcher owns one fsnotify watcher covering multiple roots.
type Watcher struct {
	roots   []string
	ignores []string
	notify  NotifyFunc
	logger  *slog.Logger

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	watched   int
	lastEvent time.Time
	running   bool
}

// New constructs a watcher over roots. ignores is a list of path substrings
// whose matches are dropped silently.
func New(roots, ignores []string, notify NotifyFunc, logger *slog.Logger) *Watcher {
	return &Watcher{
		roots:   roots,
		ignores: ignores,
		notify:  notify,
		logger:  logging.NewComponentLogger(logger, "watcher"),
	}
}

// Start registers all roots and begins delivering events until ctx is
// cancelled. Roots that do not exist yet are skipped with a warning; they
// are picked up on restart.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.running = true
	w.watched = 0
	w.mu.Unlock()

	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			w.logger.Warn("failed to watch root",
				logging.String(logging.FieldTarget, root), logging.Error(err))
		}
	}

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		fsw := w.fsw
		w.mu.Unlock()
		if fsw != nil {
			fsw.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	root, ok := w.rootFor(event.Name)
	if !ok || w.ignored(root, event.Name) {
		return
	}

	// New directories need their own watch before their contents can be
	// seen. fsnotify does not recurse on its own.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					logging.String(logging.FieldTarget, event.Name), logging.Error(err))
			}
		}
	}

	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	w.lastEvent = time.Now()
	w.mu.Unlock()

	w.notify(root, event.Name)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.hiddenComponent(root, path) {
			return filepath.SkipDir
		}
		if err := w.addWatch(path); err != nil {
			return err
		}
		return nil
	})
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	if err := w.fsw.Add(path); err != nil {
		return err
	}
	w.watched++
	return nil
}

// rootFor finds which configured root contains path, if any. Paths outside
// every root are dropped.
func (w *Watcher) rootFor(path string) (string, bool) {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)) {
			return root, true
		}
	}
	return "", false
}

// ignored filters hidden files, editor temp files, and configured
// substrings. Hidden checks only apply to components below the root, so a
// root that itself lives under a dot-directory still works.
func (w *Watcher) ignored(root, path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") || strings.HasSuffix(base, "~") {
		return true
	}
	if w.hiddenComponent(root, path) {
		return true
	}
	for _, sub := range w.ignores {
		if sub != "" && strings.Contains(path, sub) {
			return true
		}
	}
	return false
}

func (w *Watcher) hiddenComponent(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// Status describes the watcher for the API.
type Status struct {
	Running          bool      `json:"running"`
	Roots            []string  `json:"roots"`
	WatchedDirs      int       `json:"watched_dirs"`
	LastEventAt      time.Time `json:"last_event_at"`
	IgnoreSubstrings []string  `json:"ignore_substrings"`
}

// Status returns a snapshot of the watcher's state.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Running:          w.running,
		Roots:            append([]string(nil), w.roots...),
		WatchedDirs:      w.watched,
		LastEventAt:      w.lastEvent,
		IgnoreSubstrings: append([]string(nil), w.ignores...),
	}
}
