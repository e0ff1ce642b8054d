// Package watcher watches the class source tree and reports which classes
// changed on disk.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"clslens/internal/paths"

	"github.com/fsnotify/fsnotify"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

// Event represents a change to one class file
type Event struct {
	Type      EventType
	Path      string
	Class     string
	Timestamp time.Time
}

// String returns a string representation of the event type
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// ChangeHandler is called once per quiet period with the changed classes,
// sorted and without duplicates.
type ChangeHandler func(classes []string, events []Event)

// Config contains watcher configuration
type Config struct {
	Enabled        bool     `json:"enabled" mapstructure:"enabled"`
	DebounceMs     int      `json:"debounceMs" mapstructure:"debounceMs"`
	IgnorePatterns []string `json:"ignorePatterns" mapstructure:"ignorePatterns"`
}

// DefaultConfig returns the default watcher configuration
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		DebounceMs: 500,
		IgnorePatterns: []string{
			"*.tmp",
			"*~",
			".#*",
			".git/**",
			".clslens/**",
		},
	}
}

// Watcher watches a class source directory
type Watcher struct {
	config  Config
	root    string
	logger  *slog.Logger
	handler ChangeHandler

	fs    *fsnotify.Watcher
	batch *BatchDebouncer

	mu      sync.RWMutex
	dirs    map[string]bool
	emitted int
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a watcher for the classes below root.
func New(root string, config Config, logger *slog.Logger, handler ChangeHandler) *Watcher {
	w := &Watcher{
		config:  config,
		root:    root,
		logger:  logger,
		handler: handler,
		dirs:    make(map[string]bool),
	}
	w.batch = NewBatchDebouncer(time.Duration(config.DebounceMs)*time.Millisecond, w.emit)
	return w
}

// Start begins watching. It returns once every existing directory below the
// root is registered.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.config.Enabled {
		w.logger.Info("File watcher is disabled")
		return nil
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fs = fs
	if err := w.addTree(w.root); err != nil {
		_ = fs.Close()
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("Starting file watcher", "root", w.root, "debounceMs", w.config.DebounceMs)
	return nil
}

// Stop stops watching and drops pending events.
func (w *Watcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.fs.Close()
	w.wg.Wait()
	w.batch.Cancel()
	w.logger.Info("File watcher stopped")
	return err
}

// Flush delivers pending events now.
func (w *Watcher) Flush() {
	w.batch.Flush()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.IsIgnored(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", ev.Name, "error", err.Error())
			}
			return
		}
	}

	class := paths.ClassFromFile(w.root, ev.Name)
	if class == "" {
		return
	}
	var typ EventType
	switch {
	case ev.Has(fsnotify.Write):
		typ = EventModify
	case ev.Has(fsnotify.Create):
		typ = EventCreate
	case ev.Has(fsnotify.Remove):
		typ = EventDelete
	case ev.Has(fsnotify.Rename):
		typ = EventRename
	default:
		return
	}
	w.batch.Add(Event{Type: typ, Path: ev.Name, Class: class, Timestamp: time.Now()})
}

func (w *Watcher) emit(events []Event) {
	seen := make(map[string]bool, len(events))
	classes := make([]string, 0, len(events))
	for _, ev := range events {
		if !seen[ev.Class] {
			seen[ev.Class] = true
			classes = append(classes, ev.Class)
		}
	}
	sort.Strings(classes)

	w.mu.Lock()
	w.emitted += len(classes)
	w.mu.Unlock()

	w.logger.Debug("Class changes detected", "classes", len(classes), "events", len(events))
	if w.handler != nil {
		w.handler(classes, events)
	}
}

// addTree registers dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.IsIgnored(path) {
			return filepath.SkipDir
		}
		w.mu.Lock()
		known := w.dirs[path]
		w.dirs[path] = true
		w.mu.Unlock()
		if known {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err.Error())
		}
		return nil
	})
}

// IsIgnored checks if a path matches ignore patterns
func (w *Watcher) IsIgnored(path string) bool {
	rel, err := paths.CanonicalizePath(path, w.root)
	if err != nil {
		rel = filepath.ToSlash(path)
	}
	for _, pattern := range w.config.IgnorePatterns {
		if matched, _ := filepath.Match(pattern, filepath.Base(path)); matched {
			return true
		}

		// dir/** matches the directory and everything below it
		if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
		}
	}
	return false
}

// WatchedDirs returns the registered directories
func (w *Watcher) WatchedDirs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	dirs := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Stats returns watcher statistics
func (w *Watcher) Stats() map[string]interface{} {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return map[string]interface{}{
		"enabled":        w.config.Enabled,
		"root":           w.root,
		"watchedDirs":    len(w.dirs),
		"changedClasses": w.emitted,
		"debounceMs":     w.config.DebounceMs,
		"ignorePatterns": len(w.config.IgnorePatterns),
	}
}
