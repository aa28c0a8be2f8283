// Package watch triggers a reindex when report files change on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 2 * time.Second

// Watcher monitors the reports directory and one level of company
// directories below it. Bursts of events collapse into one callback once the
// tree has been quiet for Debounce.
type Watcher struct {
	root     string
	debounce time.Duration
	supports func(path string) bool
	logger   *slog.Logger
}

// New returns a watcher for root. supports filters the files that count as
// reports; nil accepts every file.
func New(root string, debounce time.Duration, supports func(path string) bool, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if supports == nil {
		supports = func(string) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{root: root, debounce: debounce, supports: supports, logger: logger}
}

// Run blocks until ctx is canceled. onChange runs on the watcher goroutine,
// so events arriving during a rebuild are folded into the next one.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("read reports dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			if err := fw.Add(filepath.Join(w.root, entry.Name())); err != nil {
				return fmt.Errorf("watch %s: %w", entry.Name(), err)
			}
		}
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fw, event) {
				continue
			}
			w.logger.Debug("report_change_detected", "path", event.Name, "op", event.Op.String())
			pending = true
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("report_watch_error", "error", err)
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			if err := onChange(ctx); err != nil {
				w.logger.Error("report_reindex_failed", "error", err)
			}
		}
	}
}

func (w *Watcher) relevant(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == filepath.Clean(w.root) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.Add(event.Name); err != nil {
				w.logger.Warn("report_watch_add_failed", "dir", event.Name, "error", err)
			}
			return true
		}
	}
	// A removed company directory has no extension to check.
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && filepath.Ext(event.Name) == "" {
		return true
	}
	return w.supports(event.Name)
}
