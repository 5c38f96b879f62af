// Package watch reports working tree changes using filesystem notifications.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the tree must stay quiet before a change is
// reported.
const DefaultDebounce = 150 * time.Millisecond

// IgnoreFunc reports whether a repository-relative slash path is ignored.
type IgnoreFunc func(rel string, isDir bool) bool

// Watcher watches every non-ignored directory under a root.
type Watcher struct {
	root     string
	ignore   IgnoreFunc
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger
}

// New registers root and all its non-ignored subdirectories.
func New(root string, ignore IgnoreFunc, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ignore == nil {
		ignore = func(string, bool) bool { return false }
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		ignore:   ignore,
		watcher:  fw,
		debounce: debounce,
		logger:   logger,
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addTree adds dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root {
			if rel, ok := w.rel(path); !ok || w.ignore(rel, true) {
				return filepath.SkipDir
			}
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

// relevant reports whether event touches a non-ignored path. New
// directories are added to the watch set.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	rel, ok := w.rel(event.Name)
	if !ok || rel == "." {
		return false
	}

	isDir := false
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if w.ignore(rel, isDir) {
		return false
	}

	if isDir {
		if err := w.addTree(event.Name); err != nil {
			w.logger.Warn("watching new directory", zap.String("path", rel), zap.Error(err))
		}
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

// Run calls onChange once per burst of relevant events until ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				w.logger.Debug("working tree event",
					zap.String("path", event.Name),
					zap.String("op", event.Op.String()))
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		case <-timer.C:
			onChange()
		}
	}
}

// Close cleans up resources
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
