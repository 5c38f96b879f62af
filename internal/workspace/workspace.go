// Package workspace synchronizes the working tree with commits: it takes
// snapshots of the live files, classifies them against HEAD and the staging
// area, and materializes commit snapshots on checkout.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gerrors "gitlet/internal/errors"
	"gitlet/internal/safe"
	"gitlet/internal/validation"

	gitignore "github.com/denormal/go-gitignore"
	"go.uber.org/zap"
)

// IgnoreFile holds gitignore-style patterns for paths gitlet never sees.
const IgnoreFile = ".gitletignore"

// FindRoot searches startDir and its parents for the repository directory.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		info, err := os.Stat(filepath.Join(dir, validation.RepoDirName))
		if err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", gerrors.NotInitialized()
}

// Workspace is the working tree of one repository.
type Workspace struct {
	root   string
	ignore gitignore.GitIgnore
	logger *zap.Logger
}

func New(root string, logger *zap.Logger) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	if canonical, err := filepath.EvalSymlinks(abs); err == nil {
		abs = canonical
	}

	w := &Workspace{root: abs, logger: logger}
	w.ignore = w.loadIgnore()
	return w, nil
}

func (w *Workspace) Root() string {
	return w.root
}

// loadIgnore compiles IgnoreFile, if present. A missing or unreadable file
// yields a matcher that ignores nothing.
func (w *Workspace) loadIgnore() gitignore.GitIgnore {
	data, err := os.ReadFile(filepath.Join(w.root, IgnoreFile))
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("reading ignore file", zap.Error(err))
		}
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}

	return gitignore.New(
		strings.NewReader(strings.Join(patterns, "\n")),
		w.root,
		func(e gitignore.Error) bool {
			w.logger.Warn("invalid ignore pattern", zap.Error(e.Underlying()))
			return true
		},
	)
}

// Ignored reports whether a repository-relative path is excluded from
// snapshots. The repository directory is always excluded.
func (w *Workspace) Ignored(rel string, isDir bool) bool {
	if rel == validation.RepoDirName || strings.HasPrefix(rel, validation.RepoDirName+"/") {
		return true
	}
	if w.ignore == nil {
		return false
	}
	match := w.ignore.Relative(rel, isDir)
	return match != nil && match.Ignore()
}

func (w *Workspace) abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

// Snapshot returns the live digest of every non-ignored regular file, keyed
// by repository-relative slash path.
func (w *Workspace) Snapshot() (map[string]string, error) {
	snap := make(map[string]string)

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == w.root {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.Ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || w.Ignored(rel, false) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		snap[rel] = safe.Digest(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking workspace: %w", err)
	}

	w.logger.Debug("took workspace snapshot", zap.Int("files", len(snap)))
	return snap, nil
}

// Read returns the content of a working file.
func (w *Workspace) Read(rel string) ([]byte, error) {
	data, err := os.ReadFile(w.abs(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, gerrors.FileNotFound(rel)
		}
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	return data, nil
}

// Exists reports whether rel names a regular file in the working tree.
func (w *Workspace) Exists(rel string) bool {
	info, err := os.Stat(w.abs(rel))
	return err == nil && info.Mode().IsRegular()
}

// Write creates or overwrites a working file, creating parent directories.
func (w *Workspace) Write(rel string, data []byte) error {
	path := w.abs(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// Delete removes a working file if it exists and prunes parent directories
// left empty, stopping at the root.
func (w *Workspace) Delete(rel string) error {
	path := w.abs(rel)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", rel, err)
	}

	for dir := filepath.Dir(path); dir != w.root && strings.HasPrefix(dir, w.root); dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
