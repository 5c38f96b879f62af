package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func ignoreRepoDir(rel string, _ bool) bool {
	return rel == ".gitlet" || strings.HasPrefix(rel, ".gitlet/") || strings.HasSuffix(rel, ".tmp")
}

func TestRun_ReportsChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".gitlet"), 0755))

	w, err := New(root, ignoreRepoDir, 20*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func() { changes <- struct{}{} })
	}()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0644))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRelevant(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, ignoreRepoDir, 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	event := func(rel string, op fsnotify.Op) fsnotify.Event {
		return fsnotify.Event{Name: filepath.Join(root, filepath.FromSlash(rel)), Op: op}
	}

	assert.True(t, w.relevant(event("a.txt", fsnotify.Write)))
	assert.True(t, w.relevant(event("a.txt", fsnotify.Remove)))
	assert.False(t, w.relevant(event("a.txt", fsnotify.Chmod)))
	assert.False(t, w.relevant(event(".gitlet/db/000001.vlog", fsnotify.Write)))
	assert.False(t, w.relevant(event("scratch.tmp", fsnotify.Create)))
	assert.False(t, w.relevant(fsnotify.Event{Name: root, Op: fsnotify.Write}))

	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0755))
	assert.True(t, w.relevant(event("sub", fsnotify.Create)))
	assert.Contains(t, w.watcher.WatchList(), filepath.Join(root, "sub"))
}
