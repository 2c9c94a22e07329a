package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler captures dispatched paths.
type recordingHandler struct {
	mu      sync.Mutex
	indexed []string
	purged  []string
}

func (h *recordingHandler) Index(_ context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.indexed = append(h.indexed, path)
	return nil
}

func (h *recordingHandler) Purge(_ context.Context, paths []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.purged = append(h.purged, paths...)
	return nil
}

func (h *recordingHandler) snapshot() (indexed, purged []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.indexed...), append([]string(nil), h.purged...)
}

func startWatcher(t *testing.T, root string, handler Handler) {
	t.Helper()

	w, err := New(root, handler, Options{Debounce: 30 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func contains(paths []string, want string) bool {
	for _, p := range paths {
		if p == want {
			return true
		}
	}
	return false
}

func TestWatcherIndexesNewFile(t *testing.T) {
	root := t.TempDir()
	h := &recordingHandler{}
	startWatcher(t, root, h)

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.go"), []byte("package new\n"), 0o644))

	assert.Eventually(t, func() bool {
		indexed, _ := h.snapshot()
		return contains(indexed, "new.go")
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherPurgesDeletedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.go")
	require.NoError(t, os.WriteFile(path, []byte("package gone\n"), 0o644))

	h := &recordingHandler{}
	startWatcher(t, root, h)

	require.NoError(t, os.Remove(path))

	assert.Eventually(t, func() bool {
		_, purged := h.snapshot()
		return contains(purged, "gone.go")
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherIgnoresExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".semidx"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))

	h := &recordingHandler{}

	w, err := New(root, h, Options{
		Debounce: 30 * time.Millisecond,
		Exclude:  []string{"node_modules"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, os.WriteFile(filepath.Join(root, ".semidx", "vectors.hnsw"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "index.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.go"), []byte("package real\n"), 0o644))

	require.Eventually(t, func() bool {
		indexed, _ := h.snapshot()
		return contains(indexed, "real.go")
	}, 3*time.Second, 20*time.Millisecond)

	indexed, _ := h.snapshot()
	assert.Equal(t, []string{"real.go"}, indexed)
}

func TestWatcherPicksUpNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	h := &recordingHandler{}
	startWatcher(t, root, h)

	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	// Give the watcher a beat to register the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a.go"), []byte("package pkg\n"), 0o644))

	assert.Eventually(t, func() bool {
		indexed, _ := h.snapshot()
		return contains(indexed, "pkg/a.go")
	}, 3*time.Second, 20*time.Millisecond)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "modify", OpModify.String())
	assert.Equal(t, "delete", OpDelete.String())
	assert.Equal(t, "rename", OpRename.String())
}
