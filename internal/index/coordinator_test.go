package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semidx/semidx/internal/config"
	"github.com/semidx/semidx/internal/embed"
	"github.com/semidx/semidx/internal/errors"
	"github.com/semidx/semidx/internal/store"
)

// countingEmbedder wraps the hash provider and counts texts embedded.
type countingEmbedder struct {
	*embed.HashEmbedder
	embedded atomic.Int64
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.embedded.Add(int64(len(texts)))
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

type testEnv struct {
	root     string
	store    *store.Store
	embedder *countingEmbedder
	coord    *Coordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	st, err := store.Open(filepath.Join(root, ".semidx"), embed.HashDimensions)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	embedder := &countingEmbedder{HashEmbedder: embed.NewHashEmbedder()}

	cfg := config.NewConfig()
	cfg.Indexer.Workers = 2

	coord := NewCoordinator(root, cfg, st, embedder)
	t.Cleanup(coord.Close)

	return &testEnv{root: root, store: st, embedder: embedder, coord: coord}
}

func (e *testEnv) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(e.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunIndexesProject(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "main.go", "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n")
	env.write(t, "docs/notes.md", "# Notes\n\nSome prose about the design.\n")

	summary, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.FilesScanned)
	assert.Equal(t, 2, summary.FilesIndexed)
	assert.Zero(t, summary.FilesFailed)
	assert.Positive(t, summary.ChunksIndexed)

	stats, err := env.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFiles)
}

func TestRunSkipsUnchangedFiles(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.go", "package a\n")
	env.write(t, "b.go", "package b\n")

	_, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	firstPass := env.embedder.embedded.Load()
	require.Positive(t, firstPass)

	summary, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.FilesSkipped)
	assert.Zero(t, summary.FilesIndexed)
	assert.Equal(t, firstPass, env.embedder.embedded.Load(), "unchanged files must not be re-embedded")
}

func TestRunForceReindexes(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.go", "package a\n")

	_, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	firstPass := env.embedder.embedded.Load()

	summary, err := env.coord.Run(context.Background(), RunOptions{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FilesIndexed)
	assert.Greater(t, env.embedder.embedded.Load(), firstPass)
}

func TestRunReplacesModifiedFile(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.go", "package a\n\nfunc Old() {}\n")

	_, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	env.write(t, "a.go", "package a\n\nfunc Renamed() {}\n")
	summary, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesIndexed)

	chunks, err := env.store.GetChunksByPath(context.Background(), "a.go")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.NotContains(t, c.Content, "Old")
	}
}

func TestRunPurgesVanishedFiles(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "keep.go", "package keep\n")
	env.write(t, "gone.go", "package gone\n")

	_, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(env.root, "gone.go")))
	summary, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesPurged)

	paths, err := env.store.ListFilePaths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.go"}, paths)
}

func TestRunSubPathLeavesSiblingsAlone(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "internal/api/handler.go", "package api\n")
	env.write(t, "internal/store/store.go", "package store\n")

	_, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	// Delete a file outside the subtree. A subtree run must not purge it.
	require.NoError(t, os.Remove(filepath.Join(env.root, "internal", "store", "store.go")))

	summary, err := env.coord.Run(context.Background(), RunOptions{SubPath: "internal/api"})
	require.NoError(t, err)
	assert.Zero(t, summary.FilesPurged)

	paths, err := env.store.ListFilePaths(context.Background())
	require.NoError(t, err)
	assert.Contains(t, paths, "internal/store/store.go")
}

func TestRunFailedFileRetriesNextRun(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}

	env := newTestEnv(t)
	env.write(t, "ok.go", "package ok\n")
	unreadable := filepath.Join(env.root, "secret.go")
	require.NoError(t, os.WriteFile(unreadable, []byte("package secret\n"), 0o644))
	require.NoError(t, os.Chmod(unreadable, 0o000))
	t.Cleanup(func() { _ = os.Chmod(unreadable, 0o644) })

	summary, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesIndexed)
	assert.Equal(t, 1, summary.FilesFailed)

	// Once readable again, the file is picked up without Force.
	require.NoError(t, os.Chmod(unreadable, 0o644))
	summary, err = env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesIndexed)
}

// poisonEmbedder fails any batch containing the marker text.
type poisonEmbedder struct {
	*embed.HashEmbedder
	marker string
}

func (p *poisonEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if strings.Contains(text, p.marker) {
			return nil, errors.New(errors.ErrCodeEmbedFailed, "provider rejected batch", nil)
		}
	}
	return p.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestRunFailedEmbedBatchOnlyFailsItsFiles(t *testing.T) {
	root := t.TempDir()

	st, err := store.Open(filepath.Join(root, ".semidx"), embed.HashDimensions)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	embedder := &poisonEmbedder{HashEmbedder: embed.NewHashEmbedder(), marker: "UNEMBEDDABLE"}

	cfg := config.NewConfig()
	cfg.Indexer.Workers = 2
	cfg.Embeddings.BatchSize = 1

	coord := NewCoordinator(root, cfg, st, embedder)
	t.Cleanup(coord.Close)
	coord.batcher.SetRetryConfig(errors.RetryConfig{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
	})

	require.NoError(t, os.WriteFile(filepath.Join(root, "good.go"), []byte("package good\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.go"), []byte("package bad // UNEMBEDDABLE\n"), 0o644))

	summary, err := coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesIndexed)
	assert.Equal(t, 1, summary.FilesFailed)

	// The committed file is recorded; the failed one keeps no hash so
	// the next run retries it.
	_, err = st.FileHash(context.Background(), "good.go")
	assert.NoError(t, err)
	_, err = st.FileHash(context.Background(), "bad.go")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunProgressCallback(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.go", "package a\n")
	env.write(t, "b.go", "package b\n")

	var updates []Progress
	_, err := env.coord.Run(context.Background(), RunOptions{
		Progress: func(p Progress) { updates = append(updates, p) },
	})
	require.NoError(t, err)

	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, 2, last.Done)
	assert.Equal(t, 2, last.Total)
}

func TestRunCommitHookFires(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.go", "package a\n")

	var commits atomic.Int64
	env.coord.OnCommit(func() { commits.Add(1) })

	_, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Positive(t, commits.Load())
}

func TestRunCancellation(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 20; i++ {
		env.write(t, filepath.Join("pkg", string(rune('a'+i))+".go"), "package pkg\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.coord.Run(ctx, RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPurgePaths(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.go", "package a\n")
	_, err := env.coord.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	require.NoError(t, env.coord.PurgePaths(context.Background(), []string{"a.go"}))

	paths, err := env.store.ListFilePaths(context.Background())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestAcquireLockExcludesSecondHolder(t *testing.T) {
	dir := t.TempDir()

	l1, err := AcquireLock(dir)
	require.NoError(t, err)
	defer func() { _ = l1.Release() }()

	// flock is per-process advisory locking; a second acquire in the same
	// process succeeds on some platforms, so only exercise release/reacquire.
	require.NoError(t, l1.Release())

	l2, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
