// Package index drives incremental indexing runs: discover files, skip the
// unchanged ones by content hash, extract and embed chunks, and commit each
// file atomically to the store.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semidx/semidx/internal/chunk"
	"github.com/semidx/semidx/internal/config"
	"github.com/semidx/semidx/internal/embed"
	"github.com/semidx/semidx/internal/errors"
	"github.com/semidx/semidx/internal/gitutil"
	"github.com/semidx/semidx/internal/scanner"
	"github.com/semidx/semidx/internal/store"
)

// Progress describes how far a run has come. Done counts files that were
// committed, skipped, or failed.
type Progress struct {
	Done  int
	Total int
	Path  string
}

// ProgressFunc receives progress updates during a run. It is called from a
// single goroutine.
type ProgressFunc func(Progress)

// RunOptions controls a single indexing run.
type RunOptions struct {
	// SubPath restricts the run to one subtree of the project root,
	// slash-separated and relative. Empty indexes everything.
	SubPath string

	// Force reindexes files even when their content hash is unchanged.
	Force bool

	Progress ProgressFunc
}

// Summary reports what a run did.
type Summary struct {
	FilesScanned  int
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	FilesPurged   int
	ChunksIndexed int
	Duration      time.Duration
}

// Coordinator owns the indexing pipeline for one project root.
type Coordinator struct {
	root      string
	cfg       *config.Config
	store     *store.Store
	embedder  embed.Embedder
	batcher   *embed.Batcher
	extractor *chunk.Extractor
	scanner   *scanner.Scanner

	// onCommit runs after every store mutation. The CLI and server wire
	// the search engine's cache clear here.
	onCommit func()
}

// NewCoordinator creates a coordinator for the project at root.
func NewCoordinator(root string, cfg *config.Config, st *store.Store, embedder embed.Embedder) *Coordinator {
	return &Coordinator{
		root:     root,
		cfg:      cfg,
		store:    st,
		embedder: embedder,
		batcher:  embed.NewBatcher(embedder, cfg.Embeddings.BatchSize),
		extractor: chunk.NewExtractor(chunk.Options{
			MaxChunkWords:  cfg.Indexer.MaxChunkWords,
			OverlapWords:   cfg.Indexer.ChunkOverlapWords,
			SmallFileBytes: cfg.Indexer.SmallFileBytes,
		}),
		scanner: scanner.New(),
	}
}

// OnCommit registers a hook invoked after every committed store mutation.
func (c *Coordinator) OnCommit(fn func()) {
	c.onCommit = fn
}

// Close releases extractor resources.
func (c *Coordinator) Close() {
	c.extractor.Close()
}

// fileWork is one file's extraction output waiting to be embedded.
type fileWork struct {
	record *store.FileRecord
	chunks []*store.Chunk
}

type runState struct {
	mu      sync.Mutex
	done    int
	total   int
	summary Summary
	report  ProgressFunc
}

func (r *runState) step(path string, apply func(*Summary)) {
	r.mu.Lock()
	apply(&r.summary)
	r.done++
	done, total := r.done, r.total
	r.mu.Unlock()
	if r.report != nil {
		r.report(Progress{Done: done, Total: total, Path: path})
	}
}

// Run executes one indexing pass and returns a summary. Individual file
// failures are logged and counted but do not abort the run; cancellation
// and embedding-store mismatches do.
func (c *Coordinator) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	started := time.Now()

	if err := c.store.CheckEmbedding(ctx, c.embedder.ModelName(), c.embedder.Dimensions()); err != nil {
		return nil, err
	}

	files, err := c.discover(ctx, opts.SubPath)
	if err != nil {
		return nil, err
	}

	branch := gitutil.CurrentBranch(c.root)

	state := &runState{total: len(files), report: opts.Progress}
	state.summary.FilesScanned = len(files)

	workers := c.cfg.Indexer.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	jobs := make(chan *scanner.FileInfo)
	work := make(chan *fileWork, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for file := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				c.processFile(gctx, file, branch, opts.Force, state, work)
			}
			return nil
		})
	}

	var consumerErr error
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumerErr = c.consume(gctx, work, state)
	}()

	feedErr := func() error {
		defer close(jobs)
		for _, f := range files {
			select {
			case jobs <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	}()

	workerErr := g.Wait()
	close(work)
	<-consumerDone

	if err := firstError(feedErr, workerErr, consumerErr); err != nil {
		return nil, err
	}

	purged, err := c.reconcile(ctx, opts.SubPath, files)
	if err != nil {
		return nil, err
	}
	state.summary.FilesPurged = purged

	state.summary.Duration = time.Since(started)
	summary := state.summary
	slog.Info("index run complete",
		"scanned", summary.FilesScanned,
		"indexed", summary.FilesIndexed,
		"skipped", summary.FilesSkipped,
		"failed", summary.FilesFailed,
		"purged", summary.FilesPurged,
		"chunks", summary.ChunksIndexed,
		"duration", summary.Duration)
	return &summary, nil
}

// discover runs the scanner and collects the file list, logging per-entry
// walk errors without failing the run.
func (c *Coordinator) discover(ctx context.Context, subPath string) ([]*scanner.FileInfo, error) {
	results, err := c.scanner.ScanSubtree(ctx, &scanner.Options{
		Root:             c.root,
		Include:          c.cfg.Paths.Include,
		Exclude:          c.cfg.Paths.Exclude,
		MaxFileSize:      c.cfg.Indexer.MaxFileSizeBytes,
		RespectGitignore: true,
	}, subPath)
	if err != nil {
		return nil, errors.DiscoveryError("file discovery failed", err)
	}

	var files []*scanner.FileInfo
	for r := range results {
		if r.Err != nil {
			slog.Warn("skipping unreadable entry", "error", r.Err)
			continue
		}
		files = append(files, r.File)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// processFile reads, hash-checks, and chunks one file, handing the result
// to the embedding consumer. Failures are counted, never returned.
func (c *Coordinator) processFile(ctx context.Context, file *scanner.FileInfo, branch string, force bool, state *runState, work chan<- *fileWork) {
	content, err := os.ReadFile(file.AbsPath)
	if err != nil {
		slog.Warn("reading file failed", "path", file.Path, "error", err)
		state.step(file.Path, func(s *Summary) { s.FilesFailed++ })
		return
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	if !force {
		stored, err := c.store.FileHash(ctx, file.Path)
		if err == nil && stored == hash {
			state.step(file.Path, func(s *Summary) { s.FilesSkipped++ })
			return
		}
	}

	drafts, err := c.extractor.Extract(ctx, &chunk.FileInput{
		Path:     file.Path,
		Content:  content,
		Language: file.Language,
	})
	if err != nil {
		slog.Warn("chunking failed", "path", file.Path, "error", err)
		state.step(file.Path, func(s *Summary) { s.FilesFailed++ })
		return
	}

	now := time.Now()
	chunks := make([]*store.Chunk, len(drafts))
	for i, d := range drafts {
		chunks[i] = &store.Chunk{
			ID:        chunkID(file.Path, hash, i),
			Path:      file.Path,
			Content:   d.Content,
			StartLine: d.StartLine,
			EndLine:   d.EndLine,
			ChunkType: string(d.Type),
			Name:      d.Name,
			Language:  d.Language,
			Branch:    branch,
			FileHash:  hash,
			IndexedAt: now,
			Metadata:  d.Metadata,
		}
	}

	fw := &fileWork{
		record: &store.FileRecord{
			Path:      file.Path,
			Hash:      hash,
			Size:      file.Size,
			ModTime:   file.ModTime,
			Language:  file.Language,
			IndexedAt: now,
		},
		chunks: chunks,
	}
	select {
	case work <- fw:
	case <-ctx.Done():
	}
}

// consume embeds pending files in cross-file batches and commits each file.
// A failed batch fails only the files whose chunks it held; their stored
// hashes stay untouched so the next run retries them.
func (c *Coordinator) consume(ctx context.Context, work <-chan *fileWork, state *runState) error {
	var pending []*fileWork
	pendingChunks := 0

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		pendingChunks = 0
		c.commitBatch(ctx, batch, state)
	}

	for fw := range work {
		pending = append(pending, fw)
		pendingChunks += len(fw.chunks)
		if pendingChunks >= c.batcher.BatchSize() {
			flush()
		}
		if err := ctx.Err(); err != nil {
			// Drain so workers never block on the channel.
			for range work {
			}
			return err
		}
	}
	flush()
	return nil
}

func (c *Coordinator) commitBatch(ctx context.Context, batch []*fileWork, state *runState) {
	var texts []string
	for _, fw := range batch {
		for _, ch := range fw.chunks {
			texts = append(texts, ch.Content)
		}
	}

	vectors, embedErr := c.batcher.EmbedAll(ctx, texts)
	if vectors == nil && embedErr != nil {
		slog.Warn("embedding aborted", "files", len(batch), "error", embedErr)
		for _, fw := range batch {
			state.step(fw.record.Path, func(s *Summary) { s.FilesFailed++ })
		}
		return
	}
	if embedErr != nil {
		slog.Warn("embedding batch failed, committing unaffected files", "error", embedErr)
	}

	offset := 0
	for _, fw := range batch {
		vecs := vectors[offset : offset+len(fw.chunks)]
		offset += len(fw.chunks)

		// A failed embedding batch left nil slots. Skip the file and
		// leave its stored hash untouched so the next run retries it.
		if hasNilVector(vecs) {
			state.step(fw.record.Path, func(s *Summary) { s.FilesFailed++ })
			continue
		}

		if err := c.store.ReplacePath(ctx, fw.record, fw.chunks, vecs); err != nil {
			slog.Warn("committing file failed", "path", fw.record.Path, "error", err)
			state.step(fw.record.Path, func(s *Summary) { s.FilesFailed++ })
			continue
		}
		n := len(fw.chunks)
		state.step(fw.record.Path, func(s *Summary) {
			s.FilesIndexed++
			s.ChunksIndexed += n
		})
		if c.onCommit != nil {
			c.onCommit()
		}
	}
}

// reconcile purges stored paths that no longer exist on disk. With a
// SubPath only paths under that subtree are considered.
func (c *Coordinator) reconcile(ctx context.Context, subPath string, files []*scanner.FileInfo) (int, error) {
	stored, err := c.store.ListFilePaths(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.Path] = true
	}

	var vanished []string
	for _, p := range stored {
		if subPath != "" && !underSubtree(p, subPath) {
			continue
		}
		if !seen[p] {
			vanished = append(vanished, p)
		}
	}
	if len(vanished) == 0 {
		return 0, nil
	}

	if err := c.store.PurgePaths(ctx, vanished); err != nil {
		return 0, fmt.Errorf("purging vanished paths: %w", err)
	}
	if c.onCommit != nil {
		c.onCommit()
	}
	slog.Info("purged vanished files", "count", len(vanished))
	return len(vanished), nil
}

// PurgePaths removes the given paths from the index. The watcher uses this
// for delete and rename events.
func (c *Coordinator) PurgePaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := c.store.PurgePaths(ctx, paths); err != nil {
		return err
	}
	if c.onCommit != nil {
		c.onCommit()
	}
	return nil
}

func hasNilVector(vecs [][]float32) bool {
	for _, v := range vecs {
		if v == nil {
			return true
		}
	}
	return false
}

func underSubtree(path, subtree string) bool {
	subtree = strings.TrimSuffix(subtree, "/")
	return path == subtree || strings.HasPrefix(path, subtree+"/")
}

func chunkID(path, fileHash string, i int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", path, fileHash, i)))
	return hex.EncodeToString(sum[:16])
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
