package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/semidx/semidx/internal/errors"
)

const (
	metadataFileName = "metadata.db"
	keywordDirName   = "keyword.bleve"
	vectorFileName   = "vectors.hnsw"
)

// Store is the facade over the three persistence backends. All writes
// for a given file path are serialized through a per-path lock so a
// search never observes a file half-replaced.
type Store struct {
	dir     string
	meta    *MetadataStore
	keyword *KeywordIndex
	vector  *VectorIndex

	locks keyedMutex
}

// ScoredChunk pairs a chunk with its search score.
type ScoredChunk struct {
	Chunk        *Chunk
	Score        float64
	MatchedTerms []string
}

// Open opens or creates the index at dir using the given embedding
// dimension. An existing index built with a different dimension is
// rejected with a fatal error.
func Open(dir string, dimensions int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeStoreWriteFailed, "failed to create data directory", err)
	}

	meta, err := NewMetadataStore(filepath.Join(dir, metadataFileName))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
	}

	keyword, err := NewKeywordIndex(filepath.Join(dir, keywordDirName))
	if err != nil {
		_ = meta.Close()
		return nil, errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
	}

	vectorPath := filepath.Join(dir, vectorFileName)
	savedDims, err := ReadVectorIndexDimensions(vectorPath)
	if err != nil {
		_ = meta.Close()
		_ = keyword.Close()
		return nil, errors.New(errors.ErrCodeCorruptIndex, "vector index metadata is unreadable", err).
			WithSuggestion("delete the data directory and reindex")
	}
	if savedDims != 0 && savedDims != dimensions {
		_ = meta.Close()
		_ = keyword.Close()
		return nil, errors.New(errors.ErrCodeDimensionChanged,
			fmt.Sprintf("index was built with %d-dimensional embeddings, current model produces %d", savedDims, dimensions), nil).
			WithSuggestion("delete the index data directory and run 'semidx index' to rebuild with the new model")
	}

	vector, err := NewVectorIndex(DefaultVectorIndexConfig(dimensions))
	if err != nil {
		_ = meta.Close()
		_ = keyword.Close()
		return nil, errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
	}
	if savedDims != 0 {
		if err := vector.Load(vectorPath); err != nil {
			_ = meta.Close()
			_ = keyword.Close()
			return nil, errors.New(errors.ErrCodeCorruptIndex, "failed to load vector index", err).
				WithSuggestion("delete the data directory and reindex")
		}
	}

	return &Store{
		dir:     dir,
		meta:    meta,
		keyword: keyword,
		vector:  vector,
	}, nil
}

// CheckEmbedding verifies the index was built with the given model,
// recording it on first use. A model change is fatal because stored
// vectors would be incomparable with new query vectors.
func (s *Store) CheckEmbedding(ctx context.Context, model string, dimensions int) error {
	saved, err := s.meta.GetMeta(ctx, MetaKeyEmbedModel)
	if err == ErrNotFound {
		if err := s.meta.SetMeta(ctx, MetaKeyEmbedModel, model); err != nil {
			return errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
		}
		if err := s.meta.SetMeta(ctx, MetaKeyEmbedDimensions, strconv.Itoa(dimensions)); err != nil {
			return errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
	}

	if saved != model {
		return errors.New(errors.ErrCodeDimensionChanged,
			fmt.Sprintf("index was built with model %q, current model is %q", saved, model), nil).
			WithSuggestion("delete the index data directory and run 'semidx index' to rebuild with the new model")
	}
	return nil
}

// FileHash returns the recorded content hash for a path, or
// ErrNotFound when the path was never indexed.
func (s *Store) FileHash(ctx context.Context, path string) (string, error) {
	return s.meta.GetFileHash(ctx, path)
}

// ListFilePaths returns every indexed file path.
func (s *Store) ListFilePaths(ctx context.Context) ([]string, error) {
	return s.meta.ListFilePaths(ctx)
}

// ReplacePath atomically replaces all indexed data for a file. Old
// chunks are deleted and new ones inserted under the path lock, so
// concurrent replaces of the same path serialize and no search mixes
// chunks from two generations of the file.
func (s *Store) ReplacePath(ctx context.Context, file *FileRecord, chunks []*Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New(errors.ErrCodeStoreWriteFailed,
			fmt.Sprintf("chunk and vector counts differ: %d vs %d", len(chunks), len(vectors)), nil)
	}

	unlock := s.locks.lock(file.Path)
	defer unlock()

	oldIDs, err := s.meta.ChunkIDsByPath(ctx, file.Path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
	}

	if err := s.meta.ReplaceFile(ctx, file, chunks); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
	}

	if err := s.keyword.Delete(ctx, oldIDs); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
	}
	if err := s.vector.Delete(ctx, oldIDs); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
	}

	if err := s.keyword.Index(ctx, chunks); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := s.vector.Add(ctx, ids, vectors); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
	}

	return nil
}

// PurgePaths removes all indexed data for files that no longer exist.
func (s *Store) PurgePaths(ctx context.Context, paths []string) error {
	for _, path := range paths {
		unlock := s.locks.lock(path)

		ids, err := s.meta.ChunkIDsByPath(ctx, path)
		if err == nil {
			err = s.meta.DeletePaths(ctx, []string{path})
		}
		if err == nil {
			err = s.keyword.Delete(ctx, ids)
		}
		if err == nil {
			err = s.vector.Delete(ctx, ids)
		}

		unlock()
		if err != nil {
			return errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
		}
	}
	return nil
}

// searchFetchCap bounds over-fetch escalation for filtered searches.
const searchFetchCap = 10000

// KeywordSearch runs a BM25 search and returns up to limit chunks that
// pass the filter. Filtering happens before truncation: when a filter
// is set the search over-fetches and escalates until the limit is
// filled or the index is exhausted.
func (s *Store) KeywordSearch(ctx context.Context, query string, limit int, filter *Filter) ([]*ScoredChunk, error) {
	fetch := limit
	if !filter.IsZero() {
		fetch = limit * 3
	}

	for {
		hits, err := s.keyword.Search(ctx, query, fetch)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
		}

		ids := make([]string, len(hits))
		terms := make(map[string][]string, len(hits))
		scores := make(map[string]float64, len(hits))
		for i, h := range hits {
			ids[i] = h.ID
			scores[h.ID] = h.Score
			terms[h.ID] = h.MatchedTerms
		}

		chunks, err := s.meta.GetChunks(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
		}

		results := make([]*ScoredChunk, 0, limit)
		for _, c := range chunks {
			if !filter.Match(c) {
				continue
			}
			results = append(results, &ScoredChunk{
				Chunk:        c,
				Score:        scores[c.ID],
				MatchedTerms: terms[c.ID],
			})
			if len(results) == limit {
				break
			}
		}

		exhausted := len(hits) < fetch || fetch >= searchFetchCap
		if len(results) == limit || exhausted {
			return results, nil
		}
		fetch *= 2
	}
}

// VectorSearch runs a nearest-neighbor search and returns up to limit
// chunks that pass the filter and meet minSimilarity. Both checks run
// before truncation.
func (s *Store) VectorSearch(ctx context.Context, vector []float32, limit int, filter *Filter, minSimilarity float64) ([]*ScoredChunk, error) {
	fetch := limit
	if !filter.IsZero() || minSimilarity > 0 {
		fetch = limit * 3
	}

	for {
		hits, err := s.vector.Search(ctx, vector, fetch)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
		}

		ids := make([]string, 0, len(hits))
		scores := make(map[string]float64, len(hits))
		for _, h := range hits {
			if float64(h.Score) < minSimilarity {
				continue
			}
			ids = append(ids, h.ID)
			scores[h.ID] = float64(h.Score)
		}

		chunks, err := s.meta.GetChunks(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
		}

		results := make([]*ScoredChunk, 0, limit)
		for _, c := range chunks {
			if !filter.Match(c) {
				continue
			}
			results = append(results, &ScoredChunk{Chunk: c, Score: scores[c.ID]})
			if len(results) == limit {
				break
			}
		}

		// hits counts live results only, but lazily deleted nodes also
		// consume raw fetch slots, so exhaustion is measured against
		// the full graph size rather than the returned hit count.
		exhausted := fetch >= s.vector.GraphLen() || fetch >= searchFetchCap
		if len(results) == limit || exhausted {
			return results, nil
		}
		fetch *= 2
	}
}

// GetChunks returns chunks by ID, preserving the requested order.
func (s *Store) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	return s.meta.GetChunks(ctx, ids)
}

// GetChunksByPath returns all chunks of a file ordered by start line.
func (s *Store) GetChunksByPath(ctx context.Context, path string) ([]*Chunk, error) {
	return s.meta.GetChunksByPath(ctx, path)
}

// Stats summarizes the index contents.
func (s *Store) Stats(ctx context.Context) (*IndexStats, error) {
	return s.meta.Stats(ctx)
}

// Flush persists the vector index to disk. SQLite and Bleve persist
// as they go.
func (s *Store) Flush() error {
	if err := s.vector.Save(filepath.Join(s.dir, vectorFileName)); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, err)
	}
	return nil
}

// Close flushes and closes all backends.
func (s *Store) Close() error {
	var firstErr error
	if err := s.Flush(); err != nil {
		firstErr = err
	}
	if err := s.vector.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.keyword.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.meta.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// keyedMutex provides one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
