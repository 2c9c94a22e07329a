package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semidx/semidx/internal/errors"
)

const testDims = 8

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), testDims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// storeChunk builds a chunk plus a vector pointing along the given axis.
func storeChunk(id, path, content string, axis int) (*Chunk, []float32) {
	c := &Chunk{
		ID:        id,
		Path:      path,
		Content:   content,
		StartLine: 1,
		EndLine:   3,
		ChunkType: "function",
		Language:  "go",
		FileHash:  "hash-" + path,
		IndexedAt: time.Now(),
	}
	return c, axisVector(testDims, axis)
}

func replaceOne(t *testing.T, s *Store, path string, chunks []*Chunk, vectors [][]float32) {
	t.Helper()

	file := &FileRecord{
		Path:      path,
		Hash:      "hash-" + path,
		Size:      int64(len(path)) * 10,
		ModTime:   time.Now(),
		Language:  "go",
		IndexedAt: time.Now(),
	}
	require.NoError(t, s.ReplacePath(context.Background(), file, chunks, vectors))
}

func TestStore_ReplacePathIsAtomicAcrossBackends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, v1 := storeChunk("old1", "main.go", "func oldHandler() {}", 0)
	c2, v2 := storeChunk("old2", "main.go", "func oldHelper() {}", 1)
	replaceOne(t, s, "main.go", []*Chunk{c1, c2}, [][]float32{v1, v2})

	n1, nv1 := storeChunk("new1", "main.go", "func freshHandler() {}", 2)
	replaceOne(t, s, "main.go", []*Chunk{n1}, [][]float32{nv1})

	// Keyword leg sees only the new generation.
	hits, err := s.KeywordSearch(ctx, "handler", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new1", hits[0].Chunk.ID)

	// Vector leg sees only the new generation.
	vhits, err := s.VectorSearch(ctx, axisVector(testDims, 0), 10, nil, 0)
	require.NoError(t, err)
	for _, h := range vhits {
		assert.Equal(t, "new1", h.Chunk.ID)
	}

	// Metadata agrees.
	chunks, err := s.GetChunksByPath(ctx, "main.go")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new1", chunks[0].ID)
}

func TestStore_PurgePaths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, v1 := storeChunk("c1", "a.go", "func alpha() {}", 0)
	c2, v2 := storeChunk("c2", "b.go", "func beta() {}", 1)
	replaceOne(t, s, "a.go", []*Chunk{c1}, [][]float32{v1})
	replaceOne(t, s, "b.go", []*Chunk{c2}, [][]float32{v2})

	require.NoError(t, s.PurgePaths(ctx, []string{"a.go"}))

	paths, err := s.ListFilePaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.go"}, paths)

	hits, err := s.KeywordSearch(ctx, "alpha", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_FilterAppliedBeforeTruncation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Five Go chunks and five Python chunks, all matching "worker".
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("go/w%d.go", i)
		c, v := storeChunk(fmt.Sprintf("go%d", i), path, "func workerLoop() {}", i%testDims)
		replaceOne(t, s, path, []*Chunk{c}, [][]float32{v})
	}
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("py/w%d.py", i)
		c, v := storeChunk(fmt.Sprintf("py%d", i), path, "def worker_loop():", i%testDims)
		c.Language = "python"
		replaceOne(t, s, path, []*Chunk{c}, [][]float32{v})
	}

	// Limit 4 with a python filter must return 4 python chunks, not
	// whatever survives filtering the top 4 overall.
	hits, err := s.KeywordSearch(ctx, "worker loop", 4, &Filter{Languages: []string{"python"}})
	require.NoError(t, err)
	require.Len(t, hits, 4)
	for _, h := range hits {
		assert.Equal(t, "python", h.Chunk.Language)
	}
}

func TestStore_VectorSearchMinSimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, v1 := storeChunk("near", "a.go", "func near() {}", 0)
	c2, v2 := storeChunk("far", "b.go", "func far() {}", 1)
	replaceOne(t, s, "a.go", []*Chunk{c1}, [][]float32{v1})
	replaceOne(t, s, "b.go", []*Chunk{c2}, [][]float32{v2})

	// Orthogonal vectors score 0.5, identical score 1.0.
	hits, err := s.VectorSearch(ctx, axisVector(testDims, 0), 10, nil, 0.9)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "near", hits[0].Chunk.ID)
}

func TestStore_VectorSearchEscalatesPastLazilyDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Nine chunks sit closest to the query but are deleted lazily, so
	// they still occupy raw fetch slots. A fetch of 3 hits only dead
	// nodes; the search must escalate rather than report exhaustion.
	var dead []string
	for i := 0; i < 9; i++ {
		path := fmt.Sprintf("dead%d.go", i)
		c, _ := storeChunk(fmt.Sprintf("d%d", i), path, "func removedHandler() {}", 0)
		replaceOne(t, s, path, []*Chunk{c}, [][]float32{axisVector(testDims, 0)})
		dead = append(dead, path)
	}
	for i := 0; i < 3; i++ {
		path := fmt.Sprintf("live%d.go", i)
		c, _ := storeChunk(fmt.Sprintf("l%d", i), path, "func currentHandler() {}", 1)
		replaceOne(t, s, path, []*Chunk{c}, [][]float32{axisVector(testDims, 1)})
	}
	require.NoError(t, s.PurgePaths(ctx, dead))

	results, err := s.VectorSearch(ctx, axisVector(testDims, 0), 3, nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 3, "live chunks must fill the limit despite dead graph nodes")
}

func TestStore_FilterByExtensionAndDirectory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, v1 := storeChunk("c1", "internal/api/server.go", "func startServer() {}", 0)
	c2, v2 := storeChunk("c2", "docs/server.md", "how to start the server", 1)
	replaceOne(t, s, "internal/api/server.go", []*Chunk{c1}, [][]float32{v1})
	replaceOne(t, s, "docs/server.md", []*Chunk{c2}, [][]float32{v2})

	hits, err := s.KeywordSearch(ctx, "server", 10, &Filter{Extensions: []string{".go"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].Chunk.ID)

	hits, err = s.KeywordSearch(ctx, "server", 10, &Filter{Directories: []string{"docs"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].Chunk.ID)
}

func TestStore_CheckEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CheckEmbedding(ctx, "hash-256", testDims))
	require.NoError(t, s.CheckEmbedding(ctx, "hash-256", testDims))

	err := s.CheckEmbedding(ctx, "nomic-embed-text", testDims)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "built with model")
}

func TestStore_ReopenRejectsDimensionChange(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, testDims)
	require.NoError(t, err)

	c, v := storeChunk("c1", "a.go", "func alpha() {}", 0)
	file := &FileRecord{Path: "a.go", Hash: "h", ModTime: time.Now(), IndexedAt: time.Now()}
	require.NoError(t, s.ReplacePath(context.Background(), file, []*Chunk{c}, [][]float32{v}))
	require.NoError(t, s.Close())

	_, err = Open(dir, testDims*2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensional")

	// No code path rebuilds the store in place, so the suggestion must
	// direct the user to delete the data directory.
	var engineErr *errors.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Contains(t, engineErr.Suggestion, "delete the index data directory")
	assert.NotContains(t, engineErr.Suggestion, "--force")
}

func TestStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, testDims)
	require.NoError(t, err)

	c, v := storeChunk("c1", "a.go", "func persistent() {}", 0)
	file := &FileRecord{Path: "a.go", Hash: "h", ModTime: time.Now(), IndexedAt: time.Now()}
	require.NoError(t, s.ReplacePath(ctx, file, []*Chunk{c}, [][]float32{v}))
	require.NoError(t, s.Close())

	s, err = Open(dir, testDims)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	hits, err := s.KeywordSearch(ctx, "persistent", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	vhits, err := s.VectorSearch(ctx, axisVector(testDims, 0), 1, nil, 0)
	require.NoError(t, err)
	require.Len(t, vhits, 1)
	assert.Equal(t, "c1", vhits[0].Chunk.ID)
}

func TestFilter_Match(t *testing.T) {
	chunk := &Chunk{
		Path:      "internal/api/server.go",
		ChunkType: "function",
		Language:  "go",
		Branch:    "main",
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &Filter{}, true},
		{"extension match", &Filter{Extensions: []string{".go"}}, true},
		{"extension case folded", &Filter{Extensions: []string{".GO"}}, true},
		{"extension miss", &Filter{Extensions: []string{".py"}}, false},
		{"directory match", &Filter{Directories: []string{"internal/api"}}, true},
		{"directory prefix is segment aware", &Filter{Directories: []string{"internal/ap"}}, false},
		{"chunk type match", &Filter{ChunkTypes: []string{"function"}}, true},
		{"language miss", &Filter{Languages: []string{"rust"}}, false},
		{"branch match", &Filter{Branch: "main"}, true},
		{"branch miss", &Filter{Branch: "develop"}, false},
		{"path prefix", &Filter{PathPrefix: "internal/"}, true},
		{"combined all pass", &Filter{Extensions: []string{".go"}, Branch: "main"}, true},
		{"combined one fails", &Filter{Extensions: []string{".go"}, Branch: "develop"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(chunk))
		})
	}
}
