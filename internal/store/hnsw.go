package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// VectorIndexConfig configures the HNSW graph.
type VectorIndexConfig struct {
	// Dimensions is the embedding dimension. Required.
	Dimensions int

	// M is the maximum connections per layer.
	M int

	// EfSearch is the query-time search width.
	EfSearch int
}

// DefaultVectorIndexConfig returns defaults for the given dimension.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}

// ErrDimensionMismatch indicates a vector with the wrong dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// VectorIndex provides approximate nearest neighbor search over chunk
// embeddings using a pure Go HNSW graph.
type VectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig

	// String chunk IDs map to internal uint64 keys. Deletion is lazy:
	// the node stays in the graph but its mapping is removed, so it
	// can never surface in results. This sidesteps graph corruption
	// in coder/hnsw when the last node is deleted.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// vectorIndexMeta is the gob-encoded sidecar holding ID mappings.
type vectorIndexMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorIndexConfig
}

// NewVectorIndex creates an empty vector index.
func NewVectorIndex(cfg VectorIndexConfig) (*VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index requires a positive dimension, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

// Add inserts vectors with their IDs, replacing existing entries.
func (v *VectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, vec := range vectors {
		if len(vec) != v.config.Dimensions {
			return ErrDimensionMismatch{Expected: v.config.Dimensions, Got: len(vec)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := v.idMap[id]; exists {
			delete(v.keyMap, existingKey)
			delete(v.idMap, id)
		}

		key := v.nextKey
		v.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		v.graph.Add(hnsw.MakeNode(key, vec))
		v.idMap[id] = key
		v.keyMap[key] = id
	}

	return nil
}

// Search finds the k nearest neighbors to the query vector. Scores are
// cosine similarity normalized to [0, 1].
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != v.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: v.config.Dimensions, Got: len(query)}
	}
	if v.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := v.graph.Search(normalized, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := v.keyMap[node.Key]
		if !exists {
			// Lazily deleted node.
			continue
		}

		distance := v.graph.Distance(normalized, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    1.0 - distance/2.0,
		})
	}
	return results, nil
}

// Delete removes vectors by ID.
func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, id := range ids {
		if key, exists := v.idMap[id]; exists {
			delete(v.keyMap, key)
			delete(v.idMap, id)
		}
	}
	return nil
}

// Contains checks whether an ID is indexed.
func (v *VectorIndex) Contains(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	_, exists := v.idMap[id]
	return exists && !v.closed
}

// GraphLen returns the number of graph nodes including lazily deleted
// ones. Dead nodes still occupy slots in a raw k-NN fetch, so search
// escalation must measure exhaustion against this, not the live count.
func (v *VectorIndex) GraphLen() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed || v.graph == nil {
		return 0
	}
	return v.graph.Len()
}

// Count returns the number of live vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return 0
	}
	return len(v.idMap)
}

// Dimensions returns the configured vector dimension.
func (v *VectorIndex) Dimensions() int {
	return v.config.Dimensions
}

// Save persists the graph and ID mappings with temp-file-then-rename
// writes so a crash cannot leave a partially written index.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	if err := v.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	return v.saveMeta(path + ".meta")
}

func (v *VectorIndex) saveMeta(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create meta file: %w", err)
	}

	meta := vectorIndexMeta{
		IDMap:   v.idMap,
		NextKey: v.nextKey,
		Config:  v.config,
	}

	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to encode meta: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close meta file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores a saved graph and its ID mappings.
func (v *VectorIndex) Load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := v.loadMeta(path + ".meta"); err != nil {
		return fmt.Errorf("failed to load meta: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// graph.Import requires an io.ByteReader.
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}
	return nil
}

func (v *VectorIndex) loadMeta(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	var meta vectorIndexMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("failed to decode meta: %w", err)
	}

	v.idMap = meta.IDMap
	v.keyMap = make(map[uint64]string, len(meta.IDMap))
	v.nextKey = meta.NextKey
	v.config = meta.Config

	for id, key := range v.idMap {
		v.keyMap[key] = id
	}
	return nil
}

// Close releases the graph.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	v.graph = nil
	return nil
}

// ReadVectorIndexDimensions reads the dimension recorded in a saved
// index's meta sidecar. Returns 0 when no index exists yet.
func ReadVectorIndexDimensions(vectorPath string) (int, error) {
	file, err := os.Open(vectorPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open vector meta: %w", err)
	}
	defer func() { _ = file.Close() }()

	var meta vectorIndexMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, fmt.Errorf("failed to decode vector meta: %w", err)
	}
	return meta.Config.Dimensions, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
