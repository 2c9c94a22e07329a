// Package config loads and validates semidx configuration.
//
// Configuration is applied in order of increasing precedence: hardcoded
// defaults, the project file (.semidx.yaml in the project root), then
// SEMIDX_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete semidx configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Indexer    IndexerConfig    `yaml:"indexer" json:"indexer"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Refine     RefineConfig     `yaml:"refine" json:"refine"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// PathsConfig configures which paths to include and exclude from discovery.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexerConfig configures file discovery and chunk extraction.
type IndexerConfig struct {
	// MaxFileSizeBytes is the largest file the scanner will hand to the
	// extractor. Default: 1 MiB.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes" json:"max_file_size_bytes"`

	// MaxChunkWords is the maximum paragraph chunk size in words.
	MaxChunkWords int `yaml:"max_chunk_words" json:"max_chunk_words"`

	// ChunkOverlapWords is the word overlap between consecutive split chunks.
	ChunkOverlapWords int `yaml:"chunk_overlap_words" json:"chunk_overlap_words"`

	// SmallFileBytes is the threshold below which a source file becomes a
	// single whole-file chunk instead of being fragmented.
	SmallFileBytes int `yaml:"small_file_bytes" json:"small_file_bytes"`

	// Workers bounds the chunk extraction worker pool. 0 means NumCPU.
	Workers int `yaml:"workers" json:"workers"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "ollama" or "hash".
	Provider string `yaml:"provider" json:"provider"`

	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// Mode is the default search mode: vector, keyword, or hybrid.
	Mode string `yaml:"mode" json:"mode"`

	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	MaxLimit     int `yaml:"max_limit" json:"max_limit"`

	// MinSimilarity filters the vector leg's raw cosine similarity before
	// fusion. 0 disables the threshold.
	MinSimilarity float64 `yaml:"min_similarity" json:"min_similarity"`

	// KeywordWeight is w_k in the RRF fusion; the vector weight is 1 - w_k.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	// RRFConstant is the RRF smoothing parameter k. Default: 60.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// CacheSize is the query cache capacity in entries. 0 disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// RefineConfig configures post-retrieval result refinement.
type RefineConfig struct {
	Deduplicate bool `yaml:"deduplicate" json:"deduplicate"`

	// OverlapThreshold is the line-overlap fraction at or above which two
	// chunks from the same file are considered duplicates.
	OverlapThreshold float64 `yaml:"overlap_threshold" json:"overlap_threshold"`

	ExpandContext      bool `yaml:"expand_context" json:"expand_context"`
	ContextLinesBefore int  `yaml:"context_lines_before" json:"context_lines_before"`
	ContextLinesAfter  int  `yaml:"context_lines_after" json:"context_lines_after"`

	// RecencyWeight scales the recency boost added to fused scores.
	RecencyWeight float64 `yaml:"recency_weight" json:"recency_weight"`
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Exclude: []string{
				".git", "node_modules", "vendor", "dist", "build",
				"__pycache__", ".venv", "target", ".semidx",
			},
		},
		Indexer: IndexerConfig{
			MaxFileSizeBytes:  1024 * 1024,
			MaxChunkWords:     500,
			ChunkOverlapWords: 50,
			SmallFileBytes:    2048,
			Workers:           0,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
		},
		Search: SearchConfig{
			Mode:          "hybrid",
			DefaultLimit:  10,
			MaxLimit:      100,
			MinSimilarity: 0.3,
			KeywordWeight: 0.5,
			RRFConstant:   60,
			CacheSize:     100,
		},
		Refine: RefineConfig{
			Deduplicate:        true,
			OverlapThreshold:   0.5,
			ExpandContext:      false,
			ContextLinesBefore: 3,
			ContextLinesAfter:  3,
			RecencyWeight:      0.1,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		LogLevel: "info",
	}
}

// Load loads configuration for the given project directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load .semidx.yaml or .semidx.yml from dir.
// A missing file is fine; defaults apply.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".semidx.yaml", ".semidx.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		// Merge with defaults rather than replace.
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Indexer.MaxFileSizeBytes != 0 {
		c.Indexer.MaxFileSizeBytes = other.Indexer.MaxFileSizeBytes
	}
	if other.Indexer.MaxChunkWords != 0 {
		c.Indexer.MaxChunkWords = other.Indexer.MaxChunkWords
	}
	if other.Indexer.ChunkOverlapWords != 0 {
		c.Indexer.ChunkOverlapWords = other.Indexer.ChunkOverlapWords
	}
	if other.Indexer.SmallFileBytes != 0 {
		c.Indexer.SmallFileBytes = other.Indexer.SmallFileBytes
	}
	if other.Indexer.Workers != 0 {
		c.Indexer.Workers = other.Indexer.Workers
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}

	if other.Search.Mode != "" {
		c.Search.Mode = other.Search.Mode
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.MinSimilarity != 0 {
		c.Search.MinSimilarity = other.Search.MinSimilarity
	}
	if other.Search.KeywordWeight != 0 {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.CacheSize != 0 {
		c.Search.CacheSize = other.Search.CacheSize
	}

	if other.Refine.OverlapThreshold != 0 {
		c.Refine.OverlapThreshold = other.Refine.OverlapThreshold
	}
	if other.Refine.ContextLinesBefore != 0 {
		c.Refine.ContextLinesBefore = other.Refine.ContextLinesBefore
	}
	if other.Refine.ContextLinesAfter != 0 {
		c.Refine.ContextLinesAfter = other.Refine.ContextLinesAfter
	}
	if other.Refine.RecencyWeight != 0 {
		c.Refine.RecencyWeight = other.Refine.RecencyWeight
	}
	c.Refine.Deduplicate = other.Refine.Deduplicate || c.Refine.Deduplicate
	c.Refine.ExpandContext = other.Refine.ExpandContext || c.Refine.ExpandContext

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// applyEnvOverrides applies SEMIDX_* environment variables. Env vars have
// the highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEMIDX_KEYWORD_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.KeywordWeight = f
		}
	}
	if v := os.Getenv("SEMIDX_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("SEMIDX_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("SEMIDX_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("SEMIDX_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("search.keyword_weight must be in [0, 1], got %v", c.Search.KeywordWeight)
	}
	if c.Search.MinSimilarity < 0 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("search.min_similarity must be in [0, 1], got %v", c.Search.MinSimilarity)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit must be in [1, %d], got %d", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	switch c.Search.Mode {
	case "vector", "keyword", "hybrid":
	default:
		return fmt.Errorf("search.mode must be vector, keyword, or hybrid, got %q", c.Search.Mode)
	}
	if c.Refine.OverlapThreshold < 0 || c.Refine.OverlapThreshold > 1 {
		return fmt.Errorf("refine.overlap_threshold must be in [0, 1], got %v", c.Refine.OverlapThreshold)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Indexer.ChunkOverlapWords >= c.Indexer.MaxChunkWords {
		return fmt.Errorf("indexer.chunk_overlap_words (%d) must be below max_chunk_words (%d)",
			c.Indexer.ChunkOverlapWords, c.Indexer.MaxChunkWords)
	}
	if _, err := c.DebounceDuration(); err != nil {
		return fmt.Errorf("watch.debounce: %w", err)
	}
	return nil
}

// DebounceDuration parses the watch debounce interval.
func (c *Config) DebounceDuration() (time.Duration, error) {
	if c.Watch.Debounce == "" {
		return 500 * time.Millisecond, nil
	}
	return time.ParseDuration(c.Watch.Debounce)
}

// WriteYAML writes the configuration to the given path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DataDir returns the on-disk index directory for a project root.
func DataDir(root string) string {
	return filepath.Join(root, ".semidx")
}
