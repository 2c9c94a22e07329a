// Package search provides hybrid retrieval combining BM25 keyword
// search and vector similarity search, fused with Reciprocal Rank
// Fusion (RRF).
package search

import (
	"github.com/semidx/semidx/internal/store"
)

// Search modes.
const (
	ModeVector  = "vector"
	ModeKeyword = "keyword"
	ModeHybrid  = "hybrid"
)

// Query describes a single search request.
type Query struct {
	// Text is the query string. Must be non-empty after trimming.
	Text string

	// Mode is vector, keyword, or hybrid. Empty uses the engine's
	// configured default.
	Mode string

	// Limit caps the number of results. Zero uses the engine default;
	// values above the configured maximum are clamped.
	Limit int

	// Filter narrows results by chunk metadata.
	Filter *store.Filter

	// MinSimilarity overrides the engine's similarity floor for the
	// vector leg when non-negative. Use -1 to keep the default.
	MinSimilarity float64
}

// Result is a single search hit.
type Result struct {
	Chunk *store.Chunk

	// Score is the final ranking score. For hybrid mode this is the
	// normalized RRF score; for single-leg modes it is the leg score.
	Score float64

	// Leg diagnostics, populated in hybrid mode.
	KeywordScore float64
	KeywordRank  int // 1-indexed, 0 if absent from the keyword leg
	VectorScore  float64
	VectorRank   int // 1-indexed, 0 if absent from the vector leg
	InBoth       bool

	MatchedTerms []string
}

// Config configures the search engine.
type Config struct {
	// Mode is the default search mode.
	Mode string

	// DefaultLimit applies when a query has no limit.
	DefaultLimit int

	// MaxLimit clamps requested limits.
	MaxLimit int

	// MinSimilarity is the default floor for the vector leg.
	MinSimilarity float64

	// KeywordWeight is the keyword leg's fusion weight in [0, 1]. The
	// vector leg weighs 1 - KeywordWeight.
	KeywordWeight float64

	// RRFConstant is the RRF smoothing parameter k.
	RRFConstant int

	// CacheSize is the query cache capacity. Zero disables caching.
	CacheSize int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Mode:          ModeHybrid,
		DefaultLimit:  10,
		MaxLimit:      100,
		MinSimilarity: 0.3,
		KeywordWeight: 0.5,
		RRFConstant:   DefaultRRFConstant,
		CacheSize:     100,
	}
}
