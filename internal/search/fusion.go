package search

import (
	"sort"

	"github.com/semidx/semidx/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains.
const DefaultRRFConstant = 60

// Weights distributes fusion contribution between the two legs.
type Weights struct {
	Keyword float64
	Vector  float64
}

// RRFFusion combines keyword and vector results using Reciprocal Rank
// Fusion.
//
// RRF_score(d) = Σ weight_i / (k + rank_i)
//
// A chunk absent from one leg simply gets no contribution from that
// leg. Ranks are 1-indexed.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion instance. k <= 0 uses the default.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse merges the two result lists. The output is sorted by RRF score
// descending, with deterministic tie-breaking: more recently indexed
// chunks first, then chunk ID.
func (f *RRFFusion) Fuse(keyword, vector []*store.ScoredChunk, weights Weights) []*Result {
	if len(keyword) == 0 && len(vector) == 0 {
		return []*Result{}
	}

	merged := make(map[string]*Result, len(keyword)+len(vector))

	for rank, sc := range keyword {
		r := f.getOrCreate(merged, sc.Chunk)
		r.KeywordScore = sc.Score
		r.KeywordRank = rank + 1
		r.MatchedTerms = sc.MatchedTerms
		r.Score += weights.Keyword / float64(f.K+rank+1)
	}

	for rank, sc := range vector {
		r := f.getOrCreate(merged, sc.Chunk)
		r.VectorScore = sc.Score
		r.VectorRank = rank + 1
		r.Score += weights.Vector / float64(f.K+rank+1)

		if r.KeywordRank > 0 {
			r.InBoth = true
		}
	}

	results := make([]*Result, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.less(results[i], results[j])
	})

	f.normalize(results)
	return results
}

func (f *RRFFusion) getOrCreate(m map[string]*Result, chunk *store.Chunk) *Result {
	if r, ok := m[chunk.ID]; ok {
		return r
	}
	r := &Result{Chunk: chunk}
	m[chunk.ID] = r
	return r
}

// less reports whether a ranks before b.
func (f *RRFFusion) less(a, b *Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Chunk.IndexedAt.Equal(b.Chunk.IndexedAt) {
		return a.Chunk.IndexedAt.After(b.Chunk.IndexedAt)
	}
	return a.Chunk.ID < b.Chunk.ID
}

// normalize scales scores so the top result is 1.0.
func (f *RRFFusion) normalize(results []*Result) {
	if len(results) == 0 {
		return
	}
	maxScore := results[0].Score
	if maxScore == 0 {
		return
	}
	for _, r := range results {
		r.Score /= maxScore
	}
}
