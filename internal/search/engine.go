package search

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/semidx/semidx/internal/embed"
	"github.com/semidx/semidx/internal/errors"
	"github.com/semidx/semidx/internal/store"
)

// overFetchFactor is how many candidates each leg retrieves beyond the
// requested limit so fusion has enough overlap to work with.
const overFetchFactor = 3

// Engine runs searches against the store.
type Engine struct {
	store    *store.Store
	embedder embed.Embedder
	config   Config
	fusion   *RRFFusion
	cache    *queryCache
}

// NewEngine creates a search engine. Both dependencies are required.
func NewEngine(s *store.Store, embedder embed.Embedder, cfg Config) (*Engine, error) {
	if s == nil {
		return nil, errors.InternalError("search engine requires a store", nil)
	}
	if embedder == nil {
		return nil, errors.InternalError("search engine requires an embedder", nil)
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultConfig().DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultConfig().MaxLimit
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeHybrid
	}

	return &Engine{
		store:    s,
		embedder: embedder,
		config:   cfg,
		fusion:   NewRRFFusion(cfg.RRFConstant),
		cache:    newQueryCache(cfg.CacheSize),
	}, nil
}

// ClearCache drops all cached query results. The index coordinator
// calls this after every commit.
func (e *Engine) ClearCache() {
	e.cache.clear()
}

// Search executes a query. Hybrid mode runs both legs in parallel and
// degrades to a single leg when the other fails.
func (e *Engine) Search(ctx context.Context, q Query) ([]*Result, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "query text is empty", nil).
			WithSuggestion("provide a non-empty search query")
	}

	mode := q.Mode
	if mode == "" {
		mode = e.config.Mode
	}
	switch mode {
	case ModeVector, ModeKeyword, ModeHybrid:
	default:
		return nil, errors.UnsupportedMode(mode)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}
	if limit > e.config.MaxLimit {
		limit = e.config.MaxLimit
	}

	minSimilarity := e.config.MinSimilarity
	if q.MinSimilarity >= 0 {
		minSimilarity = q.MinSimilarity
	}

	key := cacheKey(q, mode, limit, minSimilarity)
	if cached, ok := e.cache.get(key); ok {
		return cached, nil
	}

	var results []*Result
	var err error

	switch mode {
	case ModeKeyword:
		results, err = e.keywordSearch(ctx, q.Text, limit, q.Filter)
	case ModeVector:
		results, err = e.vectorSearch(ctx, q.Text, limit, q.Filter, minSimilarity)
	case ModeHybrid:
		results, err = e.hybridSearch(ctx, q.Text, limit, q.Filter, minSimilarity)
	}
	if err != nil {
		return nil, err
	}

	e.cache.put(key, results)
	return results, nil
}

func (e *Engine) keywordSearch(ctx context.Context, text string, limit int, filter *store.Filter) ([]*Result, error) {
	hits, err := e.store.KeywordSearch(ctx, text, limit, filter)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(hits))
	for i, h := range hits {
		results[i] = &Result{
			Chunk:        h.Chunk,
			Score:        h.Score,
			KeywordScore: h.Score,
			KeywordRank:  i + 1,
			MatchedTerms: h.MatchedTerms,
		}
	}
	return results, nil
}

func (e *Engine) vectorSearch(ctx context.Context, text string, limit int, filter *store.Filter, minSimilarity float64) ([]*Result, error) {
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.EmbedError("failed to embed query", err)
	}

	hits, err := e.store.VectorSearch(ctx, vec, limit, filter, minSimilarity)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(hits))
	for i, h := range hits {
		results[i] = &Result{
			Chunk:       h.Chunk,
			Score:       h.Score,
			VectorScore: h.Score,
			VectorRank:  i + 1,
		}
	}
	return results, nil
}

// hybridSearch runs both legs in parallel, then fuses. A single
// failing leg is logged and dropped rather than failing the query;
// only both legs failing is an error.
func (e *Engine) hybridSearch(ctx context.Context, text string, limit int, filter *store.Filter, minSimilarity float64) ([]*Result, error) {
	fetch := limit * overFetchFactor

	var keywordHits, vectorHits []*store.ScoredChunk
	var keywordErr, vectorErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keywordHits, keywordErr = e.store.KeywordSearch(gctx, text, fetch, filter)
		return nil
	})
	g.Go(func() error {
		vec, err := e.embedder.Embed(gctx, text)
		if err != nil {
			vectorErr = errors.EmbedError("failed to embed query", err)
			return nil
		}
		vectorHits, vectorErr = e.store.VectorSearch(gctx, vec, fetch, filter, minSimilarity)
		return nil
	})
	_ = g.Wait()

	if keywordErr != nil && vectorErr != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "both search legs failed", keywordErr)
	}
	if keywordErr != nil {
		slog.Warn("keyword leg failed, degrading to vector-only",
			slog.String("error", keywordErr.Error()))
		keywordHits = nil
	}
	if vectorErr != nil {
		slog.Warn("vector leg failed, degrading to keyword-only",
			slog.String("error", vectorErr.Error()))
		vectorHits = nil
	}

	weights := Weights{
		Keyword: e.config.KeywordWeight,
		Vector:  1.0 - e.config.KeywordWeight,
	}

	fused := e.fusion.Fuse(keywordHits, vectorHits, weights)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}
