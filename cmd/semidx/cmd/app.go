package cmd

import (
	"context"
	"path/filepath"

	"github.com/semidx/semidx/internal/config"
	"github.com/semidx/semidx/internal/embed"
	"github.com/semidx/semidx/internal/index"
	"github.com/semidx/semidx/internal/refine"
	"github.com/semidx/semidx/internal/search"
	"github.com/semidx/semidx/internal/store"
)

// app bundles the wired components every command needs.
type app struct {
	root     string
	cfg      *config.Config
	store    *store.Store
	embedder embed.Embedder
	engine   *search.Engine
	coord    *index.Coordinator
	refiner  *refine.Refiner
}

// openApp loads configuration for the project and wires the store,
// embedder, engine, and coordinator together.
func openApp(ctx context.Context, rootDir string) (*app, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.New(ctx, embed.Options{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.OllamaHost,
		Dimensions: cfg.Embeddings.Dimensions,
	})
	if err != nil {
		return nil, err
	}

	st, err := store.Open(config.DataDir(root), embedder.Dimensions())
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	engine, err := search.NewEngine(st, embedder, search.Config{
		Mode:          cfg.Search.Mode,
		DefaultLimit:  cfg.Search.DefaultLimit,
		MaxLimit:      cfg.Search.MaxLimit,
		MinSimilarity: cfg.Search.MinSimilarity,
		KeywordWeight: cfg.Search.KeywordWeight,
		RRFConstant:   cfg.Search.RRFConstant,
		CacheSize:     cfg.Search.CacheSize,
	})
	if err != nil {
		_ = st.Close()
		_ = embedder.Close()
		return nil, err
	}

	coord := index.NewCoordinator(root, cfg, st, embedder)
	coord.OnCommit(engine.ClearCache)

	refiner := refine.NewRefiner(root, refine.Options{
		Deduplicate:        cfg.Refine.Deduplicate,
		OverlapThreshold:   cfg.Refine.OverlapThreshold,
		ExpandContext:      cfg.Refine.ExpandContext,
		ContextLinesBefore: cfg.Refine.ContextLinesBefore,
		ContextLinesAfter:  cfg.Refine.ContextLinesAfter,
		RecencyWeight:      cfg.Refine.RecencyWeight,
	})

	return &app{
		root:     root,
		cfg:      cfg,
		store:    st,
		embedder: embedder,
		engine:   engine,
		coord:    coord,
		refiner:  refiner,
	}, nil
}

// Close releases everything openApp acquired.
func (a *app) Close() {
	a.coord.Close()
	_ = a.store.Close()
	_ = a.embedder.Close()
}
