// Package mcp exposes semidx over the Model Context Protocol so AI
// clients can search and reindex a project through stdio.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/semidx/semidx/internal/index"
	"github.com/semidx/semidx/internal/refine"
	"github.com/semidx/semidx/internal/search"
	"github.com/semidx/semidx/internal/store"
	"github.com/semidx/semidx/pkg/version"
)

// Server bridges MCP clients to the search engine, the store, and the
// index coordinator.
type Server struct {
	mcp     *mcp.Server
	root    string
	engine  *search.Engine
	store   *store.Store
	coord   *index.Coordinator
	refiner *refine.Refiner
	logger  *slog.Logger
}

// NewServer creates an MCP server for the project at root and registers
// its tools.
func NewServer(root string, engine *search.Engine, st *store.Store, coord *index.Coordinator, refiner *refine.Refiner) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if coord == nil {
		return nil, errors.New("index coordinator is required")
	}

	s := &Server{
		root:    root,
		engine:  engine,
		store:   st,
		coord:   coord,
		refiner: refiner,
		logger:  slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "semidx",
			Version: version.Short(),
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Search the indexed project by meaning and keywords. Finds functions, classes, and documentation sections relevant to a natural-language or code query. Supports filtering by extension, directory, chunk type, language, and git branch.",
	}, s.searchCodeHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_project",
		Description: "Index or reindex the project. Unchanged files are skipped by content hash; pass force to rebuild everything. Optionally restrict to a subtree.",
	}, s.indexProjectHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_stats",
		Description: "Report index size: total files, chunks, bytes, per-language file counts, and the last indexed time.",
	}, s.indexStatsHandler)

	s.logger.Debug("mcp tools registered", "count", 3)
}

// Serve runs the server over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting mcp server", "transport", "stdio")
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp server stopped", "error", err)
		return err
	}
	s.logger.Info("mcp server stopped")
	return nil
}
