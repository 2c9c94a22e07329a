package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/semidx/semidx/internal/index"
	"github.com/semidx/semidx/internal/refine"
	"github.com/semidx/semidx/internal/search"
	"github.com/semidx/semidx/internal/store"
)

// Context lines added around a chunk when a caller asks for expansion.
const (
	expandLinesBefore = 3
	expandLinesAfter  = 3
)

// SearchCodeInput is the input schema for the search_code tool.
type SearchCodeInput struct {
	Query         string   `json:"query" jsonschema:"the search query to execute"`
	Mode          string   `json:"mode,omitempty" jsonschema:"search mode: hybrid, vector, or keyword; default hybrid"`
	Limit         int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Extensions    []string `json:"extensions,omitempty" jsonschema:"filter by file extensions, e.g. .go"`
	Directories   []string `json:"directories,omitempty" jsonschema:"filter by directory prefixes"`
	ChunkTypes    []string `json:"chunk_types,omitempty" jsonschema:"filter by chunk type: function, class, method, section, paragraph"`
	Languages     []string `json:"languages,omitempty" jsonschema:"filter by language, e.g. go, python"`
	Branch        string   `json:"branch,omitempty" jsonschema:"filter by git branch recorded at index time"`
	MinSimilarity float64  `json:"min_similarity,omitempty" jsonschema:"vector similarity floor between 0 and 1; 0 uses the configured default"`
	Expand        bool     `json:"expand,omitempty" jsonschema:"expand results with surrounding context lines"`
}

// SearchResultOutput is one result row.
type SearchResultOutput struct {
	Path         string   `json:"path" jsonschema:"file path relative to the project root"`
	StartLine    int      `json:"start_line" jsonschema:"first line of the chunk, 1-indexed"`
	EndLine      int      `json:"end_line" jsonschema:"last line of the chunk, inclusive"`
	Content      string   `json:"content" jsonschema:"chunk content"`
	Score        float64  `json:"score" jsonschema:"relevance score between 0 and 1"`
	ChunkType    string   `json:"chunk_type,omitempty" jsonschema:"kind of chunk: function, class, section, ..."`
	Name         string   `json:"name,omitempty" jsonschema:"symbol or section name"`
	Language     string   `json:"language,omitempty" jsonschema:"language of the file"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms the keyword leg matched"`
	InBoth       bool     `json:"in_both,omitempty" jsonschema:"true when both search legs returned this chunk"`
}

// SearchCodeOutput is the output schema for the search_code tool.
type SearchCodeOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked search results"`
}

func (s *Server) searchCodeHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchCodeInput) (
	*mcp.CallToolResult,
	SearchCodeOutput,
	error,
) {
	q := search.Query{
		Text:          input.Query,
		Mode:          input.Mode,
		Limit:         input.Limit,
		MinSimilarity: -1,
	}
	if input.MinSimilarity > 0 {
		q.MinSimilarity = input.MinSimilarity
	}

	filter := &store.Filter{
		Extensions:  input.Extensions,
		Directories: input.Directories,
		ChunkTypes:  input.ChunkTypes,
		Languages:   input.Languages,
		Branch:      input.Branch,
	}
	if !filter.IsZero() {
		q.Filter = filter
	}

	results, err := s.engine.Search(ctx, q)
	if err != nil {
		return nil, SearchCodeOutput{}, err
	}

	if s.refiner != nil {
		results = s.refiner.Refine(results)
	}
	if input.Expand {
		results = refine.ExpandContext(results, s.root, expandLinesBefore, expandLinesAfter)
	}

	out := SearchCodeOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, SearchResultOutput{
			Path:         r.Chunk.Path,
			StartLine:    r.Chunk.StartLine,
			EndLine:      r.Chunk.EndLine,
			Content:      r.Chunk.Content,
			Score:        r.Score,
			ChunkType:    r.Chunk.ChunkType,
			Name:         r.Chunk.Name,
			Language:     r.Chunk.Language,
			MatchedTerms: r.MatchedTerms,
			InBoth:       r.InBoth,
		})
	}
	return nil, out, nil
}

// IndexProjectInput is the input schema for the index_project tool.
type IndexProjectInput struct {
	SubPath string `json:"sub_path,omitempty" jsonschema:"restrict indexing to this subtree, relative to the project root"`
	Force   bool   `json:"force,omitempty" jsonschema:"reindex files even when unchanged"`
}

// IndexProjectOutput is the output schema for the index_project tool.
type IndexProjectOutput struct {
	FilesScanned  int    `json:"files_scanned"`
	FilesIndexed  int    `json:"files_indexed"`
	FilesSkipped  int    `json:"files_skipped"`
	FilesFailed   int    `json:"files_failed"`
	FilesPurged   int    `json:"files_purged"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Duration      string `json:"duration"`
}

func (s *Server) indexProjectHandler(ctx context.Context, req *mcp.CallToolRequest, input IndexProjectInput) (
	*mcp.CallToolResult,
	IndexProjectOutput,
	error,
) {
	summary, err := s.coord.Run(ctx, index.RunOptions{
		SubPath: input.SubPath,
		Force:   input.Force,
	})
	if err != nil {
		return nil, IndexProjectOutput{}, err
	}

	return nil, IndexProjectOutput{
		FilesScanned:  summary.FilesScanned,
		FilesIndexed:  summary.FilesIndexed,
		FilesSkipped:  summary.FilesSkipped,
		FilesFailed:   summary.FilesFailed,
		FilesPurged:   summary.FilesPurged,
		ChunksIndexed: summary.ChunksIndexed,
		Duration:      summary.Duration.String(),
	}, nil
}

// IndexStatsInput is the (empty) input schema for the index_stats tool.
type IndexStatsInput struct{}

// IndexStatsOutput is the output schema for the index_stats tool.
type IndexStatsOutput struct {
	TotalFiles     int            `json:"total_files"`
	TotalChunks    int            `json:"total_chunks"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	Languages      map[string]int `json:"languages,omitempty" jsonschema:"chunk counts per language"`
	LastIndexed    string         `json:"last_indexed,omitempty" jsonschema:"RFC3339 time of the newest indexed file"`
}

func (s *Server) indexStatsHandler(ctx context.Context, req *mcp.CallToolRequest, input IndexStatsInput) (
	*mcp.CallToolResult,
	IndexStatsOutput,
	error,
) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, IndexStatsOutput{}, err
	}

	out := IndexStatsOutput{
		TotalFiles:     stats.TotalFiles,
		TotalChunks:    stats.TotalChunks,
		TotalSizeBytes: stats.TotalSizeBytes,
		Languages:      stats.Languages,
	}
	if !stats.LastIndexed.IsZero() {
		out.LastIndexed = stats.LastIndexed.Format(time.RFC3339)
	}
	return nil, out, nil
}
