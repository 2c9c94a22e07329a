package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/semidx/semidx/internal/output"
	"github.com/semidx/semidx/internal/refine"
	"github.com/semidx/semidx/internal/search"
	"github.com/semidx/semidx/internal/store"
)

type searchOptions struct {
	mode       string
	limit      int
	extensions []string
	dirs       []string
	chunkTypes []string
	languages  []string
	branch     string
	minScore   float64
	expand     bool
	jsonOut    bool
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed project",
		Long: `Search the indexed project with hybrid retrieval.

BM25 keyword matching and embedding similarity are fused with
Reciprocal Rank Fusion; filters narrow results by file metadata.

Examples:
  semidx search "authentication middleware"
  semidx search "parse config" --ext .go --limit 5
  semidx search "retry logic" --mode keyword --dir internal/embed
  semidx search "database setup" --lang python --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, root.rootDir, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Search mode: hybrid, vector, keyword")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().StringSliceVar(&opts.extensions, "ext", nil, "Filter by file extension (repeatable)")
	cmd.Flags().StringSliceVar(&opts.dirs, "dir", nil, "Filter by directory prefix (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.chunkTypes, "type", "t", nil, "Filter by chunk type: function, class, method, section, paragraph")
	cmd.Flags().StringSliceVarP(&opts.languages, "lang", "l", nil, "Filter by language (repeatable)")
	cmd.Flags().StringVar(&opts.branch, "branch", "", "Filter by git branch recorded at index time")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Vector similarity floor (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.expand, "expand", false, "Show surrounding context lines")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, rootDir, query string, opts searchOptions) error {
	app, err := openApp(ctx, rootDir)
	if err != nil {
		return err
	}
	defer app.Close()

	q := search.Query{
		Text:          query,
		Mode:          opts.mode,
		Limit:         opts.limit,
		MinSimilarity: -1,
	}
	if opts.minScore > 0 {
		q.MinSimilarity = opts.minScore
	}

	filter := &store.Filter{
		Extensions:  opts.extensions,
		Directories: opts.dirs,
		ChunkTypes:  opts.chunkTypes,
		Languages:   opts.languages,
		Branch:      opts.branch,
	}
	if !filter.IsZero() {
		q.Filter = filter
	}

	results, err := app.engine.Search(ctx, q)
	if err != nil {
		return err
	}
	results = app.refiner.Refine(results)
	if opts.expand {
		results = refine.ExpandContext(results, app.root,
			app.cfg.Refine.ContextLinesBefore, app.cfg.Refine.ContextLinesAfter)
	}

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(searchResultsJSON(results))
	}

	printResults(output.New(cmd.OutOrStdout()), results)
	return nil
}

// resultJSON is the search result shape for --json output.
type resultJSON struct {
	Path         string   `json:"path"`
	StartLine    int      `json:"start_line"`
	EndLine      int      `json:"end_line"`
	Score        float64  `json:"score"`
	ChunkType    string   `json:"chunk_type,omitempty"`
	Name         string   `json:"name,omitempty"`
	Language     string   `json:"language,omitempty"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	InBoth       bool     `json:"in_both,omitempty"`
	Content      string   `json:"content"`
}

func searchResultsJSON(results []*search.Result) []resultJSON {
	out := make([]resultJSON, 0, len(results))
	for _, r := range results {
		out = append(out, resultJSON{
			Path:         r.Chunk.Path,
			StartLine:    r.Chunk.StartLine,
			EndLine:      r.Chunk.EndLine,
			Score:        r.Score,
			ChunkType:    r.Chunk.ChunkType,
			Name:         r.Chunk.Name,
			Language:     r.Chunk.Language,
			MatchedTerms: r.MatchedTerms,
			InBoth:       r.InBoth,
			Content:      r.Chunk.Content,
		})
	}
	return out
}

func printResults(out *output.Writer, results []*search.Result) {
	if len(results) == 0 {
		out.Status("", "no results")
		return
	}

	for i, r := range results {
		header := fmt.Sprintf("%d. %s:%d-%d  (%.3f)", i+1, r.Chunk.Path, r.Chunk.StartLine, r.Chunk.EndLine, r.Score)
		if r.Chunk.Name != "" {
			header += fmt.Sprintf("  %s %s", r.Chunk.ChunkType, r.Chunk.Name)
		}
		out.Status("", header)
		if len(r.MatchedTerms) > 0 {
			out.Status("", "   matched: "+strings.Join(r.MatchedTerms, ", "))
		}
		out.Code(r.Chunk.Content)
	}
}
