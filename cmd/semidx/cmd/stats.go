package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/semidx/semidx/internal/output"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd, root.rootDir, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit statistics as JSON")
	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, rootDir string, jsonOut bool) error {
	app, err := openApp(ctx, rootDir)
	if err != nil {
		return err
	}
	defer app.Close()

	stats, err := app.store.Stats(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "files:   %d", stats.TotalFiles)
	out.Statusf("", "chunks:  %d", stats.TotalChunks)
	out.Statusf("", "size:    %s", humanBytes(stats.TotalSizeBytes))
	if !stats.LastIndexed.IsZero() {
		out.Statusf("", "indexed: %s", stats.LastIndexed.Format(time.RFC3339))
	}

	if len(stats.Languages) > 0 {
		out.Newline()
		langs := make([]string, 0, len(stats.Languages))
		for l := range stats.Languages {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		for _, l := range langs {
			out.Statusf("", "%-12s %d", l, stats.Languages[l])
		}
	}
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
