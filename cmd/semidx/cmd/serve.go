package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/semidx/semidx/internal/mcp"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over the Model Context Protocol (stdio)",
		Long: `Serve the index to MCP clients over stdio.

Exposes the tools search_code, index_project, and index_stats. Point an
MCP-capable client (Claude Code, Cursor, ...) at this command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root.rootDir)
		},
	}
	return cmd
}

func runServe(ctx context.Context, rootDir string) error {
	app, err := openApp(ctx, rootDir)
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := mcp.NewServer(app.root, app.engine, app.store, app.coord, app.refiner)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}
