package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/semidx/semidx/internal/config"
	"github.com/semidx/semidx/internal/index"
	"github.com/semidx/semidx/internal/output"
)

func newIndexCmd(root *rootOptions) *cobra.Command {
	var force bool
	var subPath string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the project into the local search index",
		Long: `Index the project into the local search index.

Unchanged files are skipped by content hash, so repeated runs only pay
for what changed.

Examples:
  semidx index
  semidx index --path internal/api
  semidx index --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, root.rootDir, subPath, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reindex files even when unchanged")
	cmd.Flags().StringVarP(&subPath, "path", "p", "", "Restrict indexing to a subtree")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, rootDir, subPath string, force bool) error {
	app, err := openApp(ctx, rootDir)
	if err != nil {
		return err
	}
	defer app.Close()

	lock, err := index.AcquireLock(config.DataDir(app.root))
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	out := output.New(cmd.OutOrStdout())
	summary, err := app.coord.Run(ctx, index.RunOptions{
		SubPath: subPath,
		Force:   force,
		Progress: func(p index.Progress) {
			out.Progress(p.Done, p.Total, p.Path)
		},
	})
	if err != nil {
		return err
	}

	out.Successf("indexed %d files (%d chunks) in %s",
		summary.FilesIndexed, summary.ChunksIndexed, summary.Duration.Round(time.Millisecond))
	if summary.FilesSkipped > 0 {
		out.Status("", fmt.Sprintf("%d unchanged", summary.FilesSkipped))
	}
	if summary.FilesPurged > 0 {
		out.Status("", fmt.Sprintf("%d removed", summary.FilesPurged))
	}
	if summary.FilesFailed > 0 {
		out.Warning(fmt.Sprintf("%d files failed, see the log for details", summary.FilesFailed))
	}
	return nil
}
