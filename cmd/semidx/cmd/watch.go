package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/semidx/semidx/internal/config"
	"github.com/semidx/semidx/internal/index"
	"github.com/semidx/semidx/internal/output"
	"github.com/semidx/semidx/internal/watcher"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the project and keep the index current",
		Long: `Watch the project directory and reindex files as they change.

An initial incremental index run brings the index up to date; after
that, file events are debounced and applied continuously until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, root.rootDir)
		},
	}
	return cmd
}

// watchHandler adapts the coordinator to the watcher's Handler interface.
type watchHandler struct {
	coord *index.Coordinator
}

func (h *watchHandler) Index(ctx context.Context, path string) error {
	_, err := h.coord.Run(ctx, index.RunOptions{SubPath: path})
	return err
}

func (h *watchHandler) Purge(ctx context.Context, paths []string) error {
	return h.coord.PurgePaths(ctx, paths)
}

func runWatch(ctx context.Context, cmd *cobra.Command, rootDir string) error {
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

	// Catch up before watching so events only ever apply deltas.
	summary, err := app.coord.Run(ctx, index.RunOptions{})
	if err != nil {
		return err
	}
	out.Successf("index up to date (%d files indexed, %d unchanged)",
		summary.FilesIndexed, summary.FilesSkipped)

	debounce, err := app.cfg.DebounceDuration()
	if err != nil {
		return err
	}

	w, err := watcher.New(app.root, &watchHandler{coord: app.coord}, watcher.Options{
		Debounce: debounce,
		Exclude:  app.cfg.Paths.Exclude,
	})
	if err != nil {
		return err
	}

	out.Status("", "watching for changes, Ctrl-C to stop")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
