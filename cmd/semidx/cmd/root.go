// Package cmd provides the CLI commands for semidx.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/semidx/semidx/internal/logging"
	"github.com/semidx/semidx/pkg/version"
)

type rootOptions struct {
	rootDir  string
	logLevel string
}

// NewRootCmd creates the root command for the semidx CLI.
func NewRootCmd() *cobra.Command {
	var opts rootOptions
	var cleanup func()

	cmd := &cobra.Command{
		Use:   "semidx",
		Short: "Semantic code index and hybrid search",
		Long: `semidx indexes a codebase into a local hybrid search index
(BM25 + embeddings) and serves it to humans via the CLI and to AI
assistants via the Model Context Protocol.

Run 'semidx index' in a project directory, then 'semidx search'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logCfg := logging.DefaultConfig()
			logCfg.WriteToStderr = false
			if opts.logLevel != "" {
				logCfg.Level = opts.logLevel
			}
			var err error
			cleanup, err = logging.SetupDefault(logCfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cleanup != nil {
				cleanup()
			}
		},
	}

	cmd.SetVersionTemplate("semidx version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.rootDir, "root", ".", "Project root directory")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newIndexCmd(&opts))
	cmd.AddCommand(newSearchCmd(&opts))
	cmd.AddCommand(newWatchCmd(&opts))
	cmd.AddCommand(newStatsCmd(&opts))
	cmd.AddCommand(newServeCmd(&opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI, cancelling on SIGINT and SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		cmd.PrintErrln("Error:", err)
		return err
	}
	return nil
}
