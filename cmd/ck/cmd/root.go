// Package cmd provides the CLI commands for ck.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lwyBZss8924d/ckindex/internal/logging"
	"github.com/lwyBZss8924d/ckindex/pkg/version"
)

// Debug logging flag, shared by the PersistentPreRunE/PersistentPostRunE hooks.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the ck CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ck",
		Short: "Local-first hybrid code search",
		Long: `ck indexes a codebase and answers regex, lexical, semantic and
hybrid queries over it, entirely on the local filesystem.

Run 'ck index' once, then 'ck search <query>' as often as you like.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("ck version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.ck/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging enables file logging when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to set up debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

// stopLogging flushes and closes the debug log, if one was opened.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
