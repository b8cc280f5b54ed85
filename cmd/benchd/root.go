package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var version = "dev"

// logLevel is shared by every command; --debug lowers it.
var logLevel = new(slog.LevelVar)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchd",
		Short: "benchd - benchmark evaluation orchestration engine",
		Long: `benchd runs multi-task benchmark evaluations of an external agent.

It materializes tasks from a benchmark definition, executes them strictly
in order with step-bounded automation, tracks progress, and exposes the
lifecycle over a REST API.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			logLevel.Set(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newBenchmarksCommand())

	return cmd
}

func execute() error {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
