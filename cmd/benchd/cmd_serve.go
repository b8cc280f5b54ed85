package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/webbench/benchd/internal/environment"
	"github.com/webbench/benchd/internal/webserver"
)

func newServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the evaluation engine with its REST API and scheduler",
		Long: `Run the evaluation engine as a long-lived process.

The server exposes the REST API, runs the dispatch sweep that launches
queued evaluations, and runs the reap sweep that fails runaway ones.
Configuration comes from the environment (BENCHD_* variables), with an
optional .env file for local development.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := environment.Load()
			if port != 0 {
				cfg.HTTPPort = port
			}
			logger := slog.Default()

			eng, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng.scheduler.Start()
			defer eng.scheduler.Stop()

			server := webserver.New(webserver.Config{
				Port:   cfg.HTTPPort,
				Logger: logger,
			}, eng.runner, eng.steps)

			return server.ListenAndServe(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides BENCHD_HTTP_PORT)")

	return cmd
}
