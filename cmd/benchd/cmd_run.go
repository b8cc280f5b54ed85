package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/webbench/benchd/internal/environment"
	"github.com/webbench/benchd/internal/models"
	"github.com/webbench/benchd/internal/orchestration"
)

func newRunCommand() *cobra.Command {
	var (
		model     string
		provider  string
		benchmark string
		config    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one evaluation to completion and print the result",
		Long: `Run a single benchmark evaluation in the foreground.

The evaluation uses the in-process mock automation driver; progress is
printed as tasks finish. The command exits once the evaluation reaches a
terminal status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := environment.Load()
			logger := slog.Default()

			eng, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := cmd.Context()
			id, err := eng.runner.Start(ctx, orchestration.StartRequest{
				Model:     model,
				Provider:  provider,
				Benchmark: benchmark,
				Initiator: "cli",
				Config:    config,
			})
			if err != nil {
				return err
			}
			logger.Info("evaluation started", "evaluation", id, "benchmark", benchmark)

			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					// The command context is gone; cancellation still has to
					// reach the store.
					if err := eng.runner.Cancel(context.Background(), id); err != nil {
						logger.Warn("failed to cancel evaluation", "error", err)
					}
					return ctx.Err()
				case <-ticker.C:
				}

				snapshot, err := eng.runner.Status(ctx, id)
				if err != nil {
					return fmt.Errorf("poll evaluation status: %w", err)
				}
				if !snapshot.Status.Terminal() {
					continue
				}

				fmt.Printf("evaluation %s finished: %s\n", id, snapshot.Status)
				fmt.Printf("  tasks: %d/%d completed, %d successful\n",
					snapshot.CompletedTasks, snapshot.TotalTasks, snapshot.SuccessfulTasks)
				if snapshot.Status == models.EvalCompleted {
					fmt.Printf("  overall score: %.1f\n", snapshot.OverallScore)
				}
				if snapshot.ErrorMessage != "" {
					fmt.Printf("  error: %s\n", snapshot.ErrorMessage)
				}
				if snapshot.Status != models.EvalCompleted {
					return fmt.Errorf("evaluation finished %s", snapshot.Status)
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Model name under evaluation (required)")
	cmd.Flags().StringVar(&provider, "provider", "", "Model provider")
	cmd.Flags().StringVar(&benchmark, "benchmark", "", "Benchmark name from the catalog (required)")
	cmd.Flags().StringVar(&config, "config", "", "Step-control config overrides as JSON")
	cmd.MarkFlagRequired("model")     //nolint:errcheck
	cmd.MarkFlagRequired("benchmark") //nolint:errcheck

	return cmd
}
