package main

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/webbench/benchd/internal/automation"
	"github.com/webbench/benchd/internal/catalog"
	"github.com/webbench/benchd/internal/conflict"
	"github.com/webbench/benchd/internal/environment"
	"github.com/webbench/benchd/internal/orchestration"
	"github.com/webbench/benchd/internal/progress"
	"github.com/webbench/benchd/internal/scheduler"
	"github.com/webbench/benchd/internal/stepcontrol"
	"github.com/webbench/benchd/internal/store"
	"github.com/webbench/benchd/internal/taskrunner"
)

// engine is the fully wired evaluation stack shared by the serve and run
// commands.
type engine struct {
	cfg       environment.Config
	store     *store.Store
	catalog   catalog.Catalog
	steps     *stepcontrol.Controller
	runner    *orchestration.Runner
	scheduler *scheduler.Scheduler
	nc        *nats.Conn
	logger    *slog.Logger
}

// buildEngine wires the stack from configuration. The automation executor
// is the in-process mock; real browser drivers plug in through the
// automation.Executor interface.
func buildEngine(cfg environment.Config, logger *slog.Logger) (*engine, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cat, err := catalog.NewFileCatalog(cfg.BenchmarkDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load benchmark catalog: %w", err)
	}

	var nc *nats.Conn
	var sink progress.Sink = progress.LogSink{Logger: logger}
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("benchd"))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err)
		}
		sink = progress.NewNATSSink(nc, "benchd.evaluations", logger)
	}

	steps := stepcontrol.NewController()
	retry := conflict.NewExecutor(logger)
	tasks := taskrunner.NewRunner(st, automation.NewMockExecutor(), steps, retry, logger)
	runner := orchestration.NewRunner(st, cat, tasks, retry, sink, logger,
		orchestration.WithMaxWorkers(cfg.MaxWorkers))
	sched := scheduler.New(st, runner, scheduler.Config{
		DispatchInterval: cfg.DispatchInterval,
		ReapInterval:     cfg.ReapInterval,
		RunTimeout:       cfg.RunTimeout,
	}, logger)

	return &engine{
		cfg:       cfg,
		store:     st,
		catalog:   cat,
		steps:     steps,
		runner:    runner,
		scheduler: sched,
		nc:        nc,
		logger:    logger,
	}, nil
}

// Close releases the engine's external resources.
func (e *engine) Close() {
	if e.nc != nil {
		e.nc.Drain() //nolint:errcheck
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warn("failed to close store", "error", err)
	}
}
