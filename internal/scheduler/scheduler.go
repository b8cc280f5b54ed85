// Package scheduler runs the periodic sweeps that keep evaluations moving:
// a dispatch sweep that launches queued evaluations and a reap sweep that
// fails runaway ones.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/webbench/benchd/internal/models"
	"github.com/webbench/benchd/internal/orchestration"
	"github.com/webbench/benchd/internal/store"
)

const (
	// DefaultDispatchInterval is how often queued evaluations are launched.
	DefaultDispatchInterval = 60 * time.Second

	// DefaultReapInterval is how often runaway evaluations are scanned for.
	DefaultReapInterval = 10 * time.Minute

	// DefaultRunTimeout is how long a RUNNING evaluation may live before
	// the reaper fails it.
	DefaultRunTimeout = 2 * time.Hour
)

// Config tunes the sweep cadence.
type Config struct {
	DispatchInterval time.Duration
	ReapInterval     time.Duration
	RunTimeout       time.Duration
}

// withDefaults fills unset intervals.
func (c Config) withDefaults() Config {
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = DefaultDispatchInterval
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = DefaultReapInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	return c
}

// Scheduler owns the background sweep loop.
type Scheduler struct {
	store  *store.Store
	runner *orchestration.Runner
	cfg    Config
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped Scheduler.
func New(st *store.Store, runner *orchestration.Runner, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:  st,
		runner: runner,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Start launches the sweep loop. It returns immediately.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the sweep loop and waits for it to exit. In-flight
// evaluations keep running; only the sweeps stop.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	dispatch := time.NewTicker(s.cfg.DispatchInterval)
	defer dispatch.Stop()
	reap := time.NewTicker(s.cfg.ReapInterval)
	defer reap.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-dispatch.C:
			if err := s.DispatchOnce(ctx, time.Now().UTC()); err != nil {
				s.logger.Error("dispatch sweep failed", "error", err)
			}
		case <-reap.C:
			if err := s.ReapOnce(ctx, time.Now().UTC()); err != nil {
				s.logger.Error("reap sweep failed", "error", err)
			}
		}
	}
}

// DispatchOnce launches every QUEUED evaluation that has no tracked
// execution handle, oldest first.
func (s *Scheduler) DispatchOnce(ctx context.Context, now time.Time) error {
	queued, err := s.store.EvaluationsByStatus(ctx, models.EvalQueued)
	if err != nil {
		return fmt.Errorf("list queued evaluations: %w", err)
	}

	for _, eval := range queued {
		if s.runner.HasHandle(eval.ID) {
			continue
		}
		s.logger.Info("dispatching queued evaluation",
			"evaluation", eval.ID, "queued_for", now.Sub(eval.CreatedAt).Round(time.Second))
		s.runner.Launch(eval.ID)
	}
	return nil
}

// ReapOnce fails every RUNNING evaluation whose start is older than the
// run timeout, then interrupts its execution handle. Failing first means
// the interrupted run finds the row already terminal and stands down.
func (s *Scheduler) ReapOnce(ctx context.Context, now time.Time) error {
	running, err := s.store.EvaluationsByStatus(ctx, models.EvalRunning)
	if err != nil {
		return fmt.Errorf("list running evaluations: %w", err)
	}

	for _, eval := range running {
		if eval.StartedAt == nil || now.Sub(*eval.StartedAt) <= s.cfg.RunTimeout {
			continue
		}

		message := fmt.Sprintf("evaluation timed out after %s", s.cfg.RunTimeout)
		s.logger.Warn("reaping runaway evaluation",
			"evaluation", eval.ID, "started_at", eval.StartedAt)
		if err := s.runner.FailEvaluation(ctx, eval.ID, message); err != nil {
			s.logger.Error("failed to reap evaluation", "evaluation", eval.ID, "error", err)
			continue
		}
		s.runner.InterruptHandle(eval.ID)
	}
	return nil
}
