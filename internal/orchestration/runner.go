// Package orchestration owns the evaluation lifecycle: it materializes
// tasks from a benchmark, runs them strictly in order on a bounded worker
// pool, aggregates progress, honors cooperative cancellation, and
// finalizes the terminal status.
package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"

	"github.com/webbench/benchd/internal/catalog"
	"github.com/webbench/benchd/internal/conflict"
	"github.com/webbench/benchd/internal/models"
	"github.com/webbench/benchd/internal/progress"
	"github.com/webbench/benchd/internal/scoring"
	"github.com/webbench/benchd/internal/statistics"
	"github.com/webbench/benchd/internal/store"
	"github.com/webbench/benchd/internal/taskrunner"
)

// defaultMaxWorkers bounds how many evaluations run concurrently.
const defaultMaxWorkers = 4

// StartRequest describes one evaluation to create and launch.
type StartRequest struct {
	Model     string `json:"model"`
	Provider  string `json:"provider"`
	Benchmark string `json:"benchmark"`
	Initiator string `json:"initiator,omitempty"`
	Config    string `json:"config,omitempty"`
}

// Handle tracks one in-flight evaluation execution. Cancellation is
// cooperative: the flag is observed at task boundaries, while the context
// is only cancelled by the reaper to force a stuck run off its worker.
type Handle struct {
	evaluationID    string
	ctx             context.Context
	cancel          context.CancelFunc
	cancelRequested atomic.Bool
}

// RequestCancel sets the cooperative cancellation flag. The in-flight task
// still runs to completion.
func (h *Handle) RequestCancel() {
	h.cancelRequested.Store(true)
}

// Interrupt cancels the handle's context, aborting the in-flight task.
func (h *Handle) Interrupt() {
	h.cancel()
}

// Runner starts, runs, cancels, and reports on evaluations.
type Runner struct {
	store   *store.Store
	catalog catalog.Catalog
	tasks   *taskrunner.Runner
	retry   *conflict.Executor
	sink    progress.Sink
	logger  *slog.Logger
	clock   func() time.Time

	handles *xsync.MapOf[string, *Handle]
	workers *semaphore.Weighted
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxWorkers bounds concurrent evaluation executions.
func WithMaxWorkers(n int64) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = semaphore.NewWeighted(n)
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		r.clock = clock
	}
}

// NewRunner wires an evaluation runner.
func NewRunner(st *store.Store, cat catalog.Catalog, tasks *taskrunner.Runner, retry *conflict.Executor, sink progress.Sink, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = progress.NopSink{}
	}
	r := &Runner{
		store:   st,
		catalog: cat,
		tasks:   tasks,
		retry:   retry,
		sink:    sink,
		logger:  logger,
		clock:   time.Now,
		handles: xsync.NewMapOf[string, *Handle](),
		workers: semaphore.NewWeighted(defaultMaxWorkers),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start creates a QUEUED evaluation with its full task list in one unit of
// work and launches asynchronous execution only after the creation work is
// durably committed.
func (r *Runner) Start(ctx context.Context, req StartRequest) (string, error) {
	templates, err := r.catalog.TasksFor(req.Benchmark)
	if err != nil {
		return "", err
	}
	version, err := r.catalog.VersionOf(req.Benchmark)
	if err != nil {
		return "", err
	}

	now := r.clock().UTC()
	eval := &models.Evaluation{
		ID:               uuid.NewString(),
		Model:            req.Model,
		Provider:         req.Provider,
		Benchmark:        req.Benchmark,
		BenchmarkVersion: version,
		Status:           models.EvalQueued,
		TotalTasks:       len(templates),
		Initiator:        req.Initiator,
		Config:           req.Config,
		Environment:      environmentSnapshot(),
		CreatedAt:        now,
	}

	err = r.store.Update(ctx, func(uow *store.UnitOfWork) error {
		if err := uow.CreateEvaluation(eval); err != nil {
			return err
		}
		for i, tpl := range templates {
			task := &models.Task{
				ID:             uuid.NewString(),
				EvaluationID:   eval.ID,
				ExecutionOrder: i + 1,
				Status:         models.TaskPending,
				Name:           tpl.Name,
				Prompt:         tpl.Prompt,
				ExpectedResult: tpl.ExpectedResult,
				MaxScore:       tpl.MaxScore,
				Category:       tpl.Category,
				Difficulty:     tpl.Difficulty,
				Tags:           tpl.Tags,
				TimeoutSec:     tpl.TimeoutSec,
				MaxRetries:     tpl.MaxRetries,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := uow.CreateTask(task); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create evaluation: %w", err)
	}

	r.Launch(eval.ID)
	return eval.ID, nil
}

// Launch registers an execution handle for the evaluation and runs it on
// the bounded worker pool. Launching an evaluation that already has a
// handle is a no-op.
func (r *Runner) Launch(evaluationID string) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{evaluationID: evaluationID, ctx: ctx, cancel: cancel}

	if _, loaded := r.handles.LoadOrStore(evaluationID, h); loaded {
		cancel()
		return
	}

	go func() {
		defer func() {
			cancel()
			r.handles.Delete(evaluationID)
		}()

		if err := r.workers.Acquire(h.ctx, 1); err != nil {
			r.logger.Warn("evaluation interrupted before acquiring a worker",
				"evaluation", evaluationID, "error", err)
			return
		}
		defer r.workers.Release(1)

		r.run(h)
	}()
}

// run drives the evaluation from RUNNING to a terminal status.
func (r *Runner) run(h *Handle) {
	ctx := h.ctx
	id := h.evaluationID

	err := r.mutate(ctx, id, func(e *models.Evaluation) {
		e.Status = models.EvalRunning
		if e.StartedAt == nil {
			now := r.clock().UTC()
			e.StartedAt = &now
		}
	})
	if err != nil {
		r.abort(ctx, id, err)
		return
	}

	tasks, err := r.store.TasksForEvaluation(ctx, id)
	if err != nil {
		r.abort(ctx, id, fmt.Errorf("load tasks: %w", err))
		return
	}
	if len(tasks) == 0 {
		r.abort(ctx, id, errors.New("evaluation has no tasks"))
		return
	}

	for _, task := range tasks {
		if task.Status.Terminal() {
			continue
		}

		// Cancellation is only honored at task boundaries; an in-flight
		// task always runs to completion.
		if h.cancelRequested.Load() || ctx.Err() != nil {
			r.finalizeCancelled(id)
			return
		}

		success, err := r.tasks.Execute(ctx, task.ID, id)
		if err != nil {
			if ctx.Err() != nil {
				// The reaper interrupted the run and owns the terminal
				// transition.
				r.logger.Info("evaluation run interrupted", "evaluation", id)
				return
			}
			r.abort(ctx, id, fmt.Errorf("execute task %s: %w", task.ID, err))
			return
		}

		err = r.mutate(ctx, id, func(e *models.Evaluation) {
			e.CompletedTasks++
			if success {
				e.SuccessfulTasks++
			}
			if e.TotalTasks > 0 {
				e.ProgressPercent = e.CompletedTasks * 100 / e.TotalTasks
			}
		})
		if err != nil {
			r.abort(ctx, id, err)
			return
		}
	}

	finalTasks, err := r.store.TasksForEvaluation(ctx, id)
	if err != nil {
		r.abort(ctx, id, fmt.Errorf("load tasks for scoring: %w", err))
		return
	}
	overall := scoring.OverallScore(finalTasks)

	err = r.mutate(ctx, id, func(e *models.Evaluation) {
		e.Status = models.EvalCompleted
		e.OverallScore = overall
		now := r.clock().UTC()
		e.CompletedAt = &now
	})
	if err != nil {
		r.abort(ctx, id, err)
		return
	}
	r.logger.Info("evaluation completed", "evaluation", id, "score", overall)
}

// Cancel requests cancellation of an evaluation. A tracked execution picks
// the request up at its next task boundary; an untracked evaluation is
// finalized CANCELLED directly. Cancelling an already-terminal evaluation
// is a no-op.
func (r *Runner) Cancel(ctx context.Context, evaluationID string) error {
	if h, ok := r.handles.Load(evaluationID); ok {
		h.RequestCancel()
		r.logger.Info("cancellation requested", "evaluation", evaluationID)
		return nil
	}

	eval, err := r.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return err
	}
	if eval.Status.Terminal() {
		return nil
	}

	err = r.mutate(ctx, evaluationID, func(e *models.Evaluation) {
		e.Status = models.EvalCancelled
		now := r.clock().UTC()
		e.CompletedAt = &now
	})
	if errors.Is(err, store.ErrEvaluationFinalized) {
		return nil
	}
	return err
}

// FailEvaluation finalizes an evaluation as FAILED with the given message.
// It is a no-op when the evaluation is already terminal.
func (r *Runner) FailEvaluation(ctx context.Context, evaluationID, message string) error {
	err := r.mutate(ctx, evaluationID, func(e *models.Evaluation) {
		e.Status = models.EvalFailed
		e.ErrorMessage = message
		now := r.clock().UTC()
		e.CompletedAt = &now
	})
	if errors.Is(err, store.ErrEvaluationFinalized) {
		return nil
	}
	return err
}

// Status returns the evaluation's current progress snapshot.
func (r *Runner) Status(ctx context.Context, evaluationID string) (models.StatusSnapshot, error) {
	eval, err := r.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return models.StatusSnapshot{}, err
	}
	return eval.Snapshot(r.clock().UTC()), nil
}

// Statistics returns the operational rollup over all evaluations.
func (r *Runner) Statistics(ctx context.Context, now time.Time) (statistics.Summary, error) {
	return statistics.BuildSummary(ctx, r.store, now)
}

// HasHandle reports whether the evaluation has a tracked execution.
func (r *Runner) HasHandle(evaluationID string) bool {
	_, ok := r.handles.Load(evaluationID)
	return ok
}

// InterruptHandle force-cancels the evaluation's execution context, if
// tracked. Used by the reaper after it has finalized the row.
func (r *Runner) InterruptHandle(evaluationID string) bool {
	h, ok := r.handles.Load(evaluationID)
	if !ok {
		return false
	}
	h.Interrupt()
	return true
}

// finalizeCancelled finalizes a cancelled run, tolerating a racing
// finalizer.
func (r *Runner) finalizeCancelled(evaluationID string) {
	// The run context may already be cancelled; finalization must still
	// reach the store.
	err := r.mutate(context.Background(), evaluationID, func(e *models.Evaluation) {
		e.Status = models.EvalCancelled
		now := r.clock().UTC()
		e.CompletedAt = &now
	})
	if err != nil && !errors.Is(err, store.ErrEvaluationFinalized) {
		r.logger.Error("failed to finalize cancelled evaluation",
			"evaluation", evaluationID, "error", err)
		return
	}
	r.logger.Info("evaluation cancelled", "evaluation", evaluationID)
}

// abort finalizes a run that hit an evaluation-level failure. A run that
// lost to a concurrent finalizer just logs and stands down.
func (r *Runner) abort(ctx context.Context, evaluationID string, cause error) {
	if errors.Is(cause, store.ErrEvaluationFinalized) {
		r.logger.Info("evaluation already finalized elsewhere", "evaluation", evaluationID)
		return
	}

	r.logger.Error("evaluation failed", "evaluation", evaluationID, "error", cause)
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := r.FailEvaluation(ctx, evaluationID, cause.Error()); err != nil {
		r.logger.Error("failed to finalize failed evaluation",
			"evaluation", evaluationID, "error", err)
	}
}

// mutate applies fn to the freshly loaded evaluation row inside one unit
// of work, retrying version conflicts and refusing writes once the row is
// terminal. The updated snapshot is broadcast to the progress sink after
// commit.
func (r *Runner) mutate(ctx context.Context, evaluationID string, fn func(*models.Evaluation)) error {
	var snapshot models.StatusSnapshot
	err := r.retry.Run(ctx, "update evaluation "+evaluationID, func(ctx context.Context) error {
		return r.store.Update(ctx, func(uow *store.UnitOfWork) error {
			e, err := uow.GetEvaluation(evaluationID)
			if err != nil {
				return err
			}
			if e.Status.Terminal() {
				return store.ErrEvaluationFinalized
			}
			fn(e)
			if err := uow.UpdateEvaluation(e); err != nil {
				return err
			}
			snapshot = e.Snapshot(r.clock().UTC())
			return nil
		})
	})
	if err != nil {
		return err
	}

	r.sink.Publish(evaluationID, snapshot)
	return nil
}

// environmentSnapshot captures where the evaluation ran.
func environmentSnapshot() string {
	hostname, _ := os.Hostname()
	snapshot := map[string]string{
		"hostname": hostname,
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"go":       runtime.Version(),
	}
	b, err := json.Marshal(snapshot)
	if err != nil {
		return ""
	}
	return string(b)
}
