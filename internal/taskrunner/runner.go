// Package taskrunner executes a single task to a terminal state: it drives
// the automation executor under step control, scores the outcome, and
// persists the result.
package taskrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/webbench/benchd/internal/automation"
	"github.com/webbench/benchd/internal/conflict"
	"github.com/webbench/benchd/internal/models"
	"github.com/webbench/benchd/internal/scoring"
	"github.com/webbench/benchd/internal/stepcontrol"
	"github.com/webbench/benchd/internal/store"
)

// Default step parameters, used when the evaluation config does not
// override them.
const (
	defaultMaxSteps            = 10
	defaultConfidenceThreshold = 0.9
)

// Runner executes one task at a time. It is safe for concurrent use across
// distinct task ids.
type Runner struct {
	store    *store.Store
	executor automation.Executor
	steps    *stepcontrol.Controller
	retry    *conflict.Executor
	logger   *slog.Logger
}

// NewRunner wires a task runner.
func NewRunner(st *store.Store, executor automation.Executor, steps *stepcontrol.Controller, retry *conflict.Executor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    st,
		executor: executor,
		steps:    steps,
		retry:    retry,
		logger:   logger,
	}
}

// Execute runs the task to a terminal state and reports whether it
// succeeded. A task-level failure (automation error, expectation mismatch)
// is recorded on the task and returned as (false, nil); only infrastructure
// failures and context cancellation surface as errors.
func (r *Runner) Execute(ctx context.Context, taskID, evaluationID string) (bool, error) {
	task, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task.EvaluationID != evaluationID {
		return false, fmt.Errorf("task %s does not belong to evaluation %s", taskID, evaluationID)
	}
	if task.Status.Terminal() {
		return task.Success, nil
	}

	eval, err := r.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return false, fmt.Errorf("load evaluation %s: %w", evaluationID, err)
	}
	params := stepParams(eval.Config)

	if err := r.transition(ctx, taskID, func(t *models.Task) {
		t.Status = models.TaskRunning
	}); err != nil {
		return false, err
	}

	for {
		result, execErr := r.runAutomation(ctx, task, params)
		if execErr == nil {
			return r.recordSuccess(ctx, task, result)
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		if task.RetryCount < task.MaxRetries {
			task.RetryCount++
			r.logger.Warn("task attempt failed, retrying",
				"task", taskID, "attempt", task.RetryCount, "error", execErr)
			if err := r.transition(ctx, taskID, func(t *models.Task) {
				t.RetryCount = task.RetryCount
			}); err != nil {
				return false, err
			}
			continue
		}

		if err := r.transition(ctx, taskID, func(t *models.Task) {
			t.Status = models.TaskFailed
			t.Success = false
			t.Score = 0
			t.ErrorMessage = execErr.Error()
		}); err != nil {
			return false, err
		}
		return false, nil
	}
}

// runAutomation drives one attempt of the external executor under a fresh
// step-control session.
func (r *Runner) runAutomation(ctx context.Context, task *models.Task, params stepcontrol.Params) (*automation.Result, error) {
	if err := r.steps.Initialize(task.ID, params); err != nil {
		return nil, fmt.Errorf("initialize step control: %w", err)
	}
	defer r.steps.Complete(task.ID)

	execCtx := ctx
	if task.TimeoutSec > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(task.TimeoutSec)*time.Second)
		defer cancel()
	}

	req := &automation.Request{
		TaskID:       task.ID,
		TaskName:     task.Name,
		EvaluationID: task.EvaluationID,
		SessionID:    uuid.NewString(),
		Instruction:  task.Prompt,
		TimeoutSec:   task.TimeoutSec,
		StepParams:   params,
		Steps:        r.steps,
	}
	return r.executor.Execute(execCtx, req)
}

// recordSuccess scores the produced result and persists the COMPLETED
// state. Artifact references are attached in a separate unit of work so
// slow artifact handling never extends the task write.
func (r *Runner) recordSuccess(ctx context.Context, task *models.Task, result *automation.Result) (bool, error) {
	success, score := scoring.EvaluateResult(result.TextResult, task.ExpectedResult, task.MaxScore)

	if err := r.transition(ctx, task.ID, func(t *models.Task) {
		t.Status = models.TaskCompleted
		t.Result = result.TextResult
		t.Success = success
		t.Score = score
		t.ErrorMessage = ""
	}); err != nil {
		return false, err
	}

	if len(result.ScreenshotRefs) > 0 {
		if err := r.transition(ctx, task.ID, func(t *models.Task) {
			t.ScreenshotRefs = result.ScreenshotRefs
		}); err != nil {
			// The task outcome is already durable; losing artifact refs is
			// not worth failing the evaluation over.
			r.logger.Warn("failed to attach screenshot refs",
				"task", task.ID, "error", err)
		}
	}

	return success, nil
}

// transition applies mutate to the freshly loaded task row inside one unit
// of work, retrying on version conflicts.
func (r *Runner) transition(ctx context.Context, taskID string, mutate func(*models.Task)) error {
	return r.retry.Run(ctx, "update task "+taskID, func(ctx context.Context) error {
		return r.store.Update(ctx, func(uow *store.UnitOfWork) error {
			t, err := uow.GetTask(taskID)
			if err != nil {
				return err
			}
			mutate(t)
			return uow.UpdateTask(t)
		})
	})
}

// stepParams derives the step-control parameters from the evaluation's
// free-form config JSON, falling back to defaults field by field.
func stepParams(config string) stepcontrol.Params {
	params := stepcontrol.Params{
		MaxSteps:             defaultMaxSteps,
		Mode:                 stepcontrol.ModeMultiStep,
		AllowEarlyCompletion: true,
		ConfidenceThreshold:  defaultConfidenceThreshold,
	}
	if config == "" {
		return params
	}

	var overrides struct {
		MaxSteps             *int              `json:"max_steps"`
		Mode                 *stepcontrol.Mode `json:"mode"`
		AllowEarlyCompletion *bool             `json:"allow_early_completion"`
		ConfidenceThreshold  *float64          `json:"confidence_threshold"`
	}
	if err := json.Unmarshal([]byte(config), &overrides); err != nil {
		return params
	}
	if overrides.MaxSteps != nil && *overrides.MaxSteps > 0 {
		params.MaxSteps = *overrides.MaxSteps
	}
	if overrides.Mode != nil && *overrides.Mode != "" {
		params.Mode = *overrides.Mode
	}
	if overrides.AllowEarlyCompletion != nil {
		params.AllowEarlyCompletion = *overrides.AllowEarlyCompletion
	}
	if overrides.ConfidenceThreshold != nil {
		params.ConfidenceThreshold = *overrides.ConfidenceThreshold
	}
	return params
}
