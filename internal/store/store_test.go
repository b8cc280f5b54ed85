package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/webbench/benchd/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "benchd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func newEvaluation(createdAt time.Time) *models.Evaluation {
	return &models.Evaluation{
		ID:               uuid.NewString(),
		Model:            "gpt-test",
		Provider:         "openai",
		Benchmark:        "web-basic",
		BenchmarkVersion: "1.2.0",
		Status:           models.EvalQueued,
		TotalTasks:       3,
		Initiator:        "tester",
		Config:           `{"max_steps":5}`,
		CreatedAt:        createdAt,
	}
}

func createEvaluation(t *testing.T, s *Store, e *models.Evaluation) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(uow *UnitOfWork) error {
		return uow.CreateEvaluation(e)
	}))
}

func TestEvaluationRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newEvaluation(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	createEvaluation(t, s, e)

	got, err := s.GetEvaluation(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, e.ID, got.ID)
	require.Equal(t, "gpt-test", got.Model)
	require.Equal(t, "web-basic", got.Benchmark)
	require.Equal(t, "1.2.0", got.BenchmarkVersion)
	require.Equal(t, models.EvalQueued, got.Status)
	require.Equal(t, 3, got.TotalTasks)
	require.Equal(t, `{"max_steps":5}`, got.Config)
	require.Equal(t, int64(1), got.Version)
	require.Nil(t, got.StartedAt)
	require.Nil(t, got.CompletedAt)
}

func TestGetEvaluationNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetEvaluation(context.Background(), "nope")
	require.ErrorIs(t, err, ErrEvaluationNotFound)
}

func TestUpdateEvaluationBumpsVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newEvaluation(time.Now().UTC())
	createEvaluation(t, s, e)

	started := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, s.Update(ctx, func(uow *UnitOfWork) error {
		e.Status = models.EvalRunning
		e.StartedAt = &started
		return uow.UpdateEvaluation(e)
	}))
	require.Equal(t, int64(2), e.Version)

	got, err := s.GetEvaluation(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, models.EvalRunning, got.Status)
	require.NotNil(t, got.StartedAt)
	require.Equal(t, int64(2), got.Version)
}

func TestUpdateEvaluationStaleVersionConflicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newEvaluation(time.Now().UTC())
	createEvaluation(t, s, e)

	first, err := s.GetEvaluation(ctx, e.ID)
	require.NoError(t, err)
	second, err := s.GetEvaluation(ctx, e.ID)
	require.NoError(t, err)

	first.CompletedTasks = 1
	require.NoError(t, s.Update(ctx, func(uow *UnitOfWork) error {
		return uow.UpdateEvaluation(first)
	}))

	second.CompletedTasks = 2
	err = s.Update(ctx, func(uow *UnitOfWork) error {
		return uow.UpdateEvaluation(second)
	})
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestUpdateEvaluationMissingRow(t *testing.T) {
	s := openTestStore(t)
	e := newEvaluation(time.Now().UTC())
	e.Version = 1
	err := s.Update(context.Background(), func(uow *UnitOfWork) error {
		return uow.UpdateEvaluation(e)
	})
	require.ErrorIs(t, err, ErrEvaluationNotFound)
}

func TestEvaluationsByStatusOrdersByCreation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := newEvaluation(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	newer := newEvaluation(time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC))
	running := newEvaluation(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	running.Status = models.EvalRunning

	createEvaluation(t, s, newer)
	createEvaluation(t, s, older)
	createEvaluation(t, s, running)

	queued, err := s.EvaluationsByStatus(ctx, models.EvalQueued)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	require.Equal(t, older.ID, queued[0].ID)
	require.Equal(t, newer.ID, queued[1].ID)
}

func newTask(evaluationID string, order int) *models.Task {
	now := time.Now().UTC()
	return &models.Task{
		ID:             uuid.NewString(),
		EvaluationID:   evaluationID,
		ExecutionOrder: order,
		Status:         models.TaskPending,
		Name:           "search product",
		Prompt:         "Search for a red bicycle",
		ExpectedResult: "bicycle",
		MaxScore:       10,
		Category:       "search",
		Difficulty:     "easy",
		Tags:           []string{"smoke", "search"},
		TimeoutSec:     30,
		MaxRetries:     1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestTaskRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newEvaluation(time.Now().UTC())
	createEvaluation(t, s, e)

	task := newTask(e.ID, 1)
	require.NoError(t, s.Update(ctx, func(uow *UnitOfWork) error {
		return uow.CreateTask(task)
	}))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, e.ID, got.EvaluationID)
	require.Equal(t, 1, got.ExecutionOrder)
	require.Equal(t, []string{"smoke", "search"}, got.Tags)
	require.Equal(t, 10.0, got.MaxScore)
	require.Equal(t, int64(1), got.Version)
}

func TestUpdateTaskStaleVersionConflicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newEvaluation(time.Now().UTC())
	createEvaluation(t, s, e)
	task := newTask(e.ID, 1)
	require.NoError(t, s.Update(ctx, func(uow *UnitOfWork) error {
		return uow.CreateTask(task)
	}))

	first, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	stale, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)

	first.Status = models.TaskRunning
	require.NoError(t, s.Update(ctx, func(uow *UnitOfWork) error {
		return uow.UpdateTask(first)
	}))

	stale.Status = models.TaskFailed
	err = s.Update(ctx, func(uow *UnitOfWork) error {
		return uow.UpdateTask(stale)
	})
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestUpdateTaskPersistsOutcome(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newEvaluation(time.Now().UTC())
	createEvaluation(t, s, e)
	task := newTask(e.ID, 1)
	require.NoError(t, s.Update(ctx, func(uow *UnitOfWork) error {
		return uow.CreateTask(task)
	}))

	task.Status = models.TaskCompleted
	task.Result = "Found a red bicycle"
	task.Success = true
	task.Score = 10
	task.ScreenshotRefs = []string{"s3://shots/1.png"}
	require.NoError(t, s.Update(ctx, func(uow *UnitOfWork) error {
		return uow.UpdateTask(task)
	}))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskCompleted, got.Status)
	require.True(t, got.Success)
	require.Equal(t, 10.0, got.Score)
	require.Equal(t, []string{"s3://shots/1.png"}, got.ScreenshotRefs)
}

func TestTasksForEvaluationOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := newEvaluation(time.Now().UTC())
	createEvaluation(t, s, e)

	require.NoError(t, s.Update(ctx, func(uow *UnitOfWork) error {
		for _, order := range []int{3, 1, 2} {
			if err := uow.CreateTask(newTask(e.ID, order)); err != nil {
				return err
			}
		}
		return nil
	}))

	tasks, err := s.TasksForEvaluation(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for i, task := range tasks {
		require.Equal(t, i+1, task.ExecutionOrder)
	}
}

func TestStatsQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	dayStart := now.Truncate(24 * time.Hour)

	completedToday := newEvaluation(now.Add(-2 * time.Hour))
	completedToday.Status = models.EvalCompleted
	completedToday.OverallScore = 80
	doneAt := now.Add(-time.Hour)
	completedToday.CompletedAt = &doneAt

	completedYesterday := newEvaluation(now.Add(-30 * time.Hour))
	completedYesterday.Status = models.EvalCompleted
	completedYesterday.OverallScore = 60
	yesterday := now.Add(-26 * time.Hour)
	completedYesterday.CompletedAt = &yesterday

	failedToday := newEvaluation(now.Add(-3 * time.Hour))
	failedToday.Status = models.EvalFailed
	failedAt := now.Add(-2 * time.Hour)
	failedToday.CompletedAt = &failedAt

	queued := newEvaluation(now)

	for _, e := range []*models.Evaluation{completedToday, completedYesterday, failedToday, queued} {
		createEvaluation(t, s, e)
	}

	counts, err := s.CountEvaluationsByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts[models.EvalCompleted])
	require.Equal(t, 1, counts[models.EvalFailed])
	require.Equal(t, 1, counts[models.EvalQueued])

	n, err := s.CountFinalizedSince(ctx, models.EvalCompleted, dayStart)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.CountFinalizedSince(ctx, models.EvalFailed, dayStart)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	scores, err := s.CompletedScores(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []float64{80, 60}, scores)
}
