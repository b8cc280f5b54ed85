package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/webbench/benchd/internal/models"
)

const taskColumns = `id, evaluation_id, execution_order, status, name, prompt,
	expected_result, max_score, category, difficulty, tags, timeout_seconds,
	retry_count, max_retries, result, success, score, error_message,
	screenshot_refs, created_at, updated_at, version`

// CreateTask inserts a new task row. Version starts at 1.
func (u *UnitOfWork) CreateTask(t *models.Task) error {
	t.Version = 1
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	refs, err := json.Marshal(t.ScreenshotRefs)
	if err != nil {
		return fmt.Errorf("marshal screenshot refs: %w", err)
	}

	_, err = u.tx.ExecContext(u.ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EvaluationID, t.ExecutionOrder, t.Status, t.Name, t.Prompt,
		t.ExpectedResult, t.MaxScore, t.Category, t.Difficulty, string(tags), t.TimeoutSec,
		t.RetryCount, t.MaxRetries, t.Result, t.Success, t.Score, t.ErrorMessage,
		string(refs), t.CreatedAt, t.UpdatedAt, t.Version,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask loads a task by id.
func (u *UnitOfWork) GetTask(id string) (*models.Task, error) {
	row := u.tx.QueryRowContext(u.ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// UpdateTask writes every mutable task field, guarded by the version the
// caller read. A stale version returns ErrVersionConflict.
func (u *UnitOfWork) UpdateTask(t *models.Task) error {
	refs, err := json.Marshal(t.ScreenshotRefs)
	if err != nil {
		return fmt.Errorf("marshal screenshot refs: %w", err)
	}

	t.UpdatedAt = time.Now().UTC()
	res, err := u.tx.ExecContext(u.ctx,
		`UPDATE tasks SET status = ?, retry_count = ?, result = ?, success = ?,
			score = ?, error_message = ?, screenshot_refs = ?, updated_at = ?,
			version = version + 1
		 WHERE id = ? AND version = ?`,
		t.Status, t.RetryCount, t.Result, t.Success,
		t.Score, t.ErrorMessage, string(refs), t.UpdatedAt,
		t.ID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := u.tx.QueryRowContext(u.ctx, `SELECT 1 FROM tasks WHERE id = ?`, t.ID).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("check task exists: %w", err)
		}
		return ErrVersionConflict
	}
	t.Version++
	return nil
}

// TasksForEvaluation returns the evaluation's tasks in execution order.
func (u *UnitOfWork) TasksForEvaluation(evaluationID string) ([]models.Task, error) {
	rows, err := u.tx.QueryContext(u.ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE evaluation_id = ? ORDER BY execution_order ASC`,
		evaluationID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// GetTask is a single-read convenience wrapper over View.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var t *models.Task
	err := s.View(ctx, func(uow *UnitOfWork) error {
		var err error
		t, err = uow.GetTask(id)
		return err
	})
	return t, err
}

// TasksForEvaluation is a single-read convenience wrapper over View.
func (s *Store) TasksForEvaluation(ctx context.Context, evaluationID string) ([]models.Task, error) {
	var tasks []models.Task
	err := s.View(ctx, func(uow *UnitOfWork) error {
		var err error
		tasks, err = uow.TasksForEvaluation(evaluationID)
		return err
	})
	return tasks, err
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var tags, refs string

	err := row.Scan(
		&t.ID, &t.EvaluationID, &t.ExecutionOrder, &t.Status, &t.Name, &t.Prompt,
		&t.ExpectedResult, &t.MaxScore, &t.Category, &t.Difficulty, &tags, &t.TimeoutSec,
		&t.RetryCount, &t.MaxRetries, &t.Result, &t.Success, &t.Score, &t.ErrorMessage,
		&refs, &t.CreatedAt, &t.UpdatedAt, &t.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if refs != "" {
		if err := json.Unmarshal([]byte(refs), &t.ScreenshotRefs); err != nil {
			return nil, fmt.Errorf("unmarshal screenshot refs: %w", err)
		}
	}
	return t, nil
}
