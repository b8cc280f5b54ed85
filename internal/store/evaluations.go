package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/webbench/benchd/internal/models"
)

const evaluationColumns = `id, model, provider, benchmark, benchmark_version, status,
	total_tasks, completed_tasks, successful_tasks, progress_percent,
	initiator, config, environment, overall_score, error_message,
	created_at, started_at, completed_at, version`

// CreateEvaluation inserts a new evaluation row. The caller supplies the id
// and CreatedAt; Version starts at 1.
func (u *UnitOfWork) CreateEvaluation(e *models.Evaluation) error {
	e.Version = 1
	_, err := u.tx.ExecContext(u.ctx,
		`INSERT INTO evaluations (`+evaluationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Model, e.Provider, e.Benchmark, e.BenchmarkVersion, e.Status,
		e.TotalTasks, e.CompletedTasks, e.SuccessfulTasks, e.ProgressPercent,
		e.Initiator, e.Config, e.Environment, e.OverallScore, e.ErrorMessage,
		e.CreatedAt, nullableTime(e.StartedAt), nullableTime(e.CompletedAt), e.Version,
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// GetEvaluation loads an evaluation by id.
func (u *UnitOfWork) GetEvaluation(id string) (*models.Evaluation, error) {
	row := u.tx.QueryRowContext(u.ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE id = ?`, id)
	return scanEvaluation(row)
}

// UpdateEvaluation writes every mutable evaluation field, guarded by the
// version the caller read. A stale version returns ErrVersionConflict; on
// success the in-memory Version is bumped to match the row.
func (u *UnitOfWork) UpdateEvaluation(e *models.Evaluation) error {
	res, err := u.tx.ExecContext(u.ctx,
		`UPDATE evaluations SET status = ?, total_tasks = ?, completed_tasks = ?,
			successful_tasks = ?, progress_percent = ?, overall_score = ?,
			error_message = ?, started_at = ?, completed_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		e.Status, e.TotalTasks, e.CompletedTasks,
		e.SuccessfulTasks, e.ProgressPercent, e.OverallScore,
		e.ErrorMessage, nullableTime(e.StartedAt), nullableTime(e.CompletedAt),
		e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing row from a concurrent writer.
		var exists int
		err := u.tx.QueryRowContext(u.ctx,
			`SELECT 1 FROM evaluations WHERE id = ?`, e.ID).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrEvaluationNotFound
		}
		if err != nil {
			return fmt.Errorf("check evaluation exists: %w", err)
		}
		return ErrVersionConflict
	}
	e.Version++
	return nil
}

// EvaluationsByStatus returns evaluations in the given status, oldest first.
func (u *UnitOfWork) EvaluationsByStatus(status models.EvaluationStatus) ([]models.Evaluation, error) {
	rows, err := u.tx.QueryContext(u.ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE status = ? ORDER BY created_at ASC`,
		status)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	var evals []models.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, *e)
	}
	return evals, rows.Err()
}

// GetEvaluation is a single-read convenience wrapper over View.
func (s *Store) GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error) {
	var e *models.Evaluation
	err := s.View(ctx, func(uow *UnitOfWork) error {
		var err error
		e, err = uow.GetEvaluation(id)
		return err
	})
	return e, err
}

// EvaluationsByStatus is a single-read convenience wrapper over View.
func (s *Store) EvaluationsByStatus(ctx context.Context, status models.EvaluationStatus) ([]models.Evaluation, error) {
	var evals []models.Evaluation
	err := s.View(ctx, func(uow *UnitOfWork) error {
		var err error
		evals, err = uow.EvaluationsByStatus(status)
		return err
	})
	return evals, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (*models.Evaluation, error) {
	e := &models.Evaluation{}
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&e.ID, &e.Model, &e.Provider, &e.Benchmark, &e.BenchmarkVersion, &e.Status,
		&e.TotalTasks, &e.CompletedTasks, &e.SuccessfulTasks, &e.ProgressPercent,
		&e.Initiator, &e.Config, &e.Environment, &e.OverallScore, &e.ErrorMessage,
		&e.CreatedAt, &startedAt, &completedAt, &e.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrEvaluationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan evaluation: %w", err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		e.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	return e, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
