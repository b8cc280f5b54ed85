package store

import (
	"context"
	"fmt"
	"time"

	"github.com/webbench/benchd/internal/models"
)

// CountEvaluationsByStatus returns the number of evaluations per status.
func (s *Store) CountEvaluationsByStatus(ctx context.Context) (map[models.EvaluationStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM evaluations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count evaluations: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.EvaluationStatus]int)
	for rows.Next() {
		var status models.EvaluationStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CountFinalizedSince returns how many evaluations reached the given
// terminal status at or after the cutoff.
func (s *Store) CountFinalizedSince(ctx context.Context, status models.EvaluationStatus, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM evaluations WHERE status = ? AND completed_at >= ?`,
		status, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count finalized evaluations: %w", err)
	}
	return n, nil
}

// CompletedScores returns the overall scores of all COMPLETED evaluations.
func (s *Store) CompletedScores(ctx context.Context) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT overall_score FROM evaluations WHERE status = ?`, models.EvalCompleted)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, v)
	}
	return scores, rows.Err()
}
