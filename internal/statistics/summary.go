package statistics

import (
	"context"
	"time"

	"github.com/webbench/benchd/internal/models"
	"github.com/webbench/benchd/internal/store"
)

// summaryConfidenceLevel is the confidence level for the score interval.
const summaryConfidenceLevel = 0.95

// Summary is the operational rollup returned by the statistics endpoint.
type Summary struct {
	RunningCount   int                `json:"running_count"`
	QueuedCount    int                `json:"queued_count"`
	CompletedToday int                `json:"completed_today"`
	FailedToday    int                `json:"failed_today"`
	AverageScore   float64            `json:"average_score"`
	ScoreCI        ConfidenceInterval `json:"score_ci"`
}

// BuildSummary assembles the rollup from store queries. "Today" is the UTC
// day containing now.
func BuildSummary(ctx context.Context, st *store.Store, now time.Time) (Summary, error) {
	counts, err := st.CountEvaluationsByStatus(ctx)
	if err != nil {
		return Summary{}, err
	}

	dayStart := now.UTC().Truncate(24 * time.Hour)
	completedToday, err := st.CountFinalizedSince(ctx, models.EvalCompleted, dayStart)
	if err != nil {
		return Summary{}, err
	}
	failedToday, err := st.CountFinalizedSince(ctx, models.EvalFailed, dayStart)
	if err != nil {
		return Summary{}, err
	}

	scores, err := st.CompletedScores(ctx)
	if err != nil {
		return Summary{}, err
	}
	ci := BootstrapCI(scores, summaryConfidenceLevel)

	return Summary{
		RunningCount:   counts[models.EvalRunning],
		QueuedCount:    counts[models.EvalQueued],
		CompletedToday: completedToday,
		FailedToday:    failedToday,
		AverageScore:   ci.Mean,
		ScoreCI:        ci,
	}, nil
}
