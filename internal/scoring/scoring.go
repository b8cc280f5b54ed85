// Package scoring implements the result-matching and score-aggregation
// policy for task outcomes.
package scoring

import (
	"strings"

	"github.com/webbench/benchd/internal/models"
)

// EvaluateResult matches a task's produced text against its expected
// result using a case-insensitive substring policy. An empty expectation
// means the task has no acceptance criteria and counts as successful.
// A successful match earns the task's full max score.
func EvaluateResult(result, expected string, maxScore float64) (bool, float64) {
	if strings.TrimSpace(expected) == "" {
		return true, maxScore
	}
	if containsText(result, expected) {
		return true, maxScore
	}
	return false, 0
}

// OverallScore aggregates task scores into the evaluation's 0-100 overall
// score, weighted by each task's max score.
func OverallScore(tasks []models.Task) float64 {
	totalMax := 0.0
	totalScore := 0.0
	for _, t := range tasks {
		totalMax += t.MaxScore
		totalScore += t.Score
	}
	if totalMax == 0 {
		return 0
	}
	return totalScore * 100 / totalMax
}

// SuccessRate returns the fraction of tasks marked successful.
func SuccessRate(tasks []models.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	succeeded := 0
	for _, t := range tasks {
		if t.Success {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(tasks))
}

func containsText(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
