// Package models defines the persistent and wire-level data types for
// benchmark evaluations and their tasks.
package models

import "time"

// EvaluationStatus represents the lifecycle state of an evaluation.
type EvaluationStatus string

const (
	EvalQueued    EvaluationStatus = "QUEUED"
	EvalRunning   EvaluationStatus = "RUNNING"
	EvalCompleted EvaluationStatus = "COMPLETED"
	EvalFailed    EvaluationStatus = "FAILED"
	EvalCancelled EvaluationStatus = "CANCELLED"
)

// Terminal reports whether the status is absorbing: once an evaluation
// reaches a terminal status it is never mutated again.
func (s EvaluationStatus) Terminal() bool {
	switch s {
	case EvalCompleted, EvalFailed, EvalCancelled:
		return true
	}
	return false
}

// Evaluation is one benchmark run of one agent configuration.
type Evaluation struct {
	ID               string           `json:"id"`
	Model            string           `json:"model"`
	Provider         string           `json:"provider"`
	Benchmark        string           `json:"benchmark"`
	BenchmarkVersion string           `json:"benchmark_version,omitempty"`
	Status           EvaluationStatus `json:"status"`
	TotalTasks       int              `json:"total_tasks"`
	CompletedTasks   int              `json:"completed_tasks"`
	SuccessfulTasks  int              `json:"successful_tasks"`
	ProgressPercent  int              `json:"progress_percent"`
	Initiator        string           `json:"initiator,omitempty"`
	Config           string           `json:"config,omitempty"`
	Environment      string           `json:"environment,omitempty"`
	OverallScore     float64          `json:"overall_score"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`

	// Version is the optimistic concurrency token. Every persisted update
	// increments it; a stale write surfaces as a version conflict.
	Version int64 `json:"-"`
}

// Snapshot builds the progress-sink payload for the evaluation's current state.
func (e *Evaluation) Snapshot(now time.Time) StatusSnapshot {
	return StatusSnapshot{
		EvaluationID:    e.ID,
		Status:          e.Status,
		ProgressPercent: e.ProgressPercent,
		CompletedTasks:  e.CompletedTasks,
		TotalTasks:      e.TotalTasks,
		SuccessfulTasks: e.SuccessfulTasks,
		OverallScore:    e.OverallScore,
		ErrorMessage:    e.ErrorMessage,
		Timestamp:       now,
	}
}

// StatusSnapshot is the point-in-time progress payload published to the
// progress sink and returned by the status endpoint.
type StatusSnapshot struct {
	EvaluationID    string           `json:"evaluation_id"`
	Status          EvaluationStatus `json:"status"`
	ProgressPercent int              `json:"progress_percent"`
	CompletedTasks  int              `json:"completed_tasks"`
	TotalTasks      int              `json:"total_tasks"`
	SuccessfulTasks int              `json:"successful_tasks"`
	OverallScore    float64          `json:"overall_score"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}
