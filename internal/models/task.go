package models

import "time"

// TaskStatus represents the lifecycle state of a single task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
)

// Terminal reports whether the task has finished, successfully or not.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is one ordered, scripted interaction within an evaluation.
// ExecutionOrder is 1-based and dense within the owning evaluation; a task
// only starts after every lower-order task has reached a terminal state.
type Task struct {
	ID             string     `json:"id"`
	EvaluationID   string     `json:"evaluation_id"`
	ExecutionOrder int        `json:"execution_order"`
	Status         TaskStatus `json:"status"`
	Name           string     `json:"name"`
	Prompt         string     `json:"prompt"`
	ExpectedResult string     `json:"expected_result,omitempty"`
	MaxScore       float64    `json:"max_score"`
	Category       string     `json:"category,omitempty"`
	Difficulty     string     `json:"difficulty,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	TimeoutSec     int        `json:"timeout_seconds"`
	RetryCount     int        `json:"retry_count"`
	MaxRetries     int        `json:"max_retries"`
	Result         string     `json:"result,omitempty"`
	Success        bool       `json:"success"`
	Score          float64    `json:"score"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ScreenshotRefs []string   `json:"screenshot_refs,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Version is the optimistic concurrency token, see Evaluation.Version.
	Version int64 `json:"-"`
}

// TaskTemplate is one entry of a benchmark's scripted task list. Templates
// are authored externally (benchmark catalog files) and materialized into
// Tasks when an evaluation is created.
type TaskTemplate struct {
	Name           string   `yaml:"name" json:"name"`
	Prompt         string   `yaml:"prompt" json:"prompt"`
	ExpectedResult string   `yaml:"expected_result,omitempty" json:"expected_result,omitempty"`
	MaxScore       float64  `yaml:"max_score" json:"max_score"`
	Category       string   `yaml:"category,omitempty" json:"category,omitempty"`
	Difficulty     string   `yaml:"difficulty,omitempty" json:"difficulty,omitempty"`
	Tags           []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	TimeoutSec     int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	MaxRetries     int      `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}
