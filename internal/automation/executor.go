// Package automation defines the boundary to the external browser
// automation driver that performs a task's web interactions.
package automation

import (
	"context"

	"github.com/webbench/benchd/internal/stepcontrol"
)

// StepReporter is how a driver reports progress and learns whether to keep
// going. stepcontrol.Controller satisfies it.
type StepReporter interface {
	Advance(taskID, description string, confidence float64) stepcontrol.StepResult
}

// Request carries everything a driver needs for one task execution.
// Correlation identifiers travel explicitly in the request, never as
// ambient state.
type Request struct {
	TaskID       string
	TaskName     string
	EvaluationID string
	SessionID    string
	Instruction  string
	TimeoutSec   int
	StepParams   stepcontrol.Params

	// Steps must be consulted after every interaction step; the driver
	// stops as soon as a result reports ShouldContinue == false.
	Steps StepReporter
}

// Result is what a driver produced for one task execution.
type Result struct {
	TextResult     string
	ScreenshotRefs []string
	StepsTaken     int
}

// Executor runs one task's instruction against a live browser session.
// Implementations may block for the full duration of the interaction and
// must honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req *Request) (*Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}
