package automation

import (
	"context"
	"fmt"
)

// ScriptedOutcome describes what the mock should do for one task.
type ScriptedOutcome struct {
	// Result is the text result to return. Empty means a default echo of
	// the instruction.
	Result string
	// Err, when set, is returned as the automation failure.
	Err error
	// Confidences are reported step by step; when exhausted, the last value
	// repeats until step control stops the run. Defaults to a rising ramp.
	Confidences []float64
	// ScreenshotRefs are attached to the result.
	ScreenshotRefs []string
}

// MockExecutor is a scriptable in-process stand-in for the browser driver,
// used by tests and by the binary's mock mode. It drives the step reporter
// the way a real driver would.
type MockExecutor struct {
	outcomes map[string]ScriptedOutcome
}

// NewMockExecutor creates a mock with no scripted outcomes; every task gets
// the default behavior.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{outcomes: make(map[string]ScriptedOutcome)}
}

// Script sets the outcome for tasks whose name or id matches key. Task name
// takes precedence over id so catalog-driven tests can script by name.
func (m *MockExecutor) Script(key string, outcome ScriptedOutcome) {
	m.outcomes[key] = outcome
}

var defaultConfidences = []float64{0.4, 0.6, 0.8, 0.92, 0.95}

func (m *MockExecutor) Execute(ctx context.Context, req *Request) (*Result, error) {
	outcome, ok := m.outcomes[req.TaskName]
	if !ok {
		outcome = m.outcomes[req.TaskID]
	}

	if outcome.Err != nil {
		return nil, outcome.Err
	}

	confidences := outcome.Confidences
	if len(confidences) == 0 {
		confidences = defaultConfidences
	}

	steps := 0
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conf := confidences[len(confidences)-1]
		if i < len(confidences) {
			conf = confidences[i]
		}

		res := req.Steps.Advance(req.TaskID, fmt.Sprintf("step %d", i+1), conf)
		if res.Error != "" {
			return nil, fmt.Errorf("step control: %s", res.Error)
		}
		steps = res.CurrentStep
		if !res.ShouldContinue {
			break
		}
	}

	text := outcome.Result
	if text == "" {
		text = fmt.Sprintf("Completed: %s", req.Instruction)
	}

	return &Result{
		TextResult:     text,
		ScreenshotRefs: outcome.ScreenshotRefs,
		StepsTaken:     steps,
	}, nil
}
