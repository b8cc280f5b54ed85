// Package stepcontrol bounds and governs the step sequence of a single
// task execution: it counts reported steps, enforces the step limit, and
// decides when confidence justifies stopping early.
package stepcontrol

import (
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Mode selects how a task's step sequence terminates.
type Mode string

const (
	// ModeOneShot stops after the first step regardless of confidence.
	ModeOneShot Mode = "ONE_SHOT"
	// ModeMultiStep runs until the step limit, with an optional single-step
	// confidence exit.
	ModeMultiStep Mode = "MULTI_STEP"
	// ModeAuto runs until the step limit, stopping early once the trailing
	// steps show consistently high confidence.
	ModeAuto Mode = "AUTO"
)

// consistencyWindow is the number of trailing steps ModeAuto inspects.
const consistencyWindow = 3

// Params configures a step-control session.
type Params struct {
	MaxSteps             int     `json:"max_steps"`
	Mode                 Mode    `json:"mode"`
	AllowEarlyCompletion bool    `json:"allow_early_completion"`
	ConfidenceThreshold  float64 `json:"confidence_threshold"`
}

// StepRecord is one entry of a session's step history.
type StepRecord struct {
	Step        int       `json:"step"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

// StepResult is the decision returned for one reported step. A missing
// session is signalled through the Error field, not a Go error, so drivers
// treat it the same way as any other stop decision.
type StepResult struct {
	CurrentStep     int     `json:"current_step"`
	MaxSteps        int     `json:"max_steps"`
	ShouldContinue  bool    `json:"should_continue"`
	ReachedLimit    bool    `json:"reached_limit"`
	EarlyCompletion bool    `json:"early_completion"`
	Confidence      float64 `json:"confidence"`
	Error           string  `json:"error,omitempty"`
}

// StepStatus is a read-only view of a live session.
type StepStatus struct {
	TaskID          string       `json:"task_id"`
	CurrentStep     int          `json:"current_step"`
	MaxSteps        int          `json:"max_steps"`
	Mode            Mode         `json:"mode"`
	EarlyCompletion bool         `json:"early_completion"`
	History         []StepRecord `json:"history"`
}

// ExecutionSummary is produced when a session completes and its context is
// discarded.
type ExecutionSummary struct {
	StepsCompleted  int          `json:"steps_completed"`
	MaxSteps        int          `json:"max_steps"`
	EarlyCompletion bool         `json:"early_completion"`
	History         []StepRecord `json:"history"`
}

type session struct {
	params          Params
	currentStep     int
	history         []StepRecord
	earlyCompletion bool
}

// Controller tracks step-control sessions keyed by task id. Sessions are
// single-writer (one task execution each); the map itself is safe for
// concurrent use across tasks.
type Controller struct {
	sessions *xsync.MapOf[string, *session]
	clock    func() time.Time
}

// NewController creates an empty Controller.
func NewController() *Controller {
	return &Controller{
		sessions: xsync.NewMapOf[string, *session](),
		clock:    time.Now,
	}
}

// Initialize registers a fresh session for taskID, replacing any stale one.
func (c *Controller) Initialize(taskID string, p Params) error {
	if p.MaxSteps < 1 {
		return fmt.Errorf("max steps must be at least 1, got %d", p.MaxSteps)
	}
	if p.Mode == "" {
		p.Mode = ModeMultiStep
	}
	c.sessions.Store(taskID, &session{params: p})
	return nil
}

// Advance records one executed step and decides whether execution should
// continue. The step counter never exceeds MaxSteps: a call past the limit
// repeats the stop decision without recording anything.
func (c *Controller) Advance(taskID, description string, confidence float64) StepResult {
	s, ok := c.sessions.Load(taskID)
	if !ok {
		return StepResult{Error: fmt.Sprintf("no step-control session for task %s", taskID)}
	}

	if s.currentStep >= s.params.MaxSteps {
		return StepResult{
			CurrentStep:  s.currentStep,
			MaxSteps:     s.params.MaxSteps,
			ReachedLimit: true,
			Confidence:   confidence,
		}
	}

	s.currentStep++
	s.history = append(s.history, StepRecord{
		Step:        s.currentStep,
		Description: description,
		Confidence:  confidence,
		Timestamp:   c.clock(),
	})

	res := StepResult{
		CurrentStep: s.currentStep,
		MaxSteps:    s.params.MaxSteps,
		Confidence:  confidence,
	}

	switch {
	case s.currentStep >= s.params.MaxSteps:
		res.ReachedLimit = true
	case s.params.Mode == ModeOneShot:
		// Single step is the mode's natural end, not an early completion.
	case c.earlyCompletionTriggered(s, confidence):
		res.EarlyCompletion = true
		s.earlyCompletion = true
	default:
		res.ShouldContinue = true
	}

	return res
}

// earlyCompletionTriggered evaluates the confidence-based exit rules.
// MULTI_STEP exits on a single step at or above the threshold; AUTO
// requires the trailing min(3, n) steps to all clear the threshold, and
// never exits on a single recorded step.
func (c *Controller) earlyCompletionTriggered(s *session, confidence float64) bool {
	if !s.params.AllowEarlyCompletion {
		return false
	}
	switch s.params.Mode {
	case ModeMultiStep:
		return confidence >= s.params.ConfidenceThreshold
	case ModeAuto:
		n := len(s.history)
		if n < 2 {
			return false
		}
		window := consistencyWindow
		if n < window {
			window = n
		}
		for _, rec := range s.history[n-window:] {
			if rec.Confidence < s.params.ConfidenceThreshold {
				return false
			}
		}
		return true
	}
	return false
}

// Status returns a read-only view of the session for taskID.
func (c *Controller) Status(taskID string) (StepStatus, bool) {
	s, ok := c.sessions.Load(taskID)
	if !ok {
		return StepStatus{}, false
	}
	history := make([]StepRecord, len(s.history))
	copy(history, s.history)
	return StepStatus{
		TaskID:          taskID,
		CurrentStep:     s.currentStep,
		MaxSteps:        s.params.MaxSteps,
		Mode:            s.params.Mode,
		EarlyCompletion: s.earlyCompletion,
		History:         history,
	}, true
}

// Complete removes the session for taskID and returns its summary.
func (c *Controller) Complete(taskID string) (ExecutionSummary, bool) {
	s, ok := c.sessions.LoadAndDelete(taskID)
	if !ok {
		return ExecutionSummary{}, false
	}
	return ExecutionSummary{
		StepsCompleted:  s.currentStep,
		MaxSteps:        s.params.MaxSteps,
		EarlyCompletion: s.earlyCompletion,
		History:         s.history,
	}, true
}
