package stepcontrol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeRejectsInvalidMaxSteps(t *testing.T) {
	c := NewController()
	require.Error(t, c.Initialize("t1", Params{MaxSteps: 0}))
	require.Error(t, c.Initialize("t1", Params{MaxSteps: -3}))
	require.NoError(t, c.Initialize("t1", Params{MaxSteps: 1}))
}

func TestOneShotAlwaysStopsAfterFirstStep(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Initialize("t1", Params{
		MaxSteps:             5,
		Mode:                 ModeOneShot,
		AllowEarlyCompletion: true,
		ConfidenceThreshold:  0.5,
	}))

	res := c.Advance("t1", "navigate", 0.99)
	require.False(t, res.ShouldContinue)
	require.False(t, res.EarlyCompletion)
	require.False(t, res.ReachedLimit)
	require.Equal(t, 1, res.CurrentStep)

	summary, ok := c.Complete("t1")
	require.True(t, ok)
	require.Equal(t, 1, summary.StepsCompleted)
	require.False(t, summary.EarlyCompletion)
}

func TestMultiStepStopsOnSingleHighConfidenceStep(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Initialize("t1", Params{
		MaxSteps:             5,
		Mode:                 ModeMultiStep,
		AllowEarlyCompletion: true,
		ConfidenceThreshold:  0.9,
	}))

	res := c.Advance("t1", "step", 0.5)
	require.True(t, res.ShouldContinue)

	res = c.Advance("t1", "step", 0.95)
	require.False(t, res.ShouldContinue)
	require.True(t, res.EarlyCompletion)

	summary, ok := c.Complete("t1")
	require.True(t, ok)
	require.Equal(t, 2, summary.StepsCompleted)
	require.True(t, summary.EarlyCompletion)
}

func TestMultiStepEarlyCompletionDisabled(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Initialize("t1", Params{
		MaxSteps:             3,
		Mode:                 ModeMultiStep,
		AllowEarlyCompletion: false,
		ConfidenceThreshold:  0.5,
	}))

	res := c.Advance("t1", "step", 0.99)
	require.True(t, res.ShouldContinue)
	res = c.Advance("t1", "step", 0.99)
	require.True(t, res.ShouldContinue)
	res = c.Advance("t1", "step", 0.99)
	require.False(t, res.ShouldContinue)
	require.True(t, res.ReachedLimit)
	require.False(t, res.EarlyCompletion)
}

func TestAutoConsistentConfidenceWindow(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Initialize("t1", Params{
		MaxSteps:             5,
		Mode:                 ModeAuto,
		AllowEarlyCompletion: true,
		ConfidenceThreshold:  0.9,
	}))

	confidences := []float64{0.5, 0.95, 0.96, 0.97}
	var last StepResult
	for _, conf := range confidences {
		last = c.Advance("t1", "step", conf)
	}

	// The trailing 3 confidences all clear the threshold on the 4th call.
	require.False(t, last.ShouldContinue)
	require.True(t, last.EarlyCompletion)
	require.False(t, last.ReachedLimit)
	require.Equal(t, 4, last.CurrentStep)

	summary, ok := c.Complete("t1")
	require.True(t, ok)
	require.Equal(t, 4, summary.StepsCompleted)
	require.True(t, summary.EarlyCompletion)
}

func TestAutoNeverStopsOnSingleStep(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Initialize("t1", Params{
		MaxSteps:             5,
		Mode:                 ModeAuto,
		AllowEarlyCompletion: true,
		ConfidenceThreshold:  0.9,
	}))

	res := c.Advance("t1", "step", 0.99)
	require.True(t, res.ShouldContinue)
	require.False(t, res.EarlyCompletion)
}

func TestAutoWindowBrokenByLowConfidence(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Initialize("t1", Params{
		MaxSteps:             10,
		Mode:                 ModeAuto,
		AllowEarlyCompletion: true,
		ConfidenceThreshold:  0.9,
	}))

	for _, conf := range []float64{0.95, 0.95, 0.3, 0.95} {
		res := c.Advance("t1", "step", conf)
		require.True(t, res.ShouldContinue, "confidence %v should not stop", conf)
	}
}

func TestStepCounterNeverExceedsMaxSteps(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Initialize("t1", Params{MaxSteps: 2, Mode: ModeMultiStep}))

	res := c.Advance("t1", "step", 0.1)
	require.True(t, res.ShouldContinue)

	res = c.Advance("t1", "step", 0.1)
	require.False(t, res.ShouldContinue)
	require.True(t, res.ReachedLimit)
	require.Equal(t, 2, res.CurrentStep)

	// Calls past the limit repeat the stop decision without recording.
	res = c.Advance("t1", "step", 0.1)
	require.False(t, res.ShouldContinue)
	require.True(t, res.ReachedLimit)
	require.Equal(t, 2, res.CurrentStep)

	status, ok := c.Status("t1")
	require.True(t, ok)
	require.Equal(t, 2, status.CurrentStep)
	require.Len(t, status.History, 2)
}

func TestAdvanceWithoutSession(t *testing.T) {
	c := NewController()
	res := c.Advance("missing", "step", 0.5)
	require.NotEmpty(t, res.Error)
	require.False(t, res.ShouldContinue)
}

func TestCompleteRemovesSession(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Initialize("t1", Params{MaxSteps: 3}))
	c.Advance("t1", "step", 0.5)

	_, ok := c.Complete("t1")
	require.True(t, ok)

	_, ok = c.Complete("t1")
	require.False(t, ok)
	_, ok = c.Status("t1")
	require.False(t, ok)
}

func TestStatusCopiesHistory(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Initialize("t1", Params{MaxSteps: 5, Mode: ModeMultiStep}))
	c.Advance("t1", "first", 0.4)

	status, ok := c.Status("t1")
	require.True(t, ok)
	status.History[0].Description = "mutated"

	status2, _ := c.Status("t1")
	require.Equal(t, "first", status2.History[0].Description)
}
