// Package conflict wraps persistent-store operations that may race against
// concurrent writers of the same versioned record, retrying on optimistic
// version conflicts with exponential backoff.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/webbench/benchd/internal/store"
)

const (
	// defaultBaseDelay is the first backoff interval; go-retry doubles it
	// per attempt, giving the 100ms/200ms schedule.
	defaultBaseDelay = 100 * time.Millisecond

	// defaultMaxRetries is the retry budget after the first attempt, for 3
	// attempts in total.
	defaultMaxRetries = 2
)

// Executor retries version-conflicted operations. Any error other than
// store.ErrVersionConflict propagates immediately without retry.
type Executor struct {
	logger     *slog.Logger
	baseDelay  time.Duration
	maxRetries uint64
}

// Option configures an Executor.
type Option func(*Executor)

// WithBaseDelay overrides the first backoff interval.
func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) {
		e.baseDelay = d
	}
}

// NewExecutor creates an Executor with the standard 3-attempt budget.
func NewExecutor(logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		logger:     logger,
		baseDelay:  defaultBaseDelay,
		maxRetries: defaultMaxRetries,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes op, retrying on version conflicts until the attempt budget
// is exhausted. The description names the operation in logs and in the
// wrapped error returned on exhaustion.
func (e *Executor) Run(ctx context.Context, description string, op func(ctx context.Context) error) error {
	attempt := 0
	b := retry.WithMaxRetries(e.maxRetries, retry.NewExponential(e.baseDelay))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if errors.Is(err, store.ErrVersionConflict) {
			e.logger.Warn("optimistic conflict, retrying",
				"operation", description, "attempt", attempt)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", description, err)
	}
	return nil
}
