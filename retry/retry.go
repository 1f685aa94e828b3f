// Package retry repeats an operation with exponential backoff under an
// attempt and time budget. It is used for polling, never for hiding failed
// requests: only errors the caller marks as retryable are repeated.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned, wrapping the last error, when the budget runs out.
var ErrExhausted = errors.New("retry: budget exhausted")

// Config is a polling budget.
type Config struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`  // attempts, the first one included
	InitialDelay time.Duration `mapstructure:"initial_delay"` // wait before the second attempt
	MaxDelay     time.Duration `mapstructure:"max_delay"`     // upper bound for any wait
	Multiplier   float64       `mapstructure:"multiplier"`    // growth factor between waits
	Timeout      time.Duration `mapstructure:"timeout"`       // overall budget, 0 for none
}

// DefaultConfig polls for a little under a minute.
var DefaultConfig = Config{
	MaxAttempts:  10,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   1.5,
}

// Validate checks that the budget allows at least one attempt.
func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return fmt.Errorf("retry: max attempts must be at least 1, got %d", c.MaxAttempts)
	case c.InitialDelay < 0 || c.MaxDelay < 0 || c.Timeout < 0:
		return errors.New("retry: delays must not be negative")
	case c.Multiplier < 1:
		return fmt.Errorf("retry: multiplier must be at least 1, got %v", c.Multiplier)
	}
	return nil
}

// Delay returns the wait after the given zero-based attempt.
func (c Config) Delay(attempt int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= c.Multiplier
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && time.Duration(d) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// ShouldRetry reports whether err is worth another attempt.
type ShouldRetry func(error) bool

// Do calls fn until it succeeds, fails with an error shouldRetry rejects, or
// the budget runs out. The result of the last attempt is returned in every
// case, so a poller can still inspect the last observed value.
func Do[T any](
	ctx context.Context,
	cfg Config,
	shouldRetry ShouldRetry,
	fn func(ctx context.Context, attempt int) (T, error),
) (T, error) {
	var last T
	if err := cfg.Validate(); err != nil {
		return last, err
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, budgetError(err, lastErr)
		}

		result, err := fn(ctx, attempt)
		last = result
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return last, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return last, budgetError(ctx.Err(), lastErr)
		}
	}

	return last, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.MaxAttempts, lastErr)
}

// budgetError reports a cancelled or timed out context. A deadline that came
// from the budget itself counts as exhaustion.
func budgetError(ctxErr, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrExhausted, lastErr)
	}
	return fmt.Errorf("%w: %w", ctxErr, lastErr)
}
