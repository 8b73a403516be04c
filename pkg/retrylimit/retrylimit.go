// Package retrylimit provides the retry loop used to (re)establish long-lived
// connections: a pluggable backoff, a fatal error type that stops retrying
// immediately, and rate-limited warnings so a flapping endpoint does not flood
// the log.
//
// Example usage:
//
//	err := retrylimit.WithRetryConfig(ctx, func(attempt int) error {
//	    return dial()
//	}, retrylimit.RetryConfig{
//	    Backoff:   retrylimit.Linear(10*time.Second, time.Minute),
//	    WarnFirst: 1,
//	    Warn:      func(attempt int, err error) { log.Println(err) },
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// Errors
// =============================================================================

// FatalError wraps errors that should stop retries immediately.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Fatal marks err as non-retryable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err (or anything it wraps) is a FatalError.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// =============================================================================
// Backoff
// =============================================================================

// Backoff returns the delay before retrying after the given failed attempt.
// Attempts are numbered from 1.
type Backoff func(attempt int) time.Duration

// Linear waits step*attempt, never more than max.
func Linear(step, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := step * time.Duration(attempt)
		if d > max || d < 0 {
			return max
		}
		return d
	}
}

// =============================================================================
// Retry
// =============================================================================

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int                                               // 0 = unlimited
	Backoff     Backoff                                           // nil = Linear(time.Second, time.Minute)
	OnRetry     func(attempt int, err error, delay time.Duration) // called on every retryable failure
	WarnFirst   int                                               // how many failures reach Warn (0 = none)
	Warn        func(attempt int, err error)
}

// WithRetryConfig calls fn until it succeeds. Stops retrying if:
//   - fn returns nil (success)
//   - fn returns a FatalError (returned as is)
//   - ctx is cancelled while waiting
//   - MaxAttempts is reached
func WithRetryConfig(ctx context.Context, fn func(attempt int) error, cfg RetryConfig) error {
	if cfg.Backoff == nil {
		cfg.Backoff = Linear(time.Second, time.Minute)
	}

	warn := rate.Sometimes{First: cfg.WarnFirst}

	for attempt := 1; cfg.MaxAttempts == 0 || attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsFatal(err) {
			return err
		}

		if cfg.Warn != nil && cfg.WarnFirst > 0 {
			warn.Do(func() { cfg.Warn(attempt, err) })
		}

		delay := cfg.Backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("max attempts (%d) exceeded", cfg.MaxAttempts)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
