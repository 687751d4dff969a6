package retry

import (
	"context"
	"time"
)

// Do executes fn with retry logic.
// Only errors IsTransient accepts are retried. Backoff waits end early when
// ctx is cancelled. Returns the result on success, or the last error if all
// attempts fail.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := max(cfg.MaxAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, err
		}

		// no sleep after the last attempt
		if attempt < attempts-1 {
			delay := cfg.Delay(attempt)
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt+1, err, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return zero, lastErr
}

// Run is Do for functions that return only an error.
func Run(ctx context.Context, cfg Config, fn func() error) error {
	_, err := Do(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
