package resilience

import (
	"context"
	"time"
)

const (
	DefaultRetryMaxAttempts   = 3
	DefaultRetryInitialDelay  = 200 * time.Millisecond
	DefaultRetryMaxDelay      = 2 * time.Second
	DefaultRetryBackoffFactor = 2.0
)

// RetryConfig configures exponential backoff.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors func(error) bool
	// OnRetry is called before sleeping ahead of attempt n+1.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   DefaultRetryMaxAttempts,
		InitialDelay:  DefaultRetryInitialDelay,
		MaxDelay:      DefaultRetryMaxDelay,
		BackoffFactor: DefaultRetryBackoffFactor,
		RetryableErrors: func(err error) bool {
			return false
		},
	}
}

// NoRetry runs the function exactly once.
func NoRetry() *RetryConfig {
	return &RetryConfig{MaxAttempts: 1}
}

// Retry executes a function with retry logic
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes fn until it succeeds, returns a non-retryable
// error, or runs out of attempts. The last error is returned unwrapped so
// callers can still errors.As into its concrete type.
func RetryWithResult[T any](ctx context.Context, config *RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := config.InitialDelay
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if config.RetryableErrors == nil || !config.RetryableErrors(err) {
			return zero, err
		}

		if attempt < attempts-1 {
			if config.OnRetry != nil {
				config.OnRetry(attempt+1, err)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, lastErr
			case <-timer.C:
			}

			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if config.MaxDelay > 0 && delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
	}

	return zero, lastErr
}
