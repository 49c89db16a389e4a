package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usama216/shipping-market-sub004/pkg/logging"
)

var errTransient = errors.New("connection reset")

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     attempts,
		InitialDelay:    time.Millisecond,
		MaxDelay:        2 * time.Millisecond,
		BackoffFactor:   2,
		RetryableErrors: func(err error) bool { return errors.Is(err, errTransient) },
	}
}

func TestRetryWithResult_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastRetry(3), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResult_StopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("invalid postal code")
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(5), func() (int, error) {
		calls++
		return 0, permanent
	})

	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_ReturnsLastErrorWhenExhausted(t *testing.T) {
	var retried []int
	cfg := fastRetry(2)
	cfg.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	_, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		return 0, errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, []int{1}, retried)
}

func TestNoRetry_RunsOnce(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), NoRetry(), func() error {
		calls++
		return errTransient
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("fedex")
	cfg.FailureThreshold = 2

	var transitions []gobreaker.State
	cb := NewCircuitBreaker(cfg, logging.NewNop(), func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	})

	for i := 0; i < 2; i++ {
		_, err := Call(context.Background(), cb, func() (int, error) { return 0, errTransient })
		require.ErrorIs(t, err, errTransient)
	}

	_, err := Call(context.Background(), cb, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	rejected := errors.New("address rejected")
	cfg := DefaultCircuitBreakerConfig("ups")
	cfg.FailureThreshold = 1
	cfg.IsFailure = func(err error) bool { return !errors.Is(err, rejected) }
	cb := NewCircuitBreaker(cfg, logging.NewNop())

	for i := 0; i < 3; i++ {
		_, err := Call(context.Background(), cb, func() (int, error) { return 0, rejected })
		assert.ErrorIs(t, err, rejected)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerRegistry_ReusesBreakers(t *testing.T) {
	registry := NewCircuitBreakerRegistry(logging.NewNop())

	a := registry.Get("dhl")
	b := registry.Get("dhl")
	registry.Get("fedex")

	assert.Same(t, a, b)
	status := registry.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "dhl", status[0].Name)
	assert.Equal(t, "closed", status[0].State)
}

func TestDefaultRetryConfig_RetriesOnlyWhatTheCallerAllows(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, DefaultRetryMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, DefaultRetryInitialDelay, cfg.InitialDelay)

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)

	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	cfg.RetryableErrors = func(err error) bool { return errors.Is(err, errTransient) }
	calls = 0
	_ = Retry(context.Background(), cfg, func() error {
		calls++
		return errTransient
	})
	assert.Equal(t, DefaultRetryMaxAttempts, calls)
}

func TestCircuitBreaker_ExecuteTracksCounts(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("myus"), logging.NewNop())

	result, err := cb.Execute(context.Background(), func() (interface{}, error) { return "label", nil })
	require.NoError(t, err)
	assert.Equal(t, "label", result)

	_, err = cb.Execute(context.Background(), func() (interface{}, error) { return nil, errTransient })
	assert.ErrorIs(t, err, errTransient)

	counts := cb.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
}

func TestCircuitBreakerRegistry_StatusReportsCounts(t *testing.T) {
	registry := NewCircuitBreakerRegistry(logging.NewNop())
	cb := registry.Get("dhl")
	_, _ = Call(context.Background(), cb, func() (int, error) { return 0, errTransient })

	status := registry.Status()
	require.Len(t, status, 1)
	assert.Equal(t, uint32(1), status[0].Requests)
	assert.Equal(t, uint32(1), status[0].TotalFailures)
	assert.Equal(t, uint32(1), status[0].ConsecutiveFailures)
}
