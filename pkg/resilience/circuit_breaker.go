package resilience

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/usama216/shipping-market-sub004/pkg/logging"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker defaults for carrier APIs. Carrier sandboxes stall for tens of
// seconds at a time, so an open breaker waits before probing again.
const (
	DefaultMaxRequests           uint32        = 2
	DefaultInterval              time.Duration = 2 * time.Minute
	DefaultTimeout               time.Duration = 45 * time.Second
	DefaultFailureThreshold      uint32        = 5
	DefaultFailureRatioThreshold float64       = 0.6
	DefaultMinRequestsToTrip     uint32        = 10
)

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name                  string
	MaxRequests           uint32        // requests allowed in half-open state
	Interval              time.Duration // 0 never clears counts while closed
	Timeout               time.Duration // open -> half-open delay
	FailureThreshold      uint32        // consecutive failures that trip the circuit
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32
	// IsFailure decides whether an error counts against the breaker. A carrier
	// rejecting a bad address is healthy; only nil IsFailure counts every error.
	IsFailure func(error) bool
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                  name,
		MaxRequests:           DefaultMaxRequests,
		Interval:              DefaultInterval,
		Timeout:               DefaultTimeout,
		FailureThreshold:      DefaultFailureThreshold,
		FailureRatioThreshold: DefaultFailureRatioThreshold,
		MinRequestsToTrip:     DefaultMinRequestsToTrip,
	}
}

// StateListener is notified on every breaker state change.
type StateListener func(name string, from, to gobreaker.State)

// CircuitBreaker wraps gobreaker with logging
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *logging.Logger, listeners ...StateListener) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= config.FailureThreshold {
				return true
			}
			if counts.Requests >= config.MinRequestsToTrip {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= config.FailureRatioThreshold
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			for _, l := range listeners {
				l(name, from, to)
			}
		},
	}
	if config.IsFailure != nil {
		isFailure := config.IsFailure
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !isFailure(err)
		}
	}

	return &CircuitBreaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		name:   config.Name,
		logger: logger,
	}
}

// Execute runs a function through the circuit breaker
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	result, err := c.cb.Execute(fn)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		c.logger.WithContext(ctx).Warn("Circuit breaker is open", "name", c.name)
		return nil, fmt.Errorf("%w for %s", ErrCircuitOpen, c.name)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.WithContext(ctx).Warn("Circuit breaker: too many requests", "name", c.name)
		return nil, fmt.Errorf("%w for %s: too many half-open requests", ErrCircuitOpen, c.name)
	}

	return result, err
}

// Call is a typed convenience over Execute.
func Call[T any](ctx context.Context, c *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := c.Execute(ctx, func() (interface{}, error) {
		return fn()
	})
	if result == nil {
		return zero, err
	}
	return result.(T), err
}

// State returns the current state of the circuit breaker
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

// Name returns the circuit breaker name
func (c *CircuitBreaker) Name() string {
	return c.name
}

// Counts returns the current counts
func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}

// CircuitBreakerRegistry manages one breaker per carrier.
type CircuitBreakerRegistry struct {
	mu        sync.Mutex
	breakers  map[string]*CircuitBreaker
	logger    *logging.Logger
	listeners []StateListener
}

// NewCircuitBreakerRegistry creates a new registry
func NewCircuitBreakerRegistry(logger *logging.Logger, listeners ...StateListener) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers:  make(map[string]*CircuitBreaker),
		logger:    logger,
		listeners: listeners,
	}
}

// Get returns a circuit breaker by name, creating it if it doesn't exist
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	return r.GetWithConfig(DefaultCircuitBreakerConfig(name))
}

// GetWithConfig returns a circuit breaker with custom config
func (r *CircuitBreakerRegistry) GetWithConfig(config *CircuitBreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, exists := r.breakers[config.Name]; exists {
		return cb
	}

	cb := NewCircuitBreaker(config, r.logger, r.listeners...)
	r.breakers[config.Name] = cb
	return cb
}

// Status returns the status of all circuit breakers ordered by name
func (r *CircuitBreakerRegistry) Status() []CircuitBreakerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := make([]CircuitBreakerStatus, 0, len(r.breakers))
	for name, cb := range r.breakers {
		counts := cb.Counts()
		status = append(status, CircuitBreakerStatus{
			Name:                name,
			State:               cb.State().String(),
			Requests:            counts.Requests,
			TotalFailures:       counts.TotalFailures,
			ConsecutiveFailures: counts.ConsecutiveFailures,
		})
	}
	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}

// CircuitBreakerStatus holds status information for a circuit breaker
type CircuitBreakerStatus struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	TotalFailures       uint32 `json:"totalFailures"`
	ConsecutiveFailures uint32 `json:"consecutiveFailures"`
}
