// Package breaker wraps sony/gobreaker for outbound calls to payment
// processors and the email service.
package breaker

import (
	"errors"
	"time"

	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config configures a circuit breaker
type Config struct {
	Name string
	// MaxRequests allowed through while half-open
	MaxRequests uint32
	// Interval after which closed-state counts reset
	Interval time.Duration
	// Timeout spent open before probing again
	Timeout time.Duration
	// ConsecutiveFailures that trip the breaker
	ConsecutiveFailures uint32
}

// DefaultConfig returns default configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                name,
		MaxRequests:         3,
		Interval:            10 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// New creates a circuit breaker that logs state changes
func New(config *Config) *gobreaker.CircuitBreaker {
	if config == nil {
		config = DefaultConfig("default")
	}
	trip := config.ConsecutiveFailures
	if trip == 0 {
		trip = 5
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trip
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Get().Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Execute runs fn through cb
func Execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return *new(T), err
	}
	return res.(T), nil
}

// IsOpen reports whether err was returned because the breaker refused the call
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
