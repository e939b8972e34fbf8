package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

// Resilient wraps an Evaluator with resilience patterns from fortify
type Resilient struct {
	inner          Evaluator
	circuitBreaker circuitbreaker.CircuitBreaker[Value]
	retrier        retry.Retry[Value]
	bulkhead       bulkhead.Bulkhead[Value]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
}

// ResilientConfig holds configuration for the resilient wrapper
type ResilientConfig struct {
	EnableCircuitBreaker bool
	EnableRetry          bool
	EnableBulkhead       bool
	EnableRateLimit      bool

	// MaxAttempts for retry (default: 3)
	MaxAttempts int

	// MaxConcurrent for bulkhead (default: 20)
	MaxConcurrent int

	// RatePerSecond for rate limiting (default: 50)
	RatePerSecond int

	Logger *slog.Logger
}

// DefaultResilientConfig returns defaults suited to many short evaluations
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		EnableBulkhead:       true,
		EnableRateLimit:      false,
		MaxAttempts:          3,
		MaxConcurrent:        20,
		RatePerSecond:        50,
	}
}

// NewResilient wraps an evaluator
func NewResilient(inner Evaluator, cfg ResilientConfig) *Resilient {
	r := &Resilient{
		inner:  inner,
		logger: cfg.Logger,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	if cfg.EnableCircuitBreaker {
		r.circuitBreaker = circuitbreaker.New[Value](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				r.logger.Warn("evaluator circuit breaker state change",
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	if cfg.EnableRetry {
		attempts := cfg.MaxAttempts
		if attempts <= 0 {
			attempts = 3
		}
		r.retrier = retry.New[Value](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryable,
		})
	}

	if cfg.EnableBulkhead {
		maxConcurrent := cfg.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 20
		}
		r.bulkhead = bulkhead.New[Value](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 4,
			QueueTimeout:  5 * time.Second,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 50
		}
		r.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 2,
			Interval: time.Second,
		})
	}

	return r
}

// Evaluate runs the wrapped evaluator through rate limit, bulkhead, retry
// and circuit breaker. Evaluation errors pass through unchanged.
func (r *Resilient) Evaluate(ctx context.Context, expr domain.Expression, b Bindings) (Value, error) {
	if r.rateLimit != nil && !r.rateLimit.Allow(ctx, string(expr.Dialect())) {
		return Value{}, fmt.Errorf("evaluator rate limit exceeded for %s", expr.Dialect())
	}

	operation := func(ctx context.Context) (Value, error) {
		return r.inner.Evaluate(ctx, expr, b)
	}

	if r.bulkhead != nil {
		operation = func(ctx context.Context) (Value, error) {
			return r.bulkhead.Execute(ctx, func(ctx context.Context) (Value, error) {
				return r.inner.Evaluate(ctx, expr, b)
			})
		}
	}

	if r.circuitBreaker != nil && r.retrier != nil {
		return r.circuitBreaker.Execute(ctx, func(ctx context.Context) (Value, error) {
			return r.retrier.Do(ctx, operation)
		})
	}
	if r.circuitBreaker != nil {
		return r.circuitBreaker.Execute(ctx, operation)
	}
	if r.retrier != nil {
		return r.retrier.Do(ctx, operation)
	}
	return operation(ctx)
}

// Close releases resources held by the wrapper
func (r *Resilient) Close() error {
	if r.rateLimit != nil {
		return r.rateLimit.Close()
	}
	return nil
}

// isRetryable reports whether a failed evaluation may succeed when repeated.
// Broken expressions never do.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, domain.ErrExpressionEvaluation) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true
}
