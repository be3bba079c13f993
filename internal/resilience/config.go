package resilience

import (
	"context"
	"time"
)

// FromRetryConfig converts config values to a RetryConfig. Non-positive
// values keep the defaults.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return cfg
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(name string, failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	cfg.Name = name
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

// Policy guards calls to one external service: every attempt passes through
// the breaker, and attempts are retried per the retry config. Once the
// breaker opens, the remaining attempts fail fast with ErrCircuitOpen.
type Policy struct {
	Retry   RetryConfig
	Breaker *CircuitBreaker
}

// NewPolicy builds a Policy. A nil breaker disables circuit breaking.
func NewPolicy(retry RetryConfig, breaker *CircuitBreaker) *Policy {
	return &Policy{Retry: retry, Breaker: breaker}
}

// Call runs fn under p.
func Call[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	return DoVal(ctx, p.Retry, func(ctx context.Context) (T, error) {
		if p.Breaker == nil {
			return fn(ctx)
		}
		return ExecuteVal(ctx, p.Breaker, fn)
	})
}
