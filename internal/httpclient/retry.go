package httpclient

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy defines retry behavior with exponential backoff
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// MaxRetryAfter caps how long a RateLimitedError may make us wait
	MaxRetryAfter time.Duration
}

// NewRetryPolicy creates a default retry policy
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		MaxRetryAfter:     2 * time.Minute,
	}
}

// CalculateBackoff calculates the backoff duration with exponential backoff and jitter
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	// Add jitter (±25%)
	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// delayFor picks the wait before the next attempt. Rate limits that carry a
// RetryAfter use it (plus one second) instead of the exponential schedule.
func (p *RetryPolicy) delayFor(attempt int, err error) time.Duration {
	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) && rateLimited.RetryAfter > 0 {
		wait := rateLimited.RetryAfter + time.Second
		if p.MaxRetryAfter > 0 && wait > p.MaxRetryAfter {
			wait = p.MaxRetryAfter
		}
		return wait
	}
	return p.CalculateBackoff(attempt)
}

// Do runs fn until it succeeds, returns a non-retryable error, the context
// ends, or MaxAttempts is reached. The last error is returned.
func (p *RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) {
			logger.Debug().
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("Non-retryable error, failing immediately")
			return lastErr
		}

		if attempt == attempts-1 {
			break
		}

		backoff := p.delayFor(attempt, lastErr)
		logger.Debug().
			Int("attempt", attempt+1).
			Err(lastErr).
			Dur("backoff", backoff).
			Msg("Retrying after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	logger.Warn().
		Int("max_attempts", attempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return lastErr
}
