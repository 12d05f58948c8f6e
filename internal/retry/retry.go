// Package retry repeats upstream calls that failed transiently. Market data
// providers and agent tasks mark such failures with RetryableError; anything
// else is returned on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy bounds a retry loop. MaxRetries counts retries after the first
// attempt, so MaxRetries 1 means at most two calls.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultPolicy is the provider policy: one retry after roughly half a second.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     1,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2,
		Jitter:         true,
	}
}

// RetryableError marks err as transient, such as an HTTP 429 or 5xx from a
// provider. RetryAfter carries the server's Retry-After hint when it sent one.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error { return e.Err }

// NewRetryableError marks err as transient.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// NewRetryableErrorWithDelay marks err as transient with a Retry-After hint.
func NewRetryableErrorWithDelay(err error, delay time.Duration) error {
	return &RetryableError{Err: err, RetryAfter: delay}
}

// IsRetryable reports whether err, or anything it wraps, is a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return err != nil && errors.As(err, &re)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the policy
// runs out. A cancelled ctx ends the wait between attempts.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt >= policy.MaxRetries {
			return fmt.Errorf("max retries exceeded (%d): %w", policy.MaxRetries, err)
		}
		if err := sleep(ctx, delay(policy, attempt, err)); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// delay prefers the server's Retry-After hint, capped by MaxBackoff, over the
// computed backoff.
func delay(policy Policy, attempt int, err error) time.Duration {
	var re *RetryableError
	if errors.As(err, &re) && re.RetryAfter > 0 {
		if policy.MaxBackoff > 0 && re.RetryAfter > policy.MaxBackoff {
			return policy.MaxBackoff
		}
		return re.RetryAfter
	}
	return Backoff(policy, attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff is InitialBackoff * BackoffFactor^attempt, capped at MaxBackoff and
// optionally jittered by up to 10% either way.
func Backoff(policy Policy, attempt int) time.Duration {
	d := float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt))
	d = math.Min(d, float64(policy.MaxBackoff))
	if policy.Jitter {
		d += d * 0.1 * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}
