// Package retry is an opt-in retry policy for correlated requests.
//
// The protocol layers never retry on their own; a retried intent is only safe
// when the caller attached an idempotency key. Callers that accept that
// contract wrap their requests in Do.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/correlate"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/protocol/wire"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/pkg/logger"
	"golang.org/x/time/rate"
)

// Policy controls retry behavior.
type Policy struct {
	// MaxAttempts bounds total attempts, including the first. Zero means 3.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff between attempts. Zero means
	// 250ms.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. Zero means 10s.
	MaxDelay time.Duration
	// Limiter optionally paces attempts globally across callers.
	Limiter *rate.Limiter
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 250 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	return p
}

// Do runs op until it succeeds, fails terminally, or attempts run out.
//
// Retryable outcomes are correlation timeouts, backend timeouts, and rate
// limiting; a rate-limited attempt waits at least the backend's advertised
// retry-after before trying again. Every other error is terminal and
// returned as-is.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	policy = policy.withDefaults()

	var err error
	for attempt := 1; ; attempt++ {
		if policy.Limiter != nil {
			if lerr := policy.Limiter.Wait(ctx); lerr != nil {
				return lerr
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}

		delay, retryable := retryDelay(err, policy, attempt)
		if !retryable || attempt >= policy.MaxAttempts {
			return err
		}
		logger.Debugf("Attempt %d/%d failed (%v), retrying in %s",
			attempt, policy.MaxAttempts, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// retryDelay classifies err and picks the wait before the next attempt.
func retryDelay(err error, policy Policy, attempt int) (time.Duration, bool) {
	backoff := policy.BaseDelay << (attempt - 1)
	if backoff > policy.MaxDelay {
		backoff = policy.MaxDelay
	}

	var limited wire.RateLimited
	if errors.As(err, &limited) {
		wait := time.Duration(limited.RetryAfterMs) * time.Millisecond
		if wait < backoff {
			wait = backoff
		}
		return wait, true
	}

	var timeout *correlate.TimeoutError
	if errors.As(err, &timeout) {
		return backoff, true
	}

	var backendTimeout wire.Timeout
	if errors.As(err, &backendTimeout) {
		return backoff, true
	}

	return 0, false
}
