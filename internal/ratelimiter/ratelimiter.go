// Package ratelimiter paces inbound work using a token bucket.
//
// The BSP adapter uses it to smooth connection accept spikes: tokens refill
// at a sustained rate, a configurable burst absorbs short floods, and
// anything beyond that waits its turn.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps golang.org/x/time/rate with the small surface the
// server needs. All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing perSecond sustained operations with the
// given burst capacity.
//
// perSecond = 0 disables limiting by configuring an effectively unlimited
// rate. A zero burst with a non-zero rate admits only the sustained rate
// with no headroom.
func New(perSecond, burst uint) *RateLimiter {
	if perSecond == 0 {
		// rate.Inf skips token accounting entirely, which also makes
		// Tokens() meaningless; a huge finite rate keeps behavior uniform.
		perSecond = 1_000_000_000
		burst = perSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Allow reports whether one operation may proceed right now, consuming a
// token when it returns true.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done. It returns nil
// once a token has been consumed, otherwise the context's error.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently available. Mainly useful
// in tests and diagnostics; the value can be stale as soon as it returns.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
