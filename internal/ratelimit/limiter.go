// Package ratelimit provides the optional global query rate cap and the
// schedule that maps elapsed run time to a phase.
package ratelimit

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimiter caps the combined query rate of all workers.
// A nil *RateLimiter never blocks.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter returns a limiter for qps queries per second, or nil when
// qps is not positive.
func NewRateLimiter(qps float64) *RateLimiter {
	if qps <= 0 {
		return nil
	}
	burst := int(math.Ceil(qps))
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
	}
}

// Wait blocks until the next query may start or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// Rate returns the configured queries per second, 0 for unlimited.
func (r *RateLimiter) Rate() float64 {
	if r == nil {
		return 0
	}
	return float64(r.limiter.Limit())
}
