package ingest

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket in front of the index writer.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows perSecond events per second with bursts of burst.
// perSecond <= 0 disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until one event may pass or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Limit returns the configured rate in events per second.
func (r *RateLimiter) Limit() float64 {
	return float64(r.limiter.Limit())
}
