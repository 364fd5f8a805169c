// Package ratelimit implements the shared minimum-interval gate in
// front of all upstream requests.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/vielabs/tiki-review-crawler/internal/telemetry"
)

// Limiter spaces requests so that at most RPS requests per second leave
// the process, regardless of which client instance issues them. Burst
// is pinned to one: the limiter is a single global gate, not a bucket.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter. A non-positive rps disables limiting.
func New(rps float64) *Limiter {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	return &Limiter{limiter: rate.NewLimiter(r, 1)}
}

// Wait blocks until the next request slot opens, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		telemetry.ObserveRateLimitDelay(delay)
	}
	return nil
}
