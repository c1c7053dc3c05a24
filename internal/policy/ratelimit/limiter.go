// Package ratelimit paces page advances against the upstream query tool.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/flare-crawler/internal/metrics"
)

// Config holds pacing configuration.
type Config struct {
	// Interval is the minimum gap between page advances. Zero disables pacing.
	Interval time.Duration
	// Burst is how many advances may happen back to back. Defaults to 1.
	Burst int
}

// Limiter is a token bucket shared by one run's page loop.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Every(cfg.Interval)
	if cfg.Interval <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(r, burst)}
}

// Wait blocks until the next advance is allowed, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not worth a histogram sample.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObservePageWait(d)
	}
	return nil
}

// Unlimited reports whether the limiter never blocks.
func (l *Limiter) Unlimited() bool {
	return l == nil || l.limiter.Limit() == rate.Inf
}
