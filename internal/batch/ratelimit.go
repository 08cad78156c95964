// Package batch orchestrates analysis runs over the street-point work queue:
// rate-limited image fetching, sequential or parallel processing, and
// progress accounting.
package batch

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a maximum number of requests per sliding window.
// Wait blocks until a slot is free or the context is cancelled. Safe for
// concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	capacity int
	stamps   []time.Time

	now func() time.Time
}

// NewRateLimiter creates a limiter allowing capacity requests per window.
// The provider-safe default for street imagery is 500 per minute.
func NewRateLimiter(capacity int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		window:   window,
		capacity: capacity,
		now:      time.Now,
	}
}

// Wait blocks until the caller may proceed, then records the request. It
// returns early with the context error on cancellation.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := r.now()
		r.evict(now)

		if len(r.stamps) < r.capacity {
			r.stamps = append(r.stamps, now)
			r.mu.Unlock()
			return nil
		}

		// Oldest stamp leaving the window frees the next slot.
		wait := r.stamps[0].Add(r.window).Sub(now)
		r.mu.Unlock()

		if wait <= 0 {
			continue
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending returns the number of requests currently counted in the window.
func (r *RateLimiter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evict(r.now())
	return len(r.stamps)
}

// evict drops stamps older than the window. Caller holds mu.
func (r *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.stamps) && !r.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.stamps = append(r.stamps[:0], r.stamps[i:]...)
	}
}
