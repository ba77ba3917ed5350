// Package ratelimit provides request rate limiting for the scanner.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles probe requests against a single target.
type Limiter struct {
	limiter      *rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new rate limiter. A non-positive requestsPerSecond
// means unlimited.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter:      rate.NewLimiter(limit, burst),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait blocks until a request is allowed or context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow checks if a request is allowed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Reserve reserves a token for later use.
func (l *Limiter) Reserve() *rate.Reservation {
	return l.limiter.Reserve()
}

// SetRate updates the rate limit.
func (l *Limiter) SetRate(requestsPerSecond float64, burst int) {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	l.limiter.SetLimit(limit)
	l.limiter.SetBurst(burst)
	l.defaultRate = limit
	l.defaultBurst = burst
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	return LimiterStats{
		Rate:  float64(l.defaultRate),
		Burst: l.defaultBurst,
	}
}

// LimiterStats contains rate limiter statistics.
type LimiterStats struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
}

// AdaptiveLimiter slows down when the target starts rejecting or dropping
// requests and speeds back up when things look healthy. Useful against
// targets with their own throttling, which would otherwise poison the
// time-based measurements.
type AdaptiveLimiter struct {
	*Limiter
	mu           sync.Mutex
	minRate      float64
	maxRate      float64
	currentRate  float64
	errorCount   int
	successCount int
	windowSize   int
}

// NewAdaptiveLimiter creates a new adaptive rate limiter.
func NewAdaptiveLimiter(minRate, maxRate float64, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		Limiter:     NewLimiter(maxRate, burst),
		minRate:     minRate,
		maxRate:     maxRate,
		currentRate: maxRate,
		windowSize:  100,
	}
}

// RecordSuccess records a successful request.
func (a *AdaptiveLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.checkAndAdjust()
}

// RecordError records a failed or rate-limited request.
func (a *AdaptiveLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.checkAndAdjust()
}

// checkAndAdjust adjusts the rate based on success/error ratio.
func (a *AdaptiveLimiter) checkAndAdjust() {
	total := a.successCount + a.errorCount
	if total < a.windowSize {
		return
	}

	errorRate := float64(a.errorCount) / float64(total)

	if errorRate > 0.1 {
		// Too many errors, slow down
		a.currentRate = a.currentRate * 0.8
		if a.currentRate < a.minRate {
			a.currentRate = a.minRate
		}
	} else if errorRate < 0.01 {
		// Very few errors, speed up
		a.currentRate = a.currentRate * 1.1
		if a.currentRate > a.maxRate {
			a.currentRate = a.maxRate
		}
	}

	a.SetRate(a.currentRate, a.defaultBurst)

	a.successCount = 0
	a.errorCount = 0
}

// CurrentRate returns the current rate.
func (a *AdaptiveLimiter) CurrentRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// Delay blocks for a fixed duration, honoring cancellation. Used for the
// inter-probe pacing mode where a constant gap matters more than a token
// bucket.
func Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
