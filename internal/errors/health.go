package errors

import (
	"sync"
	"time"
)

// HostHealth tracks transport-level failures against the scan target so the
// coordinator can tell a hostile-but-alive target from a dead one. A target
// that never answered and has accumulated enough consecutive transport
// failures is considered unreachable.
type HostHealth struct {
	mu sync.Mutex

	threshold int

	successes           int
	failures            int
	consecutiveFailures int
	lastFailureTime     time.Time
}

// DefaultUnreachableThreshold is the number of consecutive transport
// failures, with no success ever, after which a target counts as down.
const DefaultUnreachableThreshold = 5

// NewHostHealth creates a health tracker. A non-positive threshold falls
// back to DefaultUnreachableThreshold.
func NewHostHealth(threshold int) *HostHealth {
	if threshold <= 0 {
		threshold = DefaultUnreachableThreshold
	}
	return &HostHealth{threshold: threshold}
}

// RecordSuccess records any HTTP response, regardless of status code.
func (h *HostHealth) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.successes++
	h.consecutiveFailures = 0
}

// RecordFailure records a transport-level failure (no HTTP response).
func (h *HostHealth) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures++
	h.consecutiveFailures++
	h.lastFailureTime = time.Now()
}

// Unreachable reports whether the target should be treated as down.
func (h *HostHealth) Unreachable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.successes == 0 && h.consecutiveFailures >= h.threshold
}

// Stats returns the current counters.
func (h *HostHealth) Stats() HostHealthStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	return HostHealthStats{
		Successes:           h.successes,
		Failures:            h.failures,
		ConsecutiveFailures: h.consecutiveFailures,
		LastFailureTime:     h.lastFailureTime,
	}
}

// HostHealthStats holds health tracker counters.
type HostHealthStats struct {
	Successes           int
	Failures            int
	ConsecutiveFailures int
	LastFailureTime     time.Time
}
