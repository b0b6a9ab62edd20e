// Package rate implements the per-device telemetry limiter: a sliding
// one-minute window of event timestamps per device, trimmed on every access
// so the map never grows beyond the active device set.
package rate

import (
	"sync"
	"time"
)

const window = time.Minute

type Limiter struct {
	mu      sync.Mutex
	perMin  int
	enabled bool
	events  map[int64][]time.Time

	now func() time.Time
}

func NewLimiter(perMin int, enabled bool) *Limiter {
	return &Limiter{
		perMin:  perMin,
		enabled: enabled,
		events:  map[int64][]time.Time{},
		now:     time.Now,
	}
}

// Allow records one event for the device if it fits the window and reports
// whether it was admitted, along with a retry-after hint when it was not.
func (l *Limiter) Allow(deviceID int64) (bool, time.Duration) {
	if !l.enabled {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	recent := l.events[deviceID]
	trimmed := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			trimmed = append(trimmed, t)
		}
	}

	if len(trimmed) >= l.perMin {
		retryAfter := trimmed[0].Sub(cutoff)
		l.events[deviceID] = trimmed
		return false, retryAfter
	}

	l.events[deviceID] = append(trimmed, now)
	return true, 0
}

// Reset drops the recorded history for a device. Used by tests.
func (l *Limiter) Reset(deviceID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, deviceID)
}
