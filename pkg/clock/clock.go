// ABOUTME: Monotonic clock abstraction for playback timeouts
// ABOUTME: Provides the system clock and a manually advanced clock for tests
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time. Durations between two readings must be
// monotonic, which time.Now guarantees through its monotonic reading.
type Clock interface {
	Now() time.Time
}

// System is the process clock
type System struct{}

// Now returns time.Now()
func (System) Now() time.Time {
	return time.Now()
}

// Manual is a clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
