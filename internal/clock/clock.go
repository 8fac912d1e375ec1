// Package clock supplies wall-clock time to the escrow ledgers as unix seconds.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time in unix seconds.
type Clock interface {
	Now() int64
}

// System reads the host clock.
type System struct{}

// Now returns time.Now in unix seconds.
func (System) Now() int64 { return time.Now().Unix() }

// Manual is a settable clock for tests.
type Manual struct {
	mu  sync.Mutex
	now int64
}

// NewManual returns a Manual clock positioned at now.
func NewManual(now int64) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to an absolute instant.
func (m *Manual) Set(now int64) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Advance moves the clock forward by seconds.
func (m *Manual) Advance(seconds int64) {
	m.mu.Lock()
	m.now += seconds
	m.mu.Unlock()
}
