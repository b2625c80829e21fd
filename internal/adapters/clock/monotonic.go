// Package clock provides node time sources.
package clock

import (
	"sync/atomic"
	"time"
)

// Monotonic is a node clock counting microseconds since it was created,
// wrapping at 2^32. Adjust shifts it, for example after a time sync.
type Monotonic struct {
	start  time.Time
	offset atomic.Int64
	now    func() time.Time
}

// NewMonotonic creates a clock starting at zero.
func NewMonotonic() *Monotonic {
	return newMonotonic(time.Now)
}

func newMonotonic(now func() time.Time) *Monotonic {
	return &Monotonic{start: now(), now: now}
}

// NodeTime implements ports.Clock.
func (m *Monotonic) NodeTime() uint32 {
	us := m.now().Sub(m.start).Microseconds() + m.offset.Load()
	return uint32(us)
}

// Adjust shifts the clock by offset microseconds.
func (m *Monotonic) Adjust(offset int32) {
	m.offset.Add(int64(offset))
}

// Fixed is a clock that always reports the same time.
type Fixed uint32

// NodeTime implements ports.Clock.
func (f Fixed) NodeTime() uint32 {
	return uint32(f)
}
