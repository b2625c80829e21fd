// Package sysmem reports free memory to the send queue's admission control.
package sysmem

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// DefaultInterval is how often a Sampler reads runtime memory statistics.
const DefaultInterval = time.Second

// Sampler measures heap usage against a fixed memory budget. FreeMemory
// serves the last sample, so the send path never triggers a stop-the-world
// read of runtime statistics.
type Sampler struct {
	budget   uint64
	interval time.Duration
	free     atomic.Uint64
	read     func() uint64
}

// NewSampler creates a sampler for a process allowed to use budget bytes.
// It takes a first sample immediately.
func NewSampler(budget uint64, interval time.Duration) *Sampler {
	return newSampler(budget, interval, heapInUse)
}

func newSampler(budget uint64, interval time.Duration, read func() uint64) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Sampler{budget: budget, interval: interval, read: read}
	s.Sample()
	return s
}

// FreeMemory implements ports.MemoryGauge.
func (s *Sampler) FreeMemory() uint64 {
	return s.free.Load()
}

// Budget returns the configured memory budget.
func (s *Sampler) Budget() uint64 {
	return s.budget
}

// Sample reads memory usage now and returns the free memory.
func (s *Sampler) Sample() uint64 {
	used := s.read()
	var free uint64
	if used < s.budget {
		free = s.budget - used
	}
	s.free.Store(free)
	return free
}

// Run samples periodically until ctx is done. onSample, if not nil, is
// called with the free memory of every sample.
func (s *Sampler) Run(ctx context.Context, onSample func(free uint64)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			free := s.Sample()
			if onSample != nil {
				onSample(free)
			}
		}
	}
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse + ms.StackInuse
}

// Fixed is a gauge reporting a constant amount of free memory.
type Fixed uint64

// FreeMemory implements ports.MemoryGauge.
func (f Fixed) FreeMemory() uint64 {
	return uint64(f)
}

// Unlimited never reports memory pressure.
const Unlimited = Fixed(^uint64(0))
