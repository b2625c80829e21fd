package app

import (
	"context"
	"sync"
)

// Scheduler is the single logical thread of a node.
//
// Every piece of send pipeline state (connections, queues, transfers) is
// touched only from tasks run by the scheduler. Other goroutines, such as
// transport completion callbacks or API callers, hand work to it with Post.
// Tasks never block; work that has to wait parks a continuation and is
// posted again when it can make progress.
type Scheduler struct {
	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}
}

// NewScheduler creates an idle scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{wake: make(chan struct{}, 1)}
}

// Post queues fn to run on the scheduler. Safe to call from any goroutine.
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunPending runs queued tasks on the calling goroutine until none are left,
// including tasks posted while running. It returns the number of tasks run.
func (s *Scheduler) RunPending() int {
	ran := 0
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return ran
		}
		batch := s.tasks
		s.tasks = nil
		s.mu.Unlock()

		for _, fn := range batch {
			fn()
			ran++
		}
	}
}

// Run executes tasks until ctx is done. Tasks still queued at that point
// are left in place.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.RunPending()

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
	}
}

// Call runs fn on the scheduler and waits for it to finish or for ctx to be
// done. It must not be called from a scheduler task.
func (s *Scheduler) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	s.Post(func() {
		fn()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
