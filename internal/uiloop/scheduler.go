package uiloop

import (
	"sync"
	"time"
)

// Timer is a cancellable single-shot timer.
type Timer interface {
	// Stop cancels the timer. It reports false if the timer already fired
	// or was already stopped.
	Stop() bool
}

// Scheduler creates timers whose callbacks run on the UI loop.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// LoopScheduler marshals time.AfterFunc callbacks onto a Loop. The callback
// never runs on the timer goroutine itself.
type LoopScheduler struct {
	post func(func()) bool
}

// NewScheduler returns a Scheduler that posts fired callbacks to loop.
func NewScheduler(loop *Loop) *LoopScheduler {
	return &LoopScheduler{post: loop.Post}
}

func (s *LoopScheduler) Now() time.Time { return time.Now() }

func (s *LoopScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		s.post(func() {
			// Stop may have raced with the fire; honour it.
			if t.cancelled() {
				return
			}
			fn()
		})
	})
	return t
}

type loopTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (t *loopTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	t.timer.Stop()
	return true
}

func (t *loopTimer) cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return true
	}
	t.stopped = true
	return false
}
