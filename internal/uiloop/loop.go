// Package uiloop owns the single UI-affine task queue. All mutable agent
// state (chain link, toast snapshot, pending auto-hide) is touched only from
// tasks run by the Loop's owner, so no other locking is needed.
//
// Producers on any goroutine call Post. The owner either calls Run, which
// drains on every wake-up, or installs a waker (on Windows: PostMessage to
// the hidden window) and calls Drain from its message procedure.
package uiloop

import (
	"context"
	"log/slog"
	"sync"
)

// Loop is a FIFO of tasks drained on the owning thread.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	waker  func()
	closed bool

	wakeCh chan struct{}
}

// New returns an empty Loop.
func New() *Loop {
	return &Loop{wakeCh: make(chan struct{}, 1)}
}

// SetWaker installs an extra wake hook called after every successful Post.
// The hook must not block.
func (l *Loop) SetWaker(fn func()) {
	l.mu.Lock()
	l.waker = fn
	l.mu.Unlock()
}

// Post queues fn to run on the owning thread. It reports false if the loop
// is closed and fn was dropped.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	waker := l.waker
	l.mu.Unlock()

	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
	if waker != nil {
		waker()
	}
	return true
}

// Wake returns a channel that receives whenever work was posted. Multiple
// posts between receives are coalesced into one signal.
func (l *Loop) Wake() <-chan struct{} { return l.wakeCh }

// Drain runs every task queued so far, in order. Tasks posted while draining
// run in the same call. Must only be called from the owning thread.
func (l *Loop) Drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			run(fn)
		}
	}
}

// Run drains the loop on the calling goroutine until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wakeCh:
			l.Drain()
		}
	}
}

// Len reports the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Close drops any queued work and rejects later posts.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.waker = nil
	l.mu.Unlock()
}

// run executes a single task. A panicking task is logged and must not take
// the message loop down with it.
func run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ui task panicked", "panic", r)
		}
	}()
	fn()
}
