package chain

import (
	"log/slog"
	"sync"
	"time"
)

const (
	MinReconnectInterval     = 5 * time.Minute
	MaxReconnectInterval     = 10 * time.Minute
	DefaultReconnectInterval = MaxReconnectInterval
)

// Schedule periodically posts a reconnect attempt to the UI loop. It is the
// safety net for chain breaks the health heuristic cannot see directly.
type Schedule struct {
	period time.Duration
	post   Poster
	fn     func()

	mu      sync.Mutex
	done    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewSchedule returns a stopped schedule calling fn every period.
func NewSchedule(period time.Duration, post Poster, fn func()) *Schedule {
	if period <= 0 {
		period = DefaultReconnectInterval
	}
	return &Schedule{period: period, post: post, fn: fn}
}

// Period returns the tick interval.
func (s *Schedule) Period() time.Duration { return s.period }

// Start begins ticking. Calling Start on a running or stopped schedule does
// nothing.
func (s *Schedule) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.stopped {
		return
	}
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.tick(s.done)
	slog.Debug("reconnect schedule started", "period", s.period)
}

func (s *Schedule) tick(done <-chan struct{}) {
	defer s.wg.Done()
	t := time.NewTicker(s.period)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			s.post.Post(s.fn)
		}
	}
}

// Stop halts the ticker and waits for it to exit. Safe to call more than
// once and before Start.
func (s *Schedule) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	done := s.done
	s.mu.Unlock()

	if done != nil {
		close(done)
		s.wg.Wait()
	}
}
