// Package timers schedules one-shot delayed callbacks into the script
// environment. Delays run on background timer threads; callback bodies are
// marshaled through an injected post func onto the host's single execution
// context before they touch the interpreter.
package timers

import (
	"sync"
	"time"
)

// Scheduler owns the pending timer set. Identities are monotonically
// increasing integers; an identity is retired on firing or cancellation and
// never reused.
type Scheduler struct {
	mu      sync.Mutex
	next    int
	pending map[int]*time.Timer
	stopped bool

	post func(fn func())
}

// NewScheduler creates a scheduler that marshals firings through post.
func NewScheduler(post func(fn func())) *Scheduler {
	return &Scheduler{
		next:    1,
		pending: make(map[int]*time.Timer),
		post:    post,
	}
}

// Schedule starts a one-shot timer and returns its identity. The identity is
// removed from the live set before fn is posted, so a callback that
// reschedules itself always gets a fresh identity.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) int {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}

	id := s.next
	s.next++

	s.pending[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.pending[id]
		if live {
			delete(s.pending, id)
		}
		stopped := s.stopped
		s.mu.Unlock()

		if !live || stopped {
			return
		}
		s.post(fn)
	})
	return id
}

// Cancel stops a pending timer. Unknown or already-fired identities are a
// silent no-op.
func (s *Scheduler) Cancel(id int) {
	s.mu.Lock()
	t, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// StopAll discards every pending timer without firing and refuses further
// scheduling. Invoked on host shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	s.stopped = true
	timers := make([]*time.Timer, 0, len(s.pending))
	for id, t := range s.pending {
		timers = append(timers, t)
		delete(s.pending, id)
	}
	s.mu.Unlock()
	for _, t := range timers {
		t.Stop()
	}
}

// Pending reports the number of live timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
