package timers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// directPost runs firings inline; ordering guarantees are the host's concern.
func directPost(fn func()) { fn() }

func TestScheduleFires(t *testing.T) {
	s := NewScheduler(directPost)
	done := make(chan struct{})

	id := s.Schedule(10*time.Millisecond, func() { close(done) })
	require.NotZero(t, id)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	assert.Zero(t, s.Pending())
}

func TestCancelBeforeFire(t *testing.T) {
	var fired atomic.Bool
	s := NewScheduler(directPost)

	id := s.Schedule(50*time.Millisecond, func() { fired.Store(true) })
	s.Cancel(id)

	time.Sleep(150 * time.Millisecond)
	assert.False(t, fired.Load(), "canceled timer must not fire")
}

func TestCancelUnknownIsNoop(t *testing.T) {
	s := NewScheduler(directPost)
	assert.NotPanics(t, func() {
		s.Cancel(12345)
		s.Cancel(0)
	})
}

func TestIdentitiesAreMonotonic(t *testing.T) {
	s := NewScheduler(directPost)
	a := s.Schedule(time.Hour, func() {})
	b := s.Schedule(time.Hour, func() {})
	assert.Greater(t, b, a)
	s.StopAll()
}

func TestRescheduleGetsFreshIdentity(t *testing.T) {
	s := NewScheduler(directPost)
	ids := make(chan int, 1)

	first := s.Schedule(5*time.Millisecond, func() {
		ids <- s.Schedule(time.Hour, func() {})
	})

	select {
	case second := <-ids:
		assert.NotEqual(t, first, second)
		assert.Greater(t, second, first)
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	s.StopAll()
}

func TestStopAllSuppressesPending(t *testing.T) {
	var fired atomic.Bool
	s := NewScheduler(directPost)

	s.Schedule(30*time.Millisecond, func() { fired.Store(true) })
	s.StopAll()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
	assert.Zero(t, s.Pending())

	// Scheduling after shutdown is refused.
	assert.Zero(t, s.Schedule(time.Millisecond, func() {}))
}
