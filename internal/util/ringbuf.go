package util

import "sync"

// RingBuffer retains the most recent items up to a fixed capacity, oldest
// overwritten first. It backs the diagnostics stream, so Push is the hot
// path; all methods are safe for concurrent use.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	buf   []T
	head  int
	count int
}

// NewRingBuffer creates a ring buffer holding at most capacity items.
// Capacities below one are raised to one so Push always has a slot.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{buf: make([]T, capacity)}
}

// Push appends an item, dropping the oldest when the buffer is full.
func (r *RingBuffer[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = item
		r.count++
		return
	}
	r.buf[r.head] = item
	r.head = (r.head + 1) % len(r.buf)
}

// Snapshot copies the stored items out, oldest first.
func (r *RingBuffer[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, r.count)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len reports the number of stored items.
func (r *RingBuffer[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
