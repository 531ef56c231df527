// Package diag is the single diagnostic/output channel for the addon host:
// script print() output, load progress, and recoverable-error reports all
// flow through one line-oriented stream that the viewer can snapshot or tail.
package diag

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/addonbox/addonbox/internal/util"
)

// Entry is one line of diagnostic text.
type Entry struct {
	TS  time.Time `json:"ts"`
	Msg string    `json:"msg"`
}

// Buffer is a ring-buffered diagnostic stream with live subscribers. It also
// implements io.Writer so the standard logger can be teed into it via
// log.SetOutput / io.MultiWriter.
type Buffer struct {
	mu      sync.Mutex
	entries *util.RingBuffer[Entry]

	subs map[chan Entry]struct{}

	partial bytes.Buffer
}

// NewBuffer creates a buffer retaining the last max lines.
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 500
	}
	return &Buffer{
		entries: util.NewRingBuffer[Entry](max),
		subs:    make(map[chan Entry]struct{}),
	}
}

// Printf appends a formatted line.
func (b *Buffer) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		e := Entry{TS: time.Now(), Msg: line}
		b.entries.Push(e)
		b.broadcastLocked(e)
	}
}

// Write implements io.Writer for log.SetOutput/io.MultiWriter.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial.Write(p)

	for {
		data := b.partial.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i == -1 {
			break
		}

		line := string(data[:i])
		b.partial.Next(i + 1)

		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		e := Entry{TS: time.Now(), Msg: line}
		b.entries.Push(e)
		b.broadcastLocked(e)
	}

	return len(p), nil
}

func (b *Buffer) broadcastLocked(e Entry) {
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// drop on slow subscriber
		}
	}
}

// Snapshot returns the retained lines, oldest first.
func (b *Buffer) Snapshot() []Entry {
	return b.entries.Snapshot()
}

// Subscribe registers a live tail channel. The returned cancel func must be
// called exactly once; it closes the channel.
func (b *Buffer) Subscribe() (ch chan Entry, cancel func()) {
	ch = make(chan Entry, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel = func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}
