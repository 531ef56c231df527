// Package event fans host- or script-originated events out to registered
// script callbacks. The router never enters the interpreter itself; callers
// inject a protected-call func so every invocation stays on the host's
// execution context.
package event

import (
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/addonbox/addonbox/internal/diag"
)

// Handler is one registered callback. Key tags the owner (a frame identity
// or addon name) so unregistration removes exactly that owner's wrapper.
type Handler struct {
	Key string
	Fn  lua.LValue
}

// CallFunc invokes a script callable with the event name and arguments,
// returning any script error.
type CallFunc func(event string, fn lua.LValue, args []lua.LValue) error

// Router maps event names to ordered handler lists.
type Router struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	call     CallFunc
	logf     func(format string, args ...any)
}

// NewRouter creates a router dispatching through call.
func NewRouter(call CallFunc, log *diag.Buffer) *Router {
	logf := func(string, ...any) {}
	if log != nil {
		logf = log.Printf
	}
	return &Router{
		handlers: make(map[string][]Handler),
		call:     call,
		logf:     logf,
	}
}

// Register appends a handler. Duplicate registrations of the identical
// handler are permitted; callers own their double-registration discipline.
func (r *Router) Register(event, key string, fn lua.LValue) {
	r.mu.Lock()
	r.handlers[event] = append(r.handlers[event], Handler{Key: key, Fn: fn})
	r.mu.Unlock()
}

// Unregister removes every handler registered under key for the event.
func (r *Router) Unregister(event, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.handlers[event]
	kept := list[:0]
	for _, h := range list {
		if h.Key != key {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(r.handlers, event)
	} else {
		r.handlers[event] = kept
	}
}

// UnregisterAll removes the key's handlers from every event.
func (r *Router) UnregisterAll(key string) {
	r.mu.Lock()
	events := make([]string, 0, len(r.handlers))
	for ev := range r.handlers {
		events = append(events, ev)
	}
	r.mu.Unlock()
	for _, ev := range events {
		r.Unregister(ev, key)
	}
}

// Dispatch invokes every currently-registered handler for the event in
// registration order. A handler error is reported and does not prevent the
// remaining handlers from running.
func (r *Router) Dispatch(event string, args ...lua.LValue) {
	r.mu.Lock()
	list := make([]Handler, len(r.handlers[event]))
	copy(list, r.handlers[event])
	r.mu.Unlock()

	for _, h := range list {
		if err := r.call(event, h.Fn, args); err != nil {
			r.logf("EVENT: handler for %q (%s) failed: %v", event, h.Key, err)
		}
	}
}

// HandlerCount reports the number of handlers for an event.
func (r *Router) HandlerCount(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[event])
}

// Events returns the registered event names, sorted.
func (r *Router) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.handlers))
	for ev := range r.handlers {
		out = append(out, ev)
	}
	sort.Strings(out)
	return out
}
