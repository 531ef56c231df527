// Package savedvars is the script-visible persisted key/value configuration
// store. Script writes are intercepted through proxy tables so the host sees
// a key-independent "something changed, flush me" signal; the host persists
// the full snapshot externally.
package savedvars

import (
	"sync"

	"github.com/addonbox/addonbox/internal/luaconv"
)

// Store holds one flat key→value mapping per host instance. Values are
// strings, booleans, numbers, or nested mappings. Nested maps are owned by
// the store; one mutex covers the whole tree.
type Store struct {
	mu       sync.Mutex
	data     map[string]any
	onChange func()
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]any)}
}

// SetOnChange installs the change-notification callback. It fires once per
// script-side write, after the write is applied.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// LoadSnapshot bulk-replaces the store contents with a prior snapshot.
// No change notification fires; loading is host-initiated.
func (s *Store) LoadSnapshot(m map[string]any) {
	if m == nil {
		m = make(map[string]any)
	}
	s.mu.Lock()
	s.data = luaconv.DeepCopy(m).(map[string]any)
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the full mapping.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return luaconv.DeepCopy(s.data).(map[string]any)
}

// resolveLocked walks a key path from the root, creating nested maps along
// the way when create is set. Returns nil when the path crosses a
// non-mapping value.
func (s *Store) resolveLocked(path []string, create bool) map[string]any {
	cur := s.data
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			if !create {
				return nil
			}
			next = make(map[string]any)
			cur[key] = next
		}
		cur = next
	}
	return cur
}

// Get reads path/key. The bool reports presence.
func (s *Store) Get(path []string, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.resolveLocked(path, false)
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// Set writes path/key and fires the change notification. A nil value
// deletes the key.
func (s *Store) Set(path []string, key string, val any) {
	s.mu.Lock()
	m := s.resolveLocked(path, true)
	if val == nil {
		delete(m, key)
	} else {
		m[key] = val
	}
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Keys lists the keys present at path, unordered.
func (s *Store) Keys(path []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.resolveLocked(path, false)
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
