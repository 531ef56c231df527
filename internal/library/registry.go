// Package library emulates the script ecosystem's library-discovery
// convention: scripts request a shared, versioned library table by name,
// optionally registering one. "First sufficiently-versioned registrant wins".
package library

import (
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/addonbox/addonbox/internal/diag"
)

// Entry is one registered library: a name, its minor version, and the table
// the registering script attached.
type Entry struct {
	Name  string
	Minor int
	Table *lua.LTable
}

// Registry maps library names to their current entries.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	logf    func(format string, args ...any)
}

// NewRegistry creates an empty registry.
func NewRegistry(log *diag.Buffer) *Registry {
	logf := func(string, ...any) {}
	if log != nil {
		logf = log.Printf
	}
	return &Registry{
		entries: make(map[string]*Entry),
		logf:    logf,
	}
}

// RequestOrCreate registers name at minor. If no entry exists a fresh table
// is created and returned; if the existing entry's minor is strictly lower
// its table is kept (upgraded in place) and returned so the registrant can
// fill it in. A registration with minor <= the current version is a no-op
// and returns (nil, false): use the existing instance.
func (r *Registry) RequestOrCreate(L *lua.LState, name string, minor int) (*lua.LTable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		e = &Entry{Name: name, Minor: minor, Table: L.NewTable()}
		r.entries[name] = e
		return e.Table, true
	}
	if minor > e.Minor {
		e.Minor = minor
		return e.Table, true
	}
	return nil, false
}

// Lookup returns the current entry's table for name. A miss with silent
// false synthesizes and registers an empty placeholder (minor 0) so
// dependent initialization can proceed; with silent true it returns nil
// without side effects.
func (r *Registry) Lookup(L *lua.LState, name string, silent bool) *lua.LTable {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		return e.Table
	}
	if silent {
		return nil
	}

	r.logf("LIB: %q not registered, handing out a placeholder", name)
	e := &Entry{Name: name, Minor: 0, Table: L.NewTable()}
	r.entries[name] = e
	return e.Table
}

// Minor reports the registered minor version for name.
func (r *Registry) Minor(name string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return 0, false
	}
	return e.Minor, true
}

// Names returns the registered library names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
