package host

import (
	"fmt"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Chunk execution is idempotent per canonical identity: a file-backed chunk
// is keyed by its absolute path, an ad-hoc chunk by a synthesized inline
// key, and a chunk that already ran is skipped with a diagnostic. Failures
// are diagnosed, not propagated, and do not mark the chunk as executed.

// RunAddonChunk executes source under the addon calling convention: the
// chunk receives (addonName, namespace) as its varargs, where the namespace
// table is shared by every chunk of the same addon. Returns whether the
// chunk actually ran.
func (h *Host) RunAddonChunk(source, addonName, identity string) bool {
	var ran bool
	h.do(func() {
		if h.stopped.Load() {
			return
		}
		ran = h.runChunk(source, identity, lua.LString(addonName), h.namespace(addonName))
	})
	return ran
}

// RunLibraryChunk executes source under the library calling convention: the
// chunk receives (major, minor) as its varargs.
func (h *Host) RunLibraryChunk(source, major string, minor int, identity string) bool {
	var ran bool
	h.do(func() {
		if h.stopped.Load() {
			return
		}
		ran = h.runChunk(source, identity, lua.LString(major), lua.LNumber(minor))
	})
	return ran
}

// runChunk compiles and runs one chunk. Queue context only.
func (h *Host) runChunk(source, identity string, args ...lua.LValue) bool {
	identity = h.canonicalIdentity(identity)
	if _, done := h.executed[identity]; done {
		h.diag.Printf("CHUNK: %s already executed, skipping", identity)
		return false
	}

	chunk, err := parse.Parse(strings.NewReader(source), identity)
	if err != nil {
		h.diag.Printf("CHUNK: parse %s: %v", identity, err)
		return false
	}
	proto, err := lua.Compile(chunk, identity)
	if err != nil {
		h.diag.Printf("CHUNK: compile %s: %v", identity, err)
		return false
	}

	fn := h.L.NewFunctionFromProto(proto)
	if err := h.pcall(fn, args...); err != nil {
		h.diag.Printf("CHUNK: run %s: %v", identity, err)
		return false
	}

	h.executed[identity] = struct{}{}
	return true
}

// canonicalIdentity normalizes a chunk identity: file paths become absolute,
// empty identities get a unique inline key, and explicit inline keys pass
// through so tests and the viewer can name ad-hoc chunks.
func (h *Host) canonicalIdentity(identity string) string {
	if identity == "" {
		h.inlineSeq++
		return fmt.Sprintf("inline:%d", h.inlineSeq)
	}
	if strings.HasPrefix(identity, "inline:") {
		return identity
	}
	abs, err := filepath.Abs(identity)
	if err != nil {
		return filepath.Clean(identity)
	}
	return abs
}
