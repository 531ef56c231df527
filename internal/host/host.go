// Package host owns the embedded interpreter and everything scripts can
// reach: emulated globals, manifest-ordered chunk loading, event routing,
// timers, and saved-variable bridging. The interpreter is entered from a
// single dispatch queue only; see run.
package host

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/addonbox/addonbox/internal/config"
	"github.com/addonbox/addonbox/internal/diag"
	"github.com/addonbox/addonbox/internal/event"
	"github.com/addonbox/addonbox/internal/frame"
	"github.com/addonbox/addonbox/internal/library"
	"github.com/addonbox/addonbox/internal/luaconv"
	"github.com/addonbox/addonbox/internal/render"
	"github.com/addonbox/addonbox/internal/savedvars"
	"github.com/addonbox/addonbox/internal/timers"
)

// AddonInfo is the viewer-facing record of one loaded addon.
type AddonInfo struct {
	Name    string   `json:"name"`
	Title   string   `json:"title,omitempty"`
	Notes   string   `json:"notes,omitempty"`
	Version string   `json:"version,omitempty"`
	Dir     string   `json:"dir"`
	Files   []string `json:"files"`
}

// Options configures a Host.
type Options struct {
	Cfg    config.Lua
	Canvas render.Canvas    // nil falls back to a headless canvas
	Diag   *diag.Buffer     // nil discards diagnostics
	Saved  *savedvars.Store // nil creates a fresh, unpersisted store
}

// Host is the script-execution orchestrator. Public operations marshal onto
// the single dispatch queue; script code never runs on a caller's goroutine.
type Host struct {
	L      *lua.LState
	cfg    config.Lua
	diag   *diag.Buffer
	frames *frame.Registry
	events *event.Router
	timers *timers.Scheduler
	libs   *library.Registry
	saved  *savedvars.Store
	canvas render.Canvas

	queue    chan func()
	closed   chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool

	start time.Time

	// The fields below are touched only from the dispatch queue.
	frameMethods    *lua.LTable
	currentAddonDir string
	executed        map[string]struct{}
	namespaces      map[string]*lua.LTable
	handles         map[string]*lua.LTable // frame identity -> script handle
	scripts         map[string]map[string]lua.LValue
	textureSlots    map[string]map[string]*lua.LTable
	addonObjects    map[string]*lua.LTable
	addonOrder      []string
	addonReset      map[string]bool
	inlineSeq       int

	addonMu sync.Mutex
	addons  []AddonInfo
}

// New constructs the interpreter, installs every emulated global, and starts
// the dispatch queue. Interpreter construction failure is the only fatal
// condition for a session.
func New(opts Options) (*Host, error) {
	log := opts.Diag
	if log == nil {
		log = diag.NewBuffer(64)
	}
	canvas := opts.Canvas
	if canvas == nil {
		canvas = render.NewHeadless(1024, 768)
	}
	saved := opts.Saved
	if saved == nil {
		saved = savedvars.NewStore()
	}

	L, err := newSandboxedState(opts.Cfg.MaxMemoryMB)
	if err != nil {
		return nil, fmt.Errorf("construct interpreter: %w", err)
	}

	h := &Host{
		L:      L,
		cfg:    opts.Cfg,
		diag:   log,
		saved:  saved,
		canvas: canvas,

		queue:    make(chan func(), 64),
		closed:   make(chan struct{}),
		loopDone: make(chan struct{}),
		start:    time.Now(),

		executed:     make(map[string]struct{}),
		namespaces:   make(map[string]*lua.LTable),
		handles:      make(map[string]*lua.LTable),
		scripts:      make(map[string]map[string]lua.LValue),
		textureSlots: make(map[string]map[string]*lua.LTable),
		addonObjects: make(map[string]*lua.LTable),
		addonReset:   make(map[string]bool),
	}

	h.frames = frame.NewRegistry(canvas, log)
	h.libs = library.NewRegistry(log)
	h.timers = timers.NewScheduler(h.post)
	h.events = event.NewRouter(func(ev string, fn lua.LValue, args []lua.LValue) error {
		return h.pcall(fn, append([]lua.LValue{lua.LString(ev)}, args...)...)
	}, log)

	h.installGlobals()

	go h.run()
	return h, nil
}

// run is the single permitted execution context for the interpreter.
func (h *Host) run() {
	defer close(h.loopDone)
	for {
		select {
		case <-h.closed:
			return
		case fn := <-h.queue:
			fn()
		}
	}
}

// post queues fn without waiting. Dropped after shutdown.
func (h *Host) post(fn func()) {
	select {
	case h.queue <- fn:
	case <-h.closed:
	}
}

// do queues fn and waits for it to finish. Must not be called from script
// callbacks (they already run on the queue).
func (h *Host) do(fn func()) {
	done := make(chan struct{})
	select {
	case h.queue <- func() {
		fn()
		close(done)
	}:
	case <-h.closed:
		return
	}
	select {
	case <-done:
	case <-h.loopDone:
	}
}

// pcall protects a script callable. Queue context only.
func (h *Host) pcall(fn lua.LValue, args ...lua.LValue) error {
	if fn == nil || fn == lua.LNil {
		return nil
	}
	return h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
}

// Frames exposes the frame registry (viewer inspection).
func (h *Host) Frames() *frame.Registry {
	return h.frames
}

// Libraries exposes the library registry (viewer inspection).
func (h *Host) Libraries() *library.Registry {
	return h.libs
}

// Addons returns metadata for every loaded addon.
func (h *Host) Addons() []AddonInfo {
	h.addonMu.Lock()
	defer h.addonMu.Unlock()
	out := make([]AddonInfo, len(h.addons))
	copy(out, h.addons)
	return out
}

func (h *Host) recordAddon(info AddonInfo) {
	h.addonMu.Lock()
	h.addons = append(h.addons, info)
	h.addonMu.Unlock()
}

// DispatchHostEvent marshals host-side values and fans the event out to
// every registered script callback.
func (h *Host) DispatchHostEvent(name string, values ...any) {
	h.do(func() {
		if h.stopped.Load() {
			return
		}
		args := make([]lua.LValue, len(values))
		for i, v := range values {
			args[i] = luaconv.ToLua(h.L, v)
		}
		h.events.Dispatch(name, args...)
	})
}

// InvokeLifecycleHook calls hookName on every registered addon object that
// exposes it, in registration order. One addon's failure is isolated.
func (h *Host) InvokeLifecycleHook(hookName string) {
	h.do(func() {
		if h.stopped.Load() {
			return
		}
		for _, name := range h.addonOrder {
			obj := h.addonObjects[name]
			member := obj.RawGetString(hookName)
			if member == lua.LNil {
				continue
			}
			if err := h.pcall(member, obj); err != nil {
				h.diag.Printf("HOST: %s hook for addon %q failed: %v", hookName, name, err)
			}
		}
	})
}

// ClickFrame fires a frame's OnClick script, if any (viewer interaction).
func (h *Host) ClickFrame(id string) {
	h.do(func() {
		if h.stopped.Load() {
			return
		}
		handle, ok := h.handles[id]
		if !ok {
			return
		}
		fn := h.frameScript(id, "OnClick")
		if fn == lua.LNil {
			return
		}
		if err := h.pcall(fn, handle, lua.LString("LeftButton")); err != nil {
			h.diag.Printf("FRAME: OnClick for %s failed: %v", id, err)
		}
	})
}

// Shutdown requests a cooperative stop: pending and future timer callbacks
// are suppressed and no further chunks execute. Must not be called from
// script code.
func (h *Host) Shutdown() {
	h.stopOnce.Do(func() {
		h.stopped.Store(true)
		h.timers.StopAll()
		close(h.closed)
		<-h.loopDone
		h.L.Close()
		h.diag.Printf("HOST: shut down")
	})
}

// namespace returns the addon's shared namespace table, creating it lazily
// on first use. Queue context only.
func (h *Host) namespace(addonName string) *lua.LTable {
	ns, ok := h.namespaces[addonName]
	if !ok {
		ns = h.L.NewTable()
		h.namespaces[addonName] = ns
	}
	return ns
}

// ── library.HostEnv ──

func (h *Host) State() *lua.LState {
	return h.L
}

func (h *Host) Logf(format string, args ...any) {
	h.diag.Printf(format, args...)
}

func (h *Host) Call(fn lua.LValue, args ...lua.LValue) error {
	return h.pcall(fn, args...)
}

func (h *Host) RegisterEvent(ev, key string, fn lua.LValue) {
	h.events.Register(ev, key, fn)
}

func (h *Host) UnregisterEvent(ev, key string) {
	h.events.Unregister(ev, key)
}

func (h *Host) ScheduleTimer(delay time.Duration, fn lua.LValue, args ...lua.LValue) int {
	return h.timers.Schedule(delay, func() {
		if h.stopped.Load() {
			return
		}
		if err := h.pcall(fn, args...); err != nil {
			h.diag.Printf("TIMER: callback failed: %v", err)
		}
	})
}

func (h *Host) CancelTimer(id int) {
	h.timers.Cancel(id)
}

// NewAddonObject creates or re-issues the lifecycle object for an addon
// name. The first collision per host lifetime hands out a fresh object
// (clearing the old registration) so repeated loads of the same addon do
// not loop re-initializing a half-built object; later requests return the
// current object.
func (h *Host) NewAddonObject(name string) *lua.LTable {
	if existing, ok := h.addonObjects[name]; ok {
		if h.addonReset[name] {
			return existing
		}
		h.addonReset[name] = true
		h.events.UnregisterAll("addon:" + name)
	} else {
		h.addonOrder = append(h.addonOrder, name)
	}

	obj := h.newAddonTable(name)
	h.addonObjects[name] = obj
	return obj
}

func (h *Host) GetAddonObject(name string) (*lua.LTable, bool) {
	obj, ok := h.addonObjects[name]
	return obj, ok
}

// newAddonTable builds a lifecycle object: RegisterEvent/UnregisterEvent
// route through the event router under the addon's own key, Print goes to
// the diagnostic channel.
func (h *Host) newAddonTable(name string) *lua.LTable {
	L := h.L
	obj := L.NewTable()
	obj.RawSetString("name", lua.LString(name))
	key := "addon:" + name

	obj.RawSetString("GetName", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(name))
		return 1
	}))

	obj.RawSetString("RegisterEvent", L.NewFunction(func(L *lua.LState) int {
		target := L.CheckTable(1)
		ev := L.CheckString(2)
		spec := L.Get(3)
		if spec == lua.LNil {
			spec = lua.LString(ev)
		}
		h.events.Register(ev, key, h.scriptHandler(target, spec))
		return 0
	}))

	obj.RawSetString("UnregisterEvent", L.NewFunction(func(L *lua.LState) int {
		L.CheckTable(1)
		ev := L.CheckString(2)
		h.events.Unregister(ev, key)
		return 0
	}))

	obj.RawSetString("Print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop()-1)
		for i := 2; i <= L.GetTop(); i++ {
			parts = append(parts, L.Get(i).String())
		}
		h.diag.Printf("%s: %s", name, joinTab(parts))
		return 0
	}))

	return obj
}

// scriptHandler normalizes a callback spec: functions pass through, a
// string names a method on target invoked with target as self. The wrapper
// runs inside the caller's protected call.
func (h *Host) scriptHandler(target *lua.LTable, spec lua.LValue) lua.LValue {
	L := h.L
	if _, isStr := spec.(lua.LString); !isStr {
		return spec
	}
	method := string(spec.(lua.LString))
	return L.NewFunction(func(L *lua.LState) int {
		fn := target.RawGetString(method)
		if fn == lua.LNil {
			L.RaiseError("no method %q on event target", method)
			return 0
		}
		args := make([]lua.LValue, 0, L.GetTop()+1)
		args = append(args, target)
		for i := 1; i <= L.GetTop(); i++ {
			args = append(args, L.Get(i))
		}
		L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: false}, args...)
		return 0
	})
}

// LoadedChunks returns the canonical identities executed so far, sorted.
func (h *Host) LoadedChunks() []string {
	var out []string
	h.do(func() {
		out = make([]string, 0, len(h.executed))
		for id := range h.executed {
			out = append(out, id)
		}
	})
	sort.Strings(out)
	return out
}

func joinTab(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\t"
		}
		out += p
	}
	return out
}
