package library

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// HostEnv is the slice of the script host the seeded shims need. The shims
// never touch the interpreter outside these operations.
type HostEnv interface {
	State() *lua.LState
	Logf(format string, args ...any)
	// Call protects a script callable; errors are returned, not raised.
	Call(fn lua.LValue, args ...lua.LValue) error
	RegisterEvent(event, key string, fn lua.LValue)
	UnregisterEvent(event, key string)
	ScheduleTimer(delay time.Duration, fn lua.LValue, args ...lua.LValue) int
	CancelTimer(id int)
	// NewAddonObject creates or re-issues the lifecycle object for an addon
	// name, applying the once-per-lifetime fresh-object collision policy.
	NewAddonObject(name string) *lua.LTable
	GetAddonObject(name string) (*lua.LTable, bool)
}

// Seed pre-populates the registry with minimal implementations of the
// library names addons commonly depend on. Each provides just the method
// surface scripts are observed to call, enough to avoid nil-call failures.
func Seed(reg *Registry, env HostEnv) {
	seedAddonFactory(reg, env)
	seedLocale(reg, env)
	seedEventHelper(reg, env)
	seedTimerHelper(reg, env)
	seedDataBroker(reg, env)
	seedCallbackHandler(reg, env)
}

// shiftSelf drops a leading self argument when a shim method is invoked with
// colon syntax on its own library table.
func shiftSelf(L *lua.LState, lib *lua.LTable) int {
	if L.GetTop() >= 1 && L.Get(1) == lib {
		return 1
	}
	return 0
}

// handlerFor normalizes a callback spec: a function is wrapped to be called
// as-is, a string names a method on target invoked with target as self.
// Errors inside propagate to the protecting caller.
func handlerFor(env HostEnv, target *lua.LTable, spec lua.LValue) lua.LValue {
	L := env.State()
	return L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		args := make([]lua.LValue, 0, n+1)

		fn := spec
		if name, ok := spec.(lua.LString); ok {
			fn = target.RawGetString(string(name))
			if fn == lua.LNil {
				L.RaiseError("no method %q on handler target", string(name))
				return 0
			}
			args = append(args, target)
		}
		for i := 1; i <= n; i++ {
			args = append(args, L.Get(i))
		}
		L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: false}, args...)
		return 0
	})
}

// targetKey tags registrations belonging to one script object.
func targetKey(prefix string, tbl *lua.LTable) string {
	return fmt.Sprintf("%s:%p", prefix, tbl)
}

// seedAddonFactory provides the addon-lifecycle-object factory
// (AceAddon-3.0): NewAddon hands out objects the host tracks for lifecycle
// hooks, with RegisterEvent/UnregisterEvent routed through the event router.
func seedAddonFactory(reg *Registry, env HostEnv) {
	L := env.State()
	lib, created := reg.RequestOrCreate(L, "AceAddon-3.0", 1)
	if !created {
		return
	}

	lib.RawSetString("NewAddon", L.NewFunction(func(L *lua.LState) int {
		base := shiftSelf(L, lib)
		name := L.CheckString(base + 1)
		L.Push(env.NewAddonObject(name))
		return 1
	}))

	lib.RawSetString("GetAddon", L.NewFunction(func(L *lua.LState) int {
		base := shiftSelf(L, lib)
		name := L.CheckString(base + 1)
		silent := L.OptBool(base+2, false)
		obj, ok := env.GetAddonObject(name)
		if !ok {
			if !silent {
				env.Logf("LIB: GetAddon(%q): no such addon object", name)
			}
			L.Push(lua.LNil)
			return 1
		}
		L.Push(obj)
		return 1
	}))
}

// seedLocale provides the localization-table provider (AceLocale-3.0).
// Write tables accept any assignment; reads of missing keys echo the key
// back, which is what addons expect when a translation is absent.
func seedLocale(reg *Registry, env HostEnv) {
	L := env.State()
	lib, created := reg.RequestOrCreate(L, "AceLocale-3.0", 1)
	if !created {
		return
	}

	locales := make(map[string]*lua.LTable)

	localeFor := func(app string) *lua.LTable {
		if t, ok := locales[app]; ok {
			return t
		}
		t := L.NewTable()
		mt := L.NewTable()
		mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
			// Missing translation: the key is the string.
			L.Push(L.Get(2))
			return 1
		}))
		L.SetMetatable(t, mt)
		locales[app] = t
		return t
	}

	lib.RawSetString("NewLocale", L.NewFunction(func(L *lua.LState) int {
		base := shiftSelf(L, lib)
		app := L.CheckString(base + 1)
		L.Push(localeFor(app))
		return 1
	}))

	lib.RawSetString("GetLocale", L.NewFunction(func(L *lua.LState) int {
		base := shiftSelf(L, lib)
		app := L.CheckString(base + 1)
		L.Push(localeFor(app))
		return 1
	}))
}

// seedEventHelper provides the event-subscription helper (AceEvent-3.0):
// RegisterEvent/UnregisterEvent on arbitrary script objects, plus Embed.
func seedEventHelper(reg *Registry, env HostEnv) {
	L := env.State()
	lib, created := reg.RequestOrCreate(L, "AceEvent-3.0", 1)
	if !created {
		return
	}

	registerFn := L.NewFunction(func(L *lua.LState) int {
		target := L.CheckTable(1)
		event := L.CheckString(2)
		spec := L.Get(3)
		if spec == lua.LNil {
			// Default handler method carries the event's own name.
			spec = lua.LString(event)
		}
		env.RegisterEvent(event, targetKey("aceevent", target), handlerFor(env, target, spec))
		return 0
	})

	unregisterFn := L.NewFunction(func(L *lua.LState) int {
		target := L.CheckTable(1)
		event := L.CheckString(2)
		env.UnregisterEvent(event, targetKey("aceevent", target))
		return 0
	})

	lib.RawSetString("RegisterEvent", registerFn)
	lib.RawSetString("UnregisterEvent", unregisterFn)
	lib.RawSetString("Embed", L.NewFunction(func(L *lua.LState) int {
		base := shiftSelf(L, lib)
		target := L.CheckTable(base + 1)
		target.RawSetString("RegisterEvent", registerFn)
		target.RawSetString("UnregisterEvent", unregisterFn)
		L.Push(target)
		return 1
	}))
}

// seedTimerHelper provides the delayed-callback helper (AceTimer-3.0).
func seedTimerHelper(reg *Registry, env HostEnv) {
	L := env.State()
	lib, created := reg.RequestOrCreate(L, "AceTimer-3.0", 1)
	if !created {
		return
	}

	lib.RawSetString("ScheduleTimer", L.NewFunction(func(L *lua.LState) int {
		target := L.CheckTable(1)
		spec := L.Get(2)
		delay := float64(L.CheckNumber(3))
		var extra []lua.LValue
		for i := 4; i <= L.GetTop(); i++ {
			extra = append(extra, L.Get(i))
		}
		id := env.ScheduleTimer(
			time.Duration(delay*float64(time.Second)),
			handlerFor(env, target, spec),
			extra...,
		)
		L.Push(lua.LNumber(id))
		return 1
	}))

	lib.RawSetString("CancelTimer", L.NewFunction(func(L *lua.LState) int {
		L.CheckTable(1)
		if id, ok := L.Get(2).(lua.LNumber); ok {
			env.CancelTimer(int(id))
		}
		return 0
	}))

	lib.RawSetString("Embed", L.NewFunction(func(L *lua.LState) int {
		base := shiftSelf(L, lib)
		target := L.CheckTable(base + 1)
		target.RawSetString("ScheduleTimer", lib.RawGetString("ScheduleTimer"))
		target.RawSetString("CancelTimer", lib.RawGetString("CancelTimer"))
		L.Push(target)
		return 1
	}))
}

// seedDataBroker provides the pub/sub data broker (LibDataBroker-1.1).
func seedDataBroker(reg *Registry, env HostEnv) {
	L := env.State()
	lib, created := reg.RequestOrCreate(L, "LibDataBroker-1.1", 1)
	if !created {
		return
	}

	objects := L.NewTable()
	lib.RawSetString("proxystorage", objects)

	lib.RawSetString("NewDataObject", L.NewFunction(func(L *lua.LState) int {
		base := shiftSelf(L, lib)
		name := L.CheckString(base + 1)
		obj := L.OptTable(base+2, L.NewTable())
		objects.RawSetString(name, obj)
		L.Push(obj)
		return 1
	}))

	lib.RawSetString("GetDataObjectByName", L.NewFunction(func(L *lua.LState) int {
		base := shiftSelf(L, lib)
		name := L.CheckString(base + 1)
		L.Push(objects.RawGetString(name))
		return 1
	}))

	lib.RawSetString("DataObjectIterator", L.NewFunction(func(L *lua.LState) int {
		pairs := L.GetGlobal("pairs")
		L.Push(pairs)
		L.Push(objects)
		L.Call(1, 3)
		return 3
	}))
}

// seedCallbackHandler provides the generic callback-list helper
// (CallbackHandler-1.0): New(target) returns a registry whose Fire invokes
// every registered callback, isolating individual failures.
func seedCallbackHandler(reg *Registry, env HostEnv) {
	L := env.State()
	lib, created := reg.RequestOrCreate(L, "CallbackHandler-1.0", 1)
	if !created {
		return
	}

	lib.RawSetString("New", L.NewFunction(func(L *lua.LState) int {
		base := shiftSelf(L, lib)
		target := L.CheckTable(base + 1)

		type callback struct {
			owner string
			fn    lua.LValue
		}
		callbacks := make(map[string][]callback)

		events := L.NewTable()

		events.RawSetString("Fire", L.NewFunction(func(L *lua.LState) int {
			name := L.CheckString(2)
			var args []lua.LValue
			args = append(args, lua.LString(name))
			for i := 3; i <= L.GetTop(); i++ {
				args = append(args, L.Get(i))
			}
			for _, cb := range callbacks[name] {
				if err := env.Call(cb.fn, args...); err != nil {
					env.Logf("LIB: callback for %q (%s) failed: %v", name, cb.owner, err)
				}
			}
			return 0
		}))

		// Registration uses the dot-call convention: the caller passes its
		// own object as the first argument.
		target.RawSetString("RegisterCallback", L.NewFunction(func(L *lua.LState) int {
			owner := L.Get(1).String()
			name := L.CheckString(2)
			spec := L.Get(3)

			methodTarget := target
			if ownerTbl, ok := L.Get(1).(*lua.LTable); ok {
				methodTarget = ownerTbl
			}
			var fn lua.LValue
			switch s := spec.(type) {
			case *lua.LNilType:
				fn = handlerFor(env, methodTarget, lua.LString(name))
			case lua.LString:
				fn = handlerFor(env, methodTarget, s)
			default:
				fn = spec
			}
			callbacks[name] = append(callbacks[name], callback{owner: owner, fn: fn})
			return 0
		}))

		target.RawSetString("UnregisterCallback", L.NewFunction(func(L *lua.LState) int {
			owner := L.Get(1).String()
			name := L.CheckString(2)
			list := callbacks[name]
			kept := list[:0]
			for _, cb := range list {
				if cb.owner != owner {
					kept = append(kept, cb)
				}
			}
			callbacks[name] = kept
			return 0
		}))

		L.Push(events)
		return 1
	}))
}
