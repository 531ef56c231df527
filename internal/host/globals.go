package host

import (
	"strconv"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/addonbox/addonbox/internal/library"
	"github.com/addonbox/addonbox/internal/savedvars"
)

// installGlobals builds the emulated script environment. Order matters:
// polyfills and print first so everything after can rely on them, then the
// persistence bridge, the library registry with its seeded shims, the frame
// API, timers, and finally the static environment facts.
func (h *Host) installGlobals() {
	h.installPolyfills()
	h.installPrint()
	h.installSavedVars()
	h.installLibStub()
	h.installFrameAPI()
	h.installTimers()
	h.installEnvFacts()
}

// installPolyfills aliases the flat global names scripts expect onto the
// standard libraries, and adds the handful of helpers that have no stdlib
// equivalent.
func (h *Host) installPolyfills() {
	L := h.L

	strTbl := L.GetGlobal("string").(*lua.LTable)
	for global, fn := range map[string]string{
		"format":   "format",
		"strlen":   "len",
		"strsub":   "sub",
		"strlower": "lower",
		"strupper": "upper",
		"strrep":   "rep",
		"strfind":  "find",
		"strmatch": "match",
		"gmatch":   "gmatch",
		"gsub":     "gsub",
		"strbyte":  "byte",
		"strchar":  "char",
	} {
		L.SetGlobal(global, strTbl.RawGetString(fn))
	}

	tblTbl := L.GetGlobal("table").(*lua.LTable)
	L.SetGlobal("tinsert", tblTbl.RawGetString("insert"))
	L.SetGlobal("tremove", tblTbl.RawGetString("remove"))
	L.SetGlobal("sort", tblTbl.RawGetString("sort"))
	L.SetGlobal("getn", tblTbl.RawGetString("getn"))

	mathTbl := L.GetGlobal("math").(*lua.LTable)
	for global, fn := range map[string]string{
		"floor":  "floor",
		"ceil":   "ceil",
		"abs":    "abs",
		"max":    "max",
		"min":    "min",
		"random": "random",
		"mod":    "fmod",
	} {
		L.SetGlobal(global, mathTbl.RawGetString(fn))
	}

	L.SetGlobal("strsplit", L.NewFunction(func(L *lua.LState) int {
		delim := L.CheckString(1)
		s := L.CheckString(2)
		if delim == "" {
			L.Push(lua.LString(s))
			return 1
		}
		parts := strings.Split(s, delim)
		for _, p := range parts {
			L.Push(lua.LString(p))
		}
		return len(parts)
	}))

	L.SetGlobal("strjoin", L.NewFunction(func(L *lua.LState) int {
		delim := L.CheckString(1)
		parts := make([]string, 0, L.GetTop()-1)
		for i := 2; i <= L.GetTop(); i++ {
			parts = append(parts, L.Get(i).String())
		}
		L.Push(lua.LString(strings.Join(parts, delim)))
		return 1
	}))

	L.SetGlobal("strtrim", L.NewFunction(func(L *lua.LState) int {
		s := L.CheckString(1)
		cutset := " \t\r\n"
		if L.GetTop() >= 2 {
			cutset = L.CheckString(2)
		}
		L.Push(lua.LString(strings.Trim(s, cutset)))
		return 1
	}))

	L.SetGlobal("wipe", L.NewFunction(func(L *lua.LState) int {
		t := L.CheckTable(1)
		var keys []lua.LValue
		t.ForEach(func(k, _ lua.LValue) {
			keys = append(keys, k)
		})
		for _, k := range keys {
			t.RawSet(k, lua.LNil)
		}
		L.Push(t)
		return 1
	}))

	L.SetGlobal("getglobal", L.NewFunction(func(L *lua.LState) int {
		L.Push(L.GetGlobal(L.CheckString(1)))
		return 1
	}))

	L.SetGlobal("setglobal", L.NewFunction(func(L *lua.LState) int {
		L.SetGlobal(L.CheckString(1), L.Get(2))
		return 0
	}))

	L.SetGlobal("tostringall", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		for i := 1; i <= n; i++ {
			L.Push(lua.LString(L.Get(i).String()))
		}
		return n
	}))

	L.SetGlobal("debugstack", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(L.Where(1)))
		return 1
	}))
}

// installPrint reroutes print onto the diagnostic channel.
func (h *Host) installPrint() {
	L := h.L
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.Get(i).String())
		}
		h.diag.Printf("LUA: %s", joinTab(parts))
		return 0
	}))
}

// installSavedVars exposes the shared persistence root. Per-addon globals
// declared in manifests are bound later, as each addon loads.
func (h *Host) installSavedVars() {
	h.L.SetGlobal("SavedVariables", savedvars.NewProxy(h.L, h.saved, nil, h.diag.Printf))
}

// BindSavedVariable installs a manifest-declared global as a proxy over its
// own sub-tree of the persistence root. Queue context only.
func (h *Host) bindSavedVariable(name string) {
	if name == "" {
		return
	}
	h.L.SetGlobal(name, savedvars.NewProxy(h.L, h.saved, []string{name}, h.diag.Printf))
}

// installLibStub publishes the library-discovery global. Calling the table
// itself is lookup; NewLibrary registers. Minor versions embedded in
// strings resolve to their first digit run.
func (h *Host) installLibStub() {
	L := h.L
	stub := L.NewTable()
	stub.RawSetString("minor", lua.LNumber(2))

	lookup := func(L *lua.LState, major string, silent bool) int {
		tbl := h.libs.Lookup(L, major, silent)
		if tbl == nil {
			L.Push(lua.LNil)
			return 1
		}
		minor, _ := h.libs.Minor(major)
		L.Push(tbl)
		L.Push(lua.LNumber(minor))
		return 2
	}

	stub.RawSetString("NewLibrary", L.NewFunction(func(L *lua.LState) int {
		base := 0
		if L.Get(1) == stub {
			base = 1
		}
		major := L.CheckString(base + 1)
		minor := minorOf(L.Get(base + 2))
		tbl, created := h.libs.RequestOrCreate(L, major, minor)
		if !created {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(tbl)
		return 1
	}))

	stub.RawSetString("GetLibrary", L.NewFunction(func(L *lua.LState) int {
		base := 0
		if L.Get(1) == stub {
			base = 1
		}
		major := L.CheckString(base + 1)
		silent := lua.LVAsBool(L.Get(base + 2))
		return lookup(L, major, silent)
	}))

	mt := L.NewTable()
	mt.RawSetString("__call", L.NewFunction(func(L *lua.LState) int {
		major := L.CheckString(2)
		silent := lua.LVAsBool(L.Get(3))
		return lookup(L, major, silent)
	}))
	L.SetMetatable(stub, mt)

	L.SetGlobal("LibStub", stub)
	library.Seed(h.libs, h)
}

// minorOf extracts a minor version from a number or a string carrying one
// ("$Revision: 17 $", "1.0.12"): the first digit run wins. Anything else
// registers as 1.
func minorOf(v lua.LValue) int {
	switch lv := v.(type) {
	case lua.LNumber:
		return int(lv)
	case lua.LString:
		s := string(lv)
		i := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
		if i < 0 {
			return 1
		}
		j := i
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		n, err := strconv.Atoi(s[i:j])
		if err != nil {
			return 1
		}
		return n
	default:
		return 1
	}
}

// installTimers publishes the C_Timer namespace.
func (h *Host) installTimers() {
	L := h.L
	ct := L.NewTable()
	ct.RawSetString("After", L.NewFunction(func(L *lua.LState) int {
		seconds := float64(L.CheckNumber(1))
		fn := L.CheckFunction(2)
		if seconds < 0 {
			seconds = 0
		}
		h.ScheduleTimer(time.Duration(seconds*float64(time.Second)), fn)
		return 0
	}))
	L.SetGlobal("C_Timer", ct)
}

// installEnvFacts publishes the static environment answers scripts probe
// for. The values are fixed; nothing here varies per session except the
// clock.
func (h *Host) installEnvFacts() {
	L := h.L

	ret := func(vals ...lua.LValue) *lua.LFunction {
		return L.NewFunction(func(L *lua.LState) int {
			for _, v := range vals {
				L.Push(v)
			}
			return len(vals)
		})
	}

	L.SetGlobal("GetLocale", ret(lua.LString("enUS")))
	L.SetGlobal("GetRealmName", ret(lua.LString("Localhost")))
	L.SetGlobal("GetBuildInfo", ret(
		lua.LString("3.3.5"), lua.LString("12340"),
		lua.LString("Jun 24 2010"), lua.LNumber(30300)))
	L.SetGlobal("GetFramerate", ret(lua.LNumber(60)))
	L.SetGlobal("IsLoggedIn", ret(lua.LTrue))
	L.SetGlobal("InCombatLockdown", ret(lua.LFalse))

	L.SetGlobal("UnitName", ret(lua.LString("Player")))
	L.SetGlobal("UnitClass", ret(lua.LString("Warrior"), lua.LString("WARRIOR")))
	L.SetGlobal("UnitLevel", ret(lua.LNumber(60)))
	L.SetGlobal("UnitFactionGroup", ret(lua.LString("Alliance"), lua.LString("Alliance")))

	L.SetGlobal("GetTime", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Since(h.start).Seconds()))
		return 1
	}))

	L.SetGlobal("GetAddOnMetadata", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		key := strings.ToLower(L.CheckString(2))
		for _, info := range h.Addons() {
			if info.Name != name {
				continue
			}
			switch key {
			case "title":
				L.Push(lua.LString(info.Title))
			case "notes":
				L.Push(lua.LString(info.Notes))
			case "version":
				L.Push(lua.LString(info.Version))
			default:
				L.Push(lua.LNil)
			}
			return 1
		}
		L.Push(lua.LNil)
		return 1
	}))

	chatFrame := L.NewTable()
	chatFrame.RawSetString("AddMessage", L.NewFunction(func(L *lua.LState) int {
		msg := L.Get(2).String()
		h.diag.Printf("CHAT: %s", msg)
		return 0
	}))
	L.SetGlobal("DEFAULT_CHAT_FRAME", chatFrame)

	L.SetGlobal("SlashCmdList", L.NewTable())
}

// RunSlashCommand resolves a "/cmd rest" input against the registered
// SLASH_<KEY><n> globals and invokes the matching SlashCmdList handler.
// Returns false when no command matches.
func (h *Host) RunSlashCommand(input string) bool {
	var matched bool
	h.do(func() {
		if h.stopped.Load() {
			return
		}
		L := h.L
		input = strings.TrimSpace(input)
		cmd, rest, _ := strings.Cut(input, " ")
		if cmd == "" || cmd[0] != '/' {
			return
		}

		list, ok := L.GetGlobal("SlashCmdList").(*lua.LTable)
		if !ok {
			return
		}

		globals := L.Get(lua.GlobalsIndex).(*lua.LTable)
		globals.ForEach(func(k, v lua.LValue) {
			if matched {
				return
			}
			name, isStr := k.(lua.LString)
			if !isStr || !strings.HasPrefix(string(name), "SLASH_") {
				return
			}
			if !strings.EqualFold(v.String(), cmd) {
				return
			}
			// SLASH_FOO1 -> key FOO
			key := strings.TrimPrefix(string(name), "SLASH_")
			key = strings.TrimRight(key, "0123456789")
			fn := list.RawGetString(key)
			if fn == lua.LNil {
				return
			}
			matched = true
			if err := h.pcall(fn, lua.LString(strings.TrimSpace(rest))); err != nil {
				h.diag.Printf("SLASH: %s failed: %v", cmd, err)
			}
		})
	})
	return matched
}
