package savedvars

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/addonbox/addonbox/internal/luaconv"
)

// NewProxy builds the script-visible table for one node of the store. Reads
// resolve through the store so bulk snapshot loads are always visible;
// writes convert the value to its Go form, apply it, and fire the change
// notification. Nested mappings come back as child proxies with stable
// identity, so deep writes persist and notify like top-level ones.
// logf (optional) receives a diagnostic when a written value had to be
// clipped during conversion.
func NewProxy(L *lua.LState, store *Store, path []string, logf func(format string, args ...any)) *lua.LTable {
	tbl := L.NewTable()
	children := make(map[string]*lua.LTable)

	mt := L.NewTable()

	mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(2)
		v, ok := store.Get(path, key)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		if _, isMap := v.(map[string]any); isMap {
			child, ok := children[key]
			if !ok {
				childPath := append(append([]string{}, path...), key)
				child = NewProxy(L, store, childPath, logf)
				children[key] = child
			}
			L.Push(child)
			return 1
		}
		L.Push(luaconv.ToLua(L, v))
		return 1
	}))

	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(2)
		val := L.Get(3)
		delete(children, key)
		if val == lua.LNil {
			store.Set(path, key, nil)
			return 0
		}
		goVal, clean := luaconv.ToGoChecked(val)
		if !clean && logf != nil {
			full := strings.Join(append(append([]string{}, path...), key), ".")
			logf("SAVEDVARS: %s held a cyclic or over-deep table, clipped on write", full)
		}
		store.Set(path, key, goVal)
		return 0
	}))

	L.SetMetatable(tbl, mt)
	return tbl
}
