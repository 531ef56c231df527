// Package luaconv converts between Lua values and plain Go values
// (string, bool, float64, []any, map[string]any).
package luaconv

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ToLua converts a plain Go value to a Lua value. Unknown types are
// stringified rather than rejected.
func ToLua(L *lua.LState, v interface{}) lua.LValue {
	if v == nil {
		return lua.LNil
	}
	switch val := v.(type) {
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(float64(val))
	case int64:
		return lua.LNumber(float64(val))
	case string:
		return lua.LString(val)
	case []interface{}:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, ToLua(L, item))
		}
		return tbl
	case map[string]interface{}:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, ToLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// ToGo converts a Lua value to a plain Go value. Tables with sequential
// integer keys starting at 1 become slices, everything else becomes a
// string-keyed map. Functions and userdata are stringified. Cyclic
// references and tables nested past a fixed cap are replaced with
// placeholder strings rather than followed.
func ToGo(lv lua.LValue) interface{} {
	v, _ := ToGoChecked(lv)
	return v
}

// ToGoChecked converts like ToGo and additionally reports whether the value
// converted cleanly. A false result means at least one cyclic or over-deep
// table was replaced by a placeholder; callers with a diagnostics channel
// should say so.
func ToGoChecked(lv lua.LValue) (interface{}, bool) {
	w := &tableWalker{}
	v := w.toGo(lv, 0)
	return v, !w.clipped
}

// maxTableDepth bounds table nesting during conversion.
const maxTableDepth = 128

const (
	cycleMarker = "<cycle>"
	depthMarker = "<table too deep>"
)

// tableWalker tracks the tables on the current descent path so a
// self-referential value terminates instead of recursing forever. Shared
// subtables off the path convert normally.
type tableWalker struct {
	onPath  map[*lua.LTable]bool
	clipped bool
}

func (w *tableWalker) toGo(lv lua.LValue, depth int) interface{} {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if w.onPath[v] {
			w.clipped = true
			return cycleMarker
		}
		if depth >= maxTableDepth {
			w.clipped = true
			return depthMarker
		}
		if w.onPath == nil {
			w.onPath = make(map[*lua.LTable]bool)
		}
		w.onPath[v] = true
		defer delete(w.onPath, v)

		maxN := v.MaxN()
		if maxN > 0 {
			arr := make([]interface{}, 0, maxN)
			for i := 1; i <= maxN; i++ {
				arr = append(arr, w.toGo(v.RawGetInt(i), depth+1))
			}
			return arr
		}
		m := make(map[string]interface{})
		v.ForEach(func(key, val lua.LValue) {
			if ks, ok := key.(lua.LString); ok {
				m[string(ks)] = w.toGo(val, depth+1)
			} else {
				m[fmt.Sprintf("%v", key)] = w.toGo(val, depth+1)
			}
		})
		return m
	default:
		return fmt.Sprintf("%v", v)
	}
}

// DeepCopy clones a plain Go value tree (maps and slices copied, scalars
// shared).
func DeepCopy(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = DeepCopy(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	default:
		return v
	}
}
