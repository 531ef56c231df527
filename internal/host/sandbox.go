package host

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// newSandboxedState builds the interpreter with only the safe standard
// libraries: base, table, string, math, coroutine. No file, network, or
// process access is reachable from script code.
func newSandboxedState(maxMemoryMB int) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       256,
		RegistrySize:        1024 * 4,
		RegistryMaxSize:     registryMaxSize(maxMemoryMB),
		RegistryGrowStep:    32,
		MinimizeStackMemory: true,
	})

	for _, pair := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(pair.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(pair.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open %s: %w", pair.name, err)
		}
	}

	// Base opens a few escape hatches we do not want scripts to have.
	for _, name := range []string{"dofile", "loadfile", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	return L, nil
}

// registryMaxSize derives an interpreter registry bound from the configured
// memory budget. Registry slots are the dominant per-state allocation, so
// capping them keeps a runaway script from exhausting the process.
func registryMaxSize(maxMemoryMB int) int {
	if maxMemoryMB <= 0 {
		return 1024 * 256
	}
	size := maxMemoryMB * 1024 * 4
	if size < 1024*8 {
		size = 1024 * 8
	}
	return size
}
