package config

import (
	lua "github.com/yuin/gopher-lua"
)

// blockedGlobals are removed before any user code runs. Configs are
// declarative: no process, filesystem or code-loading access.
var blockedGlobals = []string{
	"os",
	"io",
	"require",
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"debug",
	"collectgarbage",
}

func sandboxLuaVM(L *lua.LState) {
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a small Lua VM with the sandbox applied.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize:       256,
		RegistrySize:        1024 * 8,
		IncludeGoStackTrace: false,
	})
	sandboxLuaVM(L)
	return L
}
