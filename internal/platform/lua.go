package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable installs a read-only global "platform" table describing
// info into L. Call it before running any user configuration.
func InjectPlatformTable(L *lua.LState, info *Info) error {
	t := L.NewTable()

	L.SetField(t, "os", lua.LString(info.OS))
	L.SetField(t, "arch", lua.LString(info.Arch))
	L.SetField(t, "arch_raw", lua.LString(info.ArchRaw))

	L.SetField(t, "is_linux", lua.LBool(info.IsLinux()))
	L.SetField(t, "is_macos", lua.LBool(info.IsMacOS()))
	L.SetField(t, "is_windows", lua.LBool(info.IsWindows()))
	L.SetField(t, "is_alpine", lua.LBool(info.IsAlpine()))
	L.SetField(t, "is_amd64", lua.LBool(info.IsAMD64()))
	L.SetField(t, "is_arm64", lua.LBool(info.IsARM64()))

	if distro := info.GetDistro(); distro != nil {
		d := L.NewTable()
		L.SetField(d, "id", lua.LString(distro.ID))
		L.SetField(d, "family", lua.LString(distro.Family))
		L.SetField(d, "version", lua.LString(distro.Version))
		L.SetField(t, "distro", d)
	}

	// when(cond, value) returns value if cond is true, nil otherwise
	L.SetField(t, "when", L.NewFunction(func(L *lua.LState) int {
		if L.CheckBool(1) {
			L.Push(L.Get(2))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))

	L.SetGlobal("platform", makeReadOnly(L, t))
	return nil
}

// makeReadOnly wraps table in an empty proxy whose metatable forwards reads
// and rejects writes.
func makeReadOnly(L *lua.LState, table *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", table)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform table is read-only and cannot be modified")
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
