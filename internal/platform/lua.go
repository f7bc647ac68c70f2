package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable creates a read-only `platform` table describing the
// host and, when target is non-nil, the build target, and sets it as a
// global. Call it before loading user configuration code.
func InjectPlatformTable(L *lua.LState, info *Info, target *Triple) error {
	platformTable := L.NewTable()

	if info != nil {
		L.SetField(platformTable, "os", lua.LString(info.OS))
		L.SetField(platformTable, "arch", lua.LString(info.Arch))
		L.SetField(platformTable, "arch_raw", lua.LString(info.ArchRaw))
		L.SetField(platformTable, "is_linux", lua.LBool(info.IsLinux()))
		L.SetField(platformTable, "is_macos", lua.LBool(info.IsMacOS()))
		L.SetField(platformTable, "is_windows", lua.LBool(info.IsWindows()))
		L.SetField(platformTable, "is_amd64", lua.LBool(info.IsAMD64()))
		L.SetField(platformTable, "is_arm64", lua.LBool(info.IsARM64()))
		if info.IsLinux() && info.Family != "" {
			L.SetField(platformTable, "linux_family", lua.LString(info.Family))
		}
	}

	if target != nil {
		targetTable := L.NewTable()
		L.SetField(targetTable, "triple", lua.LString(target.Raw))
		L.SetField(targetTable, "os", lua.LString(target.OS))
		L.SetField(targetTable, "arch", lua.LString(target.Arch))
		L.SetField(targetTable, "env", lua.LString(target.Env))
		L.SetField(targetTable, "is_windows", lua.LBool(target.IsWindows()))
		L.SetField(targetTable, "exe_ext", lua.LString(target.ExeExt()))
		L.SetField(targetTable, "archive_type", lua.LString(target.ArchiveType()))
		L.SetField(platformTable, "target", makeReadOnly(L, targetTable))
	}

	// when(condition, value) returns value if condition is true, nil otherwise
	whenFunc := L.NewFunction(func(L *lua.LState) int {
		cond := L.CheckBool(1)
		value := L.Get(2)
		if cond {
			L.Push(value)
		} else {
			L.Push(lua.LNil)
		}
		return 1
	})
	L.SetField(platformTable, "when", whenFunc)

	L.SetGlobal("platform", makeReadOnly(L, platformTable))
	return nil
}

// makeReadOnly returns an empty proxy whose metatable redirects reads to
// table and rejects writes.
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
