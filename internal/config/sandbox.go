package config

import (
	lua "github.com/yuin/gopher-lua"
)

// sandboxLuaVM strips everything that lets a config touch the host:
// os, io, module loading, debug and metatable access. string, table, math
// and the basic functions stay available.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range []string{
		"os", "io", "debug", "package",
		"require", "dofile", "loadfile", "load", "loadstring",
		"getmetatable", "setmetatable", "rawset", "rawequal",
		"collectgarbage", "module", "newproxy",
	} {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a Lua state for config evaluation. Only the
// libraries the schema needs are opened.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	sandboxLuaVM(L)
	return L
}
