package config

import (
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestSandboxLuaVM(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
		errMsg  string
	}{
		{name: "string operations allowed", code: `x = string.upper("hello")`},
		{name: "string methods allowed", code: `x = ("hello"):upper()`},
		{name: "table operations allowed", code: `t = {1, 2, 3}; table.insert(t, 4)`},
		{name: "math operations allowed", code: `x = math.sqrt(16)`},
		{name: "basic functions allowed", code: `x = type("hello"); y = tostring(123); z = tonumber("456")`},
		{name: "pairs allowed", code: `t = {a=1, b=2}; for k,v in pairs(t) do end`},

		{name: "os.execute blocked", code: `os.execute("ls")`, wantErr: true, errMsg: "attempt to index"},
		{name: "os.getenv blocked", code: `x = os.getenv("RUST_TOOL_ACTION_CODE_SIGN_CRTPASS")`, wantErr: true, errMsg: "attempt to index"},
		{name: "io.open blocked", code: `f = io.open("/etc/passwd")`, wantErr: true, errMsg: "attempt to index"},
		{name: "require blocked", code: `socket = require("socket")`, wantErr: true, errMsg: "attempt to call"},
		{name: "dofile blocked", code: `dofile("/tmp/evil.lua")`, wantErr: true, errMsg: "attempt to call"},
		{name: "loadfile blocked", code: `f = loadfile("/tmp/evil.lua")`, wantErr: true, errMsg: "attempt to call"},
		{name: "load blocked", code: `f = load("return 1+1")`, wantErr: true, errMsg: "attempt to call"},
		{name: "loadstring blocked", code: `f = loadstring("return 1+1")`, wantErr: true, errMsg: "attempt to call"},
		{name: "debug blocked", code: `debug.getinfo(1)`, wantErr: true, errMsg: "attempt to index"},
		{name: "setmetatable blocked", code: `setmetatable({}, {})`, wantErr: true, errMsg: "attempt to call"},
		{name: "getmetatable blocked", code: `getmetatable("")`, wantErr: true, errMsg: "attempt to call"},
		{name: "rawset blocked", code: `rawset({}, "a", 1)`, wantErr: true, errMsg: "attempt to call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			L := newSandboxedVM()
			defer L.Close()

			err := L.DoString(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("code %q: error = %v, wantErr %v", tt.code, err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("code %q: error = %v, want substring %q", tt.code, err, tt.errMsg)
			}
		})
	}
}

func TestSandboxLuaVM_Libraries(t *testing.T) {
	L := newSandboxedVM()
	defer L.Close()

	code := `
		t = {1, 2, 3}
		table.insert(t, 4)
		result_concat = table.concat(t, ",")
		result_upper = string.upper("hello")
		result_floor = math.floor(3.7)
	`
	if err := L.DoString(code); err != nil {
		t.Fatalf("library functions failed: %v", err)
	}

	if got := L.GetGlobal("result_concat").String(); got != "1,2,3,4" {
		t.Errorf("table.concat = %s, want 1,2,3,4", got)
	}
	if got := L.GetGlobal("result_upper").String(); got != "HELLO" {
		t.Errorf("string.upper = %s, want HELLO", got)
	}
	if got := L.GetGlobal("result_floor"); lua.LVAsNumber(got) != 3 {
		t.Errorf("math.floor = %v, want 3", got)
	}
}
