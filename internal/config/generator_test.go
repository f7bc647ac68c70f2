package config

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestGenerator_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.CodeSign.Subject = `Quoted "subject" with \ backslash`
	cfg.CodeSign.TimestampURL = ""
	cfg.CodeSign.KeyType = "rsa"
	cfg.CodeSign.KeyBits = 4096
	cfg.CodeSign.Description = "line1\nline2"
	cfg.CodeSign.Store = Store{Backend: "dir", Dir: "/tmp/store", JournalDir: "/tmp/journal"}
	cfg.Release = Release{
		Tool:        "mytool",
		Target:      "x86_64-pc-windows-msvc",
		ArchiveType: "zip",
		BuildMode:   BuildModeDebug,
		Sign:        true,
		OutputDir:   "dist",
	}

	code := NewGenerator().Generate(cfg)
	got, err := NewParser(nil).ParseString(context.Background(), code, nil)
	if err != nil {
		t.Fatalf("ParseString(generated) error = %v\n%s", err, code)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("round trip mismatch\n got: %+v\nwant: %+v\n%s", got, cfg, code)
	}
}

func TestGenerator_OmitsEmptyOptionalFields(t *testing.T) {
	code := NewGenerator().Generate(Default())
	for _, field := range []string{luaFieldKeyBits, luaFieldDescription, luaFieldTool, luaFieldSigningKey} {
		if strings.Contains(code, field+" =") {
			t.Errorf("generated code contains unset field %q:\n%s", field, code)
		}
	}
	if !strings.Contains(code, "sign = false,") {
		t.Errorf("generated code should always carry sign:\n%s", code)
	}
}

func TestQuoteLuaString(t *testing.T) {
	g := NewGenerator()
	tests := []struct {
		in, want string
	}{
		{"plain", `"plain"`},
		{`say "hi"`, `"say \"hi\""`},
		{`C:\x`, `"C:\\x"`},
		{"a\nb\tc\r", `"a\nb\tc\r"`},
	}
	for _, tt := range tests {
		if got := g.quoteLuaString(tt.in); got != tt.want {
			t.Errorf("quoteLuaString(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
