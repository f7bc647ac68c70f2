package config

import (
	"bytes"
	"fmt"
	"strings"
)

// Generator renders a Config back into Lua source.
type Generator struct {
	indent string
}

// NewGenerator creates a generator indenting with two spaces.
func NewGenerator() *Generator {
	return &Generator{indent: "  "}
}

// Generate renders cfg. Feeding the output to Parser.ParseString yields an
// equal Config.
func (g *Generator) Generate(cfg *Config) string {
	var buf bytes.Buffer
	buf.WriteString("-- Effective configuration\n\n")

	cs := cfg.CodeSign
	buf.WriteString(luaGlobalCodesign + " = {\n")
	g.str(&buf, 1, luaFieldSubject, cs.Subject)
	g.str(&buf, 1, luaFieldDNSName, cs.DNSName)
	g.str(&buf, 1, luaFieldTimestampURL, cs.TimestampURL)
	g.int(&buf, 1, luaFieldValidityDays, cs.ValidityDays)
	g.str(&buf, 1, luaFieldKeyType, cs.KeyType)
	if cs.KeyBits != 0 {
		g.int(&buf, 1, luaFieldKeyBits, cs.KeyBits)
	}
	g.str(&buf, 1, luaFieldCertificateExt, cs.CertificateExt)
	g.str(&buf, 1, luaFieldPasswordExt, cs.PasswordExt)
	g.str(&buf, 1, luaFieldEnvPrefix, cs.EnvPrefix)
	g.optStr(&buf, 1, luaFieldDescription, cs.Description)
	g.optStr(&buf, 1, luaFieldURL, cs.URL)
	buf.WriteString(g.indent + luaFieldStore + " = {\n")
	g.str(&buf, 2, luaFieldBackend, cs.Store.Backend)
	g.optStr(&buf, 2, luaFieldDir, cs.Store.Dir)
	g.optStr(&buf, 2, luaFieldJournalDir, cs.Store.JournalDir)
	buf.WriteString(g.indent + "},\n")
	buf.WriteString("}\n\n")

	r := cfg.Release
	buf.WriteString(luaGlobalRelease + " = {\n")
	g.optStr(&buf, 1, luaFieldTool, r.Tool)
	g.optStr(&buf, 1, luaFieldTarget, r.Target)
	g.optStr(&buf, 1, luaFieldExeExt, r.ExeExt)
	g.optStr(&buf, 1, luaFieldArchiveType, r.ArchiveType)
	g.str(&buf, 1, luaFieldBuildMode, r.BuildMode)
	g.line(&buf, 1, fmt.Sprintf("%s = %t,", luaFieldSign, r.Sign))
	g.optStr(&buf, 1, luaFieldVersion, r.Version)
	g.optStr(&buf, 1, luaFieldSigningKey, r.SigningKey)
	g.optStr(&buf, 1, luaFieldOutputDir, r.OutputDir)
	buf.WriteString("}\n")

	return buf.String()
}

func (g *Generator) line(buf *bytes.Buffer, depth int, s string) {
	buf.WriteString(strings.Repeat(g.indent, depth))
	buf.WriteString(s)
	buf.WriteString("\n")
}

func (g *Generator) str(buf *bytes.Buffer, depth int, name, value string) {
	g.line(buf, depth, name+" = "+g.quoteLuaString(value)+",")
}

func (g *Generator) optStr(buf *bytes.Buffer, depth int, name, value string) {
	if value != "" {
		g.str(buf, depth, name, value)
	}
}

func (g *Generator) int(buf *bytes.Buffer, depth int, name string, value int) {
	g.line(buf, depth, fmt.Sprintf("%s = %d,", name, value))
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\") // backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return "\"" + s + "\""
}
