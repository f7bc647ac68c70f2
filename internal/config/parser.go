package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/platform"
)

// Parser evaluates Lua configuration with the platform table injected.
type Parser struct {
	detector platform.Detector
	logger   logging.Logger
	target   *platform.Triple
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithLogger routes parser warnings to logger.
func WithLogger(logger logging.Logger) ParserOption {
	return func(p *Parser) { p.logger = logger }
}

// WithTarget exposes target as platform.target inside the config.
func WithTarget(target *platform.Triple) ParserOption {
	return func(p *Parser) { p.target = target }
}

// NewParser creates a config parser. A nil detector leaves the host fields
// of the platform table unset.
func NewParser(detector platform.Detector, opts ...ParserOption) *Parser {
	p := &Parser{detector: detector, logger: logging.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile reads and evaluates the config at path on top of base.
func (p *Parser) ParseFile(ctx context.Context, path string, base *Config) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if info.Size() > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s is %d bytes (limit %d)", path, info.Size(), MaxConfigSize),
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := p.ParseString(ctx, string(data), base)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) && pe.File == "" {
			pe.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// ParseString evaluates luaCode and overlays the codesign and release
// tables it defines onto a copy of base. A nil base starts from Default.
func (p *Parser) ParseString(ctx context.Context, luaCode string, base *Config) (*Config, error) {
	for _, finding := range DetectSensitiveData(luaCode) {
		p.logger.Warn("config may contain a secret", "pattern", finding.PatternName, "line", finding.Line)
	}

	L := newSandboxedVM()
	defer L.Close()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultParseTimeout)
		defer cancel()
	}
	L.SetContext(ctx)

	var info *platform.Info
	if p.detector != nil {
		detected, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		info = detected
	}
	if err := platform.InjectPlatformTable(L, info, p.target); err != nil {
		return nil, fmt.Errorf("inject platform table: %w", err)
	}

	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: ctxErr.Error()}
		}
		return nil, &ParseError{Message: "Lua error", Detail: err.Error()}
	}

	cfg := Default()
	if base != nil {
		copied := *base
		cfg = &copied
	}
	if err := extractConfig(L, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseError is a config evaluation error with a user-facing message.
type ParseError struct {
	File    string
	Message string
	Detail  string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

func extractConfig(L *lua.LState, cfg *Config) error {
	if v := L.GetGlobal(luaGlobalCodesign); v != lua.LNil {
		t, ok := v.(*lua.LTable)
		if !ok {
			return typeError(luaGlobalCodesign, "table", v)
		}
		if err := extractCodeSign(t, &cfg.CodeSign); err != nil {
			return err
		}
	}
	if v := L.GetGlobal(luaGlobalRelease); v != lua.LNil {
		t, ok := v.(*lua.LTable)
		if !ok {
			return typeError(luaGlobalRelease, "table", v)
		}
		if err := extractRelease(t, &cfg.Release); err != nil {
			return err
		}
	}
	return nil
}

func extractCodeSign(t *lua.LTable, cs *CodeSign) error {
	r := fieldReader{table: t, prefix: luaGlobalCodesign}
	r.str(luaFieldSubject, &cs.Subject)
	r.str(luaFieldDNSName, &cs.DNSName)
	r.str(luaFieldTimestampURL, &cs.TimestampURL)
	r.int(luaFieldValidityDays, &cs.ValidityDays)
	r.str(luaFieldKeyType, &cs.KeyType)
	r.int(luaFieldKeyBits, &cs.KeyBits)
	r.str(luaFieldCertificateExt, &cs.CertificateExt)
	r.str(luaFieldPasswordExt, &cs.PasswordExt)
	r.str(luaFieldEnvPrefix, &cs.EnvPrefix)
	r.str(luaFieldDescription, &cs.Description)
	r.str(luaFieldURL, &cs.URL)
	if store := r.subtable(luaFieldStore); store != nil {
		sr := fieldReader{table: store, prefix: luaGlobalCodesign + "." + luaFieldStore, err: r.err}
		sr.str(luaFieldBackend, &cs.Store.Backend)
		sr.str(luaFieldDir, &cs.Store.Dir)
		sr.str(luaFieldJournalDir, &cs.Store.JournalDir)
		r.err = sr.err
	}
	return r.err
}

func extractRelease(t *lua.LTable, rel *Release) error {
	r := fieldReader{table: t, prefix: luaGlobalRelease}
	r.str(luaFieldTool, &rel.Tool)
	r.str(luaFieldTarget, &rel.Target)
	r.str(luaFieldExeExt, &rel.ExeExt)
	r.str(luaFieldArchiveType, &rel.ArchiveType)
	r.str(luaFieldBuildMode, &rel.BuildMode)
	r.bool(luaFieldSign, &rel.Sign)
	r.str(luaFieldVersion, &rel.Version)
	r.str(luaFieldSigningKey, &rel.SigningKey)
	r.str(luaFieldOutputDir, &rel.OutputDir)
	return r.err
}

// fieldReader copies typed fields out of a Lua table, keeping the first
// type mismatch. Absent or nil fields leave the destination untouched.
type fieldReader struct {
	table  *lua.LTable
	prefix string
	err    error
}

func (r *fieldReader) get(name string) lua.LValue {
	if r.err != nil {
		return lua.LNil
	}
	return r.table.RawGetString(name)
}

func (r *fieldReader) str(name string, dst *string) {
	switch v := r.get(name).(type) {
	case *lua.LNilType:
	case lua.LString:
		*dst = string(v)
	default:
		r.err = typeError(r.prefix+"."+name, "string", v)
	}
}

func (r *fieldReader) int(name string, dst *int) {
	switch v := r.get(name).(type) {
	case *lua.LNilType:
	case lua.LNumber:
		if float64(v) != float64(int(v)) {
			r.err = &ParseError{Message: "invalid config field " + r.prefix + "." + name, Detail: fmt.Sprintf("expected integer, got %v", v)}
			return
		}
		*dst = int(v)
	default:
		r.err = typeError(r.prefix+"."+name, "number", v)
	}
}

func (r *fieldReader) bool(name string, dst *bool) {
	switch v := r.get(name).(type) {
	case *lua.LNilType:
	case lua.LBool:
		*dst = bool(v)
	default:
		r.err = typeError(r.prefix+"."+name, "boolean", v)
	}
}

func (r *fieldReader) subtable(name string) *lua.LTable {
	switch v := r.get(name).(type) {
	case *lua.LTable:
		return v
	case *lua.LNilType:
	default:
		r.err = typeError(r.prefix+"."+name, "table", v)
	}
	return nil
}

func typeError(field, want string, got lua.LValue) error {
	return &ParseError{
		Message: "invalid config field " + field,
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

// FormatError shortens Lua errors for display. Verbose output keeps the
// traceback.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		return err.Error()
	}
	if verbose {
		return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
	}
	detail := parseErr.Detail
	if idx := strings.Index(detail, "stack traceback"); idx > 0 {
		detail = strings.TrimSpace(detail[:idx])
	}
	if parseErr.File != "" {
		return fmt.Sprintf("%s: %s: %s", parseErr.File, parseErr.Message, detail)
	}
	return fmt.Sprintf("%s: %s", parseErr.Message, detail)
}
