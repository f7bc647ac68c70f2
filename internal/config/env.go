package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Overrides holds the RUST_TOOL_ACTION_* environment settings. Nil fields
// were not set.
type Overrides struct {
	ConfigPath string `env:"CONFIG"`
	LogLevel   string `env:"LOG_LEVEL"`

	Subject      *string `env:"CODE_SIGN_SUBJECT"`
	DNSName      *string `env:"CODE_SIGN_DNS_NAME"`
	TimestampURL *string `env:"TIMESTAMP_URL"`
	ValidityDays *int    `env:"CODE_SIGN_VALIDITY_DAYS"`
	KeyType      *string `env:"CODE_SIGN_KEY_TYPE"`
	KeyBits      *int    `env:"CODE_SIGN_KEY_BITS"`

	StoreBackend *string `env:"STORE_BACKEND"`
	StoreDir     *string `env:"STORE_DIR"`
	JournalDir   *string `env:"JOURNAL_DIR"`

	Tool        *string `env:"TOOL"`
	Target      *string `env:"TARGET"`
	ExeExt      *string `env:"EXE_EXT"`
	ArchiveType *string `env:"ARCHIVE_TYPE"`
	BuildMode   *string `env:"BUILD_MODE"`
	Sign        *bool   `env:"SIGN"`
	Version     *string `env:"VERSION"`
	SigningKey  *string `env:"SIGNING_KEY"`
	OutputDir   *string `env:"OUTPUT_DIR"`
}

// ReadOverrides parses overrides from environ, or from the process
// environment when environ is nil.
func ReadOverrides(environ map[string]string) (*Overrides, error) {
	var o Overrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse %s* environment: %w", EnvPrefix, err)
	}
	return &o, nil
}

// Apply copies every set override into cfg.
func (o *Overrides) Apply(cfg *Config) {
	cs := &cfg.CodeSign
	setString(&cs.Subject, o.Subject)
	setString(&cs.DNSName, o.DNSName)
	setString(&cs.TimestampURL, o.TimestampURL)
	setInt(&cs.ValidityDays, o.ValidityDays)
	setString(&cs.KeyType, o.KeyType)
	setInt(&cs.KeyBits, o.KeyBits)
	setString(&cs.Store.Backend, o.StoreBackend)
	setString(&cs.Store.Dir, o.StoreDir)
	setString(&cs.Store.JournalDir, o.JournalDir)

	r := &cfg.Release
	setString(&r.Tool, o.Tool)
	setString(&r.Target, o.Target)
	setString(&r.ExeExt, o.ExeExt)
	setString(&r.ArchiveType, o.ArchiveType)
	setString(&r.BuildMode, o.BuildMode)
	if o.Sign != nil {
		r.Sign = *o.Sign
	}
	setString(&r.Version, o.Version)
	setString(&r.SigningKey, o.SigningKey)
	setString(&r.OutputDir, o.OutputDir)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
