package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"empty subject", func(c *Config) { c.CodeSign.Subject = " " }, "codesign.subject"},
		{"zero validity", func(c *Config) { c.CodeSign.ValidityDays = 0 }, "codesign.validity_days"},
		{"validity too long", func(c *Config) { c.CodeSign.ValidityDays = MaxValidityDays + 1 }, "codesign.validity_days"},
		{"unknown key type", func(c *Config) { c.CodeSign.KeyType = "dsa" }, "codesign.key_type"},
		{"odd RSA size", func(c *Config) { c.CodeSign.KeyType = "rsa"; c.CodeSign.KeyBits = 1024 }, "codesign.key_bits"},
		{"extension without dot", func(c *Config) { c.CodeSign.CertificateExt = "crt" }, "codesign.certificate_ext"},
		{"extension with separator", func(c *Config) { c.CodeSign.PasswordExt = ".a/b" }, "codesign.password_ext"},
		{"same extensions", func(c *Config) { c.CodeSign.PasswordExt = ".CRT" }, "codesign.password_ext"},
		{"empty env prefix", func(c *Config) { c.CodeSign.EnvPrefix = "" }, "codesign.env_prefix"},
		{"bad timestamp scheme", func(c *Config) { c.CodeSign.TimestampURL = "ftp://tsa.example" }, "codesign.timestamp_url"},
		{"bad program URL", func(c *Config) { c.CodeSign.URL = "https://" }, "codesign.url"},
		{"unknown backend", func(c *Config) { c.CodeSign.Store.Backend = "registry" }, "codesign.store.backend"},
		{"dir backend without dir", func(c *Config) { c.CodeSign.Store.Backend = "dir" }, "codesign.store.dir"},
		{"unknown build mode", func(c *Config) { c.Release.BuildMode = "profile" }, "release.build_mode"},
		{"unknown archive type", func(c *Config) { c.Release.ArchiveType = "rar" }, "release.archive_type"},
		{"bad target", func(c *Config) { c.Release.Target = "x86_64" }, "release.target"},
		{"exe ext without dot", func(c *Config) { c.Release.ExeExt = "exe" }, "release.exe_ext"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("Error() = %q, want it to name %q", err.Error(), tt.wantField)
			}
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	cfg := Default()
	cfg.CodeSign.TimestampURL = ""
	cfg.CodeSign.KeyType = "rsa"
	cfg.CodeSign.KeyBits = 4096
	cfg.CodeSign.Store.Backend = "dir"
	cfg.CodeSign.Store.Dir = t.TempDir()
	cfg.Release.Target = "aarch64-apple-darwin"
	cfg.Release.ArchiveType = "zip"
	cfg.Release.ExeExt = ".exe"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestResolvePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := Default()
	cfg.CodeSign.Store.Backend = "dir"
	cfg.CodeSign.Store.Dir = "~/store"
	cfg.Release.SigningKey = "~/key.asc"
	if err := cfg.ResolvePaths(); err != nil {
		t.Fatalf("ResolvePaths() = %v", err)
	}

	if want := filepath.Join(home, "store"); cfg.CodeSign.Store.Dir != want {
		t.Errorf("Store.Dir = %q, want %q", cfg.CodeSign.Store.Dir, want)
	}
	if want := filepath.Join(home, "store", "journal"); cfg.CodeSign.Store.JournalDir != want {
		t.Errorf("Store.JournalDir = %q, want %q", cfg.CodeSign.Store.JournalDir, want)
	}
	if want := filepath.Join(home, "key.asc"); cfg.Release.SigningKey != want {
		t.Errorf("SigningKey = %q, want %q", cfg.Release.SigningKey, want)
	}
	if cfg.Release.OutputDir != "." {
		t.Errorf("OutputDir = %q, want unchanged", cfg.Release.OutputDir)
	}
}

func TestResolvePaths_MemoryBackendHasNoJournal(t *testing.T) {
	cfg := Default()
	if err := cfg.ResolvePaths(); err != nil {
		t.Fatal(err)
	}
	if cfg.CodeSign.Store.JournalDir != "" {
		t.Errorf("JournalDir = %q, want empty", cfg.CodeSign.Store.JournalDir)
	}
}
