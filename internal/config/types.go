package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcook/rust-tool-action/internal/certstore"
	"github.com/rcook/rust-tool-action/internal/credential"
	"github.com/rcook/rust-tool-action/internal/platform"
	"github.com/rcook/rust-tool-action/internal/tsa"
)

// Config is the complete tool configuration.
type Config struct {
	CodeSign CodeSign `json:"codesign"`
	Release  Release  `json:"release"`
}

// CodeSign configures certificate generation, credential loading and
// signing.
type CodeSign struct {
	Subject        string `json:"subject"`
	DNSName        string `json:"dns_name"`
	TimestampURL   string `json:"timestamp_url"`
	ValidityDays   int    `json:"validity_days"`
	KeyType        string `json:"key_type"`
	KeyBits        int    `json:"key_bits,omitempty"`
	CertificateExt string `json:"certificate_ext"`
	PasswordExt    string `json:"password_ext"`
	EnvPrefix      string `json:"env_prefix"`

	// Description and URL are embedded in signatures as program information.
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`

	Store Store `json:"store"`
}

// Store selects the transient certificate store.
type Store struct {
	Backend    string `json:"backend"`
	Dir        string `json:"dir,omitempty"`
	JournalDir string `json:"journal_dir,omitempty"`
}

// Release configures `sign package`.
type Release struct {
	Tool        string `json:"tool,omitempty"`
	Target      string `json:"target,omitempty"`
	ExeExt      string `json:"exe_ext,omitempty"`
	ArchiveType string `json:"archive_type,omitempty"`
	BuildMode   string `json:"build_mode"`
	Sign        bool   `json:"sign"`
	Version     string `json:"version,omitempty"`
	SigningKey  string `json:"signing_key,omitempty"`
	OutputDir   string `json:"output_dir,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CodeSign: CodeSign{
			Subject:        credential.DefaultSubject,
			DNSName:        credential.DefaultDNSName,
			TimestampURL:   tsa.DefaultURL,
			ValidityDays:   int(credential.DefaultValidity.Hours() / 24),
			KeyType:        string(credential.KeyTypeECDSA),
			CertificateExt: credential.DefaultCertificateExt,
			PasswordExt:    credential.DefaultPassphraseExt,
			EnvPrefix:      credential.DefaultEnvPrefix,
			Store:          Store{Backend: certstore.BackendMemory},
		},
		Release: Release{
			BuildMode: BuildModeRelease,
			OutputDir: ".",
		},
	}
}

// ResolvePaths expands a leading ~ in path-valued settings.
func (c *Config) ResolvePaths() error {
	for _, p := range []*string{&c.CodeSign.Store.Dir, &c.CodeSign.Store.JournalDir, &c.Release.SigningKey, &c.Release.OutputDir} {
		expanded, err := expandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	if c.CodeSign.Store.Backend == certstore.BackendDir && c.CodeSign.Store.JournalDir == "" && c.CodeSign.Store.Dir != "" {
		c.CodeSign.Store.JournalDir = filepath.Join(c.CodeSign.Store.Dir, "journal")
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Validate checks the configuration for values no command can use.
func (c *Config) Validate() error {
	cs := c.CodeSign
	if strings.TrimSpace(cs.Subject) == "" {
		return &ValidationError{Field: "codesign.subject", Message: "cannot be empty"}
	}
	if cs.ValidityDays < 1 || cs.ValidityDays > MaxValidityDays {
		return &ValidationError{
			Field:   "codesign.validity_days",
			Message: fmt.Sprintf("must be between 1 and %d (got %d)", MaxValidityDays, cs.ValidityDays),
		}
	}
	kt, err := credential.ParseKeyType(cs.KeyType)
	if err != nil {
		return &ValidationError{Field: "codesign.key_type", Message: err.Error()}
	}
	if kt == credential.KeyTypeRSA && cs.KeyBits != 0 && cs.KeyBits != 2048 && cs.KeyBits != 3072 && cs.KeyBits != 4096 {
		return &ValidationError{Field: "codesign.key_bits", Message: fmt.Sprintf("RSA key size must be 2048, 3072 or 4096 (got %d)", cs.KeyBits)}
	}
	if err := validateExt(cs.CertificateExt); err != nil {
		return &ValidationError{Field: "codesign.certificate_ext", Message: err.Error()}
	}
	if err := validateExt(cs.PasswordExt); err != nil {
		return &ValidationError{Field: "codesign.password_ext", Message: err.Error()}
	}
	if strings.EqualFold(cs.CertificateExt, cs.PasswordExt) {
		return &ValidationError{Field: "codesign.password_ext", Message: "must differ from certificate_ext"}
	}
	if cs.EnvPrefix == "" {
		return &ValidationError{Field: "codesign.env_prefix", Message: "cannot be empty"}
	}
	if cs.TimestampURL != "" {
		if err := validateHTTPURL(cs.TimestampURL); err != nil {
			return &ValidationError{Field: "codesign.timestamp_url", Message: err.Error()}
		}
	}
	if cs.URL != "" {
		if err := validateHTTPURL(cs.URL); err != nil {
			return &ValidationError{Field: "codesign.url", Message: err.Error()}
		}
	}

	switch cs.Store.Backend {
	case certstore.BackendMemory:
	case certstore.BackendDir:
		if cs.Store.Dir == "" {
			return &ValidationError{Field: "codesign.store.dir", Message: "required for the dir backend"}
		}
	default:
		return &ValidationError{Field: "codesign.store.backend", Message: fmt.Sprintf("unknown backend %q (want memory or dir)", cs.Store.Backend)}
	}

	r := c.Release
	switch r.BuildMode {
	case BuildModeDebug, BuildModeRelease:
	default:
		return &ValidationError{Field: "release.build_mode", Message: fmt.Sprintf("must be debug or release (got %q)", r.BuildMode)}
	}
	switch r.ArchiveType {
	case "", platform.ArchiveTarGz, platform.ArchiveZip:
	default:
		return &ValidationError{Field: "release.archive_type", Message: fmt.Sprintf("must be tar.gz or zip (got %q)", r.ArchiveType)}
	}
	if r.Target != "" {
		if _, err := platform.ParseTriple(r.Target); err != nil {
			return &ValidationError{Field: "release.target", Message: err.Error()}
		}
	}
	if r.ExeExt != "" && !strings.HasPrefix(r.ExeExt, ".") {
		return &ValidationError{Field: "release.exe_ext", Message: "must start with '.'"}
	}
	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

func validateExt(ext string) error {
	if len(ext) < 2 || ext[0] != '.' {
		return fmt.Errorf("extension must start with '.' (got %q)", ext)
	}
	if strings.ContainsAny(ext, `/\`) {
		return fmt.Errorf("extension cannot contain path separators (got %q)", ext)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must use https:// or http:// scheme (got: %s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %s", raw)
	}
	return nil
}
