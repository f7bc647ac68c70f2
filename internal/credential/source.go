package credential

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// DefaultEnvPrefix is prepended to CRT and CRTPASS when reading the
// credential bundle from the environment.
const DefaultEnvPrefix = "RUST_TOOL_ACTION_CODE_SIGN_"

// Source is a credential bundle: container bytes plus the passphrase that
// opens them. Name identifies the origin for messages and never contains
// secret material.
type Source struct {
	Name       string
	PFX        []byte
	Passphrase Passphrase
}

// Open decrypts the bundle.
func (s *Source) Open() (*Identity, error) {
	return Decode(s.PFX, s.Passphrase)
}

// FileSource loads a container from disk. When pass is empty the sidecar
// passphrase file is read.
func FileSource(paths Paths, pass Passphrase) (*Source, error) {
	pfx, err := ReadContainer(paths.Certificate)
	if err != nil {
		return nil, err
	}

	if pass.IsZero() {
		pass, err = ReadPassphrase(paths.Passphrase)
		if err != nil {
			return nil, err
		}
	}

	return &Source{Name: "file:" + paths.Certificate, PFX: pfx, Passphrase: pass}, nil
}

type envBundle struct {
	Certificate string `env:"CRT"`
	Passphrase  string `env:"CRTPASS"`
}

// EnvSource reads <prefix>CRT and <prefix>CRTPASS from environ, or from the
// process environment when environ is nil. Both must be set.
func EnvSource(prefix string, environ map[string]string) (*Source, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	var b envBundle
	if err := env.ParseWithOptions(&b, env.Options{Prefix: prefix, Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse credential environment: %w", err)
	}

	switch {
	case b.Certificate == "" && b.Passphrase == "":
		return nil, fmt.Errorf("%w: set %sCRT and %sCRTPASS or pass --cert", ErrNoCredentials, prefix, prefix)
	case b.Certificate == "":
		return nil, fmt.Errorf("%w: %sCRT is empty", ErrNoCredentials, prefix)
	case b.Passphrase == "":
		return nil, fmt.Errorf("%w: %sCRTPASS is empty", ErrNoCredentials, prefix)
	}

	pfx, err := DecodeText([]byte(b.Certificate))
	if err != nil {
		return nil, err
	}

	return &Source{Name: "env:" + prefix + "CRT", PFX: pfx, Passphrase: Passphrase(b.Passphrase)}, nil
}
