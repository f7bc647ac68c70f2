package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultCertificateExt = ".crt"
	DefaultPassphraseExt  = ".crtpass"
)

// Paths names the two files that make up a container on disk.
type Paths struct {
	Certificate string
	Passphrase  string
}

// NewPaths derives the passphrase sidecar path from a certificate path,
// which must end in certExt.
func NewPaths(certPath, certExt, passExt string) (Paths, error) {
	if certExt == "" {
		certExt = DefaultCertificateExt
	}
	if passExt == "" {
		passExt = DefaultPassphraseExt
	}

	ext := filepath.Ext(certPath)
	if ext != certExt {
		return Paths{}, fmt.Errorf("%w: %s has %q, want %q", ErrBadExtension, certPath, ext, certExt)
	}

	return Paths{
		Certificate: certPath,
		Passphrase:  strings.TrimSuffix(certPath, ext) + passExt,
	}, nil
}

// CheckDestination fails with ErrDestinationExists if either file exists.
func CheckDestination(paths Paths) error {
	for _, p := range []string{paths.Certificate, paths.Passphrase} {
		if _, err := os.Lstat(p); err == nil {
			return fmt.Errorf("%w: %s", ErrDestinationExists, p)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("stat %s: %w", p, err)
		}
	}
	return nil
}

// WriteContainer stores pfx and its passphrase. Without force, neither file
// may exist beforehand and existing files are never modified.
func WriteContainer(paths Paths, pfx []byte, pass Passphrase, force bool) error {
	if pass.IsZero() {
		return errors.New("refusing to write a container without a passphrase")
	}

	text := EncodeText(pfx)

	if !force {
		if err := CheckDestination(paths); err != nil {
			return err
		}
		if err := createExclusive(paths.Certificate, text, 0o644); err != nil {
			return err
		}
		if err := createExclusive(paths.Passphrase, []byte(pass.Reveal()), 0o600); err != nil {
			os.Remove(paths.Certificate)
			return err
		}
		return nil
	}

	// The pair is replaced together: a failed passphrase write puts the
	// previous container back so it still matches the previous passphrase.
	previous, err := os.ReadFile(paths.Certificate)
	existed := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", paths.Certificate, err)
	}

	if err := writeAtomic(paths.Certificate, text, 0o644); err != nil {
		return err
	}
	if err := writeAtomic(paths.Passphrase, []byte(pass.Reveal()), 0o600); err != nil {
		if existed {
			if restoreErr := writeAtomic(paths.Certificate, previous, 0o644); restoreErr != nil {
				return fmt.Errorf("%w (restoring %s: %v)", err, paths.Certificate, restoreErr)
			}
		} else {
			os.Remove(paths.Certificate)
		}
		return err
	}
	return nil
}

// createExclusive creates path with O_EXCL, removing it again on a failed write.
func createExclusive(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrDestinationExists, path)
		}
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// writeAtomic replaces path via a temp file in the same directory.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanupNeeded := true
	defer func() {
		tmp.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

// ReadContainer returns the PFX blob stored at path.
func ReadContainer(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, path)
		}
		return nil, fmt.Errorf("read container: %w", err)
	}
	return DecodeText(raw)
}

// ReadPassphrase reads a passphrase sidecar, ignoring a trailing newline.
func ReadPassphrase(path string) (Passphrase, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrPassphraseNotFound, path)
		}
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return Passphrase(strings.TrimRight(string(raw), "\r\n")), nil
}
