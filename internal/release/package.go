package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork

	"github.com/rcook/rust-tool-action/internal/logging"
)

// ExecutableSigner signs a Windows executable in place.
type ExecutableSigner interface {
	SignExecutable(ctx context.Context, path string) error
}

// Artifacts are the files produced by Package.
type Artifacts struct {
	Executable string `json:"executable"`
	Signed     bool   `json:"signed"`
	Archive    string `json:"archive"`
	Checksum   string `json:"checksum"`
	Signature  string `json:"signature,omitempty"`
}

// Packager assembles release artifacts for a Plan.
type Packager struct {
	signer ExecutableSigner
	pgpKey *openpgp.Entity
	logger logging.Logger
	now    func() time.Time
}

// PackagerOption configures a Packager.
type PackagerOption func(*Packager)

// WithExecutableSigner enables Authenticode signing for Windows targets.
func WithExecutableSigner(s ExecutableSigner) PackagerOption {
	return func(p *Packager) { p.signer = s }
}

// WithOpenPGPKey enables detached archive signatures.
func WithOpenPGPKey(e *openpgp.Entity) PackagerOption {
	return func(p *Packager) { p.pgpKey = e }
}

// WithPackagerLogger sets the logger.
func WithPackagerLogger(l logging.Logger) PackagerOption {
	return func(p *Packager) { p.logger = l }
}

// WithClock sets the time stamped on archive entries.
func WithClock(now func() time.Time) PackagerOption {
	return func(p *Packager) { p.now = now }
}

// NewPackager creates a packager.
func NewPackager(opts ...PackagerOption) *Packager {
	p := &Packager{logger: logging.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Package signs (when requested and the target is Windows), archives,
// checksums and OpenPGP-signs the plan's executable.
func (p *Packager) Package(ctx context.Context, plan *Plan) (*Artifacts, error) {
	exe := plan.ExecutablePath()
	info, err := os.Stat(exe)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrExecutableNotFound, exe)
		}
		return nil, fmt.Errorf("stat executable: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrExecutableNotFound, exe)
	}

	out := &Artifacts{Executable: exe}
	switch {
	case plan.Sign && plan.Target.IsWindows():
		if p.signer == nil {
			return nil, errors.New("code signing requested but no signer configured")
		}
		p.logger.Info("signing executable", "path", exe)
		if err := p.signer.SignExecutable(ctx, exe); err != nil {
			return nil, fmt.Errorf("sign %s: %w", plan.ExecutableName(), err)
		}
		out.Signed = true
	case plan.Sign:
		p.logger.Warn("code signing skipped for non-Windows target", "target", plan.Target.Raw)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(plan.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	out.Archive = plan.ArchivePath()
	files := []ArchiveFile{{Source: exe, Name: plan.ExecutableName(), Mode: 0o755}}
	if err := CreateArchive(out.Archive, plan.ArchiveType, files, p.now().UTC()); err != nil {
		return nil, err
	}
	p.logger.Info("wrote archive", "path", out.Archive)

	if out.Checksum, err = WriteChecksumFile(out.Archive); err != nil {
		return nil, err
	}

	if p.pgpKey != nil {
		if out.Signature, err = DetachSign(out.Archive, p.pgpKey); err != nil {
			return nil, err
		}
		p.logger.Info("wrote signature", "path", out.Signature)
	}
	return out, nil
}
