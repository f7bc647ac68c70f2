package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/rcook/rust-tool-action/internal/authenticode"
	"github.com/rcook/rust-tool-action/internal/certstore"
	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/credential"
	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/release"
	"github.com/rcook/rust-tool-action/internal/transaction"
)

// ErrExecutableNotFound is returned when the file to sign does not exist.
var ErrExecutableNotFound = errors.New("executable not found")

// SignService signs executables with a container's identity.
type SignService struct {
	store       certstore.Store
	journalDir  string
	timestamper authenticode.Timestamper
	environ     map[string]string
	logger      logging.Logger
}

// SignOption configures a SignService.
type SignOption func(*SignService)

// WithTimestamper counter-signs every signature. Without one, signatures
// carry no timestamp.
func WithTimestamper(ts authenticode.Timestamper) SignOption {
	return func(s *SignService) { s.timestamper = ts }
}

// WithEnviron makes the environment credential bundle come from environ
// instead of the process environment.
func WithEnviron(environ map[string]string) SignOption {
	return func(s *SignService) { s.environ = environ }
}

// WithSignLogger sets the logger.
func WithSignLogger(l logging.Logger) SignOption {
	return func(s *SignService) { s.logger = l }
}

// NewSignService creates a sign service.
func NewSignService(store certstore.Store, journalDir string, opts ...SignOption) *SignService {
	s := &SignService{store: store, journalDir: journalDir, logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignRequest contains the parameters for signing one executable.
type SignRequest struct {
	Executable string

	// Certificate is the container path. When empty the credential
	// bundle is read from the environment.
	Certificate string
	// Passphrase overrides the container's sidecar file.
	Passphrase credential.Passphrase

	CodeSign config.CodeSign

	// Verify re-reads the signed file and fails unless the signature
	// verifies.
	Verify bool
}

// SignResult describes a completed signature.
type SignResult struct {
	Executable  string               `json:"executable"`
	Source      string               `json:"source"`
	Thumbprint  string               `json:"thumbprint"`
	Subject     string               `json:"subject"`
	Timestamped bool                 `json:"timestamped"`
	Report      *authenticode.Report `json:"report,omitempty"`
}

// Execute signs req.Executable in place. The file is either fully signed
// or left as it was.
func (s *SignService) Execute(ctx context.Context, req SignRequest) (result *SignResult, err error) {
	// 1. Preconditions
	info, err := os.Stat(req.Executable)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrExecutableNotFound, req.Executable)
		}
		return nil, fmt.Errorf("stat executable: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", authenticode.ErrNotExecutable, req.Executable)
	}

	// 2. Resolve and open the credential bundle
	src, err := s.source(req)
	if err != nil {
		return nil, err
	}
	logging.Redact(s.logger, src.Passphrase.Reveal())
	id, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name, err)
	}
	s.logger.Debug("loaded signing identity", "source", src.Name, "thumbprint", id.Thumbprint())

	recoverLeftovers(ctx, s.store, s.journalDir, s.logger)

	// 3. Stage for the duration of the signature
	lease, err := certstore.Stage(ctx, s.store, id, certstore.StageOptions{
		JournalDir: s.journalDir,
		Operation:  transaction.OperationSign,
		Logger:     s.logger,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := lease.Release(ctx); relErr != nil {
			result = nil
			err = multierror.Append(err, relErr).ErrorOrNil()
		}
	}()

	signer, err := lease.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("read staged certificate: %w", err)
	}

	// 4. Sign
	opts := authenticode.Options{
		Timestamper: s.timestamper,
		Description: req.CodeSign.Description,
		URL:         req.CodeSign.URL,
	}
	if err := authenticode.Sign(ctx, req.Executable, signer, opts); err != nil {
		return nil, err
	}
	s.logger.Info("signed executable", "path", req.Executable, "thumbprint", signer.Thumbprint())

	result = &SignResult{
		Executable:  req.Executable,
		Source:      src.Name,
		Thumbprint:  signer.Thumbprint(),
		Subject:     signer.Subject(),
		Timestamped: s.timestamper != nil,
	}

	// 5. Optional read-back
	if req.Verify {
		report := authenticode.Verify(ctx, req.Executable, nil)
		result.Report = report
		if err := report.Err(); err != nil {
			return nil, fmt.Errorf("verify after signing: %w", err)
		}
	}
	return result, nil
}

func (s *SignService) source(req SignRequest) (*credential.Source, error) {
	if req.Certificate == "" {
		return credential.EnvSource(req.CodeSign.EnvPrefix, s.environ)
	}
	paths, err := credential.NewPaths(req.Certificate, req.CodeSign.CertificateExt, req.CodeSign.PasswordExt)
	if err != nil {
		return nil, err
	}
	return credential.FileSource(paths, req.Passphrase)
}

// ExecutableSigner adapts the service to the packager: every executable is
// signed with the credentials in tmpl.
func (s *SignService) ExecutableSigner(tmpl SignRequest) release.ExecutableSigner {
	return &executableSigner{svc: s, tmpl: tmpl}
}

type executableSigner struct {
	svc  *SignService
	tmpl SignRequest
}

func (e *executableSigner) SignExecutable(ctx context.Context, path string) error {
	req := e.tmpl
	req.Executable = path
	_, err := e.svc.Execute(ctx, req)
	return err
}
