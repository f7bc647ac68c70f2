// Package service implements the tool's commands on top of the credential,
// store, signing and packaging packages.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/rcook/rust-tool-action/internal/certstore"
	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/credential"
	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/transaction"
)

// CertService creates code-signing containers.
type CertService struct {
	store      certstore.Store
	journalDir string
	clock      Clock
	logger     logging.Logger
}

// NewCertService creates a cert service. The store is only used while the
// new identity is exported; it holds nothing once Execute returns.
func NewCertService(store certstore.Store, journalDir string, clock Clock, logger logging.Logger) *CertService {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &CertService{store: store, journalDir: journalDir, clock: clock, logger: logger}
}

// CertRequest contains the parameters for creating a container.
type CertRequest struct {
	Destination string
	Force       bool
	CodeSign    config.CodeSign
}

// CertResult describes the container that was written. It never carries
// the passphrase.
type CertResult struct {
	Certificate string    `json:"certificate"`
	Passphrase  string    `json:"passphrase_file"`
	Thumbprint  string    `json:"thumbprint"`
	Subject     string    `json:"subject"`
	NotAfter    time.Time `json:"not_after"`
}

// Execute generates a fresh identity, stages it in the store, exports it
// to the destination container and purges it from the store again.
func (s *CertService) Execute(ctx context.Context, req CertRequest) (result *CertResult, err error) {
	cs := req.CodeSign

	// 1. Destination checks happen before any key material exists
	paths, err := credential.NewPaths(req.Destination, cs.CertificateExt, cs.PasswordExt)
	if err != nil {
		return nil, err
	}
	if !req.Force {
		if err := credential.CheckDestination(paths); err != nil {
			return nil, err
		}
	}

	keyType, err := credential.ParseKeyType(cs.KeyType)
	if err != nil {
		return nil, err
	}

	recoverLeftovers(ctx, s.store, s.journalDir, s.logger)

	// 2. Generate
	id, err := credential.Generate(credential.GenerateOptions{
		Subject:  cs.Subject,
		DNSName:  cs.DNSName,
		KeyType:  keyType,
		KeyBits:  cs.KeyBits,
		Validity: time.Duration(cs.ValidityDays) * 24 * time.Hour,
		Now:      s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	// 3. Stage; the entry is purged on every return path
	lease, err := certstore.Stage(ctx, s.store, id, certstore.StageOptions{
		JournalDir: s.journalDir,
		Operation:  transaction.OperationCert,
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

	// 4. Export from the store
	staged, err := lease.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("read staged certificate: %w", err)
	}
	pass := credential.NewPassphrase()
	logging.Redact(s.logger, pass.Reveal())

	pfx, err := credential.Encode(staged, pass)
	if err != nil {
		return nil, fmt.Errorf("export certificate: %w", err)
	}
	if err := credential.WriteContainer(paths, pfx, pass, req.Force); err != nil {
		return nil, err
	}

	s.logger.Info("created certificate container",
		"path", paths.Certificate,
		"thumbprint", staged.Thumbprint(),
		"not_after", staged.Certificate.NotAfter)

	return &CertResult{
		Certificate: paths.Certificate,
		Passphrase:  paths.Passphrase,
		Thumbprint:  staged.Thumbprint(),
		Subject:     staged.Subject(),
		NotAfter:    staged.Certificate.NotAfter,
	}, nil
}
