package service

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/rcook/rust-tool-action/internal/authenticode"
)

// ErrNoRoots is returned when a roots file holds no certificates.
var ErrNoRoots = errors.New("no certificates in roots file")

// VerifyService checks executable signatures.
type VerifyService struct{}

// NewVerifyService creates a verify service.
func NewVerifyService() *VerifyService {
	return &VerifyService{}
}

// VerifyRequest contains the parameters for verifying one executable.
type VerifyRequest struct {
	Executable string
	// RootsFile is a PEM bundle of additional trusted roots. When empty
	// the system pool is used.
	RootsFile string
}

// Execute verifies req.Executable. The report is always returned, also
// when the signature is absent or invalid; the error is then the report's.
func (s *VerifyService) Execute(ctx context.Context, req VerifyRequest) (*authenticode.Report, error) {
	var roots *x509.CertPool
	if req.RootsFile != "" {
		var err error
		roots, err = LoadRoots(req.RootsFile)
		if err != nil {
			return nil, err
		}
	}
	report := authenticode.Verify(ctx, req.Executable, roots)
	return report, report.Err()
}

// LoadRoots reads a PEM certificate bundle into a new pool.
func LoadRoots(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roots: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w: %s", ErrNoRoots, path)
	}
	return pool, nil
}
