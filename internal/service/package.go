package service

import (
	"context"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork

	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/git"
	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/release"
)

// PackageService builds, signs and archives a release.
type PackageService struct {
	runner release.Runner
	signer *SignService
	clock  Clock
	logger logging.Logger
}

// NewPackageService creates a package service. runner is only used when a
// request asks for a build; signer only when the plan signs.
func NewPackageService(runner release.Runner, signer *SignService, clock Clock, logger logging.Logger) *PackageService {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &PackageService{runner: runner, signer: signer, clock: clock, logger: logger}
}

// PackageRequest contains the parameters for packaging a release.
type PackageRequest struct {
	Release    config.Release
	ProjectDir string

	// Build runs cargo before packaging.
	Build bool
	// Sign carries the credentials used when the plan signs.
	Sign SignRequest
	// SigningKeyPassphrase unlocks Release.SigningKey when it is encrypted.
	SigningKeyPassphrase []byte
	// Verify re-checks the produced artifacts.
	Verify bool
}

// PackageResult describes the produced artifacts.
type PackageResult struct {
	Plan         *release.Plan           `json:"plan"`
	Artifacts    *release.Artifacts      `json:"artifacts"`
	Verification *release.ArtifactReport `json:"verification,omitempty"`
}

// Execute resolves the plan, optionally builds, then packages.
func (s *PackageService) Execute(ctx context.Context, req PackageRequest) (*PackageResult, error) {
	// 1. Plan
	plan, err := release.NewPlan(ctx, req.Release, req.ProjectDir, git.NewClient(req.ProjectDir))
	if err != nil {
		return nil, err
	}
	s.logger.Debug("resolved release plan",
		"tool", plan.Tool,
		"target", plan.Target.Raw,
		"version", plan.Version,
		"archive", plan.ArchiveName())

	// 2. Build
	if req.Build {
		if s.runner == nil {
			return nil, fmt.Errorf("%w: no build runner configured", release.ErrBuildFailed)
		}
		if err := release.NewBuilder(s.runner, s.logger).Build(ctx, plan); err != nil {
			return nil, err
		}
	}

	// 3. Package
	opts := []release.PackagerOption{
		release.WithPackagerLogger(s.logger),
		release.WithClock(s.clock.Now),
	}
	if plan.Sign && s.signer != nil {
		opts = append(opts, release.WithExecutableSigner(s.signer.ExecutableSigner(req.Sign)))
	}
	var keyring openpgp.EntityList
	if req.Release.SigningKey != "" {
		if len(req.SigningKeyPassphrase) > 0 {
			logging.Redact(s.logger, string(req.SigningKeyPassphrase))
		}
		entity, err := release.LoadSigningKey(req.Release.SigningKey, req.SigningKeyPassphrase)
		if err != nil {
			return nil, err
		}
		opts = append(opts, release.WithOpenPGPKey(entity))
		keyring = openpgp.EntityList{entity}
	}

	artifacts, err := release.NewPackager(opts...).Package(ctx, plan)
	if err != nil {
		return nil, err
	}
	result := &PackageResult{Plan: plan, Artifacts: artifacts}

	// 4. Verify
	if req.Verify {
		report, err := release.VerifyArtifacts(artifacts.Archive, keyring)
		result.Verification = report
		if err != nil {
			return result, fmt.Errorf("verify artifacts: %w", err)
		}
	}
	return result, nil
}
