package release

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/git"
	"github.com/rcook/rust-tool-action/internal/platform"
)

// Plan is a fully resolved packaging job.
type Plan struct {
	Tool        string
	Target      platform.Triple
	ExeExt      string
	ArchiveType string
	BuildMode   string
	Sign        bool
	Version     string
	ProjectDir  string
	OutputDir   string
}

// NewPlan resolves cfg against the target triple and, when no version is
// configured, the repository at projectDir.
func NewPlan(ctx context.Context, cfg config.Release, projectDir string, repo git.Repo) (*Plan, error) {
	if cfg.Tool == "" {
		return nil, ErrNoTool
	}
	if cfg.Target == "" {
		return nil, ErrNoTarget
	}
	target, err := platform.ParseTriple(cfg.Target)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Tool:        cfg.Tool,
		Target:      target,
		ExeExt:      cfg.ExeExt,
		ArchiveType: cfg.ArchiveType,
		BuildMode:   cfg.BuildMode,
		Sign:        cfg.Sign,
		Version:     cfg.Version,
		ProjectDir:  projectDir,
		OutputDir:   cfg.OutputDir,
	}
	if plan.ExeExt == "" {
		plan.ExeExt = target.ExeExt()
	}
	if plan.ArchiveType == "" {
		plan.ArchiveType = target.ArchiveType()
	}
	if plan.BuildMode == "" {
		plan.BuildMode = config.BuildModeRelease
	}
	if plan.OutputDir == "" {
		plan.OutputDir = projectDir
	} else if !filepath.IsAbs(plan.OutputDir) {
		plan.OutputDir = filepath.Join(projectDir, plan.OutputDir)
	}

	if plan.Version == "" {
		if repo == nil {
			return nil, fmt.Errorf("no release version configured and no repository to derive one from")
		}
		version, err := git.Version(ctx, repo)
		if err != nil {
			return nil, fmt.Errorf("derive release version: %w", err)
		}
		plan.Version = version
	}
	return plan, nil
}

// ExecutableName is the file cargo produces, e.g. "mytool.exe".
func (p *Plan) ExecutableName() string {
	return p.Tool + p.ExeExt
}

// ExecutablePath is where cargo leaves the executable for this target.
func (p *Plan) ExecutablePath() string {
	return filepath.Join(p.ProjectDir, "target", p.Target.Raw, p.BuildMode, p.ExecutableName())
}

// ArchiveName is "<tool>-<version>-<triple>.<archive type>".
func (p *Plan) ArchiveName() string {
	return fmt.Sprintf("%s-%s-%s.%s", p.Tool, p.Version, p.Target.Raw, p.ArchiveType)
}

// ArchivePath joins ArchiveName to the output directory.
func (p *Plan) ArchivePath() string {
	return filepath.Join(p.OutputDir, p.ArchiveName())
}
