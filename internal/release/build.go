package release

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/logging"
)

// ErrBuildFailed wraps every cargo failure other than cancellation.
var ErrBuildFailed = errors.New("cargo build failed")

// Runner executes an external command in dir.
type Runner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) error
}

// ExecRunner runs commands with os/exec. Output is teed to Stdout/Stderr
// when set; the tail of stderr is kept for error messages.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env

	var stderr bytes.Buffer
	cmd.Stdout = r.Stdout
	cmd.Stderr = &stderr
	if r.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Stderr)
	}

	if err := cmd.Run(); err != nil {
		return translateBuildError(ctx, err, stderr.String())
	}
	return nil
}

// Builder runs cargo for a Plan.
type Builder struct {
	runner Runner
	cargo  string
	logger logging.Logger
}

// NewBuilder returns a builder invoking "cargo" through runner.
func NewBuilder(runner Runner, logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Builder{runner: runner, cargo: "cargo", logger: logger}
}

// Args returns the cargo arguments for plan.
func (b *Builder) Args(plan *Plan) []string {
	args := []string{"build", "--target", plan.Target.Raw}
	if plan.BuildMode == config.BuildModeRelease {
		args = append(args, "--release")
	}
	return args
}

// Build runs cargo in the plan's project directory.
func (b *Builder) Build(ctx context.Context, plan *Plan) error {
	args := b.Args(plan)
	b.logger.Info("building", "cargo", strings.Join(args, " "), "dir", plan.ProjectDir)
	return b.runner.Run(ctx, plan.ProjectDir, buildEnv(os.Environ()), b.cargo, args...)
}

// buildEnv drops the signing credentials from the environment handed to
// cargo and its build scripts.
func buildEnv(environ []string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasSuffix(name, "_CRT") || strings.HasSuffix(name, "_CRTPASS") || strings.HasSuffix(name, "SIGNING_KEY_PASSPHRASE") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func translateBuildError(ctx context.Context, err error, stderr string) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("build cancelled: %w", context.Canceled)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("build timed out: %w", context.DeadlineExceeded)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: cargo not found on PATH", ErrBuildFailed)
	}
	if tail := lastLines(redactPaths(stderr), 5); tail != "" {
		return fmt.Errorf("%w: %v\n%s", ErrBuildFailed, err, tail)
	}
	return fmt.Errorf("%w: %v", ErrBuildFailed, err)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var (
	homePattern  = regexp.MustCompile(`/home/[^/\s]+`)
	usersPattern = regexp.MustCompile(`/Users/[^/\s]+`)
)

// redactPaths hides user names that appear in absolute paths.
func redactPaths(msg string) string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		msg = strings.ReplaceAll(msg, home, "$HOME")
	}
	msg = homePattern.ReplaceAllString(msg, "/home/<user>")
	return usersPattern.ReplaceAllString(msg, "/Users/<user>")
}
