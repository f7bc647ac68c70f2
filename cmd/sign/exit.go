package main

import (
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/rcook/rust-tool-action/internal/authenticode"
	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/credential"
	"github.com/rcook/rust-tool-action/internal/release"
	"github.com/rcook/rust-tool-action/internal/service"
	"github.com/rcook/rust-tool-action/internal/tsa"
)

// Exit codes
const (
	exitFailure      = 1
	exitPrecondition = 2
	exitTransient    = 3
)

// usageError marks bad arguments or flags.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

// usageArgs wraps a cobra argument validator so its errors count as usage
// errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

var preconditionErrors = []error{
	credential.ErrDestinationExists,
	credential.ErrContainerNotFound,
	credential.ErrPassphraseNotFound,
	credential.ErrBadExtension,
	credential.ErrNoCredentials,
	authenticode.ErrNotExecutable,
	service.ErrExecutableNotFound,
	service.ErrNoRoots,
	release.ErrExecutableNotFound,
	release.ErrNoTool,
	release.ErrNoTarget,
	fs.ErrNotExist,
}

// exitCode maps an error to the process exit code: 3 when retrying may
// help, 2 when the invocation or its inputs are wrong, 1 otherwise.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if tsa.IsTransient(err) {
		return exitTransient
	}

	var usage usageError
	var validation *config.ValidationError
	var parse *config.ParseError
	if errors.As(err, &usage) || errors.As(err, &validation) || errors.As(err, &parse) {
		return exitPrecondition
	}
	for _, target := range preconditionErrors {
		if errors.Is(err, target) {
			return exitPrecondition
		}
	}
	return exitFailure
}
