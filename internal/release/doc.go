// Package release turns a Cargo build into release artifacts.
//
// A Plan names the tool, target triple, build mode and version. Builder
// runs cargo for the plan; Packager locates the executable, optionally
// Authenticode-signs it, writes the archive atomically and adds a SHA-256
// checksum file and an armored OpenPGP detached signature:
//
//	<tool>-<version>-<triple>.tar.gz
//	<tool>-<version>-<triple>.tar.gz.sha256
//	<tool>-<version>-<triple>.tar.gz.asc
//
// VerifyArtifacts checks those files the way a downstream consumer would.
package release

import "errors"

var (
	ErrNoTool             = errors.New("release tool name is not set")
	ErrNoTarget           = errors.New("release target triple is not set")
	ErrExecutableNotFound = errors.New("built executable not found")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrChecksumNotFound   = errors.New("checksum not found")
	ErrBadSignature       = errors.New("OpenPGP signature verification failed")
)
