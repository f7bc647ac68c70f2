// Package authenticode signs and verifies Windows PE images.
//
// A signature is a PKCS#7 SignedData structure wrapping an
// SpcIndirectDataContent that carries the SHA-256 Authenticode digest of the
// image. It is stored in the image's attribute certificate table as a single
// WIN_CERTIFICATE entry. When a Timestamper is configured the signer's
// encrypted digest is counter-signed by an RFC 3161 authority and the token is
// attached as an unsigned attribute.
//
// Sign rewrites the image through a temporary file and a rename, so a failure
// at any stage leaves the original file untouched.
package authenticode

import (
	"errors"
	"fmt"
)

var (
	// ErrNotExecutable is returned for input that is not a PE image this
	// package can sign.
	ErrNotExecutable = errors.New("not a PE executable")

	// ErrNotSigned is returned for an image without a certificate table.
	ErrNotSigned = errors.New("executable is not signed")

	// ErrInvalidSignature is returned when a signature is present but does
	// not verify.
	ErrInvalidSignature = errors.New("invalid signature")
)

// FileError describes a failed operation on an image file.
type FileError struct {
	Path    string
	Message string
	Cause   error
}

func (e *FileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e *FileError) Unwrap() error {
	return e.Cause
}
