// Package credential generates self-signed code-signing identities and
// reads and writes them as passphrase-protected PKCS#12 containers.
//
// A container on disk is a pair of files: "<name>.crt" holding the base64
// encoded PFX and "<name>.crtpass" holding its passphrase. The same pair can
// be supplied through the environment as "<prefix>CRT" and "<prefix>CRTPASS".
package credential

import "errors"

var (
	ErrDestinationExists  = errors.New("destination already exists")
	ErrContainerNotFound  = errors.New("certificate container not found")
	ErrPassphraseNotFound = errors.New("certificate passphrase not found")
	ErrWrongPassphrase    = errors.New("wrong passphrase for certificate container")
	ErrCorruptContainer   = errors.New("certificate container is corrupt")
	ErrBadExtension       = errors.New("unexpected certificate file extension")
	ErrNoCredentials      = errors.New("no signing credentials supplied")
)
