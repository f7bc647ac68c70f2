package credential

import (
	"bytes"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Encode exports id into a PKCS#12 blob protected by pass.
func Encode(id *Identity, pass Passphrase) ([]byte, error) {
	if id == nil || id.Certificate == nil || id.PrivateKey == nil {
		return nil, errors.New("identity is incomplete")
	}
	pfx, err := pkcs12.Modern.Encode(id.PrivateKey, id.Certificate, id.Chain, pass.Reveal())
	if err != nil {
		return nil, fmt.Errorf("encode pkcs12: %w", err)
	}
	return pfx, nil
}

// Decode opens a PKCS#12 blob. A failed integrity check is reported as
// ErrWrongPassphrase; anything unparsable as ErrCorruptContainer.
func Decode(pfx []byte, pass Passphrase) (*Identity, error) {
	key, cert, chain, err := pkcs12.DecodeChain(pfx, pass.Reveal())
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) || errors.Is(err, pkcs12.ErrDecryption) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptContainer, err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: private key of type %T cannot sign", ErrCorruptContainer, key)
	}

	return &Identity{Certificate: cert, PrivateKey: signer, Chain: chain}, nil
}

// EncodeText renders a PFX blob the way it is stored in a .crt file.
func EncodeText(pfx []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(pfx)))
	base64.StdEncoding.Encode(out, pfx)
	return out
}

// DecodeText accepts either base64 text or raw DER and returns the PFX blob.
func DecodeText(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrCorruptContainer)
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(decoded, trimmed)
	if err == nil {
		return decoded[:n], nil
	}

	// DER SEQUENCE
	if raw[0] == 0x30 {
		return raw, nil
	}

	return nil, fmt.Errorf("%w: neither base64 nor DER", ErrCorruptContainer)
}
