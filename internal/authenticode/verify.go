package authenticode

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"

	"github.com/rcook/rust-tool-action/internal/credential"
)

// ChainStatus classifies the signer's certificate chain.
type ChainStatus string

const (
	// ChainTrusted means the chain ends in one of the supplied roots.
	ChainTrusted ChainStatus = "trusted"
	// ChainUntrustedRoot means the chain is well formed but ends in a root
	// that is not trusted, such as a self-signed certificate.
	ChainUntrustedRoot ChainStatus = "untrusted-root"
	// ChainInvalid means the chain cannot be built or has expired.
	ChainInvalid ChainStatus = "invalid"
)

// TimestampInfo describes an RFC 3161 counter-signature.
type TimestampInfo struct {
	Time      time.Time `json:"time"`
	Authority string    `json:"authority,omitempty"`
	Valid     bool      `json:"valid"`
}

// Report is the outcome of verifying an image.
//
// Valid covers the structure of the signature: the image digest matches and
// the signer's signature checks out. Chain trust is reported separately in
// Chain and does not affect Valid.
type Report struct {
	Path        string         `json:"path,omitempty"`
	Signed      bool           `json:"signed"`
	Valid       bool           `json:"valid"`
	Signer      string         `json:"signer,omitempty"`
	Issuer      string         `json:"issuer,omitempty"`
	Thumbprint  string         `json:"thumbprint,omitempty"`
	NotAfter    time.Time      `json:"not_after,omitzero"`
	SigningTime time.Time      `json:"signing_time,omitzero"`
	Timestamp   *TimestampInfo `json:"timestamp,omitempty"`
	Chain       ChainStatus    `json:"chain"`
	DigestMatch bool           `json:"digest_match"`
	Problems    []string       `json:"problems,omitempty"`

	err error
}

// Err returns nil for a valid signature, ErrNotSigned for an unsigned image
// and an error wrapping ErrInvalidSignature or ErrNotExecutable otherwise.
func (r *Report) Err() error {
	if r.err != nil {
		return r.err
	}
	if !r.Signed {
		return ErrNotSigned
	}
	if !r.Valid {
		if len(r.Problems) > 0 {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, r.Problems[0])
		}
		return ErrInvalidSignature
	}
	return nil
}

func (r *Report) problem(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Verify checks the signature of the PE image at path. Roots, when non-nil,
// are the certificates a chain must end in to be reported as trusted; nil
// uses the system pool. Verify never returns nil.
func Verify(ctx context.Context, path string, roots *x509.CertPool) *Report {
	data, err := os.ReadFile(path)
	if err != nil {
		r := &Report{Path: path, Chain: ChainInvalid}
		r.err = &FileError{Path: path, Message: "failed to read executable", Cause: err}
		r.problem("%v", err)
		return r
	}
	r := VerifyImage(ctx, data, roots)
	r.Path = path
	return r
}

// VerifyImage checks the signature of the PE image in data.
func VerifyImage(ctx context.Context, data []byte, roots *x509.CertPool) *Report {
	r := &Report{Chain: ChainInvalid}
	if err := ctx.Err(); err != nil {
		r.err = err
		r.problem("%v", err)
		return r
	}

	img, err := parseImage(data)
	if err != nil {
		r.err = err
		r.problem("%v", err)
		return r
	}
	if !img.signed() {
		r.problem("no certificate table")
		return r
	}
	r.Signed = true

	der, err := img.signature()
	if err != nil {
		r.problem("%v", err)
		return r
	}
	p7, err := pkcs7.Parse(der)
	if err != nil {
		r.problem("parse PKCS#7: %v", err)
		return r
	}
	if len(p7.Signers) != 1 {
		r.problem("expected one signer, found %d", len(p7.Signers))
		return r
	}
	leaf := p7.GetOnlySigner()
	if leaf == nil {
		r.problem("signer certificate not embedded")
		return r
	}
	r.Signer = leaf.Subject.CommonName
	r.Issuer = leaf.Issuer.CommonName
	r.Thumbprint = credential.Thumbprint(leaf)
	r.NotAfter = leaf.NotAfter

	content, err := parseIndirectData(p7.Content)
	if err != nil {
		r.problem("%v", err)
	} else {
		r.DigestMatch = bytes.Equal(content.MessageDigest.Digest, img.digest(img.body()))
		if !r.DigestMatch {
			r.problem("image digest does not match signed digest")
		}
	}

	var signingTime time.Time
	if err := p7.UnmarshalSignedAttribute(pkcs7.OIDAttributeSigningTime, &signingTime); err == nil {
		r.SigningTime = signingTime
	}

	sigErr := p7.Verify()
	if sigErr != nil {
		var mismatch *pkcs7.MessageDigestMismatchError
		if errors.As(sigErr, &mismatch) {
			r.problem("content digest mismatch")
		} else {
			r.problem("signature: %v", sigErr)
		}
	}

	at := r.SigningTime
	r.Timestamp = verifyTimestamp(p7, r)
	if r.Timestamp != nil && r.Timestamp.Valid {
		at = r.Timestamp.Time
	}
	if at.IsZero() {
		at = time.Now()
	}
	r.Chain = classifyChain(leaf, p7.Certificates, roots, at)

	r.Valid = r.DigestMatch && sigErr == nil && len(r.Problems) == 0
	return r
}

func verifyTimestamp(p7 *pkcs7.PKCS7, r *Report) *TimestampInfo {
	si := p7.Signers[0]
	for _, attr := range si.UnauthenticatedAttributes {
		if !attr.Type.Equal(oidTimestampToken) {
			continue
		}
		info := &TimestampInfo{}
		ts, err := timestamp.Parse(attr.Value.Bytes)
		if err != nil {
			r.problem("timestamp: %v", err)
			return info
		}
		info.Time = ts.Time
		if len(ts.Certificates) > 0 {
			info.Authority = ts.Certificates[0].Subject.CommonName
		}
		if !ts.HashAlgorithm.Available() {
			r.problem("timestamp: unsupported hash algorithm")
			return info
		}
		h := ts.HashAlgorithm.New()
		h.Write(si.EncryptedDigest)
		if !bytes.Equal(h.Sum(nil), ts.HashedMessage) {
			r.problem("timestamp does not cover this signature")
			return info
		}
		info.Valid = true
		return info
	}
	return nil
}

func classifyChain(leaf *x509.Certificate, certs []*x509.Certificate, roots *x509.CertPool, at time.Time) ChainStatus {
	intermediates := x509.NewCertPool()
	for _, c := range certs {
		if !c.Equal(leaf) {
			intermediates.AddCert(c)
		}
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	})
	if err == nil {
		return ChainTrusted
	}
	var unknown x509.UnknownAuthorityError
	var system x509.SystemRootsError
	if errors.As(err, &unknown) || errors.As(err, &system) {
		return ChainUntrustedRoot
	}
	return ChainInvalid
}
