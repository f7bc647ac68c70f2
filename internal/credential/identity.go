package credential

import (
	"bytes"
	"crypto"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"strings"
)

// Identity is a certificate together with its private key.
type Identity struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.Signer
	Chain       []*x509.Certificate
}

// SigningCertificate returns the leaf certificate.
func (id *Identity) SigningCertificate() *x509.Certificate { return id.Certificate }

// SigningKey returns the private key matching the leaf certificate.
func (id *Identity) SigningKey() crypto.Signer { return id.PrivateKey }

// CertificateChain returns intermediates to embed alongside the leaf.
func (id *Identity) CertificateChain() []*x509.Certificate { return id.Chain }

// Thumbprint returns the SHA-1 thumbprint of the leaf certificate.
func (id *Identity) Thumbprint() string {
	return Thumbprint(id.Certificate)
}

// Subject returns the common name of the leaf certificate.
func (id *Identity) Subject() string {
	if id.Certificate == nil {
		return ""
	}
	return id.Certificate.Subject.CommonName
}

// Thumbprint returns the upper-case hex SHA-1 of cert's DER encoding, the
// identifier certificate stores and signing tools display.
func Thumbprint(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	sum := sha1.Sum(cert.Raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// IsSelfSigned reports whether cert names itself as issuer and its signature
// verifies under its own public key. Unlike CheckSignatureFrom this does not
// require the certificate to be a CA.
func IsSelfSigned(cert *x509.Certificate) bool {
	if cert == nil || !bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		return false
	}
	return cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}
