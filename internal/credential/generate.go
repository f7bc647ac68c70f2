package credential

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// KeyType selects the key algorithm for generated identities.
type KeyType string

const (
	KeyTypeECDSA KeyType = "ecdsa"
	KeyTypeRSA   KeyType = "rsa"
)

const (
	DefaultSubject  = "Code-signing certificate for rcook.org"
	DefaultDNSName  = "rcook.org"
	DefaultValidity = 365 * 24 * time.Hour
	DefaultRSABits  = 3072
	minRSABits      = 2048
	clockSkew       = time.Hour
)

// GenerateOptions controls Generate. Zero values select defaults.
type GenerateOptions struct {
	Subject  string
	DNSName  string
	KeyType  KeyType
	KeyBits  int
	Validity time.Duration
	Now      time.Time
}

// Generate creates a key pair and a self-signed certificate whose only
// permitted use is code signing.
func Generate(opts GenerateOptions) (*Identity, error) {
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.DNSName == "" {
		opts.DNSName = DefaultDNSName
	}
	if opts.Validity <= 0 {
		opts.Validity = DefaultValidity
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	key, err := generateKey(opts.KeyType, opts.KeyBits)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	subject := pkix.Name{CommonName: opts.Subject}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		Issuer:                subject,
		NotBefore:             opts.Now.Add(-clockSkew).UTC(),
		NotAfter:              opts.Now.Add(opts.Validity).UTC(),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		BasicConstraintsValid: true,
		IsCA:                  false,
		DNSNames:              []string{opts.DNSName},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse generated certificate: %w", err)
	}

	return &Identity{Certificate: cert, PrivateKey: key}, nil
}

func generateKey(kt KeyType, bits int) (crypto.Signer, error) {
	switch kt {
	case "", KeyTypeECDSA:
		curve := elliptic.P256()
		if bits == 384 {
			curve = elliptic.P384()
		}
		key, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate ecdsa key: %w", err)
		}
		return key, nil
	case KeyTypeRSA:
		if bits == 0 {
			bits = DefaultRSABits
		}
		if bits < minRSABits {
			return nil, fmt.Errorf("rsa key size %d is below the minimum of %d", bits, minRSABits)
		}
		key, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return nil, fmt.Errorf("generate rsa key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", kt)
	}
}

// ParseKeyType converts a config or flag value into a KeyType.
func ParseKeyType(s string) (KeyType, error) {
	switch KeyType(s) {
	case "":
		return KeyTypeECDSA, nil
	case KeyTypeECDSA, KeyTypeRSA:
		return KeyType(s), nil
	default:
		return "", fmt.Errorf("unsupported key type: %s", s)
	}
}
