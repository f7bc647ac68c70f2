package inspect

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rcook/rust-tool-action/internal/credential"
)

func (i *Inspector) certificate(path string, r *Result) error {
	data, err := readAll(path)
	if err != nil {
		return err
	}

	var certs []*x509.Certificate
	if strings.Contains(string(data), "-----BEGIN") {
		for rest := data; ; {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			if block.Type != "CERTIFICATE" {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return fmt.Errorf("parse certificate %d: %w", len(certs)+1, err)
			}
			certs = append(certs, cert)
		}
	} else {
		cert, err := x509.ParseCertificate(data)
		if err != nil {
			return fmt.Errorf("parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return errors.New("no certificates found")
	}

	if len(certs) > 1 {
		r.add("certificates", fmt.Sprintf("%d", len(certs)))
	}
	i.describeCertificate(certs[0], r)
	return nil
}

func (i *Inspector) describeCertificate(cert *x509.Certificate, r *Result) {
	r.add("subject", cert.Subject.String())
	r.add("issuer", cert.Issuer.String())
	if len(cert.DNSNames) > 0 {
		r.add("dns names", strings.Join(cert.DNSNames, ", "))
	}
	r.add("serial", fmt.Sprintf("%X", cert.SerialNumber))
	r.add("thumbprint", credential.Thumbprint(cert))
	r.add("key", cert.PublicKeyAlgorithm.String())
	r.addTime("not before", cert.NotBefore)
	r.addTime("not after", cert.NotAfter)

	now := i.now()
	switch {
	case now.After(cert.NotAfter):
		r.add("status", "expired")
	case now.Before(cert.NotBefore):
		r.add("status", "not yet valid")
	default:
		r.add("status", "current")
	}
	r.add("code signing", yesNo(slices.Contains(cert.ExtKeyUsage, x509.ExtKeyUsageCodeSigning)))
	r.add("self-signed", yesNo(credential.IsSelfSigned(cert)))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
