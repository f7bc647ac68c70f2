package authenticode

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/digitorus/pkcs7"
)

// Signer supplies the certificate and key a signature is made with.
type Signer interface {
	SigningCertificate() *x509.Certificate
	SigningKey() crypto.Signer
	CertificateChain() []*x509.Certificate
}

// Timestamper obtains an RFC 3161 TimeStampToken over data.
type Timestamper interface {
	Timestamp(ctx context.Context, data []byte) ([]byte, error)
}

// Options configures Sign.
type Options struct {
	// Timestamper counter-signs the signature. Nil produces an untimestamped
	// signature.
	Timestamper Timestamper

	// Description and URL populate SpcSpOpusInfo.
	Description string
	URL         string
}

// Sign signs the PE image at path in place. Any existing signature is
// replaced. On error the file is left unchanged.
func Sign(ctx context.Context, path string, signer Signer, opts Options) error {
	info, err := os.Stat(path)
	if err != nil {
		return &FileError{Path: path, Message: "failed to stat executable", Cause: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &FileError{Path: path, Message: "failed to read executable", Cause: err}
	}

	signed, err := SignImage(ctx, data, signer, opts)
	if err != nil {
		return &FileError{Path: path, Message: "failed to sign", Cause: err}
	}

	return replaceFile(path, signed, info.Mode().Perm())
}

// SignImage returns a signed copy of the PE image in data.
func SignImage(ctx context.Context, data []byte, signer Signer, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if signer == nil || signer.SigningCertificate() == nil || signer.SigningKey() == nil {
		return nil, errors.New("signer has no certificate or key")
	}

	img, err := parseImage(data)
	if err != nil {
		return nil, err
	}

	body := make([]byte, align8(len(img.body())))
	copy(body, img.body())
	binary.LittleEndian.PutUint64(body[img.certDirOff:], 0)

	content, err := indirectDataContent(img.digest(body))
	if err != nil {
		return nil, err
	}
	der, err := signedData(ctx, content, signer, opts)
	if err != nil {
		return nil, err
	}

	table := winCertificate(der)
	if uint64(len(body))+uint64(len(table)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: signed image exceeds 4 GiB", ErrNotExecutable)
	}
	out := append(body, table...)
	binary.LittleEndian.PutUint32(out[img.certDirOff:], uint32(len(body)))
	binary.LittleEndian.PutUint32(out[img.certDirOff+4:], uint32(len(table)))
	binary.LittleEndian.PutUint32(out[img.checksumOff:], 0)
	binary.LittleEndian.PutUint32(out[img.checksumOff:], checksum(out))
	return out, nil
}

func signedData(ctx context.Context, content []byte, signer Signer, opts Options) ([]byte, error) {
	// The signed message digest covers the content octets of the sequence.
	var seq asn1.RawValue
	if _, err := asn1.Unmarshal(content, &seq); err != nil {
		return nil, fmt.Errorf("decode indirect data: %w", err)
	}

	sd, err := pkcs7.NewSignedData(seq.Bytes)
	if err != nil {
		return nil, fmt.Errorf("create signed data: %w", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	sd.SetContentType(oidSpcIndirectData)

	attrs, err := signedAttributes(opts)
	if err != nil {
		return nil, err
	}
	if err := sd.AddSignerChain(signer.SigningCertificate(), signer.SigningKey(), signer.CertificateChain(),
		pkcs7.SignerInfoConfig{ExtraSignedAttributes: attrs}); err != nil {
		return nil, fmt.Errorf("add signer: %w", err)
	}

	raw := sd.GetSignedData()
	raw.ContentInfo.Content = asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        0,
		IsCompound: true,
		Bytes:      content,
	}

	if opts.Timestamper != nil {
		si := &raw.SignerInfos[0]
		token, err := opts.Timestamper.Timestamp(ctx, si.EncryptedDigest)
		if err != nil {
			return nil, fmt.Errorf("timestamp signature: %w", err)
		}
		if err := si.SetUnauthenticatedAttributes([]pkcs7.Attribute{
			{Type: oidTimestampToken, Value: asn1.RawValue{FullBytes: token}},
		}); err != nil {
			return nil, fmt.Errorf("attach timestamp: %w", err)
		}
	}

	der, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("encode signed data: %w", err)
	}
	return der, nil
}

// replaceFile atomically replaces path with data.
func replaceFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".sign-tmp-*")
	if err != nil {
		return &FileError{Path: path, Message: "failed to create temporary file", Cause: err}
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath) // Clean up on error

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return &FileError{Path: path, Message: "failed to write signed image", Cause: err}
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return &FileError{Path: path, Message: "failed to sync file", Cause: err}
	}
	if err := tmpFile.Close(); err != nil {
		return &FileError{Path: path, Message: "failed to close temporary file", Cause: err}
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return &FileError{Path: path, Message: "failed to set file mode", Cause: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return &FileError{Path: path, Message: "failed to rename temp file", Cause: err}
	}
	return nil
}
