package inspect

import (
	"bytes"
	"crypto/x509"
	"fmt"

	"github.com/digitorus/timestamp"
	protobundle "github.com/sigstore/protobuf-specs/gen/pb-go/bundle/v1"
	"github.com/sigstore/sigstore-go/pkg/bundle"
	"google.golang.org/protobuf/encoding/protojson"
)

const sigstoreMediaTypePrefix = "application/vnd.dev.sigstore.bundle"

func isSigstoreBundle(head []byte) bool {
	trimmed := bytes.TrimSpace(head)
	return bytes.HasPrefix(trimmed, []byte("{")) && bytes.Contains(head, []byte(sigstoreMediaTypePrefix))
}

func (i *Inspector) sigstoreBundle(path string, r *Result) error {
	data, err := readAll(path)
	if err != nil {
		return err
	}

	pb := &protobundle.Bundle{}
	if err := protojson.Unmarshal(data, pb); err != nil {
		return fmt.Errorf("unmarshal bundle: %w", err)
	}
	b, err := bundle.NewBundle(pb)
	if err != nil {
		return fmt.Errorf("invalid bundle: %w", err)
	}

	r.add("media type", b.GetMediaType())

	vm := b.GetVerificationMaterial()
	var certDER []byte
	switch {
	case vm.GetCertificate() != nil:
		certDER = vm.GetCertificate().GetRawBytes()
	case len(vm.GetX509CertificateChain().GetCertificates()) > 0:
		certDER = vm.GetX509CertificateChain().GetCertificates()[0].GetRawBytes()
	case vm.GetPublicKey() != nil:
		r.add("verification", "public key")
		if hint := vm.GetPublicKey().GetHint(); hint != "" {
			r.add("key hint", hint)
		}
	}
	if certDER != nil {
		cert, err := x509.ParseCertificate(certDER)
		if err != nil {
			return fmt.Errorf("parse bundle certificate: %w", err)
		}
		r.add("verification", "certificate")
		r.add("certificate subject", cert.Subject.String())
		for _, uri := range cert.URIs {
			r.add("certificate identity", uri.String())
		}
		for _, email := range cert.EmailAddresses {
			r.add("certificate identity", email)
		}
		r.add("certificate issuer", cert.Issuer.String())
	}

	switch {
	case b.GetMessageSignature() != nil:
		r.add("content", "message signature ("+b.GetMessageSignature().GetMessageDigest().GetAlgorithm().String()+")")
	case b.GetDsseEnvelope() != nil:
		r.add("content", "DSSE envelope ("+b.GetDsseEnvelope().GetPayloadType()+")")
	}

	entries := vm.GetTlogEntries()
	r.add("tlog entries", fmt.Sprintf("%d", len(entries)))
	for _, e := range entries {
		r.add("tlog entry", fmt.Sprintf("index %d, %s %s", e.GetLogIndex(), e.GetKindVersion().GetKind(), e.GetKindVersion().GetVersion()))
	}

	stamps := vm.GetTimestampVerificationData().GetRfc3161Timestamps()
	r.add("rfc3161 timestamps", fmt.Sprintf("%d", len(stamps)))
	for _, st := range stamps {
		ts, err := parseSignedTimestamp(st.GetSignedTimestamp())
		if err != nil {
			r.add("rfc3161 timestamp", "unparsable: "+err.Error())
			continue
		}
		r.addTime("rfc3161 timestamp", ts.Time)
	}
	return nil
}

// parseSignedTimestamp accepts a full TimeStampResp or a bare token.
func parseSignedTimestamp(der []byte) (*timestamp.Timestamp, error) {
	if ts, err := timestamp.ParseResponse(der); err == nil {
		return ts, nil
	}
	return timestamp.Parse(der)
}
