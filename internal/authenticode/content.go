package authenticode

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/digitorus/pkcs7"
)

var (
	oidSpcIndirectData     = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}
	oidSpcPeImageData      = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 15}
	oidSpcStatementType    = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 11}
	oidSpcSpOpusInfo       = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 12}
	oidSpcIndividualSigner = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 21}
	oidTimestampToken      = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 3, 3, 1}
)

type digestInfo struct {
	DigestAlgorithm pkix.AlgorithmIdentifier
	Digest          []byte
}

type spcAttributeValue struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue `asn1:"optional"`
}

type spcIndirectDataContent struct {
	Data          spcAttributeValue
	MessageDigest digestInfo
}

type spcPeImageData struct {
	Flags asn1.BitString
	File  asn1.RawValue
}

// contextTagged encodes b under a context-specific tag. Marshal cannot fail
// for such a value.
func contextTagged(tag int, compound bool, b []byte) []byte {
	out, _ := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        tag,
		IsCompound: compound,
		Bytes:      b,
	})
	return out
}

func bmpString(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(units))
	for i, u := range units {
		binary.BigEndian.PutUint16(out[2*i:], u)
	}
	return out
}

// indirectDataContent returns the DER SpcIndirectDataContent for a PE image
// with the given SHA-256 digest.
func indirectDataContent(digest []byte) ([]byte, error) {
	// SpcLink.file -> SpcString.unicode
	file := contextTagged(0, true, contextTagged(2, true, contextTagged(0, false, bmpString("<<<Obsolete>>>"))))
	peData, err := asn1.Marshal(spcPeImageData{
		Flags: asn1.BitString{},
		File:  asn1.RawValue{FullBytes: file},
	})
	if err != nil {
		return nil, fmt.Errorf("encode SpcPeImageData: %w", err)
	}
	content, err := asn1.Marshal(spcIndirectDataContent{
		Data: spcAttributeValue{
			Type:  oidSpcPeImageData,
			Value: asn1.RawValue{FullBytes: peData},
		},
		MessageDigest: digestInfo{
			DigestAlgorithm: pkix.AlgorithmIdentifier{
				Algorithm:  pkcs7.OIDDigestAlgorithmSHA256,
				Parameters: asn1.NullRawValue,
			},
			Digest: digest,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode SpcIndirectDataContent: %w", err)
	}
	return content, nil
}

// parseIndirectData decodes the content octets of a SignedData, which hold
// the body of the SpcIndirectDataContent sequence.
func parseIndirectData(body []byte) (*spcIndirectDataContent, error) {
	full, err := asn1.Marshal(asn1.RawValue{Tag: asn1.TagSequence, IsCompound: true, Bytes: body})
	if err != nil {
		return nil, err
	}
	var content spcIndirectDataContent
	rest, err := asn1.Unmarshal(full, &content)
	if err != nil {
		return nil, fmt.Errorf("decode SpcIndirectDataContent: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode SpcIndirectDataContent: trailing data")
	}
	if !content.Data.Type.Equal(oidSpcPeImageData) {
		return nil, fmt.Errorf("unexpected indirect data type %s", content.Data.Type)
	}
	if !content.MessageDigest.DigestAlgorithm.Algorithm.Equal(pkcs7.OIDDigestAlgorithmSHA256) {
		return nil, fmt.Errorf("unsupported digest algorithm %s", content.MessageDigest.DigestAlgorithm.Algorithm)
	}
	return &content, nil
}

// opusInfo encodes SpcSpOpusInfo with an optional program name and URL.
func opusInfo(description, url string) ([]byte, error) {
	var fields []byte
	if description != "" {
		fields = append(fields, contextTagged(0, true, contextTagged(0, false, bmpString(description)))...)
	}
	if url != "" {
		fields = append(fields, contextTagged(1, true, contextTagged(0, false, []byte(url)))...)
	}
	return asn1.Marshal(asn1.RawValue{Tag: asn1.TagSequence, IsCompound: true, Bytes: fields})
}

func signedAttributes(opts Options) ([]pkcs7.Attribute, error) {
	opus, err := opusInfo(opts.Description, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("encode SpcSpOpusInfo: %w", err)
	}
	return []pkcs7.Attribute{
		{Type: oidSpcSpOpusInfo, Value: asn1.RawValue{FullBytes: opus}},
		{Type: oidSpcStatementType, Value: []asn1.ObjectIdentifier{oidSpcIndividualSigner}},
	}, nil
}
