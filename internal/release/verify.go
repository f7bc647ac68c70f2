package release

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/hashicorp/go-multierror"
)

// VerificationMethod indicates how an artifact was checked.
type VerificationMethod int

const (
	VerificationNone VerificationMethod = iota
	VerificationSHA256
	VerificationOpenPGP
)

// String returns the string representation of the verification method
func (v VerificationMethod) String() string {
	switch v {
	case VerificationSHA256:
		return "SHA256"
	case VerificationOpenPGP:
		return "OpenPGP"
	case VerificationNone:
		return "None"
	default:
		return "Unknown"
	}
}

// VerificationResult is the outcome of one check.
type VerificationResult struct {
	Method  VerificationMethod
	Success bool
	Signer  string
	Error   error
}

// MarshalJSON renders the method by name and the error as its message.
func (r VerificationResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Method  string `json:"method"`
		Success bool   `json:"success"`
		Signer  string `json:"signer,omitempty"`
		Error   string `json:"error,omitempty"`
	}{Method: r.Method.String(), Success: r.Success, Signer: r.Signer}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return json.Marshal(out)
}

// ArtifactReport collects the checks run against one archive.
type ArtifactReport struct {
	Archive string
	Entries []string
	Results []VerificationResult
}

// OK reports whether every check passed.
func (r *ArtifactReport) OK() bool {
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return len(r.Results) > 0
}

// VerifyArtifacts checks archive against archive.sha256, which must exist,
// and, when keyring is non-nil, against archive.asc, which must then exist.
// The returned error aggregates every failed check.
func VerifyArtifacts(archive string, keyring openpgp.EntityList) (*ArtifactReport, error) {
	report := &ArtifactReport{Archive: archive}
	var errs *multierror.Error

	entries, err := ListArchive(archive)
	if err != nil {
		return report, err
	}
	report.Entries = entries

	sum := VerificationResult{Method: VerificationSHA256}
	if err := VerifyChecksum(archive, archive+ChecksumExt); err != nil {
		sum.Error = err
		errs = multierror.Append(errs, fmt.Errorf("checksum: %w", err))
	} else {
		sum.Success = true
	}
	report.Results = append(report.Results, sum)

	if keyring != nil {
		sig := VerificationResult{Method: VerificationOpenPGP}
		sigPath := archive + SignatureExt
		if _, err := os.Stat(sigPath); errors.Is(err, os.ErrNotExist) {
			sig.Error = fmt.Errorf("%w: %s is missing", ErrBadSignature, sigPath)
		} else if signer, err := VerifyDetached(keyring, archive, sigPath); err != nil {
			sig.Error = err
		} else {
			sig.Success = true
			sig.Signer = fmt.Sprintf("%X", signer.PrimaryKey.KeyId)
			if id := signer.PrimaryIdentity(); id != nil {
				sig.Signer = id.Name
			}
		}
		if sig.Error != nil {
			errs = multierror.Append(errs, fmt.Errorf("signature: %w", sig.Error))
		}
		report.Results = append(report.Results, sig)
	}

	return report, errs.ErrorOrNil()
}
