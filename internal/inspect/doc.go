// Package inspect describes files the signing tool deals with.
//
// Inspect sniffs a target's content and reports metadata for PE
// executables, credential containers, X.509 certificates, OpenPGP keys and
// signatures, Sigstore bundles, release archives and checksum files. Any
// other file gets its size and SHA-256. Each target is inspected in
// isolation; InspectAll aggregates the failures.
package inspect

import "time"

// Kind is what a target was recognised as.
type Kind string

const (
	KindExecutable       Kind = "executable"
	KindContainer        Kind = "container"
	KindCertificate      Kind = "certificate"
	KindOpenPGPKey       Kind = "openpgp-key"
	KindOpenPGPSignature Kind = "openpgp-signature"
	KindSigstoreBundle   Kind = "sigstore-bundle"
	KindArchive          Kind = "archive"
	KindChecksums        Kind = "checksums"
	KindFile             Kind = "file"
	KindUnknown          Kind = "unknown"
)

// Field is one line of a report.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Result is the report for one target. Err is set when the target could
// not be inspected; Fields may still hold what was learned before that.
type Result struct {
	Target string  `json:"target"`
	Kind   Kind    `json:"kind"`
	Fields []Field `json:"fields,omitempty"`
	Error  string  `json:"error,omitempty"`
	Err    error   `json:"-"`
}

func (r *Result) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// OK reports whether the target was inspected successfully.
func (r *Result) OK() bool { return r.Err == nil }

func (r *Result) add(name, value string) {
	r.Fields = append(r.Fields, Field{Name: name, Value: value})
}

func (r *Result) addTime(name string, t time.Time) {
	if !t.IsZero() {
		r.add(name, t.UTC().Format(time.RFC3339))
	}
}

// Get returns the first field named name.
func (r *Result) Get(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}
