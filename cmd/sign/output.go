package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/rcook/rust-tool-action/internal/authenticode"
	"github.com/rcook/rust-tool-action/internal/inspect"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	dimColor  = color.New(color.Faint)
)

func okMark() string   { return okColor.Sprint("✓") }
func failMark() string { return failColor.Sprint("✗") }
func warnMark() string { return warnColor.Sprint("?") }

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// writeFields prints name/value pairs with the values aligned.
func writeFields(w io.Writer, indent string, fields [][2]string) {
	width := 0
	for _, f := range fields {
		if len(f[0]) > width {
			width = len(f[0])
		}
	}
	for _, f := range fields {
		fmt.Fprintf(w, "%s%-*s  %s\n", indent, width+1, f[0]+":", f[1])
	}
}

func writeInspectResult(w io.Writer, r *inspect.Result) {
	if !r.OK() {
		fmt.Fprintf(w, "%s %s: %s\n", failMark(), r.Target, r.Error)
		if len(r.Fields) == 0 {
			return
		}
	} else {
		fmt.Fprintf(w, "%s %s %s\n", okMark(), r.Target, dimColor.Sprintf("(%s)", r.Kind))
	}
	fields := make([][2]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		fields = append(fields, [2]string{f.Name, f.Value})
	}
	writeFields(w, "    ", fields)
}

// reportMark summarizes a verification report: ✓ valid and trusted,
// ? valid with an untrusted root, ✗ anything else.
func reportMark(r *authenticode.Report) string {
	switch {
	case !r.Valid:
		return failMark()
	case r.Chain == authenticode.ChainTrusted:
		return okMark()
	default:
		return warnMark()
	}
}

func reportStatus(r *authenticode.Report) string {
	switch {
	case !r.Signed:
		return "not signed"
	case !r.Valid:
		return "invalid signature"
	case r.Chain == authenticode.ChainTrusted:
		return "valid signature"
	default:
		return "valid signature (untrusted root)"
	}
}

func writeReport(w io.Writer, r *authenticode.Report) {
	fmt.Fprintf(w, "%s %s: %s\n", reportMark(r), r.Path, reportStatus(r))
	if !r.Signed {
		for _, p := range r.Problems {
			fmt.Fprintf(w, "    %s\n", p)
		}
		return
	}

	fields := [][2]string{
		{"signer", r.Signer},
		{"issuer", r.Issuer},
		{"thumbprint", r.Thumbprint},
		{"expires", formatTime(r.NotAfter)},
		{"signing time", formatTime(r.SigningTime)},
	}
	if ts := r.Timestamp; ts != nil {
		status := "valid"
		if !ts.Valid {
			status = "invalid"
		}
		fields = append(fields,
			[2]string{"timestamp", formatTime(ts.Time) + " (" + status + ")"},
			[2]string{"timestamp authority", ts.Authority})
	} else {
		fields = append(fields, [2]string{"timestamp", "none"})
	}
	fields = append(fields,
		[2]string{"chain", string(r.Chain)},
		[2]string{"digest", matchWord(r.DigestMatch)})
	writeFields(w, "    ", fields)
	if len(r.Problems) > 0 {
		fmt.Fprintf(w, "    problems:\n")
		for _, p := range r.Problems {
			fmt.Fprintf(w, "      - %s\n", p)
		}
	}
}

func matchWord(ok bool) string {
	if ok {
		return "matches"
	}
	return "MISMATCH"
}
