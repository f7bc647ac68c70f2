package inspect

import (
	"context"
	"fmt"

	"github.com/rcook/rust-tool-action/internal/authenticode"
)

func (i *Inspector) executable(ctx context.Context, path string, r *Result) error {
	data, err := readAll(path)
	if err != nil {
		return err
	}
	img, err := authenticode.Describe(data)
	if err != nil {
		return err
	}

	format := "PE32"
	if img.PE32Plus {
		format = "PE32+"
	}
	r.add("format", format)
	r.add("machine", img.Machine)
	r.add("subsystem", img.Subsystem)
	r.add("size", fmt.Sprintf("%d bytes", img.Size))

	if !img.Signed {
		r.add("signature", "none")
		return nil
	}

	report := authenticode.VerifyImage(ctx, data, i.roots)
	switch {
	case report.Valid:
		r.add("signature", "valid")
	case len(report.Problems) > 0:
		r.add("signature", "invalid: "+report.Problems[0])
	default:
		r.add("signature", "invalid")
	}
	if report.Signer != "" {
		r.add("signer", report.Signer)
	}
	if report.Thumbprint != "" {
		r.add("thumbprint", report.Thumbprint)
	}
	r.add("chain", string(report.Chain))
	r.addTime("signing time", report.SigningTime)
	if ts := report.Timestamp; ts != nil {
		r.addTime("timestamp", ts.Time)
		if ts.Authority != "" {
			r.add("timestamp authority", ts.Authority)
		}
	} else {
		r.add("timestamp", "none")
	}
	return nil
}
