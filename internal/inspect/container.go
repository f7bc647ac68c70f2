package inspect

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcook/rust-tool-action/internal/credential"
)

// container reports on a PKCS#12 container. The sidecar passphrase, when
// present, is used to open it; without one the container is reported as
// locked. The passphrase itself is never reported.
func (i *Inspector) container(path string, r *Result) error {
	raw, err := readAll(path)
	if err != nil {
		return err
	}
	pfx, err := credential.DecodeText(raw)
	if err != nil {
		return err
	}
	if len(pfx) == len(raw) {
		r.add("encoding", "DER")
	} else {
		r.add("encoding", "base64")
	}
	r.add("size", fmt.Sprintf("%d bytes", len(pfx)))

	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + i.passExt
	pass, err := credential.ReadPassphrase(sidecar)
	if errors.Is(err, credential.ErrPassphraseNotFound) {
		r.add("state", "locked (no "+filepath.Base(sidecar)+")")
		return nil
	}
	if err != nil {
		return err
	}

	id, err := credential.Decode(pfx, pass)
	if err != nil {
		return err
	}
	r.add("state", "unlocked with "+filepath.Base(sidecar))
	if info, err := os.Stat(sidecar); err == nil && info.Mode().Perm()&0o077 != 0 {
		r.add("warning", fmt.Sprintf("%s is readable by others (mode %04o)", filepath.Base(sidecar), info.Mode().Perm()))
	}
	i.describeCertificate(id.Certificate, r)
	if len(id.Chain) > 0 {
		r.add("chain certificates", fmt.Sprintf("%d", len(id.Chain)))
	}
	return nil
}
