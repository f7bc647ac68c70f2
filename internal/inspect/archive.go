package inspect

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rcook/rust-tool-action/internal/platform"
	"github.com/rcook/rust-tool-action/internal/release"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte("PK\x03\x04")
)

// maxListedEntries caps the entry names reported for one archive.
const maxListedEntries = 20

func isArchive(name string, head []byte) bool {
	typ, ok := release.ArchiveTypeOf(name)
	if !ok {
		return false
	}
	switch typ {
	case platform.ArchiveTarGz:
		return bytes.HasPrefix(head, gzipMagic)
	case platform.ArchiveZip:
		return bytes.HasPrefix(head, zipMagic)
	}
	return false
}

func (i *Inspector) archive(path string, r *Result) error {
	typ, _ := release.ArchiveTypeOf(path)
	r.add("format", typ)

	names, err := release.ListArchive(path)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	r.add("entries", fmt.Sprintf("%d", len(names)))
	for n, name := range names {
		if n == maxListedEntries {
			r.add("entry", fmt.Sprintf("... %d more", len(names)-maxListedEntries))
			break
		}
		r.add("entry", name)
	}

	sum, err := release.FileSHA256(path)
	if err != nil {
		return err
	}
	r.add("sha256", sum)

	if _, err := os.Stat(path + release.ChecksumExt); err == nil {
		if err := release.VerifyChecksum(path, path+release.ChecksumExt); err != nil {
			r.add("checksum", "MISMATCH")
		} else {
			r.add("checksum", "ok")
		}
	}
	if _, err := os.Stat(path + release.SignatureExt); err == nil {
		r.add("signature", filepath.Base(path+release.SignatureExt))
	}
	return nil
}

// checksums reports each line of a sha256sum file against the sibling file
// it names. Mismatches are reported, not failed: the checksum file itself
// was read successfully.
func (i *Inspector) checksums(path string, r *Result) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := release.ParseChecksums(f)
	if err != nil {
		return err
	}
	r.add("entries", fmt.Sprintf("%d", len(entries)))

	dir := filepath.Dir(path)
	for _, e := range entries {
		sibling := filepath.Join(dir, filepath.FromSlash(e.Name))
		actual, err := release.FileSHA256(sibling)
		switch {
		case errors.Is(err, os.ErrNotExist):
			r.add(e.Name, "missing")
		case err != nil:
			r.add(e.Name, "unreadable: "+err.Error())
		case actual == e.Digest:
			r.add(e.Name, "ok")
		default:
			r.add(e.Name, "MISMATCH")
		}
	}
	return nil
}
