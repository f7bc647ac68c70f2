package release

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rcook/rust-tool-action/internal/platform"
)

// ArchiveFile is one file to place in an archive.
type ArchiveFile struct {
	Source string
	Name   string
	Mode   os.FileMode
}

// ArchiveTypeOf infers the archive type from a file name.
func ArchiveTypeOf(name string) (string, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return platform.ArchiveTarGz, true
	case strings.HasSuffix(lower, ".zip"):
		return platform.ArchiveZip, true
	}
	return "", false
}

// CreateArchive writes files into dst. The archive appears under its final
// name only once it is complete. modTime is stamped on every entry so
// identical inputs produce identical archives.
func CreateArchive(dst, archiveType string, files []ArchiveFile, modTime time.Time) error {
	if len(files) == 0 {
		return errors.New("no files to archive")
	}

	var buf bytes.Buffer
	var err error
	switch archiveType {
	case platform.ArchiveTarGz:
		err = writeTarGz(&buf, files, modTime)
	case platform.ArchiveZip:
		err = writeZip(&buf, files, modTime)
	default:
		return fmt.Errorf("unsupported archive type %q", archiveType)
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dst), err)
	}
	return writeFileAtomic(dst, buf.Bytes(), 0o644)
}

func writeTarGz(w io.Writer, files []ArchiveFile, modTime time.Time) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		data, err := os.ReadFile(f.Source)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Source, err)
		}
		hdr := &tar.Header{
			Name:     f.Name,
			Mode:     int64(f.Mode.Perm()),
			Size:     int64(len(data)),
			ModTime:  modTime,
			Typeflag: tar.TypeReg,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header %s: %w", f.Name, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("write tar entry %s: %w", f.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func writeZip(w io.Writer, files []ArchiveFile, modTime time.Time) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		data, err := os.ReadFile(f.Source)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Source, err)
		}
		hdr := &zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: modTime}
		hdr.SetMode(f.Mode.Perm())
		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("write zip header %s: %w", f.Name, err)
		}
		if _, err := entry.Write(data); err != nil {
			return fmt.Errorf("write zip entry %s: %w", f.Name, err)
		}
	}
	return zw.Close()
}

// ListArchive returns the regular file names in a tar.gz or zip archive.
func ListArchive(archivePath string) ([]string, error) {
	var names []string
	err := walkArchive(archivePath, func(name string, _ io.Reader) (bool, error) {
		names = append(names, name)
		return false, nil
	})
	return names, err
}

// ReadArchiveFile returns the contents of the entry whose base name is name.
func ReadArchiveFile(archivePath, name string) ([]byte, error) {
	var data []byte
	err := walkArchive(archivePath, func(entry string, r io.Reader) (bool, error) {
		if path.Base(entry) != name {
			return false, nil
		}
		var err error
		data, err = io.ReadAll(r)
		return true, err
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%s not found in %s", name, filepath.Base(archivePath))
	}
	return data, nil
}

// walkArchive calls fn for each regular file until fn reports done.
func walkArchive(archivePath string, fn func(name string, r io.Reader) (bool, error)) error {
	archiveType, ok := ArchiveTypeOf(archivePath)
	if !ok {
		return fmt.Errorf("unknown archive type: %s", filepath.Base(archivePath))
	}

	if archiveType == platform.ArchiveZip {
		zr, err := zip.OpenReader(archivePath)
		if err != nil {
			return fmt.Errorf("open zip: %w", err)
		}
		defer zr.Close()
		for _, f := range zr.File {
			if f.FileInfo().IsDir() {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("open zip entry %s: %w", f.Name, err)
			}
			done, err := fn(f.Name, rc)
			rc.Close()
			if err != nil || done {
				return err
			}
		}
		return nil
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		done, err := fn(header.Name, tarReader)
		if err != nil || done {
			return err
		}
	}
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	cleanup = false
	return nil
}
