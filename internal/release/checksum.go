package release

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ChecksumExt is appended to an artifact name to form its checksum file.
const ChecksumExt = ".sha256"

// ChecksumEntry is one line of a sha256sum-format file.
type ChecksumEntry struct {
	Digest string
	Name   string
}

// FileSHA256 returns the lowercase hex SHA-256 of a file.
func FileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ParseChecksums reads "<hex>  <name>" lines. Binary-mode markers ("*name")
// are accepted, blank lines and # comments skipped. Any other line is an
// error.
func ParseChecksums(r io.Reader) ([]ChecksumEntry, error) {
	var entries []ChecksumEntry
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 || !isHexDigest(parts[0]) {
			return nil, fmt.Errorf("line %d: not a sha256 checksum line", lineNum)
		}
		entries = append(entries, ChecksumEntry{
			Digest: strings.ToLower(parts[0]),
			Name:   strings.TrimPrefix(strings.Join(parts[1:], " "), "*"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan checksum file: %w", err)
	}
	return entries, nil
}

func isHexDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// FindChecksum returns the digest recorded for filename. Entries written
// with a directory prefix match on their base name.
func FindChecksum(checksumPath, filename string) (string, error) {
	file, err := os.Open(checksumPath)
	if err != nil {
		return "", fmt.Errorf("open checksum file: %w", err)
	}
	defer file.Close()

	entries, err := ParseChecksums(file)
	if err != nil {
		return "", fmt.Errorf("%s: %w", checksumPath, err)
	}
	for _, e := range entries {
		if e.Name == filename || filepath.Base(e.Name) == filename {
			return e.Digest, nil
		}
	}
	return "", fmt.Errorf("%w for %s in %s", ErrChecksumNotFound, filename, checksumPath)
}

// WriteChecksumFile writes "<hex>  <base name>\n" for artifact to
// artifact+ChecksumExt and returns the checksum file path.
func WriteChecksumFile(artifact string) (string, error) {
	digest, err := FileSHA256(artifact)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", artifact, err)
	}
	path := artifact + ChecksumExt
	line := fmt.Sprintf("%s  %s\n", digest, filepath.Base(artifact))
	if err := writeFileAtomic(path, []byte(line), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// VerifyChecksum compares a file against the digest recorded for its base
// name in checksumPath.
func VerifyChecksum(path, checksumPath string) error {
	expected, err := FindChecksum(checksumPath, filepath.Base(path))
	if err != nil {
		return err
	}
	actual, err := FileSHA256(path)
	if err != nil {
		return fmt.Errorf("calculate checksum: %w", err)
	}
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("%w for %s:\nactual:   %s\nexpected: %s", ErrChecksumMismatch, filepath.Base(path), actual, expected)
	}
	return nil
}
