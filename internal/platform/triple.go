package platform

import (
	"fmt"
	"strings"
)

// Archive types produced for a target.
const (
	ArchiveTarGz = "tar.gz"
	ArchiveZip   = "zip"
)

// Triple is a parsed Rust target triple such as x86_64-pc-windows-msvc.
type Triple struct {
	Raw    string `json:"triple"`
	Arch   string `json:"arch"`   // GOARCH spelling
	Vendor string `json:"vendor"` // "pc", "unknown", "apple"
	OS     string `json:"os"`     // GOOS spelling
	Env    string `json:"env,omitempty"`
}

// ParseTriple parses a Rust target triple. Both the three-part form
// (aarch64-apple-darwin) and the four-part form
// (x86_64-unknown-linux-gnu) are accepted.
func ParseTriple(s string) (Triple, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) < 3 || len(parts) > 4 {
		return Triple{}, fmt.Errorf("invalid target triple %q: expected arch-vendor-os[-env]", s)
	}
	for _, p := range parts {
		if p == "" {
			return Triple{}, fmt.Errorf("invalid target triple %q: empty component", s)
		}
	}

	arch, err := normalizeArch(parts[0])
	if err != nil {
		return Triple{}, fmt.Errorf("invalid target triple %q: %w", s, err)
	}

	t := Triple{Raw: strings.TrimSpace(s), Arch: arch, Vendor: parts[1]}
	switch parts[2] {
	case "windows":
		t.OS = "windows"
	case "darwin":
		t.OS = "darwin"
	case "linux":
		t.OS = "linux"
	case "freebsd", "netbsd", "openbsd":
		t.OS = parts[2]
	default:
		return Triple{}, fmt.Errorf("invalid target triple %q: unsupported OS %q", s, parts[2])
	}
	if len(parts) == 4 {
		t.Env = parts[3]
	}
	return t, nil
}

// IsWindows reports whether the target produces Windows executables.
func (t Triple) IsWindows() bool {
	return t.OS == "windows"
}

// ExeExt returns the executable file extension for the target.
func (t Triple) ExeExt() string {
	if t.IsWindows() {
		return ".exe"
	}
	return ""
}

// ArchiveType returns the archive format conventionally used for the target.
func (t Triple) ArchiveType() string {
	if t.IsWindows() {
		return ArchiveZip
	}
	return ArchiveTarGz
}

func (t Triple) String() string {
	return t.Raw
}
