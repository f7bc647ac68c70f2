// Package platform describes the host the tool runs on and the Rust target
// it builds for.
//
// Host details come from gopsutil and are shown by `sign info`; both the host
// and the target are exposed to the Lua config as a read-only table so that a
// config can vary by platform.
package platform

import "context"

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info describes the host.
type Info struct {
	OS       string `json:"os"`                 // "linux", "darwin", "windows"
	Arch     string `json:"arch"`               // normalized: "amd64", "arm64", "386", "arm"
	ArchRaw  string `json:"arch_raw"`           // runtime.GOARCH
	Platform string `json:"platform,omitempty"` // distro or product ID, e.g. "ubuntu"
	Family   string `json:"family,omitempty"`   // canonical family on Linux
	Version  string `json:"version,omitempty"`  // platform version, e.g. "22.04"
	Hostname string `json:"hostname,omitempty"`
	Kernel   string `json:"kernel,omitempty"`
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool {
	return i.Arch == "amd64"
}

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool {
	return i.Arch == "arm64"
}

// String renders the host as "os/arch", with the platform when known.
func (i *Info) String() string {
	s := i.OS + "/" + i.Arch
	if i.Platform != "" {
		s += " (" + i.Platform
		if i.Version != "" {
			s += " " + i.Version
		}
		s += ")"
	}
	return s
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. It is used by tests and when a caller
// already knows the platform.
type StaticDetector struct {
	Info *Info
	Err  error
}

// Detect returns d.Info and d.Err.
func (d StaticDetector) Detect(ctx context.Context) (*Info, error) {
	return d.Info, d.Err
}
