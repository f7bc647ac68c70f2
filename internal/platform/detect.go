package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect reports the running host. OS and architecture come from the Go
// runtime; everything else comes from gopsutil and is left empty when
// gopsutil cannot determine it.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
		Arch:    runtime.GOARCH,
	}
	if arch, err := normalizeArch(runtime.GOARCH); err == nil {
		info.Arch = arch
	}

	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		// Cancellation is a hard failure; anything else falls back to
		// runtime-only information.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	info.Hostname = hi.Hostname
	info.Kernel = hi.KernelVersion
	info.Platform = normalizePlatform(hi.Platform)
	info.Version = normalizePlatform(hi.PlatformVersion)
	if info.IsLinux() && info.Platform != "" {
		info.Family = mapFamily(hi.PlatformFamily)
	}
	return info, nil
}
