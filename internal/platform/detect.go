package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using the running process and gopsutil.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect reports the host platform. OS and architecture come from the Go
// runtime; on Linux the distribution is read through gopsutil.
//
// Distribution detection failures are not fatal: the returned Info then has
// empty distro fields. A cancelled context is fatal.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	return detect(ctx, runtime.GOOS, runtime.GOARCH, host.PlatformInformationWithContext)
}

type platformInfoFunc func(ctx context.Context) (platform, family, version string, err error)

func detect(ctx context.Context, goos, goarch string, lookup platformInfoFunc) (*Info, error) {
	info := &Info{
		OS:      goos,
		ArchRaw: goarch,
	}

	arch, err := normalizeArch(goarch)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	if goos != "linux" {
		return info, nil
	}

	platform, family, version, err := lookup(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	platform = normalizePlatform(platform)
	if platform == "" {
		return info, nil
	}

	// gopsutil reports alpine with an empty family
	if platform == FamilyAlpine && family == "" {
		family = FamilyAlpine
	}

	info.Platform = platform
	info.Family = mapFamily(family)
	info.Version = normalizePlatform(version)
	return info, nil
}
