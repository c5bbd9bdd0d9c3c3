// Package platform detects the host operating system, CPU architecture and
// Linux distribution, and exposes the result to Lua build configurations as a
// read-only table.
//
// Distribution details come from gopsutil. They matter for runtime selection
// because musl-based distributions (Alpine) need their own prebuilt binaries.
package platform

import "context"

// Linux distribution families, as reported after normalisation.
const (
	FamilyDebian  = "debian"
	FamilyRHEL    = "rhel"
	FamilyFedora  = "fedora"
	FamilySUSE    = "suse"
	FamilyArch    = "arch"
	FamilyAlpine  = "alpine"
	FamilyGentoo  = "gentoo"
	FamilyUnknown = "unknown"
)

// Info contains platform detection information.
type Info struct {
	OS       string // runtime.GOOS: "linux", "darwin", "windows"
	Arch     string // normalized: "amd64", "arm64", "arm", "386"
	ArchRaw  string // original GOARCH or uname value
	Platform string // distro ID (Linux only, e.g. "ubuntu", "alpine")
	Family   string // canonical family (Linux only)
	Version  string // distro version (Linux only)
}

// Distro contains Linux distribution information.
type Distro struct {
	ID      string
	Family  string
	Version string
}

// GetDistro returns distro information, or nil off Linux or when detection failed.
func (i *Info) GetDistro() *Distro {
	if i.OS != "linux" || i.Platform == "" {
		return nil
	}
	return &Distro{
		ID:      i.Platform,
		Family:  i.Family,
		Version: i.Version,
	}
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

// IsAlpine returns true on Alpine Linux (musl libc).
func (i *Info) IsAlpine() bool {
	return i.OS == "linux" && i.Family == FamilyAlpine
}

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool {
	return i.Arch == "amd64"
}

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool {
	return i.Arch == "arm64"
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
