// Package target describes the runtime a standalone executable is built for.
//
// A Descriptor's canonical string ("<platform>-<arch>-<version>") is used both
// as the name of the prebuilt release asset and as the file name of the cached
// runtime, so it must never change shape.
package target

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/ZebulonRouseFrantzich/nodepack/internal/platform"
)

// Platform is a runtime operating system name as used in release asset names.
type Platform string

// Supported platforms.
const (
	Windows Platform = "windows"
	Mac     Platform = "mac"
	Alpine  Platform = "alpine"
	Linux   Platform = "linux"
)

// Arch is a runtime CPU architecture name as used in release asset names.
type Arch string

// Supported architectures.
const (
	X86   Arch = "x86"
	X64   Arch = "x64"
	ARM   Arch = "arm"
	ARM64 Arch = "arm64"
)

// DefaultVersion is the runtime version used when none is configured.
const DefaultVersion = "14.15.3"

var platformAliases = map[string]Platform{
	"windows": Windows,
	"win":     Windows,
	"win32":   Windows,
	"mac":     Mac,
	"macos":   Mac,
	"darwin":  Mac,
	"osx":     Mac,
	"alpine":  Alpine,
	"linux":   Linux,
}

var archAliases = map[string]Arch{
	"x86":     X86,
	"ia32":    X86,
	"386":     X86,
	"i386":    X86,
	"x64":     X64,
	"amd64":   X64,
	"x86_64":  X64,
	"arm":     ARM,
	"armv7":   ARM,
	"armv7l":  ARM,
	"arm64":   ARM64,
	"aarch64": ARM64,
}

// Descriptor identifies a runtime build. The zero value is not valid; build
// one with New, Parse or Host.
type Descriptor struct {
	Platform Platform
	Arch     Arch
	Version  string
}

// New validates its arguments and returns a Descriptor. The version is
// normalised to MAJOR.MINOR.PATCH without a leading "v".
func New(p Platform, a Arch, version string) (Descriptor, error) {
	if q, ok := platformAliases[string(p)]; !ok || q != p {
		return Descriptor{}, fmt.Errorf("unsupported platform: %q", p)
	}
	if q, ok := archAliases[string(a)]; !ok || q != a {
		return Descriptor{}, fmt.Errorf("unsupported architecture: %q", a)
	}
	v, err := normalizeVersion(version)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Platform: p, Arch: a, Version: v}, nil
}

// String returns the canonical "<platform>-<arch>-<version>" form.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s-%s-%s", d.Platform, d.Arch, d.Version)
}

// Host returns the descriptor of the machine described by info, at version.
func Host(info *platform.Info, version string) (Descriptor, error) {
	if info == nil {
		return Descriptor{}, fmt.Errorf("platform info is required")
	}

	var p Platform
	switch {
	case info.IsWindows():
		p = Windows
	case info.IsMacOS():
		p = Mac
	case info.IsAlpine():
		p = Alpine
	case info.IsLinux():
		p = Linux
	default:
		return Descriptor{}, fmt.Errorf("unsupported operating system: %s", info.OS)
	}

	a, ok := archAliases[info.Arch]
	if !ok {
		return Descriptor{}, fmt.Errorf("unsupported architecture: %s", info.Arch)
	}

	return New(p, a, version)
}

// Parse reads a loose target string such as "win32-x64-14.0.0", "linux-x64",
// "v14.0.0" or "darwin". Segments may appear in any order; anything missing
// is taken from defaults. The version segment, once found, consumes the rest
// of the string so prerelease versions keep their dashes.
func Parse(s string, defaults Descriptor) (Descriptor, error) {
	d := defaults
	s = strings.TrimSpace(s)
	if s == "" {
		return New(d.Platform, d.Arch, d.Version)
	}

	segments := strings.Split(strings.ToLower(s), "-")
	for i, seg := range segments {
		if p, ok := platformAliases[seg]; ok {
			d.Platform = p
			continue
		}
		if a, ok := archAliases[seg]; ok {
			d.Arch = a
			continue
		}
		if looksLikeVersion(seg) {
			d.Version = strings.Join(segments[i:], "-")
			break
		}
		return Descriptor{}, fmt.Errorf("invalid target %q: unrecognised segment %q", s, seg)
	}

	return New(d.Platform, d.Arch, d.Version)
}

func looksLikeVersion(seg string) bool {
	seg = strings.TrimPrefix(seg, "v")
	return seg != "" && seg[0] >= '0' && seg[0] <= '9'
}

func normalizeVersion(version string) (string, error) {
	if strings.TrimSpace(version) == "" {
		return "", fmt.Errorf("runtime version is required")
	}
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return "", fmt.Errorf("invalid runtime version %q: %w", version, err)
	}
	return v.String(), nil
}
