package platform

import (
	"fmt"
	"strings"
)

var familyMap = map[string]string{
	"debian":   FamilyDebian,
	"ubuntu":   FamilyDebian,
	"rhel":     FamilyRHEL,
	"centos":   FamilyRHEL,
	"rocky":    FamilyRHEL,
	"fedora":   FamilyFedora,
	"suse":     FamilySUSE,
	"opensuse": FamilySUSE,
	"arch":     FamilyArch,
	"manjaro":  FamilyArch,
	"alpine":   FamilyAlpine,
	"gentoo":   FamilyGentoo,
}

// normalizeArch converts GOARCH and uname values to GOARCH spelling.
func normalizeArch(arch string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "amd64", "x86_64", "x64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	case "arm", "armv7", "armv7l":
		return "arm", nil
	case "386", "i386", "i686", "x86":
		return "386", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %q", arch)
	}
}

func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

func mapFamily(family string) string {
	if canonical, ok := familyMap[normalizePlatform(family)]; ok {
		return canonical
	}
	return FamilyUnknown
}
