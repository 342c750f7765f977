// Package platform handles the <os>-<arch> tags used to scope inputs and
// outputs to a target platform.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

const (
	OSLinux   = "linux"
	OSMac     = "osx"
	OSWindows = "windows"

	ArchX86_64  = "x86_64"
	ArchAarch64 = "aarch_64"
)

// Tag is a platform tag such as "linux-x86_64". The empty tag is
// platform-agnostic and a tag holding only an OS matches every arch of it.
type Tag string

var knownOS = map[string]bool{OSLinux: true, OSMac: true, OSWindows: true}

var osAliases = map[string]string{
	"darwin": OSMac,
	"macos":  OSMac,
	"mac":    OSMac,
	"win":    OSWindows,
}

var archAliases = map[string]string{
	"amd64":   ArchX86_64,
	"x64":     ArchX86_64,
	"arm64":   ArchAarch64,
	"aarch64": ArchAarch64,
}

// Parse normalizes a declared tag, accepting common OS and arch aliases.
func Parse(s string) (Tag, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	osName, arch, _ := strings.Cut(s, "-")
	if alias, ok := osAliases[osName]; ok {
		osName = alias
	}
	if !knownOS[osName] {
		return "", fmt.Errorf("unknown platform os %q in %q", osName, s)
	}
	if arch == "" {
		return Tag(osName), nil
	}
	if alias, ok := archAliases[arch]; ok {
		arch = alias
	}
	return Tag(osName + "-" + arch), nil
}

// Detect returns the tag of the host running the process.
func Detect() Tag {
	return FromGo(runtime.GOOS, runtime.GOARCH)
}

// FromGo converts a GOOS/GOARCH pair.
func FromGo(goos, goarch string) Tag {
	t, err := Parse(goos + "-" + goarch)
	if err != nil {
		return Tag(goos + "-" + goarch)
	}
	return t
}

func (t Tag) String() string { return string(t) }

func (t Tag) IsEmpty() bool { return t == "" }

func (t Tag) OS() string {
	osName, _, _ := strings.Cut(string(t), "-")
	return osName
}

func (t Tag) Arch() string {
	_, arch, _ := strings.Cut(string(t), "-")
	return arch
}

func (t Tag) IsLinux() bool   { return t.OS() == OSLinux }
func (t Tag) IsMac() bool     { return t.OS() == OSMac }
func (t Tag) IsWindows() bool { return t.OS() == OSWindows }

// IsCompatible reports whether an input declared for t may be used when
// building for target.
func (t Tag) IsCompatible(target Tag) bool {
	if t.IsEmpty() || target.IsEmpty() {
		return true
	}
	if t.OS() != target.OS() {
		return false
	}
	return t.Arch() == "" || target.Arch() == "" || t.Arch() == target.Arch()
}

// ExecutableExt is ".exe" on Windows and empty elsewhere.
func (t Tag) ExecutableExt() string {
	if t.IsWindows() {
		return ".exe"
	}
	return ""
}

// DebArch maps a tag to a Debian architecture. The boolean is false for
// combinations a .deb cannot be built for.
func (t Tag) DebArch() (string, bool) {
	if t.IsEmpty() {
		return "all", true
	}
	if !t.IsLinux() {
		return "", false
	}
	switch t.Arch() {
	case ArchX86_64:
		return "amd64", true
	case ArchAarch64:
		return "arm64", true
	default:
		return "", false
	}
}
