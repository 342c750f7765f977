// Package toolchain locates the external Java tools, probes their versions
// and interprets the output callers depend on.
package toolchain

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/utils/security"
	"github.com/open-edge-platform/release-packager/internal/utils/shell"
	"github.com/open-edge-platform/release-packager/internal/utils/slice"
)

var (
	// ErrVersionIncompatible reports a toolchain whose major version does
	// not match the target runtime or is below the supported minimum.
	ErrVersionIncompatible = errors.New("toolchain version incompatible")
	// ErrModuleResolution reports unusable dependency analyzer output.
	ErrModuleResolution = errors.New("module resolution failed")
)

const (
	KeyJavaVersion    = "JAVA_VERSION"
	KeyGraalVMVersion = "GRAALVM_VERSION"
	releaseFile       = "release"
)

const (
	ToolJlink       = "jlink"
	ToolJdeps       = "jdeps"
	ToolJpackage    = "jpackage"
	ToolNativeImage = "native-image"
	ToolGu          = "gu"
)

// ReadRelease parses the KEY="value" properties of <home>/release.
func ReadRelease(home string) (map[string]string, error) {
	path := filepath.Join(home, releaseFile)
	data, err := security.SafeReadFile(path, security.ResolveSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseRelease(string(data)), nil
}

// ParseRelease parses release file content. Surrounding quotes are
// stripped from values; comments and malformed lines are ignored.
func ParseRelease(content string) map[string]string {
	props := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		props[strings.TrimSpace(key)] = value
	}
	return props
}

// MajorVersion extracts the feature release number of a Java version
// string: "17.0.2" is 17, "1.8.0_292" is 8.
func MajorVersion(version string) (int, error) {
	v := strings.TrimSpace(version)
	if v == "" {
		return 0, fmt.Errorf("empty version")
	}
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == '.' || r == '_' || r == '-' || r == '+' })
	if len(parts) == 0 {
		return 0, fmt.Errorf("invalid version %q", version)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", version, err)
	}
	if major == 1 && len(parts) > 1 {
		if major, err = strconv.Atoi(parts[1]); err != nil {
			return 0, fmt.Errorf("invalid version %q: %w", version, err)
		}
	}
	return major, nil
}

// JDK is an installed Java toolchain.
type JDK struct {
	Home     string
	Platform platform.Tag
	Release  map[string]string
}

// Open reads the release file of home. An empty platform means the host.
func Open(home string, tag platform.Tag) (*JDK, error) {
	if home == "" {
		return nil, fmt.Errorf("toolchain home is not configured")
	}
	props, err := ReadRelease(home)
	if err != nil {
		return nil, err
	}
	if tag.IsEmpty() {
		tag = platform.Detect()
	}
	return &JDK{Home: home, Platform: tag, Release: props}, nil
}

// Version returns the value of key, failing when it is absent.
func (j *JDK) Version(key string) (string, error) {
	v, ok := j.Release[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s has no %s", ErrVersionIncompatible, filepath.Join(j.Home, releaseFile), key)
	}
	return v, nil
}

func (j *JDK) MajorVersion() (int, error) {
	v, err := j.Version(KeyJavaVersion)
	if err != nil {
		return 0, err
	}
	major, err := MajorVersion(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrVersionIncompatible, err)
	}
	return major, nil
}

// Tool returns the path of a tool under <home>/bin. Tools are never looked
// up on PATH.
func (j *JDK) Tool(name string) string {
	return ToolPath(j.Home, name, j.Platform)
}

// ToolPath returns <home>/bin/<name> with the executable suffix of tag.
func ToolPath(home, name string, tag platform.Tag) string {
	if tag.IsEmpty() {
		tag = platform.Detect()
	}
	ext := tag.ExecutableExt()
	if tag.IsWindows() && name == ToolGu {
		ext = ".cmd"
	}
	return filepath.Join(home, "bin", name+ext)
}

// RequireTool fails when the tool is not an executable file.
func (j *JDK) RequireTool(name string) (string, error) {
	p := j.Tool(name)
	if !shell.IsExecutable(p) {
		return "", fmt.Errorf("%s not found at %s", name, p)
	}
	return p, nil
}

// CheckSameMajor fails unless host and every target share a major version.
func CheckSameMajor(host *JDK, targets ...*JDK) error {
	hostMajor, err := host.MajorVersion()
	if err != nil {
		return err
	}
	for _, t := range targets {
		targetMajor, err := t.MajorVersion()
		if err != nil {
			return err
		}
		if targetMajor != hostMajor {
			return fmt.Errorf("%w: %s is Java %d but target %s is Java %d",
				ErrVersionIncompatible, host.Home, hostMajor, t.Home, targetMajor)
		}
	}
	return nil
}

// CheckMinimum fails when the toolchain is older than minimum.
func CheckMinimum(j *JDK, minimum int) error {
	major, err := j.MajorVersion()
	if err != nil {
		return err
	}
	if major < minimum {
		return fmt.Errorf("%w: %s is Java %d, at least %d is required", ErrVersionIncompatible, j.Home, major, minimum)
	}
	return nil
}

// ParseModuleList interprets dependency analyzer output: exactly one
// non-blank line of comma-separated module names.
func ParseModuleList(output string) ([]string, error) {
	lines := slice.NonBlankLines(output)
	if len(lines) != 1 {
		return nil, fmt.Errorf("%w: expected one line of modules, got %d", ErrModuleResolution, len(lines))
	}
	modules := slice.SplitCSV(lines[0])
	if len(modules) == 0 {
		return nil, fmt.Errorf("%w: no modules reported", ErrModuleResolution)
	}
	return modules, nil
}

// ResolveModules runs jdeps over jars unless modules were declared, then
// joins the result with the additional modules.
func ResolveModules(j *JDK, workDir string, declared, additional []string, jars []string, multiRelease string) ([]string, error) {
	modules := declared
	if len(modules) == 0 {
		args := []string{"--multi-release", multiRelease, "--print-module-deps", "--ignore-missing-deps"}
		args = append(args, jars...)
		res, err := shell.Run(workDir, j.Tool(ToolJdeps), args...)
		if err != nil {
			return nil, err
		}
		if modules, err = ParseModuleList(res.Stdout); err != nil {
			return nil, err
		}
	}
	all := slice.SortedUnion(modules, additional)
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: module set is empty", ErrModuleResolution)
	}
	return all, nil
}

// Exists reports whether home looks like a toolchain installation.
func Exists(home string) bool {
	info, err := os.Stat(filepath.Join(home, releaseFile))
	return err == nil && !info.IsDir()
}
