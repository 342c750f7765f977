package packager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/source"
	"github.com/open-edge-platform/release-packager/internal/stage"
	"github.com/open-edge-platform/release-packager/internal/toolchain"
	"github.com/open-edge-platform/release-packager/internal/utils/file"
)

// Property keys shared by the Java kinds.
const (
	PropMainJar        = "mainJar"
	PropMainClass      = "mainClass"
	PropMainModule     = "mainModule"
	PropJvmOptions     = "jvmOptions"
	PropExecutableName = "executableName"
	PropExecutableUnix = "executableUnixExtension"
	PropExecutableWin  = "executableWindowsExtension"
)

// JavaInputs are the resolved jars of a Java profile.
type JavaInputs struct {
	Main *source.ResolvedArtifact
	// Universal jars carry no platform; Platform jars match the target.
	Universal []*source.ResolvedArtifact
	Platform  []*source.ResolvedArtifact
}

// All returns the main jar followed by every dependency jar.
func (in *JavaInputs) All() []*source.ResolvedArtifact {
	var all []*source.ResolvedArtifact
	if in.Main != nil {
		all = append(all, in.Main)
	}
	all = append(all, in.Universal...)
	return append(all, in.Platform...)
}

// ResolveJava resolves the main jar, which must exist when declared, and
// the dependency jar globs of the variant.
func (c *Context) ResolveJava(mainJar source.Artifact, jars []source.Glob) (*JavaInputs, error) {
	in := &JavaInputs{}
	if mainJar.Path != "" {
		main, err := c.Resolver.Artifact(mainJar, c.Props)
		if err != nil {
			return nil, err
		}
		if !main.Exists {
			return nil, fmt.Errorf("%w: main jar %s", source.ErrPathNotFound, main.Path)
		}
		in.Main = main
	}
	resolved, err := c.Resolver.Artifacts(nil, jars, c.Props)
	if err != nil {
		return nil, err
	}
	for _, a := range resolved {
		if !a.Active || (in.Main != nil && a.Path == in.Main.Path) {
			continue
		}
		switch {
		case a.Platform.IsEmpty():
			in.Universal = append(in.Universal, a)
		case !c.FilterByPlatform() || a.Selected(c.Target):
			in.Platform = append(in.Platform, a)
		}
	}
	return in, nil
}

// CopyJars stages the given jars into dir.
func CopyJars(dir string, jars []*source.ResolvedArtifact) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	var names []string
	for _, a := range jars {
		name := filepath.Base(a.DestinationName())
		if err := file.CopyFile(a.Path, filepath.Join(dir, name)); err != nil {
			return names, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// ExecutableName renders the declared launcher name, defaulting to the
// lower-cased project name.
func (c *Context) ExecutableName(exe config.Executable) (string, error) {
	if exe.Name == "" {
		return strings.ToLower(c.Project().Name), nil
	}
	name, err := c.Render(exe.Name)
	if err != nil {
		return "", fmt.Errorf("rendering executable name: %w", err)
	}
	return name, nil
}

const defaultWindowsExtension = "bat"

// SetExecutableProps publishes the launcher name and extensions.
func (c *Context) SetExecutableProps(exe config.Executable) error {
	name, err := c.ExecutableName(exe)
	if err != nil {
		return err
	}
	windowsExt := exe.WindowsExtension
	if windowsExt == "" {
		windowsExt = defaultWindowsExtension
	}
	c.SetProp(PropExecutableName, name)
	c.SetProp(PropExecutableUnix, exe.UnixExtension)
	c.SetProp(PropExecutableWin, windowsExt)
	return nil
}

// MainJarName is the file name the main jar is staged under.
func (c *Context) MainJarName(mainJar source.Artifact) (string, error) {
	decl := mainJar.Transform
	if decl == "" {
		decl = mainJar.Path
	}
	name, err := c.Render(decl)
	if err != nil {
		return "", err
	}
	return filepath.Base(name), nil
}

// SetJavaProps publishes the Java settings to templates.
func (c *Context) SetJavaProps(mainJar string, mainClass, mainModule string, jvmOptions []string) {
	c.SetProp(PropMainJar, mainJar)
	c.SetProp(PropMainClass, mainClass)
	c.SetProp(PropMainModule, mainModule)
	c.SetProp(PropJvmOptions, jvmOptions)
}

// OpenJDK opens the declared toolchain, falling back to home from the
// tool configuration. An undeclared platform means the host.
func (c *Context) OpenJDK(declared source.Artifact, home string) (*toolchain.JDK, error) {
	if declared.Path != "" {
		p, err := c.RenderPath(declared.Path)
		if err != nil {
			return nil, err
		}
		home = p
	}
	tag, err := platform.Parse(string(declared.Platform))
	if err != nil {
		return nil, err
	}
	return toolchain.Open(home, tag)
}

// Generic launcher template names, with the template suffix stripped.
const (
	LauncherUnix    = "bin/launcher"
	LauncherWindows = "bin/launcher.bat"
)

// LauncherRemap renames the generic launchers after the executable
// properties. For a target of a single OS only its launcher is kept.
func (c *Context) LauncherRemap(target platform.Tag) stage.RemapFunc {
	name, _ := c.Props[PropExecutableName].(string)
	unixExt, _ := c.Props[PropExecutableUnix].(string)
	windowsExt, _ := c.Props[PropExecutableWin].(string)
	return func(template string) string {
		switch template {
		case LauncherUnix:
			if target.IsWindows() {
				return ""
			}
			return "bin/" + WithExtension(name, unixExt)
		case LauncherWindows:
			if !target.IsEmpty() && !target.IsWindows() {
				return ""
			}
			return "bin/" + WithExtension(name, windowsExt)
		}
		return template
	}
}

// WithExtension appends ext, with or without its leading dot, to name.
func WithExtension(name, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return name
	}
	return name + "." + ext
}
