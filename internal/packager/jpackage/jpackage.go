// Package jpackage builds native installers around a runtime image.
package jpackage

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/open-edge-platform/release-packager/internal/archive"
	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/packager"
	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/source"
	"github.com/open-edge-platform/release-packager/internal/stage"
	"github.com/open-edge-platform/release-packager/internal/toolchain"
	"github.com/open-edge-platform/release-packager/internal/utils/file"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
	"github.com/open-edge-platform/release-packager/internal/utils/shell"
)

// MinimumJavaVersion is the first JDK shipping jpackage.
const MinimumJavaVersion = 16

// Working directory layout.
const (
	InputsDirectory  = "inputs"
	FilesDirectory   = "files"
	RuntimeDirectory = "runtime-image"
	DestDirectory    = "installers"
)

// Property keys.
const (
	PropAppName    = "appName"
	PropAppVersion = "appVersion"
	PropTypes      = "installerTypes"
)

//go:embed icons
var icons embed.FS

// hostPlatform is the platform jpackage runs on; installers can only be
// built for it.
var hostPlatform = platform.Detect

var defaultTypes = map[string][]string{
	platform.OSLinux:   {"deb"},
	platform.OSMac:     {"dmg"},
	platform.OSWindows: {"msi"},
}

var iconExtensions = map[string]string{
	platform.OSLinux:   ".png",
	platform.OSMac:     ".icns",
	platform.OSWindows: ".ico",
}

// jpackage implements packager.Builder
type jpackage struct{}

func Register() {
	packager.Register(&jpackage{})
}

func (j *jpackage) Kind() config.Kind {
	return config.KindJpackage
}

// target is the platform installers are built for: the variant's, or the
// host when the profile is platform-agnostic.
func target(c *packager.Context) platform.Tag {
	if c.Target.IsEmpty() {
		return hostPlatform()
	}
	return c.Target
}

// osOptions merges the option bag of the target OS.
type osOptions struct {
	config.JpackagePlatform
	linux   *config.JpackageLinux
	osx     *config.JpackageOsx
	windows *config.JpackageWindows
}

func resolveOS(cfg *config.Jpackage, tag platform.Tag) osOptions {
	var o osOptions
	switch {
	case tag.IsLinux():
		o.linux = cfg.Linux
		if o.linux == nil {
			o.linux = &config.JpackageLinux{}
		}
		o.JpackagePlatform = o.linux.JpackagePlatform
	case tag.IsMac():
		o.osx = cfg.Osx
		if o.osx == nil {
			o.osx = &config.JpackageOsx{}
		}
		o.JpackagePlatform = o.osx.JpackagePlatform
	case tag.IsWindows():
		o.windows = cfg.Windows
		if o.windows == nil {
			o.windows = &config.JpackageWindows{}
		}
		o.JpackagePlatform = o.windows.JpackagePlatform
	}
	if len(o.Types) == 0 {
		o.Types = defaultTypes[tag.OS()]
	}
	return o
}

var versionCore = regexp.MustCompile(`^\d+(\.\d+){0,2}`)

// appVersion keeps the numeric core of a version; installers reject
// qualifiers such as -SNAPSHOT.
func appVersion(v string) (string, error) {
	core := versionCore.FindString(strings.TrimPrefix(v, "v"))
	if core == "" {
		return "", fmt.Errorf("version %q has no numeric part usable by an installer", v)
	}
	return core, nil
}

func (j *jpackage) FillProperties(c *packager.Context) error {
	cfg := c.Profile.Jpackage
	pkg := cfg.ApplicationPackage

	name := c.Project().Name
	if pkg.AppName != "" {
		rendered, err := c.Render(pkg.AppName)
		if err != nil {
			return err
		}
		name = rendered
	}
	version := pkg.AppVersion
	if version == "" {
		version = c.Project().Version
	}
	version, err := appVersion(version)
	if err != nil {
		return err
	}
	mainJar, err := c.MainJarName(cfg.MainJar)
	if err != nil {
		return err
	}

	c.SetProp(PropAppName, name)
	c.SetProp(PropAppVersion, version)
	c.SetProp(PropTypes, resolveOS(cfg, target(c)).Types)
	c.SetJavaProps(mainJar, cfg.Java.MainClass, cfg.Java.MainModule, cfg.Java.JvmOptions)
	return nil
}

func (j *jpackage) ResolveOutputName(c *packager.Context) (string, error) {
	name, _ := c.Props[PropAppName].(string)
	return name, nil
}

// Stage copies templates, artifacts, file sets and jars to inputs/files
// and the icon to inputs/.
func (j *jpackage) Stage(c *packager.Context) error {
	cfg := c.Profile.Jpackage
	files := filepath.Join(c.WorkDir, InputsDirectory, FilesDirectory)
	if err := os.MkdirAll(files, 0755); err != nil {
		return fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	if _, err := c.CopyTemplates(files); err != nil {
		return err
	}
	if _, err := c.CopyInputs(files); err != nil {
		return err
	}
	inputs, err := c.ResolveJava(cfg.MainJar, cfg.Jars)
	if err != nil {
		return err
	}
	if _, err := packager.CopyJars(files, inputs.All()); err != nil {
		return err
	}
	_, err = stageIcon(c, resolveOS(cfg, target(c)))
	return err
}

// stageIcon copies the declared icon, which must carry the extension the
// target OS requires, or a bundled default to inputs/<appName><ext>.
func stageIcon(c *packager.Context, o osOptions) (string, error) {
	tag := target(c)
	ext := iconExtensions[tag.OS()]
	name, _ := c.Props[PropAppName].(string)
	dst := filepath.Join(c.WorkDir, InputsDirectory, name+ext)

	if o.Icon != "" {
		src, err := c.RenderPath(o.Icon)
		if err != nil {
			return "", err
		}
		if !strings.EqualFold(filepath.Ext(src), ext) {
			return "", fmt.Errorf("icon %s for %s must be a %s file", src, tag.OS(), ext)
		}
		if !file.Exists(src) {
			return "", fmt.Errorf("%w: icon %s", source.ErrPathNotFound, src)
		}
		if err := file.CopyFile(src, dst); err != nil {
			return "", fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
		return dst, nil
	}

	data, err := icons.ReadFile("icons/app" + ext)
	if err != nil {
		return "", fmt.Errorf("no bundled icon for %s: %w", tag.OS(), err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	return dst, nil
}

// Build checks the jpackage version, prepares the runtime image and runs
// jpackage once per installer type.
func (j *jpackage) Build(c *packager.Context) ([]packager.Output, error) {
	log := logger.Logger()
	cfg := c.Profile.Jpackage
	tag := target(c)
	host := hostPlatform()
	if tag.OS() != host.OS() {
		log.Warnf("Skipping %s: installers for %s cannot be built on %s", c.Name(), tag, host)
		return nil, nil
	}

	jdk, err := c.OpenJDK(cfg.JDK, c.Toolchains.JavaHome)
	if err != nil {
		return nil, fmt.Errorf("jpackage jdk: %w", err)
	}
	if err := toolchain.CheckMinimum(jdk, MinimumJavaVersion); err != nil {
		return nil, err
	}
	tool, err := jdk.RequireTool(toolchain.ToolJpackage)
	if err != nil {
		return nil, err
	}

	runtime, err := j.runtimeImage(c, tag)
	if err != nil {
		return nil, err
	}

	o := resolveOS(cfg, tag)
	name, _ := c.Props[PropAppName].(string)
	icon := filepath.Join(c.WorkDir, InputsDirectory, name+iconExtensions[tag.OS()])

	var outputs []packager.Output
	for _, typ := range o.Types {
		dest := filepath.Join(c.WorkDir, DestDirectory, typ)
		if err := file.RecreateDir(dest); err != nil {
			return outputs, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
		args, err := j.args(c, o, typ, dest, runtime, icon)
		if err != nil {
			return outputs, err
		}
		log.Infof("Building %s installer of %s", typ, name)
		if _, err := shell.Run(c.WorkDir, tool, args...); err != nil {
			return outputs, err
		}
		outs, err := collect(c, dest, typ, tag)
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, outs...)
	}
	return outputs, nil
}

// runtimeImage returns the directory of the runtime image for tag, taken
// from the referenced profile's outputs or the declared images.
func (j *jpackage) runtimeImage(c *packager.Context, tag platform.Tag) (string, error) {
	cfg := c.Profile.Jpackage
	var src string
	fromRef := false
	if cfg.RuntimeImageRef != "" {
		for _, o := range c.Refs {
			if !o.Platform.IsEmpty() && o.Platform.IsCompatible(tag) {
				src, fromRef = o.Path, true
				break
			}
		}
	} else {
		for _, decl := range cfg.RuntimeImages {
			ra, err := c.Resolver.Artifact(decl, c.Props)
			if err != nil {
				return "", err
			}
			if ra.Active && ra.Selected(tag) {
				src = ra.Path
				break
			}
		}
	}
	if src == "" {
		return "", fmt.Errorf("no runtime image for %s", tag)
	}
	if !file.Exists(src) {
		return "", fmt.Errorf("%w: runtime image %s", source.ErrPathNotFound, src)
	}

	dir := filepath.Join(c.WorkDir, RuntimeDirectory)
	if err := file.RecreateDir(dir); err != nil {
		return "", fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	if info, err := os.Stat(src); err == nil && info.IsDir() {
		if err := file.CopyDir(src, dir); err != nil {
			return "", fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
	} else if err := archive.Unpack(src, dir, true); err != nil {
		return "", err
	}
	if fromRef {
		if err := stripAssembled(c, dir); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// stripAssembled removes what the linking profile added around the
// runtime: its launchers and application jars are re-added by jpackage
// from inputs/files.
func stripAssembled(c *packager.Context, dir string) error {
	ref := c.Packaging.Profile(c.Profile.Jpackage.RuntimeImageRef)
	if ref == nil || ref.Jlink == nil {
		return nil
	}
	exe, err := c.ExecutableName(ref.Jlink.Executable)
	if err != nil {
		return err
	}
	var remove []string
	for _, ext := range []string{ref.Jlink.Executable.UnixExtension, ref.Jlink.Executable.WindowsExtension, "bat"} {
		remove = append(remove, filepath.Join(dir, "bin", packager.WithExtension(exe, ext)))
	}
	jars, _ := filepath.Glob(filepath.Join(dir, "lib", "*.jar"))
	remove = append(remove, jars...)
	for _, p := range remove {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
	}
	return nil
}

func (j *jpackage) args(c *packager.Context, o osOptions, typ, dest, runtime, icon string) ([]string, error) {
	cfg := c.Profile.Jpackage
	pkg := cfg.ApplicationPackage
	project := c.Project()
	name, _ := c.Props[PropAppName].(string)
	version, _ := c.Props[PropAppVersion].(string)

	vendor := firstNonEmpty(pkg.Vendor, project.Vendor)
	copyright := firstNonEmpty(pkg.Copyright, project.Copyright)

	args := []string{
		"--type", typ,
		"--dest", dest,
		"--input", filepath.Join(c.WorkDir, InputsDirectory, FilesDirectory),
		"--name", name,
		"--app-version", version,
		"--runtime-image", runtime,
		"--icon", icon,
	}
	if vendor != "" {
		args = append(args, "--vendor", vendor)
	}
	if copyright != "" {
		args = append(args, "--copyright", copyright)
	}
	if project.Description != "" {
		args = append(args, "--description", project.Description)
	}

	if cfg.Java.MainModule != "" {
		entry := cfg.Java.MainModule
		if cfg.Java.MainClass != "" {
			entry += "/" + cfg.Java.MainClass
		}
		args = append(args, "--module", entry)
	} else {
		mainJar, _ := c.Props[packager.PropMainJar].(string)
		args = append(args, "--main-jar", mainJar)
		if cfg.Java.MainClass != "" {
			args = append(args, "--main-class", cfg.Java.MainClass)
		}
	}

	for _, a := range cfg.Launcher.Arguments {
		args = append(args, "--arguments", a)
	}
	javaOptions := append(append([]string(nil), cfg.Java.JvmOptions...), cfg.Launcher.JavaOptions...)
	for _, opt := range javaOptions {
		args = append(args, "--java-options", opt)
	}
	for _, l := range cfg.Launcher.Launchers {
		path, err := c.RenderPath(l)
		if err != nil {
			return nil, err
		}
		launcher := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		args = append(args, "--add-launcher", launcher+"="+path)
	}
	if pkg.LicenseFile != "" {
		path, err := c.RenderPath(pkg.LicenseFile)
		if err != nil {
			return nil, err
		}
		args = append(args, "--license-file", path)
	}
	for _, fa := range pkg.FileAssociations {
		path, err := c.RenderPath(fa)
		if err != nil {
			return nil, err
		}
		args = append(args, "--file-associations", path)
	}
	if o.InstallDir != "" {
		args = append(args, "--install-dir", o.InstallDir)
	}
	if o.ResourceDir != "" {
		path, err := c.RenderPath(o.ResourceDir)
		if err != nil {
			return nil, err
		}
		args = append(args, "--resource-dir", path)
	}

	switch {
	case o.linux != nil:
		args = append(args, linuxArgs(o.linux, typ)...)
	case o.osx != nil:
		args = append(args, osxArgs(o.osx)...)
	case o.windows != nil:
		args = append(args, windowsArgs(o.windows)...)
	}
	return args, nil
}

func linuxArgs(l *config.JpackageLinux, typ string) []string {
	var args []string
	args = appendIf(args, "--linux-package-name", l.PackageName)
	if typ == "deb" {
		args = appendIf(args, "--linux-deb-maintainer", l.Maintainer)
	}
	if typ == "rpm" {
		args = appendIf(args, "--linux-rpm-license-type", l.License)
	}
	args = appendIf(args, "--linux-menu-group", l.MenuGroup)
	args = appendIf(args, "--linux-app-release", l.AppRelease)
	args = appendIf(args, "--linux-app-category", l.AppCategory)
	if len(l.PackageDeps) > 0 {
		args = append(args, "--linux-package-deps", strings.Join(l.PackageDeps, ", "))
	}
	if l.Shortcut {
		args = append(args, "--linux-shortcut")
	}
	return args
}

func osxArgs(o *config.JpackageOsx) []string {
	var args []string
	args = appendIf(args, "--mac-package-identifier", o.PackageIdentifier)
	args = appendIf(args, "--mac-package-name", o.PackageName)
	args = appendIf(args, "--mac-package-signing-prefix", o.PackageSigningPrefix)
	if o.Sign {
		args = append(args, "--mac-sign")
		args = appendIf(args, "--mac-signing-keychain", o.SigningKeychain)
		args = appendIf(args, "--mac-signing-key-user-name", o.SigningKeyUsername)
	}
	return args
}

func windowsArgs(w *config.JpackageWindows) []string {
	var args []string
	if w.Console {
		args = append(args, "--win-console")
	}
	if w.DirChooser {
		args = append(args, "--win-dir-chooser")
	}
	if w.Menu {
		args = append(args, "--win-menu")
	}
	args = appendIf(args, "--win-menu-group", w.MenuGroup)
	if w.PerUserInstall {
		args = append(args, "--win-per-user-install")
	}
	if w.Shortcut {
		args = append(args, "--win-shortcut")
	}
	args = appendIf(args, "--win-upgrade-uuid", w.UpgradeUUID)
	return args
}

func appendIf(args []string, flag, value string) []string {
	if value == "" {
		return args
	}
	return append(args, flag, value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// collect moves the installers jpackage wrote to dest into the output
// directory. Outside Linux the platform is attached to the file name when
// the profile asks for it.
func collect(c *packager.Context, dest, typ string, tag platform.Tag) ([]packager.Output, error) {
	log := logger.Logger()
	names, err := file.ListFiles(dest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	var outputs []packager.Output
	for _, n := range names {
		if strings.Contains(n, "/") || !strings.HasSuffix(n, "."+typ) {
			continue
		}
		renamed := n
		if c.Profile.AttachPlatform && !tag.IsLinux() {
			renamed = strings.TrimSuffix(n, "."+typ) + "-" + string(tag) + "." + typ
		}
		out := filepath.Join(c.OutputDir, renamed)
		if err := c.ClaimOutput(out); err != nil {
			return outputs, err
		}
		if err := file.CopyFile(filepath.Join(dest, n), out); err != nil {
			return outputs, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
		log.Infof("Created %s", out)
		o := c.Output(out)
		o.Platform = tag
		outputs = append(outputs, o)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("jpackage produced no %s installer in %s", typ, dest)
	}
	return outputs, nil
}
