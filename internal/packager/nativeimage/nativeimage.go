// Package nativeimage compiles the application ahead of time with GraalVM
// and archives the executable.
package nativeimage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/packager"
	"github.com/open-edge-platform/release-packager/internal/stage"
	"github.com/open-edge-platform/release-packager/internal/toolchain"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
	"github.com/open-edge-platform/release-packager/internal/utils/shell"
	"github.com/open-edge-platform/release-packager/internal/utils/slice"
)

// Working directory layout.
const (
	JarsDirectory     = "jars"
	NativeDirectory   = "native"
	AssemblyDirectory = "assembly"
	BinDirectory      = "bin"
)

// Property keys.
const (
	PropGraalVMVersion = "graalVMVersion"
	PropGraalVMJava    = "graalVMJavaVersion"
)

// Component every compilation needs.
const nativeImageComponent = "native-image"

// nativeImage implements packager.Builder
type nativeImage struct{}

func Register() {
	packager.Register(&nativeImage{})
}

func (n *nativeImage) Kind() config.Kind {
	return config.KindNativeImage
}

func (n *nativeImage) FillProperties(c *packager.Context) error {
	cfg := c.Profile.NativeImage
	if err := c.SetExecutableProps(config.Executable{Name: cfg.Executable}); err != nil {
		return err
	}
	mainJar, err := c.MainJarName(cfg.MainJar)
	if err != nil {
		return err
	}
	c.SetJavaProps(mainJar, cfg.Java.MainClass, cfg.Java.MainModule, cfg.Java.JvmOptions)
	return nil
}

func (n *nativeImage) ResolveOutputName(c *packager.Context) (string, error) {
	fallback := c.Profile.NativeImage.ImageName
	if fallback == "" {
		fallback = packager.DefaultOutputName
	}
	return c.OutputName(fallback)
}

// Stage copies the jars to jars/ and templates, artifacts and file sets to
// assembly/, the root of the final archive.
func (n *nativeImage) Stage(c *packager.Context) error {
	cfg := c.Profile.NativeImage
	inputs, err := c.ResolveJava(cfg.MainJar, cfg.Jars)
	if err != nil {
		return err
	}
	if _, err := packager.CopyJars(filepath.Join(c.WorkDir, JarsDirectory), inputs.All()); err != nil {
		return err
	}
	assembly := filepath.Join(c.WorkDir, AssemblyDirectory)
	if _, err := c.CopyTemplates(assembly); err != nil {
		return err
	}
	_, err = c.CopyInputs(assembly)
	return err
}

// Build checks the GraalVM installation, compiles the executable,
// optionally compresses it and archives the assembly.
func (n *nativeImage) Build(c *packager.Context) ([]packager.Output, error) {
	log := logger.Logger()
	cfg := c.Profile.NativeImage
	graal, err := c.OpenJDK(cfg.GraalVM, c.Toolchains.GraalVMHome)
	if err != nil {
		return nil, fmt.Errorf("graalvm: %w", err)
	}
	tag := c.Target
	if tag.IsEmpty() {
		tag = graal.Platform
	}
	if !graal.Platform.IsCompatible(tag) {
		return nil, fmt.Errorf("%w: graalvm %s builds for %s, not %s",
			toolchain.ErrVersionIncompatible, graal.Home, graal.Platform, tag)
	}
	if err := checkVersions(c, graal); err != nil {
		return nil, err
	}
	tool, err := ensureComponents(c.WorkDir, graal, cfg.Components)
	if err != nil {
		return nil, err
	}

	exe, _ := c.Props[packager.PropExecutableName].(string)
	base := filepath.Join(c.WorkDir, NativeDirectory, exe)
	exe += tag.ExecutableExt()
	binary := base + tag.ExecutableExt()
	if err := os.MkdirAll(filepath.Dir(binary), 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	args, err := compileArgs(c, base)
	if err != nil {
		return nil, err
	}
	log.Infof("Compiling %s for %s", exe, tag)
	if _, err := shell.Run(c.WorkDir, tool, args...); err != nil {
		return nil, err
	}
	if _, err := os.Stat(binary); err != nil {
		return nil, fmt.Errorf("native-image produced no executable: %w", err)
	}

	if cfg.Upx.Enabled {
		if err := compress(c, binary); err != nil {
			return nil, err
		}
	}

	assembly := filepath.Join(c.WorkDir, AssemblyDirectory)
	if err := copyExecutable(binary, filepath.Join(assembly, BinDirectory, exe)); err != nil {
		return nil, err
	}
	if err := c.WriteSwid(assembly); err != nil {
		return nil, fmt.Errorf("writing swid tag: %w", err)
	}
	name, _ := c.Props[packager.PropOutputName].(string)
	outs, err := c.Pack(assembly, name)
	for i := range outs {
		outs[i].Platform = tag
	}
	return outs, err
}

// checkVersions requires both the Java and the GraalVM version in the
// release file and, when the project pins a Java version, a matching
// major.
func checkVersions(c *packager.Context, graal *toolchain.JDK) error {
	log := logger.Logger()
	javaVersion, err := graal.Version(toolchain.KeyJavaVersion)
	if err != nil {
		return err
	}
	graalVersion, err := graal.Version(toolchain.KeyGraalVMVersion)
	if err != nil {
		return err
	}
	c.SetProp(PropGraalVMJava, javaVersion)
	c.SetProp(PropGraalVMVersion, graalVersion)

	if want := c.Project().JavaVersion; want != "" {
		wantMajor, err := toolchain.MajorVersion(want)
		if err != nil {
			return fmt.Errorf("%w: project java version: %s", toolchain.ErrVersionIncompatible, err)
		}
		major, err := graal.MajorVersion()
		if err != nil {
			return err
		}
		if major != wantMajor {
			return fmt.Errorf("%w: graalvm %s runs Java %d, project requires %d",
				toolchain.ErrVersionIncompatible, graalVersion, major, wantMajor)
		}
	}
	log.Debugf("GraalVM %s (Java %s) at %s", graalVersion, javaVersion, graal.Home)
	return nil
}

// ensureComponents installs missing components with gu and returns the
// native-image path. Installations without gu must already ship every
// required component.
func ensureComponents(workDir string, graal *toolchain.JDK, extra []string) (string, error) {
	log := logger.Logger()
	required := slice.SortedUnion([]string{nativeImageComponent}, extra)
	gu := graal.Tool(toolchain.ToolGu)
	if !shell.IsExecutable(gu) {
		if len(extra) > 0 {
			return "", fmt.Errorf("components %s requested but %s is missing", strings.Join(extra, ","), gu)
		}
		return graal.RequireTool(toolchain.ToolNativeImage)
	}

	res, err := shell.Run(workDir, gu, "list")
	if err != nil {
		return "", err
	}
	installed := ParseComponents(res.Stdout)
	for _, comp := range required {
		if slice.Contains(installed, comp) {
			continue
		}
		log.Infof("Installing GraalVM component %s", comp)
		if _, err := shell.Run(workDir, gu, "install", comp); err != nil {
			return "", err
		}
	}
	return graal.RequireTool(toolchain.ToolNativeImage)
}

// ParseComponents returns the component ids of `gu list` output: the
// first column of the rows below the dashed separator.
func ParseComponents(output string) []string {
	var ids []string
	started := !strings.Contains(output, "---")
	for _, line := range slice.NonBlankLines(output) {
		fields := strings.Fields(line)
		switch {
		case len(fields) == 0:
		case strings.HasPrefix(fields[0], "---"):
			started = true
		case started && fields[0] != "ComponentId":
			ids = append(ids, fields[0])
		}
	}
	return ids
}

// StripOutputArgs removes the flags that name the produced executable;
// the builder sets its own.
func StripOutputArgs(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case strings.HasPrefix(a, "-H:Name="):
		case a == "-o":
			i++
		default:
			out = append(out, a)
		}
	}
	return out
}

// compileArgs builds the native-image command line writing to output,
// which native-image completes with the platform's executable suffix.
func compileArgs(c *packager.Context, output string) ([]string, error) {
	cfg := c.Profile.NativeImage
	jarsDir := filepath.Join(c.WorkDir, JarsDirectory)
	mainJar, _ := c.Props[packager.PropMainJar].(string)

	var jars []string
	entries, err := os.ReadDir(jarsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jar") {
			continue
		}
		if cfg.Java.MainModule == "" && e.Name() == mainJar {
			continue
		}
		jars = append(jars, filepath.Join(jarsDir, e.Name()))
	}

	var args []string
	if cfg.Java.MainModule != "" {
		entry := cfg.Java.MainModule
		if cfg.Java.MainClass != "" {
			entry += "/" + cfg.Java.MainClass
		}
		args = append(args, "--module-path", strings.Join(jars, string(os.PathListSeparator)), "--module", entry)
	} else {
		args = append(args, "-jar", filepath.Join(jarsDir, mainJar))
		if len(jars) > 0 {
			args = append(args, "-cp", strings.Join(jars, string(os.PathListSeparator)))
		}
		if cfg.Java.MainClass != "" {
			args = append(args, "-H:Class="+cfg.Java.MainClass)
		}
	}
	for _, opt := range cfg.Java.JvmOptions {
		args = append(args, "-J"+opt)
	}
	for _, a := range StripOutputArgs(cfg.Args) {
		rendered, err := c.Render(a)
		if err != nil {
			return nil, err
		}
		args = append(args, rendered)
	}
	return append(args, "-o", output), nil
}

func compress(c *packager.Context, binary string) error {
	log := logger.Logger()
	upx := c.Toolchains.Upx
	if upx == "" {
		return fmt.Errorf("upx is enabled for %s but toolchains.upx is not configured", c.Name())
	}
	if !shell.IsExecutable(upx) {
		return fmt.Errorf("upx not found at %s", upx)
	}
	args := append(append([]string(nil), c.Profile.NativeImage.Upx.Args...), binary)
	log.Infof("Compressing %s", filepath.Base(binary))
	_, err := shell.Run(c.WorkDir, upx, args...)
	return err
}

func copyExecutable(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	if err := os.WriteFile(dst, data, 0755); err != nil {
		return fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	return os.Chmod(dst, 0755)
}
