// Package jlink links a custom runtime image per target JDK and archives
// each image with the application.
package jlink

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
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

// Working directory layout.
const (
	JarsDirectory     = "jars"
	UniversalJars     = "universal"
	ImagesDirectory   = "images"
	prebuiltDirectory = "prebuilt"
	libDirectory      = "lib"
)

// PropModules lists the resolved modules of the image.
const PropModules = "jlinkModules"

var defaultArgs = []string{"--no-header-files", "--no-man-pages", "--compress=2", "--strip-debug"}

//go:embed templates
var templates embed.FS

// jlink implements packager.Builder
type jlink struct{}

func Register() {
	packager.Register(&jlink{})
}

func (j *jlink) Kind() config.Kind {
	return config.KindJlink
}

func (j *jlink) DefaultTemplates() fs.FS {
	sub, err := fs.Sub(templates, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

func (j *jlink) FillProperties(c *packager.Context) error {
	cfg := c.Profile.Jlink
	if err := c.SetExecutableProps(cfg.Executable); err != nil {
		return err
	}
	mainJar, err := c.MainJarName(cfg.MainJar)
	if err != nil {
		return err
	}
	c.SetJavaProps(mainJar, cfg.Java.MainClass, cfg.Java.MainModule, cfg.Java.JvmOptions)
	c.SetProp(PropModules, []string{})
	return nil
}

func (j *jlink) ResolveOutputName(c *packager.Context) (string, error) {
	fallback := c.Profile.Jlink.ImageName
	if fallback == "" {
		fallback = packager.DefaultOutputName
	}
	return c.OutputName(fallback)
}

// target is one target JDK selected for the variant.
type target struct {
	jdk  *toolchain.JDK
	decl source.Artifact
}

func (t target) platform() platform.Tag {
	return t.jdk.Platform
}

// targets opens every active target JDK and returns the ones the variant
// builds for along with all of them.
func targets(c *packager.Context) (selected []target, all []*toolchain.JDK, err error) {
	for _, decl := range c.Profile.Jlink.TargetJDKs {
		if !decl.Active.Enabled(c.Project().Snapshot) {
			continue
		}
		if decl.Platform.IsEmpty() {
			return nil, nil, fmt.Errorf("target jdk %s declares no platform", decl.Path)
		}
		jdk, err := c.OpenJDK(decl, "")
		if err != nil {
			return nil, nil, fmt.Errorf("target jdk: %w", err)
		}
		all = append(all, jdk)
		if c.FilterByPlatform() && !decl.Platform.IsCompatible(c.Target) {
			continue
		}
		selected = append(selected, target{jdk: jdk, decl: decl})
	}
	if len(selected) == 0 {
		return nil, nil, fmt.Errorf("no target jdk matches platform %s", c.Target)
	}
	return selected, all, nil
}

// Stage copies the main jar and universal jars to jars/universal and the
// platform jars of each target to jars/<platform>. The library directory
// of a prebuilt Java archive is folded into the universal jars.
func (j *jlink) Stage(c *packager.Context) error {
	cfg := c.Profile.Jlink
	inputs, err := c.ResolveJava(cfg.MainJar, cfg.Jars)
	if err != nil {
		return err
	}
	universal := filepath.Join(c.WorkDir, JarsDirectory, UniversalJars)
	main := []*source.ResolvedArtifact{}
	if inputs.Main != nil {
		main = append(main, inputs.Main)
	}
	if _, err := packager.CopyJars(universal, append(main, inputs.Universal...)); err != nil {
		return err
	}
	if cfg.JavaArchive != nil {
		if err := foldPrebuilt(c, cfg.JavaArchive, universal); err != nil {
			return err
		}
	}

	for _, decl := range cfg.TargetJDKs {
		if decl.Platform.IsEmpty() {
			continue
		}
		var jars []*source.ResolvedArtifact
		for _, a := range inputs.Platform {
			if a.Selected(decl.Platform) {
				jars = append(jars, a)
			}
		}
		dir := filepath.Join(c.WorkDir, JarsDirectory, string(decl.Platform))
		if _, err := packager.CopyJars(dir, jars); err != nil {
			return err
		}
	}
	return nil
}

func foldPrebuilt(c *packager.Context, prebuilt *config.PrebuiltArchive, universal string) error {
	log := logger.Logger()
	src, err := c.RenderPath(prebuilt.Path)
	if err != nil {
		return err
	}
	if !file.Exists(src) {
		return fmt.Errorf("%w: java archive %s", source.ErrPathNotFound, src)
	}
	dir := filepath.Join(c.WorkDir, prebuiltDirectory)
	if err := archive.Unpack(src, dir, true); err != nil {
		return err
	}
	libName := prebuilt.LibDirectoryName
	if libName == "" {
		libName = libDirectory
	}
	lib := filepath.Join(dir, libName)
	jars, err := file.ListFiles(lib)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", stage.ErrStagingIO, lib, err)
	}
	for _, rel := range jars {
		if !strings.HasSuffix(rel, ".jar") || strings.Contains(rel, "/") {
			continue
		}
		if prebuilt.MainJarName != "" && rel == prebuilt.MainJarName {
			continue
		}
		if err := file.CopyFile(filepath.Join(lib, rel), filepath.Join(universal, rel)); err != nil {
			return fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
	}
	log.Debugf("Folded %d jars of %s into the universal jars", len(jars), src)
	return nil
}

// Build checks versions, resolves modules and links one image per target.
func (j *jlink) Build(c *packager.Context) ([]packager.Output, error) {
	cfg := c.Profile.Jlink
	host, err := c.OpenJDK(cfg.JDK, c.Toolchains.JavaHome)
	if err != nil {
		return nil, fmt.Errorf("host jdk: %w", err)
	}
	tgts, all, err := targets(c)
	if err != nil {
		return nil, err
	}
	if err := toolchain.CheckSameMajor(host, all...); err != nil {
		return nil, err
	}
	jlinkPath, err := host.RequireTool(toolchain.ToolJlink)
	if err != nil {
		return nil, err
	}

	modules, err := j.modules(c, host)
	if err != nil {
		return nil, err
	}
	c.SetProp(PropModules, modules)

	name, _ := c.Props[packager.PropOutputName].(string)
	var outputs []packager.Output
	for _, t := range tgts {
		outs, err := j.link(c, jlinkPath, t, modules, name+"-"+string(t.platform()))
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, outs...)
	}
	return outputs, nil
}

// modules runs jdeps over the universal jars unless modules are declared
// and adds the declared additional modules and the main module.
func (j *jlink) modules(c *packager.Context, host *toolchain.JDK) ([]string, error) {
	log := logger.Logger()
	cfg := c.Profile.Jlink
	declared := cfg.ModuleNames
	if len(declared) == 0 && cfg.Jdeps.Enabled != nil && !*cfg.Jdeps.Enabled {
		declared = []string{"java.base"}
	}
	additional := append([]string(nil), cfg.AdditionalModuleNames...)
	if cfg.Java.MainModule != "" {
		additional = append(additional, cfg.Java.MainModule)
	}

	var jars []string
	if len(declared) == 0 {
		universal := filepath.Join(c.WorkDir, JarsDirectory, UniversalJars)
		names, err := file.ListFiles(universal)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
		for _, n := range names {
			jars = append(jars, filepath.Join(universal, filepath.FromSlash(n)))
		}
	}
	multiRelease := cfg.Jdeps.MultiRelease
	if multiRelease == "" {
		major, err := host.MajorVersion()
		if err != nil {
			return nil, err
		}
		multiRelease = strconv.Itoa(major)
	}
	modules, err := toolchain.ResolveModules(host, c.WorkDir, declared, additional, jars, multiRelease)
	if err != nil {
		return nil, err
	}
	log.Infof("Modules for %s: %s", c.Name(), strings.Join(modules, ","))
	return modules, nil
}

func (j *jlink) link(c *packager.Context, jlinkPath string, t target, modules []string, imageName string) ([]packager.Output, error) {
	log := logger.Logger()
	cfg := c.Profile.Jlink
	image := filepath.Join(c.WorkDir, ImagesDirectory, imageName)
	if err := os.RemoveAll(image); err != nil {
		return nil, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	if err := os.MkdirAll(filepath.Dir(image), 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}

	modular := cfg.Java.MainModule != ""
	modulePath := []string{filepath.Join(t.jdk.Home, "jmods")}
	if modular {
		modulePath = append(modulePath,
			filepath.Join(c.WorkDir, JarsDirectory, UniversalJars),
			filepath.Join(c.WorkDir, JarsDirectory, string(t.platform())))
	}

	args := []string{
		"--module-path", strings.Join(modulePath, string(os.PathListSeparator)),
		"--add-modules", strings.Join(modules, ","),
		"--output", image,
	}
	userArgs := cfg.Args
	if len(userArgs) == 0 {
		userArgs = defaultArgs
	}
	args = append(args, userArgs...)
	if modular {
		exe, _ := c.Props[packager.PropExecutableName].(string)
		entry := cfg.Java.MainModule
		if cfg.Java.MainClass != "" {
			entry += "/" + cfg.Java.MainClass
		}
		args = append(args, "--launcher", exe+"="+entry)
	}

	log.Infof("Linking %s for %s", imageName, t.platform())
	if _, err := shell.Run(c.WorkDir, jlinkPath, args...); err != nil {
		return nil, err
	}

	if err := j.assemble(c, image, t.platform(), modular); err != nil {
		return nil, err
	}
	if err := c.WriteSwid(image); err != nil {
		return nil, fmt.Errorf("writing swid tag: %w", err)
	}
	outs, err := c.Pack(image, imageName)
	for i := range outs {
		outs[i].Platform = t.platform()
	}
	return outs, err
}

// assemble adds what jlink does not produce: for a non-modular
// application the launchers and the jars under lib/, then templates,
// artifacts and file sets for the target platform.
func (j *jlink) assemble(c *packager.Context, image string, tag platform.Tag, modular bool) error {
	cfg := c.Profile.Jlink
	set := c.TemplateSet()
	launchers := c.LauncherRemap(tag)
	set.Remap = func(name string) string {
		if modular && (name == packager.LauncherUnix || name == packager.LauncherWindows) {
			return ""
		}
		return launchers(name)
	}
	if _, err := stage.CopyTemplates(image, set); err != nil {
		return err
	}

	if !modular && (cfg.CopyJars == nil || *cfg.CopyJars) {
		lib := filepath.Join(image, libDirectory)
		for _, dir := range []string{UniversalJars, string(tag)} {
			src := filepath.Join(c.WorkDir, JarsDirectory, dir)
			if !file.Exists(src) {
				continue
			}
			if err := file.CopyDir(src, lib); err != nil {
				return fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
			}
		}
	}

	_, err := c.CopyInputsFor(image, tag, true)
	return err
}
