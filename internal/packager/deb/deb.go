// Package deb builds Debian binary packages, either from the loose
// inputs of the profile or from the archives of a referenced profile.
package deb

import (
	"crypto/md5"
	"embed"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/open-edge-platform/release-packager/internal/archive"
	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/packager"
	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/stage"
	"github.com/open-edge-platform/release-packager/internal/utils/convert"
	"github.com/open-edge-platform/release-packager/internal/utils/file"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

// Package layout.
const (
	DataDirectory    = "data"
	ControlDirectory = "control"
	DebianBinary     = "debian-binary"
	ControlArchive   = "control.tar.zst"
	DataArchive      = "data.tar.zst"
	md5sumsFile      = "md5sums"
	binaryVersion    = "2.0\n"
)

const (
	defaultSection  = "misc"
	defaultPriority = "optional"
	defaultRevision = 1
)

// Property keys of the control templates.
const (
	PropPackageName     = "debPackageName"
	PropPackageVersion  = "debPackageVersion"
	PropRevision        = "debRevision"
	PropVersion         = "debVersion"
	PropArchitecture    = "debArchitecture"
	PropInstallPath     = "debInstallationPath"
	PropInstalledSize   = "debInstalledSize"
	PropMaintainer      = "debMaintainer"
	PropSection         = "debSection"
	PropPriority        = "debPriority"
	PropEssential       = "debEssential"
	PropHomepage        = "debHomepage"
	PropBuiltUsing      = "debBuiltUsing"
	PropDescription     = "debDescription"
	PropLongDescription = "debLongDescription"
)

// Relation fields rendered one entry per line.
var relations = map[string]func(*config.Deb) []string{
	"debDepends":    func(d *config.Deb) []string { return d.Depends },
	"debPreDepends": func(d *config.Deb) []string { return d.PreDepends },
	"debRecommends": func(d *config.Deb) []string { return d.Recommends },
	"debSuggests":   func(d *config.Deb) []string { return d.Suggests },
	"debEnhances":   func(d *config.Deb) []string { return d.Enhances },
	"debBreaks":     func(d *config.Deb) []string { return d.Breaks },
	"debConflicts":  func(d *config.Deb) []string { return d.Conflicts },
	"debProvides":   func(d *config.Deb) []string { return d.Provides },
	"debReplaces":   func(d *config.Deb) []string { return d.Replaces },
}

// Maintainer scripts must be executable inside the package.
var maintainerScripts = []string{"preinst", "postinst", "prerm", "postrm", "config"}

//go:embed templates
var templates embed.FS

// deb implements packager.Builder
type deb struct{}

func Register() {
	packager.Register(&deb{})
}

func (d *deb) Kind() config.Kind {
	return config.KindDeb
}

func (d *deb) DefaultTemplates() fs.FS {
	sub, err := fs.Sub(templates, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// FillProperties publishes the control fields that do not depend on the
// packaged input.
func (d *deb) FillProperties(c *packager.Context) error {
	cfg := c.Profile.Deb
	project := c.Project()

	name := strings.ToLower(project.Name)
	if cfg.PackageName != "" {
		rendered, err := c.Render(cfg.PackageName)
		if err != nil {
			return err
		}
		name = rendered
	}
	version := cfg.PackageVersion
	if version == "" {
		version = project.Version
	}
	revision := cfg.Revision
	if revision <= 0 {
		revision = defaultRevision
	}
	installPath := cfg.InstallationPath
	if installPath == "" {
		installPath = "/opt/" + name
	}
	maintainer := cfg.Maintainer
	if maintainer == "" && len(project.Authors) > 0 {
		maintainer = project.Authors[0]
	}
	if maintainer == "" {
		return fmt.Errorf("deb %s needs a maintainer or a project author", c.Name())
	}
	homepage := cfg.Homepage
	if homepage == "" {
		homepage = project.Homepage
	}

	c.SetProp(PropPackageName, name)
	c.SetProp(PropPackageVersion, version)
	c.SetProp(PropRevision, revision)
	c.SetProp(PropVersion, version+"-"+strconv.Itoa(revision))
	c.SetProp(PropArchitecture, "")
	c.SetProp(PropInstallPath, path.Clean(installPath))
	c.SetProp(PropInstalledSize, int64(0))
	c.SetProp(PropMaintainer, maintainer)
	c.SetProp(PropSection, orDefault(cfg.Section, defaultSection))
	c.SetProp(PropPriority, orDefault(cfg.Priority, defaultPriority))
	c.SetProp(PropEssential, cfg.Essential)
	c.SetProp(PropHomepage, homepage)
	c.SetProp(PropBuiltUsing, cfg.BuiltUsing)
	c.SetProp(PropDescription, orDefault(project.Description, name))
	c.SetProp(PropLongDescription, DescriptionLines(project.LongDescription))
	for key, field := range relations {
		c.SetProp(key, append([]string{}, field(cfg)...))
	}
	return nil
}

func (d *deb) ResolveOutputName(c *packager.Context) (string, error) {
	name, _ := c.Props[PropPackageName].(string)
	return name, nil
}

// Stage leaves the working directory empty; each package gets its own
// data and control trees in Build.
func (d *deb) Stage(c *packager.Context) error {
	return nil
}

// input is one archive to package, or none, with its architecture.
type input struct {
	path string
	arch string
	tag  platform.Tag
}

func (d *deb) inputs(c *packager.Context) []input {
	log := logger.Logger()
	if c.Profile.Deb.AssemblerRef == "" {
		arch, ok := c.Target.DebArch()
		if !ok {
			log.Warnf("Skipping %s: no Debian architecture for %s", c.Name(), c.Target)
			return nil
		}
		return []input{{arch: arch, tag: c.Target}}
	}

	var ins []input
	seen := make(map[string]string)
	for _, o := range c.Refs {
		if c.FilterByPlatform() && !o.Platform.IsCompatible(c.Target) {
			continue
		}
		arch, ok := o.Platform.DebArch()
		if !ok {
			log.Warnf("Skipping %s: no Debian architecture for %s", o.Path, o.Platform)
			continue
		}
		if prev, dup := seen[arch]; dup {
			log.Warnf("Skipping %s: %s already provides the %s package", o.Path, prev, arch)
			continue
		}
		seen[arch] = o.Path
		ins = append(ins, input{path: o.Path, arch: arch, tag: o.Platform})
	}
	return ins
}

// Build writes one package per input architecture.
func (d *deb) Build(c *packager.Context) ([]packager.Output, error) {
	ins := d.inputs(c)
	if len(ins) == 0 && c.Profile.Deb.AssemblerRef != "" {
		logger.Logger().Warnf("Nothing to package for %s: no output of %s maps to a Debian architecture",
			c.Name(), c.Profile.Deb.AssemblerRef)
	}
	var outputs []packager.Output
	for _, in := range ins {
		out, err := d.pack(c, in)
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (d *deb) pack(c *packager.Context, in input) (packager.Output, error) {
	log := logger.Logger()
	dir := filepath.Join(c.WorkDir, in.arch)
	data := filepath.Join(dir, DataDirectory)
	control := filepath.Join(dir, ControlDirectory)
	for _, p := range []string{data, control} {
		if err := file.RecreateDir(p); err != nil {
			return packager.Output{}, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
	}

	if in.path != "" {
		if err := extract(in.path, data); err != nil {
			return packager.Output{}, err
		}
	}
	if _, err := c.CopyInputsFor(data, in.tag, !in.tag.IsEmpty()); err != nil {
		return packager.Output{}, err
	}
	if err := c.WriteSwid(data); err != nil {
		return packager.Output{}, fmt.Errorf("writing swid tag: %w", err)
	}

	size, err := file.DirSize(data)
	if err != nil {
		return packager.Output{}, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	c.SetProp(PropArchitecture, in.arch)
	c.SetProp(PropInstalledSize, convert.BytesToKiB(size))

	if err := d.writeControl(c, control, data); err != nil {
		return packager.Output{}, err
	}

	opts, err := c.Profile.Options.Resolve()
	if err != nil {
		return packager.Output{}, err
	}
	controlOpts := opts
	controlOpts.RootEntryName = archive.FlatRoot
	controlOpts.CreateIntermediateDirs = false
	if err := archive.Pack(control, filepath.Join(dir, ControlArchive), archive.TarZst, controlOpts); err != nil {
		return packager.Output{}, err
	}
	installPath, _ := c.Props[PropInstallPath].(string)
	dataOpts := opts
	dataOpts.RootEntryName = dataRoot(installPath)
	dataOpts.CreateIntermediateDirs = true
	if err := archive.Pack(data, filepath.Join(dir, DataArchive), archive.TarZst, dataOpts); err != nil {
		return packager.Output{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, DebianBinary), []byte(binaryVersion), 0644); err != nil {
		return packager.Output{}, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}

	name, _ := c.Props[PropPackageName].(string)
	version, _ := c.Props[PropVersion].(string)
	if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		return packager.Output{}, fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	dst := filepath.Join(c.OutputDir, fmt.Sprintf("%s-%s_%s.deb", name, version, in.arch))
	if err := c.ClaimOutput(dst); err != nil {
		return packager.Output{}, err
	}
	members := []string{
		filepath.Join(dir, DebianBinary),
		filepath.Join(dir, ControlArchive),
		filepath.Join(dir, DataArchive),
	}
	if err := archive.WriteArFile(dst, members, opts); err != nil {
		return packager.Output{}, err
	}
	log.Infof("Created %s", dst)

	out := c.Output(dst)
	out.Platform = in.tag
	return out, nil
}

// extract unpacks an archive input below data, dropping its root
// directory. Other files are copied as they are.
func extract(src, data string) error {
	if _, err := archive.DetectFormat(src); err != nil {
		if err := file.CopyFile(src, filepath.Join(data, filepath.Base(src))); err != nil {
			return fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
		return nil
	}
	return archive.Unpack(src, data, true)
}

// writeControl renders the control templates and adds md5sums.
func (d *deb) writeControl(c *packager.Context, control, data string) error {
	if _, err := c.CopyTemplates(control); err != nil {
		return err
	}
	for _, script := range maintainerScripts {
		p := filepath.Join(control, script)
		if file.Exists(p) {
			if err := os.Chmod(p, 0755); err != nil {
				return fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
			}
		}
	}
	installPath, _ := c.Props[PropInstallPath].(string)
	sums, err := MD5Sums(data, installPrefix(installPath))
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(control, md5sumsFile), []byte(sums), 0644); err != nil {
		return fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	return nil
}

// installPrefix is the installation path relative to "/", empty for the
// filesystem root.
func installPrefix(installPath string) string {
	return strings.Trim(path.Clean("/"+installPath), "/")
}

// dataRoot is the top entry of the data archive.
func dataRoot(installPath string) string {
	if prefix := installPrefix(installPath); prefix != "" {
		return prefix
	}
	return archive.FlatRoot
}

// MD5Sums lists "<md5>  <prefix>/<path>" for every regular file below
// dir, in lexical order.
func MD5Sums(dir, prefix string) (string, error) {
	files, err := file.ListFiles(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	var b strings.Builder
	for _, rel := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		info, err := os.Lstat(p)
		if err != nil {
			return "", fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		sum, err := md5File(p)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s  %s\n", sum, path.Join(prefix, rel))
	}
	return b.String(), nil
}

func md5File(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: %w", stage.ErrStagingIO, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DescriptionLines formats an extended description for the control file:
// blank lines become "." and surrounding whitespace is dropped.
func DescriptionLines(text string) []string {
	lines := []string{}
	text = strings.TrimSpace(text)
	if text == "" {
		return lines
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			line = "."
		}
		lines = append(lines, line)
	}
	return lines
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
