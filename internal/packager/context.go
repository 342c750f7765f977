package packager

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-edge-platform/release-packager/internal/archive"
	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/source"
	"github.com/open-edge-platform/release-packager/internal/stage"
	"github.com/open-edge-platform/release-packager/internal/swid"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

// Property keys every profile variant gets. Builders add their own.
const (
	PropProjectName            = "projectName"
	PropProjectVersion         = "projectVersion"
	PropProjectDescription     = "projectDescription"
	PropProjectLongDescription = "projectLongDescription"
	PropProjectAuthors         = "projectAuthors"
	PropProjectLicense         = "projectLicense"
	PropProjectVendor          = "projectVendor"
	PropProjectCopyright       = "projectCopyright"
	PropProjectHomepage        = "projectHomepage"
	PropProjectSnapshot        = "projectSnapshot"
	PropProjectJavaVersion     = "projectJavaVersion"
	PropProfileName            = "profileName"
	PropProfileKind            = "profileKind"
	PropPlatform               = "platform"
	PropPlatformOS             = "platformOs"
	PropPlatformArch           = "platformArch"
	PropArchiveFormats         = "archiveFormats"
	PropVariantIndex           = "variantIndex"
	PropMatrix                 = "matrix"
	PropExtra                  = "extra"
	PropOutputName             = "outputName"

	// VariantPlatformKey in a matrix row overrides the profile platform.
	VariantPlatformKey = "platform"
)

// Context carries one profile variant through staging and building.
type Context struct {
	Packaging  *config.PackagingFile
	Profile    *config.Profile
	Builder    Builder
	Toolchains config.ToolchainConfig

	// Index is the variant position, or -1 for a profile without a matrix.
	Index   int
	Variant map[string]string
	Target  platform.Tag

	// WorkDir is the staging directory of this variant, OutputDir the
	// profile's output directory shared by all its variants.
	WorkDir   string
	OutputDir string

	Props    map[string]any
	Resolver *source.Resolver
	Renderer stage.Renderer

	// Refs holds the outputs of the referenced profile, if any.
	Refs   []Output
	Staged *stage.Result

	claim func(path string) error
}

// Project is a shortcut to the packaging file's project block.
func (c *Context) Project() config.Project {
	return c.Packaging.Project
}

// Name identifies the variant in logs and errors.
func (c *Context) Name() string {
	if c.Index < 0 {
		return c.Profile.Name
	}
	return fmt.Sprintf("%s[%d]", c.Profile.Name, c.Index)
}

// Render expands text against the variant's properties.
func (c *Context) Render(text string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	return c.Renderer.Render(text, c.Props)
}

// SetProp sets or replaces a property.
func (c *Context) SetProp(key string, value any) {
	c.Props[key] = value
}

// SetDefaultProp sets key only when it is not yet present.
func (c *Context) SetDefaultProp(key string, value any) {
	if _, ok := c.Props[key]; !ok {
		c.Props[key] = value
	}
}

// IsSkipped reports whether a skip override such as "skipZip" is "true"
// in the variant row or in the profile's extra properties.
func (c *Context) IsSkipped(key string) bool {
	if key == "" {
		return false
	}
	if v, ok := c.Variant[key]; ok {
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return strings.EqualFold(strings.TrimSpace(c.Profile.Extra[key]), "true")
}

// Abs resolves a declared path against the packaging file directory.
func (c *Context) Abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Packaging.BaseDir, path)
}

// RenderPath renders a declared path and resolves it.
func (c *Context) RenderPath(path string) (string, error) {
	rendered, err := c.Render(path)
	if err != nil {
		return "", err
	}
	return c.Abs(rendered), nil
}

// FilterByPlatform is set when the variant targets a platform.
func (c *Context) FilterByPlatform() bool {
	return !c.Target.IsEmpty()
}

// Artifacts resolves the profile's artifacts and globs.
func (c *Context) Artifacts() ([]*source.ResolvedArtifact, error) {
	return c.Resolver.Artifacts(c.Profile.Artifacts, c.Profile.Globs, c.Props)
}

// FileSets resolves the profile's file sets.
func (c *Context) FileSets() ([]*source.ResolvedFileSet, error) {
	sets := make([]*source.ResolvedFileSet, 0, len(c.Profile.FileSets))
	for _, fs := range c.Profile.FileSets {
		resolved, err := c.Resolver.FileSet(fs, c.Props)
		if err != nil {
			return nil, err
		}
		sets = append(sets, resolved)
	}
	return sets, nil
}

// TemplateSet describes the profile's templates for the stage package.
func (c *Context) TemplateSet() stage.TemplateSet {
	set := stage.TemplateSet{
		Dir:      c.Abs(c.Profile.TemplateDirectory),
		Skip:     stage.SkipRules(c.Profile.SkipTemplates),
		Props:    c.Props,
		Renderer: c.Renderer,
	}
	if tp, ok := c.Builder.(TemplateProvider); ok {
		set.Defaults = tp.DefaultTemplates()
	}
	if tr, ok := c.Builder.(TemplateRemapper); ok {
		set.Remap = tr.RemapTemplate(c)
	}
	return set
}

// StageRequest assembles the default staging request for dir.
func (c *Context) StageRequest(dir string) (stage.Request, error) {
	artifacts, err := c.Artifacts()
	if err != nil {
		return stage.Request{}, err
	}
	sets, err := c.FileSets()
	if err != nil {
		return stage.Request{}, err
	}
	return stage.Request{
		WorkDir:        dir,
		Templates:      c.TemplateSet(),
		Artifacts:      artifacts,
		FileSets:       sets,
		Target:         c.Target,
		FilterPlatform: c.FilterByPlatform(),
	}, nil
}

// StageInto recreates dir and stages templates, artifacts and file sets
// into it.
func (c *Context) StageInto(dir string) (*stage.Result, error) {
	req, err := c.StageRequest(dir)
	if err != nil {
		return nil, err
	}
	return stage.Run(req)
}

// CopyTemplates renders the templates into an existing dir.
func (c *Context) CopyTemplates(dir string) ([]string, error) {
	return stage.CopyTemplates(dir, c.TemplateSet())
}

// CopyInputs copies artifacts and file sets into an existing dir.
func (c *Context) CopyInputs(dir string) ([]string, error) {
	return c.CopyInputsFor(dir, c.Target, c.FilterByPlatform())
}

// CopyInputsFor is CopyInputs for a platform other than the variant's,
// such as one target runtime of several.
func (c *Context) CopyInputsFor(dir string, target platform.Tag, filter bool) ([]string, error) {
	req, err := c.StageRequest(dir)
	if err != nil {
		return nil, err
	}
	written, err := stage.CopyArtifacts(dir, req.Artifacts, target, filter)
	if err != nil {
		return written, err
	}
	files, err := stage.CopyFileSets(dir, req.FileSets, target, filter)
	return append(written, files...), err
}

// ArchiveOptions resolves the profile options. Without an explicit root
// entry name the archive root is named after baseName.
func (c *Context) ArchiveOptions(baseName string) (archive.Options, error) {
	opts, err := c.Profile.Options.Resolve()
	if err != nil {
		return opts, err
	}
	if opts.RootEntryName == "" {
		opts.RootEntryName = baseName
	}
	return opts, nil
}

// Pack archives srcDir into every declared format not skipped for this
// variant, as <OutputDir>/<baseName><ext>.
func (c *Context) Pack(srcDir, baseName string) ([]Output, error) {
	log := logger.Logger()
	formats, err := c.Profile.ArchiveFormats()
	if err != nil {
		return nil, err
	}
	opts, err := c.ArchiveOptions(baseName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", c.OutputDir, err)
	}

	var outputs []Output
	for _, f := range formats {
		if c.IsSkipped(f.SkipKey()) {
			log.Infof("Skipping %s for %s", f, c.Name())
			continue
		}
		dst := filepath.Join(c.OutputDir, baseName+f.Extension())
		if err := c.ClaimOutput(dst); err != nil {
			return outputs, err
		}
		if err := archive.Pack(srcDir, dst, f, opts); err != nil {
			return outputs, err
		}
		log.Infof("Created %s", dst)
		outputs = append(outputs, c.Output(dst))
	}
	return outputs, nil
}

// ClaimOutput reserves path for this variant. It fails when another
// variant of the run already writes the same file.
func (c *Context) ClaimOutput(path string) error {
	if c.claim == nil {
		return nil
	}
	return c.claim(path)
}

// Output describes a produced file of this variant.
func (c *Context) Output(path string) Output {
	return Output{Path: path, Profile: c.Profile.Name, Kind: c.Profile.Kind, Platform: c.Target}
}

// WriteSwid writes a software identity tag into root when the profile
// enables one.
func (c *Context) WriteSwid(root string) error {
	s := c.Profile.Swid
	if s == nil || !s.Enabled {
		return nil
	}
	project := c.Project()
	tagName, err := c.Render(s.TagName)
	if err != nil {
		return fmt.Errorf("rendering swid tag name: %w", err)
	}
	_, err = swid.Write(root, swid.Options{
		Name:       project.Name,
		Version:    project.Version,
		TagName:    tagName,
		EntityName: s.EntityName,
		RegID:      s.RegID,
		Lang:       s.Lang,
		Path:       s.Path,
	})
	return err
}

// VariantSuffix joins the variant values in matrix declaration order,
// falling back to sorted keys for explicit rows. The platform override
// is left out.
func (c *Context) VariantSuffix() string {
	if len(c.Variant) == 0 {
		return ""
	}
	var keys []string
	if m := c.Profile.Matrix; m != nil && len(m.Vars) > 0 {
		for _, v := range m.Vars {
			keys = append(keys, v.Name)
		}
	} else {
		for k := range c.Variant {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	var parts []string
	for _, k := range keys {
		if k == VariantPlatformKey || strings.HasPrefix(k, "skip") {
			continue
		}
		if v := c.Variant[k]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "-")
}

// commonProps fills every key templates may rely on so rendering with
// missing keys treated as errors only fails on genuine typos.
func (c *Context) commonProps() map[string]any {
	p := c.Project()
	formats, _ := c.Profile.ArchiveFormats()
	formatNames := make([]string, len(formats))
	for i, f := range formats {
		formatNames[i] = string(f)
	}
	variant := make(map[string]string, len(c.Variant))
	for k, v := range c.Variant {
		variant[k] = v
	}
	extra := make(map[string]string, len(c.Profile.Extra))
	for k, v := range c.Profile.Extra {
		extra[k] = v
	}

	props := map[string]any{
		PropProjectName:            p.Name,
		PropProjectVersion:         p.Version,
		PropProjectDescription:     p.Description,
		PropProjectLongDescription: p.LongDescription,
		PropProjectAuthors:         strings.Join(p.Authors, ", "),
		PropProjectLicense:         p.License,
		PropProjectVendor:          p.Vendor,
		PropProjectCopyright:       p.Copyright,
		PropProjectHomepage:        p.Homepage,
		PropProjectSnapshot:        p.Snapshot,
		PropProjectJavaVersion:     p.JavaVersion,
		PropProfileName:            c.Profile.Name,
		PropProfileKind:            string(c.Profile.Kind),
		PropPlatform:               string(c.Target),
		PropPlatformOS:             c.Target.OS(),
		PropPlatformArch:           c.Target.Arch(),
		PropArchiveFormats:         formatNames,
		PropVariantIndex:           c.Index,
		PropMatrix:                 variant,
		PropExtra:                  extra,
		PropOutputName:             "",
	}
	// Variant values and extra properties are also reachable at the top
	// level unless they collide with a built-in key.
	for k, v := range variant {
		if _, ok := props[k]; !ok {
			props[k] = v
		}
	}
	for k, v := range extra {
		if _, ok := props[k]; !ok {
			props[k] = v
		}
	}
	return props
}

// variantTarget returns the platform of a variant: the row's platform
// value when present, else the profile's.
func variantTarget(profile *config.Profile, row map[string]string) (platform.Tag, error) {
	if v, ok := row[VariantPlatformKey]; ok {
		return platform.Parse(v)
	}
	return profile.Platform, nil
}

// DefaultOutputName is the base name used when a profile declares no
// archiveName.
const DefaultOutputName = "{{.projectName}}-{{.projectVersion}}"

// OutputName renders the profile's archiveName, or fallback when unset.
// Variants of a matrix without an explicit name get their values
// appended, and the target platform follows when the profile attaches
// it.
func (c *Context) OutputName(fallback string) (string, error) {
	tmpl := c.Profile.ArchiveName
	explicit := tmpl != ""
	if !explicit {
		tmpl = fallback
	}
	name, err := c.Render(tmpl)
	if err != nil {
		return "", fmt.Errorf("rendering archive name: %w", err)
	}
	if !explicit {
		if s := c.VariantSuffix(); s != "" {
			name += "-" + s
		}
	}
	if c.Profile.AttachPlatform && !c.Target.IsEmpty() {
		name += "-" + string(c.Target)
	}
	if strings.ContainsAny(name, `/\`) || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("invalid archive name %q", name)
	}
	return name, nil
}
