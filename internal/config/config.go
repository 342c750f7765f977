package config

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"

	"github.com/open-edge-platform/release-packager/internal/archive"
	"github.com/open-edge-platform/release-packager/internal/config/validate"
	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/source"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
	"github.com/open-edge-platform/release-packager/internal/utils/security"
)

// DefaultPackagingFile is looked up in the working directory when no
// packaging file is given.
const DefaultPackagingFile = "release-packager.yml"

// ErrInvalidPackaging is matched by every semantic validation failure.
var ErrInvalidPackaging = errors.New("invalid packaging file")

// referenceable lists the kinds whose outputs another profile may consume.
var referenceable = map[Kind][]Kind{
	KindDeb:      {KindArchive, KindJavaArchive, KindJlink, KindNativeImage},
	KindJpackage: {KindJlink},
}

// LoadPackaging reads, schema-validates, decodes and checks a packaging
// file.
func LoadPackaging(path string) (*PackagingFile, error) {
	log := logger.Logger()
	// Use safe file reading to prevent symlink attacks
	data, err := security.SafeReadFile(path, security.RejectSymlinks)
	if err != nil {
		log.Errorf("Failed to read packaging file: %v", err)
		return nil, fmt.Errorf("failed to read packaging file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yml" && ext != ".yaml" {
		log.Errorf("Unsupported file format: %s", ext)
		return nil, fmt.Errorf("unsupported file format: %s (only .yml and .yaml are supported)", ext)
	}

	pf, err := ParsePackaging(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load packaging file %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	pf.BaseDir = filepath.Dir(abs)

	log.Infof("Loaded packaging file %s: project=%s version=%s profiles=%d",
		path, pf.Project.Name, pf.Project.Version, len(pf.Profiles))
	return pf, nil
}

// ParsePackaging decodes packaging YAML. BaseDir is left empty.
func ParsePackaging(data []byte) (*PackagingFile, error) {
	log := logger.Logger()
	jsonData, err := k8syaml.YAMLToJSON(data)
	if err != nil {
		log.Errorf("Invalid YAML format: packaging file parsing failed: %v", err)
		return nil, fmt.Errorf("invalid YAML format: %w", err)
	}
	if err := validate.ValidatePackagingJSON(jsonData); err != nil {
		return nil, fmt.Errorf("packaging validation error: %w", err)
	}

	// yaml.v3 keeps mapping order, which the matrix variables depend on.
	var pf PackagingFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("decoding packaging file: %w", err)
	}

	if err := security.ValidateStructStrings(&pf, security.DefaultLimits()); err != nil {
		return nil, fmt.Errorf("invalid packaging file: %w", err)
	}
	if err := pf.Validate(); err != nil {
		return nil, err
	}
	return &pf, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPackaging, fmt.Sprintf(format, args...))
}

// Validate runs the checks the schema cannot express and normalizes
// platform tags and defaults in place.
func (f *PackagingFile) Validate() error {
	if f.Project.Name == "" || f.Project.Version == "" {
		return invalid("project name and version are required")
	}
	if len(f.Profiles) == 0 {
		return invalid("no profiles declared")
	}

	seen := make(map[string]bool, len(f.Profiles))
	for _, p := range f.Profiles {
		if p == nil {
			return invalid("empty profile entry")
		}
		if p.Name == "" {
			return invalid("profile without a name")
		}
		if seen[p.Name] {
			return invalid("duplicate profile name %q", p.Name)
		}
		seen[p.Name] = true
		if err := p.validate(); err != nil {
			return fmt.Errorf("profile %s: %w", p.Name, err)
		}
	}

	for _, p := range f.Profiles {
		ref := p.Ref()
		if ref == "" {
			continue
		}
		if ref == p.Name {
			return invalid("profile %s references itself", p.Name)
		}
		target := f.Profile(ref)
		if target == nil {
			return invalid("profile %s references unknown profile %q", p.Name, ref)
		}
		allowed := referenceable[p.Kind]
		ok := false
		for _, k := range allowed {
			if target.Kind == k {
				ok = true
				break
			}
		}
		if !ok {
			return invalid("profile %s (%s) cannot consume outputs of %s (%s)", p.Name, p.Kind, ref, target.Kind)
		}
	}
	return nil
}

func (p *Profile) validate() error {
	if !isKnownKind(p.Kind) {
		return invalid("unknown kind %q", p.Kind)
	}
	if err := p.Active.Validate(); err != nil {
		return invalid("%v", err)
	}

	var err error
	if p.Platform, err = platform.Parse(string(p.Platform)); err != nil {
		return invalid("%v", err)
	}
	if err := normalizeArtifacts(p.Artifacts); err != nil {
		return err
	}
	if err := normalizeGlobs(p.Globs); err != nil {
		return err
	}
	for i := range p.FileSets {
		fs := &p.FileSets[i]
		if fs.Platform, err = platform.Parse(string(fs.Platform)); err != nil {
			return invalid("fileset %s: %v", fs.Input, err)
		}
		if err := fs.Active.Validate(); err != nil {
			return invalid("fileset %s: %v", fs.Input, err)
		}
		if _, err := source.NewSelector(fs.Includes, fs.Excludes); err != nil {
			return invalid("fileset %s: %v", fs.Input, err)
		}
	}

	if err := p.Matrix.Validate(); err != nil {
		return invalid("%v", err)
	}
	if _, err := p.Options.Resolve(); err != nil {
		return invalid("options: %v", err)
	}
	if _, err := p.ArchiveFormats(); err != nil {
		return err
	}
	return p.validateKindBlock()
}

func (p *Profile) validateKindBlock() error {
	blocks := map[Kind]bool{
		KindJavaArchive: p.Java != nil,
		KindJlink:       p.Jlink != nil,
		KindJpackage:    p.Jpackage != nil,
		KindNativeImage: p.NativeImage != nil,
		KindDeb:         p.Deb != nil,
	}
	for kind, present := range blocks {
		if present && kind != p.Kind {
			return invalid("settings for %s given on a %s profile", kind, p.Kind)
		}
	}

	switch p.Kind {
	case KindJavaArchive:
		if p.Java == nil {
			return invalid("java-archive profiles need a java block")
		}
		return normalizeJava(p.Java.MainJar, p.Java.Jars)
	case KindJlink:
		if p.Jlink == nil || len(p.Jlink.TargetJDKs) == 0 {
			return invalid("jlink profiles need at least one target JDK")
		}
		if err := normalizeArtifacts(p.Jlink.TargetJDKs); err != nil {
			return err
		}
		return normalizeJava(p.Jlink.MainJar, p.Jlink.Jars)
	case KindJpackage:
		if p.Jpackage == nil {
			return invalid("jpackage profiles need a jpackage block")
		}
		if p.Jpackage.RuntimeImageRef == "" && len(p.Jpackage.RuntimeImages) == 0 {
			return invalid("jpackage profiles need runtimeImages or runtimeImageRef")
		}
		if err := normalizeArtifacts(p.Jpackage.RuntimeImages); err != nil {
			return err
		}
		return normalizeJava(p.Jpackage.MainJar, p.Jpackage.Jars)
	case KindNativeImage:
		if p.NativeImage == nil {
			return invalid("native-image profiles need a nativeImage block")
		}
		return normalizeJava(p.NativeImage.MainJar, p.NativeImage.Jars)
	case KindDeb:
		if p.Deb == nil {
			p.Deb = &Deb{}
		}
		if p.Deb.InstallationPath != "" && !strings.HasPrefix(p.Deb.InstallationPath, "/") {
			return invalid("deb installationPath must be absolute")
		}
	}
	return nil
}

func normalizeJava(mainJar source.Artifact, jars []source.Glob) error {
	if mainJar.Path == "" {
		return invalid("mainJar path is required")
	}
	if err := mainJar.Active.Validate(); err != nil {
		return invalid("mainJar: %v", err)
	}
	return normalizeGlobs(jars)
}

func normalizeArtifacts(artifacts []source.Artifact) error {
	for i := range artifacts {
		a := &artifacts[i]
		var err error
		if a.Platform, err = platform.Parse(string(a.Platform)); err != nil {
			return invalid("artifact %s: %v", a.Path, err)
		}
		if err := a.Active.Validate(); err != nil {
			return invalid("artifact %s: %v", a.Path, err)
		}
	}
	return nil
}

func normalizeGlobs(globs []source.Glob) error {
	for i := range globs {
		g := &globs[i]
		var err error
		if g.Platform, err = platform.Parse(string(g.Platform)); err != nil {
			return invalid("glob %s: %v", g.Pattern, err)
		}
		if err := g.Active.Validate(); err != nil {
			return invalid("glob %s: %v", g.Pattern, err)
		}
		if _, err := source.ParsePattern(g.Pattern); err != nil {
			return invalid("glob %s: %v", g.Pattern, err)
		}
	}
	return nil
}

func isKnownKind(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ArchiveFormats parses the declared formats. Kinds producing archives
// default to zip; deb and jpackage ignore the list.
func (p *Profile) ArchiveFormats() ([]archive.Format, error) {
	if p.Kind == KindDeb || p.Kind == KindJpackage {
		return nil, nil
	}
	declared := p.Formats
	if len(declared) == 0 {
		declared = []string{string(archive.Zip)}
	}
	formats := make([]archive.Format, 0, len(declared))
	seen := make(map[archive.Format]bool)
	for _, s := range declared {
		f, err := archive.ParseFormat(s)
		if err != nil {
			return nil, invalid("%v", err)
		}
		if !f.Writable() {
			return nil, invalid("format %s can be read but not written", f)
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	return formats, nil
}

// Enabled evaluates the profile's activation for a snapshot or release.
func (p *Profile) Enabled(snapshot bool) bool {
	return p.Active.Enabled(snapshot)
}
