// Package stage populates a profile's working directory from templates,
// declared artifacts and file sets before a builder runs.
package stage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/source"
	"github.com/open-edge-platform/release-packager/internal/utils/file"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

// ErrStagingIO is matched by directory creation and copy failures.
var ErrStagingIO = errors.New("staging I/O failed")

func stagingError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStagingIO, op, path, err)
}

// Prepare deletes and recreates dir.
func Prepare(dir string) error {
	if err := file.RecreateDir(dir); err != nil {
		return fmt.Errorf("%w: %w", ErrStagingIO, err)
	}
	return nil
}

// Template is one entry of a merged template listing.
type Template struct {
	Name   string
	source fs.FS
	perm   fs.FileMode
}

func (t Template) IsText() bool {
	return strings.HasSuffix(t.Name, TemplateSuffix)
}

func (t Template) Read() ([]byte, error) {
	return fs.ReadFile(t.source, t.Name)
}

// ListTemplates merges the files of userDir over the bundled defaults.
// Names are slash-separated and sorted. A missing userDir is not an error.
func ListTemplates(userDir string, defaults fs.FS) ([]Template, error) {
	merged := make(map[string]Template)
	add := func(fsys fs.FS, user bool) error {
		return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			perm := fs.FileMode(0o644)
			if user {
				info, err := d.Info()
				if err != nil {
					return err
				}
				perm = info.Mode().Perm()
			}
			merged[p] = Template{Name: p, source: fsys, perm: perm}
			return nil
		})
	}

	if defaults != nil {
		if err := add(defaults, false); err != nil {
			return nil, fmt.Errorf("%w: listing default templates: %w", ErrStagingIO, err)
		}
	}
	if userDir != "" && file.Exists(userDir) {
		if err := add(os.DirFS(userDir), true); err != nil {
			return nil, stagingError("listing templates in", userDir, err)
		}
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)
	templates := make([]Template, len(names))
	for i, name := range names {
		templates[i] = merged[name]
	}
	return templates, nil
}

// RemapFunc rewrites a template's destination name, which has the
// template suffix already stripped. Returning "" drops the template.
type RemapFunc func(name string) string

// TemplateSet describes the templates to copy for one profile.
type TemplateSet struct {
	Dir      string
	Defaults fs.FS
	Skip     SkipRules
	Props    map[string]any
	Renderer Renderer
	Remap    RemapFunc
}

// CopyTemplates writes every template not skipped into dest. Text
// templates are rendered, others copied verbatim. Files under bin/ are
// made executable. It returns the written names.
func CopyTemplates(dest string, set TemplateSet) ([]string, error) {
	log := logger.Logger()
	templates, err := ListTemplates(set.Dir, set.Defaults)
	if err != nil {
		return nil, err
	}
	renderer := set.Renderer
	if renderer == nil {
		renderer = TemplateRenderer{}
	}

	var written []string
	for _, t := range templates {
		if set.Skip.Skip(t.Name) {
			log.Debugf("Skipping template %s", t.Name)
			continue
		}
		target := strings.TrimSuffix(t.Name, TemplateSuffix)
		if set.Remap != nil {
			if target = set.Remap(target); target == "" {
				continue
			}
		}

		content, err := t.Read()
		if err != nil {
			return written, stagingError("reading template", t.Name, err)
		}
		if t.IsText() {
			rendered, err := renderer.Render(string(content), set.Props)
			if err != nil {
				return written, fmt.Errorf("template %s: %w", t.Name, err)
			}
			content = []byte(rendered)
		}

		perm := t.perm
		if strings.HasPrefix(target, "bin/") {
			perm |= 0o755
		}
		out := filepath.Join(dest, filepath.FromSlash(target))
		if err := writeFile(out, content, perm); err != nil {
			return written, err
		}
		log.Debugf("Staged template %s as %s", t.Name, target)
		written = append(written, target)
	}
	return written, nil
}

func writeFile(path string, content []byte, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return stagingError("creating directory for", path, err)
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return stagingError("writing", path, err)
	}
	if err := os.Chmod(path, perm); err != nil {
		return stagingError("setting mode of", path, err)
	}
	return nil
}

// CopyArtifacts copies each usable artifact into dest under its
// destination name. Inactive artifacts, artifacts not selected for target
// when filter is set and missing optional artifacts are skipped; a missing
// required artifact fails with source.ErrPathNotFound.
func CopyArtifacts(dest string, artifacts []*source.ResolvedArtifact, target platform.Tag, filter bool) ([]string, error) {
	log := logger.Logger()
	var written []string
	for _, a := range artifacts {
		if !a.Active {
			continue
		}
		if filter && !a.Selected(target) {
			log.Debugf("Skipping %s: platform %s does not match %s", a.Path, a.Platform, target)
			continue
		}
		if !file.Exists(a.Path) {
			if a.Optional {
				log.Debugf("Skipping missing optional artifact %s", a.Path)
				continue
			}
			return written, fmt.Errorf("%w: %s", source.ErrPathNotFound, a.Path)
		}

		name := a.DestinationName()
		out := filepath.Join(dest, name)
		if err := file.CopyFile(a.Path, out); err != nil {
			return written, fmt.Errorf("%w: %w", ErrStagingIO, err)
		}
		log.Debugf("Staged %s as %s", a.Path, name)
		written = append(written, filepath.ToSlash(name))
	}
	return written, nil
}

// CopyFileSets copies each active set's files into dest, below the set's
// output path, keeping their relative layout.
func CopyFileSets(dest string, sets []*source.ResolvedFileSet, target platform.Tag, filter bool) ([]string, error) {
	var written []string
	for _, fset := range sets {
		if !fset.Active || (filter && !fset.Platform.IsCompatible(target)) {
			continue
		}
		for _, rel := range fset.Paths {
			name := path.Join(filepath.ToSlash(fset.Output), rel)
			src := filepath.Join(fset.Input, filepath.FromSlash(rel))
			if err := file.CopyFile(src, filepath.Join(dest, filepath.FromSlash(name))); err != nil {
				return written, fmt.Errorf("%w: %w", ErrStagingIO, err)
			}
			written = append(written, name)
		}
	}
	return written, nil
}

// Request is everything the staging pipeline needs for one profile
// variant.
type Request struct {
	WorkDir   string
	Templates TemplateSet
	Artifacts []*source.ResolvedArtifact
	FileSets  []*source.ResolvedFileSet
	Target    platform.Tag
	// FilterPlatform drops artifacts and file sets not compatible with
	// Target.
	FilterPlatform bool
}

// Result lists what was staged, relative to the working directory.
type Result struct {
	Dir       string
	Templates []string
	Artifacts []string
	Files     []string
}

// Run recreates the working directory and stages templates, artifacts and
// file sets into it in that order. Later copies overwrite earlier ones.
func Run(req Request) (*Result, error) {
	if err := Prepare(req.WorkDir); err != nil {
		return nil, err
	}
	res := &Result{Dir: req.WorkDir}

	var err error
	if res.Templates, err = CopyTemplates(req.WorkDir, req.Templates); err != nil {
		return res, err
	}
	if res.Artifacts, err = CopyArtifacts(req.WorkDir, req.Artifacts, req.Target, req.FilterPlatform); err != nil {
		return res, err
	}
	if res.Files, err = CopyFileSets(req.WorkDir, req.FileSets, req.Target, req.FilterPlatform); err != nil {
		return res, err
	}
	return res, nil
}
