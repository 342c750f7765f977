// Package packager runs packaging profiles: it expands variants, stages
// their working directories and hands them to the builder of the
// profile's kind.
package packager

import (
	"io/fs"
	"sort"
	"sync"

	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/stage"
)

// Output is one produced artifact.
type Output struct {
	Path     string
	Profile  string
	Kind     config.Kind
	Platform platform.Tag
}

// Builder is implemented once per packaging kind.
type Builder interface {
	// Kind is the profile kind handled, e.g. "jlink".
	Kind() config.Kind

	// FillProperties adds kind-specific template properties. It runs
	// before staging, after the common properties are set.
	FillProperties(ctx *Context) error

	// Build turns the staged working directory into final artifacts.
	Build(ctx *Context) ([]Output, error)

	// ResolveOutputName returns the artifact base name, without
	// extension, for the current variant.
	ResolveOutputName(ctx *Context) (string, error)
}

// TemplateProvider supplies bundled templates merged under the profile's
// own template directory.
type TemplateProvider interface {
	DefaultTemplates() fs.FS
}

// TemplateRemapper renames staged templates, e.g. to a platform launcher
// name.
type TemplateRemapper interface {
	RemapTemplate(ctx *Context) stage.RemapFunc
}

// Stager replaces the default staging of templates, artifacts and file
// sets into the working directory. The directory has already been
// recreated when Stage runs.
type Stager interface {
	Stage(ctx *Context) error
}

var (
	buildersMu sync.RWMutex
	builders   = make(map[config.Kind]Builder)
)

// Register makes a Builder available under its Kind().
func Register(b Builder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[b.Kind()] = b
}

// Get returns the Builder for kind.
func Get(kind config.Kind) (Builder, bool) {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	b, ok := builders[kind]
	return b, ok
}

// Kinds lists the registered kinds.
func Kinds() []config.Kind {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	kinds := make([]config.Kind, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
