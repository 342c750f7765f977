package source

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/open-edge-platform/release-packager/internal/platform"
)

// Activation decides whether a declaration takes part in a run.
type Activation string

const (
	ActivationAlways   Activation = "always"
	ActivationNever    Activation = "never"
	ActivationRelease  Activation = "release"
	ActivationSnapshot Activation = "snapshot"
)

// Enabled evaluates the policy for a snapshot or release run. An unset
// policy means always.
func (a Activation) Enabled(snapshot bool) bool {
	switch a {
	case ActivationNever:
		return false
	case ActivationRelease:
		return !snapshot
	case ActivationSnapshot:
		return snapshot
	default:
		return true
	}
}

func (a Activation) Validate() error {
	switch a {
	case "", ActivationAlways, ActivationNever, ActivationRelease, ActivationSnapshot:
		return nil
	default:
		return fmt.Errorf("unknown activation %q", a)
	}
}

// Artifact declares a single input file. Path and Transform may hold
// template placeholders.
type Artifact struct {
	Path      string            `yaml:"path"`
	Transform string            `yaml:"transform,omitempty"`
	Platform  platform.Tag      `yaml:"platform,omitempty"`
	Active    Activation        `yaml:"active,omitempty"`
	Optional  bool              `yaml:"optional,omitempty"`
	Extra     map[string]string `yaml:"extraProperties,omitempty"`
}

// Glob declares a pattern resolved below Directory into artifacts.
type Glob struct {
	Pattern   string       `yaml:"pattern"`
	Directory string       `yaml:"directory,omitempty"`
	Platform  platform.Tag `yaml:"platform,omitempty"`
	Active    Activation   `yaml:"active,omitempty"`
}

// FileSet declares a directory tree copied with its structure preserved.
type FileSet struct {
	Input              string       `yaml:"input"`
	Output             string       `yaml:"output,omitempty"`
	Includes           []string     `yaml:"includes,omitempty"`
	Excludes           []string     `yaml:"excludes,omitempty"`
	FailOnMissingInput bool         `yaml:"failOnMissingInput,omitempty"`
	Platform           platform.Tag `yaml:"platform,omitempty"`
	Active             Activation   `yaml:"active,omitempty"`
}

// ResolvedArtifact is the frozen, per-run view of an Artifact or of one
// file matched by a Glob.
type ResolvedArtifact struct {
	Path      string
	Transform string
	Platform  platform.Tag
	Active    bool
	Optional  bool
	Exists    bool
	Extra     map[string]string
}

// Selected applies the platform filter for a build targeting target.
func (a *ResolvedArtifact) Selected(target platform.Tag) bool {
	return a.Platform.IsCompatible(target)
}

// DestinationName is the path, relative to a staging directory, the
// artifact is copied to.
func (a *ResolvedArtifact) DestinationName() string {
	if a.Transform != "" {
		return filepath.FromSlash(a.Transform)
	}
	return filepath.Base(a.Path)
}

// WithPlatform returns a copy bound to tag when the artifact itself is
// platform-agnostic.
func (a *ResolvedArtifact) WithPlatform(tag platform.Tag) *ResolvedArtifact {
	c := *a
	if c.Platform.IsEmpty() {
		c.Platform = tag
	}
	return &c
}

func (a *ResolvedArtifact) String() string {
	return a.Path
}

// SortArtifacts orders artifacts by resolved path.
func SortArtifacts(artifacts []*ResolvedArtifact) {
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })
}

// ResolvedFileSet holds a file set's input directory and the relative
// paths selected below it.
type ResolvedFileSet struct {
	Input    string
	Output   string
	Platform platform.Tag
	Active   bool
	Paths    []string
}
