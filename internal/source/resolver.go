package source

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/utils/file"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

// Algorithm names a content hash kept for resolved artifacts.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	BLAKE3 Algorithm = "blake3"
)

func newHash(alg Algorithm) (hash.Hash, error) {
	switch alg {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", alg)
	}
}

// HashFile returns the lowercase hex digest of path.
func HashFile(path string, alg Algorithm) (string, error) {
	h, err := newHash(alg)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RenderFunc expands template placeholders in declared paths.
type RenderFunc func(text string, props map[string]any) (string, error)

type cacheKey struct {
	run  uuid.UUID
	kind string
	decl string
}

type hashKey struct {
	path string
	alg  Algorithm
}

// Resolver turns declarations into resolved values once per packaging run.
// Results are cached by run id and the rendered declaration, so profiles
// and variants declaring the same input share one resolution. A Resolver
// is safe for concurrent use.
type Resolver struct {
	RunID    uuid.UUID
	BaseDir  string
	Snapshot bool
	Render   RenderFunc

	mu        sync.Mutex
	artifacts map[cacheKey]*ResolvedArtifact
	globs     map[cacheKey][]*ResolvedArtifact
	fileSets  map[cacheKey]*ResolvedFileSet
	hashes    map[hashKey]string
}

func NewResolver(baseDir string, snapshot bool, render RenderFunc) *Resolver {
	return &Resolver{
		RunID:     uuid.New(),
		BaseDir:   baseDir,
		Snapshot:  snapshot,
		Render:    render,
		artifacts: make(map[cacheKey]*ResolvedArtifact),
		globs:     make(map[cacheKey][]*ResolvedArtifact),
		fileSets:  make(map[cacheKey]*ResolvedFileSet),
		hashes:    make(map[hashKey]string),
	}
}

func (r *Resolver) render(text string, props map[string]any) (string, error) {
	if r.Render == nil || !strings.Contains(text, "{{") {
		return text, nil
	}
	return r.Render(text, props)
}

func (r *Resolver) absolute(path string) string {
	if path == "" {
		return r.BaseDir
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(r.BaseDir, path)
}

// Artifact resolves a single file declaration. A missing path is not an
// error here; callers decide based on Optional and Exists.
func (r *Resolver) Artifact(a Artifact, props map[string]any) (*ResolvedArtifact, error) {
	path, err := r.render(a.Path, props)
	if err != nil {
		return nil, fmt.Errorf("rendering artifact path %q: %w", a.Path, err)
	}
	transform, err := r.render(a.Transform, props)
	if err != nil {
		return nil, fmt.Errorf("rendering artifact transform %q: %w", a.Transform, err)
	}

	key := cacheKey{run: r.RunID, kind: "artifact",
		decl: strings.Join([]string{path, transform, string(a.Platform), string(a.Active), fmt.Sprint(a.Optional)}, "\x00")}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.artifacts[key]; ok {
		return cached, nil
	}

	abs := r.absolute(path)
	resolved := &ResolvedArtifact{
		Path:      abs,
		Transform: transform,
		Platform:  a.Platform,
		Active:    a.Active.Enabled(r.Snapshot),
		Optional:  a.Optional,
		Exists:    file.Exists(abs),
		Extra:     a.Extra,
	}
	r.artifacts[key] = resolved
	return resolved, nil
}

// Glob resolves a pattern declaration into artifacts sorted by path. A
// missing base directory matches nothing.
func (r *Resolver) Glob(g Glob, props map[string]any) ([]*ResolvedArtifact, error) {
	dir, err := r.render(g.Directory, props)
	if err != nil {
		return nil, fmt.Errorf("rendering glob directory %q: %w", g.Directory, err)
	}
	pattern, err := r.render(g.Pattern, props)
	if err != nil {
		return nil, fmt.Errorf("rendering glob pattern %q: %w", g.Pattern, err)
	}

	key := cacheKey{run: r.RunID, kind: "glob",
		decl: strings.Join([]string{dir, pattern, string(g.Platform), string(g.Active)}, "\x00")}
	r.mu.Lock()
	cached, ok := r.globs[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	base := r.absolute(dir)
	var artifacts []*ResolvedArtifact
	if !file.Exists(base) {
		logger.Logger().Debugf("Glob directory %s does not exist, %s matches nothing", base, pattern)
	} else {
		paths, err := Resolve(pattern, base)
		if err != nil {
			return nil, err
		}
		active := g.Active.Enabled(r.Snapshot)
		for _, p := range paths {
			artifacts = append(artifacts, &ResolvedArtifact{
				Path:     p,
				Platform: g.Platform,
				Active:   active,
				Exists:   true,
			})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prior, ok := r.globs[key]; ok {
		return prior, nil
	}
	r.globs[key] = artifacts
	return artifacts, nil
}

// FileSet resolves a file set into relative paths below its input
// directory. A missing input directory yields no paths unless the set
// demands it, in which case ErrPathNotFound is returned.
func (r *Resolver) FileSet(fs FileSet, props map[string]any) (*ResolvedFileSet, error) {
	input, err := r.render(fs.Input, props)
	if err != nil {
		return nil, fmt.Errorf("rendering fileset input %q: %w", fs.Input, err)
	}
	output, err := r.render(fs.Output, props)
	if err != nil {
		return nil, fmt.Errorf("rendering fileset output %q: %w", fs.Output, err)
	}

	key := cacheKey{run: r.RunID, kind: "fileset",
		decl: strings.Join([]string{input, output, strings.Join(fs.Includes, ","), strings.Join(fs.Excludes, ","),
			fmt.Sprint(fs.FailOnMissingInput), string(fs.Platform), string(fs.Active)}, "\x00")}
	r.mu.Lock()
	cached, ok := r.fileSets[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	resolved := &ResolvedFileSet{
		Input:    r.absolute(input),
		Output:   output,
		Platform: fs.Platform,
		Active:   fs.Active.Enabled(r.Snapshot),
	}
	if !file.Exists(resolved.Input) {
		if fs.FailOnMissingInput {
			return nil, fmt.Errorf("%w: fileset input %s", ErrPathNotFound, resolved.Input)
		}
	} else {
		sel, err := NewSelector(fs.Includes, fs.Excludes)
		if err != nil {
			return nil, err
		}
		if resolved.Paths, err = sel.SelectRelative(resolved.Input); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prior, ok := r.fileSets[key]; ok {
		return prior, nil
	}
	r.fileSets[key] = resolved
	return resolved, nil
}

// Hash returns the memoized digest of path.
func (r *Resolver) Hash(path string, alg Algorithm) (string, error) {
	key := hashKey{path: path, alg: alg}
	r.mu.Lock()
	sum, ok := r.hashes[key]
	r.mu.Unlock()
	if ok {
		return sum, nil
	}

	sum, err := HashFile(path, alg)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.hashes[key] = sum
	r.mu.Unlock()
	return sum, nil
}

// Hashes computes every requested digest of a resolved artifact.
func (r *Resolver) Hashes(a *ResolvedArtifact, algs ...Algorithm) (map[Algorithm]string, error) {
	sums := make(map[Algorithm]string, len(algs))
	for _, alg := range algs {
		sum, err := r.Hash(a.Path, alg)
		if err != nil {
			return nil, err
		}
		sums[alg] = sum
	}
	return sums, nil
}

// Artifacts resolves every declaration and glob and returns the union
// ordered by path, without duplicates.
func (r *Resolver) Artifacts(artifacts []Artifact, globs []Glob, props map[string]any) ([]*ResolvedArtifact, error) {
	seen := make(map[string]bool)
	var out []*ResolvedArtifact
	add := func(a *ResolvedArtifact) {
		if seen[a.Path+"\x00"+a.Transform] {
			return
		}
		seen[a.Path+"\x00"+a.Transform] = true
		out = append(out, a)
	}
	for _, a := range artifacts {
		ra, err := r.Artifact(a, props)
		if err != nil {
			return nil, err
		}
		add(ra)
	}
	for _, g := range globs {
		matched, err := r.Glob(g, props)
		if err != nil {
			return nil, err
		}
		for _, a := range matched {
			add(a)
		}
	}
	SortArtifacts(out)
	return out, nil
}

// FilterPlatform keeps the active artifacts compatible with target.
func FilterPlatform(artifacts []*ResolvedArtifact, target platform.Tag) []*ResolvedArtifact {
	var out []*ResolvedArtifact
	for _, a := range artifacts {
		if a.Active && a.Selected(target) {
			out = append(out, a)
		}
	}
	return out
}
