package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

const (
	globPrefix  = "glob:"
	regexPrefix = "regex:"

	// DefaultInclude matches every file below the base directory.
	DefaultInclude = "**/*"
)

// ErrPathNotFound reports a required input path that does not exist.
var ErrPathNotFound = errors.New("path not found")

// Pattern is a parsed glob: or regex: selector matched against
// slash-separated paths relative to a base directory.
type Pattern struct {
	Raw       string
	Regex     bool
	Expr      string
	Recursive bool

	re    *regexp.Regexp
	depth int
}

// ParsePattern normalizes a selector. Unprefixed patterns are globs.
func ParsePattern(s string) (Pattern, error) {
	p := Pattern{Raw: s}
	switch {
	case strings.HasPrefix(s, regexPrefix):
		p.Regex = true
		p.Expr = strings.TrimPrefix(s, regexPrefix)
	case strings.HasPrefix(s, globPrefix):
		p.Expr = strings.TrimPrefix(s, globPrefix)
	default:
		p.Expr = s
	}
	if p.Expr == "" {
		return Pattern{}, fmt.Errorf("empty pattern %q", s)
	}

	if p.Regex {
		re, err := regexp.Compile("^(?:" + p.Expr + ")$")
		if err != nil {
			return Pattern{}, fmt.Errorf("invalid regex pattern %q: %w", s, err)
		}
		p.re = re
		p.Recursive = strings.HasPrefix(p.Expr, ".*")
		p.depth = 1
	} else {
		p.Expr = filepath.ToSlash(p.Expr)
		if !doublestar.ValidatePattern(p.Expr) {
			return Pattern{}, fmt.Errorf("invalid glob pattern %q", s)
		}
		p.Recursive = strings.HasPrefix(p.Expr, "**")
		// A glob naming sub-directories explicitly ("lib/*.jar") still
		// has to reach them, but no further.
		if strings.Contains(p.Expr, "**") {
			p.depth = -1
		} else {
			p.depth = strings.Count(p.Expr, "/") + 1
		}
	}
	if p.Recursive {
		p.depth = -1
	}
	return p, nil
}

// Match reports whether the relative path rel matches the pattern.
func (p Pattern) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	if p.Regex {
		return p.re.MatchString(rel)
	}
	ok, err := doublestar.Match(p.Expr, rel)
	return err == nil && ok
}

func parsePatterns(patterns []string) ([]Pattern, error) {
	parsed := make([]Pattern, 0, len(patterns))
	for _, s := range patterns {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		p, err := ParsePattern(s)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, p)
	}
	return parsed, nil
}

// Selector evaluates include and exclude patterns independently: a path
// is selected when it matches an include and no exclude.
type Selector struct {
	includes []Pattern
	excludes []Pattern
	depth    int
}

func NewSelector(includes, excludes []string) (*Selector, error) {
	inc, err := parsePatterns(includes)
	if err != nil {
		return nil, err
	}
	if len(inc) == 0 {
		p, _ := ParsePattern(DefaultInclude)
		inc = []Pattern{p}
	}
	exc, err := parsePatterns(excludes)
	if err != nil {
		return nil, err
	}

	depth := 0
	for _, p := range inc {
		d := p.depth
		if d < 0 {
			depth = -1
			break
		}
		if d > depth {
			depth = d
		}
	}
	return &Selector{includes: inc, excludes: exc, depth: depth}, nil
}

func (s *Selector) Match(rel string) bool {
	matched := false
	for _, p := range s.includes {
		if p.Match(rel) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, p := range s.excludes {
		if p.Match(rel) {
			return false
		}
	}
	return true
}

// Recursive reports whether the walk has to descend below the base
// directory's immediate children.
func (s *Selector) Recursive() bool {
	return s.depth != 1
}

// SelectRelative walks baseDir and returns the sorted slash-separated
// relative paths of the selected files. Unreadable entries do not stop the
// walk but fail the selection once it is complete.
func (s *Selector) SelectRelative(baseDir string) ([]string, error) {
	log := logger.Logger()

	var selected []string
	var walkErrs []error

	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnf("Failed to visit %s: %v", path, err)
			walkErrs = append(walkErrs, fmt.Errorf("visiting %s: %w", path, err))
			if d != nil && d.IsDir() && path != baseDir {
				return filepath.SkipDir
			}
			return nil
		}
		if path == baseDir {
			return nil
		}

		rel, relErr := filepath.Rel(baseDir, path)
		if relErr != nil {
			walkErrs = append(walkErrs, relErr)
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.depth > 0 && strings.Count(rel, "/")+1 >= s.depth {
				return filepath.SkipDir
			}
			return nil
		}
		if s.Match(rel) {
			selected = append(selected, rel)
		}
		return nil
	})
	if err != nil {
		walkErrs = append(walkErrs, err)
	}
	if len(walkErrs) > 0 {
		return nil, fmt.Errorf("failed to resolve files under %s: %w", baseDir, errors.Join(walkErrs...))
	}

	sort.Strings(selected)
	return selected, nil
}

// Select is SelectRelative returning absolute paths.
func (s *Selector) Select(baseDir string) ([]string, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", baseDir, err)
	}
	rels, err := s.SelectRelative(absBase)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(rels))
	for i, rel := range rels {
		paths[i] = filepath.Join(absBase, filepath.FromSlash(rel))
	}
	return paths, nil
}

// Resolve resolves a single pattern against baseDir into an ordered set
// of absolute file paths.
func Resolve(pattern, baseDir string) ([]string, error) {
	sel, err := NewSelector([]string{pattern}, nil)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(baseDir); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, baseDir)
	}
	return sel.Select(baseDir)
}
