// Package workspace removes staging and output trees produced by earlier
// packaging runs.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-edge-platform/release-packager/internal/config"
	fileutil "github.com/open-edge-platform/release-packager/internal/utils/file"
)

// CleanOptions defines which trees should be removed.
type CleanOptions struct {
	CleanWork   bool   // remove staging directories under work_dir
	CleanOutput bool   // remove produced artifacts under output_dir
	Profile     string // optional profile filter
	DryRun      bool   // report actions without deleting anything
}

// CleanResult contains the outcome of a cleanup run.
type CleanResult struct {
	RemovedPaths []string
	SkippedPaths []string
}

// Clean removes profile directories according to the provided options.
func Clean(opts CleanOptions) (*CleanResult, error) {
	if !opts.CleanWork && !opts.CleanOutput {
		return nil, fmt.Errorf("at least one scope must be specified")
	}

	var roots []string
	if opts.CleanWork {
		workDir, err := config.WorkDir()
		if err != nil {
			return nil, fmt.Errorf("resolving work directory: %w", err)
		}
		roots = append(roots, workDir)
	}
	if opts.CleanOutput {
		outputDir, err := config.OutputDir()
		if err != nil {
			return nil, fmt.Errorf("resolving output directory: %w", err)
		}
		roots = append(roots, outputDir)
	}
	return CleanRoots(roots, opts.Profile, opts.DryRun)
}

// CleanRoots removes <root>/<kind>/<profile> for every kind directory of
// every root, or each whole root when profile is empty.
func CleanRoots(roots []string, profile string, dryRun bool) (*CleanResult, error) {
	targets := make(map[string]struct{})
	for _, root := range roots {
		found, err := profileTargets(root, profile)
		if err != nil {
			return nil, err
		}
		for _, path := range found {
			targets[path] = struct{}{}
		}
	}

	targetList := make([]string, 0, len(targets))
	for path := range targets {
		targetList = append(targetList, path)
	}
	sort.Strings(targetList)

	removed := make([]string, 0, len(targetList))
	var skipped []string
	for _, target := range targetList {
		exists, err := pathExists(target)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", target, err)
		}
		if !exists {
			skipped = append(skipped, target)
			continue
		}

		if dryRun {
			removed = append(removed, target)
			continue
		}

		if err := os.RemoveAll(target); err != nil {
			return nil, fmt.Errorf("removing %s: %w", target, err)
		}
		removed = append(removed, target)
	}

	return &CleanResult{
		RemovedPaths: removed,
		SkippedPaths: skipped,
	}, nil
}

func profileTargets(root, profile string) ([]string, error) {
	if profile == "" {
		return []string{root}, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil // No root directory = nothing to clean
		}
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}

	var targets []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		kindDir := filepath.Join(root, entry.Name())
		target := filepath.Join(kindDir, profile)
		if err := ensureSubPath(kindDir, target); err != nil {
			return nil, err
		}
		exists, err := pathExists(target)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", target, err)
		}
		if exists {
			targets = append(targets, target)
		}
	}
	return targets, nil
}

func ensureSubPath(base, target string) error {
	ok, err := fileutil.IsSubPath(base, target)
	if err != nil {
		return err
	}
	if !ok || filepath.Clean(base) == filepath.Clean(target) {
		return fmt.Errorf("refusing to operate on %s because it is outside %s", target, base)
	}
	return nil
}

func pathExists(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("path must not be empty")
	}
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
