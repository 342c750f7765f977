// Package packagertest holds fixtures shared by the builder tests.
package packagertest

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/open-edge-platform/release-packager/internal/archive"
	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/packager"
	"github.com/open-edge-platform/release-packager/internal/utils/compression"
	"github.com/open-edge-platform/release-packager/internal/utils/shell"
)

// WriteTree creates files below root, making parent directories.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// FakeJDK creates a toolchain home holding a release file and empty
// executables for tools.
func FakeJDK(t *testing.T, javaVersion string, extra map[string]string, tools ...string) string {
	t.Helper()
	home := t.TempDir()
	release := `JAVA_VERSION="` + javaVersion + `"` + "\n"
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		release += k + `="` + extra[k] + `"` + "\n"
	}
	WriteTree(t, home, map[string]string{"release": release})
	for _, tool := range tools {
		path := filepath.Join(home, "bin", tool)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return home
}

// Project returns a packaging file rooted in a fresh directory.
func Project(t *testing.T, profiles ...*config.Profile) *config.PackagingFile {
	t.Helper()
	return &config.PackagingFile{
		Project: config.Project{
			Name:        "demo",
			Version:     "1.0.0",
			Description: "Demo application",
			Authors:     []string{"Demo Team"},
			License:     "Apache-2.0",
		},
		Profiles: profiles,
		BaseDir:  t.TempDir(),
	}
}

// Runner returns a single-worker runner writing below a temp dir.
func Runner(t *testing.T, pf *config.PackagingFile) *packager.Runner {
	t.Helper()
	root := t.TempDir()
	return &packager.Runner{
		Packaging:  pf,
		WorkRoot:   filepath.Join(root, "work"),
		OutputRoot: filepath.Join(root, "out"),
		Workers:    1,
		FailFast:   true,
	}
}

// Run validates pf and builds every profile.
func Run(t *testing.T, r *packager.Runner) (*packager.Report, error) {
	t.Helper()
	if err := r.Packaging.Validate(); err != nil {
		t.Fatalf("invalid packaging file: %v", err)
	}
	return r.Run(context.Background())
}

// MockShell installs a mock executor for the duration of the test.
func MockShell(t *testing.T, commands []shell.MockCommand) *shell.MockExecutor {
	t.Helper()
	original := shell.Default
	mock := shell.NewMockExecutor(commands)
	shell.Default = mock
	t.Cleanup(func() { shell.Default = original })
	return mock
}

// ArgValue returns the argument following flag in args.
func ArgValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// Unpacked extracts an archive into a temp dir and lists its files.
func Unpacked(t *testing.T, path string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	if err := archive.Unpack(path, dir, false); err != nil {
		t.Fatalf("unpacking %s: %v", path, err)
	}
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(files)
	return dir, files
}

// TarNames lists the entry names of a tar stream compressed with codec.
func TarNames(t *testing.T, path string, codec compression.Codec) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r, err := compression.NewReader(f, codec)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	tr := tar.NewReader(r)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, strings.TrimPrefix(hdr.Name, "./"))
	}
}
