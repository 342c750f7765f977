package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
)

func versionRender(text string, props map[string]any) (string, error) {
	return strings.ReplaceAll(text, "{{.version}}", props["version"].(string)), nil
}

func TestActivationEnabled(t *testing.T) {
	tests := []struct {
		a        Activation
		snapshot bool
		want     bool
	}{
		{"", false, true},
		{ActivationAlways, true, true},
		{ActivationNever, false, false},
		{ActivationRelease, false, true},
		{ActivationRelease, true, false},
		{ActivationSnapshot, true, true},
		{ActivationSnapshot, false, false},
	}
	for _, tt := range tests {
		if got := tt.a.Enabled(tt.snapshot); got != tt.want {
			t.Errorf("%q.Enabled(%v) = %v, want %v", tt.a, tt.snapshot, got, tt.want)
		}
	}
	if err := Activation("sometimes").Validate(); err == nil {
		t.Error("expected unknown activation to be rejected")
	}
}

func TestResolverArtifactIsCached(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "build/app-1.0.jar")
	r := NewResolver(dir, false, versionRender)
	props := map[string]any{"version": "1.0"}

	decl := Artifact{Path: "build/app-{{.version}}.jar", Transform: "lib/app.jar", Platform: "linux-x86_64"}
	first, err := r.Artifact(decl, props)
	if err != nil {
		t.Fatalf("Artifact failed: %v", err)
	}
	if first.Path != filepath.Join(dir, "build", "app-1.0.jar") || !first.Exists || !first.Active {
		t.Errorf("unexpected resolution: %+v", first)
	}
	if first.DestinationName() != filepath.Join("lib", "app.jar") {
		t.Errorf("unexpected destination %q", first.DestinationName())
	}
	second, _ := r.Artifact(decl, props)
	if first != second {
		t.Error("expected the same cached instance for the same run")
	}

	other := NewResolver(dir, false, versionRender)
	third, _ := other.Artifact(decl, props)
	if third == first {
		t.Error("a new run must not share cached resolutions")
	}
}

func TestResolverMissingOptionalArtifact(t *testing.T) {
	r := NewResolver(t.TempDir(), true, nil)
	a, err := r.Artifact(Artifact{Path: "missing.txt", Optional: true, Active: ActivationRelease}, nil)
	if err != nil {
		t.Fatalf("Artifact failed: %v", err)
	}
	if a.Exists || !a.Optional || a.Active {
		t.Errorf("unexpected resolution: %+v", a)
	}
}

func TestResolverGlobAndFilter(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "libs/b.jar", "libs/a.jar", "libs/readme.txt", "native/linux/x.so")
	r := NewResolver(dir, false, nil)

	got, err := r.Artifacts(
		[]Artifact{{Path: "native/linux/x.so", Platform: "linux-x86_64"}},
		[]Glob{{Pattern: "*.jar", Directory: "libs"}},
		nil,
	)
	if err != nil {
		t.Fatalf("Artifacts failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(got))
	}
	if filepath.Base(got[0].Path) != "a.jar" || filepath.Base(got[1].Path) != "b.jar" {
		t.Errorf("artifacts not sorted by path: %v", got)
	}

	onMac := FilterPlatform(got, platform.Tag("osx-aarch_64"))
	if len(onMac) != 2 {
		t.Errorf("expected platform filter to drop the linux library, got %v", onMac)
	}
}

func TestResolverGlobMissingDirectory(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "packager.log")
	if _, _, err := logger.InitWithConfig(logger.Config{Level: "debug", FilePath: logPath}); err != nil {
		t.Fatalf("InitWithConfig failed: %v", err)
	}
	t.Cleanup(func() {
		_, _, _ = logger.InitWithConfig(logger.Config{Level: "info"})
	})

	r := NewResolver(t.TempDir(), false, nil)
	got, err := r.Glob(Glob{Pattern: "*.jar", Directory: "libs"}, nil)
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no artifacts, got %v", got)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "does not exist, *.jar matches nothing") {
		t.Errorf("missing directory was not logged:\n%s", data)
	}
}

func TestResolverFileSet(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "dist/conf/app.yml", "dist/conf/secret.key", "dist/bin/run")
	r := NewResolver(dir, false, nil)

	fs, err := r.FileSet(FileSet{Input: "dist", Output: "opt", Excludes: []string{"**/*.key"}}, nil)
	if err != nil {
		t.Fatalf("FileSet failed: %v", err)
	}
	want := []string{"bin/run", "conf/app.yml"}
	if strings.Join(fs.Paths, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected paths %v", fs.Paths)
	}

	empty, err := r.FileSet(FileSet{Input: "nothing"}, nil)
	if err != nil || len(empty.Paths) != 0 {
		t.Errorf("missing optional input should resolve to nothing, got %v, %v", empty, err)
	}
	_, err = r.FileSet(FileSet{Input: "nothing", FailOnMissingInput: true}, nil)
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound, got %v", err)
	}
}

func TestResolverHashes(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "abc")
	r := NewResolver(dir, false, nil)
	a, _ := r.Artifact(Artifact{Path: "abc"}, nil)

	sums, err := r.Hashes(a, SHA256, SHA512, BLAKE3)
	if err != nil {
		t.Fatalf("Hashes failed: %v", err)
	}
	// The fixture file contains its own name.
	if sums[SHA256] != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("unexpected sha256 %s", sums[SHA256])
	}
	if len(sums[SHA512]) != 128 || len(sums[BLAKE3]) != 64 {
		t.Errorf("unexpected digest lengths: %v", sums)
	}
	if _, err := r.Hash(a.Path, "md4"); err == nil {
		t.Error("expected unsupported algorithm to fail")
	}
}
