package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/open-edge-platform/release-packager/internal/archive"
	"github.com/open-edge-platform/release-packager/internal/matrix"
	"github.com/open-edge-platform/release-packager/internal/platform"
)

const samplePackaging = `project:
  name: demo
  version: 1.0.0
  description: Demo application
  authors: [Jane Doe]
  license: Apache-2.0
profiles:
  - name: dist
    kind: archive
    platform: Linux-amd64
    formats: [zip, tgz, zip]
    artifacts:
      - path: "build/{{.projectName}}.jar"
        platform: darwin-arm64
    globs:
      - pattern: "glob:*.txt"
        directory: docs
    matrix:
      vars:
        os: [linux, windows]
        arch: [x86_64, aarch_64]
    options:
      timestamp: "2024-01-01T00:00:00Z"
      longFileMode: posix
  - name: app
    kind: java-archive
    java:
      mainJar:
        path: build/app.jar
      settings:
        mainClass: com.example.Main
  - name: demo-deb
    kind: deb
    deb:
      assemblerRef: app
      depends: [libc6]
`

func writePackaging(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultPackagingFile)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write packaging file: %v", err)
	}
	return path
}

func TestLoadPackaging(t *testing.T) {
	path := writePackaging(t, samplePackaging)

	pf, err := LoadPackaging(path)
	if err != nil {
		t.Fatalf("LoadPackaging failed: %v", err)
	}
	if pf.BaseDir != filepath.Dir(path) {
		t.Errorf("expected base dir %s, got %s", filepath.Dir(path), pf.BaseDir)
	}
	if pf.Project.Name != "demo" || pf.Project.Version != "1.0.0" {
		t.Errorf("unexpected project %+v", pf.Project)
	}
	if len(pf.Profiles) != 3 {
		t.Fatalf("expected 3 profiles, got %d", len(pf.Profiles))
	}

	dist := pf.Profile("dist")
	if dist.Platform != platform.Tag("linux-x86_64") {
		t.Errorf("expected normalized profile platform, got %q", dist.Platform)
	}
	if dist.Artifacts[0].Platform != platform.Tag("osx-aarch_64") {
		t.Errorf("expected normalized artifact platform, got %q", dist.Artifacts[0].Platform)
	}

	wantVars := []matrix.Variable{
		{Name: "os", Values: []string{"linux", "windows"}},
		{Name: "arch", Values: []string{"x86_64", "aarch_64"}},
	}
	if diff := cmp.Diff(wantVars, dist.Matrix.Vars); diff != "" {
		t.Errorf("matrix variables mismatch (-want +got):\n%s", diff)
	}

	formats, err := dist.ArchiveFormats()
	if err != nil {
		t.Fatalf("ArchiveFormats failed: %v", err)
	}
	if diff := cmp.Diff([]archive.Format{archive.Zip, archive.TarGz}, formats); diff != "" {
		t.Errorf("formats mismatch (-want +got):\n%s", diff)
	}

	deb := pf.Profile("demo-deb")
	if deb.Ref() != "app" {
		t.Errorf("expected deb to reference app, got %q", deb.Ref())
	}
	if pf.Profile("missing") != nil {
		t.Error("expected nil for unknown profile")
	}
}

func TestLoadPackagingRejectsSymlink(t *testing.T) {
	target := writePackaging(t, samplePackaging)
	link := filepath.Join(t.TempDir(), "link.yml")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if _, err := LoadPackaging(link); err == nil {
		t.Error("expected symlinked packaging file to be rejected")
	}
}

func TestLoadPackagingUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packaging.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadPackaging(path)
	if err == nil || !strings.Contains(err.Error(), "unsupported file format") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}

func TestParsePackagingSemanticErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "duplicate profile names",
			doc: `project: {name: demo, version: "1"}
profiles:
  - {name: a, kind: archive}
  - {name: a, kind: archive}`,
			wantErr: "duplicate profile name",
		},
		{
			name: "unknown reference",
			doc: `project: {name: demo, version: "1"}
profiles:
  - {name: d, kind: deb, deb: {assemblerRef: nope}}`,
			wantErr: "unknown profile",
		},
		{
			name: "self reference",
			doc: `project: {name: demo, version: "1"}
profiles:
  - {name: d, kind: deb, deb: {assemblerRef: d}}`,
			wantErr: "references itself",
		},
		{
			name: "deb consuming deb",
			doc: `project: {name: demo, version: "1"}
profiles:
  - {name: a, kind: deb}
  - {name: b, kind: deb, deb: {assemblerRef: a}}`,
			wantErr: "cannot consume",
		},
		{
			name: "installer consuming archive",
			doc: `project: {name: demo, version: "1"}
profiles:
  - {name: a, kind: archive}
  - name: b
    kind: jpackage
    jpackage: {runtimeImageRef: a, mainJar: {path: app.jar}}`,
			wantErr: "cannot consume",
		},
		{
			name: "mismatched kind block",
			doc: `project: {name: demo, version: "1"}
profiles:
  - {name: a, kind: archive, deb: {packageName: demo}}`,
			wantErr: "settings for deb",
		},
		{
			name: "missing java block",
			doc: `project: {name: demo, version: "1"}
profiles:
  - {name: a, kind: java-archive}`,
			wantErr: "need a java block",
		},
		{
			name: "installer without runtime",
			doc: `project: {name: demo, version: "1"}
profiles:
  - name: a
    kind: jpackage
    jpackage: {mainJar: {path: app.jar}}`,
			wantErr: "runtimeImages or runtimeImageRef",
		},
		{
			name: "unknown platform",
			doc: `project: {name: demo, version: "1"}
profiles:
  - {name: a, kind: archive, platform: solaris-sparc}`,
			wantErr: "unknown platform os",
		},
		{
			name: "read-only format",
			doc: `project: {name: demo, version: "1"}
profiles:
  - {name: a, kind: archive, formats: [tar.bz2]}`,
			wantErr: "not written",
		},
		{
			name: "bad timestamp",
			doc: `project: {name: demo, version: "1"}
profiles:
  - {name: a, kind: archive, options: {timestamp: yesterday}}`,
			wantErr: "invalid timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePackaging([]byte(tt.doc))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestParsePackagingSchemaError(t *testing.T) {
	_, err := ParsePackaging([]byte("project: {name: demo}\nprofiles: []\n"))
	if err == nil || !strings.Contains(err.Error(), "packaging validation error") {
		t.Errorf("expected schema validation error, got %v", err)
	}
}

func TestSemanticErrorsMatchSentinel(t *testing.T) {
	_, err := ParsePackaging([]byte(`project: {name: demo, version: "1"}
profiles:
  - {name: a, kind: archive}
  - {name: a, kind: archive}`))
	if !errors.Is(err, ErrInvalidPackaging) {
		t.Errorf("expected ErrInvalidPackaging, got %v", err)
	}
}

func TestDebDefaultsBlock(t *testing.T) {
	pf, err := ParsePackaging([]byte(`project: {name: demo, version: "1"}
profiles:
  - {name: pkg, kind: deb}`))
	if err != nil {
		t.Fatalf("ParsePackaging failed: %v", err)
	}
	if pf.Profiles[0].Deb == nil {
		t.Error("expected deb block to be created")
	}
	formats, err := pf.Profiles[0].ArchiveFormats()
	if err != nil || formats != nil {
		t.Errorf("deb profiles have no archive formats, got %v, %v", formats, err)
	}
}

func TestArchiveOptionsResolve(t *testing.T) {
	opts, err := ArchiveOptions{Timestamp: "2024-05-06T07:08:09+02:00", RootEntryName: "demo"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := time.Date(2024, 5, 6, 5, 8, 9, 0, time.UTC)
	if opts.Timestamp == nil || !opts.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, opts.Timestamp)
	}
	if opts.RootEntryName != "demo" {
		t.Errorf("unexpected root entry %q", opts.RootEntryName)
	}

	opts, err = ArchiveOptions{Timestamp: "1700000000"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed for unix seconds: %v", err)
	}
	if opts.Timestamp.Unix() != 1700000000 {
		t.Errorf("expected unix timestamp, got %v", opts.Timestamp)
	}

	if _, err := (ArchiveOptions{LongFileMode: "truncate"}).Resolve(); err == nil {
		t.Error("expected unknown long file mode to fail")
	}
	opts, err = ArchiveOptions{}.Resolve()
	if err != nil || opts.Timestamp != nil {
		t.Errorf("empty options should resolve to defaults, got %+v, %v", opts, err)
	}
}

func TestProfileEnabled(t *testing.T) {
	p := &Profile{Name: "a", Kind: KindArchive, Active: "release"}
	if !p.Enabled(false) || p.Enabled(true) {
		t.Error("release profiles run only for releases")
	}
}

func TestGlobalConfigDefaults(t *testing.T) {
	cfg := DefaultGlobalConfig()
	if cfg.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Workers)
	}
	if cfg.WorkDir != "./build/work" || cfg.OutputDir != "./build/dist" {
		t.Errorf("unexpected default directories: %s, %s", cfg.WorkDir, cfg.OutputDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestGlobalConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GlobalConfig)
	}{
		{"zero workers", func(c *GlobalConfig) { c.Workers = 0 }},
		{"too many workers", func(c *GlobalConfig) { c.Workers = 65 }},
		{"empty work dir", func(c *GlobalConfig) { c.WorkDir = "" }},
		{"empty output dir", func(c *GlobalConfig) { c.OutputDir = "" }},
		{"bad level", func(c *GlobalConfig) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGlobalConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadGlobalConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "release-packager-config.yml")
	content := `workers: 2
work_dir: /tmp/rp/work
output_dir: /tmp/rp/dist
toolchains:
  java_home: /opt/jdk-21
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadGlobalConfig(path)
	if err != nil {
		t.Fatalf("LoadGlobalConfig failed: %v", err)
	}
	if cfg.Workers != 2 || cfg.WorkDir != "/tmp/rp/work" || cfg.Logging.Level != "debug" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Toolchains.JavaHome != "/opt/jdk-21" {
		t.Errorf("unexpected java home %q", cfg.Toolchains.JavaHome)
	}

	missing, err := LoadGlobalConfig(filepath.Join(dir, "absent.yml"))
	if err != nil || missing.Workers != 4 {
		t.Errorf("missing file should yield defaults, got %+v, %v", missing, err)
	}

	bad := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(bad, []byte("workers: 100\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGlobalConfig(bad); err == nil {
		t.Error("expected schema validation to reject 100 workers")
	}

	toml := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(toml, []byte("workers = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGlobalConfig(toml); err == nil {
		t.Error("expected unsupported format error")
	}
}

func TestSaveGlobalConfigRoundTrip(t *testing.T) {
	cfg := DefaultGlobalConfig()
	cfg.Workers = 6
	cfg.Toolchains.Upx = "/usr/bin/upx"
	cfg.Logging.File = "/tmp/rp.log"
	path := filepath.Join(t.TempDir(), "nested", "config.yml")

	if err := cfg.SaveGlobalConfigWithComments(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "# release-packager - Global Configuration") {
		t.Error("expected header comment in saved file")
	}

	loaded, err := LoadGlobalConfig(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Workers != 6 || loaded.Toolchains.Upx != "/usr/bin/upx" || loaded.Logging.File != "/tmp/rp.log" {
		t.Errorf("round trip lost values: %+v", loaded)
	}

	if err := cfg.SaveGlobalConfigWithComments(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestGlobalSingleton(t *testing.T) {
	original := Global()
	defer SetGlobal(original)

	custom := DefaultGlobalConfig()
	custom.Workers = 9
	custom.TempDir = t.TempDir()
	SetGlobal(custom)

	if Workers() != 9 {
		t.Errorf("expected 9 workers, got %d", Workers())
	}
	if TempDir() != custom.TempDir {
		t.Errorf("unexpected temp dir %s", TempDir())
	}
	dir, err := EnsureTempDir("unpack")
	if err != nil {
		t.Fatalf("EnsureTempDir failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected %s to exist: %v", dir, err)
	}
	workDir, err := WorkDir()
	if err != nil || !filepath.IsAbs(workDir) {
		t.Errorf("expected absolute work dir, got %s, %v", workDir, err)
	}
}

func TestGetConfigPaths(t *testing.T) {
	paths := GetConfigPaths()
	if len(paths) == 0 || paths[0] != "release-packager-config.yml" {
		t.Errorf("unexpected config search order: %v", paths)
	}
	if paths[len(paths)-1] != "/etc/release-packager/config.yaml" {
		t.Errorf("system path should be searched last, got %v", paths)
	}
}
