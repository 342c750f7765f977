package stage

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/open-edge-platform/release-packager/internal/source"
	"github.com/open-edge-platform/release-packager/internal/utils/file"
)

func TestSkipRules(t *testing.T) {
	rules := SkipRules{"launcher.bat"}
	tests := []struct {
		name string
		want bool
	}{
		{"bin/launcher.bat", true},
		{"bin/launcher.bat.tpl", true},
		{"README.tpl", false},
	}
	for _, tt := range tests {
		if got := rules.Skip(tt.name); got != tt.want {
			t.Errorf("Skip(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	regex := SkipRules{`bin/.*\.sh`}
	if !regex.Skip("bin/run.sh.tpl") {
		t.Error("expected regex rule to match after suffix stripping")
	}
	if regex.Skip("lib/run.sh") {
		t.Error("regex rule must be anchored")
	}
	exact := SkipRules{"LICENSE"}
	if !exact.Skip("LICENSE") || exact.Skip("NOTICE") {
		t.Error("unexpected exact rule behavior")
	}
	if (SkipRules{"[unclosed"}).Skip("README") {
		t.Error("invalid regex must not match")
	}
}

func TestTemplateRenderer(t *testing.T) {
	r := TemplateRenderer{}
	got, err := r.Render("{{.projectName}}-{{.projectVersion | upper}}", map[string]any{
		"projectName":    "demo",
		"projectVersion": "1.0.0-rc",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != "demo-1.0.0-RC" {
		t.Errorf("unexpected render %q", got)
	}
	if _, err := r.Render("{{.missing}}", map[string]any{}); err == nil {
		t.Error("expected unknown property to fail")
	}
	if _, err := r.Render("{{.broken", nil); err == nil {
		t.Error("expected parse error")
	}
	got, _ = r.Render(`{{default "none" .v}}`, map[string]any{"v": ""})
	if got != "none" {
		t.Errorf("default func returned %q", got)
	}
}

func TestCopyTemplates(t *testing.T) {
	userDir := t.TempDir()
	os.MkdirAll(filepath.Join(userDir, "bin"), 0o755)
	os.WriteFile(filepath.Join(userDir, "README.md.tpl"), []byte("user {{.projectName}}\n"), 0o644)
	os.WriteFile(filepath.Join(userDir, "logo.png"), []byte{0x89, 'P', 'N', 'G', '{', '{'}, 0o644)

	defaults := fstest.MapFS{
		"README.md.tpl":        {Data: []byte("default readme\n")},
		"bin/launcher.tpl":     {Data: []byte("#!/bin/sh\nexec java -jar {{.projectName}}.jar\n")},
		"bin/launcher.bat.tpl": {Data: []byte("java -jar {{.projectName}}.jar\r\n")},
	}

	dest := t.TempDir()
	written, err := CopyTemplates(dest, TemplateSet{
		Dir:      userDir,
		Defaults: defaults,
		Skip:     SkipRules{"launcher.bat"},
		Props:    map[string]any{"projectName": "demo"},
		Remap: func(name string) string {
			if name == "bin/launcher" {
				return "bin/demo"
			}
			return name
		},
	})
	if err != nil {
		t.Fatalf("CopyTemplates failed: %v", err)
	}
	if diff := cmp.Diff([]string{"README.md", "bin/demo", "logo.png"}, written); diff != "" {
		t.Errorf("written mismatch (-want +got):\n%s", diff)
	}

	readme, _ := os.ReadFile(filepath.Join(dest, "README.md"))
	if string(readme) != "user demo\n" {
		t.Errorf("user template must override default, got %q", readme)
	}
	logo, _ := os.ReadFile(filepath.Join(dest, "logo.png"))
	if string(logo) != "\x89PNG{{" {
		t.Errorf("binary template must be copied verbatim, got %q", logo)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dest, "bin", "demo"))
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm()&0o111 == 0 {
			t.Errorf("launcher is not executable: %v", info.Mode())
		}
	}
}

func TestCopyArtifacts(t *testing.T) {
	src := t.TempDir()
	os.WriteFile(filepath.Join(src, "app.jar"), []byte("app"), 0o644)
	os.WriteFile(filepath.Join(src, "native.so"), []byte("so"), 0o644)

	artifacts := []*source.ResolvedArtifact{
		{Path: filepath.Join(src, "app.jar"), Transform: "lib/demo.jar", Active: true},
		{Path: filepath.Join(src, "native.so"), Platform: "osx-aarch_64", Active: true},
		{Path: filepath.Join(src, "missing.txt"), Optional: true, Active: true},
		{Path: filepath.Join(src, "app.jar"), Transform: "inactive.jar", Active: false},
	}
	dest := t.TempDir()
	written, err := CopyArtifacts(dest, artifacts, "linux-x86_64", true)
	if err != nil {
		t.Fatalf("CopyArtifacts failed: %v", err)
	}
	if diff := cmp.Diff([]string{"lib/demo.jar"}, written); diff != "" {
		t.Errorf("written mismatch (-want +got):\n%s", diff)
	}

	required := []*source.ResolvedArtifact{{Path: filepath.Join(src, "missing.txt"), Active: true}}
	if _, err := CopyArtifacts(dest, required, "", false); !errors.Is(err, source.ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound, got %v", err)
	}
}

func TestRun(t *testing.T) {
	base := t.TempDir()
	os.MkdirAll(filepath.Join(base, "dist", "conf"), 0o755)
	os.WriteFile(filepath.Join(base, "dist", "conf", "app.yml"), []byte("a: 1"), 0o644)
	os.WriteFile(filepath.Join(base, "LICENSE"), []byte("MIT"), 0o644)

	workDir := filepath.Join(base, "work", "archive", "demo")
	os.MkdirAll(workDir, 0o755)
	os.WriteFile(filepath.Join(workDir, "stale.txt"), []byte("old"), 0o644)

	res, err := Run(Request{
		WorkDir: workDir,
		Templates: TemplateSet{
			Defaults: fstest.MapFS{"VERSION.tpl": {Data: []byte("{{.projectVersion}}")}},
			Props:    map[string]any{"projectVersion": "1.2.3"},
		},
		Artifacts: []*source.ResolvedArtifact{{Path: filepath.Join(base, "LICENSE"), Active: true}},
		FileSets: []*source.ResolvedFileSet{{
			Input: filepath.Join(base, "dist"), Output: "etc", Active: true, Paths: []string{"conf/app.yml"},
		}},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]string{"etc/conf/app.yml"}, res.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	got, _ := file.ListFiles(workDir)
	want := []string{"LICENSE", "VERSION", "etc/conf/app.yml"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("working directory mismatch (-want +got):\n%s", diff)
	}
	version, _ := os.ReadFile(filepath.Join(workDir, "VERSION"))
	if string(version) != "1.2.3" {
		t.Errorf("unexpected VERSION %q", version)
	}
}

func TestPrepareFailureIsStagingIO(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	os.WriteFile(blocker, []byte("x"), 0o644)
	if err := Prepare(filepath.Join(blocker, "sub")); !errors.Is(err, ErrStagingIO) {
		t.Errorf("expected ErrStagingIO, got %v", err)
	}
}
