package source

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(f), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func TestParsePattern(t *testing.T) {
	tests := []struct {
		in        string
		regex     bool
		expr      string
		recursive bool
		wantErr   bool
	}{
		{"*.jar", false, "*.jar", false, false},
		{"glob:**/*.jar", false, "**/*.jar", true, false},
		{"regex:.*\\.jar", true, ".*\\.jar", true, false},
		{"regex:app-[0-9]+\\.jar", true, "app-[0-9]+\\.jar", false, false},
		{"regex:(", false, "", false, true},
		{"glob:", false, "", false, true},
		{"glob:[a-", false, "", false, true},
	}
	for _, tt := range tests {
		p, err := ParsePattern(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePattern(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if p.Regex != tt.regex || p.Expr != tt.expr || p.Recursive != tt.recursive {
			t.Errorf("ParsePattern(%q) = %+v", tt.in, p)
		}
	}
}

func TestResolveNonRecursiveSkipsSubtrees(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "a.jar", "b.txt", "lib/c.jar", "lib/deep/d.jar")

	got, err := Resolve("*.jar", dir)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := []string{filepath.Join(dir, "a.jar")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected selection (-want +got):\n%s", diff)
	}

	got, err = Resolve("lib/*.jar", dir)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want = []string{filepath.Join(dir, "lib", "c.jar")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected selection (-want +got):\n%s", diff)
	}
}

func TestResolveRecursive(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "a.jar", "b.txt", "lib/c.jar", "lib/deep/d.jar")

	for _, pattern := range []string{"**/*.jar", "glob:**/*.jar", "regex:.*\\.jar"} {
		got, err := Resolve(pattern, dir)
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", pattern, err)
		}
		want := []string{
			filepath.Join(dir, "a.jar"),
			filepath.Join(dir, "lib", "c.jar"),
			filepath.Join(dir, "lib", "deep", "d.jar"),
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Resolve(%q) mismatch (-want +got):\n%s", pattern, diff)
		}
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "z.txt", "m/a.txt", "m/b.txt", "b.txt")

	first, err := Resolve("**/*.txt", dir)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Resolve("**/*.txt", dir)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("resolution not idempotent (-first +second):\n%s", diff)
	}
}

func TestSelectorIncludeExclude(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "README.md", "docs/guide.md", "docs/internal/notes.md", "bin/app")

	tests := []struct {
		name     string
		includes []string
		excludes []string
		want     []string
	}{
		{"default includes everything", nil, nil,
			[]string{"README.md", "bin/app", "docs/guide.md", "docs/internal/notes.md"}},
		{"exclude subtree", nil, []string{"docs/internal/**"},
			[]string{"README.md", "bin/app", "docs/guide.md"}},
		{"include markdown only", []string{"**/*.md"}, []string{"README.md"},
			[]string{"docs/guide.md", "docs/internal/notes.md"}},
		{"exclude regex", []string{"**/*"}, []string{"regex:bin/.*"},
			[]string{"README.md", "docs/guide.md", "docs/internal/notes.md"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := NewSelector(tt.includes, tt.excludes)
			if err != nil {
				t.Fatalf("NewSelector failed: %v", err)
			}
			got, err := sel.SelectRelative(dir)
			if err != nil {
				t.Fatalf("SelectRelative failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("selection mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveMissingBaseDir(t *testing.T) {
	_, err := Resolve("*.jar", filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound, got %v", err)
	}
}

func TestSelectFailsOnUnreadableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	dir := t.TempDir()
	writeTree(t, dir, "ok.txt", "locked/secret.txt")
	locked := filepath.Join(dir, "locked")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(locked, 0o755)

	sel, _ := NewSelector(nil, nil)
	if _, err := sel.SelectRelative(dir); err == nil {
		t.Error("expected unreadable directory to fail the selection")
	}
}
