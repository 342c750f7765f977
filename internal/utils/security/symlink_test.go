package security

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func makeSymlink(t *testing.T, target, link string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlink tests require a Unix host")
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}
}

func TestCheckSymlink_RegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packager.yml")
	if err := os.WriteFile(path, []byte("project: {}"), 0600); err != nil {
		t.Fatal(err)
	}

	info, err := CheckSymlink(path, RejectSymlinks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.IsSymlink || info.ResolvedPath != path {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestCheckSymlink_Policies(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.yml")
	link := filepath.Join(dir, "link.yml")
	if err := os.WriteFile(target, []byte("workers: 2"), 0600); err != nil {
		t.Fatal(err)
	}
	makeSymlink(t, target, link)

	if _, err := CheckSymlink(link, RejectSymlinks); err == nil {
		t.Error("expected rejection of symlink")
	}

	info, err := CheckSymlink(link, ResolveSymlinks)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	resolvedTarget, _ := filepath.EvalSymlinks(target)
	if info.ResolvedPath != resolvedTarget {
		t.Errorf("expected resolved path %s, got %s", resolvedTarget, info.ResolvedPath)
	}

	info, err = CheckSymlink(link, AllowSymlinks)
	if err != nil || !info.IsSymlink || info.ResolvedPath != link {
		t.Errorf("allow policy returned %+v, %v", info, err)
	}

	if _, err := CheckSymlink(link, SymlinkPolicy(42)); err == nil {
		t.Error("expected error for invalid policy")
	}
}

func TestSafeReadFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.yml")
	if err := os.WriteFile(target, []byte("content"), 0600); err != nil {
		t.Fatal(err)
	}
	data, err := SafeReadFile(target, RejectSymlinks)
	if err != nil || string(data) != "content" {
		t.Fatalf("SafeReadFile = %q, %v", data, err)
	}

	link := filepath.Join(dir, "link.yml")
	makeSymlink(t, target, link)
	if _, err := SafeReadFile(link, RejectSymlinks); err == nil {
		t.Error("expected symlink read to be rejected")
	}
	if _, err := SafeReadFile(filepath.Join(dir, "missing.yml"), RejectSymlinks); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSafeWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := SafeWriteFile(path, []byte("workers: 4\n"), 0600, RejectSymlinks); err != nil {
		t.Fatalf("SafeWriteFile failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "workers: 4\n" {
		t.Errorf("unexpected content %q", data)
	}

	link := filepath.Join(dir, "link.yml")
	makeSymlink(t, path, link)
	if err := SafeWriteFile(link, []byte("x"), 0600, RejectSymlinks); err == nil {
		t.Error("expected write through symlink to be rejected")
	}
}
