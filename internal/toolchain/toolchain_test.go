package toolchain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/open-edge-platform/release-packager/internal/platform"
	"github.com/open-edge-platform/release-packager/internal/utils/shell"
)

func fakeJDK(t *testing.T, release string) string {
	t.Helper()
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "release"), []byte(release), 0o644); err != nil {
		t.Fatal(err)
	}
	return home
}

func TestParseRelease(t *testing.T) {
	props := ParseRelease(`# comment
IMPLEMENTOR="Eclipse Adoptium"
JAVA_VERSION="17.0.9"
GRAALVM_VERSION=23.0.2
MODULES="java.base java.logging"
garbage line
`)
	want := map[string]string{
		"IMPLEMENTOR":     "Eclipse Adoptium",
		"JAVA_VERSION":    "17.0.9",
		"GRAALVM_VERSION": "23.0.2",
		"MODULES":         "java.base java.logging",
	}
	if diff := cmp.Diff(want, props); diff != "" {
		t.Errorf("ParseRelease mismatch (-want +got):\n%s", diff)
	}
}

func TestMajorVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"17.0.9", 17, false},
		{"21", 21, false},
		{"1.8.0_292", 8, false},
		{"11.0.2+9", 11, false},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := MajorVersion(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("MajorVersion(%q) = %d, %v; want %d, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestCheckSameMajor(t *testing.T) {
	host, err := Open(fakeJDK(t, `JAVA_VERSION="21.0.1"`), "linux-x86_64")
	if err != nil {
		t.Fatal(err)
	}
	same, _ := Open(fakeJDK(t, `JAVA_VERSION="21.0.3"`), "osx-aarch_64")
	older, _ := Open(fakeJDK(t, `JAVA_VERSION="17.0.9"`), "windows-x86_64")

	if err := CheckSameMajor(host, same); err != nil {
		t.Errorf("expected matching majors to pass, got %v", err)
	}
	if err := CheckSameMajor(host, same, older); !errors.Is(err, ErrVersionIncompatible) {
		t.Errorf("expected ErrVersionIncompatible, got %v", err)
	}
}

func TestCheckMinimumAndMissingKey(t *testing.T) {
	jdk, _ := Open(fakeJDK(t, `JAVA_VERSION="15.0.2"`), "")
	if err := CheckMinimum(jdk, 16); !errors.Is(err, ErrVersionIncompatible) {
		t.Errorf("expected ErrVersionIncompatible, got %v", err)
	}
	if _, err := jdk.Version(KeyGraalVMVersion); !errors.Is(err, ErrVersionIncompatible) {
		t.Errorf("expected missing key to be incompatible, got %v", err)
	}
	if _, err := Open(t.TempDir(), ""); err == nil {
		t.Error("expected missing release file to fail")
	}
}

func TestToolPath(t *testing.T) {
	if got := ToolPath("/jdk", ToolJlink, "linux-x86_64"); got != filepath.Join("/jdk", "bin", "jlink") {
		t.Errorf("unexpected linux path %q", got)
	}
	if got := ToolPath("/jdk", ToolJpackage, platform.Tag("windows-x86_64")); got != filepath.Join("/jdk", "bin", "jpackage.exe") {
		t.Errorf("unexpected windows path %q", got)
	}
	if got := ToolPath("/graal", ToolGu, platform.Tag("windows-x86_64")); got != filepath.Join("/graal", "bin", "gu.cmd") {
		t.Errorf("unexpected gu path %q", got)
	}
}

func TestParseModuleList(t *testing.T) {
	got, err := ParseModuleList("java.base,java.logging\n")
	if err != nil {
		t.Fatalf("ParseModuleList failed: %v", err)
	}
	if diff := cmp.Diff([]string{"java.base", "java.logging"}, got); diff != "" {
		t.Errorf("modules mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"", "\n\n", "java.base\njava.sql\n", " , \n"} {
		if _, err := ParseModuleList(bad); !errors.Is(err, ErrModuleResolution) {
			t.Errorf("ParseModuleList(%q) expected ErrModuleResolution, got %v", bad, err)
		}
	}
}

func TestResolveModules(t *testing.T) {
	originalExecutor := shell.Default
	defer func() { shell.Default = originalExecutor }()

	jdk, _ := Open(fakeJDK(t, `JAVA_VERSION="21"`), "linux-x86_64")

	mock := shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: "jdeps", Output: "java.base,java.logging\n"},
	})
	shell.Default = mock
	got, err := ResolveModules(jdk, t.TempDir(), nil, []string{"com.acme.app"}, []string{"app.jar"}, "21")
	if err != nil {
		t.Fatalf("ResolveModules failed: %v", err)
	}
	if diff := cmp.Diff([]string{"com.acme.app", "java.base", "java.logging"}, got); diff != "" {
		t.Errorf("modules mismatch (-want +got):\n%s", diff)
	}
	if calls := mock.CallsMatching("--print-module-deps"); len(calls) != 1 {
		t.Errorf("expected one jdeps call, got %d", len(calls))
	}

	shell.Default = shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: "jdeps", Output: "java.base\njava.sql\n"},
	})
	if _, err := ResolveModules(jdk, t.TempDir(), nil, nil, []string{"app.jar"}, "21"); !errors.Is(err, ErrModuleResolution) {
		t.Errorf("expected ErrModuleResolution, got %v", err)
	}

	declared := shell.NewMockExecutor(nil)
	shell.Default = declared
	got, err = ResolveModules(jdk, t.TempDir(), []string{"java.desktop"}, nil, nil, "21")
	if err != nil || len(got) != 1 || len(declared.Calls()) != 0 {
		t.Errorf("declared modules must skip jdeps: %v %v %d", got, err, len(declared.Calls()))
	}
}
