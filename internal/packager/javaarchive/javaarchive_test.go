package javaarchive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/packager/packagertest"
	"github.com/open-edge-platform/release-packager/internal/source"
)

func javaProfile() *config.Profile {
	return &config.Profile{
		Name:    "app",
		Kind:    config.KindJavaArchive,
		Formats: []string{"zip"},
		Artifacts: []source.Artifact{
			{Path: "LICENSE"},
		},
		Java: &config.JavaArchive{
			MainJar: source.Artifact{Path: "target/demo-{{.projectVersion}}.jar"},
			Jars: []source.Glob{
				{Pattern: "glob:*.jar", Directory: "target/deps"},
				{Pattern: "glob:*.jar", Directory: "target/natives", Platform: "linux-x86_64"},
			},
			Java: config.JavaSettings{
				MainClass:  "com.acme.Main",
				JvmOptions: []string{"-Xmx512m"},
			},
			Executable: config.Executable{Name: "demo-cli", UnixExtension: "sh"},
		},
	}
}

func writeInputs(t *testing.T, base string) {
	t.Helper()
	packagertest.WriteTree(t, base, map[string]string{
		"LICENSE":                         "license",
		"target/demo-1.0.0.jar":           "main",
		"target/deps/commons.jar":         "commons",
		"target/deps/logging.jar":         "logging",
		"target/natives/native-linux.jar": "native",
	})
}

func TestBuildJavaArchive(t *testing.T) {
	Register()
	profile := javaProfile()
	pf := packagertest.Project(t, profile)
	writeInputs(t, pf.BaseDir)

	r := packagertest.Runner(t, pf)
	report, err := packagertest.Run(t, r)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	outs := report.Outputs["app"]
	if len(outs) != 1 || filepath.Base(outs[0].Path) != "demo-1.0.0.zip" {
		t.Fatalf("unexpected outputs %v", outs)
	}

	dir, files := packagertest.Unpacked(t, outs[0].Path)
	want := []string{
		"demo-1.0.0/LICENSE",
		"demo-1.0.0/bin/demo-cli.bat",
		"demo-1.0.0/bin/demo-cli.sh",
		"demo-1.0.0/lib/commons.jar",
		"demo-1.0.0/lib/demo-1.0.0.jar",
		"demo-1.0.0/lib/logging.jar",
		"demo-1.0.0/lib/native-linux.jar",
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("unexpected distribution content (-want +got):\n%s", diff)
	}

	script, err := os.ReadFile(filepath.Join(dir, "demo-1.0.0", "bin", "demo-cli.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(script), `-Xmx512m -cp "$APP_HOME/lib/*" com.acme.Main "$@"`) {
		t.Errorf("unexpected unix launcher:\n%s", script)
	}
	batch, err := os.ReadFile(filepath.Join(dir, "demo-1.0.0", "bin", "demo-cli.bat"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(batch), `com.acme.Main %*`) {
		t.Errorf("unexpected windows launcher:\n%s", batch)
	}
}

func TestStageForPlatformKeepsOneLauncher(t *testing.T) {
	Register()
	profile := javaProfile()
	profile.Platform = "windows-x86_64"
	profile.Java.Java = config.JavaSettings{}
	pf := packagertest.Project(t, profile)
	writeInputs(t, pf.BaseDir)

	r := packagertest.Runner(t, pf)
	if _, err := packagertest.Run(t, r); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	work := filepath.Join(r.WorkRoot, "java-archive", "app")
	if _, err := os.Stat(filepath.Join(work, "bin", "demo-cli.sh")); !os.IsNotExist(err) {
		t.Errorf("unix launcher must not be staged for windows, stat err: %v", err)
	}
	batch, err := os.ReadFile(filepath.Join(work, "bin", "demo-cli.bat"))
	if err != nil {
		t.Fatalf("windows launcher missing: %v", err)
	}
	if !strings.Contains(string(batch), `-jar "%APP_HOME%\lib\demo-1.0.0.jar"`) {
		t.Errorf("launcher should run the main jar:\n%s", batch)
	}
	if _, err := os.Stat(filepath.Join(work, "lib", "native-linux.jar")); !os.IsNotExist(err) {
		t.Error("linux-only jar must not be staged for windows")
	}
}

func TestMissingMainJarFails(t *testing.T) {
	Register()
	profile := javaProfile()
	pf := packagertest.Project(t, profile)

	r := packagertest.Runner(t, pf)
	_, err := packagertest.Run(t, r)
	if err == nil || !strings.Contains(err.Error(), "main jar") {
		t.Errorf("expected missing main jar error, got %v", err)
	}
}

func TestSkipTemplates(t *testing.T) {
	Register()
	profile := javaProfile()
	profile.SkipTemplates = []string{"launcher.bat"}
	pf := packagertest.Project(t, profile)
	writeInputs(t, pf.BaseDir)

	r := packagertest.Runner(t, pf)
	if _, err := packagertest.Run(t, r); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	bin, err := os.ReadDir(filepath.Join(r.WorkRoot, "java-archive", "app", "bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(bin) != 1 || bin[0].Name() != "demo-cli.sh" {
		t.Errorf("expected only the unix launcher, got %v", bin)
	}
	info, err := os.Stat(filepath.Join(r.WorkRoot, "java-archive", "app", "bin", "demo-cli.sh"))
	if err == nil && info.Mode().Perm()&0o100 == 0 {
		t.Error("launcher should be executable")
	}
}
