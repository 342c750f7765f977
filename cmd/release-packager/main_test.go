package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-edge-platform/release-packager/internal/config"
)

// useGlobal installs cfg as the global configuration for one test.
func useGlobal(t *testing.T, cfg *config.GlobalConfig) {
	t.Helper()
	previous := config.Global()
	config.SetGlobal(cfg)
	t.Cleanup(func() { config.SetGlobal(previous) })
}

// writePackaging writes a packaging file and the inputs it references.
func writePackaging(t *testing.T, doc string, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, config.DefaultPackagingFile)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := createRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestMain_CreateRootCommand(t *testing.T) {
	root := createRootCommand()

	if root.Use != "release-packager" {
		t.Errorf("expected Use to be 'release-packager', got %q", root.Use)
	}
	if root.Short == "" || root.Long == "" {
		t.Error("descriptions should not be empty")
	}

	for _, name := range []string{"config", "log-level", "log-file"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag %q not registered", name)
		}
	}
}

func TestMain_SubcommandPresence(t *testing.T) {
	root := createRootCommand()
	want := []string{"build", "validate", "clean", "version", "config", "install-completion"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestMain_ApplyLogOverrides(t *testing.T) {
	cfg := config.DefaultGlobalConfig()
	useGlobal(t, cfg)

	logLevel, logFile = "debug", ""
	defer func() { logLevel, logFile = "", "" }()

	if err := applyLogOverrides(cfg); err != nil {
		t.Fatalf("applyLogOverrides failed: %v", err)
	}
	if config.Global().Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", config.Global().Logging.Level)
	}
}

func TestMain_ApplyLogOverridesNoop(t *testing.T) {
	cfg := config.DefaultGlobalConfig()
	cfg.Logging.Level = "warn"
	useGlobal(t, cfg)

	logLevel, logFile = "", ""
	if err := applyLogOverrides(cfg); err != nil {
		t.Fatalf("applyLogOverrides failed: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level changed without flags: %q", cfg.Logging.Level)
	}
}

func TestMain_RootCommandHelp(t *testing.T) {
	out, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, want := range []string{"release-packager", "build", "validate", "clean"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}
