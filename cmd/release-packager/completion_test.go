package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// runInstallCompletion executes install-completion below a minimal root.
func runInstallCompletion(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "release-packager"}
	root.AddCommand(createInstallCompletionCommand())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"install-completion"}, args...))
	err := root.Execute()
	return out.String(), err
}

// fakeHome points the home directory lookups at a temp directory.
func fakeHome(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("USERPROFILE", tmp)
	t.Setenv(completionScopeEnv, "")
	return tmp
}

func TestInstallCompletion_UnknownShellDetection(t *testing.T) {
	fakeHome(t)
	t.Setenv("SHELL", "/bin/unknown-shell")
	t.Setenv("PSModulePath", "")

	_, err := runInstallCompletion(t)
	if err == nil || !strings.Contains(err.Error(), "unsupported shell") {
		t.Fatalf("expected unsupported shell error, got %v", err)
	}
}

func TestInstallCompletion_NoShellDetected(t *testing.T) {
	fakeHome(t)
	t.Setenv("SHELL", "")
	t.Setenv("PSModulePath", "")

	_, err := runInstallCompletion(t)
	if err == nil || !strings.Contains(err.Error(), "could not detect shell") {
		t.Fatalf("expected detection error, got %v", err)
	}
}

func TestInstallCompletion_WritesPerShell(t *testing.T) {
	tests := []struct {
		shell string
		path  string
	}{
		{"bash", filepath.Join(".bash_completion.d", "release-packager.bash")},
		{"zsh", filepath.Join(".zsh", "completion", "_release-packager")},
		{"fish", filepath.Join(".config", "fish", "completions", "release-packager.fish")},
		{"powershell", filepath.Join("Documents", "WindowsPowerShell", "release-packager-completion.ps1")},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			home := fakeHome(t)
			out, err := runInstallCompletion(t, "--shell", tt.shell)
			if err != nil {
				t.Fatalf("completion for %s failed: %v", tt.shell, err)
			}
			target := filepath.Join(home, tt.path)
			data, err := os.ReadFile(target)
			if err != nil {
				t.Fatalf("expected completion file at %s: %v", target, err)
			}
			if !strings.Contains(string(data), "release-packager") {
				t.Errorf("completion script does not mention the command")
			}
			if !strings.Contains(out, target) {
				t.Errorf("output %q does not name %s", out, target)
			}
		})
	}
}

func TestInstallCompletion_DetectsShellFromEnv(t *testing.T) {
	home := fakeHome(t)
	t.Setenv("SHELL", "/usr/bin/zsh")

	if _, err := runInstallCompletion(t); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".zsh", "completion", "_release-packager")); err != nil {
		t.Fatalf("zsh completion not installed: %v", err)
	}
}

func TestInstallCompletion_RequiresForceToOverwrite(t *testing.T) {
	fakeHome(t)
	if _, err := runInstallCompletion(t, "--shell", "fish"); err != nil {
		t.Fatalf("first install failed: %v", err)
	}
	_, err := runInstallCompletion(t, "--shell", "fish")
	if err == nil || !strings.Contains(err.Error(), "--force") {
		t.Fatalf("expected overwrite error, got %v", err)
	}
	if _, err := runInstallCompletion(t, "--shell", "fish", "--force"); err != nil {
		t.Fatalf("forced install failed: %v", err)
	}
}

func TestInstallCompletion_Print(t *testing.T) {
	home := fakeHome(t)
	out, err := runInstallCompletion(t, "--shell", "bash", "--print")
	if err != nil {
		t.Fatalf("print failed: %v", err)
	}
	if !strings.Contains(out, "release-packager") {
		t.Errorf("printed script does not mention the command")
	}
	if _, err := os.Stat(filepath.Join(home, ".bash_completion.d")); !os.IsNotExist(err) {
		t.Errorf("--print should not install anything, stat err=%v", err)
	}
}

func TestInstallCompletion_UnsupportedShellFlag(t *testing.T) {
	fakeHome(t)
	_, err := runInstallCompletion(t, "--shell", "tcsh")
	if err == nil || !strings.Contains(err.Error(), "unsupported shell type") {
		t.Fatalf("expected unsupported shell type error, got %v", err)
	}
}
