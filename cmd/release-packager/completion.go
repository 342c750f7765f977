package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/release-packager/internal/utils/security"
	"github.com/spf13/cobra"
)

// completionScopeEnv selects the system-wide bash directory when set to "system".
const completionScopeEnv = "RELEASE_PACKAGER_COMPLETION_SCOPE"

// completionTarget describes how one shell's script is generated and where
// it is installed relative to the home directory.
type completionTarget struct {
	dir  string
	file string
	gen  func(root *cobra.Command, w io.Writer) error
}

var completionTargets = map[string]completionTarget{
	"bash": {
		dir:  ".bash_completion.d",
		file: "release-packager.bash",
		gen:  func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletion(w) },
	},
	"zsh": {
		dir:  filepath.Join(".zsh", "completion"),
		file: "_release-packager",
		gen:  func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
	},
	"fish": {
		dir:  filepath.Join(".config", "fish", "completions"),
		file: "release-packager.fish",
		gen:  func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
	},
	"powershell": {
		dir:  filepath.Join("Documents", "WindowsPowerShell"),
		file: "release-packager-completion.ps1",
		gen:  func(root *cobra.Command, w io.Writer) error { return root.GenPowerShellCompletion(w) },
	},
}

// createInstallCompletionCommand creates the install-completion subcommand
func createInstallCompletionCommand() *cobra.Command {
	installCompletionCmd := &cobra.Command{
		Use:   "install-completion",
		Short: "Install shell completion script",
		Long: `Install shell completion script for Bash, Zsh, Fish, or PowerShell.
Automatically detects your shell and installs the appropriate completion script.
Set ` + completionScopeEnv + `=system to install the Bash script into
/etc/bash_completion.d when that directory is writable.`,
		Args: cobra.NoArgs,
		RunE: executeInstallCompletion,
	}

	installCompletionCmd.Flags().String("shell", "", "Specify shell type (bash, zsh, fish, powershell)")
	installCompletionCmd.Flags().Bool("force", false, "Force overwrite existing completion files")
	installCompletionCmd.Flags().Bool("print", false, "Write the script to stdout instead of installing it")

	return installCompletionCmd
}

// detectShell guesses the interactive shell from the environment.
func detectShell() (string, error) {
	shellEnv := os.Getenv("SHELL")
	if shellEnv == "" {
		// On Windows, we may not have $SHELL
		if os.Getenv("PSModulePath") != "" {
			return "powershell", nil
		}
		return "", fmt.Errorf("could not detect shell. Please specify with --shell flag")
	}
	base := filepath.Base(shellEnv)
	for _, name := range []string{"bash", "zsh", "fish"} {
		if strings.Contains(base, name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("unsupported shell: %s. Please specify shell with --shell flag", shellEnv)
}

// completionDir returns the install directory for shellType, creating it.
func completionDir(shellType string, target completionTarget) (string, error) {
	if shellType == "bash" && os.Getenv(completionScopeEnv) == "system" {
		systemDir := "/etc/bash_completion.d"
		if dirWritable(systemDir) {
			return systemDir, nil
		}
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	dir := filepath.Join(homeDir, target.dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create directory %s: %w", dir, err)
	}
	return dir, nil
}

// executeInstallCompletion handles installation of shell completion scripts
func executeInstallCompletion(cmd *cobra.Command, args []string) error {
	shellType, _ := cmd.Flags().GetString("shell")
	force, _ := cmd.Flags().GetBool("force")
	toStdout, _ := cmd.Flags().GetBool("print")

	if shellType == "" {
		detected, err := detectShell()
		if err != nil {
			return err
		}
		shellType = detected
	}
	target, ok := completionTargets[shellType]
	if !ok {
		return fmt.Errorf("unsupported shell type: %s", shellType)
	}

	var buf bytes.Buffer
	if err := target.gen(cmd.Root(), &buf); err != nil {
		return fmt.Errorf("error generating %s completion: %w", shellType, err)
	}
	if toStdout {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}

	dir, err := completionDir(shellType, target)
	if err != nil {
		return err
	}
	targetPath := filepath.Join(dir, target.file)
	if _, err := os.Stat(targetPath); err == nil && !force {
		return fmt.Errorf("completion file already exists at %s. Use --force to overwrite", targetPath)
	}
	if err := security.SafeWriteFile(targetPath, buf.Bytes(), 0600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("could not write completion file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Shell completion installed for %s at %s\n", shellType, targetPath)
	return nil
}

// dirWritable checks if the specified directory is writable by attempting to create and remove a temporary file.
func dirWritable(p string) bool {
	tf, err := os.CreateTemp(p, ".probe-*")
	if err != nil {
		return false
	}
	tf.Close()
	_ = os.Remove(tf.Name())
	return true
}
