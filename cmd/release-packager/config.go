package main

import (
	"fmt"

	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/spf13/cobra"
)

// createConfigCommand creates the config subcommand
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage global configuration for the Release Packager.

Available commands:
  init    Initialize a new configuration file with default values`,
	}

	configCmd.AddCommand(createConfigInitCommand())

	return configCmd
}

// createConfigInitCommand creates the config init subcommand
func createConfigInitCommand() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init [config-file]",
		Short: "Initialize a new configuration file",
		Long: `Initialize a new configuration file with default values.

If no path is specified, the config will be created in the current directory as release-packager-config.yml

Examples:
  # Create config in current directory
  release-packager config init

  # Create config in user's home directory
  release-packager config init ~/.release-packager/config.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeConfigInit,
	}

	return initCmd
}

// executeConfigInit handles the config init command logic
func executeConfigInit(cmd *cobra.Command, args []string) error {
	configPath := "release-packager-config.yml"
	if len(args) > 0 {
		configPath = args[0]
	}

	defaultConfig := config.DefaultGlobalConfig()

	// Save to file with descriptive comments
	if err := defaultConfig.SaveGlobalConfigWithComments(configPath); err != nil {
		return fmt.Errorf("failed to save config file: %v", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Configuration file created at: %s\n", configPath)
	fmt.Fprintf(w, "\nDefault configuration settings:\n")
	fmt.Fprintf(w, "  Workers: %d\n", defaultConfig.Workers)
	fmt.Fprintf(w, "  Work Directory: %s\n", defaultConfig.WorkDir)
	fmt.Fprintf(w, "  Output Directory: %s\n", defaultConfig.OutputDir)
	fmt.Fprintf(w, "  Temp Directory: %s\n", defaultConfig.TempDir)
	fmt.Fprintf(w, "  Java Home: %s\n", defaultConfig.Toolchains.JavaHome)
	fmt.Fprintf(w, "  GraalVM Home: %s\n", defaultConfig.Toolchains.GraalVMHome)
	fmt.Fprintf(w, "  Log Level: %s\n", defaultConfig.Logging.Level)
	fmt.Fprintf(w, "\nEdit the configuration file to customize these settings.\n")

	return nil
}
