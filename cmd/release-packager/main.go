package main

import (
	"fmt"
	"os"

	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
	"github.com/open-edge-platform/release-packager/internal/utils/security"
	"github.com/spf13/cobra"
)

// Command-line flags that can override config file settings
var (
	configFile string = "" // Path to config file
	logLevel   string = "" // Empty means use config file value
	logFile    string = "" // Empty means use config file value
)

func main() {
	// Initialize global configuration first
	configFilePath := configFile
	if configFilePath == "" {
		configFilePath = config.FindConfigFile()
	}

	globalConfig, err := config.LoadGlobalConfig(configFilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Set global config singleton
	config.SetGlobal(globalConfig)

	// Setup logger with configured level and optional log file
	_, cleanup, err := logger.InitWithConfig(logger.Config{
		Level:    globalConfig.Logging.Level,
		FilePath: globalConfig.Logging.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// Create and execute root command
	rootCmd := createRootCommand()

	// Handle log overrides after flag parsing. Sub-commands carry their own
	// validation hooks, so parent hooks must run as well.
	cobra.EnableTraverseRunHooks = true
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if configFile != "" && configFile != configFilePath {
			reloaded, err := config.LoadGlobalConfig(configFile)
			if err != nil {
				return fmt.Errorf("loading configuration %s: %w", configFile, err)
			}
			config.SetGlobal(reloaded)
			logger.SetLogLevel(reloaded.Logging.Level)
			globalConfig = reloaded
		}
		return applyLogOverrides(globalConfig)
	}
	security.AttachRecursive(rootCmd, security.DefaultLimits())

	log := logger.Logger()
	if configFilePath != "" {
		log.Infof("Using configuration from: %s", configFilePath)
	}
	workRoot, _ := config.WorkDir()
	outputRoot, _ := config.OutputDir()
	log.Debugf("Config: workers=%d, work_dir=%s, output_dir=%s, temp_dir=%s",
		config.Workers(), workRoot, outputRoot, config.TempDir())

	if err := rootCmd.Execute(); err != nil {
		cleanup()
		os.Exit(1)
	}
}

// applyLogOverrides applies --log-level and --log-file on top of the
// loaded configuration.
func applyLogOverrides(globalConfig *config.GlobalConfig) error {
	if logLevel == "" && logFile == "" {
		return nil
	}
	if logLevel != "" {
		globalConfig.Logging.Level = logLevel
	}
	if logFile != "" {
		globalConfig.Logging.File = logFile
		if _, _, err := logger.InitWithConfig(logger.Config{
			Level:    globalConfig.Logging.Level,
			FilePath: logFile,
		}); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
	}
	config.SetGlobal(globalConfig)
	logger.SetLogLevel(globalConfig.Logging.Level)
	return nil
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "release-packager",
		Short: "Release Packager for building distributable release artifacts",
		Long: `Release Packager turns a declarative packaging file into release
artifacts: plain and Java archives, jlink runtime images, jpackage
installers, GraalVM native executables and Debian packages.

Each profile of the packaging file is staged in its own working directory
and built by the packager of its kind. Profiles whose outputs feed another
profile are built first.

Use 'release-packager --help' to see available commands.
Use 'release-packager <command> --help' for more information about a command.`,
		SilenceUsage: true,
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Log file path to tee logs (overrides configuration file)")

	// Add all subcommands
	rootCmd.AddCommand(createBuildCommand())
	rootCmd.AddCommand(createValidateCommand())
	rootCmd.AddCommand(createCleanCommand())
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createInstallCompletionCommand())

	return rootCmd
}
