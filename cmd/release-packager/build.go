package main

import (
	"fmt"
	"path/filepath"

	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/packager"
	"github.com/open-edge-platform/release-packager/internal/packager/archiver"
	"github.com/open-edge-platform/release-packager/internal/packager/deb"
	"github.com/open-edge-platform/release-packager/internal/packager/javaarchive"
	"github.com/open-edge-platform/release-packager/internal/packager/jlink"
	"github.com/open-edge-platform/release-packager/internal/packager/jpackage"
	"github.com/open-edge-platform/release-packager/internal/packager/nativeimage"
	"github.com/open-edge-platform/release-packager/internal/stage"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Build command flags
var (
	workers   int      = -1    // -1 means use config file value
	workDir   string   = ""    // Empty means use config file value
	outputDir string   = ""    // Empty means use config file value
	profiles  []string = nil   // Empty means every active profile
	failFast  bool     = true  // Stop at the first failing profile
	noBar     bool     = false // Suppress the progress bar
)

// createBuildCommand creates the build subcommand
func createBuildCommand() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build [flags] [PACKAGING_FILE]",
		Short: "Build the release artifacts of a packaging file",
		Long: `Build the profiles of a packaging file and write their artifacts below
the output directory, one directory per kind and profile.
Without an argument ` + config.DefaultPackagingFile + ` in the current directory is used.`,
		Args:              cobra.MaximumNArgs(1),
		RunE:              executeBuild,
		ValidArgsFunction: packagingFileCompletion,
	}

	// Add flags
	buildCmd.Flags().IntVarP(&workers, "workers", "w", -1,
		"Number of profile variants built concurrently")
	buildCmd.Flags().StringVar(&workDir, "work-dir", "",
		"Staging directory for builds")
	buildCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "",
		"Directory receiving the produced artifacts")
	buildCmd.Flags().StringSliceVarP(&profiles, "profile", "p", nil,
		"Profile to build (repeatable); referenced profiles are added")
	buildCmd.Flags().BoolVar(&failFast, "fail-fast", true,
		"Stop at the first failing profile")
	buildCmd.Flags().BoolVar(&noBar, "no-progress", false,
		"Do not draw a progress bar")

	return buildCmd
}

// registerBuilders makes every packaging kind available to the runner.
func registerBuilders() {
	archiver.Register()
	javaarchive.Register()
	jlink.Register()
	jpackage.Register()
	nativeimage.Register()
	deb.Register()
}

// packagingFilePath returns the packaging file argument or the default.
func packagingFilePath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return config.DefaultPackagingFile
}

// applyBuildOverrides copies changed flags into the global configuration.
func applyBuildOverrides(cmd *cobra.Command) {
	// Note: We update the global singleton with any overrides
	currentConfig := config.Global()
	if cmd.Flags().Changed("workers") {
		currentConfig.Workers = workers
	}
	if cmd.Flags().Changed("work-dir") {
		currentConfig.WorkDir = workDir
	}
	if cmd.Flags().Changed("output-dir") {
		currentConfig.OutputDir = outputDir
	}
	config.SetGlobal(currentConfig)
}

// newRunner assembles a runner from the global configuration.
func newRunner(cmd *cobra.Command, pf *config.PackagingFile) (*packager.Runner, error) {
	work, err := config.WorkDir()
	if err != nil {
		return nil, err
	}
	out, err := config.OutputDir()
	if err != nil {
		return nil, err
	}
	r := &packager.Runner{
		Packaging:  pf,
		WorkRoot:   work,
		OutputRoot: out,
		Workers:    config.Workers(),
		FailFast:   failFast,
		Toolchains: config.Global().Toolchains,
		Renderer:   stage.TemplateRenderer{},
	}
	if !noBar {
		r.Progress = cmd.ErrOrStderr()
	}
	return r, nil
}

// executeBuild handles the build command execution logic
func executeBuild(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	applyBuildOverrides(cmd)
	registerBuilders()

	path := packagingFilePath(args)
	pf, err := config.LoadPackaging(path)
	if err != nil {
		return fmt.Errorf("loading packaging file: %w", err)
	}
	r, err := newRunner(cmd, pf)
	if err != nil {
		return err
	}

	report, buildErr := r.Run(cmd.Context(), profiles...)
	if report != nil {
		w := cmd.OutOrStdout()
		for _, o := range report.All() {
			rel, err := filepath.Rel(r.OutputRoot, o.Path)
			if err != nil {
				rel = o.Path
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", o.Profile, o.Kind, rel)
		}
		for _, name := range report.Failed {
			fmt.Fprintf(w, "%s\tFAILED\n", name)
		}
	}

	if buildErr != nil {
		log.Errorf("packaging failed: %v", buildErr)
		return buildErr
	}
	log.Info("packaging completed successfully")
	return nil
}

// packagingFileCompletion helps with suggesting YAML files for the packaging file argument
func packagingFileCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"yml", "yaml"}, cobra.ShellCompDirectiveFilterFileExt
}
