package main

import (
	"fmt"

	"github.com/open-edge-platform/release-packager/internal/config"
	"github.com/open-edge-platform/release-packager/internal/packager"
	"github.com/open-edge-platform/release-packager/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Validate command flags
var verbose bool

// createValidateCommand creates the validate subcommand
func createValidateCommand() *cobra.Command {
	validateCmd := &cobra.Command{
		Use:   "validate [flags] [PACKAGING_FILE]",
		Short: "Validate a packaging file",
		Long: `Validate a packaging file against the schema and the profile rules
without building it. The build order of the profiles is printed so that
references between profiles can be checked before a full build.`,
		Args:              cobra.MaximumNArgs(1),
		RunE:              executeValidate,
		ValidArgsFunction: packagingFileCompletion,
	}

	validateCmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"List the declared inputs of every profile")
	validateCmd.Flags().StringSliceVarP(&profiles, "profile", "p", nil,
		"Profile to check (repeatable); referenced profiles are added")

	return validateCmd
}

// executeValidate handles the validate command logic
func executeValidate(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	path := packagingFilePath(args)
	log.Infof("validating packaging file: %s", path)

	pf, err := config.LoadPackaging(path)
	if err != nil {
		return fmt.Errorf("packaging file validation failed: %w", err)
	}
	phases, err := (&packager.Runner{Packaging: pf}).Plan(profiles...)
	if err != nil {
		return fmt.Errorf("packaging file validation failed: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Project: %s %s\n", pf.Project.Name, pf.Project.Version)
	for i, phase := range phases {
		if len(phase) == 0 {
			continue
		}
		fmt.Fprintf(w, "Phase %d:\n", i+1)
		for _, p := range phase {
			line := fmt.Sprintf("  %s (%s)", p.Name, p.Kind)
			if !p.Platform.IsEmpty() {
				line += " platform=" + string(p.Platform)
			}
			if ref := p.Ref(); ref != "" {
				line += " uses=" + ref
			}
			if !p.Matrix.IsEmpty() {
				line += fmt.Sprintf(" variants=%d", len(p.Matrix.Resolve()))
			}
			fmt.Fprintln(w, line)
			if verbose {
				for _, a := range p.Artifacts {
					fmt.Fprintf(w, "    artifact %s\n", a.Path)
				}
				for _, g := range p.Globs {
					fmt.Fprintf(w, "    glob %s in %s\n", g.Pattern, g.Directory)
				}
				for _, fs := range p.FileSets {
					fmt.Fprintf(w, "    fileset %s\n", fs.Input)
				}
			}
		}
	}
	log.Infof("✓ Packaging file validation successful")
	return nil
}
