package main

import (
	"fmt"

	"github.com/open-edge-platform/release-packager/internal/workspace"
	"github.com/spf13/cobra"
)

func createCleanCommand() *cobra.Command {
	var (
		opts workspace.CleanOptions
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove staging directories or produced artifacts",
		Long: `Remove the staging directories of earlier builds, their produced
artifacts, or both.

By default, the command removes staging directories. Use --profile to
restrict cleanup to one profile across all kinds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			workFlag := cmd.Flags().Changed("work")
			outputFlag := cmd.Flags().Changed("output")

			if all {
				opts.CleanWork = true
				opts.CleanOutput = true
			} else if !workFlag && !outputFlag {
				opts.CleanWork = true
			}

			if !opts.CleanWork && !opts.CleanOutput {
				return fmt.Errorf("nothing to clean: specify --work, --output, or --all")
			}

			result, err := workspace.Clean(opts)
			if err != nil {
				return err
			}

			output := []string{}
			if opts.DryRun {
				output = append(output, "Dry run: no files were deleted.")
			}

			if len(result.RemovedPaths) > 0 {
				header := "Removed paths:"
				if opts.DryRun {
					header = "Would remove:"
				}
				output = append(output, header)
				output = append(output, indentPaths(result.RemovedPaths)...)
			}

			if len(result.RemovedPaths) == 0 && len(result.SkippedPaths) == 0 {
				scopeDesc := "staging or output"
				if !opts.CleanOutput {
					scopeDesc = "staging"
				} else if !opts.CleanWork {
					scopeDesc = "output"
				}
				if opts.Profile != "" {
					scopeDesc += fmt.Sprintf(" directories for profile '%s'", opts.Profile)
				} else {
					scopeDesc += " directories"
				}
				output = append(output, fmt.Sprintf("No %s found.", scopeDesc))
			}

			if len(result.SkippedPaths) > 0 {
				output = append(output, "Skipped (not found):")
				output = append(output, indentPaths(result.SkippedPaths)...)
			}

			writer := cmd.OutOrStdout()
			for _, line := range output {
				fmt.Fprintln(writer, line)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove both staging directories and artifacts")
	cmd.Flags().BoolVar(&opts.CleanWork, "work", false, "Remove staging directories")
	cmd.Flags().BoolVar(&opts.CleanOutput, "output", false, "Remove produced artifacts")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "Restrict cleanup to a single profile")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show what would be removed without deleting anything")

	return cmd
}

func indentPaths(values []string) []string {
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = "  " + v
	}
	return lines
}
