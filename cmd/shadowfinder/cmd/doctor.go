package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anupammaurya6767/shadowfinder/internal/output"
	"github.com/anupammaurya6767/shadowfinder/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the server can run here",
		Long: `Check the data directory, free disk space, snapshot driver and snapshot
file, file descriptor limit and inbox directory.

Exits with an error when a required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, jsonOutput, verbose)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")
	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, jsonOutput, verbose bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
	results := checker.RunAll(ctx, cfg)

	if jsonOutput {
		if err := output.New(cmd.OutOrStdout()).JSON(map[string]any{
			"status": checker.SummaryStatus(results),
			"checks": results,
		}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if r, failed := preflight.FirstCritical(results); failed {
		return fmt.Errorf("%s check failed: %s", r.Name, r.Message)
	}
	return nil
}
