package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/anupammaurya6767/shadowfinder/internal/daemon"
	"github.com/anupammaurya6767/shadowfinder/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server and index status",
		Long: `Show whether the server is running, index size and health, cache and
query statistics, and the last ingest run.

Without a running server the snapshot is read directly; cache, query and
ingest statistics are then unavailable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput, noColor)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput, noColor bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var st *daemon.StatusResult
	if client, ok := runningServer(cfg); ok {
		st, err = client.Status(ctx)
		if err != nil {
			return err
		}
	} else {
		d, err := openLocal(ctx, cfg, true, daemon.WithoutQueryLog())
		if err != nil {
			return err
		}
		local := d.Status()
		_ = d.Close()
		local.Running, local.PID, local.Uptime = false, 0, ""
		local.Queries = nil
		st = &local
	}

	out := cmd.OutOrStdout()
	noColor = noColor || ui.DetectNoColor() || !ui.IsTTY(out)
	r := ui.NewStatusRenderer(out, noColor)
	if jsonOutput {
		return r.RenderJSON(*st)
	}
	return r.Render(*st)
}
