package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/anupammaurya6767/shadowfinder/internal/daemon"
	"github.com/anupammaurya6767/shadowfinder/internal/output"
)

func newSnapshotCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write the recovery snapshot now",
		Long: `Write the in-memory index to the snapshot database. A running server
does this periodically and on shutdown; this forces one immediately.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnapshot(cmd.Context(), cmd, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCompactCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Drop postings of removed documents",
		Long: `Remove posting entries that point at tombstoned documents. A running
server compacts on its own when idle and enough documents are
tombstoned; this forces a pass now.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompact(cmd.Context(), cmd, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runSnapshot(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var res daemon.SnapshotResult
	if client, ok := runningServer(cfg); ok {
		r, err := client.Snapshot(ctx)
		if err != nil {
			return err
		}
		res = *r
	} else {
		d, err := openLocal(ctx, cfg, false)
		if err != nil {
			return err
		}
		res, err = d.Snapshot(ctx)
		if cerr := d.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(res)
	}
	out.Successf("Snapshot written: %d documents at watermark %d", res.Documents, res.Watermark)
	out.Status("", res.Path)
	return nil
}

func runCompact(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var res daemon.CompactResult
	if client, ok := runningServer(cfg); ok {
		r, err := client.Compact(ctx)
		if err != nil {
			return err
		}
		res = *r
	} else {
		d, err := openLocal(ctx, cfg, false)
		if err != nil {
			return err
		}
		res, err = d.Compact(ctx)
		if err == nil && res.Removed > 0 {
			_, err = d.Snapshot(ctx)
		}
		if cerr := d.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(res)
	}
	if res.Removed == 0 {
		out.Status("", "Nothing to compact")
		return nil
	}
	out.Successf("Removed %d dead postings", res.Removed)
	return nil
}
