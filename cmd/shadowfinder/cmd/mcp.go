package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/anupammaurya6767/shadowfinder/internal/daemon"
	"github.com/anupammaurya6767/shadowfinder/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve search over the Model Context Protocol (stdio)",
		Long: `Run an MCP server on stdin/stdout exposing the search, index_status and
query_stats tools.

Requests go to a running server when there is one; otherwise the snapshot
is opened read-only in this process. Logs go to the log file, never stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func runMCP(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var backend mcp.Backend
	if client, ok := runningServer(cfg); ok {
		slog.Info("mcp_backend", slog.String("mode", "server"), slog.String("socket", cfg.SocketPath()))
		backend = client
	} else {
		d, err := openLocal(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer func() { _ = d.Close() }()
		slog.Info("mcp_backend", slog.String("mode", "local"), slog.String("snapshot", cfg.SnapshotPath()))
		backend = mcp.LocalBackend{Daemon: d}
	}

	srv, err := mcp.NewServer(backend)
	if err != nil {
		return err
	}
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

var _ mcp.Backend = (*daemon.Client)(nil)
