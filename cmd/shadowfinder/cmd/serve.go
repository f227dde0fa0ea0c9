package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anupammaurya6767/shadowfinder/internal/config"
	"github.com/anupammaurya6767/shadowfinder/internal/daemon"
	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/output"
	"github.com/anupammaurya6767/shadowfinder/internal/preflight"
)

func newServeCmd() *cobra.Command {
	var detach bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the index server",
		Long: `Load the snapshot and serve ingest and search requests on a local
Unix socket until interrupted.

While serving, the inbox directory (ingest.inbox) is watched for *.jsonl
event files, snapshots are written periodically, and tombstoned
documents are compacted when the server is idle. A final snapshot is
written on shutdown.`,
		Example: `  # Run in the foreground
  shadowfinder serve

  # Run in the background
  shadowfinder serve --detach`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, detach)
		},
	}

	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Run in the background")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running server",
		Long:  `Send SIGTERM to the running server and wait for it to write its final snapshot and exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(cmd)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, detach bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())
	client := daemon.NewClient(daemon.SocketConfig(cfg))
	if client.IsRunning() {
		out.Status("", "Server is already running")
		return nil
	}

	if detach {
		return startDetached(cmd, cfg, client)
	}

	if err := startupChecks(cfg); err != nil {
		return err
	}

	d, err := daemon.NewDaemon(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	out.Statusf("🚀", "Serving on %s", cfg.SocketPath())
	if cfg.Ingest.Inbox != "" {
		out.Status("", "Watching inbox "+cfg.Ingest.Inbox)
	}
	if cfg.Server.MetricsAddr != "" {
		out.Status("", "Metrics on http://"+cfg.Server.MetricsAddr+"/metrics")
	}
	out.Status("", "Press Ctrl+C to stop")

	err = d.Start(ctx)
	if errors.Is(err, context.Canceled) {
		out.Success("Server stopped")
		return nil
	}
	return err
}

// startDetached re-executes this binary with `serve` in a new session and
// waits for the socket to answer.
func startDetached(cmd *cobra.Command, cfg *config.Config, client *daemon.Client) error {
	out := output.New(cmd.OutOrStdout())

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	bg := exec.Command(execPath, "serve", "--config-dir", configDir)
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := bg.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	// Reap the child and notice an early exit.
	done := make(chan error, 1)
	go func() { done <- bg.Wait() }()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("server exited during startup: %w", err)
			}
			return errors.New("server exited during startup")
		case <-time.After(100 * time.Millisecond):
		}
		if client.IsRunning() {
			out.Successf("Server started (pid %d)", bg.Process.Pid)
			out.Status("", "Socket: "+cfg.SocketPath())
			return nil
		}
	}
	return errors.New("server did not start within 10s")
}

func runStop(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())
	pidFile := daemon.NewPIDFile(cfg.PIDPath())

	if !pidFile.IsRunning() {
		out.Status("", "Server is not running")
		return nil
	}
	pid, _ := pidFile.Read()
	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}
	slog.Info("stop_requested", slog.Int("pid", pid))

	// Shutdown includes the final snapshot, so allow for a slow disk.
	for i := 0; i < 100; i++ {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Success("Server stopped")
			return nil
		}
	}
	return fmt.Errorf("server (pid %d) did not stop within 10s", pid)
}

// startupChecks refuses to serve on a failed required check and logs
// warnings.
func startupChecks(cfg *config.Config) error {
	results := preflight.New().RunStartup(cfg)
	for _, r := range results {
		if r.Status == preflight.StatusWarn {
			slog.Warn("preflight_warning", slog.String("check", r.Name), slog.String("message", r.Message))
		}
	}
	if r, failed := preflight.FirstCritical(results); failed {
		return sferrors.Newf(sferrors.ErrCodeInternal, "preflight %s: %s", r.Name, r.Message).
			WithSuggestion("Run 'shadowfinder doctor' for details")
	}
	return nil
}
