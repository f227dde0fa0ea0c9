// Package cmd provides the CLI commands for shadowfinder.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anupammaurya6767/shadowfinder/internal/config"
	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/logging"
	"github.com/anupammaurya6767/shadowfinder/internal/profiling"
	"github.com/anupammaurya6767/shadowfinder/pkg/version"
)

// Global flags
var (
	configDir   string
	debugMode   bool
	profileOpts profiling.Options
	profile     *profiling.Session
	logCleanup  func()
)

// NewRootCmd creates the root command for the shadowfinder CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shadowfinder",
		Short: "Search engine for content posted to chat channels",
		Long: `shadowfinder indexes content announced in chat channels and answers
ranked, paginated title searches over it.

Run 'shadowfinder serve' to keep the index in memory and accept ingest
and search requests over a local socket. Every command also works
without a running server by opening the on-disk snapshot directly.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("shadowfinder version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory holding .shadowfinder.yaml and .env")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Log at debug level and mirror logs to stderr")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSnapshotCmd())
	cmd.AddCommand(newCompactCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints errors to stderr.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails.
	_ = stopProfilingAndLogging(nil, nil)
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, sferrors.FormatForCLI(err))
	}
	return err
}

func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	// A broken config is reported by the command itself; logging falls
	// back to defaults so that report is logged too.
	cfg, err := config.Load(configDir)
	if err != nil {
		cfg = config.NewConfig()
	}
	logCfg := cfg.Logging
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)
	logCleanup = cleanup

	if profileOpts.Enabled() {
		profile, err = profiling.Start(profileOpts)
		if err != nil {
			return err
		}
	}
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profile != nil {
		err = profile.Stop()
		profile = nil
	}
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return err
}

// loadConfig loads the configuration for the current --config-dir.
func loadConfig() (*config.Config, error) {
	return config.Load(configDir)
}
