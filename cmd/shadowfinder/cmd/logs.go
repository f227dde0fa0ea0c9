package cmd

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/anupammaurya6767/shadowfinder/internal/config"
	"github.com/anupammaurya6767/shadowfinder/internal/logging"
	"github.com/anupammaurya6767/shadowfinder/internal/ui"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	code    string
	filter  string
	noColor bool
	file    string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View server logs",
		Long: `Show the last lines of the JSON log file in a readable form, optionally
following new entries like 'tail -f'.`,
		Example: `  shadowfinder logs -n 100
  shadowfinder logs -f --level warn
  shadowfinder logs --code ERR_202`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.code, "code", "", "Only entries with this error code")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only lines matching this regular expression")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file (default from config)")
	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	path := opts.file
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			cfg = config.NewConfig()
		}
		path = cfg.Logging.FilePath
	}
	if path == "" {
		return fmt.Errorf("logging to a file is disabled; set logging.file or pass --file")
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		var err error
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return fmt.Errorf("invalid --filter: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		Code:    opts.code,
		NoColor: opts.noColor || ui.DetectNoColor() || !ui.IsTTY(out),
	}, out)

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)
	if !opts.follow {
		return nil
	}

	ch := make(chan logging.LogEntry, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, ch)
		close(ch)
	}()
	for entry := range ch {
		viewer.Print([]logging.LogEntry{entry})
	}
	return <-errCh
}
