package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/anupammaurya6767/shadowfinder/internal/config"
	"github.com/anupammaurya6767/shadowfinder/internal/daemon"
	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
	"github.com/anupammaurya6767/shadowfinder/internal/output"
	"github.com/anupammaurya6767/shadowfinder/internal/ui"
)

type ingestOptions struct {
	offline    bool
	plain      bool
	noColor    bool
	jsonOutput bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file.jsonl>... | -",
		Short: "Ingest channel events from JSONL files or stdin",
		Long: `Read newline-delimited JSON events and apply them to the index.

Each line is one event: a new post, an edit, or a removal. Malformed lines
are counted and skipped; they never stop the run.

With a running server the events are sent to it. Otherwise, or with
--offline, the index is opened in this process and the snapshot is
written when the run finishes.`,
		Example: `  shadowfinder ingest export.jsonl
  tail -f bot.log | shadowfinder ingest -
  shadowfinder ingest --offline --plain dump-*.jsonl`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Open the index in this process instead of using the server")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress lines instead of the interactive view")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the final stats as JSON")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, args []string, opts ingestOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stdin := len(args) == 1 && args[0] == "-"

	var stats ingest.Stats
	if client, ok := runningServer(cfg); ok && !opts.offline {
		stats, err = ingestRemote(ctx, cmd, client, args, stdin)
	} else {
		stats, err = ingestLocal(ctx, cmd, cfg, args, stdin, opts)
	}
	if err != nil && stats.RunID == "" {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		if jerr := out.JSON(stats); jerr != nil {
			return jerr
		}
		return err
	}
	if err == nil {
		out.Successf("Ingested %d events from %s: %d new, %d merged, %d removed",
			stats.Processed(), stats.Source, stats.Inserted, stats.Merged, stats.Tombstoned)
	}
	if rejected := stats.Malformed + stats.Failed; rejected > 0 {
		out.Warningf("%d events rejected (%d malformed, %d failed); see the log for details",
			rejected, stats.Malformed, stats.Failed)
	}
	return err
}

func ingestRemote(ctx context.Context, cmd *cobra.Command, client *daemon.Client, args []string, stdin bool) (ingest.Stats, error) {
	var params daemon.IngestParams
	if stdin {
		events, err := readEvents(cmd.InOrStdin())
		if err != nil {
			return ingest.Stats{}, err
		}
		if len(events) == 0 {
			return ingest.Stats{}, fmt.Errorf("no events on stdin")
		}
		params.Events = events
	} else {
		// The server resolves paths relative to its own working directory.
		for _, p := range args {
			abs, err := filepath.Abs(p)
			if err != nil {
				return ingest.Stats{}, err
			}
			params.Paths = append(params.Paths, abs)
		}
	}
	stats, err := client.Ingest(ctx, params)
	if err != nil {
		return ingest.Stats{}, err
	}
	return *stats, nil
}

func ingestLocal(ctx context.Context, cmd *cobra.Command, cfg *config.Config, args []string, stdin bool, opts ingestOptions) (ingest.Stats, error) {
	var src ingest.Source
	if stdin {
		src = ingest.NewReaderSource("stdin", cmd.InOrStdin())
	} else {
		src = ingest.NewFileSource(args...)
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.ErrOrStderr(),
		ui.WithForcePlain(opts.plain || opts.jsonOutput),
		ui.WithNoColor(opts.noColor),
		ui.WithTitle(src.Name()),
		ui.WithQueueSize(cfg.Ingest.QueueSize)))

	d, err := openLocal(ctx, cfg, false, daemon.WithIngestProgress(renderer.Update))
	if err != nil {
		return ingest.Stats{}, err
	}

	if err := renderer.Start(ctx); err != nil {
		_ = d.Close()
		return ingest.Stats{}, err
	}
	stats, runErr := d.RunIngest(ctx, src)
	renderer.Complete(stats)
	_ = renderer.Stop()

	// Close writes the snapshot.
	if err := d.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return stats, runErr
}

// readEvents splits r into non-empty lines.
func readEvents(r io.Reader) ([]json.RawMessage, error) {
	var events []json.RawMessage
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		events = append(events, json.RawMessage(bytes.Clone(line)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return events, nil
}
