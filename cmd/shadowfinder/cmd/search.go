package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anupammaurya6767/shadowfinder/internal/config"
	"github.com/anupammaurya6767/shadowfinder/internal/daemon"
	"github.com/anupammaurya6767/shadowfinder/internal/output"
	"github.com/anupammaurya6767/shadowfinder/internal/search"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

type searchOptions struct {
	channel    string
	mediaKind  string
	before     string
	after      string
	cursor     string
	limit      int
	jsonOutput bool
	offline    bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed titles",
		Long: `Search document titles. Every term must match; results are ranked by
matched terms and recency.

Inline filters may be mixed with terms: channel:<id>, type:<kind>,
before:<date>, after:<date>. Flags take precedence over inline filters.

Uses the running server when there is one, otherwise reads the snapshot.`,
		Example: `  shadowfinder search ubuntu iso
  shadowfinder search "linux type:video" --limit 5
  shadowfinder search debian --channel linuxchan --after 2026-01-01
  shadowfinder search debian --cursor <next_cursor from previous page>`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.channel, "channel", "", "Only documents posted in this channel")
	cmd.Flags().StringVarP(&opts.mediaKind, "type", "t", "", "Media kind: text, image, video, audio, file, other")
	cmd.Flags().StringVar(&opts.before, "before", "", "Only documents created before this date")
	cmd.Flags().StringVar(&opts.after, "after", "", "Only documents created after this date")
	cmd.Flags().StringVar(&opts.cursor, "cursor", "", "Continue from a previous page")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Results per page (default from config)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Read the snapshot even if a server is running")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params := daemon.SearchParams{
		Query:     query,
		Channel:   opts.channel,
		MediaKind: store.MediaKind(strings.ToLower(opts.mediaKind)),
		Cursor:    opts.cursor,
		PageSize:  opts.limit,
	}
	if params.Before, err = parseDate("before", opts.before); err != nil {
		return err
	}
	if params.After, err = parseDate("after", opts.after); err != nil {
		return err
	}

	var res *search.Result
	if client, ok := runningServer(cfg); ok && !opts.offline {
		res, err = client.Search(ctx, params)
	} else {
		res, err = searchLocal(ctx, cfg, params)
	}
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(res)
	}
	out.Results(res, 0)
	return nil
}

func searchLocal(ctx context.Context, cfg *config.Config, params daemon.SearchParams) (*search.Result, error) {
	d, err := openLocal(ctx, cfg, true, daemon.WithoutQueryLog())
	if err != nil {
		return nil, err
	}
	defer func() { _ = d.Close() }()
	return d.Search(ctx, params)
}
