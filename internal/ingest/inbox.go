package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/watcher"
)

// DoneDir is the inbox subdirectory that read files are moved to.
const DoneDir = "done"

// DirSource streams event files dropped into an inbox directory. Each
// file is read once, as soon as it stops changing, and then moved to
// <dir>/done. It runs until ctx is done.
type DirSource struct {
	dir  string
	opts watcher.Options
}

// NewDirSource watches dir for files matching opts.Pattern.
func NewDirSource(dir string, opts watcher.Options) *DirSource {
	return &DirSource{dir: dir, opts: opts}
}

// Name implements Source.
func (s *DirSource) Name() string { return "inbox:" + s.dir }

// Stream implements Source.
func (s *DirSource) Stream(ctx context.Context, out chan<- Record) error {
	if err := os.MkdirAll(filepath.Join(s.dir, DoneDir), 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	w, err := watcher.NewInboxWatcher(s.opts)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	watchErr := make(chan error, 1)
	go func() { watchErr <- w.Start(ctx, s.dir) }()
	slog.Info("inbox_watching", slog.String("dir", s.dir), slog.String("mode", w.Mode()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-watchErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watch inbox: %w", err)
			}
			return ctx.Err()
		case err, ok := <-w.Errors():
			if ok {
				slog.Warn("inbox_watch_error", slog.String("error", err.Error()))
			}
		case batch, ok := <-w.Events():
			if !ok {
				return ctx.Err()
			}
			for _, ev := range batch {
				if !ev.Operation.Ready() {
					continue
				}
				if err := s.consume(ctx, ev.Path, out); err != nil {
					return err
				}
			}
		}
	}
}

// consume streams one file and moves it to the done directory. Read
// errors are logged and the file is left in place; only cancellation
// stops the source.
func (s *DirSource) consume(ctx context.Context, name string, out chan<- Record) error {
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	err := streamFile(ctx, path, out)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		slog.Warn("inbox_file_failed", slog.String("file", name), slog.String("error", err.Error()))
		return nil
	}

	dest := filepath.Join(s.dir, DoneDir, name)
	if _, err := os.Stat(dest); err == nil {
		dest = fmt.Sprintf("%s.%s", dest, time.Now().UTC().Format("20060102T150405.000000000"))
	}
	if err := os.Rename(path, dest); err != nil {
		slog.Warn("inbox_move_failed", slog.String("file", name), slog.String("error", err.Error()))
		return nil
	}
	slog.Info("inbox_file_done", slog.String("file", name))
	return nil
}
