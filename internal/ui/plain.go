package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
)

// PlainRenderer prints one line per interval. It suits pipes and CI logs.
type PlainRenderer struct {
	out      io.Writer
	title    string
	interval time.Duration

	mu       sync.Mutex
	lastLine time.Time
	lastSeen int
	done     bool
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	interval := cfg.PlainInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &PlainRenderer{out: cfg.Output, title: cfg.Title, interval: interval}
}

// Start prints the header line.
func (r *PlainRenderer) Start(_ context.Context) error {
	if r.title != "" {
		_, _ = fmt.Fprintf(r.out, "Ingesting %s\n", r.title)
	}
	return nil
}

// Update prints a counter line when the interval has passed and
// something changed.
func (r *PlainRenderer) Update(stats ingest.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	now := time.Now()
	if now.Sub(r.lastLine) < r.interval || stats.Received == r.lastSeen {
		return
	}
	r.lastLine = now
	r.lastSeen = stats.Received
	_, _ = fmt.Fprintf(r.out, "  %s  %.0f ev/s\n", counterLine(stats), stats.Rate())
}

// Complete prints the summary.
func (r *PlainRenderer) Complete(stats ingest.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	_, _ = fmt.Fprintln(r.out, summaryLine(stats))
	if stats.Error != "" {
		_, _ = fmt.Fprintf(r.out, "  error: %s\n", stats.Error)
	}
}

// Stop is a no-op for plain output.
func (r *PlainRenderer) Stop() error {
	return nil
}

func counterLine(s ingest.Stats) string {
	return fmt.Sprintf("received=%d inserted=%d merged=%d tombstoned=%d ignored=%d malformed=%d failed=%d",
		s.Received, s.Inserted, s.Merged, s.Tombstoned, s.Ignored, s.Malformed, s.Failed)
}

func summaryLine(s ingest.Stats) string {
	verb := "Done"
	if s.Status == ingest.StatusError {
		verb = "Stopped"
	}
	return fmt.Sprintf("%s: %d events in %s (%d new, %d merged, %d removed, %d rejected)",
		verb, s.Processed(), s.Elapsed.Round(time.Millisecond),
		s.Inserted, s.Merged, s.Tombstoned, s.Malformed+s.Failed)
}
