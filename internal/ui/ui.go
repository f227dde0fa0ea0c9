// Package ui renders ingest progress and server status in the terminal:
// a bubbletea view on interactive terminals and plain lines for pipes
// and CI logs.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
)

// Renderer displays the progress of one ingest run.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// Update shows the latest counters. It must not block.
	Update(stats ingest.Stats)

	// Complete shows the final summary.
	Complete(stats ingest.Stats)

	// Stop stops the renderer and restores the terminal.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// Title is shown in the panel header, typically the source name.
	Title string
	// QueueSize scales the backpressure gauge. 0 hides it.
	QueueSize int
	// PlainInterval throttles plain output lines.
	PlainInterval time.Duration
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithTitle sets the panel title.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// WithQueueSize enables the queue gauge.
func WithQueueSize(n int) ConfigOption {
	return func(c *Config) {
		c.QueueSize = n
	}
}

// NewConfig creates a Config for output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output:        output,
		PlainInterval: time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a TUI renderer for interactive terminals and a
// plain renderer for CI, pipes, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
