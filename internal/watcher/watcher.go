package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing file was written.
	OpModify
	// OpDelete indicates a file was removed.
	OpDelete
	// OpRename indicates a file was moved away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Ready reports whether the file exists after the operation, so it can be read.
func (op Operation) Ready() bool {
	return op == OpCreate || op == OpModify
}

// FileEvent represents a change to one inbox file.
type FileEvent struct {
	// Path is relative to the inbox directory.
	Path string

	// Operation is the coalesced operation.
	Operation Operation

	// Timestamp is when the last underlying event was detected.
	Timestamp time.Time
}

// Watcher defines the interface for inbox watching.
type Watcher interface {
	// Start watches dir until Stop is called or ctx is cancelled.
	Start(ctx context.Context, dir string) error

	// Stop stops the watcher and releases resources.
	// Safe to call multiple times.
	Stop() error

	// Events returns debounced batches of events.
	// The channel is closed when the watcher stops.
	Events() <-chan []FileEvent

	// Errors returns non-fatal watcher errors.
	Errors() <-chan error
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is how long a file must be quiet before it is reported.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the scan interval when polling.
	// Default: 2s
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// Default: 64
	EventBufferSize int

	// Pattern is a filepath.Match glob applied to file names.
	// Default: "*.jsonl"
	Pattern string

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    2 * time.Second,
		EventBufferSize: 64,
		Pattern:         "*.jsonl",
	}
}

// Validate checks that Pattern is a valid glob.
func (o Options) Validate() error {
	if _, err := filepath.Match(o.Pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", o.Pattern, err)
	}
	return nil
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if o.Pattern == "" {
		o.Pattern = defaults.Pattern
	}
	return o
}

// matches reports whether a file name passes the pattern filter.
// Hidden and partial files (".name", "name.tmp") never match.
func (o Options) matches(name string) bool {
	if name == "" || name[0] == '.' {
		return false
	}
	ok, err := filepath.Match(o.Pattern, name)
	return err == nil && ok
}
