package preflight

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/anupammaurya6767/shadowfinder/internal/config"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against cfg. The data directory is created if
// missing, as the server would.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config) []CheckResult {
	var results []CheckResult

	write := c.CheckWritePermissions(cfg.DataDir)
	results = append(results, write)
	if write.Status == StatusPass {
		results = append(results, c.CheckDiskSpace(cfg.DataDir))
	}
	results = append(results, c.CheckSnapshotDriver(cfg.Snapshot.Driver))
	results = append(results, c.CheckSnapshot(ctx, cfg.SnapshotPath(), cfg.Snapshot.Driver))
	results = append(results, c.CheckFileDescriptors())
	if cfg.Ingest.Inbox != "" {
		results = append(results, c.CheckInbox(cfg.Ingest.Inbox))
	}
	return results
}

// RunStartup runs the cheap checks a server makes before it starts. The
// snapshot itself is validated when it is restored.
func (c *Checker) RunStartup(cfg *config.Config) []CheckResult {
	results := []CheckResult{c.CheckWritePermissions(cfg.DataDir)}
	if results[0].Status == StatusPass {
		results = append(results, c.CheckDiskSpace(cfg.DataDir))
	}
	return append(results,
		c.CheckSnapshotDriver(cfg.Snapshot.Driver),
		c.CheckFileDescriptors())
}

// FirstCritical returns the first failed required check.
func FirstCritical(results []CheckResult) (CheckResult, bool) {
	for _, r := range results {
		if r.IsCritical() {
			return r, true
		}
	}
	return CheckResult{}, false
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	_, found := FirstCritical(results)
	return found
}

// SummaryStatus returns "ready", "ready_with_warnings" or "failed".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "shadowfinder system check")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))
}

// CheckWritePermissions checks that the data directory can be created and
// written to.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{
		Name:     "data_dir",
		Required: true,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("not writable: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = dir
	return result
}

// CheckSnapshotDriver checks that the configured database/sql driver is
// compiled in. The cgo driver is missing from CGO_ENABLED=0 builds.
func (c *Checker) CheckSnapshotDriver(driver string) CheckResult {
	result := CheckResult{
		Name:     "snapshot_driver",
		Required: true,
	}
	if !slices.Contains(sql.Drivers(), driver) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("driver %q not available in this build", driver)
		result.Details = "Use snapshot.driver: sqlite, or rebuild with CGO_ENABLED=1"
		return result
	}
	result.Status = StatusPass
	result.Message = driver
	return result
}

// CheckSnapshot loads the snapshot if there is one. A missing snapshot is
// a fresh index, not a failure.
func (c *Checker) CheckSnapshot(ctx context.Context, path, driver string) CheckResult {
	result := CheckResult{
		Name:     "snapshot",
		Required: true,
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		result.Status = StatusPass
		result.Message = "none yet; the index starts empty"
		return result
	}
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	snap, err := store.NewSnapshotStore(path, driver).Load(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unreadable: %v", err)
		result.Details = fmt.Sprintf("Move %s aside to start from an empty index", filepath.Base(path))
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d documents, %s, watermark %d",
		len(snap.Documents), formatBytes(uint64(info.Size())), snap.Watermark)
	return result
}

// CheckInbox checks that the configured inbox directory exists.
func (c *Checker) CheckInbox(dir string) CheckResult {
	result := CheckResult{Name: "inbox"}

	info, err := os.Stat(dir)
	switch {
	case err != nil:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s: %v", dir, err)
		result.Details = "The server creates it on start"
	case !info.IsDir():
		result.Status = StatusFail
		result.Required = true
		result.Message = dir + " is not a directory"
	default:
		result.Status = StatusPass
		result.Message = dir
	}
	return result
}
