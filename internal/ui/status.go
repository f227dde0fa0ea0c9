package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/daemon"
)

// StatusRenderer displays server and index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable status report.
func (r *StatusRenderer) Render(info daemon.StatusResult) error {
	p := func(format string, args ...any) {
		_, _ = fmt.Fprintf(r.out, format, args...)
	}

	state := "stopped"
	if info.Running {
		state = "running"
	}
	p("%s\n\n", r.styles.Header.Render("shadowfinder "+info.Version))
	p("  Server:       %s", r.renderStatus(state))
	if info.Running {
		p(" (pid %d, up %s)", info.PID, info.Uptime)
	}
	p("\n\n")

	ix := info.Index
	p("  Index:\n")
	p("    Live:         %d\n", ix.Live)
	p("    Tombstoned:   %d (%.1f%%)\n", ix.Tombstoned, ix.TombstoneRatio()*100)
	p("    Aliases:      %d\n", ix.Aliases)
	p("    Fingerprints: %d\n", info.Fingerprints)
	p("    Tokens:       %d\n", ix.Tokens)
	p("    Postings:     %d (%d dead)\n", ix.Postings, ix.DeadPostings)
	p("    Watermark:    %d\n", info.Watermark)
	if len(ix.ByKind) > 0 {
		p("    By kind:     ")
		for _, k := range slices.Sorted(maps.Keys(ix.ByKind)) {
			p(" %s=%d", k, ix.ByKind[k])
		}
		p("\n")
	}
	p("\n")

	p("  Snapshot:     %s", info.SnapshotPath)
	if fi, err := os.Stat(info.SnapshotPath); err == nil {
		p(" (%s)", FormatBytes(fi.Size()))
	}
	p("\n")
	if !info.LastSnapshot.IsZero() {
		p("    Written:      %s\n", formatTime(info.LastSnapshot))
	}
	if !info.LastWrite.IsZero() {
		p("    Last write:   %s\n", formatTime(info.LastWrite))
	}
	if !info.LastCompaction.IsZero() {
		p("    Compacted:    %s\n", formatTime(info.LastCompaction))
	}
	p("\n")

	if info.Running {
		c := info.Cache
		p("  Cache:        %d entries, %.0f%% hit rate, %d invalidations\n",
			c.Entries, c.HitRate()*100, c.Invalidations)
	}
	if q := info.Queries; q != nil && q.TotalQueries > 0 {
		p("  Queries:      %d total, %.1f%% zero-result, %d degraded\n",
			q.TotalQueries, q.ZeroResultPercentage(), q.DegradedCount)
		if len(q.TopTerms) > 0 {
			p("    Top terms:   ")
			for i, t := range q.TopTerms {
				if i == 5 {
					break
				}
				p(" %s(%d)", t.Term, t.Count)
			}
			p("\n")
		}
	}
	if li := info.LastIngest; li != nil {
		p("  Last ingest:  %s\n", summaryLine(*li))
		if li.Error != "" {
			p("    %s\n", r.styles.Error.Render(li.Error))
		}
	}
	if info.Inbox != "" {
		p("  Inbox:        %s\n", info.Inbox)
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info daemon.StatusResult) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "running":
		return r.styles.Success.Render(status)
	case "stopped":
		return r.styles.Warning.Render(status)
	default:
		return status
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
