// Package output provides consistent CLI output: status lines with icons,
// search result listings, and JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/anupammaurya6767/shadowfinder/internal/search"
	"github.com/anupammaurya6767/shadowfinder/internal/ui"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Results prints one page of hits, numbered from offset+1.
func (w *Writer) Results(res *search.Result, offset int) {
	if len(res.Hits) == 0 {
		w.Status("🔍", "No results")
		return
	}
	for i, h := range res.Hits {
		_, _ = fmt.Fprintf(w.out, "%3d. %s\n", offset+i+1, h.Title)
		_, _ = fmt.Fprintf(w.out, "     %s  %s", h.SourceRef, hitDetails(h))
		_, _ = fmt.Fprintf(w.out, "  score %.2f\n", h.Score)
		if len(h.AliasRefs) > 0 {
			refs := make([]string, len(h.AliasRefs))
			for j, r := range h.AliasRefs {
				refs[j] = r.String()
			}
			_, _ = fmt.Fprintf(w.out, "     also at %s\n", strings.Join(refs, ", "))
		}
	}

	w.Newline()
	summary := fmt.Sprintf("%d of %d matches", offset+len(res.Hits), res.Total)
	if res.Degraded {
		summary += " (partial: query timed out)"
	}
	if res.Cached {
		summary += " (cached)"
	}
	w.Status("", summary)
	if res.NextCursor != "" {
		w.Status("", "next page: --cursor "+res.NextCursor)
	}
}

func hitDetails(h search.Hit) string {
	parts := []string{string(h.MediaKind)}
	if h.SizeBytes > 0 {
		parts = append(parts, ui.FormatBytes(h.SizeBytes))
	}
	if !h.CreatedAt.IsZero() {
		parts = append(parts, h.CreatedAt.UTC().Format("2006-01-02"))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
