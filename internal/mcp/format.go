package mcp

import (
	"fmt"
	"strings"

	"github.com/anupammaurya6767/shadowfinder/internal/search"
)

// FormatSearchResults renders a result page as markdown for clients that
// only read text content.
func FormatSearchResults(query string, res *search.Result) string {
	if res == nil || len(res.Hits) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Showing %d of %d match", len(res.Hits), res.Total)
	if res.Total != 1 {
		sb.WriteString("es")
	}
	sb.WriteString("\n\n")
	if res.Degraded {
		sb.WriteString("> The query timed out; these are the best matches found so far.\n\n")
	}

	for i, h := range res.Hits {
		formatHit(&sb, i+1, h)
	}

	if res.NextCursor != "" {
		fmt.Fprintf(&sb, "More results: call search again with cursor `%s`\n", res.NextCursor)
	}
	return sb.String()
}

func formatHit(sb *strings.Builder, n int, h search.Hit) {
	title := h.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(sb, "### %d. %s\n\n", n, title)
	fmt.Fprintf(sb, "- **Source:** `%s`\n", h.SourceRef)
	if len(h.AliasRefs) > 0 {
		refs := make([]string, len(h.AliasRefs))
		for i, a := range h.AliasRefs {
			refs[i] = "`" + a.String() + "`"
		}
		fmt.Fprintf(sb, "- **Also at:** %s\n", strings.Join(refs, ", "))
	}
	fmt.Fprintf(sb, "- **Kind:** %s", h.MediaKind)
	if h.SizeBytes > 0 {
		fmt.Fprintf(sb, " (%s)", humanSize(h.SizeBytes))
	}
	sb.WriteString("\n")
	if !h.CreatedAt.IsZero() {
		fmt.Fprintf(sb, "- **Posted:** %s\n", h.CreatedAt.UTC().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(sb, "- **Score:** %.2f\n\n", h.Score)
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
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
