package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// LogEntry is one parsed JSON log line.
type LogEntry struct {
	Time  time.Time
	Level string
	Msg   string
	Attrs map[string]any
	// Raw is the original line; it is printed as-is when not valid JSON.
	Raw     string
	IsValid bool
}

// Code returns the error_code attribute, if any.
func (e LogEntry) Code() string {
	code, _ := e.Attrs["error_code"].(string)
	return code
}

// ViewerConfig filters and formats entries.
type ViewerConfig struct {
	// Level is the minimum level shown. Empty shows everything.
	Level string
	// Pattern matches against the raw line.
	Pattern *regexp.Regexp
	// Code keeps only entries with this error_code (e.g. ERR_201).
	Code    string
	NoColor bool
}

// Viewer reads, filters and prints the server log.
type Viewer struct {
	config ViewerConfig
	out    io.Writer
	levels map[string]lipgloss.Style
	dim    lipgloss.Style
}

// NewViewer creates a viewer printing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	v := &Viewer{config: cfg, out: out, levels: map[string]lipgloss.Style{}}
	if !cfg.NoColor {
		v.levels["DEBUG"] = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
		v.levels["INFO"] = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
		v.levels["WARN"] = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
		v.levels["ERROR"] = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
		v.dim = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	}
	return v
}

const maxLogLine = 1 << 20

// Tail returns the matching entries among the last n lines of path.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	n = max(n, 0)
	// Ring of the last n lines.
	lines := make([]string, 0, n)
	next := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLogLine)
	for scanner.Scan() {
		if n == 0 {
			continue
		}
		if len(lines) < n {
			lines = append(lines, scanner.Text())
			continue
		}
		lines[next] = scanner.Text()
		next = (next + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	lines = append(lines[next:], lines[:next]...)

	var entries []LogEntry
	for _, line := range lines {
		entry := ParseLine(line)
		if v.Matches(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Follow sends entries appended to path until ctx is done. A file that
// shrinks was rotated and is reopened from the start.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReader(file)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if info, err := os.Stat(path); err == nil && info.Size() < offset {
			_ = file.Close()
			if file, err = os.Open(path); err != nil {
				return fmt.Errorf("reopen rotated log file: %w", err)
			}
			reader.Reset(file)
			offset, partial = 0, ""
		}

		for {
			chunk, err := reader.ReadString('\n')
			offset += int64(len(chunk))
			if err != nil {
				partial += chunk
				break
			}
			line := strings.TrimSuffix(partial+chunk, "\n")
			partial = ""
			if line == "" {
				continue
			}
			if entry := ParseLine(line); v.Matches(entry) {
				select {
				case entries <- entry:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// Print writes entries, one per line.
func (v *Viewer) Print(entries []LogEntry) {
	for _, entry := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

// FormatEntry renders "15:04:05.000 LEVEL msg key=value ..." with attributes
// in key order.
func (v *Viewer) FormatEntry(entry LogEntry) string {
	if !entry.IsValid {
		return entry.Raw
	}

	level := strings.ToUpper(entry.Level)
	padded := fmt.Sprintf("%-5s", level)
	if style, ok := v.levels[level]; ok {
		padded = style.Render(padded)
	}

	var b strings.Builder
	b.WriteString(v.render(v.dim, entry.Time.Format("15:04:05.000")))
	b.WriteByte(' ')
	b.WriteString(padded)
	b.WriteByte(' ')
	b.WriteString(entry.Msg)
	for _, k := range slices.Sorted(maps.Keys(entry.Attrs)) {
		b.WriteByte(' ')
		b.WriteString(v.render(v.dim, k+"="))
		fmt.Fprintf(&b, "%v", entry.Attrs[k])
	}
	return b.String()
}

func (v *Viewer) render(style lipgloss.Style, s string) string {
	if v.config.NoColor {
		return s
	}
	return style.Render(s)
}

// Matches reports whether entry passes the level, code and pattern filters.
// Lines that are not JSON only face the pattern filter.
func (v *Viewer) Matches(entry LogEntry) bool {
	if entry.IsValid {
		if v.config.Level != "" && ParseLevel(entry.Level) < ParseLevel(v.config.Level) {
			return false
		}
		if v.config.Code != "" && !strings.EqualFold(entry.Code(), v.config.Code) {
			return false
		}
	} else if v.config.Level != "" || v.config.Code != "" {
		return false
	}
	if v.config.Pattern != nil && !v.config.Pattern.MatchString(entry.Raw) {
		return false
	}
	return true
}

// ParseLine decodes one JSON log line as written by Setup.
func ParseLine(line string) LogEntry {
	entry := LogEntry{Raw: line}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return entry
	}
	entry.IsValid = true

	if t, ok := data["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			entry.Time = parsed
		}
	}
	entry.Level, _ = data["level"].(string)
	entry.Msg, _ = data["msg"].(string)

	delete(data, "time")
	delete(data, "level")
	delete(data, "msg")
	entry.Attrs = data
	return entry
}
