package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
)

// TUIRenderer draws a live ingest panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *ingestModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when output is not a
// terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	tracker := NewProgressTracker()
	model := newIngestModel(tracker, cfg.Title, cfg.QueueSize)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}
	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start runs the bubbletea program in the background.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	// No input: stdin may carry events, and Ctrl+C reaches the process as
	// SIGINT, which cancels ctx.
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithInput(nil), tea.WithoutSignalHandler()}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Update feeds the tracker and nudges the view.
func (r *TUIRenderer) Update(stats ingest.Stats) {
	r.tracker.Update(stats)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(statsMsg(stats))
	}
}

// Complete shows the summary and ends the program.
func (r *TUIRenderer) Complete(stats ingest.Stats) {
	r.tracker.Update(stats)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop quits the program and waits briefly for the terminal to be
// restored.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program, started := r.program, r.started
	r.mu.Unlock()
	if !started {
		return nil
	}
	program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		program.Kill()
	}
	return nil
}

type (
	statsMsg    ingest.Stats
	completeMsg ingest.Stats
	tickMsg     time.Time
)

type ingestModel struct {
	tracker   *ProgressTracker
	title     string
	queueSize int
	styles    Styles
	spinner   spinner.Model
	queue     progress.Model
	latest    ingest.Stats
	final     *ingest.Stats
	width     int
}

func newIngestModel(tracker *ProgressTracker, title string, queueSize int) *ingestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))
	return &ingestModel{
		tracker:   tracker,
		title:     title,
		queueSize: queueSize,
		styles:    DefaultStyles(),
		spinner:   s,
		queue: progress.New(
			progress.WithSolidFill(ColorLimeDim),
			progress.WithoutPercentage(),
			progress.WithWidth(30)),
		width: 80,
	}
}

func (m *ingestModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case statsMsg:
		m.latest = ingest.Stats(msg)
	case completeMsg:
		final := ingest.Stats(msg)
		m.latest, m.final = final, &final
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ingestModel) View() string {
	st := m.styles
	if m.final != nil {
		line := summaryLine(*m.final)
		if m.final.Status == ingest.StatusError {
			return st.Error.Render(line) + "\n" + st.Dim.Render(m.final.Error) + "\n"
		}
		return st.Success.Render(line) + "\n"
	}

	stats := m.tracker.Stats()
	var b strings.Builder
	header := "Ingesting"
	if m.title != "" {
		header += " " + m.title
	}
	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), st.Header.Render(header))

	row := func(label string, v int) string {
		return st.Label.Render(fmt.Sprintf("%-11s", label)) + st.Value.Render(fmt.Sprintf("%8d", v))
	}
	s := m.latest
	b.WriteString(row("received", s.Received) + "   " + row("inserted", s.Inserted) + "\n")
	b.WriteString(row("merged", s.Merged) + "   " + row("tombstoned", s.Tombstoned) + "\n")
	b.WriteString(row("ignored", s.Ignored) + "   " + row("malformed", s.Malformed) + "\n")
	if s.Failed > 0 || s.Retries > 0 {
		b.WriteString(st.Warning.Render(fmt.Sprintf("%-11s%8d   %-11s%8d", "failed", s.Failed, "retries", s.Retries)) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(st.Speed.Render(fmt.Sprintf("%.0f ev/s  avg %.0f  peak %.0f  %s",
		stats.Speed.Current, stats.Speed.Avg, stats.Speed.Peak, stats.Elapsed.Round(time.Second))))
	b.WriteString("\n")
	spark := max(10, min(60, m.width-8))
	b.WriteString(st.Sparkline.Render(m.tracker.RenderSparkline(spark)) + "\n")

	if m.queueSize > 0 {
		fill := float64(s.Queued) / float64(m.queueSize)
		b.WriteString(st.Label.Render("queue ") + m.queue.ViewAs(min(fill, 1)) +
			st.Dim.Render(fmt.Sprintf(" %d/%d", s.Queued, m.queueSize)) + "\n")
	}
	return st.Panel.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}
