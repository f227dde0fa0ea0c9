package ui

import (
	"bytes"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
)

func TestNewTUIRenderer_FailsForNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestIngestModel_ViewShowsCounters(t *testing.T) {
	// Given: a model that received stats
	model := newIngestModel(NewProgressTracker(), "inbox", 0)
	model.styles = NoColorStyles()
	model.Update(statsMsg(ingest.Stats{Received: 12, Inserted: 9, Merged: 2, Malformed: 1}))

	// When: rendering
	view := model.View()

	// Then: the panel shows the title and counters
	assert.Contains(t, view, "Ingesting inbox")
	assert.Contains(t, view, "received")
	assert.Contains(t, view, "12")
	assert.Contains(t, view, "ev/s")
	assert.NotContains(t, view, "queue")
	assert.NotContains(t, view, "retries")
}

func TestIngestModel_QueueGauge(t *testing.T) {
	model := newIngestModel(NewProgressTracker(), "", 10)
	model.styles = NoColorStyles()
	model.Update(statsMsg(ingest.Stats{Queued: 4}))

	assert.Contains(t, model.View(), "4/10")
}

func TestIngestModel_FailuresShown(t *testing.T) {
	model := newIngestModel(NewProgressTracker(), "", 0)
	model.styles = NoColorStyles()
	model.Update(statsMsg(ingest.Stats{Failed: 2, Retries: 5}))

	assert.Contains(t, model.View(), "retries")
}

func TestIngestModel_CompleteQuits(t *testing.T) {
	// Given: a running model
	model := newIngestModel(NewProgressTracker(), "", 0)
	model.styles = NoColorStyles()

	// When: the run completes
	_, cmd := model.Update(completeMsg(ingest.Stats{Status: ingest.StatusDone, Inserted: 4}))

	// Then: the model quits and shows the summary
	assert.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, model.View(), "Done: 4 events")
}

func TestIngestModel_CtrlCQuits(t *testing.T) {
	model := newIngestModel(NewProgressTracker(), "", 0)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestIngestModel_WindowResize(t *testing.T) {
	model := newIngestModel(NewProgressTracker(), "", 0)
	model.Update(tea.WindowSizeMsg{Width: 40, Height: 20})
	assert.Equal(t, 40, model.width)
}
