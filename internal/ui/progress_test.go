package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
)

func TestProgressTracker_Speeds(t *testing.T) {
	// Given: a tracker sampled one second apart
	p := NewProgressTracker()
	base := p.lastSample

	p.latest = ingest.Stats{Received: 100, Inserted: 100}
	p.sampleLocked(base.Add(time.Second))
	p.latest = ingest.Stats{Received: 150, Inserted: 120, Merged: 30}
	p.sampleLocked(base.Add(2 * time.Second))

	// Then: current, smoothed average, and peak follow the samples
	s := p.Stats()
	assert.InDelta(t, 50, s.Speed.Current, 0.001)
	assert.InDelta(t, 90, s.Speed.Avg, 0.001)
	assert.InDelta(t, 100, s.Speed.Peak, 0.001)
	assert.Equal(t, 150, s.Ingest.Processed())
}

func TestProgressTracker_IgnoresFastSamples(t *testing.T) {
	p := NewProgressTracker()
	base := p.lastSample

	p.latest = ingest.Stats{Inserted: 10}
	p.sampleLocked(base.Add(100 * time.Millisecond))

	assert.Zero(t, p.Stats().Speed.Current)
	assert.Zero(t, p.sparkline.Count())
}

func TestProgressTracker_UpdateKeepsLatest(t *testing.T) {
	p := NewProgressTracker()
	p.Update(ingest.Stats{Received: 7, Source: "inbox"})

	assert.Equal(t, 7, p.Stats().Ingest.Received)
	assert.Equal(t, "inbox", p.Stats().Ingest.Source)
}

func TestSparkline_Render(t *testing.T) {
	// Given: a five-wide sparkline with three samples
	s := NewSparkline(5)
	s.Add(1)
	s.Add(2)
	s.Add(3)

	// Then: bars scale to the maximum and the rest is padded
	assert.Equal(t, "▃▅█  ", s.Render())
	assert.Equal(t, "▅█", s.RenderWithWidth(2))
}

func TestSparkline_Empty(t *testing.T) {
	s := NewSparkline(4)
	assert.Equal(t, "▁▁▁▁", s.Render())
}

func TestSparkline_WrapsAndShowsNewest(t *testing.T) {
	s := NewSparkline(3)
	for _, v := range []float64{8, 8, 8, 0, 0} {
		s.Add(v)
	}
	// The newest three samples are 8, 0, 0.
	assert.Equal(t, "█▁▁", s.Render())
	assert.Equal(t, 5, s.Count())
}

func TestSparkline_Clear(t *testing.T) {
	s := NewSparkline(3)
	s.Add(5)
	s.Clear()
	assert.Zero(t, s.Count())
	assert.Zero(t, s.Max())
}
