package ui

import (
	"sync"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/ingest"
)

// speedInterval is the minimum spacing of throughput samples.
const speedInterval = 500 * time.Millisecond

// ProgressTracker turns a stream of ingest stats into throughput figures.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu        sync.RWMutex
	latest    ingest.Stats
	startTime time.Time

	lastProcessed int
	lastSample    time.Time
	currentSpeed  float64
	avgSpeed      float64
	peakSpeed     float64
	samples       int
	sparkline     *Sparkline
}

// SpeedStats contains events/second figures.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot for rendering.
type ProgressStats struct {
	Ingest  ingest.Stats
	Speed   SpeedStats
	Elapsed time.Duration
}

// NewProgressTracker creates a tracker.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		startTime:  now,
		lastSample: now,
		sparkline:  NewSparkline(60),
	}
}

// Update records the latest stats and samples throughput at most every
// speedInterval.
func (p *ProgressTracker) Update(stats ingest.Stats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = stats
	p.sampleLocked(time.Now())
}

func (p *ProgressTracker) sampleLocked(now time.Time) {
	elapsed := now.Sub(p.lastSample)
	if elapsed < speedInterval {
		return
	}
	processed := p.latest.Processed()
	speed := float64(processed-p.lastProcessed) / elapsed.Seconds()
	p.currentSpeed = speed
	p.samples++
	if p.samples == 1 {
		p.avgSpeed = speed
	} else {
		p.avgSpeed = 0.2*speed + 0.8*p.avgSpeed
	}
	p.peakSpeed = max(p.peakSpeed, speed)
	p.sparkline.Add(speed)

	p.lastProcessed = processed
	p.lastSample = now
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProgressStats{
		Ingest:  p.latest,
		Speed:   SpeedStats{Current: p.currentSpeed, Avg: p.avgSpeed, Peak: p.peakSpeed},
		Elapsed: time.Since(p.startTime),
	}
}

// RenderSparkline returns the throughput sparkline.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sparkline.RenderWithWidth(width)
}
