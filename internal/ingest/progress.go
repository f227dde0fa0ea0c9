package ingest

import (
	"sync"
	"time"
)

// RunStatus is the state of an ingestion run.
type RunStatus string

const (
	// StatusRunning indicates events are still being consumed.
	StatusRunning RunStatus = "running"
	// StatusDone indicates the source was drained.
	StatusDone RunStatus = "done"
	// StatusError indicates the run stopped on a source or context error.
	StatusError RunStatus = "error"
)

// Stats counts what happened to the events of one run. Every received
// event ends up in exactly one of the outcome counters.
type Stats struct {
	RunID      string        `json:"run_id"`
	Source     string        `json:"source"`
	Status     RunStatus     `json:"status"`
	Received   int           `json:"received"`
	Inserted   int           `json:"inserted"`
	Merged     int           `json:"merged"`
	Tombstoned int           `json:"tombstoned"`
	Ignored    int           `json:"ignored"`
	Malformed  int           `json:"malformed"`
	Failed     int           `json:"failed"`
	Retries    int           `json:"retries"`
	Queued     int           `json:"queued"`
	Elapsed    time.Duration `json:"elapsed"`
	Error      string        `json:"error,omitempty"`
}

// Processed is the number of events with a final outcome.
func (s Stats) Processed() int {
	return s.Inserted + s.Merged + s.Tombstoned + s.Ignored + s.Malformed + s.Failed
}

// Rate is processed events per second over the run so far.
func (s Stats) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Processed()) / s.Elapsed.Seconds()
}

// Progress tracks a run. Safe for concurrent use: the writer updates it
// while status requests and the progress UI read snapshots.
type Progress struct {
	mu    sync.RWMutex
	stats Stats
	start time.Time
	end   time.Time
	queue func() int
}

func newProgress(runID, source string, queue func() int) *Progress {
	return &Progress{
		stats: Stats{RunID: runID, Source: source, Status: StatusRunning},
		start: time.Now(),
		queue: queue,
	}
}

func (p *Progress) update(fn func(*Stats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.stats)
}

func (p *Progress) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Status = StatusDone
	if err != nil {
		p.stats.Status = StatusError
		p.stats.Error = err.Error()
	}
	p.end = time.Now()
	p.queue = nil
}

// Snapshot returns a copy of the current counters.
func (p *Progress) Snapshot() Stats {
	p.mu.RLock()
	s := p.stats
	queue := p.queue
	end := p.end
	p.mu.RUnlock()

	if end.IsZero() {
		end = time.Now()
	}
	s.Elapsed = end.Sub(p.start)
	if queue != nil {
		s.Queued = queue()
	}
	return s
}
