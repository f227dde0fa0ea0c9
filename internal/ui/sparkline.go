package ui

import "strings"

// Sparkline renders recent samples as a row of Unicode block characters.
type Sparkline struct {
	samples []float64 // ring buffer
	width   int
	head    int
	count   int
	max     float64
}

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// NewSparkline creates a sparkline holding width samples.
func NewSparkline(width int) *Sparkline {
	if width <= 0 {
		width = 60
	}
	return &Sparkline{samples: make([]float64, width), width: width}
}

// Add appends a sample, evicting the oldest when full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % s.width
	s.count++
	if value > s.max {
		s.max = value
	}
	// Rescan once per lap so the scale can shrink again.
	if s.count%s.width == 0 {
		s.recalculateMax()
	}
}

func (s *Sparkline) recalculateMax() {
	s.max = 0
	for _, v := range s.samples {
		s.max = max(s.max, v)
	}
	if s.max < 1 {
		s.max = 1
	}
}

// Render draws every held sample.
func (s *Sparkline) Render() string {
	return s.RenderWithWidth(s.width)
}

// RenderWithWidth draws the newest width samples, padding with spaces
// until enough samples exist.
func (s *Sparkline) RenderWithWidth(width int) string {
	if width <= 0 || width > s.width {
		width = s.width
	}
	if s.count == 0 {
		return strings.Repeat(string(SparklineChars[0]), width)
	}
	if s.max <= 0 {
		s.recalculateMax()
	}

	held := min(s.count, s.width)
	shown := min(held, width)

	var sb strings.Builder
	sb.Grow(width * 3)
	// Oldest shown sample sits shown steps behind head.
	for i := 0; i < shown; i++ {
		idx := (s.head - shown + i + s.width) % s.width
		sb.WriteRune(SparklineChars[s.level(s.samples[idx])])
	}
	for i := shown; i < width; i++ {
		sb.WriteRune(' ')
	}
	return sb.String()
}

func (s *Sparkline) level(v float64) int {
	idx := int(v / s.max * float64(len(SparklineChars)-1))
	return max(0, min(idx, len(SparklineChars)-1))
}

// Clear resets the sparkline.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head, s.count, s.max = 0, 0, 0
}

// Count returns the number of samples added.
func (s *Sparkline) Count() int {
	return s.count
}

// Max returns the current scale maximum.
func (s *Sparkline) Max() float64 {
	return s.max
}
