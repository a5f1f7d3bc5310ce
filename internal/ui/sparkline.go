package ui

import "strings"

// sparkChars are the eight bar heights, lowest first.
var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline is a fixed-size ring of throughput samples rendered as bars.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline holding size samples.
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{samples: make([]float64, size)}
}

// Add appends a sample, overwriting the oldest once full.
func (s *Sparkline) Add(v float64) {
	s.samples[s.head] = v
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Len returns the number of samples held.
func (s *Sparkline) Len() int {
	return min(s.count, len(s.samples))
}

// Clear drops all samples.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head, s.count = 0, 0
}

// recent returns up to n samples, oldest first.
func (s *Sparkline) recent(n int) []float64 {
	held := s.Len()
	if n > held {
		n = held
	}
	out := make([]float64, 0, n)
	size := len(s.samples)
	for i := held - n; i < held; i++ {
		start := 0
		if s.count >= size {
			start = s.head
		}
		out = append(out, s.samples[(start+i)%size])
	}
	return out
}

// Render draws the newest width samples, scaled to their maximum and
// right-padded with spaces.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	values := s.recent(width)

	peak := 0.0
	for _, v := range values {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	for _, v := range values {
		idx := 0
		if peak > 0 {
			idx = int(v / peak * float64(len(sparkChars)-1))
		}
		idx = min(max(idx, 0), len(sparkChars)-1)
		sb.WriteRune(sparkChars[idx])
	}
	sb.WriteString(strings.Repeat(" ", width-len(values)))
	return sb.String()
}
