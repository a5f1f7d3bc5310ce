package ui

import (
	"sync"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/reindex"
)

// etaSmoothing is the weight given to a new ETA sample.
const etaSmoothing = 0.3

// speedInterval is the minimum gap between throughput samples.
const speedInterval = 500 * time.Millisecond

// SpeedStats contains throughput in posts per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a display-ready view of a job.
type ProgressStats struct {
	Phase     Phase
	Snapshot  reindex.ProgressSnapshot
	Processed int
	Fraction  float64
	ETA       time.Duration
	Speed     SpeedStats
}

// ProgressTracker turns successive snapshots into speed and ETA figures.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu   sync.Mutex
	snap reindex.ProgressSnapshot

	lastProcessed int
	lastSample    time.Time
	speed         SpeedStats
	samples       int
	lastETA       time.Duration
	spark         *Sparkline

	now func() time.Time
}

// NewProgressTracker creates a tracker.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	return &ProgressTracker{
		lastSample: now(),
		spark:      NewSparkline(60),
		now:        now,
	}
}

// Observe records a new snapshot.
func (p *ProgressTracker) Observe(snap reindex.ProgressSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snap = snap
	processed := snap.Indexed + snap.Skipped

	now := p.now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < speedInterval {
		return
	}
	if delta := processed - p.lastProcessed; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.speed.Current = speed
		p.samples++
		if p.samples == 1 {
			p.speed.Avg = speed
		} else {
			p.speed.Avg = 0.2*speed + 0.8*p.speed.Avg
		}
		p.speed.Peak = max(p.speed.Peak, speed)
		p.spark.Add(speed)
	}
	p.lastProcessed = processed
	p.lastSample = now
}

// Stats returns the current view.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	fraction := p.snap.ProgressPct / 100
	fraction = min(max(fraction, 0), 1)

	return ProgressStats{
		Phase:     PhaseOf(p.snap),
		Snapshot:  p.snap,
		Processed: p.snap.Indexed + p.snap.Skipped,
		Fraction:  fraction,
		ETA:       p.eta(fraction),
		Speed:     p.speed,
	}
}

// eta extrapolates from elapsed time, smoothed against the previous value.
func (p *ProgressTracker) eta(fraction float64) time.Duration {
	if fraction <= 0 || fraction >= 1 || p.snap.Elapsed <= 0 {
		return 0
	}
	elapsed := time.Duration(p.snap.Elapsed * float64(time.Second))
	raw := time.Duration(float64(elapsed)/fraction) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}

// Sparkline renders recent throughput.
func (p *ProgressTracker) Sparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spark.Render(width)
}
