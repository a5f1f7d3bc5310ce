package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xHumanityRO/forumsearch/internal/reindex"
)

// fakeClock advances only when told to.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func running(processed int, pct, elapsed float64) reindex.ProgressSnapshot {
	return reindex.ProgressSnapshot{
		Outcome:     reindex.OutcomeRunning,
		FirstID:     1,
		LastID:      1000,
		Indexed:     processed,
		ProgressPct: pct,
		Elapsed:     elapsed,
	}
}

func TestProgressTracker_Speed(t *testing.T) {
	// Given: a tracker on a controlled clock
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := newProgressTracker(clock.now)

	// When: 100 posts are processed per second
	clock.t = clock.t.Add(time.Second)
	tr.Observe(running(100, 10, 1))
	clock.t = clock.t.Add(time.Second)
	tr.Observe(running(300, 30, 2))

	// Then: speed reflects the latest interval and the peak
	stats := tr.Stats()
	assert.InDelta(t, 200, stats.Speed.Current, 0.01)
	assert.InDelta(t, 200, stats.Speed.Peak, 0.01)
	assert.InDelta(t, 120, stats.Speed.Avg, 0.01)
	assert.Equal(t, 300, stats.Processed)
	assert.InDelta(t, 0.3, stats.Fraction, 0.001)
	assert.Equal(t, PhaseIndexing, stats.Phase)
}

func TestProgressTracker_IgnoresRapidSamples(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := newProgressTracker(clock.now)

	clock.t = clock.t.Add(100 * time.Millisecond)
	tr.Observe(running(50, 5, 0.1))

	assert.Zero(t, tr.Stats().Speed.Current)
	assert.Equal(t, 50, tr.Stats().Processed)
}

func TestProgressTracker_ETA(t *testing.T) {
	tr := NewProgressTracker()

	tr.Observe(running(250, 25, 10))
	assert.Equal(t, 30*time.Second, tr.Stats().ETA)

	tr.Observe(running(1000, 100, 40))
	assert.Zero(t, tr.Stats().ETA)
}

func TestSparkline_Render(t *testing.T) {
	s := NewSparkline(4)
	assert.Equal(t, "   ", s.Render(3))

	for _, v := range []float64{1, 2, 4, 8, 8} {
		s.Add(v)
	}

	assert.Equal(t, 4, s.Len())
	out := []rune(s.Render(4))
	assert.Len(t, out, 4)
	assert.Equal(t, '█', out[3])
	assert.Equal(t, '▂', out[0], "oldest kept sample is 2 of 8")

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m", formatDuration(2*time.Minute))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 30m", formatDuration(90*time.Minute))
}
