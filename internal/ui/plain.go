package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/reindex"
)

// PlainRenderer prints one line per progress change (for CI and pipes).
type PlainRenderer struct {
	mu   sync.Mutex
	out  io.Writer
	last reindex.ProgressSnapshot
	seen bool
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// Update implements Renderer. Snapshots identical to the previous one are
// not printed again.
func (r *PlainRenderer) Update(snap reindex.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen && sameProgress(r.last, snap) {
		return
	}
	r.last, r.seen = snap, true

	phase := PhaseOf(snap)
	if phase == PhaseResolving {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", phase.Icon(), snap.Spec.String())
		return
	}
	_, _ = fmt.Fprintf(r.out, "[%s] %d/%d posts (%.0f%%) last=%d\n",
		phase.Icon(), snap.Indexed+snap.Skipped, snap.LastID-snap.FirstID+1, snap.ProgressPct, snap.LastPostID)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(snap reindex.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Duration(snap.Elapsed * float64(time.Second)).Round(100 * time.Millisecond)
	_, _ = fmt.Fprintf(r.out, "Reindex %s: %d indexed, %d skipped, %d fetches in %s",
		snap.Outcome, snap.Indexed, snap.Skipped, snap.Fetches, elapsed)
	if snap.FirstID > 0 {
		_, _ = fmt.Fprintf(r.out, " (posts %d..%d)", snap.FirstID, snap.LastID)
	}
	_, _ = fmt.Fprintln(r.out)
	if snap.Error != "" {
		_, _ = fmt.Fprintf(r.out, "ERROR: %s (last processed post %d)\n", snap.Error, snap.LastPostID)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

func sameProgress(a, b reindex.ProgressSnapshot) bool {
	return a.Outcome == b.Outcome && a.LastID == b.LastID &&
		a.Indexed == b.Indexed && a.Skipped == b.Skipped && a.LastPostID == b.LastPostID
}

var _ Renderer = (*PlainRenderer)(nil)
