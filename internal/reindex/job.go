// Package reindex runs bulk (re)indexing jobs that page posts out of the
// relational store into the search index.
package reindex

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/errors"
)

// Epoch is the start of the full-history window used by startup rebuilds.
var Epoch = time.Unix(0, 0).UTC()

// JobSpec describes one reindex job. Either the id range or the date range
// is used; zero ids mean "from the first" and "to the last" post in storage.
type JobSpec struct {
	FirstPostID int       `json:"first_post_id,omitempty"`
	LastPostID  int       `json:"last_post_id,omitempty"`
	FromDate    time.Time `json:"from_date,omitempty"`
	ToDate      time.Time `json:"to_date,omitempty"`

	// Recreate empties the index before indexing. It makes AvoidDuplicates
	// irrelevant, so duplicates are not checked when it is set.
	Recreate bool `json:"recreate"`

	// AvoidDuplicates skips posts already present in the index.
	AvoidDuplicates bool `json:"avoid_duplicates"`
}

// ByDate reports whether the job selects posts by date.
func (s JobSpec) ByDate() bool {
	return !s.FromDate.IsZero() || !s.ToDate.IsZero()
}

// Validate rejects ambiguous or negative ranges.
func (s JobSpec) Validate() error {
	if s.ByDate() && (s.FirstPostID != 0 || s.LastPostID != 0) {
		return errors.New(errors.ErrCodeInvalidRange, "use either a post id range or a date range, not both", nil)
	}
	if s.FirstPostID < 0 || s.LastPostID < 0 {
		return errors.New(errors.ErrCodeInvalidRange,
			fmt.Sprintf("post ids must be positive, got [%d, %d]", s.FirstPostID, s.LastPostID), nil)
	}
	return nil
}

// String renders the job description for logs.
func (s JobSpec) String() string {
	if s.ByDate() {
		return fmt.Sprintf("dates[%s..%s] recreate=%t avoid_duplicates=%t",
			s.FromDate.Format(time.RFC3339), s.ToDate.Format(time.RFC3339), s.Recreate, s.AvoidDuplicates)
	}
	return fmt.Sprintf("ids[%d..%d] recreate=%t avoid_duplicates=%t",
		s.FirstPostID, s.LastPostID, s.Recreate, s.AvoidDuplicates)
}

// FullHistory returns the job run after the index was recreated at startup.
func FullHistory(now time.Time) JobSpec {
	return JobSpec{FromDate: Epoch, ToDate: now, AvoidDuplicates: true}
}

// Token is a per-job cancellation flag.
type Token struct {
	cancelled atomic.Bool
}

// Cancel requests the job to stop at its next poll point.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Outcome is how a job ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
	// OutcomeEmpty means the resolved window contained no posts.
	OutcomeEmpty Outcome = "empty"
)

// ProgressSnapshot is an immutable copy of job progress.
type ProgressSnapshot struct {
	Outcome     Outcome   `json:"outcome"`
	Spec        JobSpec   `json:"spec"`
	FirstID     int       `json:"first_id"`
	LastID      int       `json:"last_id"`
	Indexed     int       `json:"indexed"`
	Skipped     int       `json:"skipped"`
	Fetches     int       `json:"fetches"`
	LastPostID  int       `json:"last_processed_id"`
	StartedAt   time.Time `json:"started_at"`
	Elapsed     float64   `json:"elapsed_seconds"`
	ProgressPct float64   `json:"progress_pct"`
	Error       string    `json:"error,omitempty"`
}

// Progress tracks one job. Safe for concurrent readers.
type Progress struct {
	mu sync.RWMutex

	outcome    Outcome
	spec       JobSpec
	firstID    int
	lastID     int
	indexed    int
	skipped    int
	fetches    int
	lastPostID int
	startedAt  time.Time
	finishedAt time.Time
	chunkStart time.Time
	err        string
}

func newProgress(spec JobSpec, now time.Time) *Progress {
	return &Progress{
		outcome:    OutcomeRunning,
		spec:       spec,
		startedAt:  now,
		chunkStart: now,
	}
}

func (p *Progress) setWindow(first, last int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.firstID, p.lastID = first, last
}

func (p *Progress) fetched() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
}

// processed records one post and reports whether a progress chunk of
// size every just completed, returning the chunk duration.
func (p *Progress) processed(postID int, skipped bool, every int, now time.Time) (chunkDone bool, chunk time.Duration, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if skipped {
		p.skipped++
	} else {
		p.indexed++
	}
	p.lastPostID = postID

	total = p.indexed + p.skipped
	if every > 0 && total%every == 0 {
		chunk = now.Sub(p.chunkStart)
		p.chunkStart = now
		return true, chunk, total
	}
	return false, 0, total
}

func (p *Progress) finish(outcome Outcome, err error, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.outcome = outcome
	p.finishedAt = now
	if err != nil {
		p.err = err.Error()
	}
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	end := p.finishedAt
	if end.IsZero() {
		end = time.Now()
	}

	var pct float64
	if span := p.lastID - p.firstID + 1; p.lastID > 0 && span > 0 && p.lastPostID >= p.firstID {
		pct = float64(p.lastPostID-p.firstID+1) / float64(span) * 100.0
	}
	if p.outcome == OutcomeCompleted || p.outcome == OutcomeEmpty {
		pct = 100
	}

	return ProgressSnapshot{
		Outcome:     p.outcome,
		Spec:        p.spec,
		FirstID:     p.firstID,
		LastID:      p.lastID,
		Indexed:     p.indexed,
		Skipped:     p.skipped,
		Fetches:     p.fetches,
		LastPostID:  p.lastPostID,
		StartedAt:   p.startedAt,
		Elapsed:     end.Sub(p.startedAt).Seconds(),
		ProgressPct: pct,
		Error:       p.err,
	}
}
