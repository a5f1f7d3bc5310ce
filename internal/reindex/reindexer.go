package reindex

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/errors"
)

// ErrJobRunning is returned by Run when another job is in flight.
var ErrJobRunning = stderrors.New("a reindex job is already running")

// Defaults used when Config leaves a field zero.
const (
	DefaultFetchCount    = 1000
	MaxFetchCount        = 100000
	DefaultProgressEvery = 1000
)

// Config configures a Reindexer.
type Config struct {
	// FetchCount is the number of post ids requested per storage page.
	FetchCount int
	// ProgressEvery is the number of processed posts between progress logs.
	ProgressEvery int

	Logger   *slog.Logger
	Observer Observer

	// OnFinish is called with the final progress of every job.
	OnFinish func(ProgressSnapshot)
}

// Reindexer runs at most one job at a time.
type Reindexer struct {
	target Target
	source PostSource
	cfg    Config
	logger *slog.Logger

	running atomic.Bool

	mu       sync.Mutex
	token    *Token
	progress *Progress
	done     chan struct{}
}

// New creates a Reindexer writing to target with posts from source.
func New(target Target, source PostSource, cfg Config) *Reindexer {
	if cfg.FetchCount <= 0 {
		cfg.FetchCount = DefaultFetchCount
	}
	if cfg.FetchCount > MaxFetchCount {
		cfg.FetchCount = MaxFetchCount
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Reindexer{
		target: target,
		source: source,
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// IsRunning reports whether a job is in flight.
func (r *Reindexer) IsRunning() bool {
	return r.running.Load()
}

// Progress returns the progress of the current or most recent job.
// ok is false when no job has run yet.
func (r *Reindexer) Progress() (snap ProgressSnapshot, ok bool) {
	r.mu.Lock()
	p := r.progress
	r.mu.Unlock()

	if p == nil {
		return ProgressSnapshot{}, false
	}
	return p.Snapshot(), true
}

// Start runs spec on a new goroutine and returns immediately. started is
// false, and nothing happens, when a job is already running. ctx bounds the
// job's lifetime, so pass a long-lived context rather than a request one.
func (r *Reindexer) Start(ctx context.Context, spec JobSpec) (started bool, err error) {
	return r.start(ctx, spec, nil)
}

// StartFullRebuild indexes the whole post history, skipping posts that are
// already indexed, and calls done when the job ends.
func (r *Reindexer) StartFullRebuild(ctx context.Context, done func(error)) bool {
	started, err := r.start(ctx, FullHistory(time.Now()), done)
	if err != nil {
		r.logger.Error("reindex_rebuild_rejected", slog.String("error", err.Error()))
	}
	return started
}

func (r *Reindexer) start(ctx context.Context, spec JobSpec, done func(error)) (bool, error) {
	if err := spec.Validate(); err != nil {
		return false, err
	}
	tok, finished, ok := r.begin(spec)
	if !ok {
		r.logger.Info("reindex_already_running", slog.String("spec", spec.String()))
		return false, nil
	}

	go func() {
		_, err := r.execute(ctx, spec, tok, finished)
		if done != nil {
			done(err)
		}
	}()
	return true, nil
}

// Run executes spec on the calling goroutine and returns the final progress.
func (r *Reindexer) Run(ctx context.Context, spec JobSpec) (ProgressSnapshot, error) {
	if err := spec.Validate(); err != nil {
		return ProgressSnapshot{}, err
	}
	tok, finished, ok := r.begin(spec)
	if !ok {
		return ProgressSnapshot{}, ErrJobRunning
	}
	return r.execute(ctx, spec, tok, finished)
}

// Stop cancels the running job. It reports whether there was one.
func (r *Reindexer) Stop() bool {
	r.mu.Lock()
	tok := r.token
	running := r.running.Load()
	r.mu.Unlock()

	if tok == nil || !running {
		return false
	}
	tok.Cancel()
	r.logger.Info("reindex_stop_requested")
	return true
}

// Wait blocks until the current job, if any, has ended.
func (r *Reindexer) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done != nil {
		<-done
	}
}

// begin claims the in-progress marker and installs fresh per-job state.
// Both happen under mu so Stop never sees the marker with a stale token.
func (r *Reindexer) begin(spec JobSpec) (*Token, chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.CompareAndSwap(false, true) {
		return nil, nil, false
	}

	tok := &Token{}
	finished := make(chan struct{})
	r.token = tok
	r.progress = newProgress(spec, time.Now())
	r.done = finished

	return tok, finished, true
}

// execute is the job body. It always ends with exactly one Flush, then
// clears the in-progress marker.
func (r *Reindexer) execute(ctx context.Context, spec JobSpec, tok *Token, finished chan struct{}) (snap ProgressSnapshot, err error) {
	r.mu.Lock()
	progress := r.progress
	r.mu.Unlock()

	start := time.Now()
	outcome := OutcomeCompleted

	r.logger.Info("reindex_started", slog.String("spec", spec.String()))
	r.cfg.Observer.JobStarted()

	defer func() {
		// Flush with a fresh context so a cancelled job keeps its progress.
		if ferr := r.target.Flush(context.WithoutCancel(ctx)); ferr != nil {
			if err == nil {
				err = ferr
				outcome = OutcomeFailed
			} else {
				r.logger.Warn("reindex_flush_failed", slog.String("error", ferr.Error()))
			}
		}

		progress.finish(outcome, err, time.Now())
		snap = progress.Snapshot()
		r.logFinished(snap, err)
		r.cfg.Observer.JobFinished(outcome, time.Since(start))
		if r.cfg.OnFinish != nil {
			r.cfg.OnFinish(snap)
		}

		r.running.Store(false)
		close(finished)
	}()

	first, last, err := r.resolveWindow(ctx, spec)
	if err != nil {
		outcome = OutcomeFailed
		return snap, err
	}
	progress.setWindow(first, last)

	if first == 0 || last == 0 || first > last {
		outcome = OutcomeEmpty
		return snap, nil
	}

	if spec.Recreate {
		if err = r.target.Recreate(ctx); err != nil {
			outcome = OutcomeFailed
			return snap, err
		}
	}
	avoidDuplicates := spec.AvoidDuplicates && !spec.Recreate

	outcome, err = r.loop(ctx, tok, progress, first, last, avoidDuplicates)
	return snap, err
}

// loop pages over [first, last] and feeds the index.
func (r *Reindexer) loop(ctx context.Context, tok *Token, progress *Progress, first, last int, avoidDuplicates bool) (Outcome, error) {
	fetch := r.cfg.FetchCount

	for cursor := first; cursor <= last; {
		if cancelled(ctx, tok) {
			return OutcomeCancelled, nil
		}

		to := last
		if last-cursor >= fetch {
			to = cursor + fetch - 1
		}

		posts, err := r.source.PostsToIndex(ctx, cursor, to)
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeCancelled, nil
			}
			return OutcomeFailed, errors.StorageFetchFailure(
				fmt.Sprintf("cannot fetch posts %d..%d", cursor, to), err).
				WithDetail("from", fmt.Sprint(cursor)).
				WithDetail("to", fmt.Sprint(to))
		}
		progress.fetched()

		for _, p := range posts {
			if cancelled(ctx, tok) {
				return OutcomeCancelled, nil
			}

			if avoidDuplicates {
				_, found, ferr := r.target.FindByKey(ctx, p.ID)
				if ferr != nil {
					return OutcomeFailed, ferr
				}
				if found {
					r.cfg.Observer.PostsSkipped(1)
					r.tick(progress, p.ID, true)
					continue
				}
			}

			if err := r.target.BatchCreate(ctx, p); err != nil {
				return OutcomeFailed, err
			}
			r.cfg.Observer.PostsIndexed(1)
			r.tick(progress, p.ID, false)
		}
		if to == last {
			break
		}
		cursor = to + 1
	}

	return OutcomeCompleted, nil
}

func (r *Reindexer) tick(progress *Progress, postID int, skipped bool) {
	chunkDone, chunk, total := progress.processed(postID, skipped, r.cfg.ProgressEvery, time.Now())
	if !chunkDone {
		return
	}
	r.logger.Info("reindex_progress",
		slog.Int("chunk", r.cfg.ProgressEvery),
		slog.Duration("chunk_elapsed", chunk),
		slog.Int("processed", total),
		slog.Int("last_post_id", postID))
}

// resolveWindow turns spec into an id window clamped to the ids in storage.
// A zero bound means the window is empty.
func (r *Reindexer) resolveWindow(ctx context.Context, spec JobSpec) (first, last int, err error) {
	minID, maxID, err := r.source.PostIDBounds(ctx)
	if err != nil {
		return 0, 0, errors.StorageFetchFailure("cannot read post id bounds", err)
	}
	if minID == 0 && maxID == 0 {
		return 0, 0, nil
	}

	if spec.ByDate() {
		from, to := spec.FromDate, spec.ToDate
		if from.IsZero() {
			from = Epoch
		}
		if to.IsZero() {
			to = time.Now()
		}
		if first, err = r.source.FirstPostIDByDate(ctx, from); err != nil {
			return 0, 0, errors.StorageFetchFailure("cannot resolve first post by date", err)
		}
		if last, err = r.source.LastPostIDByDate(ctx, to); err != nil {
			return 0, 0, errors.StorageFetchFailure("cannot resolve last post by date", err)
		}
		if first == 0 || last == 0 {
			return 0, 0, nil
		}
	} else {
		first, last = spec.FirstPostID, spec.LastPostID
		if first == 0 {
			first = minID
		}
		if last == 0 {
			last = maxID
		}
	}

	if first < minID {
		first = minID
	}
	if last > maxID {
		last = maxID
	}
	return first, last, nil
}

func (r *Reindexer) logFinished(snap ProgressSnapshot, err error) {
	attrs := []any{
		slog.String("outcome", string(snap.Outcome)),
		slog.String("spec", snap.Spec.String()),
		slog.Int("indexed", snap.Indexed),
		slog.Int("skipped", snap.Skipped),
		slog.Int("fetches", snap.Fetches),
		slog.Int("last_post_id", snap.LastPostID),
		slog.Float64("elapsed_seconds", snap.Elapsed),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		r.logger.Error("reindex_failed", attrs...)
		return
	}
	r.logger.Info("reindex_finished", attrs...)
}

func cancelled(ctx context.Context, tok *Token) bool {
	return tok.Cancelled() || ctx.Err() != nil
}
