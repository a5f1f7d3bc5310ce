package reindex

import (
	"context"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/forum"
	"github.com/xHumanityRO/forumsearch/internal/index"
)

// PostSource reads posts from the relational store.
type PostSource interface {
	// PostIDBounds returns the smallest and largest post ids, or 0, 0 when
	// there are no posts.
	PostIDBounds(ctx context.Context) (first, last int, err error)

	// FirstPostIDByDate returns the smallest id of a post made at or after
	// t, or 0 when there is none.
	FirstPostIDByDate(ctx context.Context, t time.Time) (int, error)

	// LastPostIDByDate returns the largest id of a post made at or before
	// t, or 0 when there is none.
	LastPostIDByDate(ctx context.Context, t time.Time) (int, error)

	// PostsToIndex returns the posts with from <= id <= to, ordered by id.
	PostsToIndex(ctx context.Context, from, to int) ([]*forum.Post, error)
}

// Target is the index a job writes to.
type Target interface {
	FindByKey(ctx context.Context, postID int) (index.Document, bool, error)
	BatchCreate(ctx context.Context, p *forum.Post) error
	Flush(ctx context.Context) error
	Recreate(ctx context.Context) error
}

// Observer receives job events, typically to update metrics.
type Observer interface {
	JobStarted()
	PostsIndexed(n int)
	PostsSkipped(n int)
	JobFinished(outcome Outcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) JobStarted()                        {}
func (nopObserver) PostsIndexed(int)                   {}
func (nopObserver) PostsSkipped(int)                   {}
func (nopObserver) JobFinished(Outcome, time.Duration) {}
