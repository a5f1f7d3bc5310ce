package reindex

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xHumanityRO/forumsearch/internal/analysis"
	"github.com/xHumanityRO/forumsearch/internal/forum"
	"github.com/xHumanityRO/forumsearch/internal/index"
)

var t0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// memSource serves posts from memory and records every page request.
type memSource struct {
	mu      sync.Mutex
	posts   []*forum.Post // ordered by id
	fetches [][2]int
	failOn  int // page number (1-based) that fails, 0 = never
	onFetch func(n int)
}

func newMemSource(ids ...int) *memSource {
	s := &memSource{}
	for _, id := range ids {
		s.posts = append(s.posts, &forum.Post{
			ID:      id,
			ForumID: 1,
			TopicID: id / 10,
			UserID:  3,
			Time:    t0.Add(time.Duration(id) * time.Minute),
			Subject: "post",
			Text:    "body",
		})
	}
	return s
}

func idRange(first, last int) []int {
	out := make([]int, 0, last-first+1)
	for id := first; id <= last; id++ {
		out = append(out, id)
	}
	return out
}

func (s *memSource) PostIDBounds(context.Context) (int, int, error) {
	if len(s.posts) == 0 {
		return 0, 0, nil
	}
	return s.posts[0].ID, s.posts[len(s.posts)-1].ID, nil
}

func (s *memSource) FirstPostIDByDate(_ context.Context, t time.Time) (int, error) {
	for _, p := range s.posts {
		if !p.Time.Before(t) {
			return p.ID, nil
		}
	}
	return 0, nil
}

func (s *memSource) LastPostIDByDate(_ context.Context, t time.Time) (int, error) {
	for i := len(s.posts) - 1; i >= 0; i-- {
		if !s.posts[i].Time.After(t) {
			return s.posts[i].ID, nil
		}
	}
	return 0, nil
}

func (s *memSource) PostsToIndex(_ context.Context, from, to int) ([]*forum.Post, error) {
	s.mu.Lock()
	s.fetches = append(s.fetches, [2]int{from, to})
	n := len(s.fetches)
	hook := s.onFetch
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if s.failOn == n {
		return nil, stderrors.New("connection reset")
	}

	var out []*forum.Post
	for _, p := range s.posts {
		if p.ID >= from && p.ID <= to {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memSource) pages() [][2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]int(nil), s.fetches...)
}

// countingTarget wraps a Manager and counts calls.
type countingTarget struct {
	*index.Manager

	mu        sync.Mutex
	creates   []int
	lookups   int
	flushes   int
	recreates int
}

func (c *countingTarget) BatchCreate(ctx context.Context, p *forum.Post) error {
	c.mu.Lock()
	c.creates = append(c.creates, p.ID)
	c.mu.Unlock()
	return c.Manager.BatchCreate(ctx, p)
}

func (c *countingTarget) FindByKey(ctx context.Context, id int) (index.Document, bool, error) {
	c.mu.Lock()
	c.lookups++
	c.mu.Unlock()
	return c.Manager.FindByKey(ctx, id)
}

func (c *countingTarget) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.flushes++
	c.mu.Unlock()
	return c.Manager.Flush(ctx)
}

func (c *countingTarget) Recreate(ctx context.Context) error {
	c.mu.Lock()
	c.recreates++
	c.mu.Unlock()
	return c.Manager.Recreate(ctx)
}

func newManager(t *testing.T) *index.Manager {
	t.Helper()
	p, err := analysis.New([]string{"en"}, nil)
	require.NoError(t, err)
	m := index.NewManager(index.NewSettings("", p, nil), index.ManagerConfig{})
	require.NoError(t, m.Open(context.Background(), nil))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newTarget(t *testing.T) *countingTarget {
	return &countingTarget{Manager: newManager(t)}
}

// recordingObserver counts observer callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	started  int
	indexed  int
	skipped  int
	outcomes []Outcome
}

func (o *recordingObserver) JobStarted() {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *recordingObserver) PostsIndexed(n int) {
	o.mu.Lock()
	o.indexed += n
	o.mu.Unlock()
}

func (o *recordingObserver) PostsSkipped(n int) {
	o.mu.Lock()
	o.skipped += n
	o.mu.Unlock()
}

func (o *recordingObserver) JobFinished(out Outcome, _ time.Duration) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, out)
	o.mu.Unlock()
}
