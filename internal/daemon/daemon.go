package daemon

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/forum"
	"github.com/xHumanityRO/forumsearch/internal/index"
	"github.com/xHumanityRO/forumsearch/internal/jobstore"
	"github.com/xHumanityRO/forumsearch/internal/metrics"
	"github.com/xHumanityRO/forumsearch/internal/reindex"
)

// PostLoader loads a single post for mutation events.
type PostLoader interface {
	PostByID(ctx context.Context, id int) (*forum.Post, error)
}

// Deps are the components a Daemon serves.
type Deps struct {
	Manager   *index.Manager
	Reindexer *reindex.Reindexer
	Posts     PostLoader

	// Jobs and Metrics are optional.
	Jobs    *jobstore.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Daemon implements RequestHandler on top of the index manager.
type Daemon struct {
	cfg  Config
	deps Deps

	// jobCtx outlives requests; reindex jobs run on it.
	jobCtx context.Context
	logger *slog.Logger
}

// NewDaemon validates cfg and wires deps.
func NewDaemon(cfg Config, deps Deps) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}
	if deps.Manager == nil || deps.Reindexer == nil || deps.Posts == nil {
		return nil, fmt.Errorf("daemon needs an index manager, a reindexer and a post loader")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		cfg:    cfg,
		deps:   deps,
		jobCtx: context.Background(),
		logger: logger,
	}, nil
}

// Serve writes the PID file and serves requests until ctx is cancelled.
// Reindex jobs started through the daemon are bound to ctx; on shutdown the
// running job is stopped and given the grace period to flush.
func (d *Daemon) Serve(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}

	pidFile := NewPIDFile(d.cfg.PIDPath)
	if err := pidFile.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pidFile.Release() }()

	d.jobCtx = ctx

	srv := NewServer(d.cfg.SocketPath, d.cfg.Timeout, d.logger)
	srv.SetHandler(d)

	d.logger.Info("daemon_started",
		slog.String("socket", d.cfg.SocketPath),
		slog.String("pid_file", d.cfg.PIDPath))

	err := srv.ListenAndServe(ctx)

	d.shutdown()
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Daemon) shutdown() {
	if !d.deps.Reindexer.Stop() {
		return
	}
	done := make(chan struct{})
	go func() {
		d.deps.Reindexer.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.ShutdownGracePeriod):
		d.logger.Warn("daemon_shutdown_job_still_running",
			slog.Duration("grace_period", d.cfg.ShutdownGracePeriod))
	}
}

// Search implements RequestHandler.
func (d *Daemon) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	start := time.Now()
	res, err := d.deps.Manager.Search(ctx, params.Args(), params.UserID)
	if d.deps.Metrics != nil {
		var total uint64
		if res != nil {
			total = res.Total
		}
		d.deps.Metrics.ObserveSearch(time.Since(start), total, err)
	}
	if err != nil {
		return nil, err
	}

	out := &SearchResult{Total: res.Total, Hits: make([]SearchHit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, SearchHit{
			PostID:  h.PostID,
			ForumID: h.ForumID,
			TopicID: h.TopicID,
			UserID:  h.UserID,
			Date:    h.Date,
			Subject: h.Subject,
			Score:   h.Score,
		})
	}
	return out, nil
}

// FindPost implements RequestHandler.
func (d *Daemon) FindPost(ctx context.Context, postID int) (*FindPostResult, error) {
	doc, found, err := d.deps.Manager.FindByKey(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &FindPostResult{}, nil
	}
	return &FindPostResult{Indexed: true, Document: &doc}, nil
}

// PostCreated implements RequestHandler.
func (d *Daemon) PostCreated(ctx context.Context, postID int) error {
	return d.mutate(ctx, "create", postID, d.deps.Manager.Create)
}

// PostUpdated implements RequestHandler.
func (d *Daemon) PostUpdated(ctx context.Context, postID int) error {
	return d.mutate(ctx, "update", postID, d.deps.Manager.Update)
}

// PostDeleted implements RequestHandler.
func (d *Daemon) PostDeleted(ctx context.Context, postID int) error {
	err := d.deps.Manager.Delete(ctx, postID)
	d.observeMutation("delete", err)
	return err
}

func (d *Daemon) mutate(ctx context.Context, op string, postID int, apply func(context.Context, *forum.Post) error) error {
	post, err := d.deps.Posts.PostByID(ctx, postID)
	if err != nil {
		d.observeMutation(op, err)
		return err
	}
	err = apply(ctx, post)
	d.observeMutation(op, err)
	return err
}

func (d *Daemon) observeMutation(op string, err error) {
	if d.deps.Metrics != nil {
		d.deps.Metrics.ObserveMutation(op, err)
	}
}

// Reindex implements RequestHandler. The job runs on the daemon's lifetime
// context, not the request's.
func (d *Daemon) Reindex(_ context.Context, params ReindexParams) (*ReindexResult, error) {
	started, err := d.deps.Reindexer.Start(d.jobCtx, params.Spec())
	if err != nil {
		return nil, err
	}
	return &ReindexResult{Started: started}, nil
}

// ReindexStop implements RequestHandler.
func (d *Daemon) ReindexStop() ReindexStopResult {
	return ReindexStopResult{Stopped: d.deps.Reindexer.Stop()}
}

// Status implements RequestHandler.
func (d *Daemon) Status() StatusResult {
	st := StatusResult{Index: d.deps.Manager.Status()}

	if snap, ok := d.deps.Reindexer.Progress(); ok {
		st.Job = &snap
	}
	if d.deps.Jobs != nil {
		if rec, ok, err := d.deps.Jobs.Last(); err == nil && ok {
			st.LastJob = &rec
		}
	}
	if d.deps.Metrics != nil {
		d.deps.Metrics.SetIndexState(st.Index.State, st.Index.DocCount)
	}
	return st
}

var _ RequestHandler = (*Daemon)(nil)
