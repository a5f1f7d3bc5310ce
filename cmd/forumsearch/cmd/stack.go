package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/analysis"
	"github.com/xHumanityRO/forumsearch/internal/config"
	"github.com/xHumanityRO/forumsearch/internal/index"
	"github.com/xHumanityRO/forumsearch/internal/jobstore"
	"github.com/xHumanityRO/forumsearch/internal/metrics"
	"github.com/xHumanityRO/forumsearch/internal/reindex"
	"github.com/xHumanityRO/forumsearch/internal/storage"
)

// stack is the set of components owned by a process that writes the index.
type stack struct {
	cfg    *config.Config
	logger *slog.Logger

	pipeline *analysis.Pipeline
	manager  *index.Manager
	posts    *storage.PostStore
	jobs     *jobstore.Store
	metrics  *metrics.Metrics
	rx       *reindex.Reindexer
}

// openStack connects storage and the job journal and wires the index
// manager to a reindexer. The index itself is attached by open.
func openStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, error) {
	pipeline, err := analysis.New(cfg.Index.Languages, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis pipeline: %w", err)
	}

	posts, err := storage.Open(ctx, storage.Config{
		Driver:       cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Driver != "postgres" {
		if err := posts.EnsureSchema(ctx); err != nil {
			_ = posts.Close()
			return nil, err
		}
	}

	jobs, err := jobstore.Open(cfg.Journal.Path, cfg.Journal.MaxRecords)
	if err != nil {
		_ = posts.Close()
		return nil, err
	}

	s := &stack{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
		posts:    posts,
		jobs:     jobs,
		metrics:  metrics.New(),
	}
	s.manager = index.NewManager(index.NewSettings(cfg.Index.Path, pipeline, logger), index.ManagerConfig{
		MaxBufferedDocs: cfg.Index.MaxBufferedDocs,
		CacheSize:       cfg.Index.CacheSize,
		Logger:          logger,
	})
	s.rx = reindex.New(s.manager, posts, reindex.Config{
		FetchCount:    cfg.Index.FetchCount,
		ProgressEvery: cfg.Index.ProgressEvery,
		Logger:        logger,
		Observer:      s.metrics,
		OnFinish:      s.journal,
	})
	return s, nil
}

// open attaches the index, starting a background rebuild when it had to be
// recreated.
func (s *stack) open(ctx context.Context) error {
	return s.manager.Open(ctx, s.rx)
}

func (s *stack) journal(snap reindex.ProgressSnapshot) {
	if _, err := s.jobs.Append(snap, time.Now()); err != nil {
		s.logger.Warn("journal_append_failed", slog.String("error", err.Error()))
	}
}

// Close stops any running job and releases every component.
func (s *stack) Close() error {
	s.rx.Stop()
	s.rx.Wait()

	err := s.manager.Close()
	if jerr := s.jobs.Close(); jerr != nil && err == nil {
		err = jerr
	}
	if perr := s.posts.Close(); perr != nil && err == nil {
		err = perr
	}
	return err
}

// offlineStatus inspects the index and journal without the daemon.
func offlineStatus(cfg *config.Config) (index.Status, *jobstore.Record, error) {
	pipeline, err := analysis.New(cfg.Index.Languages, nil)
	if err != nil {
		return index.Status{}, nil, err
	}

	status := index.Status{
		State:     index.StateUninitialized.String(),
		Path:      cfg.Index.Path,
		Languages: pipeline.Languages(),
	}

	settings := index.NewSettings(cfg.Index.Path, pipeline, nil)
	defer func() { _ = settings.Close() }()
	if err := settings.Open(); err == nil {
		status.State = index.StateReady.String()
		if n, cerr := settings.DocCount(); cerr == nil {
			status.DocCount = n
		}
	} else {
		status.LastError = err.Error()
	}

	jobs, err := jobstore.Open(cfg.Journal.Path, cfg.Journal.MaxRecords)
	if err != nil {
		return status, nil, nil
	}
	defer func() { _ = jobs.Close() }()

	rec, ok, err := jobs.Last()
	if err != nil || !ok {
		return status, nil, nil
	}
	return status, &rec, nil
}
