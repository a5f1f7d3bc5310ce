package index

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/gofrs/flock"

	"github.com/xHumanityRO/forumsearch/internal/analysis"
	"github.com/xHumanityRO/forumsearch/internal/errors"
)

// errNoIndex is the cause reported when no handle has been opened yet.
var errNoIndex = stderrors.New("index is not open")

// Settings owns the index location, the analysis pipeline and the single
// writable bleve handle. An empty path keeps the index in memory.
//
// The handle is replaced wholesale by Recreate; callers never keep it and
// resolve it per operation through withIndex.
type Settings struct {
	path     string
	pipeline *analysis.Pipeline
	logger   *slog.Logger

	mu     sync.RWMutex
	idx    bleve.Index
	lock   *flock.Flock
	closed bool

	generation atomic.Uint64
}

// NewSettings creates settings for the index at path. Nothing is opened.
func NewSettings(path string, pipeline *analysis.Pipeline, logger *slog.Logger) *Settings {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settings{
		path:     path,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Path returns the index directory, empty for an in-memory index.
func (s *Settings) Path() string {
	return s.path
}

// Pipeline returns the active analysis pipeline.
func (s *Settings) Pipeline() *analysis.Pipeline {
	return s.pipeline
}

// Generation is incremented on every commit and every handle replacement.
func (s *Settings) Generation() uint64 {
	return s.generation.Load()
}

func (s *Settings) bump() {
	s.generation.Add(1)
}

func (s *Settings) displayPath() string {
	if s.path == "" {
		return ":memory:"
	}
	return s.path
}

// acquireLock takes the cross-process writer lock next to the directory.
// Callers hold s.mu for writing.
func (s *Settings) acquireLock() error {
	if s.path == "" || s.lock != nil {
		return nil
	}

	lockPath := filepath.Clean(s.path) + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return errors.IndexUnavailable(s.path, err)
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return errors.New(errors.ErrCodeIndexLocked, fmt.Sprintf("cannot lock %s", lockPath), err)
	}
	if !locked {
		return errors.New(errors.ErrCodeIndexLocked,
			fmt.Sprintf("index at %s is locked by another process", s.path), nil).
			WithDetail("lock", lockPath).
			WithSuggestion("Stop the running forumsearch daemon or use its socket")
	}

	s.lock = fl
	return nil
}

// Open opens the existing index for reading and writing.
func (s *Settings) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx != nil {
		return nil
	}
	if s.path == "" {
		return errors.IndexUnavailable(s.displayPath(), errNoIndex)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}

	idx, err := bleve.Open(s.path)
	if err != nil {
		return errors.IndexUnavailable(s.path, err)
	}

	s.idx = idx
	s.closed = false
	s.bump()
	s.logger.Info("index_opened", slog.String("path", s.path))
	return nil
}

// Validate checks that the index can be read and matches the configured
// schema. A missing index yields ErrIndexUnavailable; anything present but
// unusable yields ErrIndexCorrupt.
func (s *Settings) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx != nil {
		return s.checkSchema(s.idx)
	}
	if s.path == "" {
		return errors.IndexUnavailable(s.displayPath(), errNoIndex)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return errors.IndexUnavailable(s.path, err)
	}
	if !info.IsDir() {
		return errors.IndexCorrupt(s.path, fmt.Errorf("%s is not a directory", s.path))
	}
	if err := checkMeta(s.path); err != nil {
		return errors.IndexCorrupt(s.path, err)
	}

	reader, err := bleve.OpenUsing(s.path, map[string]interface{}{"read_only": true})
	if err != nil {
		if err == bleve.ErrorIndexPathDoesNotExist {
			return errors.IndexUnavailable(s.path, err)
		}
		return errors.IndexCorrupt(s.path, err)
	}
	defer func() { _ = reader.Close() }()

	if _, err := reader.DocCount(); err != nil {
		return errors.IndexCorrupt(s.path, err)
	}
	return s.checkSchema(reader)
}

// checkMeta verifies index_meta.json exists, is non-empty and parses.
func checkMeta(path string) error {
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func (s *Settings) checkSchema(idx bleve.Index) error {
	want := schemaFingerprint(s.pipeline)
	got, err := idx.GetInternal(schemaKey)
	if err != nil {
		return errors.IndexCorrupt(s.displayPath(), err)
	}
	if string(got) != want {
		return errors.IndexCorrupt(s.displayPath(),
			fmt.Errorf("schema mismatch: index has %q, configured %q", got, want)).
			WithDetail("expected_schema", want)
	}
	return nil
}

// Recreate closes any open handle, clears the directory and initializes an
// empty index in place with the current schema fingerprint.
func (s *Settings) Recreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx != nil {
		if err := s.idx.Close(); err != nil {
			s.logger.Warn("index_close_failed", slog.String("error", err.Error()))
		}
		s.idx = nil
	}

	m, err := buildMapping(s.pipeline)
	if err != nil {
		return errors.New(errors.ErrCodeIndexRecreate, "cannot build index mapping", err)
	}

	var idx bleve.Index
	if s.path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if lerr := s.acquireLock(); lerr != nil {
			return lerr
		}
		if rerr := os.RemoveAll(s.path); rerr != nil {
			return errors.New(errors.ErrCodeIndexRecreate, fmt.Sprintf("cannot clear %s", s.path), rerr)
		}
		if merr := os.MkdirAll(filepath.Dir(s.path), 0o755); merr != nil {
			return errors.New(errors.ErrCodeIndexRecreate, fmt.Sprintf("cannot create parent of %s", s.path), merr)
		}
		idx, err = bleve.New(s.path, m)
	}
	if err != nil {
		return errors.New(errors.ErrCodeIndexRecreate, fmt.Sprintf("cannot create index at %s", s.displayPath()), err)
	}

	if err := idx.SetInternal(schemaKey, []byte(schemaFingerprint(s.pipeline))); err != nil {
		_ = idx.Close()
		return errors.New(errors.ErrCodeIndexRecreate, "cannot write schema fingerprint", err)
	}

	s.idx = idx
	s.closed = false
	s.bump()
	s.logger.Info("index_recreated",
		slog.String("path", s.displayPath()),
		slog.String("schema", schemaFingerprint(s.pipeline)))
	return nil
}

// withIndex runs fn against the current handle. Writers and readers share
// the read lock; only handle replacement takes the write lock.
func (s *Settings) withIndex(fn func(bleve.Index) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.idx == nil {
		return errors.IndexUnavailable(s.displayPath(), errNoIndex)
	}
	return fn(s.idx)
}

// DocCount returns the number of documents in the current handle.
func (s *Settings) DocCount() (uint64, error) {
	var n uint64
	err := s.withIndex(func(idx bleve.Index) error {
		var cerr error
		n, cerr = idx.DocCount()
		return cerr
	})
	return n, err
}

// Close closes the handle and releases the writer lock.
func (s *Settings) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.idx != nil {
		err = s.idx.Close()
		s.idx = nil
	}
	if s.lock != nil {
		if uerr := s.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
		s.lock = nil
	}
	return err
}
