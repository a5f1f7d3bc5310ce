package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xHumanityRO/forumsearch/internal/errors"
	"github.com/xHumanityRO/forumsearch/internal/forum"
)

// State is the availability state of the index.
type State int32

const (
	StateUninitialized State = iota
	StateOpening
	StateRebuilding
	StateReady
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpening:
		return "opening"
	case StateRebuilding:
		return "rebuilding"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Rebuilder repopulates an empty index from the post store.
type Rebuilder interface {
	// StartFullRebuild indexes the whole post history in the background and
	// calls done once the job ends. started is false when another job runs.
	StartFullRebuild(ctx context.Context, done func(error)) (started bool)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	MaxBufferedDocs int
	CacheSize       int
	Visibility      ForumVisibility
	Logger          *slog.Logger
}

// Status is a point-in-time view of the index.
type Status struct {
	State      string       `json:"state"`
	Path       string       `json:"path"`
	Languages  []string     `json:"languages"`
	DocCount   uint64       `json:"doc_count"`
	Generation uint64       `json:"generation"`
	Writes     IndexerStats `json:"writes"`
	LastError  string       `json:"last_rebuild_error,omitempty"`
}

// Manager owns the writable index and is the only entry point the rest of
// the application uses for index access.
type Manager struct {
	settings *Settings
	indexer  *Indexer
	searcher *Searcher
	logger   *slog.Logger

	state atomic.Int32

	mu           sync.Mutex
	rebuildError error
}

// NewManager wires an Indexer and a Searcher to settings.
func NewManager(settings *Settings, cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		settings: settings,
		indexer:  NewIndexer(settings, cfg.MaxBufferedDocs, logger),
		searcher: NewSearcher(settings, cfg.CacheSize, WithVisibility(cfg.Visibility), WithSearchLogger(logger)),
		logger:   logger,
	}
}

// Open validates the index and attaches to it. An unavailable or corrupt
// index is recreated empty and rebuilt in the background through r; queries
// are served from the partial index meanwhile. Only a failure to recreate
// (or to lock) the directory is returned.
func (m *Manager) Open(ctx context.Context, r Rebuilder) error {
	if !m.state.CompareAndSwap(int32(StateUninitialized), int32(StateOpening)) {
		return errors.New(errors.ErrCodeInternal, fmt.Sprintf("index manager is %s", m.State()), nil)
	}

	verr := m.settings.Validate()
	if verr == nil {
		if err := m.settings.Open(); err != nil {
			m.setState(StateUninitialized)
			return err
		}
		m.setState(StateReady)
		m.logger.Info("index_ready", slog.String("path", m.settings.displayPath()))
		return nil
	}

	if !stderrors.Is(verr, errors.ErrIndexCorrupt) && !stderrors.Is(verr, errors.ErrIndexUnavailable) {
		m.setState(StateUninitialized)
		return verr
	}

	m.logger.Warn("index_invalid",
		slog.String("path", m.settings.displayPath()),
		slog.String("code", errors.GetCode(verr)),
		slog.String("reason", verr.Error()))

	if err := m.settings.Recreate(); err != nil {
		m.setState(StateUninitialized)
		return err
	}
	m.setState(StateRebuilding)

	if r == nil {
		m.logger.Warn("index_rebuild_skipped", slog.String("reason", "no rebuilder configured"))
		m.setState(StateReady)
		return nil
	}

	started := r.StartFullRebuild(ctx, m.rebuildDone)
	if !started {
		m.logger.Warn("index_rebuild_not_started", slog.String("reason", "a reindex job is already running"))
		m.state.CompareAndSwap(int32(StateRebuilding), int32(StateReady))
		return nil
	}

	m.logger.Info("index_rebuild_started", slog.String("path", m.settings.displayPath()))
	return nil
}

func (m *Manager) rebuildDone(err error) {
	m.mu.Lock()
	m.rebuildError = err
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("index_rebuild_failed", slog.String("error", err.Error()))
	} else {
		m.logger.Info("index_rebuild_finished")
	}
	m.state.CompareAndSwap(int32(StateRebuilding), int32(StateReady))
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// State returns the current availability state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// available reports whether leaf operations may run.
func (m *Manager) available() error {
	switch m.State() {
	case StateReady, StateRebuilding:
		return nil
	default:
		return errors.IndexUnavailable(m.settings.displayPath(),
			fmt.Errorf("index manager is %s", m.State()))
	}
}

// Create indexes a newly created post.
func (m *Manager) Create(ctx context.Context, p *forum.Post) error {
	if err := m.available(); err != nil {
		return err
	}
	return m.indexer.Create(ctx, Collect(p))
}

// Update re-indexes an edited post.
func (m *Manager) Update(ctx context.Context, p *forum.Post) error {
	if err := m.available(); err != nil {
		return err
	}
	return m.indexer.Update(ctx, Collect(p))
}

// Delete removes a post from the index.
func (m *Manager) Delete(ctx context.Context, postID int) error {
	if err := m.available(); err != nil {
		return err
	}
	return m.indexer.Delete(ctx, postID)
}

// BatchCreate buffers a post for the next Flush.
func (m *Manager) BatchCreate(ctx context.Context, p *forum.Post) error {
	if err := m.available(); err != nil {
		return err
	}
	return m.indexer.BatchCreate(ctx, Collect(p))
}

// Flush commits buffered posts.
func (m *Manager) Flush(ctx context.Context) error {
	if err := m.available(); err != nil {
		return err
	}
	return m.indexer.Flush(ctx)
}

// Search runs a structured query for requestingUserID.
func (m *Manager) Search(ctx context.Context, args SearchArgs, requestingUserID int) (*SearchResult, error) {
	if err := m.available(); err != nil {
		return nil, err
	}
	return m.searcher.Search(ctx, args, requestingUserID)
}

// FindByKey reports whether postID is indexed and returns its document.
func (m *Manager) FindByKey(ctx context.Context, postID int) (Document, bool, error) {
	if err := m.available(); err != nil {
		return Document{}, false, err
	}
	return m.searcher.FindByKey(ctx, postID)
}

// Recreate replaces the index with an empty one.
func (m *Manager) Recreate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.available(); err != nil {
		return err
	}
	return m.settings.Recreate()
}

// Indexer returns the indexer used for bulk loads.
func (m *Manager) Indexer() *Indexer {
	return m.indexer
}

// Searcher returns the searcher.
func (m *Manager) Searcher() *Searcher {
	return m.searcher
}

// Settings returns the index settings.
func (m *Manager) Settings() *Settings {
	return m.settings
}

// Status returns a snapshot of the index state.
func (m *Manager) Status() Status {
	st := Status{
		State:      m.State().String(),
		Path:       m.settings.displayPath(),
		Languages:  m.settings.Pipeline().Languages(),
		Generation: m.settings.Generation(),
		Writes:     m.indexer.Stats(),
	}
	if n, err := m.settings.DocCount(); err == nil {
		st.DocCount = n
	}

	m.mu.Lock()
	if m.rebuildError != nil {
		st.LastError = m.rebuildError.Error()
	}
	m.mu.Unlock()

	return st
}

// Close releases the index. Further operations return ErrIndexUnavailable.
func (m *Manager) Close() error {
	if State(m.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}
	return m.settings.Close()
}
