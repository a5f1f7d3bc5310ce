package index

import (
	"context"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/xHumanityRO/forumsearch/internal/errors"
)

// DefaultMaxBufferedDocs bounds the bulk buffer when no limit is configured.
const DefaultMaxBufferedDocs = 10000

// IndexerStats are cumulative write counters.
type IndexerStats struct {
	DocumentsWritten uint64 `json:"documents_written"`
	Deletes          uint64 `json:"deletes"`
	Commits          uint64 `json:"commits"`
	Flushes          uint64 `json:"flushes"`
	Buffered         int    `json:"buffered"`
}

// Indexer writes documents through the current Settings handle.
// Single-document operations commit immediately; BatchCreate buffers until
// Flush or until the buffer reaches its limit.
type Indexer struct {
	settings    *Settings
	maxBuffered int
	logger      *slog.Logger

	mu     sync.Mutex
	buffer []Document
	stats  IndexerStats
}

// NewIndexer creates an indexer. maxBuffered <= 0 uses DefaultMaxBufferedDocs.
func NewIndexer(settings *Settings, maxBuffered int, logger *slog.Logger) *Indexer {
	if maxBuffered <= 0 {
		maxBuffered = DefaultMaxBufferedDocs
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		settings:    settings,
		maxBuffered: maxBuffered,
		logger:      logger,
	}
}

// Create indexes one document and commits.
func (ix *Indexer) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := ix.settings.withIndex(func(idx bleve.Index) error {
		return idx.Index(doc.ID(), doc)
	})
	if err != nil {
		return ix.writeFailure("create", err, slog.Int("post_id", doc.PostID))
	}

	ix.committed(1, 0)
	return nil
}

// Update replaces the document for doc.PostID in a single commit. It is
// equivalent to Create when nothing was indexed for that id.
func (ix *Indexer) Update(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := ix.settings.withIndex(func(idx bleve.Index) error {
		batch := idx.NewBatch()
		batch.Delete(doc.ID())
		if err := batch.Index(doc.ID(), doc); err != nil {
			return err
		}
		return idx.Batch(batch)
	})
	if err != nil {
		return ix.writeFailure("update", err, slog.Int("post_id", doc.PostID))
	}

	ix.committed(1, 1)
	return nil
}

// Delete removes the document for postID and commits. Deleting an id that
// is not indexed is not an error.
func (ix *Indexer) Delete(ctx context.Context, postID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := ix.settings.withIndex(func(idx bleve.Index) error {
		return idx.Delete(DocID(postID))
	})
	if err != nil {
		return ix.writeFailure("delete", err, slog.Int("post_id", postID))
	}

	ix.committed(0, 1)
	return nil
}

// BatchCreate appends doc to the bulk buffer. A full buffer is committed
// before returning; that commit is not counted as a Flush.
func (ix *Indexer) BatchCreate(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.buffer = append(ix.buffer, doc)
	if len(ix.buffer) < ix.maxBuffered {
		return nil
	}

	ix.logger.Debug("index_buffer_spill", slog.Int("docs", len(ix.buffer)))
	return ix.commitBufferLocked()
}

// Flush commits all buffered documents. With an empty buffer it does nothing.
func (ix *Indexer) Flush(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.stats.Flushes++
	if len(ix.buffer) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		// The buffer stays; a later Flush with a live context commits it.
		return err
	}
	return ix.commitBufferLocked()
}

// commitBufferLocked writes the buffer in one bleve batch. The buffer is
// cleared whether or not the commit succeeds.
func (ix *Indexer) commitBufferLocked() error {
	docs := ix.buffer
	ix.buffer = nil

	err := ix.settings.withIndex(func(idx bleve.Index) error {
		batch := idx.NewBatch()
		for i := range docs {
			if err := batch.Index(docs[i].ID(), docs[i]); err != nil {
				return err
			}
		}
		return idx.Batch(batch)
	})
	if err != nil {
		return ix.writeFailure("batch", err, slog.Int("docs", len(docs)))
	}

	ix.stats.DocumentsWritten += uint64(len(docs))
	ix.stats.Commits++
	ix.settings.bump()
	return nil
}

func (ix *Indexer) committed(written, deleted uint64) {
	ix.mu.Lock()
	ix.stats.DocumentsWritten += written
	ix.stats.Deletes += deleted
	ix.stats.Commits++
	ix.mu.Unlock()

	ix.settings.bump()
}

func (ix *Indexer) writeFailure(op string, cause error, attrs ...any) error {
	// An unavailable handle is reported as is so callers can tell it apart.
	if errors.GetCode(cause) == errors.ErrCodeIndexUnavailable {
		return cause
	}
	args := append([]any{slog.String("op", op), slog.String("error", cause.Error())}, attrs...)
	ix.logger.Error("index_write_failed", args...)
	return errors.IndexWriteFailure(op, cause)
}

// Stats returns a snapshot of the write counters.
func (ix *Indexer) Stats() IndexerStats {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s := ix.stats
	s.Buffered = len(ix.buffer)
	return s
}

// Buffered returns the number of documents waiting for Flush.
func (ix *Indexer) Buffered() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.buffer)
}
