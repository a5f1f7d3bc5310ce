// Package jobstore keeps a bounded journal of finished reindex jobs in a
// bbolt file so the CLI can show history after the daemon restarts.
package jobstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/xHumanityRO/forumsearch/internal/reindex"
)

var bucketJobs = []byte("jobs")

// DefaultMaxRecords bounds the journal when the caller passes zero.
const DefaultMaxRecords = 50

// Record is one finished job.
type Record struct {
	ID         uint64                   `json:"id"`
	FinishedAt time.Time                `json:"finished_at"`
	Progress   reindex.ProgressSnapshot `json:"progress"`
}

// Store is the job journal.
type Store struct {
	db         *bbolt.DB
	maxRecords int
}

// Open opens or creates the journal at path.
func Open(path string, maxRecords int) (*Store, error) {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open job journal: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketJobs)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketJobs, err)
	}

	return &Store{db: db, maxRecords: maxRecords}, nil
}

// Close closes the journal.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records a finished job and drops the oldest records beyond the
// configured bound.
func (s *Store) Append(snap reindex.ProgressSnapshot, finishedAt time.Time) (Record, error) {
	var rec Record
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec = Record{ID: id, FinishedAt: finishedAt.UTC(), Progress: snap}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put(itob(id), data); err != nil {
			return err
		}

		return trim(b, s.maxRecords)
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to append job record: %w", err)
	}
	return rec, nil
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketJobs).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// Last returns the newest record.
func (s *Store) Last() (Record, bool, error) {
	records, err := s.List(1)
	if err != nil || len(records) == 0 {
		return Record{}, false, err
	}
	return records[0], true, nil
}

// trim deletes the oldest keys until at most limit remain.
func trim(b *bbolt.Bucket, limit int) error {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for len(keys) > limit {
		if err := b.Delete(keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	return nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
