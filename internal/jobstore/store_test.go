package jobstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xHumanityRO/forumsearch/internal/reindex"
)

func openTemp(t *testing.T, maxRecords int) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "jobs.db")
	s, err := Open(path, maxRecords)
	require.NoError(t, err)
	return s, path
}

func snapshot(indexed int) reindex.ProgressSnapshot {
	return reindex.ProgressSnapshot{
		Outcome: reindex.OutcomeCompleted,
		Spec:    reindex.JobSpec{FirstPostID: 1, LastPostID: indexed},
		FirstID: 1,
		LastID:  indexed,
		Indexed: indexed,
	}
}

func TestStore_AppendAndList(t *testing.T) {
	// Given: a journal with three jobs
	s, _ := openTemp(t, 10)
	defer func() { _ = s.Close() }()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		rec, err := s.Append(snapshot(i*100), now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), rec.ID)
	}

	// When: listing
	records, err := s.List(0)

	// Then: newest comes first
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 300, records[0].Progress.Indexed)
	assert.Equal(t, 100, records[2].Progress.Indexed)
	assert.Equal(t, reindex.OutcomeCompleted, records[0].Progress.Outcome)

	limited, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_TrimsOldest(t *testing.T) {
	s, _ := openTemp(t, 3)
	defer func() { _ = s.Close() }()

	for i := 1; i <= 5; i++ {
		_, err := s.Append(snapshot(i), time.Now())
		require.NoError(t, err)
	}

	records, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []uint64{5, 4, 3}, []uint64{records[0].ID, records[1].ID, records[2].ID})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	s, path := openTemp(t, 0)
	_, err := s.Append(snapshot(42), time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(path, 0)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	last, ok, err := reopened.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42, last.Progress.Indexed)
	assert.Equal(t, 42, last.Progress.Spec.LastPostID)
}

func TestStore_LastOnEmpty(t *testing.T) {
	s, _ := openTemp(t, 0)
	defer func() { _ = s.Close() }()

	_, ok, err := s.Last()
	require.NoError(t, err)
	assert.False(t, ok)
}
