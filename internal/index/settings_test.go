package index

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xHumanityRO/forumsearch/internal/errors"
)

func TestSettings_ValidateMissingDirectoryIsUnavailable(t *testing.T) {
	s := NewSettings(diskPath(t), testPipeline(t), nil)
	defer func() { _ = s.Close() }()

	err := s.Validate()

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrIndexUnavailable))
}

func TestSettings_OpenMissingDirectoryIsUnavailable(t *testing.T) {
	s := NewSettings(diskPath(t), testPipeline(t), nil)
	defer func() { _ = s.Close() }()

	err := s.Open()

	assert.True(t, stderrors.Is(err, errors.ErrIndexUnavailable))
}

func TestSettings_RecreateThenValidateAndReopen(t *testing.T) {
	// Given: a freshly recreated on-disk index
	path := diskPath(t)
	s := NewSettings(path, testPipeline(t), nil)
	require.NoError(t, s.Recreate())
	require.NoError(t, s.Close())

	// When: validating and opening it again with the same pipeline
	s2 := NewSettings(path, testPipeline(t), nil)
	defer func() { _ = s2.Close() }()

	// Then: both succeed
	require.NoError(t, s2.Validate())
	require.NoError(t, s2.Open())
	n, err := s2.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestSettings_ValidateDetectsCorruptMeta(t *testing.T) {
	// Given: an index whose metadata file was truncated
	path := diskPath(t)
	s := NewSettings(path, testPipeline(t), nil)
	require.NoError(t, s.Recreate())
	require.NoError(t, s.Close())
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte("{\"stor"), 0o644))

	// When: validating
	s2 := NewSettings(path, testPipeline(t), nil)
	defer func() { _ = s2.Close() }()
	err := s2.Validate()

	// Then: it is reported as corrupt, not missing
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrIndexCorrupt))
	assert.False(t, stderrors.Is(err, errors.ErrIndexUnavailable))
}

func TestSettings_ValidateDetectsEmptyDirectory(t *testing.T) {
	path := diskPath(t)
	require.NoError(t, os.MkdirAll(path, 0o755))

	s := NewSettings(path, testPipeline(t), nil)
	defer func() { _ = s.Close() }()

	assert.True(t, stderrors.Is(s.Validate(), errors.ErrIndexCorrupt))
}

func TestSettings_ValidateDetectsLanguageChange(t *testing.T) {
	// Given: an index built for English
	path := diskPath(t)
	s := NewSettings(path, testPipeline(t, "en"), nil)
	require.NoError(t, s.Recreate())
	require.NoError(t, s.Close())

	// When: validating with a German pipeline
	s2 := NewSettings(path, testPipeline(t, "de"), nil)
	defer func() { _ = s2.Close() }()
	err := s2.Validate()

	// Then: the schema mismatch makes it incompatible
	assert.True(t, stderrors.Is(err, errors.ErrIndexCorrupt))
}

func TestSettings_SecondWriterIsLockedOut(t *testing.T) {
	path := diskPath(t)
	s := NewSettings(path, testPipeline(t), nil)
	require.NoError(t, s.Recreate())
	defer func() { _ = s.Close() }()

	other := NewSettings(path, testPipeline(t), nil)
	defer func() { _ = other.Close() }()
	err := other.Validate()

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeIndexLocked, errors.GetCode(err))
	assert.True(t, errors.IsFatal(err))
}

func TestSettings_RecreateClearsDocuments(t *testing.T) {
	s := memSettings(t)
	ix := NewIndexer(s, 0, nil)
	require.NoError(t, ix.Create(t.Context(), doc(1)))
	gen := s.Generation()

	require.NoError(t, s.Recreate())

	n, err := s.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
	assert.Greater(t, s.Generation(), gen)
}

func TestSettings_MemoryIndexUnavailableUntilRecreated(t *testing.T) {
	s := NewSettings("", testPipeline(t), nil)
	defer func() { _ = s.Close() }()

	assert.True(t, stderrors.Is(s.Validate(), errors.ErrIndexUnavailable))
	assert.True(t, stderrors.Is(s.Open(), errors.ErrIndexUnavailable))

	require.NoError(t, s.Recreate())
	assert.NoError(t, s.Validate())
}

func TestSettings_OperationsAfterCloseAreUnavailable(t *testing.T) {
	s := NewSettings("", testPipeline(t), nil)
	require.NoError(t, s.Recreate())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.DocCount()
	assert.True(t, stderrors.Is(err, errors.ErrIndexUnavailable))
}
