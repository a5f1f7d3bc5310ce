package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID is above the default pid_max on Linux and macOS.
const deadPID = 4194304

func writePID(t *testing.T, path string, pid int) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644))
}

func TestPIDFile_AcquireCreatesDirAndRecordsSelf(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "run", "daemon.pid")
	pf := NewPIDFile(pidPath)

	require.NoError(t, pf.Acquire())

	pid, alive := pf.Owner()
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, alive)
	_, err := os.Stat(pidPath + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")
}

func TestPIDFile_AcquireReplacesDeadOwner(t *testing.T) {
	// Given: a file left by a crashed daemon
	pidPath := filepath.Join(t.TempDir(), "daemon.pid")
	writePID(t, pidPath, deadPID)
	pf := NewPIDFile(pidPath)
	_, alive := pf.Owner()
	require.False(t, alive)

	// When
	require.NoError(t, pf.Acquire())

	// Then
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_AcquireRefusesLiveOwner(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "daemon.pid")
	writePID(t, pidPath, os.Getppid())

	err := NewPIDFile(pidPath).Acquire()

	assert.ErrorIs(t, err, ErrAlreadyRunning)
	pid, rerr := NewPIDFile(pidPath).Read()
	require.NoError(t, rerr)
	assert.Equal(t, os.Getppid(), pid, "the live owner's file is untouched")
}

func TestPIDFile_Read(t *testing.T) {
	dir := t.TempDir()

	_, err := NewPIDFile(filepath.Join(dir, "missing.pid")).Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)

	garbage := filepath.Join(dir, "garbage.pid")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-number"), 0o644))
	_, err = NewPIDFile(garbage).Read()
	assert.Error(t, err)

	negative := filepath.Join(dir, "negative.pid")
	writePID(t, negative, -5)
	_, err = NewPIDFile(negative).Read()
	assert.Error(t, err)

	newline := filepath.Join(dir, "newline.pid")
	require.NoError(t, os.WriteFile(newline, []byte("4242\n"), 0o644))
	pid, err := NewPIDFile(newline).Read()
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestPIDFile_ReleaseOnlyRemovesOwnFile(t *testing.T) {
	t.Run("acquired file is removed", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "daemon.pid")
		pf := NewPIDFile(pidPath)
		require.NoError(t, pf.Acquire())

		require.NoError(t, pf.Release())
		_, err := os.Stat(pidPath)
		assert.True(t, os.IsNotExist(err))
		require.NoError(t, pf.Release(), "second release is a no-op")
	})

	t.Run("never acquired", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "daemon.pid")
		writePID(t, pidPath, os.Getppid())

		require.NoError(t, NewPIDFile(pidPath).Release())
		_, err := os.Stat(pidPath)
		assert.NoError(t, err)
	})

	t.Run("taken over by another process", func(t *testing.T) {
		pidPath := filepath.Join(t.TempDir(), "daemon.pid")
		pf := NewPIDFile(pidPath)
		require.NoError(t, pf.Acquire())
		writePID(t, pidPath, os.Getppid())

		require.NoError(t, pf.Release())
		_, err := os.Stat(pidPath)
		assert.NoError(t, err)
	})
}
