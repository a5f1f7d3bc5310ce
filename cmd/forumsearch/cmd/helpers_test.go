package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xHumanityRO/forumsearch/internal/config"
	"github.com/xHumanityRO/forumsearch/internal/forum"
	"github.com/xHumanityRO/forumsearch/internal/storage"
)

var postTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testEnv is an isolated installation: config file, database, index and
// journal under a temp dir.
type testEnv struct {
	dir string
	cfg *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")

	dir := t.TempDir()
	socketPath := filepath.Join(os.TempDir(), fmt.Sprintf("fs-cmd-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { _ = os.Remove(socketPath) })

	cfg := config.NewConfig()
	cfg.Index.Path = filepath.Join(dir, "index")
	cfg.Index.FetchCount = 2
	cfg.Storage.DSN = filepath.Join(dir, "forum.db")
	cfg.Daemon.SocketPath = socketPath
	cfg.Daemon.PIDPath = filepath.Join(dir, "daemon.pid")
	cfg.Daemon.Timeout = "5s"
	cfg.Journal.Path = filepath.Join(dir, "jobs.db")
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, config.ProjectFileName)))

	return &testEnv{dir: dir, cfg: cfg}
}

// seed writes posts 1..n whose text mentions the garden.
func (e *testEnv) seed(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.Config{Driver: "sqlite", DSN: e.cfg.Storage.DSN})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.EnsureSchema(ctx))

	for id := 1; id <= n; id++ {
		require.NoError(t, store.InsertPost(ctx, &forum.Post{
			ID:      id,
			ForumID: 1,
			TopicID: 100 + id,
			UserID:  7,
			Time:    postTime.Add(time.Duration(id) * time.Hour),
			Subject: fmt.Sprintf("Post %d", id),
			Text:    "Planting tomatoes in the garden",
		}, false))
	}
}

// run executes the CLI with args against the environment's config dir.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append(args, "--config-dir", e.dir))

	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}
