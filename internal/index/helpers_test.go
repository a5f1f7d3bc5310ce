package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xHumanityRO/forumsearch/internal/analysis"
	"github.com/xHumanityRO/forumsearch/internal/forum"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testPipeline(t *testing.T, langs ...string) *analysis.Pipeline {
	t.Helper()
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	p, err := analysis.New(langs, nil)
	require.NoError(t, err)
	return p
}

// memSettings returns an empty, ready in-memory index.
func memSettings(t *testing.T) *Settings {
	t.Helper()
	s := NewSettings("", testPipeline(t), nil)
	require.NoError(t, s.Recreate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// diskPath returns an index path inside a fresh temp dir.
func diskPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "index")
}

func post(id int) *forum.Post {
	return &forum.Post{
		ID:      id,
		TopicID: 100 + id%3,
		ForumID: 1 + id%2,
		UserID:  7,
		Time:    baseTime.Add(time.Duration(id) * time.Hour),
		Subject: "subject of post",
		Text:    "plain body text",
	}
}

func doc(id int) Document {
	return Collect(post(id))
}

// fakeRebuilder records rebuild requests and finishes them on demand.
type fakeRebuilder struct {
	calls int
	done  func(error)
	busy  bool
}

func (f *fakeRebuilder) StartFullRebuild(_ context.Context, done func(error)) bool {
	f.calls++
	if f.busy {
		return false
	}
	f.done = done
	return true
}
