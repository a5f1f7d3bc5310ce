package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"time":"2024-06-01T10:00:00Z","level":"INFO","msg":"index_opened","path":"/data/index"}
{"time":"2024-06-01T10:00:01Z","level":"DEBUG","msg":"search_started","terms":"garden"}
not json at all
{"time":"2024-06-01T10:00:02Z","level":"WARN","msg":"index_invalid","code":"ERR_201_INDEX_UNAVAILABLE"}
{"time":"2024-06-01T10:00:03Z","level":"ERROR","msg":"reindex_failed","error":"boom","last_post_id":42}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestViewer_TailReturnsLastLines(t *testing.T) {
	// Given: a log with five lines
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{NoColor: true})

	// When: tailing two lines
	entries, err := v.Tail(path, 2)

	// Then: only the newest two are returned, in order
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "index_invalid", entries[0].Msg)
	assert.Equal(t, "reindex_failed", entries[1].Msg)
}

func TestViewer_LevelFilterKeepsRawLines(t *testing.T) {
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{Level: "warn", NoColor: true})

	entries, err := v.Tail(path, 50)

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.False(t, entries[0].Valid, "unparseable lines are never filtered by level")
	assert.Equal(t, "WARN", entries[1].Level)
	assert.Equal(t, "ERROR", entries[2].Level)
}

func TestViewer_PatternFilter(t *testing.T) {
	// Given: a pattern anchored to the start of the message
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`"msg":"index_`), NoColor: true})

	// When: tailing
	entries, err := v.Tail(path, 50)

	// Then: only index_* events remain
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "index_opened", entries[0].Msg)
	assert.Equal(t, "index_invalid", entries[1].Msg)
}

func TestViewer_PatternMatchesAnywhereInLine(t *testing.T) {
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`index_`), NoColor: true})

	entries, err := v.Tail(path, 50)

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "reindex_failed", entries[2].Msg)
}

func TestViewer_FormatSortsAttributes(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true})
	e := ParseEntry(`{"time":"2024-06-01T10:00:03Z","level":"ERROR","msg":"reindex_failed","last_post_id":42,"error":"boom"}`)

	line := v.Format(e)

	assert.True(t, strings.HasSuffix(line, "ERROR reindex_failed error=boom last_post_id=42"), line)
}

func TestViewer_FormatInvalidIsRaw(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true})
	assert.Equal(t, "plain text", v.Format(ParseEntry("plain text")))
}

func TestViewer_Print(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true})
	buf := &bytes.Buffer{}

	v.Print(buf, []Entry{ParseEntry("a"), ParseEntry("b")})

	assert.Equal(t, "a\nb\n", buf.String())
}

func TestViewer_FollowSeesAppendedLines(t *testing.T) {
	// Given: a follower on an existing log
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{NoColor: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan Entry, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- v.Follow(ctx, path, entries) }()

	// When: a record is appended
	time.Sleep(150 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"time":"2024-06-01T10:00:04Z","level":"INFO","msg":"daemon_started"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the new record is delivered
	select {
	case e := <-entries:
		assert.Equal(t, "daemon_started", e.Msg)
	case <-time.After(3 * time.Second):
		t.Fatal("appended entry not delivered")
	}

	cancel()
	assert.NoError(t, <-errCh)
}
