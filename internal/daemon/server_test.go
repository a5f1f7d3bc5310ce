package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xHumanityRO/forumsearch/internal/errors"
	"github.com/xHumanityRO/forumsearch/internal/index"
	"github.com/xHumanityRO/forumsearch/internal/storage"
)

// testSocketPath creates a short unique socket path; t.TempDir can exceed
// the Unix socket path limit on some systems.
func testSocketPath(t *testing.T) string {
	t.Helper()
	socketPath := filepath.Join(os.TempDir(), fmt.Sprintf("fs-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { _ = os.Remove(socketPath) })
	return socketPath
}

// fakeHandler records calls and returns canned results.
type fakeHandler struct {
	mu        sync.Mutex
	mutations []string
	lastQuery SearchParams
	searchErr error
	mutateErr error
	reindexed []ReindexParams
}

func (f *fakeHandler) Search(_ context.Context, p SearchParams) (*SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = p
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &SearchResult{Total: 1, Hits: []SearchHit{{PostID: 7, Subject: "hello", Score: 1.5}}}, nil
}

func (f *fakeHandler) FindPost(_ context.Context, postID int) (*FindPostResult, error) {
	if postID == 7 {
		return &FindPostResult{Indexed: true, Document: &index.Document{PostID: 7}}, nil
	}
	return &FindPostResult{}, nil
}

func (f *fakeHandler) record(op string, postID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, fmt.Sprintf("%s:%d", op, postID))
	return f.mutateErr
}

func (f *fakeHandler) PostCreated(_ context.Context, id int) error { return f.record("created", id) }
func (f *fakeHandler) PostUpdated(_ context.Context, id int) error { return f.record("updated", id) }
func (f *fakeHandler) PostDeleted(_ context.Context, id int) error { return f.record("deleted", id) }

func (f *fakeHandler) Reindex(_ context.Context, p ReindexParams) (*ReindexResult, error) {
	if err := p.Spec().Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reindexed = append(f.reindexed, p)
	return &ReindexResult{Started: len(f.reindexed) == 1}, nil
}

func (f *fakeHandler) ReindexStop() ReindexStopResult {
	return ReindexStopResult{Stopped: true}
}

func (f *fakeHandler) Status() StatusResult {
	return StatusResult{Index: index.Status{State: "ready", DocCount: 3}}
}

// startServer runs a server with h until the test ends.
func startServer(t *testing.T, h RequestHandler) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	socketPath := testSocketPath(t)

	srv := NewServer(socketPath, 5*time.Second, nil)
	if h != nil {
		srv.SetHandler(h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	return socketPath, cancel, errCh
}

// roundTrip sends one raw request and decodes the response.
func roundTrip(t *testing.T, socketPath string, req Request) Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, json.NewEncoder(conn).Encode(req))

	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}

func TestServer_ListenAndServe_StopsOnCancel(t *testing.T) {
	socketPath, cancel, errCh := startServer(t, nil)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}

	_, err := os.Stat(socketPath)
	assert.True(t, os.IsNotExist(err), "socket should be cleaned up")
}

func TestServer_HandlePing(t *testing.T) {
	socketPath, _, _ := startServer(t, nil)

	resp := roundTrip(t, socketPath, Request{JSONRPC: "2.0", Method: MethodPing, ID: "test-1"})

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "test-1", resp.ID)
	assert.Nil(t, resp.Error)
}

func TestServer_HandleUnknownMethod(t *testing.T) {
	socketPath, _, _ := startServer(t, &fakeHandler{})

	resp := roundTrip(t, socketPath, Request{JSONRPC: "2.0", Method: "compact", ID: "x"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestServer_NoHandler(t *testing.T) {
	socketPath, _, _ := startServer(t, nil)

	resp := roundTrip(t, socketPath, Request{JSONRPC: "2.0", Method: MethodSearch, Params: SearchParams{Terms: "x"}, ID: "1"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
}

func TestServer_ParseError(t *testing.T) {
	socketPath, _, _ := startServer(t, nil)

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write([]byte("{not json\n"))
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParseError, resp.Error.Code)
}

func TestServer_HandleStatus(t *testing.T) {
	socketPath, _, _ := startServer(t, &fakeHandler{})

	resp := roundTrip(t, socketPath, Request{JSONRPC: "2.0", Method: MethodStatus, ID: "s"})
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var status StatusResult
	require.NoError(t, json.Unmarshal(data, &status))

	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, "ready", status.Index.State)
	assert.Equal(t, uint64(3), status.Index.DocCount)
}

func TestServer_SearchValidation(t *testing.T) {
	socketPath, _, _ := startServer(t, &fakeHandler{})

	tests := []struct {
		name   string
		params SearchParams
	}{
		{"empty", SearchParams{}},
		{"bad order", SearchParams{Terms: "x", OrderBy: "title"}},
		{"negative offset", SearchParams{Terms: "x", Offset: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := roundTrip(t, socketPath, Request{JSONRPC: "2.0", Method: MethodSearch, Params: tt.params, ID: "v"})
			require.NotNil(t, resp.Error)
			assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
		})
	}
}

func TestServer_MutationsRequirePostID(t *testing.T) {
	h := &fakeHandler{}
	socketPath, _, _ := startServer(t, h)

	resp := roundTrip(t, socketPath, Request{JSONRPC: "2.0", Method: MethodPostCreated, Params: PostParams{}, ID: "m"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	assert.Empty(t, h.mutations)
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"index unavailable", errors.IndexUnavailable("/idx", nil), ErrCodeIndexUnavailable},
		{"write failure", errors.IndexWriteFailure("commit", fmt.Errorf("disk")), ErrCodeIndexWriteFailed},
		{"post missing", fmt.Errorf("post 9: %w", storage.ErrPostNotFound), ErrCodePostNotFound},
		{"validation", errors.New(errors.ErrCodeInvalidRange, "bad range", nil), ErrCodeInvalidParams},
		{"other", fmt.Errorf("boom"), ErrCodeSearchFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := errorResponse("id", ErrCodeSearchFailed, tt.err)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestServer_WriteFailureShowsGenericMessage(t *testing.T) {
	resp := errorResponse("id", ErrCodeIndexWriteFailed, errors.IndexWriteFailure("commit", fmt.Errorf("no space left")))

	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "Please try again")
	assert.NotContains(t, resp.Error.Message, "no space left")
}

func TestServer_ConcurrentConnections(t *testing.T) {
	socketPath, _, _ := startServer(t, nil)

	const numClients = 5
	done := make(chan bool, numClients)

	for i := 0; i < numClients; i++ {
		go func(id int) {
			conn, err := net.Dial("unix", socketPath)
			if err != nil {
				done <- false
				return
			}
			defer func() { _ = conn.Close() }()

			req := Request{JSONRPC: "2.0", Method: MethodPing, ID: fmt.Sprintf("client-%d", id)}
			if err := json.NewEncoder(conn).Encode(req); err != nil {
				done <- false
				return
			}

			var resp Response
			if err := json.NewDecoder(conn).Decode(&resp); err != nil {
				done <- false
				return
			}
			done <- resp.Error == nil
		}(i)
	}

	successCount := 0
	for i := 0; i < numClients; i++ {
		if <-done {
			successCount++
		}
	}
	assert.Equal(t, numClients, successCount, "all clients should succeed")
}
