package daemon

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(socketPath string) *Client {
	return NewClient(Config{SocketPath: socketPath, Timeout: 2 * time.Second})
}

func TestClient_IsRunning_NoSocket(t *testing.T) {
	c := testClient(testSocketPath(t))

	assert.False(t, c.IsRunning())
	assert.Error(t, c.Ping(context.Background()))
}

func TestClient_PingAndStatus(t *testing.T) {
	// Given: a running server
	socketPath, _, _ := startServer(t, &fakeHandler{})
	c := testClient(socketPath)

	// When/Then: ping and status succeed
	require.True(t, c.IsRunning())
	require.NoError(t, c.Ping(context.Background()))

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, "ready", status.Index.State)
}

func TestClient_Search(t *testing.T) {
	h := &fakeHandler{}
	socketPath, _, _ := startServer(t, h)
	c := testClient(socketPath)

	res, err := c.Search(context.Background(), SearchParams{Terms: "hello world", ForumID: 2, UserID: 9, OrderBy: "date"})

	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Total)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, 7, res.Hits[0].PostID)
	assert.Equal(t, 1.5, res.Hits[0].Score)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, "hello world", h.lastQuery.Terms)
	assert.Equal(t, 2, h.lastQuery.ForumID)
	assert.Equal(t, 9, h.lastQuery.UserID)
}

func TestClient_Search_InvalidParamsNotSent(t *testing.T) {
	c := testClient(testSocketPath(t))

	_, err := c.Search(context.Background(), SearchParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params")
}

func TestClient_Search_Error(t *testing.T) {
	socketPath, _, _ := startServer(t, &fakeHandler{searchErr: fmt.Errorf("index exploded")})
	c := testClient(socketPath)

	_, err := c.Search(context.Background(), SearchParams{Terms: "x"})

	require.Error(t, err)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeSearchFailed, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "index exploded")
}

func TestClient_FindPost(t *testing.T) {
	socketPath, _, _ := startServer(t, &fakeHandler{})
	c := testClient(socketPath)

	found, err := c.FindPost(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, found.Indexed)
	require.NotNil(t, found.Document)
	assert.Equal(t, 7, found.Document.PostID)

	missing, err := c.FindPost(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, missing.Indexed)
	assert.Nil(t, missing.Document)
}

func TestClient_Mutations(t *testing.T) {
	h := &fakeHandler{}
	socketPath, _, _ := startServer(t, h)
	c := testClient(socketPath)
	ctx := context.Background()

	require.NoError(t, c.PostCreated(ctx, 1))
	require.NoError(t, c.PostUpdated(ctx, 1))
	require.NoError(t, c.PostDeleted(ctx, 1))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []string{"created:1", "updated:1", "deleted:1"}, h.mutations)
}

func TestClient_Reindex(t *testing.T) {
	h := &fakeHandler{}
	socketPath, _, _ := startServer(t, h)
	c := testClient(socketPath)
	ctx := context.Background()

	first, err := c.Reindex(ctx, ReindexParams{FirstPostID: 1, LastPostID: 10, AvoidDuplicates: true})
	require.NoError(t, err)
	assert.True(t, first.Started)

	second, err := c.Reindex(ctx, ReindexParams{})
	require.NoError(t, err)
	assert.False(t, second.Started)

	_, err = c.Reindex(ctx, ReindexParams{FirstPostID: -1})
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeInvalidParams, rpcErr.Code)

	stopped, err := c.ReindexStop(ctx)
	require.NoError(t, err)
	assert.True(t, stopped.Stopped)
}

func TestClient_Connect_Timeout(t *testing.T) {
	// A listener that never answers.
	socketPath := testSocketPath(t)
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	c := NewClient(Config{SocketPath: socketPath, Timeout: 100 * time.Millisecond})

	start := time.Now()
	err = c.Ping(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
