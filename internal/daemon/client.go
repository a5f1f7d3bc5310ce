package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client talks to a running daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	if err := c.call(ctx, MethodPing, nil, &res); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := c.call(ctx, MethodStatus, nil, &status); err != nil {
		return nil, fmt.Errorf("status failed: %w", err)
	}
	return &status, nil
}

// Search runs a query in the daemon.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var res SearchResult
	if err := c.call(ctx, MethodSearch, params, &res); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return &res, nil
}

// FindPost reports whether postID is indexed.
func (c *Client) FindPost(ctx context.Context, postID int) (*FindPostResult, error) {
	var res FindPostResult
	if err := c.call(ctx, MethodFindPost, PostParams{PostID: postID}, &res); err != nil {
		return nil, fmt.Errorf("find_post failed: %w", err)
	}
	return &res, nil
}

// PostCreated tells the daemon a post was created.
func (c *Client) PostCreated(ctx context.Context, postID int) error {
	return c.mutate(ctx, MethodPostCreated, postID)
}

// PostUpdated tells the daemon a post was edited.
func (c *Client) PostUpdated(ctx context.Context, postID int) error {
	return c.mutate(ctx, MethodPostUpdated, postID)
}

// PostDeleted tells the daemon a post was removed.
func (c *Client) PostDeleted(ctx context.Context, postID int) error {
	return c.mutate(ctx, MethodPostDeleted, postID)
}

func (c *Client) mutate(ctx context.Context, method string, postID int) error {
	var res MutationResult
	if err := c.call(ctx, method, PostParams{PostID: postID}, &res); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}

// Reindex asks the daemon to start a job.
func (c *Client) Reindex(ctx context.Context, params ReindexParams) (*ReindexResult, error) {
	var res ReindexResult
	if err := c.call(ctx, MethodReindex, params, &res); err != nil {
		return nil, fmt.Errorf("reindex failed: %w", err)
	}
	return &res, nil
}

// ReindexStop asks the daemon to cancel the running job.
func (c *Client) ReindexStop(ctx context.Context) (*ReindexStopResult, error) {
	var res ReindexStopResult
	if err := c.call(ctx, MethodReindexStop, nil, &res); err != nil {
		return nil, fmt.Errorf("reindex_stop failed: %w", err)
	}
	return &res, nil
}

// call sends one request on a fresh connection and decodes the result.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	// Set deadline from context or timeout
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID(),
	}
	if err := c.send(conn, req); err != nil {
		return err
	}

	resp, err := c.receive(conn)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}

	resultData, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(resultData, result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// send encodes and writes a request to the connection.
func (c *Client) send(conn net.Conn, req Request) error {
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// receive reads and decodes a response from the connection.
func (c *Client) receive(conn net.Conn) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to receive response: %w", err)
	}
	return &resp, nil
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	id := c.requestID.Add(1)
	return fmt.Sprintf("req-%d", id)
}
