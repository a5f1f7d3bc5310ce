package daemon

import (
	"fmt"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/index"
	"github.com/xHumanityRO/forumsearch/internal/jobstore"
	"github.com/xHumanityRO/forumsearch/internal/reindex"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing        = "ping"
	MethodStatus      = "status"
	MethodSearch      = "search"
	MethodFindPost    = "find_post"
	MethodPostCreated = "post_created"
	MethodPostUpdated = "post_updated"
	MethodPostDeleted = "post_deleted"
	MethodReindex     = "reindex"
	MethodReindexStop = "reindex_stop"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes for daemon-specific errors.
const (
	ErrCodeIndexUnavailable = -32001
	ErrCodeSearchFailed     = -32002
	ErrCodeIndexWriteFailed = -32003
	ErrCodePostNotFound     = -32004
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements error so clients can return it directly.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// SearchParams are the parameters for the search method.
type SearchParams struct {
	// Terms is the free text query. Required unless MatchAll is set.
	Terms string `json:"terms,omitempty"`

	// MatchAll requires every term to match instead of any.
	MatchAll bool `json:"match_all,omitempty"`

	ForumID  int `json:"forum_id,omitempty"`
	TopicID  int `json:"topic_id,omitempty"`
	AuthorID int `json:"author_id,omitempty"`

	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`

	Offset int `json:"offset,omitempty"`

	// Limit is the page size (default: 10).
	Limit int `json:"limit,omitempty"`

	// OrderBy is "relevance" (default) or "date".
	OrderBy string `json:"order_by,omitempty"`

	// UserID is the user the search runs on behalf of, for forum
	// visibility. 0 is the anonymous user.
	UserID int `json:"user_id,omitempty"`
}

// Validate checks that required fields are present.
func (p *SearchParams) Validate() error {
	if p.Terms == "" && p.ForumID == 0 && p.TopicID == 0 && p.AuthorID == 0 && p.From.IsZero() && p.To.IsZero() {
		return fmt.Errorf("terms or at least one filter is required")
	}
	switch index.SortOrder(p.OrderBy) {
	case "", index.SortRelevance, index.SortDate:
	default:
		return fmt.Errorf("order_by must be %q or %q", index.SortRelevance, index.SortDate)
	}
	if p.Offset < 0 {
		return fmt.Errorf("offset cannot be negative")
	}
	// Correct negative limit to default
	if p.Limit < 0 {
		p.Limit = 10
	}
	return nil
}

// Args converts the parameters to index search arguments.
func (p SearchParams) Args() index.SearchArgs {
	return index.SearchArgs{
		Terms:    p.Terms,
		MatchAll: p.MatchAll,
		ForumID:  p.ForumID,
		TopicID:  p.TopicID,
		UserID:   p.AuthorID,
		From:     p.From,
		To:       p.To,
		Offset:   p.Offset,
		Limit:    p.Limit,
		OrderBy:  index.SortOrder(p.OrderBy),
	}
}

// SearchHit is a single matching post.
type SearchHit struct {
	PostID  int       `json:"post_id"`
	ForumID int       `json:"forum_id"`
	TopicID int       `json:"topic_id"`
	UserID  int       `json:"user_id"`
	Date    time.Time `json:"date"`
	Subject string    `json:"subject"`
	Score   float64   `json:"score"`
}

// SearchResult is one page of matches plus the total match count.
type SearchResult struct {
	Total uint64      `json:"total"`
	Hits  []SearchHit `json:"hits"`
}

// PostParams identify a post for find_post and the mutation methods.
type PostParams struct {
	PostID int `json:"post_id"`
}

// Validate checks the post id.
func (p PostParams) Validate() error {
	if p.PostID <= 0 {
		return fmt.Errorf("post_id must be positive")
	}
	return nil
}

// FindPostResult reports whether a post is in the index.
type FindPostResult struct {
	Indexed  bool            `json:"indexed"`
	Document *index.Document `json:"document,omitempty"`
}

// MutationResult acknowledges a post event.
type MutationResult struct {
	PostID int    `json:"post_id"`
	Op     string `json:"op"`
}

// ReindexParams are the parameters for the reindex method.
type ReindexParams struct {
	FirstPostID     int       `json:"first_post_id,omitempty"`
	LastPostID      int       `json:"last_post_id,omitempty"`
	FromDate        time.Time `json:"from_date,omitempty"`
	ToDate          time.Time `json:"to_date,omitempty"`
	Recreate        bool      `json:"recreate,omitempty"`
	AvoidDuplicates bool      `json:"avoid_duplicates,omitempty"`
}

// Spec converts the parameters to a job spec.
func (p ReindexParams) Spec() reindex.JobSpec {
	return reindex.JobSpec{
		FirstPostID:     p.FirstPostID,
		LastPostID:      p.LastPostID,
		FromDate:        p.FromDate,
		ToDate:          p.ToDate,
		Recreate:        p.Recreate,
		AvoidDuplicates: p.AvoidDuplicates,
	}
}

// ReindexResult reports whether a job was started. Started is false when
// another job was already running.
type ReindexResult struct {
	Started bool `json:"started"`
}

// ReindexStopResult reports whether a running job was asked to stop.
type ReindexStopResult struct {
	Stopped bool `json:"stopped"`
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running bool         `json:"running"`
	PID     int          `json:"pid"`
	Uptime  string       `json:"uptime"`
	Index   index.Status `json:"index"`

	// Job is the progress of the current or most recent job in this process.
	Job *reindex.ProgressSnapshot `json:"job,omitempty"`

	// LastJob is the newest job journal record.
	LastJob *jobstore.Record `json:"last_job,omitempty"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
