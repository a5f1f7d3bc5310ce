package daemon

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/errors"
	"github.com/xHumanityRO/forumsearch/internal/storage"
)

// RequestHandler handles incoming RPC requests.
type RequestHandler interface {
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)
	FindPost(ctx context.Context, postID int) (*FindPostResult, error)
	PostCreated(ctx context.Context, postID int) error
	PostUpdated(ctx context.Context, postID int) error
	PostDeleted(ctx context.Context, postID int) error
	Reindex(ctx context.Context, params ReindexParams) (*ReindexResult, error)
	ReindexStop() ReindexStopResult
	Status() StatusResult
}

// Server listens on a Unix socket and handles RPC requests.
type Server struct {
	socketPath string
	timeout    time.Duration
	listener   net.Listener
	handler    RequestHandler
	logger     *slog.Logger
	started    time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a new server that listens on the given socket path.
func NewServer(socketPath string, timeout time.Duration, logger *slog.Logger) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		timeout:    timeout,
		logger:     logger,
	}
}

// SetHandler sets the request handler.
func (s *Server) SetHandler(h RequestHandler) {
	s.handler = h
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Clean up any stale socket
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("server_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			s.logger.Error("server_accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	// Wait for active connections to finish
	s.wg.Wait()

	return ctx.Err()
}

// handleConnection processes a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		s.logger.Warn("server_deadline_failed", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp := s.handleRequest(reqCtx, req)
	s.logger.Debug("rpc_handled",
		slog.String("method", req.Method),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("ok", resp.Error == nil))

	_ = encoder.Encode(resp)
}

// handleRequest dispatches a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.Method == MethodPing {
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	}
	if req.Method == MethodStatus {
		return NewSuccessResponse(req.ID, s.getStatus())
	}
	if s.handler == nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "no request handler configured")
	}

	switch req.Method {
	case MethodSearch:
		var params SearchParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		if err := params.Validate(); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		result, err := s.handler.Search(ctx, params)
		if err != nil {
			return errorResponse(req.ID, ErrCodeSearchFailed, err)
		}
		return NewSuccessResponse(req.ID, result)

	case MethodFindPost:
		var params PostParams
		if resp, ok := decodePostParams(req, &params); !ok {
			return resp
		}
		result, err := s.handler.FindPost(ctx, params.PostID)
		if err != nil {
			return errorResponse(req.ID, ErrCodeSearchFailed, err)
		}
		return NewSuccessResponse(req.ID, result)

	case MethodPostCreated, MethodPostUpdated, MethodPostDeleted:
		return s.handleMutation(ctx, req)

	case MethodReindex:
		var params ReindexParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		result, err := s.handler.Reindex(ctx, params)
		if err != nil {
			return errorResponse(req.ID, ErrCodeInvalidParams, err)
		}
		return NewSuccessResponse(req.ID, result)

	case MethodReindexStop:
		return NewSuccessResponse(req.ID, s.handler.ReindexStop())

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleMutation(ctx context.Context, req Request) Response {
	var params PostParams
	if resp, ok := decodePostParams(req, &params); !ok {
		return resp
	}

	var err error
	switch req.Method {
	case MethodPostCreated:
		err = s.handler.PostCreated(ctx, params.PostID)
	case MethodPostUpdated:
		err = s.handler.PostUpdated(ctx, params.PostID)
	default:
		err = s.handler.PostDeleted(ctx, params.PostID)
	}
	if err != nil {
		return errorResponse(req.ID, ErrCodeIndexWriteFailed, err)
	}
	return NewSuccessResponse(req.ID, MutationResult{PostID: params.PostID, Op: req.Method})
}

// decodeParams round-trips the generic params into dst.
func decodeParams(req Request, dst any) (Response, bool) {
	paramsData, err := json.Marshal(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to encode params"), false
	}
	if err := json.Unmarshal(paramsData, dst); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params"), false
	}
	return Response{}, true
}

func decodePostParams(req Request, dst *PostParams) (Response, bool) {
	if resp, ok := decodeParams(req, dst); !ok {
		return resp, false
	}
	if err := dst.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error()), false
	}
	return Response{}, true
}

// errorResponse maps handler errors to RPC codes. Write failures are shown
// to callers as a generic retry message.
func errorResponse(id string, fallback int, err error) Response {
	switch {
	case stderrors.Is(err, errors.ErrIndexUnavailable):
		return NewErrorResponse(id, ErrCodeIndexUnavailable, err.Error())
	case stderrors.Is(err, errors.ErrIndexWrite):
		return NewErrorResponse(id, ErrCodeIndexWriteFailed, errors.FormatForUser(err, false))
	case stderrors.Is(err, storage.ErrPostNotFound):
		return NewErrorResponse(id, ErrCodePostNotFound, err.Error())
	}
	if errors.GetCategory(err) == errors.CategoryValidation {
		return NewErrorResponse(id, ErrCodeInvalidParams, err.Error())
	}
	return NewErrorResponse(id, fallback, err.Error())
}

// getStatus returns the current server status.
func (s *Server) getStatus() StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	status := StatusResult{}
	if s.handler != nil {
		status = s.handler.Status()
	}
	status.Running = true
	status.PID = os.Getpid()
	status.Uptime = time.Since(started).Round(time.Second).String()

	return status
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		return listener.Close()
	}
	return nil
}
