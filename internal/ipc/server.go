package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/al-bashkir/sfa-attack-simulation/internal/logsanitize"
)

// Handler answers one control request.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Server accepts control connections on a Unix socket.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    Handler
	wg         sync.WaitGroup
	stopChan   chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
}

// NewServer creates a server; call Start to begin listening.
func NewServer(socketPath string, handler Handler) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		stopChan:   make(chan struct{}),
	}
}

// Start creates the socket and serves connections in the background.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0750); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	// Session ids are bearer credentials; only the owner and group may ask.
	if err := os.Chmod(s.socketPath, 0660); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	slog.Info("control socket listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
				slog.Error("failed to accept connection", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		slog.Warn("failed to decode control request", "error", err)
		s.sendError(conn, "invalid request format")
		return
	}

	switch req.Type {
	case MessageTypeListSessions, MessageTypeRevokeSession:
	default:
		slog.Warn("unknown control request", // #nosec G706 -- value sanitized via logsanitize
			"type", logsanitize.Sanitize(string(req.Type)),
		)
		s.sendError(conn, "unknown request type")
		return
	}

	slog.Debug("control request received", // #nosec G706 -- values sanitized via logsanitize
		"type", string(req.Type),
		"session_id", logsanitize.ShortID(req.SessionID),
	)

	resp, err := s.handler(ctx, &req)
	if err != nil {
		slog.Error("control request failed", "type", string(req.Type), "error", err)
		s.sendError(conn, err.Error())
		return
	}

	resp.Type = MessageTypeResponse
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		slog.Error("failed to send control response", "error", err)
	}
}

func (s *Server) sendError(conn net.Conn, msg string) {
	resp := &Response{
		Type:   MessageTypeResponse,
		Status: StatusError,
		Error:  msg,
	}
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		slog.Error("failed to send error response", "error", err)
	}
}

// Stop closes the listener, waits for in-flight requests and removes the
// socket file. It is safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		slog.Info("stopping control socket")
		close(s.stopChan)

		s.mu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				slog.Warn("failed to close listener", "error", err)
			}
		}
		s.mu.Unlock()

		s.wg.Wait()

		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove socket file", "error", err)
		}
	})
	return nil
}
