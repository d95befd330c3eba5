package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrRemote wraps errors reported by the daemon.
var ErrRemote = errors.New("daemon error")

// Client talks to the daemon's control socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// SetTimeout sets the dial and round-trip timeout used when ctx has no deadline.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Send performs one request/response exchange.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer func() { _ = conn.Close() }()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set connection deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.Type != MessageTypeResponse {
		return nil, fmt.Errorf("invalid response type: %s", resp.Type)
	}

	return &resp, nil
}

// ListSessions returns all live sessions known to the daemon.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	resp, err := c.Send(ctx, &Request{Type: MessageTypeListSessions})
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	return resp.Sessions, nil
}

// RevokeSession asks the daemon to delete a session.
func (c *Client) RevokeSession(ctx context.Context, id string) error {
	resp, err := c.Send(ctx, &Request{Type: MessageTypeRevokeSession, SessionID: id})
	if err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	return nil
}
