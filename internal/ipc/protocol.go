// Package ipc is the local control channel of the daemon: newline-delimited
// JSON over a Unix socket, used by the CLI to inspect and revoke sessions.
package ipc

import "time"

// MessageType identifies a control message.
type MessageType string

const (
	MessageTypeListSessions  MessageType = "list_sessions"
	MessageTypeRevokeSession MessageType = "revoke_session"
	MessageTypeResponse      MessageType = "response"
)

// Request is sent from the CLI to the daemon.
type Request struct {
	Type MessageType `json:"type"`

	// SessionID selects the session for revoke_session.
	SessionID string `json:"session_id,omitempty"`
}

// SessionInfo describes one live session. It never carries SSO secrets.
type SessionInfo struct {
	ID        string    `json:"id"`
	User      string    `json:"user,omitempty"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticated reports whether the session carries a principal.
func (s SessionInfo) Authenticated() bool {
	return s.User != ""
}

// Response is sent from the daemon back to the CLI.
type Response struct {
	Type     MessageType   `json:"type"`
	Status   string        `json:"status"`
	Sessions []SessionInfo `json:"sessions,omitempty"`
	Error    string        `json:"error,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)
