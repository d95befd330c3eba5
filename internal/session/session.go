// Package session provides server-side session records and the stores that
// keep them, addressed by an opaque session id.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/al-bashkir/sfa-attack-simulation/internal/users"
)

// Session is the server-side state behind a session cookie.
// A session without User is anonymous.
type Session struct {
	// ID is the opaque session identifier carried by the cookie (64-char hex string)
	ID string `json:"id"`

	// User is the authenticated username, empty while anonymous
	User string `json:"user,omitempty"`

	// Role is the authenticated user's role, empty while anonymous
	Role users.Role `json:"role,omitempty"`

	// SSOState is the pending OIDC state parameter, if an SSO login was started
	SSOState string `json:"sso_state,omitempty"`

	// SSOVerifier is the PKCE code verifier matching SSOState
	SSOVerifier string `json:"sso_verifier,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// New creates an anonymous session with a fresh id that expires after ttl.
func New(ttl time.Duration) (*Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Authenticated reports whether a principal is attached to the session.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != ""
}

// Expired reports whether the session is past its expiry at time now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Clone returns a copy that shares no state with s.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}

// NewID generates a cryptographically secure random session ID.
// The ID is 64 hex characters (32 random bytes).
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}
