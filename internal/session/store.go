package session

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no live session has the requested id.
	// Expired sessions are reported as not found.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidSession is returned when saving a nil session or one without an id.
	ErrInvalidSession = errors.New("invalid session")
)

// Store persists sessions by id.
type Store interface {
	// Get returns a copy of the session stored under id.
	Get(ctx context.Context, id string) (*Session, error)

	// Save creates or replaces the session stored under s.ID.
	Save(ctx context.Context, s *Session) error

	// Delete removes the session stored under id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all live sessions.
	List(ctx context.Context) ([]*Session, error)
}
