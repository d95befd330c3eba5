// Package users provides the static, read-only user table that password
// logins are checked against.
package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Role is the privilege level attached to a user and, after login, to the
// session.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole converts a configuration string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// ErrUnknownUser is returned by Lookup when no record matches the username.
var ErrUnknownUser = errors.New("unknown user")

// Record is a seeded user. Records are never mutated after startup.
type Record struct {
	Username     string
	PasswordHash string
	Role         Role
}

// Repository looks up user records by username.
type Repository interface {
	Lookup(ctx context.Context, username string) (Record, error)
}

// StaticRepository is an immutable in-memory Repository. It is safe for
// concurrent use because nothing writes to it after construction.
type StaticRepository struct {
	records map[string]Record
}

// NewStaticRepository builds a repository from the given records.
// Duplicate usernames are rejected.
func NewStaticRepository(records ...Record) (*StaticRepository, error) {
	m := make(map[string]Record, len(records))
	for _, r := range records {
		if r.Username == "" {
			return nil, fmt.Errorf("user record with empty username")
		}
		if _, dup := m[r.Username]; dup {
			return nil, fmt.Errorf("duplicate user record %q", r.Username)
		}
		m[r.Username] = r
	}
	return &StaticRepository{records: m}, nil
}

// Lookup returns the record for username or ErrUnknownUser.
func (s *StaticRepository) Lookup(_ context.Context, username string) (Record, error) {
	r, ok := s.records[username]
	if !ok {
		return Record{}, ErrUnknownUser
	}
	return r, nil
}

// Usernames returns the sorted list of known usernames.
func (s *StaticRepository) Usernames() []string {
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
