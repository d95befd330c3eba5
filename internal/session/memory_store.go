package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore keeps sessions in a map with TTL-based cleanup.
// It is thread-safe and supports concurrent access.
type MemoryStore struct {
	mu            sync.RWMutex
	sessions      map[string]*Session // sessionID -> Session
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// NewMemoryStore creates an in-memory store. A positive cleanupInterval
// starts a background goroutine that drops expired sessions.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	m := &MemoryStore{
		sessions:    make(map[string]*Session),
		stopCleanup: make(chan struct{}),
	}

	if cleanupInterval > 0 {
		m.cleanupTicker = time.NewTicker(cleanupInterval)
		go m.cleanupLoop()
	}

	return m
}

// Get retrieves a session by its ID.
// Returns ErrNotFound if the session is missing or has expired.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || s.Expired(time.Now()) {
		return nil, ErrNotFound
	}

	return s.Clone(), nil
}

// Save stores a copy of s under s.ID.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return ErrInvalidSession
	}

	m.mu.Lock()
	m.sessions[s.ID] = s.Clone()
	m.mu.Unlock()

	return nil
}

// Delete removes a session from the store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// List returns copies of all unexpired sessions.
func (m *MemoryStore) List(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if !s.Expired(now) {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

// Count returns the number of stored sessions, expired ones included until
// the next cleanup.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (m *MemoryStore) Close() error {
	m.stopOnce.Do(func() {
		if m.cleanupTicker != nil {
			m.cleanupTicker.Stop()
		}
		close(m.stopCleanup)
	})
	return nil
}

// cleanupLoop periodically removes expired sessions until Close is called.
func (m *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.cleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired sessions.
func (m *MemoryStore) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	expiredCount := 0

	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			expiredCount++
		}
	}

	if expiredCount > 0 {
		slog.Info("cleaned up expired sessions", "count", expiredCount)
	}
}
