// Package auth implements the session lifecycle: issuing anonymous sessions,
// attaching a principal on login, clearing on logout and role checks.
//
// In the default configuration a successful login keeps the session id that
// was issued before authentication. Anyone holding that id before the login
// holds an authenticated session afterwards (session fixation). Setting
// Options.RotateOnLogin issues a new id on every privilege change instead.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/al-bashkir/sfa-attack-simulation/internal/logsanitize"
	"github.com/al-bashkir/sfa-attack-simulation/internal/session"
	"github.com/al-bashkir/sfa-attack-simulation/internal/users"
)

// Options tunes the lifecycle handler.
type Options struct {
	// TTL is the lifetime of newly issued sessions.
	TTL time.Duration

	// RotateOnLogin issues a fresh session id when a principal is attached.
	RotateOnLogin bool
}

// Handler manages the transition of a session from anonymous to
// authenticated and back.
type Handler struct {
	store  session.Store
	users  users.Repository
	hasher users.Hasher
	opts   Options
}

// NewHandler creates a lifecycle handler over the given store and user table.
func NewHandler(store session.Store, repo users.Repository, hasher users.Hasher, opts Options) *Handler {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	return &Handler{
		store:  store,
		users:  repo,
		hasher: hasher,
		opts:   opts,
	}
}

// RotatesOnLogin reports whether logins issue a new session id.
func (h *Handler) RotatesOnLogin() bool {
	return h.opts.RotateOnLogin
}

// EnsureSession returns the live session stored under id, or issues a new
// anonymous one when id is empty or unknown. The second return value is true
// when a new session was issued.
func (h *Handler) EnsureSession(ctx context.Context, id string) (*session.Session, bool, error) {
	if id != "" {
		sess, err := h.store.Get(ctx, id)
		if err == nil {
			return sess, false, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return nil, false, fmt.Errorf("failed to load session: %w", err)
		}
	}

	sess, err := session.New(h.opts.TTL)
	if err != nil {
		return nil, false, err
	}

	if err := h.store.Save(ctx, sess); err != nil {
		return nil, false, fmt.Errorf("failed to store session: %w", err)
	}

	slog.Info("new session created", "session_id", sess.ID)

	return sess, true, nil
}

// Login checks username and password against the user table. On success the
// principal is attached to sess and the updated session is returned; its id
// equals sess.ID unless RotateOnLogin is set. On failure sess is left
// untouched and ErrInvalidCredentials is returned.
func (h *Handler) Login(ctx context.Context, sess *session.Session, username, password string) (*session.Session, error) {
	if sess == nil {
		return nil, ErrNoSession
	}

	slog.Info("session id before login", // #nosec G706 -- username sanitized via logsanitize
		"session_id", sess.ID,
		"username", logsanitize.Sanitize(username),
	)

	rec, err := h.users.Lookup(ctx, username)
	if errors.Is(err, users.ErrUnknownUser) {
		slog.Warn("login failed: unknown user", // #nosec G706 -- username sanitized via logsanitize
			"session_id", sess.ID,
			"username", logsanitize.Sanitize(username),
		)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !h.hasher.Verify(rec.PasswordHash, password) {
		slog.Warn("login failed: wrong password",
			"session_id", sess.ID,
			"username", rec.Username,
		)
		return nil, ErrInvalidCredentials
	}

	return h.attach(ctx, sess, rec.Username, rec.Role, "password")
}

// CompleteSSO attaches a principal authenticated by the identity provider.
// It follows the same id policy as Login.
func (h *Handler) CompleteSSO(ctx context.Context, sess *session.Session, username string, role users.Role) (*session.Session, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	return h.attach(ctx, sess, username, role, "sso")
}

// attach sets the principal on a copy of sess and persists it, rotating the
// id when configured.
func (h *Handler) attach(ctx context.Context, sess *session.Session, username string, role users.Role, method string) (*session.Session, error) {
	next := sess.Clone()
	next.User = username
	next.Role = role
	next.SSOState = ""
	next.SSOVerifier = ""

	if h.opts.RotateOnLogin {
		id, err := session.NewID()
		if err != nil {
			return nil, err
		}
		now := time.Now()
		next.ID = id
		next.CreatedAt = now
		next.ExpiresAt = now.Add(h.opts.TTL)
	}

	if err := h.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	if next.ID != sess.ID {
		if err := h.store.Delete(ctx, sess.ID); err != nil {
			// The old id must not outlive the login; drop the new session too.
			_ = h.store.Delete(ctx, next.ID)
			return nil, fmt.Errorf("failed to retire pre-login session: %w", err)
		}
	}

	rotated := next.ID != sess.ID
	if rotated {
		slog.Info("session id after login",
			"session_id", next.ID,
			"previous_session_id", sess.ID,
			"username", username,
			"role", string(role),
			"method", method,
			"rotated", true,
		)
	} else {
		slog.Warn("session id after login is unchanged",
			"session_id", next.ID,
			"username", username,
			"role", string(role),
			"method", method,
			"rotated", false,
		)
	}

	return next, nil
}

// Logout deletes the session stored under id. It never fails; store errors
// are logged.
func (h *Handler) Logout(ctx context.Context, id string) {
	if id == "" {
		return
	}

	if err := h.store.Delete(ctx, id); err != nil {
		slog.Error("failed to delete session on logout",
			"session_id", id,
			"error", err,
		)
		return
	}

	slog.Info("session cleared", "session_id", id)
}

// Authorize checks that sess carries a principal with the required role.
// An empty role accepts any authenticated principal.
func (h *Handler) Authorize(sess *session.Session, required users.Role) error {
	if !sess.Authenticated() {
		return ErrNotAuthenticated
	}
	if required != "" && sess.Role != required {
		return ErrForbidden
	}
	return nil
}

// BeginSSO records the state and PKCE verifier of an SSO login on sess.
func (h *Handler) BeginSSO(ctx context.Context, sess *session.Session, state, verifier string) error {
	if sess == nil {
		return ErrNoSession
	}

	sess.SSOState = state
	sess.SSOVerifier = verifier

	if err := h.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// TakeSSO checks state against the value recorded by BeginSSO and returns the
// PKCE verifier. The recorded state is cleared either way so it cannot be
// replayed.
func (h *Handler) TakeSSO(ctx context.Context, sess *session.Session, state string) (string, error) {
	if sess == nil {
		return "", ErrNoSession
	}

	expected, verifier := sess.SSOState, sess.SSOVerifier
	if expected == "" {
		return "", ErrSSOStateMismatch
	}

	sess.SSOState = ""
	sess.SSOVerifier = ""
	if err := h.store.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		return "", ErrSSOStateMismatch
	}

	return verifier, nil
}
