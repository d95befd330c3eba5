package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/al-bashkir/sfa-attack-simulation/internal/auth"
	"github.com/al-bashkir/sfa-attack-simulation/internal/logsanitize"
)

// handleSSOLogin starts an SSO login bound to the visitor's session.
func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	flow, err := s.sso.StartAuthFlow(r.Context())
	if err != nil {
		slog.Error("failed to start SSO flow",
			"request_id", requestID(r.Context()),
			"error", err,
		)
		s.renderError(w, http.StatusBadGateway, "Single sign-on is unavailable")
		return
	}

	if err := s.lifecycle.BeginSSO(r.Context(), sess, flow.State, flow.CodeVerifier); err != nil {
		slog.Error("failed to record SSO state",
			"request_id", requestID(r.Context()),
			"error", err,
		)
		s.renderError(w, http.StatusInternalServerError, "Session storage is unavailable")
		return
	}

	http.Redirect(w, r, flow.AuthURL, http.StatusFound)
}

// handleSSOCallback completes the SSO login and promotes the session the
// same way a password login does.
func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")

	if errParam := q.Get("error"); errParam != "" {
		slog.Warn("identity provider returned an error", // #nosec G706 -- values sanitized via logsanitize
			"request_id", requestID(r.Context()),
			"error", logsanitize.Sanitize(errParam),
			"description", logsanitize.Sanitize(q.Get("error_description")),
		)
		s.renderError(w, http.StatusUnauthorized, "Single sign-on failed: "+errParam)
		return
	}

	if code == "" || state == "" {
		s.renderError(w, http.StatusBadRequest, "Invalid callback parameters")
		return
	}

	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	verifier, err := s.lifecycle.TakeSSO(r.Context(), sess, state)
	if errors.Is(err, auth.ErrSSOStateMismatch) {
		slog.Warn("SSO state mismatch", // #nosec G706 -- values sanitized via logsanitize
			"request_id", requestID(r.Context()),
			"session_id", sess.ID,
			"state", logsanitize.Sanitize(state),
		)
		s.renderError(w, http.StatusBadRequest, "Login session expired or invalid. Please try again.")
		return
	}
	if err != nil {
		slog.Error("failed to read SSO state", "request_id", requestID(r.Context()), "error", err)
		s.renderError(w, http.StatusInternalServerError, "Session storage is unavailable")
		return
	}

	identity, err := s.sso.Authenticate(r.Context(), code, verifier)
	if err != nil {
		slog.Error("SSO authentication failed",
			"request_id", requestID(r.Context()),
			"session_id", sess.ID,
			"error", err,
		)
		s.renderError(w, http.StatusUnauthorized, "Single sign-on failed")
		return
	}

	next, err := s.lifecycle.CompleteSSO(r.Context(), sess, identity.Username, identity.Role)
	if err != nil {
		slog.Error("failed to complete SSO login", "request_id", requestID(r.Context()), "error", err)
		s.renderError(w, http.StatusInternalServerError, "Login failed, please try again")
		return
	}

	if next.ID != sess.ID && !s.setSessionCookie(w, r, next.ID) {
		return
	}

	http.Redirect(w, r, "/?notice=login_ok", http.StatusFound)
}
