package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/al-bashkir/sfa-attack-simulation/internal/auth"
	"github.com/al-bashkir/sfa-attack-simulation/internal/session"
	"github.com/al-bashkir/sfa-attack-simulation/internal/users"
)

// loadSession resolves the request's session, issuing one when needed, and
// keeps the cookie in step. On failure it has already written a 500.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := s.cookies.read(r)

	sess, created, err := s.lifecycle.EnsureSession(r.Context(), id)
	if err != nil {
		slog.Error("failed to ensure session",
			"request_id", requestID(r.Context()),
			"error", err,
		)
		s.renderError(w, http.StatusInternalServerError, "Session storage is unavailable")
		return nil, false
	}

	if created || sess.ID != id {
		if !s.setSessionCookie(w, r, sess.ID) {
			return nil, false
		}
	}

	return sess, true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, id string) bool {
	if err := s.cookies.write(w, id); err != nil {
		slog.Error("failed to encode session cookie",
			"request_id", requestID(r.Context()),
			"error", err,
		)
		s.renderError(w, http.StatusInternalServerError, "Failed to issue session cookie")
		return false
	}
	return true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	if sess.Authenticated() {
		s.render(w, http.StatusOK, "dashboard.html", s.newPageData(r, sess))
		return
	}
	s.render(w, http.StatusOK, "login.html", s.newPageData(r, sess))
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	s.render(w, http.StatusOK, "login.html", s.newPageData(r, sess))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		s.renderError(w, http.StatusBadRequest, "Invalid form submission")
		return
	}

	next, err := s.lifecycle.Login(r.Context(), sess, r.PostFormValue("username"), r.PostFormValue("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		data := s.newPageData(r, sess)
		data.Error = "Invalid username or password"
		s.render(w, http.StatusUnauthorized, "login.html", data)
		return
	}
	if err != nil {
		slog.Error("login failed",
			"request_id", requestID(r.Context()),
			"error", err,
		)
		s.renderError(w, http.StatusInternalServerError, "Login failed, please try again")
		return
	}

	if next.ID != sess.ID && !s.setSessionCookie(w, r, next.ID) {
		return
	}

	http.Redirect(w, r, "/?notice=login_ok", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.lifecycle.Logout(r.Context(), s.cookies.read(r))
	s.cookies.clear(w)
	http.Redirect(w, r, "/?notice=logged_out", http.StatusFound)
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	s.protected(w, r, users.RoleAdmin, "admin.html")
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.protected(w, r, "", "profile.html")
}

// protected renders page when the session satisfies role, and otherwise
// redirects: anonymous visitors to the login page, the wrong role home.
func (s *Server) protected(w http.ResponseWriter, r *http.Request, role users.Role, page string) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	switch err := s.lifecycle.Authorize(sess, role); {
	case err == nil:
		s.render(w, http.StatusOK, page, s.newPageData(r, sess))
	case errors.Is(err, auth.ErrForbidden):
		slog.Warn("access denied",
			"request_id", requestID(r.Context()),
			"session_id", sess.ID,
			"user", sess.User,
			"role", string(sess.Role),
			"required_role", string(role),
		)
		http.Redirect(w, r, "/?notice=admin_required", http.StatusFound)
	default:
		http.Redirect(w, r, "/login?notice=login_required", http.StatusFound)
	}
}
