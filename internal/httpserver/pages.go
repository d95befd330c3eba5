package httpserver

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/al-bashkir/sfa-attack-simulation/internal/session"
	"github.com/al-bashkir/sfa-attack-simulation/internal/users"
)

// notices maps the ?notice= codes used in redirects to display text.
var notices = map[string]string{
	"login_ok":       "Login successful!",
	"logged_out":     "Logged out successfully",
	"login_required": "Please login first",
	"admin_required": "Access denied. Admin privileges required.",
}

// pageData is passed to every page template.
type pageData struct {
	User       string
	Role       users.Role
	SessionID  string
	Mode       string
	Hardened   bool
	SSOEnabled bool
	Notice     string
	Error      string
}

func (s *Server) newPageData(r *http.Request, sess *session.Session) pageData {
	d := pageData{
		Mode:       s.cfg.Session.Mode,
		Hardened:   s.lifecycle.RotatesOnLogin(),
		SSOEnabled: s.sso != nil,
		Notice:     notices[r.URL.Query().Get("notice")],
	}
	if sess != nil {
		d.User = sess.User
		d.Role = sess.Role
		d.SessionID = sess.ID
	}
	return d
}

// render executes a page template into a buffer first so a template error
// still produces a clean 500.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, status int, msg string) {
	s.render(w, status, "error.html", pageData{
		Mode:     s.cfg.Session.Mode,
		Hardened: s.lifecycle.RotatesOnLogin(),
		Error:    msg,
	})
}
