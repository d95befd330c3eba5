// Package httpserver serves the demo web application: a login page, a
// dashboard, an admin page and a profile page, all backed by the session
// lifecycle in internal/auth.
package httpserver

import (
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/al-bashkir/sfa-attack-simulation/internal/auth"
	"github.com/al-bashkir/sfa-attack-simulation/internal/config"
	"github.com/al-bashkir/sfa-attack-simulation/internal/oidc"
)

//go:embed templates/*.html
var templatesFS embed.FS

// SSOProvider runs the single sign-on flow. *oidc.Provider implements it.
type SSOProvider interface {
	StartAuthFlow(ctx context.Context) (*oidc.AuthFlow, error)
	Authenticate(ctx context.Context, code, codeVerifier string) (oidc.Identity, error)
}

// Options carries optional server dependencies.
type Options struct {
	// SSO enables /sso/login and /sso/callback when set.
	SSO SSOProvider

	// Version is reported by /health.
	Version string
}

// Server is the demo web application.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	router     chi.Router
	templates  *template.Template
	lifecycle  *auth.Handler
	sso        SSOProvider
	cookies    *cookieCodec
	limiter    *IPRateLimiter
	version    string
}

// NewServer builds the router and the underlying http.Server.
func NewServer(cfg *config.Config, lifecycle *auth.Handler, opts Options) (*Server, error) {
	templates, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		cfg:       cfg,
		templates: templates,
		lifecycle: lifecycle,
		sso:       opts.SSO,
		cookies:   newCookieCodec(&cfg.Session, cfg.TLS.Enabled),
		limiter:   newIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		version:   version,
	}

	r := chi.NewRouter()
	r.Use(
		securityHeadersMiddleware,
		s.limiter.middleware,
		requestIDMiddleware,
		loggingMiddleware,
		recoveryMiddleware,
	)

	r.Get("/", s.handleIndex)
	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)
	r.Get("/admin", s.handleAdmin)
	r.Get("/profile", s.handleProfile)
	r.Get("/health", s.handleHealth)

	if s.sso != nil {
		r.Get("/sso/login", s.handleSSOLogin)
		r.Get("/sso/callback", s.handleSSOCallback)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, http.StatusNotFound, "Page not found")
	})

	s.router = r

	s.httpServer = &http.Server{
		Addr:              cfg.Listen.HTTP,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.TLS.Enabled {
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	return s, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("starting HTTP server",
		"addr", s.cfg.Listen.HTTP,
		"tls", s.cfg.TLS.Enabled,
		"mode", s.cfg.Session.Mode,
		"sso", s.sso != nil,
	)

	if s.cfg.TLS.Enabled {
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")
	s.limiter.Stop()
	return s.httpServer.Shutdown(ctx)
}
