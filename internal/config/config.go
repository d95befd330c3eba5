package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Session modes.
const (
	// ModeVulnerable keeps the pre-login session id after authentication and
	// issues the cookie without security flags.
	ModeVulnerable = "vulnerable"

	// ModeHardened rotates the session id on login and issues the cookie with
	// HttpOnly and SameSite set.
	ModeHardened = "hardened"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Password hash algorithms.
const (
	HashSHA256 = "sha256"
	HashBcrypt = "bcrypt"
)

// envPrefix is the prefix for all environment variable overrides.
const envPrefix = "SFA_"

// Config represents the complete application configuration
type Config struct {
	Listen    ListenConfig    `yaml:"listen" envPrefix:"LISTEN_"`
	Session   SessionConfig   `yaml:"session" envPrefix:"SESSION_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	OIDC      OIDCConfig      `yaml:"oidc" envPrefix:"OIDC_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	TLS       TLSConfig       `yaml:"tls" envPrefix:"TLS_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

// ListenConfig defines where the daemon listens for requests
type ListenConfig struct {
	HTTP   string `yaml:"http" env:"HTTP"`     // HTTP server address (e.g., ":5000")
	Socket string `yaml:"socket" env:"SOCKET"` // Control socket path, empty disables it
}

// SessionConfig defines how sessions are stored and transported
type SessionConfig struct {
	Mode     string       `yaml:"mode" env:"MODE"`           // vulnerable, hardened
	Timeout  int          `yaml:"timeout" env:"TIMEOUT"`     // Session lifetime in seconds
	Store    string       `yaml:"store" env:"STORE"`         // memory, redis
	RedisURL string       `yaml:"redis_url" env:"REDIS_URL"` // redis://host:6379/0
	Cookie   CookieConfig `yaml:"cookie" envPrefix:"COOKIE_"`
}

// CookieConfig defines the session cookie. The flags only apply in vulnerable
// mode; hardened mode always sets HttpOnly and SameSite.
type CookieConfig struct {
	Name     string `yaml:"name" env:"NAME"`
	HashKey  string `yaml:"hash_key" env:"HASH_KEY"` // HMAC key used to sign the cookie value
	HTTPOnly bool   `yaml:"http_only" env:"HTTP_ONLY"`
	Secure   bool   `yaml:"secure" env:"SECURE"`
	SameSite string `yaml:"same_site" env:"SAME_SITE"` // "", lax, strict, none
}

// AuthConfig defines the seeded user table and password hashing
type AuthConfig struct {
	HashAlgorithm string       `yaml:"hash_algorithm" env:"HASH_ALGORITHM"` // sha256, bcrypt
	Users         []UserConfig `yaml:"users"`
}

// UserConfig seeds one read-only user record. Exactly one of Password or
// PasswordHash must be set; Password is hashed at startup.
type UserConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// OIDCConfig defines the optional SSO login against an OIDC provider
type OIDCConfig struct {
	Enabled       bool     `yaml:"enabled" env:"ENABLED"`
	Issuer        string   `yaml:"issuer" env:"ISSUER"`               // Keycloak issuer URL
	ClientID      string   `yaml:"client_id" env:"CLIENT_ID"`         // OIDC client ID
	ClientSecret  string   `yaml:"client_secret" env:"CLIENT_SECRET"` // empty for public clients
	RedirectURI   string   `yaml:"redirect_uri" env:"REDIRECT_URI"`   // Callback URL
	Scopes        []string `yaml:"scopes"`
	RoleClaim     string   `yaml:"role_claim"`     // JSON path to roles in token
	AdminRole     string   `yaml:"admin_role"`     // IdP role mapped to the local admin role
	UsernameClaim string   `yaml:"username_claim"` // Claim to use as username
}

// RateLimitConfig defines per-IP request limits
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"RPS"`
	Burst int     `yaml:"burst" env:"BURST"`
}

// TLSConfig defines TLS settings for the HTTP server
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	CertFile string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"KEY_FILE"`
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // json, text
}

// Load reads and parses the configuration file. An empty path skips the file
// and starts from DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the insecure teaching baseline: vulnerable mode,
// unflagged cookies and the two demo accounts.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			HTTP:   ":5000",
			Socket: filepath.Join(os.TempDir(), "sfa-attack-simulation", "control.sock"),
		},
		Session: SessionConfig{
			Mode:    ModeVulnerable,
			Timeout: 3600,
			Store:   StoreMemory,
			Cookie: CookieConfig{
				Name:    "session",
				HashKey: "super-secret-key-change-in-production",
			},
		},
		Auth: AuthConfig{
			HashAlgorithm: HashSHA256,
			Users: []UserConfig{
				{Username: "admin", Password: "admin123", Role: "admin"},
				{Username: "user", Password: "user123", Role: "user"},
			},
		},
		OIDC: OIDCConfig{
			Scopes:        []string{"openid", "profile", "email"},
			RoleClaim:     "realm_access.roles",
			AdminRole:     "admin",
			UsernameClaim: "preferred_username",
		},
		RateLimit: RateLimitConfig{
			RPS:   10,
			Burst: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnvOverrides loads an optional .env file and applies SFA_* variables
// on top of the file values. Unset variables leave fields untouched.
func (c *Config) applyEnvOverrides() error {
	// A missing .env file is fine.
	_ = godotenv.Load()

	return env.ParseWithOptions(c, env.Options{Prefix: envPrefix})
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Listen.HTTP == "" {
		return fmt.Errorf("listen.http is required")
	}

	// Validate session config
	switch c.Session.Mode {
	case ModeVulnerable, ModeHardened:
	default:
		return fmt.Errorf("session.mode must be one of: vulnerable, hardened")
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session.timeout must be positive")
	}
	switch c.Session.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Session.RedisURL == "" {
			return fmt.Errorf("session.redis_url is required when session.store is redis")
		}
		if !strings.HasPrefix(c.Session.RedisURL, "redis://") && !strings.HasPrefix(c.Session.RedisURL, "rediss://") {
			return fmt.Errorf("session.redis_url must be a redis:// or rediss:// URL")
		}
	default:
		return fmt.Errorf("session.store must be one of: memory, redis")
	}
	if c.Session.Cookie.Name == "" {
		return fmt.Errorf("session.cookie.name is required")
	}
	if c.Session.Cookie.HashKey == "" {
		return fmt.Errorf("session.cookie.hash_key is required")
	}
	switch strings.ToLower(c.Session.Cookie.SameSite) {
	case "", "lax", "strict", "none":
	default:
		return fmt.Errorf("session.cookie.same_site must be one of: lax, strict, none")
	}

	// Validate auth config
	switch c.Auth.HashAlgorithm {
	case HashSHA256, HashBcrypt:
	default:
		return fmt.Errorf("auth.hash_algorithm must be one of: sha256, bcrypt")
	}
	if len(c.Auth.Users) == 0 {
		return fmt.Errorf("auth.users must contain at least one user")
	}
	seen := make(map[string]bool, len(c.Auth.Users))
	for i, u := range c.Auth.Users {
		if u.Username == "" {
			return fmt.Errorf("auth.users[%d].username is required", i)
		}
		if seen[u.Username] {
			return fmt.Errorf("auth.users[%d]: duplicate username %q", i, u.Username)
		}
		seen[u.Username] = true
		if (u.Password == "") == (u.PasswordHash == "") {
			return fmt.Errorf("auth.users[%d]: exactly one of password or password_hash must be set", i)
		}
		if u.Role != "admin" && u.Role != "user" {
			return fmt.Errorf("auth.users[%d].role must be one of: admin, user", i)
		}
	}

	// Validate OIDC config
	if c.OIDC.Enabled {
		if err := c.OIDC.validate(); err != nil {
			return err
		}
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.rps and rate_limit.burst must be positive")
	}

	// Validate TLS config
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}

		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("tls.cert_file not found: %w", err)
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("tls.key_file not found: %w", err)
		}
	}

	// Validate log config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, text")
	}

	return nil
}

func (o *OIDCConfig) validate() error {
	if o.Issuer == "" {
		return fmt.Errorf("oidc.issuer is required")
	}
	if !strings.HasPrefix(o.Issuer, "http://") && !strings.HasPrefix(o.Issuer, "https://") {
		return fmt.Errorf("oidc.issuer must be a valid HTTP(S) URL")
	}
	if o.ClientID == "" {
		return fmt.Errorf("oidc.client_id is required")
	}
	if o.RedirectURI == "" {
		return fmt.Errorf("oidc.redirect_uri is required")
	}
	if !strings.HasPrefix(o.RedirectURI, "http://") && !strings.HasPrefix(o.RedirectURI, "https://") {
		return fmt.Errorf("oidc.redirect_uri must be a valid HTTP(S) URL")
	}

	hasOpenID := false
	for _, scope := range o.Scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("oidc.scopes must include 'openid'")
	}

	if o.UsernameClaim == "" {
		return fmt.Errorf("oidc.username_claim is required")
	}
	if o.RoleClaim == "" {
		return fmt.Errorf("oidc.role_claim is required")
	}
	return nil
}

// Hardened reports whether the session runs in hardened mode.
func (s *SessionConfig) Hardened() bool {
	return s.Mode == ModeHardened
}

// TTL returns the session lifetime as a duration.
func (s *SessionConfig) TTL() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// SetupLogging configures the global slog logger based on the LogConfig.
func SetupLogging(cfg *LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Redact returns a copy of the config with secrets redacted for safe logging
func (c *Config) Redact() *Config {
	redacted := *c
	if c.OIDC.Scopes != nil {
		redacted.OIDC.Scopes = make([]string, len(c.OIDC.Scopes))
		copy(redacted.OIDC.Scopes, c.OIDC.Scopes)
	}
	if redacted.OIDC.ClientSecret != "" {
		redacted.OIDC.ClientSecret = "[REDACTED]"
	}
	if redacted.Session.Cookie.HashKey != "" {
		redacted.Session.Cookie.HashKey = "[REDACTED]"
	}
	if c.Auth.Users != nil {
		redacted.Auth.Users = make([]UserConfig, len(c.Auth.Users))
		for i, u := range c.Auth.Users {
			if u.Password != "" {
				u.Password = "[REDACTED]"
			}
			if u.PasswordHash != "" {
				u.PasswordHash = "[REDACTED]"
			}
			redacted.Auth.Users[i] = u
		}
	}
	return &redacted
}
