package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Listen.HTTP != ":5000" {
		t.Errorf("expected HTTP listen :5000, got %s", cfg.Listen.HTTP)
	}

	if cfg.Session.Mode != ModeVulnerable {
		t.Errorf("expected vulnerable mode by default, got %s", cfg.Session.Mode)
	}

	if !strings.HasPrefix(cfg.Listen.Socket, os.TempDir()) {
		t.Errorf("expected control socket under %s, got %s", os.TempDir(), cfg.Listen.Socket)
	}

	cookie := cfg.Session.Cookie
	if cookie.HTTPOnly || cookie.Secure || cookie.SameSite != "" {
		t.Errorf("expected unflagged cookie by default, got %+v", cookie)
	}

	if cfg.Auth.HashAlgorithm != HashSHA256 {
		t.Errorf("expected sha256 hashing, got %s", cfg.Auth.HashAlgorithm)
	}

	if len(cfg.Auth.Users) != 2 {
		t.Fatalf("expected 2 seeded users, got %d", len(cfg.Auth.Users))
	}

	if cfg.Session.TTL() != time.Hour {
		t.Errorf("expected 1h TTL, got %s", cfg.Session.TTL())
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		wantErr     bool
		errContains string
	}{
		{
			name: "valid config",
			configYAML: `
listen:
  http: ":8080"
session:
  mode: hardened
  timeout: 600
  cookie:
    name: "sid"
    hash_key: "0123456789abcdef"
auth:
  hash_algorithm: bcrypt
  users:
    - username: alice
      password: wonderland
      role: admin
log:
  level: "debug"
  format: "text"
`,
			wantErr: false,
		},
		{
			name: "unknown mode",
			configYAML: `
session:
  mode: permissive
`,
			wantErr:     true,
			errContains: "session.mode must be one of",
		},
		{
			name: "redis store without url",
			configYAML: `
session:
  store: redis
`,
			wantErr:     true,
			errContains: "redis_url is required",
		},
		{
			name: "user with both password forms",
			configYAML: `
auth:
  users:
    - username: bob
      password: secret
      password_hash: abcd
      role: user
`,
			wantErr:     true,
			errContains: "exactly one of password or password_hash",
		},
		{
			name: "user with unknown role",
			configYAML: `
auth:
  users:
    - username: bob
      password: secret
      role: root
`,
			wantErr:     true,
			errContains: "role must be one of",
		},
		{
			name: "oidc enabled without issuer",
			configYAML: `
oidc:
  enabled: true
  client_id: "sfa"
  redirect_uri: "http://localhost:5000/sso/callback"
`,
			wantErr:     true,
			errContains: "issuer is required",
		},
		{
			name: "oidc scopes missing openid",
			configYAML: `
oidc:
  enabled: true
  issuer: "https://keycloak.example.com/realms/lab"
  client_id: "sfa"
  redirect_uri: "http://localhost:5000/sso/callback"
  scopes:
    - profile
`,
			wantErr:     true,
			errContains: "must include 'openid'",
		},
		{
			name: "invalid log level",
			configYAML: `
log:
  level: "verbose"
`,
			wantErr:     true,
			errContains: "log.level must be one of",
		},
		{
			name: "invalid yaml",
			configYAML: `
this is not: valid: yaml:
  bad: [syntax
`,
			wantErr:     true,
			errContains: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.configYAML))

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing '%s', got nil", tt.errContains)
				} else if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %v, want error containing %v", err, tt.errContains)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if cfg == nil {
					t.Error("expected config, got nil")
				}
			}
		})
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Session.Mode != ModeVulnerable {
		t.Errorf("expected defaults, got mode %s", cfg.Session.Mode)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SFA_SESSION_MODE", "hardened")
	t.Setenv("SFA_SESSION_COOKIE_HASH_KEY", "env-key")
	t.Setenv("SFA_LOG_LEVEL", "debug")
	t.Setenv("SFA_RATE_LIMIT_BURST", "5")

	path := writeConfig(t, `
session:
  mode: vulnerable
  cookie:
    hash_key: "yaml-key"
log:
  level: "info"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Session.Mode != ModeHardened {
		t.Errorf("expected mode 'hardened', got '%s'", cfg.Session.Mode)
	}

	if cfg.Session.Cookie.HashKey != "env-key" {
		t.Errorf("expected hash_key='env-key', got '%s'", cfg.Session.Cookie.HashKey)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", cfg.Log.Level)
	}

	if cfg.RateLimit.Burst != 5 {
		t.Errorf("expected burst 5, got %d", cfg.RateLimit.Burst)
	}

	// Untouched fields keep their file or default values.
	if cfg.Session.Cookie.Name != "session" {
		t.Errorf("expected cookie name 'session', got '%s'", cfg.Session.Cookie.Name)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "session timeout zero",
			modify: func(c *Config) {
				c.Session.Timeout = 0
			},
			wantErr: true,
			errMsg:  "must be positive",
		},
		{
			name: "empty hash key",
			modify: func(c *Config) {
				c.Session.Cookie.HashKey = ""
			},
			wantErr: true,
			errMsg:  "hash_key is required",
		},
		{
			name: "bad same_site",
			modify: func(c *Config) {
				c.Session.Cookie.SameSite = "sometimes"
			},
			wantErr: true,
			errMsg:  "same_site must be one of",
		},
		{
			name: "redis url with wrong scheme",
			modify: func(c *Config) {
				c.Session.Store = StoreRedis
				c.Session.RedisURL = "http://localhost:6379"
			},
			wantErr: true,
			errMsg:  "redis:// or rediss://",
		},
		{
			name: "duplicate usernames",
			modify: func(c *Config) {
				c.Auth.Users = append(c.Auth.Users, UserConfig{Username: "admin", Password: "x", Role: "user"})
			},
			wantErr: true,
			errMsg:  "duplicate username",
		},
		{
			name: "no users",
			modify: func(c *Config) {
				c.Auth.Users = nil
			},
			wantErr: true,
			errMsg:  "at least one user",
		},
		{
			name: "unknown hash algorithm",
			modify: func(c *Config) {
				c.Auth.HashAlgorithm = "md5"
			},
			wantErr: true,
			errMsg:  "hash_algorithm must be one of",
		},
		{
			name: "zero rate limit",
			modify: func(c *Config) {
				c.RateLimit.RPS = 0
			},
			wantErr: true,
			errMsg:  "must be positive",
		},
		{
			name: "TLS enabled without cert",
			modify: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.CertFile = ""
			},
			wantErr: true,
			errMsg:  "are required when TLS is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()

			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing '%s', got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %v, want error containing %v", err, tt.errMsg)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestRedact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OIDC.ClientSecret = "super-secret"

	redacted := cfg.Redact()

	if redacted.OIDC.ClientSecret != "[REDACTED]" {
		t.Errorf("expected [REDACTED], got %s", redacted.OIDC.ClientSecret)
	}
	if redacted.Session.Cookie.HashKey != "[REDACTED]" {
		t.Errorf("expected hash key redacted, got %s", redacted.Session.Cookie.HashKey)
	}
	for _, u := range redacted.Auth.Users {
		if u.Password != "[REDACTED]" {
			t.Errorf("expected password of %s redacted, got %s", u.Username, u.Password)
		}
	}

	// Original should be unchanged
	if cfg.OIDC.ClientSecret != "super-secret" {
		t.Errorf("original was modified")
	}
	if cfg.Auth.Users[0].Password != "admin123" {
		t.Errorf("original users were modified")
	}
}

func TestSetupLogging(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(old)
	})

	SetupLogging(&LogConfig{Level: "debug", Format: "json"})
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug logs to be enabled")
	}

	SetupLogging(&LogConfig{Level: "error", Format: "text"})
	if slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info logs to be disabled at error level")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error logs to be enabled")
	}
}
