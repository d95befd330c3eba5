// Package daemon wires the configured components together and runs them
// until shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/al-bashkir/sfa-attack-simulation/internal/auth"
	"github.com/al-bashkir/sfa-attack-simulation/internal/config"
	"github.com/al-bashkir/sfa-attack-simulation/internal/httpserver"
	"github.com/al-bashkir/sfa-attack-simulation/internal/ipc"
	"github.com/al-bashkir/sfa-attack-simulation/internal/oidc"
	"github.com/al-bashkir/sfa-attack-simulation/internal/session"
	"github.com/al-bashkir/sfa-attack-simulation/internal/users"
)

var (
	redisDialAttempts = 5
	redisDialInterval = time.Second

	memoryCleanupInterval = time.Minute
)

// Daemon owns the HTTP server, the control socket and the session store.
type Daemon struct {
	cfg        *config.Config
	store      session.Store
	closeStore func() error
	lifecycle  *auth.Handler
	httpServer *httpserver.Server
	ipcServer  *ipc.Server
}

// New builds every component from cfg. Nothing listens until Run.
func New(ctx context.Context, cfg *config.Config, version string) (*Daemon, error) {
	hasher, err := users.NewHasher(cfg.Auth.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	repo, err := buildRepository(hasher, cfg.Auth.Users)
	if err != nil {
		return nil, err
	}

	slog.Info("user table loaded",
		"users", repo.Usernames(),
		"hash_algorithm", cfg.Auth.HashAlgorithm,
	)

	store, closeStore, err := openStore(ctx, &cfg.Session)
	if err != nil {
		return nil, err
	}

	lifecycle := auth.NewHandler(store, repo, hasher, auth.Options{
		TTL:           cfg.Session.TTL(),
		RotateOnLogin: cfg.Session.Hardened(),
	})

	opts := httpserver.Options{Version: version}
	if cfg.OIDC.Enabled {
		discoverCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		provider, err := oidc.NewProvider(discoverCtx, &cfg.OIDC)
		cancel()
		if err != nil {
			_ = closeStore()
			return nil, fmt.Errorf("failed to initialize OIDC provider: %w", err)
		}
		opts.SSO = provider

		slog.Info("OIDC provider initialized",
			"issuer", cfg.OIDC.Issuer,
			"client_id", cfg.OIDC.ClientID,
		)
	}

	httpServer, err := httpserver.NewServer(cfg, lifecycle, opts)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	d := &Daemon{
		cfg:        cfg,
		store:      store,
		closeStore: closeStore,
		lifecycle:  lifecycle,
		httpServer: httpServer,
	}

	if cfg.Listen.Socket != "" {
		d.ipcServer = ipc.NewServer(cfg.Listen.Socket, sessionControl(store))
	} else {
		slog.Info("control socket disabled")
	}

	return d, nil
}

func buildRepository(hasher users.Hasher, cfgUsers []config.UserConfig) (*users.StaticRepository, error) {
	seeds := make([]users.Seed, 0, len(cfgUsers))
	for _, u := range cfgUsers {
		seeds = append(seeds, users.Seed{
			Username:     u.Username,
			Password:     u.Password,
			PasswordHash: u.PasswordHash,
			Role:         u.Role,
		})
	}

	records, err := users.BuildRecords(hasher, seeds)
	if err != nil {
		return nil, fmt.Errorf("failed to build user table: %w", err)
	}

	return users.NewStaticRepository(records...)
}

// openStore returns the configured session store and its close function.
func openStore(ctx context.Context, cfg *config.SessionConfig) (session.Store, func() error, error) {
	switch cfg.Store {
	case config.StoreRedis:
		client, err := session.DialRedis(ctx, cfg.RedisURL, redisDialAttempts, redisDialInterval)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store := session.NewRedisStore(client)
		slog.Info("session store initialized", "store", "redis", "timeout", cfg.TTL())
		return store, store.Close, nil
	default:
		store := session.NewMemoryStore(memoryCleanupInterval)
		slog.Info("session store initialized", "store", "memory", "timeout", cfg.TTL())
		return store, store.Close, nil
	}
}

// Run starts the control socket and the HTTP server and blocks until ctx is
// cancelled, SIGINT/SIGTERM arrives or the HTTP server fails.
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.Session.Hardened() {
		slog.Info("running in hardened mode: session ids are rotated on login")
	} else {
		slog.Warn("running in vulnerable mode: session ids are NOT rotated on login and cookies carry no security flags")
	}

	if d.ipcServer != nil {
		if err := d.ipcServer.Start(ctx); err != nil {
			_ = d.closeStore()
			return fmt.Errorf("failed to start control socket: %w", err)
		}
	}

	httpErrCh := make(chan error, 1)
	go func() {
		if err := d.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
		}
		close(httpErrCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("shutdown requested")
	case err, ok := <-httpErrCh:
		if ok && err != nil {
			slog.Error("HTTP server failed", "error", err)
			runErr = fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	d.shutdown()
	return runErr
}

func (d *Daemon) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if d.ipcServer != nil {
		if err := d.ipcServer.Stop(); err != nil {
			slog.Error("error stopping control socket", "error", err)
		}
	}

	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("error stopping HTTP server", "error", err)
	}

	if err := d.closeStore(); err != nil {
		slog.Error("error closing session store", "error", err)
	}

	slog.Info("daemon shutdown complete")
}
