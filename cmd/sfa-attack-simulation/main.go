package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/al-bashkir/sfa-attack-simulation/internal/config"
	"github.com/al-bashkir/sfa-attack-simulation/internal/daemon"
	"github.com/al-bashkir/sfa-attack-simulation/internal/ipc"
	"github.com/al-bashkir/sfa-attack-simulation/internal/users"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
)

// hash-password flags
var hashAlgorithm string

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitConfig  = 3
)

// out and in are swapped by tests.
var (
	out io.Writer = os.Stdout
	in  io.Reader = os.Stdin
)

var rootCmd = &cobra.Command{
	Use:   "sfa-attack-simulation",
	Short: "Session fixation attack lab",
	Long: `A small web application that demonstrates session fixation.

In vulnerable mode (the default) the session id issued to an anonymous
visitor survives the login, so anyone who planted that id in the victim's
browser shares the victim's authenticated session. Hardened mode rotates
the id on login and sets HttpOnly/SameSite on the cookie.

For educational use only.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web application",
	Long: `Start the web application and the local control socket.

Routes: /, /login, /logout, /admin, /profile, /health and, when OIDC is
enabled, /sso/login and /sso/callback.`,
	RunE: runServe,
}

// overrideExitCode is set by subcommands so main() can call os.Exit() after
// cobra finishes. -1 means "use default".
var overrideExitCode = -1

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration file",
	Long: `Load and validate the configuration without starting the server.

Exit codes:
  0 = Configuration is valid
  3 = Configuration error`,
	RunE: runCheckConfig,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a password hash for the user table",
	Long: `Hash a password with the configured algorithm and print the result,
ready to paste into auth.users[].password_hash. The password is read from
standard input when not given as an argument.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHashPassword,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List live sessions of a running server",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <session-id>",
	Short: "Delete a session on a running server",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevoke,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file (built-in defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (json, text) - overrides config file")

	hashPasswordCmd.Flags().StringVar(&hashAlgorithm, "algorithm", "",
		"Hash algorithm (sha256, bcrypt) - defaults to auth.hash_algorithm")

	sessionsCmd.AddCommand(revokeCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// loadConfig loads the config file and applies the log flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	if logLevel != "" || logFormat != "" {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid log flags: %w", err)
		}
	}

	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	config.SetupLogging(&cfg.Log)

	slog.Info("starting session fixation lab",
		"version", version,
		"commit", commit,
		"build_date", buildDate,
		"config", configFile,
		"mode", cfg.Session.Mode,
	)
	slog.Debug("configuration loaded", "config", cfg.Redact())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(ctx, cfg, version)
	if err != nil {
		slog.Error("failed to create daemon", "error", err)
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Run(ctx)
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Fprintf(out, "sfa-attack-simulation version %s\n", version)
	fmt.Fprintf(out, "  Commit:     %s\n", commit)
	fmt.Fprintf(out, "  Build date: %s\n", buildDate)
	fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	source := configFile
	if source == "" {
		source = "(built-in defaults)"
	}
	fmt.Fprintf(out, "Checking configuration: %s\n\n", source)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", err)
		overrideExitCode = ExitConfig
		return nil
	}

	cookie := cfg.Session.Cookie

	fmt.Fprintln(out, "Configuration is valid")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration summary:")
	fmt.Fprintf(out, "  Mode:            %s\n", cfg.Session.Mode)
	fmt.Fprintf(out, "  HTTP Listen:     %s\n", cfg.Listen.HTTP)
	if cfg.Listen.Socket != "" {
		fmt.Fprintf(out, "  Control Socket:  %s\n", cfg.Listen.Socket)
	} else {
		fmt.Fprintln(out, "  Control Socket:  disabled")
	}
	fmt.Fprintf(out, "  Session Store:   %s\n", cfg.Session.Store)
	fmt.Fprintf(out, "  Session Timeout: %d seconds\n", cfg.Session.Timeout)
	fmt.Fprintf(out, "  Cookie:          name=%s http_only=%v secure=%v same_site=%q\n",
		cookie.Name, cookie.HTTPOnly, cookie.Secure, cookie.SameSite)
	fmt.Fprintf(out, "  Hash Algorithm:  %s\n", cfg.Auth.HashAlgorithm)
	fmt.Fprintf(out, "  Users:           %s\n", strings.Join(usernames(cfg.Auth.Users), ", "))
	fmt.Fprintf(out, "  TLS Enabled:     %v\n", cfg.TLS.Enabled)
	fmt.Fprintf(out, "  Log Level:       %s\n", cfg.Log.Level)
	fmt.Fprintf(out, "  Log Format:      %s\n", cfg.Log.Format)

	if cfg.OIDC.Enabled {
		fmt.Fprintf(out, "  OIDC Issuer:     %s\n", cfg.OIDC.Issuer)
		fmt.Fprintf(out, "  OIDC Client ID:  %s\n", cfg.OIDC.ClientID)
		fmt.Fprintf(out, "  OIDC Admin Role: %s (from %s)\n", cfg.OIDC.AdminRole, cfg.OIDC.RoleClaim)
	} else {
		fmt.Fprintln(out, "  OIDC:            disabled")
	}

	if cookie.HashKey == config.DefaultConfig().Session.Cookie.HashKey {
		fmt.Fprintln(out, "\n  Warning: session.cookie.hash_key is the built-in default")
	}
	if !cfg.Session.Hardened() {
		fmt.Fprintln(out, "\n  Warning: vulnerable mode, session ids are not rotated on login")
	}

	return nil
}

func usernames(list []config.UserConfig) []string {
	names := make([]string, 0, len(list))
	for _, u := range list {
		names = append(names, u.Username+" ("+u.Role+")")
	}
	return names
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	algorithm := hashAlgorithm
	if algorithm == "" {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		algorithm = cfg.Auth.HashAlgorithm
	}

	hasher, err := users.NewHasher(algorithm)
	if err != nil {
		return err
	}

	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, hash)
	return nil
}

// errControlSocketDisabled is returned by the session commands when
// listen.socket is empty.
var errControlSocketDisabled = errors.New("control socket disabled (listen.socket is empty)")

func controlClient() (*ipc.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Listen.Socket == "" {
		return nil, errControlSocketDisabled
	}
	return ipc.NewClient(cfg.Listen.Socket), nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	client, err := controlClient()
	if err != nil {
		return err
	}

	sessions, err := client.ListSessions(context.Background())
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, "No live sessions")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION ID\tUSER\tROLE\tCREATED\tEXPIRES")
	for _, s := range sessions {
		user, role := s.User, s.Role
		if !s.Authenticated() {
			user, role = "-", "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, user, role,
			s.CreatedAt.Local().Format(time.DateTime),
			s.ExpiresAt.Local().Format(time.DateTime),
		)
	}
	return tw.Flush()
}

func runRevoke(cmd *cobra.Command, args []string) error {
	client, err := controlClient()
	if err != nil {
		return err
	}

	if err := client.RevokeSession(context.Background(), args[0]); err != nil {
		return err
	}

	fmt.Fprintf(out, "Session %s revoked\n", args[0])
	return nil
}
