// Package cli defines the dashctl commands. Each command drives a sessionmanager.Manager
// against the auth backend, exactly as the dashboard UI does.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"covid-dashboard/platform/internal/authclient"
	"covid-dashboard/platform/internal/config"
	"covid-dashboard/platform/internal/sessionmanager"
	"covid-dashboard/platform/internal/sessionstore"
	telemetryotel "covid-dashboard/platform/internal/telemetry/otel"
)

var version = "dev" // set via ldflags at build time

// Env is everything the commands touch outside the process.
type Env struct {
	In  io.Reader
	Out io.Writer
	// Client is used directly by signup; the other commands go through the manager.
	Client *authclient.Client
	// NewManager builds the session manager for one command run.
	NewManager func() (*sessionmanager.Manager, error)
	// ReadSecret prompts and reads a line without echo.
	ReadSecret func(prompt string) (string, error)

	lines *bufio.Reader
}

func (e *Env) readLine(prompt string) (string, error) {
	if e.lines == nil {
		e.lines = bufio.NewReader(e.In)
	}
	fmt.Fprint(e.Out, prompt)
	s, err := e.lines.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func (e *Env) secret(prompt string) (string, error) {
	if e.ReadSecret != nil {
		return e.ReadSecret(prompt)
	}
	return e.readLine(prompt)
}

// NewEnv wires the commands to the configured backend, the on-disk session file and the
// terminal.
func NewEnv(cfg *config.ClientConfig) (*Env, error) {
	path := cfg.SessionStorePath
	if path == "" {
		p, err := sessionstore.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	store, err := sessionstore.NewFileStore(path)
	if err != nil {
		return nil, err
	}
	client := authclient.NewClient(cfg.AuthBaseURL, cfg.Timeout())
	return &Env{
		In:     os.Stdin,
		Out:    os.Stdout,
		Client: client,
		NewManager: func() (*sessionmanager.Manager, error) {
			return sessionmanager.New(client, store,
				sessionmanager.WithPollInterval(cfg.PollInterval()),
				sessionmanager.WithRequestTimeout(cfg.Timeout()),
			), nil
		},
		ReadSecret: promptPassword,
	}, nil
}

// promptPassword reads without echo when stdin is a terminal.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if !term.IsTerminal(int(syscall.Stdin)) {
		s, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && s == "" {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(s), nil
	}
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

// NewRootCommand returns the dashctl command tree bound to env.
func NewRootCommand(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:   "dashctl",
		Short: "Terminal client for the COVID dashboard session",
		Long: `dashctl logs in to the COVID dashboard auth backend with a password and a
one-time code, keeps the session on disk, and watches it until it expires.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetIn(env.In)
	root.SetOut(env.Out)
	root.AddCommand(
		newSignupCmd(env),
		newLoginCmd(env),
		newStatusCmd(env),
		newWatchCmd(env),
		newLogoutCmd(env),
	)
	return root
}

// Execute runs dashctl. Called from main.
func Execute() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	ctx := context.Background()
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "dashctl", false)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	env, err := NewEnv(cfg)
	if err != nil {
		return err
	}
	return NewRootCommand(env).ExecuteContext(ctx)
}
