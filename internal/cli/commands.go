package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"covid-dashboard/platform/internal/sessionmanager"
)

// maxCodeAttempts is how many one-time codes login accepts before giving up.
const maxCodeAttempts = 3

func newSignupCmd(env *Env) *cobra.Command {
	var email, phone string
	cmd := &cobra.Command{
		Use:   "signup <username>",
		Short: "Create a dashboard account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			password, err := env.secret("Password: ")
			if err != nil {
				return err
			}
			if err := env.Client.Signup(cmd.Context(), args[0], password, email, phone); err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "Account %s created. Run: dashctl login %s\n", args[0], args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address that receives one-time codes")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number for SMS codes (optional)")
	return cmd
}

func newLoginCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "login [username]",
		Short: "Log in with password and one-time code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := env.NewManager()
			if err != nil {
				return err
			}
			defer m.Close()
			ctx := cmd.Context()
			if err := m.Resume(ctx); err != nil {
				return err
			}
			if user, ok := m.CurrentUser(); ok {
				fmt.Fprintf(env.Out, "Already logged in as %s.\n", user)
				return nil
			}

			var username string
			if len(args) == 1 {
				username = args[0]
			} else if username, err = env.readLine("Username: "); err != nil {
				return err
			}
			password, err := env.secret("Password: ")
			if err != nil {
				return err
			}
			if err := m.Login(ctx, username, password); err != nil {
				return err
			}
			pending, _ := m.PendingUser()
			fmt.Fprintf(env.Out, "A one-time code was sent to %s.\n", pending)
			return verifyLoop(ctx, env, m, pending)
		},
	}
}

func verifyLoop(ctx context.Context, env *Env, m *sessionmanager.Manager, username string) error {
	for attempt := 1; ; attempt++ {
		code, err := env.readLine("Code: ")
		if err != nil {
			m.CancelChallenge()
			return err
		}
		err = m.VerifyCode(ctx, username, code)
		if err == nil {
			fmt.Fprintf(env.Out, "Logged in as %s.\n", username)
			return nil
		}
		if !errors.Is(err, sessionmanager.ErrChallengeRejected) || attempt >= maxCodeAttempts {
			m.CancelChallenge()
			return err
		}
		fmt.Fprintf(env.Out, "%v\n", err)
	}
}

func newStatusCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the stored session is still valid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := env.NewManager()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Resume(cmd.Context()); err != nil {
				return err
			}
			if user, ok := m.CurrentUser(); ok {
				fmt.Fprintf(env.Out, "Logged in as %s.\n", user)
				return nil
			}
			fmt.Fprintln(env.Out, "Not logged in.")
			return nil
		},
	}
}

func newWatchCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the session under watch until it ends or Ctrl-C",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := env.NewManager()
			if err != nil {
				return err
			}
			defer m.Close()

			ended := make(chan sessionmanager.Event, 1)
			unsubscribe := m.Subscribe(func(ev sessionmanager.Event) {
				if ev.State == sessionmanager.StateLoggedOut {
					select {
					case ended <- ev:
					default:
					}
				}
			})
			defer unsubscribe()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := m.Resume(ctx); err != nil {
				return err
			}
			user, ok := m.CurrentUser()
			if !ok {
				return errors.New("not logged in; run: dashctl login")
			}
			fmt.Fprintf(env.Out, "Watching session for %s. Press Ctrl-C to stop.\n", user)
			select {
			case ev := <-ended:
				fmt.Fprintln(env.Out, ev.Reason)
			case <-ctx.Done():
			}
			return nil
		},
	}
}

func newLogoutCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session here and on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := env.NewManager()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Resume(cmd.Context()); err != nil {
				return err
			}
			if _, ok := m.CurrentUser(); !ok {
				fmt.Fprintln(env.Out, "Not logged in.")
				return nil
			}
			if err := m.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(env.Out, "Logged out.")
			return nil
		},
	}
}
