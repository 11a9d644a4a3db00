package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scansync/internal/submit"
	"github.com/roach88/scansync/internal/syncer"
)

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Password string
}

// LoginResult is the login command output.
type LoginResult struct {
	Operator string         `json:"operator"`
	Role     string         `json:"role"`
	Drain    *syncer.Report `json:"drain,omitempty"`
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login <surname>",
		Short: "Log in and deliver queued scans",
		Long: `Log in to the tracking API and store the session locally.

After a successful login any queued scans are delivered.

Example:
  scansync login Ivanenko --password secret`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (required)")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runLogin(opts *LoginOptions, surname string, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := commandContext(cmd)
	f := newFormatter(opts.RootOptions, cmd)

	sess, err := rt.client.Login(ctx, surname, opts.Password)
	if err != nil {
		var apiErr *submit.APIError
		if errors.As(err, &apiErr) {
			return f.Fail(ExitFailure, ErrCodeAuth, apiErr.Message, map[string]int{"status": apiErr.StatusCode})
		}
		return f.Fail(ExitFailure, ErrCodeAuth, fmt.Sprintf("login failed: %v", err), nil)
	}

	if err := rt.store.SaveSession(ctx, sess); err != nil {
		return f.Fail(ExitFailure, ErrCodeStorage, fmt.Sprintf("session not saved: %v", err), nil)
	}

	result := LoginResult{Operator: sess.Operator, Role: sess.Role}
	text := fmt.Sprintf("Logged in as %s (%s).", sess.Operator, sess.Role)

	if report, started := rt.coord.DrainIfIdle(ctx, syncer.TriggerLogin); started {
		result.Drain = &report
		if report.Synced > 0 || report.Remaining > 0 {
			text += "\nQueue: " + describeReport(report)
		}
	}

	return f.Success(result, text)
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Long: `Forget the stored session. Queued scans are kept and delivered after
the next login.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			f := newFormatter(rootOpts, cmd)
			if err := rt.store.ClearSession(commandContext(cmd)); err != nil {
				return f.Fail(ExitFailure, ErrCodeStorage, fmt.Sprintf("session not cleared: %v", err), nil)
			}
			return f.Success(map[string]bool{"logged_out": true}, "Logged out.")
		},
	}
}
