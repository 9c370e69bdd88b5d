package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/calnotify/internal/app"
	"github.com/roach88/calnotify/internal/notify"
)

// NewDecideCommand creates the decide command.
func NewDecideCommand(rootOpts *RootOptions) *cobra.Command {
	var opts notify.Options

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Run one notification pass and show the decisions",
		Long: `Plan the notifications for the live alerts, post them, and print which
channel each one went to and whether it played a sound.

Example:
  calnotify decide
  calnotify decide --reminder --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				plan, err := a.Notifications.Refresh(ctx, opts)
				if err != nil {
					return WrapExitError(ExitFailure, ErrCodeGeneric, "notification pass failed", err)
				}
				return out.Success(newPlanView(plan))
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Reminder, "reminder", false, "treat the pass as a reminder")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "repost notifications that are already shown")

	return cmd
}

// NewDaemonCommand creates the daemon command.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep notifications current until interrupted",
		Long: `Run in the foreground: post notifications, wake up when snoozed alerts
return, run reminder passes and prune the archive on schedule. Serves
Prometheus metrics when metrics.enabled and metrics.listen are set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				out.VerboseLog("Daemon running, press Ctrl-C to stop")
				if err := a.Run(ctx); err != nil {
					return WrapExitError(ExitFailure, ErrCodeGeneric, "daemon failed", err)
				}
				return nil
			})
		},
	}
}
