package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/calnotify/internal/app"
	"github.com/roach88/calnotify/internal/lifecycle"
)

const defaultSnooze = 15 * time.Minute

// SnoozeOptions holds flags for the snooze command.
type SnoozeOptions struct {
	*RootOptions
	Instance int64
	For      time.Duration
}

// NewSnoozeCommand creates the snooze command.
func NewSnoozeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnoozeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snooze <event-id>",
		Short: "Snooze an alert",
		Long: `Hide an alert until a later time. A positive --for counts from now; a
negative one counts back from the event start ("remind me 10 minutes
before"). A return time that is already due becomes a one minute snooze.

Example:
  calnotify snooze 42 --for 1h
  calnotify snooze 42 --for -10m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseEventIDs(args)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				rec, err := findAlert(ctx, a.Events, ids[0], opts.Instance)
				if err != nil {
					return err
				}
				res, err := a.Orchestrator.Snooze(ctx, rec.Key(), opts.For.Milliseconds())
				if err != nil {
					return WrapExitError(ExitFailure, ErrCodeNotApplied, "failed to snooze alert", err)
				}
				if res == nil {
					return NewExitError(ExitFailure, ErrCodeNotFound, fmt.Sprintf("alert %s no longer exists", rec.Key()))
				}
				return out.Success(newSnoozeView(res))
			})
		},
	}

	cmd.Flags().Int64Var(&opts.Instance, "instance", 0, "instance start of the alert (default earliest instance)")
	cmd.Flags().DurationVar(&opts.For, "for", defaultSnooze, "snooze delay; negative counts back from the event start")

	return cmd
}

// SnoozeAllOptions holds flags for the snooze-all command.
type SnoozeAllOptions struct {
	*RootOptions
	For         time.Duration
	Change      bool
	OnlyVisible bool
	Search      string
	Collapsed   bool
}

// NewSnoozeAllCommand creates the snooze-all command.
func NewSnoozeAllCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnoozeAllOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snooze-all",
		Short: "Snooze every alert",
		Long: `Snooze every alert at once. Alerts already snoozed further out are left
alone unless --change is given.

Example:
  calnotify snooze-all --for 2h
  calnotify snooze-all --search standup --for 30m
  calnotify snooze-all --collapsed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Collapsed && opts.Search != "" {
				return NewExitError(ExitCommandError, ErrCodeBadArgument, "--collapsed and --search cannot be combined")
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				delay := opts.For.Milliseconds()
				var res *lifecycle.SnoozeResult
				var err error
				if opts.Collapsed {
					res, err = a.Orchestrator.SnoozeAllCollapsed(ctx, delay, opts.Change, opts.OnlyVisible)
				} else {
					res, err = a.Orchestrator.SnoozeAll(ctx, lifecycle.SnoozeAllOptions{
						Delay:             delay,
						IsChange:          opts.Change,
						OnlySnoozeVisible: opts.OnlyVisible,
						Search:            opts.Search,
					})
				}
				if err != nil {
					return WrapExitError(ExitFailure, ErrCodeNotApplied, "failed to snooze alerts", err)
				}
				if res == nil {
					return NewExitError(ExitFailure, ErrCodeNotApplied, "no alerts were snoozed")
				}
				return out.Success(newSnoozeView(res))
			})
		},
	}

	cmd.Flags().DurationVar(&opts.For, "for", defaultSnooze, "snooze delay")
	cmd.Flags().BoolVar(&opts.Change, "change", false, "also move alerts already snoozed further out")
	cmd.Flags().BoolVar(&opts.OnlyVisible, "only-visible", false, "leave already snoozed alerts alone")
	cmd.Flags().StringVar(&opts.Search, "search", "", "only snooze alerts whose title or description contains this text")
	cmd.Flags().BoolVar(&opts.Collapsed, "collapsed", false, "only snooze alerts shown in the collapsed summary")

	return cmd
}

// NewMuteCommand creates the mute command.
func NewMuteCommand(rootOpts *RootOptions) *cobra.Command {
	var instance int64
	var off bool

	cmd := &cobra.Command{
		Use:   "mute <event-id>",
		Short: "Mute or unmute an alert",
		Long: `Mute an alert so its notification stays silent.

Example:
  calnotify mute 42
  calnotify mute 42 --off`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseEventIDs(args)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				rec, err := findAlert(ctx, a.Events, ids[0], instance)
				if err != nil {
					return err
				}
				ok, err := a.Orchestrator.Mute(ctx, rec.Key(), !off)
				if err != nil {
					return WrapExitError(ExitFailure, ErrCodeNotApplied, "failed to mute alert", err)
				}
				if !ok {
					return NewExitError(ExitFailure, ErrCodeNotApplied, fmt.Sprintf("alert %s was not changed", rec.Key()))
				}
				return showAlert(ctx, a.Events, out, rec.EventID, rec.InstanceStartTime)
			})
		},
	}

	cmd.Flags().Int64Var(&instance, "instance", 0, "instance start of the alert (default earliest instance)")
	cmd.Flags().BoolVar(&off, "off", false, "unmute instead")

	return cmd
}

// NewMuteAllCommand creates the mute-all command.
func NewMuteAllCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mute-all",
		Short: "Mute every visible alert",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				n, err := a.Orchestrator.MuteAllVisible(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, ErrCodeNotApplied, "failed to mute alerts", err)
				}
				return out.Success(countView{Action: "muted", Count: n})
			})
		},
	}
}

// MoveOptions holds flags for the move command.
type MoveOptions struct {
	*RootOptions
	Instance int64
	By       time.Duration
	CopyTo   int64
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "move <event-id>",
		Short: "Move the calendar event and dismiss its alert",
		Long: `Shift the calendar event later by --by. Once the calendar confirms, the
alert is dismissed as moved. With --copy-to a shifted copy is created in
that calendar and the original event is left in place.

Example:
  calnotify move 42 --by 24h
  calnotify move 42 --by 1h --copy-to 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.By <= 0 {
				return NewExitError(ExitCommandError, ErrCodeBadArgument, "--by must be positive")
			}
			ids, err := parseEventIDs(args)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				rec, err := findAlert(ctx, a.Events, ids[0], opts.Instance)
				if err != nil {
					return err
				}
				v := moveView{EventID: rec.EventID, NewEventID: rec.EventID}
				var ok bool
				if opts.CopyTo != 0 {
					v.NewEventID, ok, err = a.Orchestrator.MoveAsCopy(ctx, opts.CopyTo, rec, opts.By.Milliseconds())
				} else {
					ok, err = a.Orchestrator.Move(ctx, rec, opts.By.Milliseconds())
				}
				if err != nil {
					return WrapExitError(ExitFailure, ErrCodeNotApplied, "failed to move event", err)
				}
				if !ok {
					return NewExitError(ExitFailure, ErrCodeNotApplied, fmt.Sprintf("calendar did not move event %d", rec.EventID))
				}
				return out.Success(v)
			})
		},
	}

	cmd.Flags().Int64Var(&opts.Instance, "instance", 0, "instance start of the alert (default earliest instance)")
	cmd.Flags().DurationVar(&opts.By, "by", 0, "how far to move the event")
	cmd.Flags().Int64Var(&opts.CopyTo, "copy-to", 0, "create a moved copy in this calendar instead")

	return cmd
}
