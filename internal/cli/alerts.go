package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/calnotify/internal/app"
	"github.com/roach88/calnotify/internal/events"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active storage backends",
		Long: `Show which database backs each dataset, how it was chosen at startup
(fresh, migrated, fallback, ...) and how many records it holds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				v := statusView{
					Dir:       a.Config.Storage.Dir,
					StateFile: a.Config.Storage.StateFile,
					Events: storeStatusView{
						Backend:  string(a.Events.Backend()),
						Database: a.Events.DatabaseName(),
						Outcome:  string(a.Events.Outcome()),
					},
					Dismissed: storeStatusView{
						Backend:  string(a.Archive.Backend()),
						Database: a.Archive.DatabaseName(),
						Outcome:  string(a.Archive.Outcome()),
					},
					Calendars: len(a.Calendar.Calendars()),
				}
				if err := a.Events.MigrationErr(); err != nil {
					v.Events.MigrationError = err.Error()
				}
				if err := a.Archive.MigrationErr(); err != nil {
					v.Dismissed.MigrationError = err.Error()
				}
				var err error
				if v.Events.Records, err = a.Events.Count(ctx); err != nil {
					return WrapExitError(ExitFailure, ErrCodeGeneric, "failed to count alerts", err)
				}
				if v.Dismissed.Records, err = a.Archive.Count(ctx); err != nil {
					return WrapExitError(ExitFailure, ErrCodeGeneric, "failed to count dismissed alerts", err)
				}
				if v.Handled, err = a.Calendar.HandledCalendars(ctx); err != nil {
					return WrapExitError(ExitFailure, ErrCodeGeneric, "failed to read calendars", err)
				}
				return out.Success(v)
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				recs, err := a.Events.All(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, ErrCodeGeneric, "failed to list alerts", err)
				}
				return out.Success(newAlertList(recs))
			})
		},
	}
}

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	AlertTime     int64
	InstanceStart int64
	Alarm         bool
	Task          bool
	Muted         bool
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register <event-id>",
		Short: "Register a fired alert for a calendar event",
		Long: `Register a fired alert for an event of the calendar fixture.

A non-repeating event keeps one alert: registering it again replaces the
previous one. Instances of a repeating event are kept side by side.

Example:
  calnotify register 42
  calnotify register 42 --alarm --alert-time 1700000000000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseEventIDs(args)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				return registerAlert(ctx, opts, a, out, ids[0])
			})
		},
	}

	cmd.Flags().Int64Var(&opts.AlertTime, "alert-time", 0, "alert time in epoch milliseconds (default now)")
	cmd.Flags().Int64Var(&opts.InstanceStart, "instance-start", 0, "instance start in epoch milliseconds (default event start)")
	cmd.Flags().BoolVar(&opts.Alarm, "alarm", false, "mark the alert as an alarm")
	cmd.Flags().BoolVar(&opts.Task, "task", false, "mark the alert as a task")
	cmd.Flags().BoolVar(&opts.Muted, "muted", false, "register the alert muted")

	return cmd
}

func registerAlert(ctx context.Context, opts *RegisterOptions, a *app.App, out *OutputFormatter, eventID int64) error {
	ev, ok, err := a.Calendar.Event(ctx, eventID)
	if err != nil {
		return WrapExitError(ExitFailure, ErrCodeGeneric, "failed to read calendar", err)
	}
	if !ok {
		return NewExitError(ExitFailure, ErrCodeNotFound, fmt.Sprintf("event %d not found in calendar", eventID))
	}

	alertTime := opts.AlertTime
	if alertTime == 0 {
		alertTime = a.Clock.NowMillis()
	}
	rec := ev.Record(alertTime)
	if opts.InstanceStart != 0 {
		rec.InstanceEndTime = opts.InstanceStart + (rec.InstanceEndTime - rec.InstanceStartTime)
		rec.InstanceStartTime = opts.InstanceStart
	}
	rec.Flags.Alarm = opts.Alarm
	rec.Flags.Task = opts.Task
	rec.Flags.Muted = opts.Muted

	out.VerboseLog("Registering %s on calendar %d", rec.Key(), rec.CalendarID)
	registered, err := a.Orchestrator.Register(ctx, rec)
	if err != nil {
		return WrapExitError(ExitFailure, ErrCodeNotApplied, "failed to register alert", err)
	}
	if !registered {
		return NewExitError(ExitFailure, ErrCodeNotApplied, fmt.Sprintf("calendar %d is not handled", rec.CalendarID))
	}
	return showAlert(ctx, a.Events, out, rec.Key().EventID, rec.Key().InstanceStartTime)
}

func showAlert(ctx context.Context, store events.Store, out *OutputFormatter, eventID, instance int64) error {
	rec, err := findAlert(ctx, store, eventID, instance)
	if err != nil {
		return err
	}
	return out.Success(newAlertView(rec))
}
