package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/app"
	"github.com/roach88/calnotify/internal/lifecycle"
)

// DismissOptions holds flags for the dismiss command.
type DismissOptions struct {
	*RootOptions
	Instance    int64
	Type        string
	DeleteEvent bool
	All         bool
}

// NewDismissCommand creates the dismiss command.
func NewDismissCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DismissOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dismiss [event-id...]",
		Short: "Dismiss alerts into the archive",
		Long: `Dismiss alerts. Each dismissed alert is archived first and then removed
from the live store; a result is reported per event id.

With --all every alert that is not snoozed and did not change in the last
few seconds is dismissed. With --delete-event the calendar event is
deleted as well.

Example:
  calnotify dismiss 42 43
  calnotify dismiss 42 --instance 1700000000000 --type activity
  calnotify dismiss --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dismissType, err := parseDismissType(opts.Type)
			if err != nil {
				return err
			}
			if opts.All && len(args) > 0 {
				return NewExitError(ExitCommandError, ErrCodeBadArgument, "--all takes no event ids")
			}
			if !opts.All && len(args) == 0 {
				return NewExitError(ExitCommandError, ErrCodeBadArgument, "at least one event id is required")
			}
			if (opts.Instance != 0 || opts.DeleteEvent) && len(args) != 1 {
				return NewExitError(ExitCommandError, ErrCodeBadArgument, "--instance and --delete-event take exactly one event id")
			}
			ids, err := parseEventIDs(args)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				return runDismiss(ctx, opts, a, out, ids, dismissType)
			})
		},
	}

	cmd.Flags().Int64Var(&opts.Instance, "instance", 0, "instance start of the alert (default earliest instance)")
	cmd.Flags().StringVar(&opts.Type, "type", "notification", "dismiss type (notification|activity|calendar-move|moved|reschedule)")
	cmd.Flags().BoolVar(&opts.DeleteEvent, "delete-event", false, "delete the calendar event as well")
	cmd.Flags().BoolVar(&opts.All, "all", false, "dismiss all alerts except snoozed and recently changed ones")

	return cmd
}

func runDismiss(ctx context.Context, opts *DismissOptions, a *app.App, out *OutputFormatter, ids []int64, dismissType alert.DismissType) error {
	switch {
	case opts.All:
		n, err := a.Orchestrator.DismissAllButRecentAndSnoozed(ctx, dismissType)
		if err != nil {
			return WrapExitError(ExitFailure, ErrCodeNotApplied, "failed to dismiss alerts", err)
		}
		return out.Success(countView{Action: "dismissed", Count: n})

	case opts.Instance != 0 || opts.DeleteEvent:
		rec, err := findAlert(ctx, a.Events, ids[0], opts.Instance)
		if err != nil {
			return err
		}
		var ok bool
		if opts.DeleteEvent {
			ok, err = a.Orchestrator.DismissAndDeleteEvent(ctx, rec, dismissType)
		} else {
			ok, err = a.Orchestrator.Dismiss(ctx, rec, dismissType)
		}
		if err != nil {
			return WrapExitError(ExitFailure, ErrCodeNotApplied, "failed to dismiss alert", err)
		}
		if !ok {
			return NewExitError(ExitFailure, ErrCodeNotApplied, fmt.Sprintf("alert %s was not dismissed", rec.Key()))
		}
		return out.Success(dismissReportList{{
			EventID:       rec.EventID,
			InstanceStart: rec.InstanceStartTime,
			Result:        alert.DismissSuccess.String(),
		}})
	}

	reports := a.Orchestrator.SafeDismissByID(ctx, ids, dismissType)
	list := make(dismissReportList, len(reports))
	for i, r := range reports {
		list[i] = dismissReportView{EventID: r.EventID, Result: r.Result.String()}
	}
	if err := out.Success(list); err != nil {
		return err
	}
	if n := list.failed(); n > 0 {
		return NewExitError(ExitFailure, ErrCodeNotApplied, fmt.Sprintf("%d of %d alerts not dismissed", n, len(list)))
	}
	return nil
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	var instance int64

	cmd := &cobra.Command{
		Use:   "restore <event-id>",
		Short: "Restore a dismissed alert",
		Long: `Bring an archived alert back to the live store. The alert is re-homed to
the local calendar matching its original one and starts hidden.

Alerts dismissed because their event moved cannot be restored.

Example:
  calnotify restore 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseEventIDs(args)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				entry, err := findDismissed(ctx, a, ids[0], instance)
				if err != nil {
					return err
				}
				rec, err := a.Orchestrator.Restore(ctx, entry)
				if errors.Is(err, lifecycle.ErrNotRestorable) {
					return WrapExitError(ExitFailure, ErrCodeNotApplied, "alert cannot be restored", err)
				}
				if err != nil {
					return WrapExitError(ExitFailure, ErrCodeNotApplied, "failed to restore alert", err)
				}
				return out.Success(newAlertView(rec))
			})
		},
	}

	cmd.Flags().Int64Var(&instance, "instance", 0, "instance start of the archived alert (default most recently dismissed)")

	return cmd
}

func findDismissed(ctx context.Context, a *app.App, eventID, instance int64) (alert.DismissedRecord, error) {
	if instance != 0 {
		entry, ok, err := a.Archive.Get(ctx, alert.Key{EventID: eventID, InstanceStartTime: instance})
		if err != nil {
			return alert.DismissedRecord{}, WrapExitError(ExitFailure, ErrCodeGeneric, "failed to read archive", err)
		}
		if !ok {
			return alert.DismissedRecord{}, NewExitError(ExitFailure, ErrCodeNotFound,
				fmt.Sprintf("no dismissed alert for event %d at instance %d", eventID, instance))
		}
		return entry, nil
	}
	entries, err := a.Archive.ForDisplay(ctx)
	if err != nil {
		return alert.DismissedRecord{}, WrapExitError(ExitFailure, ErrCodeGeneric, "failed to read archive", err)
	}
	for _, e := range entries {
		if e.Event.EventID == eventID {
			return e, nil
		}
	}
	return alert.DismissedRecord{}, NewExitError(ExitFailure, ErrCodeNotFound, fmt.Sprintf("no dismissed alert for event %d", eventID))
}

// NewDismissedCommand creates the dismissed command.
func NewDismissedCommand(rootOpts *RootOptions) *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "dismissed",
		Short: "List or clear the dismissed archive",
		Long: `List archived alerts, most recently dismissed first.

Example:
  calnotify dismissed
  calnotify dismissed --clear`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				if clearAll {
					n, err := a.Archive.Count(ctx)
					if err != nil {
						return WrapExitError(ExitFailure, ErrCodeGeneric, "failed to read archive", err)
					}
					if err := a.Archive.ClearHistory(ctx); err != nil {
						return WrapExitError(ExitFailure, ErrCodeGeneric, "failed to clear archive", err)
					}
					return out.Success(countView{Action: "cleared", Count: n})
				}
				entries, err := a.Archive.ForDisplay(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, ErrCodeGeneric, "failed to read archive", err)
				}
				return out.Success(newDismissedList(entries))
			})
		},
	}

	cmd.Flags().BoolVar(&clearAll, "clear", false, "remove every archived alert")

	return cmd
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove old entries from the dismissed archive",
		Long: `Remove archived alerts dismissed longer ago than the maximum age
(archive.maxAge in the config unless --max-age is given).

Example:
  calnotify purge --max-age 168h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxAge < 0 {
				return NewExitError(ExitCommandError, ErrCodeBadArgument, "--max-age must not be negative")
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				p := a.Pruner()
				if maxAge > 0 {
					p.MaxAge = maxAge
				}
				n, err := p.Purge(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, ErrCodeGeneric, "failed to purge archive", err)
				}
				return out.Success(countView{Action: "purged", Count: n})
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "maximum age of kept entries (default from config)")

	return cmd
}
