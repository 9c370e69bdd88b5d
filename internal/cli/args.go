package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/events"
)

// parseEventIDs parses positional event ids.
func parseEventIDs(args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, ErrCodeBadArgument, fmt.Sprintf("invalid event id %q", a), err)
		}
		ids[i] = id
	}
	return ids, nil
}

// findAlert returns the stored alert for eventID. A zero instance selects
// the earliest stored instance.
func findAlert(ctx context.Context, store events.Store, eventID, instance int64) (alert.Record, error) {
	if instance != 0 {
		rec, ok, err := store.Get(ctx, alert.Key{EventID: eventID, InstanceStartTime: instance})
		if err != nil {
			return alert.Record{}, err
		}
		if !ok {
			return alert.Record{}, NewExitError(ExitFailure, ErrCodeNotFound,
				fmt.Sprintf("no alert for event %d at instance %d", eventID, instance))
		}
		return rec, nil
	}
	recs, err := store.Instances(ctx, eventID)
	if err != nil {
		return alert.Record{}, err
	}
	if len(recs) == 0 {
		return alert.Record{}, NewExitError(ExitFailure, ErrCodeNotFound, fmt.Sprintf("no alert for event %d", eventID))
	}
	return recs[0], nil
}

var dismissTypeNames = map[string]alert.DismissType{
	"notification":  alert.ManuallyDismissedFromNotification,
	"activity":      alert.ManuallyDismissedFromActivity,
	"calendar-move": alert.AutoDismissedDueToCalendarMove,
	"moved":         alert.EventMovedUsingApp,
	"reschedule":    alert.AutoDismissedDueToRescheduleConfirmation,
}

func parseDismissType(s string) (alert.DismissType, error) {
	t, ok := dismissTypeNames[strings.ToLower(s)]
	if !ok {
		return 0, NewExitError(ExitCommandError, ErrCodeBadArgument,
			fmt.Sprintf("unknown dismiss type %q: must be one of notification, activity, calendar-move, moved, reschedule", s))
	}
	return t, nil
}
