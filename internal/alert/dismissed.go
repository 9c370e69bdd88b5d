package alert

import "fmt"

// DismissType says why an alert was dismissed.
type DismissType int

const (
	ManuallyDismissedFromNotification        DismissType = 0
	ManuallyDismissedFromActivity            DismissType = 1
	AutoDismissedDueToCalendarMove           DismissType = 2
	EventMovedUsingApp                       DismissType = 3
	AutoDismissedDueToRescheduleConfirmation DismissType = 4
)

// ParseDismissType converts a stored code.
func ParseDismissType(code int64) (DismissType, error) {
	t := DismissType(code)
	if t >= ManuallyDismissedFromNotification && t <= AutoDismissedDueToRescheduleConfirmation {
		return t, nil
	}
	return 0, fmt.Errorf("invalid dismiss type %d", code)
}

// ShouldKeep reports whether dismissals of this type are archived.
func (t DismissType) ShouldKeep() bool {
	return true
}

// CanBeRestored reports whether an archived dismissal of this type may be
// brought back as a live alert. Dismissals caused by a change on the
// calendar side are not restorable.
func (t DismissType) CanBeRestored() bool {
	switch t {
	case AutoDismissedDueToCalendarMove, EventMovedUsingApp, AutoDismissedDueToRescheduleConfirmation:
		return false
	}
	return true
}

func (t DismissType) String() string {
	switch t {
	case ManuallyDismissedFromNotification:
		return "dismissed_from_notification"
	case ManuallyDismissedFromActivity:
		return "dismissed_from_activity"
	case AutoDismissedDueToCalendarMove:
		return "calendar_move"
	case EventMovedUsingApp:
		return "moved_using_app"
	case AutoDismissedDueToRescheduleConfirmation:
		return "reschedule_confirmation"
	default:
		return fmt.Sprintf("dismiss_type(%d)", int(t))
	}
}

// DismissedRecord is an archived snapshot of a dismissed alert.
type DismissedRecord struct {
	Event       Record
	DismissTime int64
	DismissType DismissType
}

// DismissResult is the per-record outcome of a reported dismissal.
type DismissResult int

const (
	DismissSuccess           DismissResult = 0
	DismissEventNotFound     DismissResult = 1
	DismissDatabaseError     DismissResult = 2
	DismissInvalidEvent      DismissResult = 3
	DismissNotificationError DismissResult = 4
	DismissStorageError      DismissResult = 5
	// DismissDeletionWarning means the record was archived but is still live.
	DismissDeletionWarning DismissResult = 6
)

func (r DismissResult) String() string {
	switch r {
	case DismissSuccess:
		return "success"
	case DismissEventNotFound:
		return "event_not_found"
	case DismissDatabaseError:
		return "database_error"
	case DismissInvalidEvent:
		return "invalid_event"
	case DismissNotificationError:
		return "notification_error"
	case DismissStorageError:
		return "storage_error"
	case DismissDeletionWarning:
		return "deletion_warning"
	default:
		return fmt.Sprintf("dismiss_result(%d)", int(r))
	}
}
