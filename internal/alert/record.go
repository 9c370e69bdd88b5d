package alert

import (
	"fmt"
	"math"
)

// Timing constants, all in milliseconds.
const (
	// AlarmThreshold is the tolerance applied when comparing a scheduled time
	// against "now". Anything due within the threshold counts as due.
	AlarmThreshold int64 = 24 * 1000

	// FallbackShortSnooze replaces a snooze that would land in the past.
	FallbackShortSnooze int64 = 60 * 1000

	// DismissAllThreshold protects alerts that changed status very recently
	// from bulk dismissal.
	DismissAllThreshold int64 = 3 * 1000
)

// NotificationIDFloor is the reserved floor for notification ids handed out
// by storage. Ids at or below the floor belong to fixed system notifications.
const NotificationIDFloor int32 = 10000

// SpecialStatusChangeTime marks records that are excluded from bulk actions.
const SpecialStatusChangeTime int64 = math.MaxInt64

// Key is the unique identity of a Record.
type Key struct {
	EventID           int64
	InstanceStartTime int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.EventID, k.InstanceStartTime)
}

// Record is one fired alert for one calendar event occurrence.
type Record struct {
	CalendarID        int64
	EventID           int64
	InstanceStartTime int64
	InstanceEndTime   int64
	AlertTime         int64

	// NotificationID is assigned by storage when zero.
	NotificationID int32

	Title       string
	Description string
	Location    string

	// StartTime and EndTime are the nominal event times; for recurring
	// events they differ from the instance times.
	StartTime int64
	EndTime   int64

	// SnoozedUntil is 0 when the record is not snoozed.
	SnoozedUntil         int64
	LastStatusChangeTime int64
	DisplayStatus        DisplayStatus

	Color       int32
	IsRepeating bool
	IsAllDay    bool

	Origin           Origin
	TimeFirstSeen    int64
	EventStatus      EventStatus
	AttendanceStatus AttendanceStatus

	Flags Flags
}

// Key returns the record identity.
func (r Record) Key() Key {
	return Key{EventID: r.EventID, InstanceStartTime: r.InstanceStartTime}
}

// DisplayedStartTime is the instance start, or the nominal start when the
// instance start is unknown.
func (r Record) DisplayedStartTime() int64 {
	if r.InstanceStartTime != 0 {
		return r.InstanceStartTime
	}
	return r.StartTime
}

// DisplayedEndTime is the instance end, or the nominal end when the
// instance end is unknown.
func (r Record) DisplayedEndTime() int64 {
	if r.InstanceEndTime != 0 {
		return r.InstanceEndTime
	}
	return r.EndTime
}

// IsSnoozed reports whether a snooze return is pending.
func (r Record) IsSnoozed() bool {
	return r.SnoozedUntil != 0
}

// IsMuted reports whether the muted flag is set.
func (r Record) IsMuted() bool {
	return r.Flags.Muted
}

// IsAlarm reports whether the record is alarm-tagged.
func (r Record) IsAlarm() bool {
	return r.Flags.Alarm
}

// IsTask reports whether the record is a task rather than a meeting.
func (r Record) IsTask() bool {
	return r.Flags.Task
}

// IsSpecial reports whether the record is pinned outside bulk actions.
func (r Record) IsSpecial() bool {
	return r.LastStatusChangeTime == SpecialStatusChangeTime
}

// IsNotSpecial is the negation of IsSpecial.
func (r Record) IsNotSpecial() bool {
	return !r.IsSpecial()
}

// IsNew reports whether the record would trigger a fresh notification:
// hidden, not snoozed and not muted.
func (r Record) IsNew() bool {
	return r.DisplayStatus == Hidden && r.SnoozedUntil == 0 && !r.Flags.Muted
}
