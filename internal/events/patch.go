package events

import "github.com/roach88/calnotify/internal/alert"

// Patch names the fields an Update changes. Nil fields are left as stored.
type Patch struct {
	CalendarID           *int64
	AlertTime            *int64
	NotificationID       *int32
	Title                *string
	Description          *string
	Location             *string
	StartTime            *int64
	EndTime              *int64
	InstanceEndTime      *int64
	SnoozedUntil         *int64
	LastStatusChangeTime *int64
	DisplayStatus        *alert.DisplayStatus
	Color                *int32
	IsRepeating          *bool
	IsAllDay             *bool
	EventStatus          *alert.EventStatus
	AttendanceStatus     *alert.AttendanceStatus
	Muted                *bool
	Alarm                *bool
	Task                 *bool
}

// Ptr returns a pointer to v, for building patches inline.
func Ptr[T any](v T) *T {
	return &v
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Apply returns rec with the patch applied.
func (p Patch) Apply(rec alert.Record) alert.Record {
	set(&rec.CalendarID, p.CalendarID)
	set(&rec.AlertTime, p.AlertTime)
	set(&rec.NotificationID, p.NotificationID)
	set(&rec.Title, p.Title)
	set(&rec.Description, p.Description)
	set(&rec.Location, p.Location)
	set(&rec.StartTime, p.StartTime)
	set(&rec.EndTime, p.EndTime)
	set(&rec.InstanceEndTime, p.InstanceEndTime)
	set(&rec.SnoozedUntil, p.SnoozedUntil)
	set(&rec.LastStatusChangeTime, p.LastStatusChangeTime)
	set(&rec.DisplayStatus, p.DisplayStatus)
	set(&rec.Color, p.Color)
	set(&rec.IsRepeating, p.IsRepeating)
	set(&rec.IsAllDay, p.IsAllDay)
	set(&rec.EventStatus, p.EventStatus)
	set(&rec.AttendanceStatus, p.AttendanceStatus)
	set(&rec.Flags.Muted, p.Muted)
	set(&rec.Flags.Alarm, p.Alarm)
	set(&rec.Flags.Task, p.Task)
	return rec
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
