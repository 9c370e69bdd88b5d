package testutil

import (
	"strconv"

	"github.com/roach88/calnotify/internal/alert"
)

// Hour in milliseconds.
const Hour int64 = 60 * 60 * 1000

// NewRecord builds a non-repeating, hidden alert for calendar 1 with start
// one hour after alertTime.
func NewRecord(eventID, alertTime int64) alert.Record {
	start := alertTime + Hour
	return alert.Record{
		CalendarID:        1,
		EventID:           eventID,
		AlertTime:         alertTime,
		Title:             "Event " + strconv.FormatInt(eventID, 10),
		Description:       "description",
		Location:          "room 1",
		StartTime:         start,
		EndTime:           start + Hour,
		InstanceStartTime: start,
		InstanceEndTime:   start + Hour,
		Color:             0x3366cc,
		Origin:            alert.ProviderBroadcast,
		TimeFirstSeen:     alertTime,
		EventStatus:       alert.Confirmed,
		AttendanceStatus:  alert.AttendanceAccepted,
	}
}

// NewRepeatingInstance builds one occurrence of a repeating event.
func NewRepeatingInstance(eventID, instanceStart int64) alert.Record {
	r := NewRecord(eventID, instanceStart-Hour)
	r.IsRepeating = true
	return r
}
