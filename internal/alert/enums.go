package alert

import "fmt"

// DisplayStatus is the visibility of an alert's notification.
type DisplayStatus int

const (
	Hidden             DisplayStatus = 0
	DisplayedNormal    DisplayStatus = 1
	DisplayedCollapsed DisplayStatus = 2
)

func (s DisplayStatus) String() string {
	switch s {
	case Hidden:
		return "hidden"
	case DisplayedNormal:
		return "displayed"
	case DisplayedCollapsed:
		return "collapsed"
	default:
		return fmt.Sprintf("display_status(%d)", int(s))
	}
}

// ParseDisplayStatus converts a stored code.
func ParseDisplayStatus(code int64) (DisplayStatus, error) {
	s := DisplayStatus(code)
	switch s {
	case Hidden, DisplayedNormal, DisplayedCollapsed:
		return s, nil
	}
	return 0, fmt.Errorf("invalid display status %d", code)
}

// Origin records how the alert reached the application.
type Origin int

const (
	ProviderBroadcast                Origin = 0
	ProviderManual                   Origin = 1
	ProviderBroadcastFollowingManual Origin = 2
	FullManual                       Origin = 3
)

func (o Origin) String() string {
	switch o {
	case ProviderBroadcast:
		return "provider_broadcast"
	case ProviderManual:
		return "provider_manual"
	case ProviderBroadcastFollowingManual:
		return "provider_broadcast_following_manual"
	case FullManual:
		return "full_manual"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

// ParseOrigin converts a stored code.
func ParseOrigin(code int64) (Origin, error) {
	o := Origin(code)
	switch o {
	case ProviderBroadcast, ProviderManual, ProviderBroadcastFollowingManual, FullManual:
		return o, nil
	}
	return 0, fmt.Errorf("invalid origin %d", code)
}

// EventStatus mirrors the calendar provider's event status codes.
type EventStatus int

const (
	Tentative EventStatus = 0
	Confirmed EventStatus = 1
	Cancelled EventStatus = 2
)

func (s EventStatus) String() string {
	switch s {
	case Tentative:
		return "tentative"
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("event_status(%d)", int(s))
	}
}

// ParseEventStatus converts a stored code.
func ParseEventStatus(code int64) (EventStatus, error) {
	s := EventStatus(code)
	switch s {
	case Tentative, Confirmed, Cancelled:
		return s, nil
	}
	return 0, fmt.Errorf("invalid event status %d", code)
}

// AttendanceStatus mirrors the calendar provider's attendee status codes.
type AttendanceStatus int

const (
	AttendanceNone      AttendanceStatus = 0
	AttendanceAccepted  AttendanceStatus = 1
	AttendanceDeclined  AttendanceStatus = 2
	AttendanceInvited   AttendanceStatus = 3
	AttendanceTentative AttendanceStatus = 4
)

func (s AttendanceStatus) String() string {
	switch s {
	case AttendanceNone:
		return "none"
	case AttendanceAccepted:
		return "accepted"
	case AttendanceDeclined:
		return "declined"
	case AttendanceInvited:
		return "invited"
	case AttendanceTentative:
		return "tentative"
	default:
		return fmt.Sprintf("attendance(%d)", int(s))
	}
}

// ParseAttendanceStatus converts a stored code.
func ParseAttendanceStatus(code int64) (AttendanceStatus, error) {
	s := AttendanceStatus(code)
	if s >= AttendanceNone && s <= AttendanceTentative {
		return s, nil
	}
	return 0, fmt.Errorf("invalid attendance status %d", code)
}
