// Package notify decides how alerts are presented: which channel a
// notification goes to and whether it makes a sound.
//
// The decision functions are pure. Manager wires them to storage, the
// notification sink and the alarm scheduler, and recomputes after every
// confirmed lifecycle change.
package notify

import (
	"fmt"
	"strings"
)

// Channel is a notification category. Each maps to a sink channel id with
// its own sound settings.
type Channel int

const (
	// Events is for alerts that just fired from the calendar.
	Events Channel = iota
	Alarm
	Reminders
	AlarmReminders
	Silent
)

// ID returns the sink channel id.
func (c Channel) ID() string {
	switch c {
	case Events:
		return "calendar_events"
	case Alarm:
		return "calendar_alarm"
	case Reminders:
		return "calendar_reminders"
	case AlarmReminders:
		return "calendar_alarm_reminders"
	case Silent:
		return "calendar_silent"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

func (c Channel) String() string {
	return c.ID()
}

// ChannelFor picks the channel of a single notification.
func ChannelFor(isAlarm, isMuted, isReminder bool) Channel {
	switch {
	case isMuted:
		return Silent
	case isReminder && isAlarm:
		return AlarmReminders
	case isReminder:
		return Reminders
	case isAlarm:
		return Alarm
	default:
		return Events
	}
}

// Mode controls how many alerts get their own notification.
type Mode int

const (
	// ModeDefault posts the newest alerts individually up to the visible
	// limit and collapses the rest.
	ModeDefault Mode = iota
	// ModeIndividual posts every alert individually.
	ModeIndividual
	// ModeAllCollapsed posts one summary for every alert.
	ModeAllCollapsed
)

func (m Mode) String() string {
	switch m {
	case ModeIndividual:
		return "individual"
	case ModeAllCollapsed:
		return "collapsed"
	default:
		return "default"
	}
}

// ParseMode reads a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return ModeDefault, nil
	case "individual":
		return ModeIndividual, nil
	case "collapsed", "all_collapsed":
		return ModeAllCollapsed, nil
	}
	return ModeDefault, fmt.Errorf("unknown notification mode %q", s)
}
