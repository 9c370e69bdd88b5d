package notify

import (
	"errors"
	"fmt"

	"github.com/roach88/calnotify/internal/alert"
)

// ErrInvariant is returned when a Context would contradict itself.
var ErrInvariant = errors.New("notification context invariant violated")

// ContextParams are the inputs of NewContext.
type ContextParams struct {
	EventCount            int
	HasAlarms             bool
	AllMuted              bool
	HasNewTriggeringEvent bool
	Mode                  Mode
	PlayReminderSound     bool
	QuietPeriodActive     bool
}

// Context is an immutable aggregate view of the alerts being presented.
type Context struct {
	p ContextParams
}

// NewContext validates p. A muted set cannot contain an audible alarm or a
// new triggering alert.
func NewContext(p ContextParams) (Context, error) {
	if p.AllMuted && p.HasAlarms {
		return Context{}, fmt.Errorf("%w: all muted but has alarms", ErrInvariant)
	}
	if p.AllMuted && p.HasNewTriggeringEvent {
		return Context{}, fmt.Errorf("%w: all muted but has a new triggering event", ErrInvariant)
	}
	return Context{p: p}, nil
}

// FromAlerts aggregates recs into a Context.
func FromAlerts(recs []alert.Record, mode Mode, playReminderSound, quietPeriodActive bool) (Context, error) {
	p := ContextParams{
		EventCount:        len(recs),
		Mode:              mode,
		PlayReminderSound: playReminderSound,
		QuietPeriodActive: quietPeriodActive,
		AllMuted:          len(recs) > 0,
	}
	for _, r := range recs {
		if r.IsAlarm() && !r.IsTask() && !r.IsMuted() {
			p.HasAlarms = true
		}
		if !r.IsMuted() {
			p.AllMuted = false
		}
		if r.IsNew() {
			p.HasNewTriggeringEvent = true
		}
	}
	return NewContext(p)
}

func (c Context) EventCount() int             { return c.p.EventCount }
func (c Context) HasAlarms() bool             { return c.p.HasAlarms }
func (c Context) AllMuted() bool              { return c.p.AllMuted }
func (c Context) HasNewTriggeringEvent() bool { return c.p.HasNewTriggeringEvent }
func (c Context) Mode() Mode                  { return c.p.Mode }
func (c Context) PlayReminderSound() bool     { return c.p.PlayReminderSound }
func (c Context) QuietPeriodActive() bool     { return c.p.QuietPeriodActive }
func (c Context) Params() ContextParams       { return c.p }

// IsReminder reports whether this pass re-notifies about alerts the user
// has already seen.
func (c Context) IsReminder() bool {
	return c.p.PlayReminderSound || !c.p.HasNewTriggeringEvent
}

// CollapsedChannel is the channel for a summary of the whole set.
func (c Context) CollapsedChannel() Channel {
	switch {
	case c.p.AllMuted:
		return Silent
	case c.IsReminder() && c.p.HasAlarms:
		return AlarmReminders
	case c.IsReminder():
		return Reminders
	case c.p.HasAlarms:
		return Alarm
	default:
		return Events
	}
}
