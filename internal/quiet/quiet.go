// Package quiet answers whether a moment falls inside quiet hours.
package quiet

import (
	"fmt"
	"time"
)

// Hours is the quiet-hours collaborator.
type Hours interface {
	// SilentUntil returns the end of the quiet period containing t, or 0
	// when t is outside quiet hours. Times are epoch milliseconds.
	SilentUntil(t int64) int64
}

// None never silences anything.
type None struct{}

// SilentUntil implements Hours.
func (None) SilentUntil(int64) int64 { return 0 }

// Daily is a quiet window repeating every day, given as minutes after local
// midnight. A window whose end is before its start spans midnight. Equal
// bounds mean no quiet hours.
type Daily struct {
	From     int
	To       int
	Location *time.Location
}

// ParseDaily builds a Daily window from "HH:MM" bounds.
func ParseDaily(from, to string, loc *time.Location) (Daily, error) {
	f, err := parseClock(from)
	if err != nil {
		return Daily{}, err
	}
	t, err := parseClock(to)
	if err != nil {
		return Daily{}, err
	}
	return Daily{From: f, To: t, Location: loc}, nil
}

func parseClock(s string) (int, error) {
	ts, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("quiet hours: invalid time %q: %w", s, err)
	}
	return ts.Hour()*60 + ts.Minute(), nil
}

// Active reports whether t is inside the window.
func (d Daily) Active(t int64) bool {
	return d.SilentUntil(t) != 0
}

// SilentUntil implements Hours.
func (d Daily) SilentUntil(t int64) int64 {
	if d.From == d.To {
		return 0
	}
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.UnixMilli(t).In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	minute := now.Hour()*60 + now.Minute()

	at := func(day time.Time, minutes int) int64 {
		return day.Add(time.Duration(minutes) * time.Minute).UnixMilli()
	}

	if d.From < d.To {
		if minute >= d.From && minute < d.To {
			return at(midnight, d.To)
		}
		return 0
	}
	switch {
	case minute >= d.From:
		return at(midnight.AddDate(0, 0, 1), d.To)
	case minute < d.To:
		return at(midnight, d.To)
	}
	return 0
}

var (
	_ Hours = None{}
	_ Hours = Daily{}
)
