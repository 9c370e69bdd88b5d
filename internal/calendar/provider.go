// Package calendar describes the calendar collaborator the lifecycle
// orchestrator talks to, and ships a YAML-backed implementation used by the
// command line tool and by tests.
package calendar

import (
	"context"

	"github.com/roach88/calnotify/internal/alert"
)

// Event is the calendar-side view of an event.
type Event struct {
	EventID     int64  `yaml:"id"`
	CalendarID  int64  `yaml:"calendar"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Location    string `yaml:"location,omitempty"`
	StartTime   int64  `yaml:"start"`
	EndTime     int64  `yaml:"end"`
	IsAllDay    bool   `yaml:"all_day,omitempty"`
	IsRepeating bool   `yaml:"repeating,omitempty"`
	Color       int32  `yaml:"color,omitempty"`
}

// Calendar is one calendar known to the provider.
type Calendar struct {
	ID           int64  `yaml:"id"`
	AccountName  string `yaml:"account_name"`
	AccountType  string `yaml:"account_type"`
	OwnerAccount string `yaml:"owner_account"`
	DisplayName  string `yaml:"display_name"`
	Name         string `yaml:"name"`
	Handled      bool   `yaml:"handled"`
}

// BackupInfo identifies a calendar across devices, where numeric ids differ.
type BackupInfo struct {
	CalendarID   int64
	AccountName  string
	AccountType  string
	OwnerAccount string
	DisplayName  string
	Name         string
}

// BackupInfo returns the portable identity of c.
func (c Calendar) BackupInfo() BackupInfo {
	return BackupInfo{
		CalendarID:   c.ID,
		AccountName:  c.AccountName,
		AccountType:  c.AccountType,
		OwnerAccount: c.OwnerAccount,
		DisplayName:  c.DisplayName,
		Name:         c.Name,
	}
}

// Provider is the calendar collaborator.
type Provider interface {
	Event(ctx context.Context, eventID int64) (Event, bool, error)

	BackupInfo(ctx context.Context, calendarID int64) (BackupInfo, bool, error)

	// FindMatchingCalendar resolves a calendar from another device to a
	// local id.
	FindMatchingCalendar(ctx context.Context, info BackupInfo) (int64, bool, error)

	// DeleteEvent reports whether the event was removed from the calendar.
	DeleteEvent(ctx context.Context, eventID int64) (bool, error)

	// HandledCalendars lists the calendars whose alerts are tracked.
	HandledCalendars(ctx context.Context) ([]int64, error)

	// MoveEvent shifts the event behind rec by addTime milliseconds.
	MoveEvent(ctx context.Context, rec alert.Record, addTime int64) (bool, error)

	// MoveAsCopy creates a shifted copy of rec in calendarID and returns the
	// new event id. ok is false when nothing was created.
	MoveAsCopy(ctx context.Context, calendarID int64, rec alert.Record, addTime int64) (newEventID int64, ok bool, err error)
}

// MatchCalendar picks the local calendar that corresponds to info. An exact
// match needs the same account, owner and name. Failing that, a calendar
// with the same name wins, then one on the same account.
func MatchCalendar(calendars []Calendar, info BackupInfo) (int64, bool) {
	for _, c := range calendars {
		if c.AccountName == info.AccountName && c.AccountType == info.AccountType &&
			c.OwnerAccount == info.OwnerAccount && c.Name == info.Name {
			return c.ID, true
		}
	}
	for _, c := range calendars {
		if info.Name != "" && c.Name == info.Name {
			return c.ID, true
		}
	}
	for _, c := range calendars {
		if info.AccountName != "" && c.AccountName == info.AccountName && c.AccountType == info.AccountType {
			return c.ID, true
		}
	}
	return 0, false
}
