package calendar

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/calnotify/internal/alert"
)

// FixtureData is the on-disk layout of a fixture file.
type FixtureData struct {
	Calendars []Calendar `yaml:"calendars"`
	Events    []Event    `yaml:"events"`
}

// Fixture is a Provider backed by a YAML document. Writes are saved back to
// the file when the fixture was loaded from one.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Fixture struct {
	mu   sync.Mutex
	path string
	data FixtureData
}

// NewFixture returns an in-memory fixture.
func NewFixture(data FixtureData) *Fixture {
	return &Fixture{data: data}
}

// LoadFixture reads path. A missing file yields an empty fixture that will
// be created on the first write.
func LoadFixture(path string) (*Fixture, error) {
	f := &Fixture{path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read calendar fixture: %w", err)
	}
	if err := yaml.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("parse calendar fixture %s: %w", path, err)
	}
	return f, nil
}

// Calendars returns a copy of the known calendars.
func (f *Fixture) Calendars() []Calendar {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Calendar(nil), f.data.Calendars...)
}

// Events returns a copy of the known events ordered by id.
func (f *Fixture) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]Event(nil), f.data.Events...)
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out
}

// Event implements Provider.
func (f *Fixture) Event(_ context.Context, eventID int64) (Event, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.eventIndex(eventID); i >= 0 {
		return f.data.Events[i], true, nil
	}
	return Event{}, false, nil
}

// BackupInfo implements Provider.
func (f *Fixture) BackupInfo(_ context.Context, calendarID int64) (BackupInfo, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.data.Calendars {
		if c.ID == calendarID {
			return c.BackupInfo(), true, nil
		}
	}
	return BackupInfo{}, false, nil
}

// FindMatchingCalendar implements Provider.
func (f *Fixture) FindMatchingCalendar(_ context.Context, info BackupInfo) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := MatchCalendar(f.data.Calendars, info)
	return id, ok, nil
}

// HandledCalendars implements Provider.
func (f *Fixture) HandledCalendars(context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, c := range f.data.Calendars {
		if c.Handled {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// SetHandled marks exactly the calendars in ids as handled. It does not
// persist the change.
func (f *Fixture) SetHandled(ids []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range f.data.Calendars {
		f.data.Calendars[i].Handled = want[f.data.Calendars[i].ID]
	}
}

// DeleteEvent implements Provider.
func (f *Fixture) DeleteEvent(_ context.Context, eventID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.eventIndex(eventID)
	if i < 0 {
		return false, nil
	}
	f.data.Events = append(f.data.Events[:i], f.data.Events[i+1:]...)
	return true, f.save()
}

// MoveEvent implements Provider.
func (f *Fixture) MoveEvent(_ context.Context, rec alert.Record, addTime int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.eventIndex(rec.EventID)
	if i < 0 {
		return false, nil
	}
	f.data.Events[i].StartTime += addTime
	f.data.Events[i].EndTime += addTime
	return true, f.save()
}

// MoveAsCopy implements Provider. The copy is a one-off event built from the
// alerted instance.
func (f *Fixture) MoveAsCopy(_ context.Context, calendarID int64, rec alert.Record, addTime int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	known := false
	for _, c := range f.data.Calendars {
		if c.ID == calendarID {
			known = true
			break
		}
	}
	if !known {
		return 0, false, nil
	}

	var next int64 = 1
	for _, e := range f.data.Events {
		if e.EventID >= next {
			next = e.EventID + 1
		}
	}
	f.data.Events = append(f.data.Events, Event{
		EventID:     next,
		CalendarID:  calendarID,
		Title:       rec.Title,
		Description: rec.Description,
		Location:    rec.Location,
		StartTime:   rec.DisplayedStartTime() + addTime,
		EndTime:     rec.DisplayedEndTime() + addTime,
		IsAllDay:    rec.IsAllDay,
		Color:       rec.Color,
	})
	if err := f.save(); err != nil {
		return 0, false, err
	}
	return next, true, nil
}

// Record builds the alert fired for e at alertTime.
func (e Event) Record(alertTime int64) alert.Record {
	return alert.Record{
		CalendarID:        e.CalendarID,
		EventID:           e.EventID,
		InstanceStartTime: e.StartTime,
		InstanceEndTime:   e.EndTime,
		AlertTime:         alertTime,
		Title:             e.Title,
		Description:       e.Description,
		Location:          e.Location,
		StartTime:         e.StartTime,
		EndTime:           e.EndTime,
		Color:             e.Color,
		IsRepeating:       e.IsRepeating,
		IsAllDay:          e.IsAllDay,
		Origin:            alert.ProviderManual,
		TimeFirstSeen:     alertTime,
		EventStatus:       alert.Confirmed,
	}
}

func (f *Fixture) eventIndex(eventID int64) int {
	for i, e := range f.data.Events {
		if e.EventID == eventID {
			return i
		}
	}
	return -1
}

// save must be called with mu held.
func (f *Fixture) save() error {
	if f.path == "" {
		return nil
	}
	raw, err := yaml.Marshal(&f.data)
	if err != nil {
		return fmt.Errorf("encode calendar fixture: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("write calendar fixture: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write calendar fixture: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("write calendar fixture: %w", err)
	}
	return nil
}

var _ Provider = (*Fixture)(nil)
