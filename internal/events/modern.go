package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/storage"
)

const modernTable = "event_alerts"

// alertEntity is the GORM mapping of a record. Every column is NOT NULL
// with a default, which cr-sqlite requires of replicated tables.
type alertEntity struct {
	EventID              int64  `gorm:"column:event_id;primaryKey;autoIncrement:false;not null"`
	InstanceStartTime    int64  `gorm:"column:instance_start_time;primaryKey;autoIncrement:false;not null"`
	CalendarID           int64  `gorm:"column:calendar_id;not null;default:0"`
	InstanceEndTime      int64  `gorm:"column:instance_end_time;not null;default:0"`
	AlertTime            int64  `gorm:"column:alert_time;not null;default:0"`
	NotificationID       int32  `gorm:"column:notification_id;not null;default:0;index:idx_event_alerts_notification_id"`
	Title                string `gorm:"column:title;not null;default:''"`
	Description          string `gorm:"column:description;not null;default:''"`
	Location             string `gorm:"column:location;not null;default:''"`
	StartTime            int64  `gorm:"column:start_time;not null;default:0"`
	EndTime              int64  `gorm:"column:end_time;not null;default:0"`
	SnoozedUntil         int64  `gorm:"column:snoozed_until;not null;default:0"`
	LastStatusChangeTime int64  `gorm:"column:last_status_change_time;not null;default:0"`
	DisplayStatus        int    `gorm:"column:display_status;not null;default:0"`
	Color                int32  `gorm:"column:color;not null;default:0"`
	IsRepeating          bool   `gorm:"column:is_repeating;not null;default:false"`
	IsAllDay             bool   `gorm:"column:is_all_day;not null;default:false"`
	Origin               int    `gorm:"column:origin;not null;default:0"`
	TimeFirstSeen        int64  `gorm:"column:time_first_seen;not null;default:0"`
	EventStatus          int    `gorm:"column:event_status;not null;default:0"`
	AttendanceStatus     int    `gorm:"column:attendance_status;not null;default:0"`
	Muted                bool   `gorm:"column:is_muted;not null;default:false"`
	Task                 bool   `gorm:"column:is_task;not null;default:false"`
	Alarm                bool   `gorm:"column:is_alarm;not null;default:false"`
	ExtraFlags           int64  `gorm:"column:extra_flags;not null;default:0"`
}

func (alertEntity) TableName() string { return modernTable }

func toEntity(r alert.Record) alertEntity {
	return alertEntity{
		EventID:              r.EventID,
		InstanceStartTime:    r.InstanceStartTime,
		CalendarID:           r.CalendarID,
		InstanceEndTime:      r.InstanceEndTime,
		AlertTime:            r.AlertTime,
		NotificationID:       r.NotificationID,
		Title:                r.Title,
		Description:          r.Description,
		Location:             r.Location,
		StartTime:            r.StartTime,
		EndTime:              r.EndTime,
		SnoozedUntil:         r.SnoozedUntil,
		LastStatusChangeTime: r.LastStatusChangeTime,
		DisplayStatus:        int(r.DisplayStatus),
		Color:                r.Color,
		IsRepeating:          r.IsRepeating,
		IsAllDay:             r.IsAllDay,
		Origin:               int(r.Origin),
		TimeFirstSeen:        r.TimeFirstSeen,
		EventStatus:          int(r.EventStatus),
		AttendanceStatus:     int(r.AttendanceStatus),
		Muted:                r.Flags.Muted,
		Task:                 r.Flags.Task,
		Alarm:                r.Flags.Alarm,
		ExtraFlags:           r.Flags.Unknown,
	}
}

func (e alertEntity) record() alert.Record {
	return alert.Record{
		CalendarID:           e.CalendarID,
		EventID:              e.EventID,
		InstanceStartTime:    e.InstanceStartTime,
		InstanceEndTime:      e.InstanceEndTime,
		AlertTime:            e.AlertTime,
		NotificationID:       e.NotificationID,
		Title:                e.Title,
		Description:          e.Description,
		Location:             e.Location,
		StartTime:            e.StartTime,
		EndTime:              e.EndTime,
		SnoozedUntil:         e.SnoozedUntil,
		LastStatusChangeTime: e.LastStatusChangeTime,
		DisplayStatus:        alert.DisplayStatus(e.DisplayStatus),
		Color:                e.Color,
		IsRepeating:          e.IsRepeating,
		IsAllDay:             e.IsAllDay,
		Origin:               alert.Origin(e.Origin),
		TimeFirstSeen:        e.TimeFirstSeen,
		EventStatus:          alert.EventStatus(e.EventStatus),
		AttendanceStatus:     alert.AttendanceStatus(e.AttendanceStatus),
		Flags: alert.Flags{
			Muted:   e.Muted,
			Task:    e.Task,
			Alarm:   e.Alarm,
			Unknown: e.ExtraFlags,
		},
	}
}

// columns lists every non-key column so updates write zero values too.
func (e alertEntity) columns() map[string]any {
	return map[string]any{
		"calendar_id":             e.CalendarID,
		"instance_end_time":       e.InstanceEndTime,
		"alert_time":              e.AlertTime,
		"notification_id":         e.NotificationID,
		"title":                   e.Title,
		"description":             e.Description,
		"location":                e.Location,
		"start_time":              e.StartTime,
		"end_time":                e.EndTime,
		"snoozed_until":           e.SnoozedUntil,
		"last_status_change_time": e.LastStatusChangeTime,
		"display_status":          e.DisplayStatus,
		"color":                   e.Color,
		"is_repeating":            e.IsRepeating,
		"is_all_day":              e.IsAllDay,
		"origin":                  e.Origin,
		"time_first_seen":         e.TimeFirstSeen,
		"event_status":            e.EventStatus,
		"attendance_status":       e.AttendanceStatus,
		"is_muted":                e.Muted,
		"is_task":                 e.Task,
		"is_alarm":                e.Alarm,
		"extra_flags":             e.ExtraFlags,
	}
}

// ModernOptions configures OpenModern.
type ModernOptions struct {
	// CRSQLiteExtension is the path of the cr-sqlite loadable extension.
	// When set the table is upgraded to a conflict-free replicated relation.
	CRSQLiteExtension string
}

// ModernStore serves records through GORM.
type ModernStore struct {
	mu  sync.RWMutex
	db  *gorm.DB
	raw *sql.DB
	crr bool
}

// OpenModern opens (creating if needed) a modern events database.
func OpenModern(path string, opts ModernOptions) (*ModernStore, error) {
	gdb, raw, crr, err := storage.OpenGorm(path, opts.CRSQLiteExtension)
	if err != nil {
		return nil, err
	}
	if err := gdb.AutoMigrate(&alertEntity{}); err != nil {
		raw.Close()
		return nil, storage.NewError(storage.ErrCodeBackendUnavailable, err, "migrate %s", modernTable)
	}
	if crr {
		if err := storage.EnableCRR(gdb, modernTable); err != nil {
			raw.Close()
			return nil, err
		}
	}
	return &ModernStore{db: gdb, raw: raw, crr: crr}, nil
}

// Close finalizes cr-sqlite bookkeeping, if loaded, and closes the database.
func (s *ModernStore) Close() error {
	if s.raw == nil {
		return nil
	}
	if s.crr {
		if err := storage.FinalizeCRR(s.db); err != nil {
			s.raw.Close()
			return err
		}
	}
	return s.raw.Close()
}

// Replicated reports whether the table is a cr-sqlite CRR.
func (s *ModernStore) Replicated() bool {
	return s.crr
}

func pk(key alert.Key) (string, int64, int64) {
	return "event_id = ? AND instance_start_time = ?", key.EventID, key.InstanceStartTime
}

// Add implements Store.
func (s *ModernStore) Add(ctx context.Context, rec alert.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return modernInsert(tx, rec, true)
	})
}

// AddBatch implements Store.
func (s *ModernStore) AddBatch(ctx context.Context, recs []alert.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range recs {
			if err := modernInsert(tx, rec, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertAll copies records verbatim in one transaction. Migration target.
func (s *ModernStore) InsertAll(ctx context.Context, recs []alert.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entities := make([]alertEntity, len(recs))
	for i, r := range recs {
		entities[i] = toEntity(r)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(entities) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(entities, 200).Error; err != nil {
			return translate(err, "insert events")
		}
		return nil
	})
}

// Get implements Store.
func (s *ModernStore) Get(ctx context.Context, key alert.Key) (alert.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return modernGet(s.db.WithContext(ctx), key)
}

// Instances implements Store.
func (s *ModernStore) Instances(ctx context.Context, eventID int64) ([]alert.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entities []alertEntity
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("instance_start_time").
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	return records(entities), nil
}

// Update implements Store.
func (s *ModernStore) Update(ctx context.Context, key alert.Key, patch Patch) (alert.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var merged alert.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, ok, err := modernGet(tx, key)
		if err != nil {
			return err
		}
		if !ok {
			return storage.NewError(storage.ErrCodeNotFound, nil, "event %s", key)
		}
		merged = patch.Apply(cur)
		q, id, start := pk(key)
		res := tx.Model(&alertEntity{}).Where(q, id, start).Updates(toEntity(merged).columns())
		if res.Error != nil {
			return translate(res.Error, "update event")
		}
		return nil
	})
	if err != nil {
		return alert.Record{}, err
	}
	return merged, nil
}

// UpdateInstanceTimes implements Store.
func (s *ModernStore) UpdateInstanceTimes(ctx context.Context, key alert.Key, newStart, newEnd int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, ok, err := modernGet(tx, key)
		if err != nil || !ok {
			return err
		}
		q, id, start := pk(key)
		if err := tx.Where(q, id, start).Delete(&alertEntity{}).Error; err != nil {
			return translate(err, "update instance times")
		}
		cur.InstanceStartTime = newStart
		cur.InstanceEndTime = newEnd
		if err := modernInsert(tx, cur, false); err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Delete implements Store.
func (s *ModernStore) Delete(ctx context.Context, key alert.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, id, start := pk(key)
	res := s.db.WithContext(ctx).Where(q, id, start).Delete(&alertEntity{})
	if res.Error != nil {
		return false, fmt.Errorf("delete event: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteBatch implements Store.
func (s *ModernStore) DeleteBatch(ctx context.Context, keys []alert.Key) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range keys {
			q, id, start := pk(key)
			res := tx.Where(q, id, start).Delete(&alertEntity{})
			if res.Error != nil {
				return fmt.Errorf("delete events: %w", res.Error)
			}
			removed += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// DeleteAll implements Store.
func (s *ModernStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&alertEntity{}).Error
	if err != nil {
		return fmt.Errorf("delete all events: %w", err)
	}
	return nil
}

// All implements Store.
func (s *ModernStore) All(ctx context.Context) ([]alert.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entities []alertEntity
	if err := s.db.WithContext(ctx).Order("event_id, instance_start_time").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return records(entities), nil
}

// Count implements Store.
func (s *ModernStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.WithContext(ctx).Model(&alertEntity{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return int(n), nil
}

// NextNotificationID implements Store.
func (s *ModernStore) NextNotificationID(ctx context.Context) (int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return modernNextID(s.db.WithContext(ctx))
}

func modernNextID(tx *gorm.DB) (int32, error) {
	var max sql.NullInt64
	if err := tx.Model(&alertEntity{}).Select("MAX(notification_id)").Row().Scan(&max); err != nil {
		return 0, fmt.Errorf("next notification id: %w", err)
	}
	return nextID(max.Int64, max.Valid), nil
}

func modernGet(tx *gorm.DB, key alert.Key) (alert.Record, bool, error) {
	var e alertEntity
	q, id, start := pk(key)
	err := tx.Where(q, id, start).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return alert.Record{}, false, nil
	}
	if err != nil {
		return alert.Record{}, false, fmt.Errorf("get event: %w", err)
	}
	return e.record(), true, nil
}

func modernInsert(tx *gorm.DB, rec alert.Record, assignID bool) error {
	if assignID {
		id, err := modernResolveID(tx, rec.NotificationID)
		if err != nil {
			return err
		}
		rec.NotificationID = id
	}
	e := toEntity(rec)
	if err := tx.Create(&e).Error; err != nil {
		return translate(err, fmt.Sprintf("event %s", rec.Key()))
	}
	return nil
}

func modernResolveID(tx *gorm.DB, want int32) (int32, error) {
	if want != 0 {
		var used int64
		if err := tx.Model(&alertEntity{}).Where("notification_id = ?", want).Count(&used).Error; err != nil {
			return 0, fmt.Errorf("check notification id: %w", err)
		}
		if used == 0 {
			return want, nil
		}
	}
	return modernNextID(tx)
}

func records(entities []alertEntity) []alert.Record {
	out := make([]alert.Record, len(entities))
	for i, e := range entities {
		out[i] = e.record()
	}
	return out
}

// translate maps constraint failures onto the storage taxonomy.
func translate(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || storage.IsUniqueViolation(err) {
		return storage.NewError(storage.ErrCodeDuplicateKey, err, "%s", what)
	}
	return fmt.Errorf("%s: %w", what, err)
}

var (
	_ Store = (*LegacyStore)(nil)
	_ Store = (*ModernStore)(nil)
)
