package dismissed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/storage"
)

const modernTable = "dismissed_alerts"

type dismissedEntity struct {
	EventID              int64  `gorm:"column:event_id;primaryKey;autoIncrement:false;not null"`
	InstanceStartTime    int64  `gorm:"column:instance_start_time;primaryKey;autoIncrement:false;not null"`
	DismissTime          int64  `gorm:"column:dismiss_time;not null;default:0;index:idx_dismissed_alerts_dismiss_time"`
	DismissType          int    `gorm:"column:dismiss_type;not null;default:0"`
	CalendarID           int64  `gorm:"column:calendar_id;not null;default:0"`
	InstanceEndTime      int64  `gorm:"column:instance_end_time;not null;default:0"`
	AlertTime            int64  `gorm:"column:alert_time;not null;default:0"`
	NotificationID       int32  `gorm:"column:notification_id;not null;default:0"`
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
	Flags                int64  `gorm:"column:flags;not null;default:0"`
}

func (dismissedEntity) TableName() string { return modernTable }

func toEntity(e alert.DismissedRecord) dismissedEntity {
	r := e.Event
	return dismissedEntity{
		EventID:              r.EventID,
		InstanceStartTime:    r.InstanceStartTime,
		DismissTime:          e.DismissTime,
		DismissType:          int(e.DismissType),
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
		Flags:                r.Flags.Bits(),
	}
}

func (d dismissedEntity) record() alert.DismissedRecord {
	return alert.DismissedRecord{
		DismissTime: d.DismissTime,
		DismissType: alert.DismissType(d.DismissType),
		Event: alert.Record{
			CalendarID:           d.CalendarID,
			EventID:              d.EventID,
			InstanceStartTime:    d.InstanceStartTime,
			InstanceEndTime:      d.InstanceEndTime,
			AlertTime:            d.AlertTime,
			NotificationID:       d.NotificationID,
			Title:                d.Title,
			Description:          d.Description,
			Location:             d.Location,
			StartTime:            d.StartTime,
			EndTime:              d.EndTime,
			SnoozedUntil:         d.SnoozedUntil,
			LastStatusChangeTime: d.LastStatusChangeTime,
			DisplayStatus:        alert.DisplayStatus(d.DisplayStatus),
			Color:                d.Color,
			IsRepeating:          d.IsRepeating,
			IsAllDay:             d.IsAllDay,
			Origin:               alert.Origin(d.Origin),
			TimeFirstSeen:        d.TimeFirstSeen,
			EventStatus:          alert.EventStatus(d.EventStatus),
			AttendanceStatus:     alert.AttendanceStatus(d.AttendanceStatus),
			Flags:                alert.FlagsFromBits(d.Flags),
		},
	}
}

// ModernArchive serves the archive through GORM, optionally as a cr-sqlite
// replicated table.
type ModernArchive struct {
	mu  sync.RWMutex
	db  *gorm.DB
	raw *sql.DB
	crr bool
}

// OpenModern opens (creating if needed) a modern archive database.
func OpenModern(path, crsqliteExtension string) (*ModernArchive, error) {
	gdb, raw, crr, err := storage.OpenGorm(path, crsqliteExtension)
	if err != nil {
		return nil, err
	}
	if err := gdb.AutoMigrate(&dismissedEntity{}); err != nil {
		raw.Close()
		return nil, storage.NewError(storage.ErrCodeBackendUnavailable, err, "migrate %s", modernTable)
	}
	if crr {
		if err := storage.EnableCRR(gdb, modernTable); err != nil {
			raw.Close()
			return nil, err
		}
	}
	return &ModernArchive{db: gdb, raw: raw, crr: crr}, nil
}

// Close finalizes cr-sqlite, if loaded, and closes the database.
func (a *ModernArchive) Close() error {
	if a.crr {
		if err := storage.FinalizeCRR(a.db); err != nil {
			a.raw.Close()
			return err
		}
	}
	return a.raw.Close()
}

// Add implements Archive.
func (a *ModernArchive) Add(ctx context.Context, dismissType alert.DismissType, dismissTime int64, rec alert.Record) error {
	return a.InsertAll(ctx, entriesFor(dismissType, dismissTime, []alert.Record{rec}))
}

// AddBatch implements Archive.
func (a *ModernArchive) AddBatch(ctx context.Context, dismissType alert.DismissType, dismissTime int64, recs []alert.Record) error {
	return a.InsertAll(ctx, entriesFor(dismissType, dismissTime, recs))
}

// InsertAll upserts entries in one transaction. Migration target.
func (a *ModernArchive) InsertAll(ctx context.Context, entries []alert.DismissedRecord) error {
	if len(entries) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := make([]dismissedEntity, len(entries))
	for i, e := range entries {
		rows[i] = toEntity(e)
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Select("*") keeps zero values in the statement so a replace
		// overwrites every column.
		err := tx.Select("*").Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, 200).Error
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		return nil
	})
}

// Get implements Archive.
func (a *ModernArchive) Get(ctx context.Context, key alert.Key) (alert.DismissedRecord, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var d dismissedEntity
	err := a.db.WithContext(ctx).
		Where("event_id = ? AND instance_start_time = ?", key.EventID, key.InstanceStartTime).
		Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return alert.DismissedRecord{}, false, nil
	}
	if err != nil {
		return alert.DismissedRecord{}, false, fmt.Errorf("get dismissed: %w", err)
	}
	return d.record(), true, nil
}

// Delete implements Archive.
func (a *ModernArchive) Delete(ctx context.Context, key alert.Key) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := a.db.WithContext(ctx).
		Where("event_id = ? AND instance_start_time = ?", key.EventID, key.InstanceStartTime).
		Delete(&dismissedEntity{})
	if res.Error != nil {
		return false, fmt.Errorf("delete dismissed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ClearHistory implements Archive.
func (a *ModernArchive) ClearHistory(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&dismissedEntity{}).Error
	if err != nil {
		return fmt.Errorf("clear dismissed: %w", err)
	}
	return nil
}

// PurgeOld implements Archive.
func (a *ModernArchive) PurgeOld(ctx context.Context, now, maxAge int64) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := a.db.WithContext(ctx).Where("dismiss_time < ?", now-maxAge).Delete(&dismissedEntity{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge dismissed: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// All implements Archive.
func (a *ModernArchive) All(ctx context.Context) ([]alert.DismissedRecord, error) {
	return a.list(ctx, "event_id, instance_start_time")
}

// ForDisplay implements Archive.
func (a *ModernArchive) ForDisplay(ctx context.Context) ([]alert.DismissedRecord, error) {
	return a.list(ctx, "dismiss_time DESC, event_id")
}

// Count implements Archive.
func (a *ModernArchive) Count(ctx context.Context) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var n int64
	if err := a.db.WithContext(ctx).Model(&dismissedEntity{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count dismissed: %w", err)
	}
	return int(n), nil
}

func (a *ModernArchive) list(ctx context.Context, order string) ([]alert.DismissedRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var rows []dismissedEntity
	if err := a.db.WithContext(ctx).Order(order).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query dismissed: %w", err)
	}
	out := make([]alert.DismissedRecord, len(rows))
	for i, d := range rows {
		out[i] = d.record()
	}
	return out, nil
}

var (
	_ Archive = (*LegacyArchive)(nil)
	_ Archive = (*ModernArchive)(nil)
)
