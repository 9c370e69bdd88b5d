package dismissed

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/storage"
)

//go:embed legacy_schema.sql
var legacySchemaSQL string

const legacyColumns = `calendarId, eventId, dismissTime, dismissType, alertTime, title, s1,
	eventStart, eventEnd, instanceStart, instanceEnd, location, snoozeUntil, lastSeen,
	displayStatus, color, isRepeating, allDay, i1`

const legacyUpsert = `INSERT OR REPLACE INTO dismissedEventsV2 (` + legacyColumns + `,
	i2, i3, i4, i5, i6, i7, i8, i9, s2, s3)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
	0, 0, 0, 0, 0, 0, 0, 0, '', '')`

// LegacyArchive serves the historical dismissedEventsV2 table. Like the live
// legacy store it skips rows it cannot decode, and Count reports raw rows.
type LegacyArchive struct {
	mu       sync.RWMutex
	db       *sql.DB
	logger   zerolog.Logger
	readOnly bool
}

// OpenLegacy opens (creating if needed) a legacy archive database.
func OpenLegacy(path string, logger zerolog.Logger) (*LegacyArchive, error) {
	db, err := storage.OpenSQLite(path, storage.SQLiteOptions{})
	if err != nil {
		return nil, err
	}
	if err := storage.ApplySchema(db, legacySchemaSQL, nil); err != nil {
		db.Close()
		return nil, storage.NewError(storage.ErrCodeBackendUnavailable, err, "legacy archive schema")
	}
	return &LegacyArchive{db: db, logger: logger}, nil
}

// OpenLegacyReadOnly opens an existing legacy archive for migration.
func OpenLegacyReadOnly(path string, logger zerolog.Logger) (*LegacyArchive, error) {
	db, err := storage.OpenSQLite(path, storage.SQLiteOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return &LegacyArchive{db: db, logger: logger, readOnly: true}, nil
}

// Close closes the database connection.
func (a *LegacyArchive) Close() error {
	return a.db.Close()
}

// Add implements Archive.
func (a *LegacyArchive) Add(ctx context.Context, dismissType alert.DismissType, dismissTime int64, rec alert.Record) error {
	return a.InsertAll(ctx, entriesFor(dismissType, dismissTime, []alert.Record{rec}))
}

// AddBatch implements Archive.
func (a *LegacyArchive) AddBatch(ctx context.Context, dismissType alert.DismissType, dismissTime int64, recs []alert.Record) error {
	return a.InsertAll(ctx, entriesFor(dismissType, dismissTime, recs))
}

// InsertAll writes entries in one transaction. Migration target.
func (a *LegacyArchive) InsertAll(ctx context.Context, entries []alert.DismissedRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, legacyUpsert, legacyValues(e)...); err != nil {
			return fmt.Errorf("archive %s: %w", e.Event.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

// Get implements Archive.
func (a *LegacyArchive) Get(ctx context.Context, key alert.Key) (alert.DismissedRecord, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entries, err := a.query(ctx, "SELECT "+legacyColumns+
		" FROM dismissedEventsV2 WHERE eventId = ? AND instanceStart = ?", key.EventID, key.InstanceStartTime)
	if err != nil || len(entries) == 0 {
		return alert.DismissedRecord{}, false, err
	}
	return entries[0], true, nil
}

// Delete implements Archive.
func (a *LegacyArchive) Delete(ctx context.Context, key alert.Key) (bool, error) {
	n, err := a.exec(ctx, "DELETE FROM dismissedEventsV2 WHERE eventId = ? AND instanceStart = ?",
		key.EventID, key.InstanceStartTime)
	return n > 0, err
}

// ClearHistory implements Archive.
func (a *LegacyArchive) ClearHistory(ctx context.Context) error {
	_, err := a.exec(ctx, "DELETE FROM dismissedEventsV2")
	return err
}

// PurgeOld implements Archive.
func (a *LegacyArchive) PurgeOld(ctx context.Context, now, maxAge int64) (int, error) {
	n, err := a.exec(ctx, "DELETE FROM dismissedEventsV2 WHERE dismissTime < ?", now-maxAge)
	return int(n), err
}

// All implements Archive.
func (a *LegacyArchive) All(ctx context.Context) ([]alert.DismissedRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.query(ctx, "SELECT "+legacyColumns+" FROM dismissedEventsV2 ORDER BY eventId, instanceStart")
}

// ReadAll is All under the migration source name.
func (a *LegacyArchive) ReadAll(ctx context.Context) ([]alert.DismissedRecord, error) {
	return a.All(ctx)
}

// ForDisplay implements Archive.
func (a *LegacyArchive) ForDisplay(ctx context.Context) ([]alert.DismissedRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.query(ctx, "SELECT "+legacyColumns+" FROM dismissedEventsV2 ORDER BY dismissTime DESC, eventId")
}

// Count implements Archive.
func (a *LegacyArchive) Count(ctx context.Context) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.readOnly {
		var tables int
		err := a.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'dismissedEventsV2'",
		).Scan(&tables)
		if err != nil || tables == 0 {
			return 0, err
		}
	}

	var n int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dismissedEventsV2").Scan(&n); err != nil {
		return 0, fmt.Errorf("count dismissed: %w", err)
	}
	return n, nil
}

// CountRows is Count under the migration source name.
func (a *LegacyArchive) CountRows(ctx context.Context) (int, error) {
	return a.Count(ctx)
}

func (a *LegacyArchive) exec(ctx context.Context, query string, args ...any) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("archive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive: %w", err)
	}
	return n, nil
}

func (a *LegacyArchive) query(ctx context.Context, query string, args ...any) ([]alert.DismissedRecord, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dismissed: %w", err)
	}
	defer rows.Close()

	var out []alert.DismissedRecord
	for rows.Next() {
		e, err := scanLegacy(rows)
		if err != nil {
			a.logger.Warn().Err(err).Msg("skipping unreadable legacy dismissed row")
			continue
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dismissed: %w", err)
	}
	return out, nil
}

func legacyValues(e alert.DismissedRecord) []any {
	r := e.Event
	return []any{
		r.CalendarID, r.EventID, e.DismissTime, int64(e.DismissType), r.AlertTime, r.Title,
		r.Description, r.StartTime, r.EndTime, r.InstanceStartTime, r.InstanceEndTime,
		r.Location, r.SnoozedUntil, r.LastStatusChangeTime, int64(r.DisplayStatus), r.Color,
		boolInt(r.IsRepeating), boolInt(r.IsAllDay), r.Flags.Bits(),
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func scanLegacy(rows *sql.Rows) (alert.DismissedRecord, error) {
	var (
		cid, dtime, dtype, altm, estart, eend, iend, snz, ls sql.NullInt64
		dsts, clr, rep, alld, flags                         sql.NullInt64
		id, istart                                          sql.NullInt64
		title, desc, loc                                    sql.NullString
	)
	err := rows.Scan(&cid, &id, &dtime, &dtype, &altm, &title, &desc, &estart, &eend,
		&istart, &iend, &loc, &snz, &ls, &dsts, &clr, &rep, &alld, &flags)
	if err != nil {
		return alert.DismissedRecord{}, err
	}
	if !id.Valid || !istart.Valid {
		return alert.DismissedRecord{}, errors.New("row without event id or instance start")
	}
	dismissType, err := alert.ParseDismissType(dtype.Int64)
	if err != nil {
		return alert.DismissedRecord{}, err
	}
	display, err := alert.ParseDisplayStatus(dsts.Int64)
	if err != nil {
		return alert.DismissedRecord{}, err
	}

	calendarID := int64(-1)
	if cid.Valid {
		calendarID = cid.Int64
	}

	return alert.DismissedRecord{
		DismissTime: dtime.Int64,
		DismissType: dismissType,
		Event: alert.Record{
			CalendarID:           calendarID,
			EventID:              id.Int64,
			AlertTime:            altm.Int64,
			Title:                title.String,
			Description:          desc.String,
			StartTime:            estart.Int64,
			EndTime:              eend.Int64,
			InstanceStartTime:    istart.Int64,
			InstanceEndTime:      iend.Int64,
			Location:             loc.String,
			SnoozedUntil:         snz.Int64,
			LastStatusChangeTime: ls.Int64,
			DisplayStatus:        display,
			Color:                int32(clr.Int64),
			IsRepeating:          rep.Int64 != 0,
			IsAllDay:             alld.Int64 != 0,
			Flags:                alert.FlagsFromBits(flags.Int64),
		},
	}, nil
}
