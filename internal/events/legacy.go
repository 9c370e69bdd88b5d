package events

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

const legacyTable = "eventsV9"

const legacyColumns = `cid, id, altm, nid, ttl, s1, estart, eend, istart, iend, loc,
	snz, ls, dsts, clr, rep, alld, ogn, fsn, attsts, oattsts, i1`

const legacyInsert = `INSERT INTO eventsV9 (` + legacyColumns + `,
	i2, i3, i4, i5, i6, i7, i8, s2)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
	0, 0, 0, 0, 0, 0, 0, '')`

const legacyUpdate = `UPDATE eventsV9 SET
	cid = ?, altm = ?, nid = ?, ttl = ?, s1 = ?, estart = ?, eend = ?, iend = ?,
	loc = ?, snz = ?, ls = ?, dsts = ?, clr = ?, rep = ?, alld = ?, ogn = ?,
	fsn = ?, attsts = ?, oattsts = ?, i1 = ?
	WHERE id = ? AND istart = ?`

// LegacyStore serves records from the historical eventsV9 table.
//
// Reads decode rows leniently: a row whose values cannot be decoded (wrong
// storage class, out-of-range enum) is logged and skipped rather than failing
// the whole read. Count always reports the raw row count, which is what
// migration compares against.
type LegacyStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	logger   zerolog.Logger
	readOnly bool
}

// OpenLegacy opens (creating if needed) a legacy events database.
func OpenLegacy(path string, logger zerolog.Logger) (*LegacyStore, error) {
	db, err := storage.OpenSQLite(path, storage.SQLiteOptions{})
	if err != nil {
		return nil, err
	}
	if err := storage.ApplySchema(db, legacySchemaSQL, nil); err != nil {
		db.Close()
		return nil, storage.NewError(storage.ErrCodeBackendUnavailable, err, "legacy events schema")
	}
	return NewLegacyStore(db, logger), nil
}

// OpenLegacyReadOnly opens an existing legacy database for migration. The
// schema is not touched.
func OpenLegacyReadOnly(path string, logger zerolog.Logger) (*LegacyStore, error) {
	db, err := storage.OpenSQLite(path, storage.SQLiteOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	s := NewLegacyStore(db, logger)
	s.readOnly = true
	return s, nil
}

// NewLegacyStore wraps an already configured database handle.
func NewLegacyStore(db *sql.DB, logger zerolog.Logger) *LegacyStore {
	return &LegacyStore{db: db, logger: logger}
}

// Close closes the database connection.
func (s *LegacyStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add implements Store.
func (s *LegacyStore) Add(ctx context.Context, rec alert.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, "add event", func(tx *sql.Tx) error {
		return s.insertTx(ctx, tx, rec, true)
	})
}

// AddBatch implements Store.
func (s *LegacyStore) AddBatch(ctx context.Context, recs []alert.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, "add events", func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := s.insertTx(ctx, tx, rec, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertAll copies records verbatim, notification ids included. It is the
// migration entry point and runs in one transaction.
func (s *LegacyStore) InsertAll(ctx context.Context, recs []alert.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, "insert events", func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := s.insertTx(ctx, tx, rec, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get implements Store.
func (s *LegacyStore) Get(ctx context.Context, key alert.Key) (alert.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getTx(ctx, s.db, key)
}

// Instances implements Store.
func (s *LegacyStore) Instances(ctx context.Context, eventID int64) ([]alert.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.query(ctx, "SELECT "+legacyColumns+" FROM eventsV9 WHERE id = ? ORDER BY istart", eventID)
}

// Update implements Store.
func (s *LegacyStore) Update(ctx context.Context, key alert.Key, patch Patch) (alert.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var merged alert.Record
	err := s.inTx(ctx, "update event", func(tx *sql.Tx) error {
		cur, ok, err := s.getTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if !ok {
			return storage.NewError(storage.ErrCodeNotFound, nil, "event %s", key)
		}
		merged = patch.Apply(cur)
		_, err = tx.ExecContext(ctx, legacyUpdate, legacyUpdateValues(merged)...)
		return err
	})
	if err != nil {
		return alert.Record{}, err
	}
	return merged, nil
}

// UpdateInstanceTimes implements Store.
func (s *LegacyStore) UpdateInstanceTimes(ctx context.Context, key alert.Key, newStart, newEnd int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	err := s.inTx(ctx, "update instance times", func(tx *sql.Tx) error {
		cur, ok, err := s.getTx(ctx, tx, key)
		if err != nil || !ok {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM eventsV9 WHERE id = ? AND istart = ?", key.EventID, key.InstanceStartTime); err != nil {
			return err
		}
		cur.InstanceStartTime = newStart
		cur.InstanceEndTime = newEnd
		if err := s.insertTx(ctx, tx, cur, false); err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Delete implements Store.
func (s *LegacyStore) Delete(ctx context.Context, key alert.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM eventsV9 WHERE id = ? AND istart = ?", key.EventID, key.InstanceStartTime)
	if err != nil {
		return false, fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete event: %w", err)
	}
	return n > 0, nil
}

// DeleteBatch implements Store.
func (s *LegacyStore) DeleteBatch(ctx context.Context, keys []alert.Key) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	err := s.inTx(ctx, "delete events", func(tx *sql.Tx) error {
		for _, key := range keys {
			res, err := tx.ExecContext(ctx, "DELETE FROM eventsV9 WHERE id = ? AND istart = ?", key.EventID, key.InstanceStartTime)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// DeleteAll implements Store.
func (s *LegacyStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM eventsV9"); err != nil {
		return fmt.Errorf("delete all events: %w", err)
	}
	return nil
}

// All implements Store.
func (s *LegacyStore) All(ctx context.Context) ([]alert.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.query(ctx, "SELECT "+legacyColumns+" FROM eventsV9 ORDER BY id, istart")
}

// ReadAll is All under the migration source name.
func (s *LegacyStore) ReadAll(ctx context.Context) ([]alert.Record, error) {
	return s.All(ctx)
}

// Count implements Store. It counts raw rows, including rows All would skip.
func (s *LegacyStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.readOnly {
		exists, err := s.tableExists(ctx)
		if err != nil || !exists {
			return 0, err
		}
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM eventsV9").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// CountRows is Count under the migration source name.
func (s *LegacyStore) CountRows(ctx context.Context) (int, error) {
	return s.Count(ctx)
}

// NextNotificationID implements Store.
func (s *LegacyStore) NextNotificationID(ctx context.Context) (int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return legacyNextID(ctx, s.db)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func legacyNextID(ctx context.Context, q queryer) (int32, error) {
	var max sql.NullInt64
	if err := q.QueryRowContext(ctx, "SELECT MAX(nid) FROM eventsV9").Scan(&max); err != nil {
		return 0, fmt.Errorf("next notification id: %w", err)
	}
	return nextID(max.Int64, max.Valid), nil
}

func (s *LegacyStore) tableExists(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", legacyTable,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect legacy schema: %w", err)
	}
	return n > 0, nil
}

func (s *LegacyStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		var se *storage.StoreError
		if errors.As(err, &se) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// insertTx writes one row. With assignID a zero or colliding notification id
// is replaced by the next free one.
func (s *LegacyStore) insertTx(ctx context.Context, tx *sql.Tx, rec alert.Record, assignID bool) error {
	if assignID {
		id, err := s.resolveNotificationID(ctx, tx, rec.NotificationID)
		if err != nil {
			return err
		}
		rec.NotificationID = id
	}

	if _, err := tx.ExecContext(ctx, legacyInsert, legacyValues(rec)...); err != nil {
		if storage.IsUniqueViolation(err) {
			return storage.NewError(storage.ErrCodeDuplicateKey, err, "event %s", rec.Key())
		}
		return err
	}
	return nil
}

func (s *LegacyStore) resolveNotificationID(ctx context.Context, tx *sql.Tx, want int32) (int32, error) {
	if want != 0 {
		var used int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM eventsV9 WHERE nid = ?", want).Scan(&used); err != nil {
			return 0, err
		}
		if used == 0 {
			return want, nil
		}
	}
	return legacyNextID(ctx, tx)
}

func (s *LegacyStore) getTx(ctx context.Context, q queryer, key alert.Key) (alert.Record, bool, error) {
	recs, err := s.queryWith(ctx, q,
		"SELECT "+legacyColumns+" FROM eventsV9 WHERE id = ? AND istart = ?",
		key.EventID, key.InstanceStartTime)
	if err != nil {
		return alert.Record{}, false, err
	}
	if len(recs) == 0 {
		return alert.Record{}, false, nil
	}
	return recs[0], true, nil
}

func (s *LegacyStore) query(ctx context.Context, query string, args ...any) ([]alert.Record, error) {
	return s.queryWith(ctx, s.db, query, args...)
}

func (s *LegacyStore) queryWith(ctx context.Context, q queryer, query string, args ...any) ([]alert.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var recs []alert.Record
	for rows.Next() {
		rec, err := scanLegacy(rows)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping unreadable legacy event row")
			continue
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return recs, nil
}

func legacyValues(r alert.Record) []any {
	return []any{
		r.CalendarID, r.EventID, r.AlertTime, r.NotificationID, r.Title, r.Description,
		r.StartTime, r.EndTime, r.InstanceStartTime, r.InstanceEndTime, r.Location,
		r.SnoozedUntil, r.LastStatusChangeTime, int64(r.DisplayStatus), r.Color,
		boolInt(r.IsRepeating), boolInt(r.IsAllDay), int64(r.Origin), r.TimeFirstSeen,
		int64(r.EventStatus), int64(r.AttendanceStatus), r.Flags.Bits(),
	}
}

// legacyUpdateValues matches the SET list of legacyUpdate followed by the key.
func legacyUpdateValues(r alert.Record) []any {
	return []any{
		r.CalendarID, r.AlertTime, r.NotificationID, r.Title, r.Description,
		r.StartTime, r.EndTime, r.InstanceEndTime, r.Location,
		r.SnoozedUntil, r.LastStatusChangeTime, int64(r.DisplayStatus), r.Color,
		boolInt(r.IsRepeating), boolInt(r.IsAllDay), int64(r.Origin), r.TimeFirstSeen,
		int64(r.EventStatus), int64(r.AttendanceStatus), r.Flags.Bits(),
		r.EventID, r.InstanceStartTime,
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanLegacy decodes one row. NULL columns take their zero defaults, except
// the key columns which must be present.
func scanLegacy(row rowScanner) (alert.Record, error) {
	var (
		cid, altm, nid, estart, eend, iend, snz, ls sql.NullInt64
		dsts, clr, rep, alld, ogn, fsn, att, oatt  sql.NullInt64
		flags                                      sql.NullInt64
		id, istart                                 sql.NullInt64
		ttl, desc, loc                             sql.NullString
	)
	err := row.Scan(&cid, &id, &altm, &nid, &ttl, &desc, &estart, &eend, &istart, &iend, &loc,
		&snz, &ls, &dsts, &clr, &rep, &alld, &ogn, &fsn, &att, &oatt, &flags)
	if err != nil {
		return alert.Record{}, err
	}
	if !id.Valid || !istart.Valid {
		return alert.Record{}, errors.New("row without event id or instance start")
	}

	display, err := alert.ParseDisplayStatus(dsts.Int64)
	if err != nil {
		return alert.Record{}, err
	}
	origin, err := alert.ParseOrigin(ogn.Int64)
	if err != nil {
		return alert.Record{}, err
	}
	status, err := alert.ParseEventStatus(att.Int64)
	if err != nil {
		return alert.Record{}, err
	}
	attendance, err := alert.ParseAttendanceStatus(oatt.Int64)
	if err != nil {
		return alert.Record{}, err
	}

	calendarID := int64(-1)
	if cid.Valid {
		calendarID = cid.Int64
	}

	return alert.Record{
		CalendarID:           calendarID,
		EventID:              id.Int64,
		AlertTime:            altm.Int64,
		NotificationID:       int32(nid.Int64),
		Title:                ttl.String,
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
		Origin:               origin,
		TimeFirstSeen:        fsn.Int64,
		EventStatus:          status,
		AttendanceStatus:     attendance,
		Flags:                alert.FlagsFromBits(flags.Int64),
	}, nil
}
