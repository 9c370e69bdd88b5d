package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/storage"
)

// ErrNotRestorable is returned by Restore for dismiss types that cannot be
// brought back.
var ErrNotRestorable = errors.New("dismissal cannot be restored")

// Restore brings an archived alert back to the live store. The alert is
// re-homed to the local calendar matching its original one (falling back
// to the original id), gets a fresh notification id and starts hidden. The
// archive entry is removed only after the live record is confirmed.
func (o *Orchestrator) Restore(ctx context.Context, entry alert.DismissedRecord) (alert.Record, error) {
	if !entry.DismissType.CanBeRestored() {
		return alert.Record{}, fmt.Errorf("restore %s (%s): %w", entry.Event.Key(), entry.DismissType, ErrNotRestorable)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	log := o.opLogger("restore")
	rec := entry.Event
	key := rec.Key()

	calendarID, err := o.resolveCalendar(ctx, rec.CalendarID)
	if err != nil {
		return alert.Record{}, fmt.Errorf("restore %s: %w", key, err)
	}
	log.Info().Stringer("key", key).Int64("original_calendar", rec.CalendarID).
		Int64("calendar", calendarID).Msg("restoring")

	rec.NotificationID = 0
	rec.DisplayStatus = alert.Hidden
	rec.CalendarID = calendarID

	writeErr := o.events.Add(ctx, rec)
	stored, ok, err := o.events.Get(ctx, key)
	if err != nil {
		return alert.Record{}, fmt.Errorf("restore %s: verify: %w", key, err)
	}
	if writeErr != nil || !ok {
		o.observe("restore", false)
		log.Error().Err(writeErr).Stringer("key", key).Msg("restore failed")
		return alert.Record{}, storage.NewError(storage.ErrCodeVerificationFailed, writeErr, "restore %s", key)
	}

	if _, err := o.archive.Delete(ctx, key); err != nil {
		log.Error().Err(err).Stringer("key", key).Msg("removing archive entry failed")
	}
	o.observe("restore", true)
	o.emit(ctx, log, Change{Kind: ChangeRestored, Records: []alert.Record{stored}})
	return stored, nil
}

func (o *Orchestrator) resolveCalendar(ctx context.Context, original int64) (int64, error) {
	if o.calendar == nil {
		return original, nil
	}
	info, ok, err := o.calendar.BackupInfo(ctx, original)
	if err != nil || !ok {
		return original, err
	}
	id, ok, err := o.calendar.FindMatchingCalendar(ctx, info)
	if err != nil || !ok {
		return original, err
	}
	return id, nil
}
