package lifecycle

import (
	"context"
	"fmt"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/events"
)

// Dismiss archives rec (when its dismiss type keeps history) and then
// removes the live record. Archiving happens first so a failure between
// the two steps leaves a duplicate, never a loss. It reports whether the
// live record was removed.
func (o *Orchestrator) Dismiss(ctx context.Context, rec alert.Record, dismissType alert.DismissType) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dismissLocked(ctx, rec, dismissType, "dismiss")
}

func (o *Orchestrator) dismissLocked(ctx context.Context, rec alert.Record, dismissType alert.DismissType, op string) (bool, error) {
	log := o.opLogger(op)
	key := rec.Key()
	log.Info().Stringer("key", key).Stringer("type", dismissType).Msg("dismissing")

	if dismissType.ShouldKeep() && rec.IsNotSpecial() {
		if err := o.archive.Add(ctx, dismissType, o.clock.NowMillis(), rec); err != nil {
			o.observe(op, false)
			return false, fmt.Errorf("%s %s: archive: %w", op, key, err)
		}
	}

	deleted, err := o.events.Delete(ctx, key)
	if err != nil {
		o.observe(op, false)
		return false, fmt.Errorf("%s %s: %w", op, key, err)
	}
	o.observe(op, deleted)
	if !deleted {
		log.Error().Stringer("key", key).Msg("live record was not removed")
		return false, nil
	}

	o.emit(ctx, log, Change{Kind: ChangeDismissed, Records: []alert.Record{rec}})
	return true, nil
}

// DismissBatch dismisses recs with one archive write, one delete and one
// effects pass. It returns the number of live records removed.
func (o *Orchestrator) DismissBatch(ctx context.Context, recs []alert.Record, dismissType alert.DismissType) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dismissBatchLocked(ctx, recs, dismissType, "dismiss_batch")
}

func (o *Orchestrator) dismissBatchLocked(ctx context.Context, recs []alert.Record, dismissType alert.DismissType, op string) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	log := o.opLogger(op)
	logKeys(log.Info(), recs).Stringer("type", dismissType).Msg("dismissing")

	if dismissType.ShouldKeep() {
		var keep []alert.Record
		for _, r := range recs {
			if r.IsNotSpecial() {
				keep = append(keep, r)
			}
		}
		if len(keep) > 0 {
			if err := o.archive.AddBatch(ctx, dismissType, o.clock.NowMillis(), keep); err != nil {
				o.observe(op, false)
				return 0, fmt.Errorf("%s: archive: %w", op, err)
			}
		}
	}

	n, err := o.events.DeleteBatch(ctx, events.KeysOf(recs))
	if err != nil {
		o.observe(op, false)
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	o.observe(op, n == len(recs))
	if n != len(recs) {
		log.Warn().Int("removed", n).Int("requested", len(recs)).Msg("not every live record was removed")
	}
	if n > 0 {
		o.emit(ctx, log, Change{Kind: ChangeDismissed, Records: recs})
	}
	return n, nil
}

// DismissReport is the outcome of SafeDismiss for one record.
type DismissReport struct {
	Record alert.Record
	Result alert.DismissResult
}

// SafeDismiss dismisses recs and reports a result per record instead of
// failing as a whole. Records that are not stored are reported as
// DismissEventNotFound and left out of the rest of the operation.
func (o *Orchestrator) SafeDismiss(ctx context.Context, recs []alert.Record, dismissType alert.DismissType) []DismissReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.safeDismissLocked(ctx, recs, dismissType)
}

func (o *Orchestrator) safeDismissLocked(ctx context.Context, recs []alert.Record, dismissType alert.DismissType) []DismissReport {
	log := o.opLogger("safe_dismiss")
	reports := make([]DismissReport, len(recs))

	var valid []alert.Record
	var validIdx []int
	for i, r := range recs {
		reports[i] = DismissReport{Record: r, Result: alert.DismissSuccess}
		_, ok, err := o.events.Get(ctx, r.Key())
		switch {
		case err != nil:
			log.Error().Err(err).Stringer("key", r.Key()).Msg("lookup failed")
			reports[i].Result = alert.DismissDatabaseError
		case !ok:
			reports[i].Result = alert.DismissEventNotFound
		default:
			valid = append(valid, r)
			validIdx = append(validIdx, i)
		}
	}
	if len(valid) == 0 {
		log.Info().Msg("nothing to dismiss")
		return reports
	}

	mark := func(result alert.DismissResult) {
		for _, i := range validIdx {
			reports[i].Result = result
		}
	}

	if dismissType.ShouldKeep() {
		if err := o.archive.AddBatch(ctx, dismissType, o.clock.NowMillis(), valid); err != nil {
			log.Error().Err(err).Msg("archiving failed")
			mark(alert.DismissStorageError)
			o.observe("safe_dismiss", false)
			return reports
		}
	}

	n, err := o.events.DeleteBatch(ctx, events.KeysOf(valid))
	if err != nil || n != len(valid) {
		log.Warn().Err(err).Int("removed", n).Int("requested", len(valid)).Msg("live records not fully removed")
		mark(alert.DismissDeletionWarning)
	}

	if err := o.emit(ctx, log, Change{Kind: ChangeDismissed, Records: valid}); err != nil {
		mark(alert.DismissNotificationError)
	}
	o.observe("safe_dismiss", err == nil && n == len(valid))
	return reports
}

// IDDismissReport is the outcome of SafeDismissByID for one event id.
type IDDismissReport struct {
	EventID int64
	Result  alert.DismissResult
}

// SafeDismissByID dismisses the first stored instance of each event id.
func (o *Orchestrator) SafeDismissByID(ctx context.Context, eventIDs []int64, dismissType alert.DismissType) []IDDismissReport {
	o.mu.Lock()
	defer o.mu.Unlock()

	reports := make([]IDDismissReport, len(eventIDs))
	var found []alert.Record
	byEvent := make(map[int64][]int)
	for i, id := range eventIDs {
		reports[i] = IDDismissReport{EventID: id, Result: alert.DismissEventNotFound}
		instances, err := o.events.Instances(ctx, id)
		if err != nil {
			o.logger.Error().Err(err).Int64("event_id", id).Msg("lookup failed")
			reports[i].Result = alert.DismissDatabaseError
			continue
		}
		if len(instances) == 0 {
			continue
		}
		if _, seen := byEvent[id]; !seen {
			found = append(found, instances[0])
		}
		byEvent[id] = append(byEvent[id], i)
	}
	if len(found) == 0 {
		return reports
	}

	for _, r := range o.safeDismissLocked(ctx, found, dismissType) {
		for _, i := range byEvent[r.Record.EventID] {
			reports[i].Result = r.Result
		}
	}
	return reports
}

// DismissAllButRecentAndSnoozed dismisses every alert that is not snoozed,
// not special and whose status has not changed within DismissAllThreshold.
func (o *Orchestrator) DismissAllButRecentAndSnoozed(ctx context.Context, dismissType alert.DismissType) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	all, err := o.events.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("dismiss all: %w", err)
	}
	cutoff := o.clock.NowMillis() - alert.DismissAllThreshold
	var target []alert.Record
	for _, r := range all {
		if r.LastStatusChangeTime < cutoff && r.SnoozedUntil == 0 && r.IsNotSpecial() {
			target = append(target, r)
		}
	}
	return o.dismissBatchLocked(ctx, target, dismissType, "dismiss_all")
}

// DismissAndDeleteEvent deletes the event from the calendar and, once the
// calendar confirms, dismisses the alert.
func (o *Orchestrator) DismissAndDeleteEvent(ctx context.Context, rec alert.Record, dismissType alert.DismissType) (bool, error) {
	if o.calendar == nil {
		return false, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	deleted, err := o.calendar.DeleteEvent(ctx, rec.EventID)
	if err != nil {
		return false, fmt.Errorf("delete calendar event %d: %w", rec.EventID, err)
	}
	if !deleted {
		o.logger.Warn().Int64("event_id", rec.EventID).Msg("calendar did not delete event")
		return false, nil
	}
	if _, err := o.dismissLocked(ctx, rec, dismissType, "dismiss_and_delete"); err != nil {
		return true, err
	}
	return true, nil
}

// Move shifts the calendar event by addTime and, once the calendar
// confirms, dismisses the alert as EventMovedUsingApp.
func (o *Orchestrator) Move(ctx context.Context, rec alert.Record, addTime int64) (bool, error) {
	if o.calendar == nil {
		return false, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	moved, err := o.calendar.MoveEvent(ctx, rec, addTime)
	if err != nil {
		return false, fmt.Errorf("move event %d: %w", rec.EventID, err)
	}
	if !moved {
		return false, nil
	}
	o.logger.Info().Int64("event_id", rec.EventID).Int64("seconds", addTime/1000).Msg("moved event")
	if _, err := o.dismissLocked(ctx, rec, alert.EventMovedUsingApp, "move"); err != nil {
		return true, err
	}
	return true, nil
}

// MoveAsCopy creates a shifted copy of the event in calendarID and, once
// created, dismisses the alert as EventMovedUsingApp. It returns the new
// event id.
func (o *Orchestrator) MoveAsCopy(ctx context.Context, calendarID int64, rec alert.Record, addTime int64) (int64, bool, error) {
	if o.calendar == nil {
		return 0, false, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	newID, ok, err := o.calendar.MoveAsCopy(ctx, calendarID, rec, addTime)
	if err != nil {
		return 0, false, fmt.Errorf("copy event %d: %w", rec.EventID, err)
	}
	if !ok {
		o.logger.Error().Int64("event_id", rec.EventID).Msg("failed to create event copy")
		return 0, false, nil
	}
	o.logger.Debug().Int64("new_event_id", newID).Msg("event copy created")
	if _, err := o.dismissLocked(ctx, rec, alert.EventMovedUsingApp, "move_as_copy"); err != nil {
		return newID, true, err
	}
	return newID, true, nil
}
