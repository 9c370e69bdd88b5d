package lifecycle

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/events"
	"github.com/roach88/calnotify/internal/storage"
)

// UnknownCalendar is the calendar id of alerts that did not come from a
// calendar; they bypass the handled-calendar filter.
const UnknownCalendar int64 = -1

// Register stores a freshly fired alert and confirms it is present and not
// snoozed. A non-repeating event replaces every stored instance of the same
// event id; a repeating one is added alongside its other instances and
// replaces a stored row with the same key.
//
// It returns false with a nil error when the alert's calendar is not
// handled, and false with a VERIFICATION_FAILED error when the confirming
// read does not show the intended state.
func (o *Orchestrator) Register(ctx context.Context, rec alert.Record) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	log := o.opLogger("register")
	key := rec.Key()

	if rec.CalendarID != UnknownCalendar {
		handled, filtered, err := o.handledCalendars(ctx)
		if err != nil {
			return false, fmt.Errorf("register %s: handled calendars: %w", key, err)
		}
		if filtered && !handled[rec.CalendarID] {
			log.Info().Int64("calendar_id", rec.CalendarID).Stringer("key", key).Msg("calendar is not handled")
			return false, nil
		}
	}

	if rec.IsNotSpecial() {
		rec.LastStatusChangeTime = o.clock.NowMillis()
	}

	old, err := o.storedRows(ctx, &rec)
	if err != nil {
		return false, fmt.Errorf("register %s: %w", key, err)
	}
	var replaced []alert.Record
	if len(old) > 0 {
		log.Info().Int("old", len(old)).Int64("event_id", rec.EventID).Msg("replacing stored instances")
		if _, err := o.events.DeleteBatch(ctx, events.KeysOf(old)); err != nil {
			log.Error().Err(err).Msg("removing old instances failed")
		}
		for _, r := range old {
			if r.NotificationID != rec.NotificationID {
				replaced = append(replaced, r)
			}
		}
	}

	writeErr := o.events.Add(ctx, rec)
	if writeErr != nil {
		log.Warn().Err(writeErr).Stringer("key", key).Msg("add reported failure, verifying")
	}

	stored, ok, err := o.confirmRegistered(ctx, rec, nil)
	if err != nil {
		return false, fmt.Errorf("register %s: verify: %w", key, err)
	}
	o.observe("register", ok)
	if !ok {
		log.Error().Stringer("key", key).Bool("repeating", rec.IsRepeating).Int64("alert_time", rec.AlertTime).
			Msg("alert not stored as intended")
		return false, storage.NewError(storage.ErrCodeVerificationFailed, writeErr, "register %s", key)
	}

	log.Debug().Stringer("key", key).Int32("notification_id", stored.NotificationID).Msg("alert registered")
	if len(replaced) > 0 {
		o.emit(ctx, log, Change{Kind: ChangeDismissed, Records: replaced})
	}
	o.emit(ctx, log, Change{Kind: ChangeRegistered, Records: []alert.Record{stored}})
	return true, nil
}

// RegisterBatch is Register for many alerts, with the same outcome as
// registering them one by one in input order. Alerts of unhandled calendars
// are dropped before any write, and an alert superseded by a later one in
// the batch is never written. Each written alert gets a distinct status
// change stamp, one millisecond apart, in input order. It returns exactly
// the alerts whose storage state was confirmed.
func (o *Orchestrator) RegisterBatch(ctx context.Context, recs []alert.Record) ([]alert.Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	log := o.opLogger("register_batch")

	handled, filtered, err := o.handledCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("register batch: handled calendars: %w", err)
	}

	var toAdd []alert.Record
	for _, rec := range recs {
		if filtered && rec.CalendarID != UnknownCalendar && !handled[rec.CalendarID] {
			log.Info().Int64("calendar_id", rec.CalendarID).Stringer("key", rec.Key()).Msg("calendar is not handled")
			continue
		}
		toAdd = append(supersede(toAdd, rec), rec)
	}

	now := o.clock.NowMillis()
	for i := range toAdd {
		if toAdd[i].IsNotSpecial() {
			toAdd[i].LastStatusChangeTime = now
		}
		now++
	}

	seen := make(map[alert.Key]bool)
	var remove, replaced []alert.Record
	for i := range toAdd {
		old, err := o.storedRows(ctx, &toAdd[i])
		if err != nil {
			return nil, fmt.Errorf("register batch: %w", err)
		}
		for _, r := range old {
			if seen[r.Key()] {
				continue
			}
			seen[r.Key()] = true
			remove = append(remove, r)
			if r.NotificationID != toAdd[i].NotificationID {
				replaced = append(replaced, r)
			}
		}
	}

	if len(remove) > 0 {
		if _, err := o.events.DeleteBatch(ctx, events.KeysOf(remove)); err != nil {
			log.Error().Err(err).Msg("removing old instances failed")
		}
	}

	if len(toAdd) > 0 {
		if err := o.events.AddBatch(ctx, toAdd); err != nil {
			// The batch is atomic; fall back to one add per alert so a single
			// failure does not reject the rest.
			log.Warn().Err(err).Msg("batch add failed, adding one by one")
			for _, rec := range toAdd {
				if err := o.events.Add(ctx, rec); err != nil {
					log.Warn().Err(err).Stringer("key", rec.Key()).Msg("add reported failure")
				}
			}
		}
	}

	written := make(map[alert.Key]bool, len(toAdd))
	for _, rec := range toAdd {
		written[rec.Key()] = true
	}

	var accepted, confirmed []alert.Record
	for _, rec := range toAdd {
		stored, ok, err := o.confirmRegistered(ctx, rec, written)
		if err != nil {
			return accepted, fmt.Errorf("register batch: verify %s: %w", rec.Key(), err)
		}
		if !ok {
			log.Error().Stringer("key", rec.Key()).Msg("alert not stored as intended")
			continue
		}
		accepted = append(accepted, rec)
		confirmed = append(confirmed, stored)
	}
	o.observe("register_batch", len(accepted) == len(toAdd))
	if len(accepted) != len(toAdd) {
		log.Warn().Int("accepted", len(accepted)).Int("written", len(toAdd)).Msg("not every alert was registered")
	}

	o.emit(ctx, log, Change{Kind: ChangeDismissed, Records: replaced})
	o.emit(ctx, log, Change{Kind: ChangeRegistered, Records: confirmed})
	return accepted, nil
}

// supersede drops the entries of pending that registering rec would
// replace: every instance of its event when rec is non-repeating, otherwise
// the entry with the same key.
func supersede(pending []alert.Record, rec alert.Record) []alert.Record {
	out := pending[:0]
	for _, p := range pending {
		if p.Key() == rec.Key() || (!rec.IsRepeating && p.EventID == rec.EventID) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// storedRows returns the stored rows registering rec replaces. A record
// with the same key hands its notification id on to rec unless rec already
// carries one.
func (o *Orchestrator) storedRows(ctx context.Context, rec *alert.Record) ([]alert.Record, error) {
	var old []alert.Record
	if rec.IsRepeating {
		got, ok, err := o.events.Get(ctx, rec.Key())
		if err != nil {
			return nil, err
		}
		if ok {
			old = append(old, got)
		}
	} else {
		var err error
		if old, err = o.events.Instances(ctx, rec.EventID); err != nil {
			return nil, err
		}
	}
	for _, r := range old {
		if r.Key() == rec.Key() && rec.NotificationID == 0 {
			rec.NotificationID = r.NotificationID
		}
	}
	return old, nil
}

// confirmRegistered re-reads rec. The stored row must be the one just
// written and not snoozed. A non-repeating alert must also be the only
// instance of its event, apart from keys listed in written.
func (o *Orchestrator) confirmRegistered(ctx context.Context, rec alert.Record, written map[alert.Key]bool) (alert.Record, bool, error) {
	got, ok, err := o.events.Get(ctx, rec.Key())
	if err != nil || !ok {
		return alert.Record{}, false, err
	}
	if got.SnoozedUntil != 0 || got.AlertTime != rec.AlertTime ||
		got.LastStatusChangeTime != rec.LastStatusChangeTime || got.Title != rec.Title {
		return alert.Record{}, false, nil
	}
	if rec.IsRepeating {
		return got, true, nil
	}
	instances, err := o.events.Instances(ctx, rec.EventID)
	if err != nil {
		return alert.Record{}, false, err
	}
	for _, r := range instances {
		if r.Key() != rec.Key() && !written[r.Key()] {
			return alert.Record{}, false, nil
		}
	}
	return got, true, nil
}

func logKeys(ev *zerolog.Event, recs []alert.Record) *zerolog.Event {
	arr := zerolog.Arr()
	for _, r := range recs {
		arr.Str(r.Key().String())
	}
	return ev.Array("keys", arr)
}
