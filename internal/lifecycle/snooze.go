package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/events"
	"github.com/roach88/calnotify/internal/storage"
)

// SnoozeType says what a snooze did.
type SnoozeType int

const (
	Snoozed SnoozeType = iota
	Moved
)

func (t SnoozeType) String() string {
	if t == Moved {
		return "moved"
	}
	return "snoozed"
}

// SnoozeResult reports a confirmed snooze.
type SnoozeResult struct {
	Type         SnoozeType
	SnoozedUntil int64
	// QuietUntil is the end of the quiet period the snooze returns into, or
	// 0 when it returns outside quiet hours.
	QuietUntil int64
}

// SnoozeUntil computes the snooze return time for rec at now. A positive
// delay counts from now; zero or negative delay counts back from the
// displayed start. A time within AlarmThreshold of now (or earlier) becomes
// a FallbackShortSnooze from now.
func SnoozeUntil(rec alert.Record, now, delay int64) int64 {
	var until int64
	if delay > 0 {
		until = now + delay
	} else {
		if delay < 0 {
			delay = -delay
		}
		until = rec.DisplayedStartTime() - delay
	}
	if until < now+alert.AlarmThreshold {
		until = now + alert.FallbackShortSnooze
	}
	return until
}

// Snooze snoozes one alert. It returns nil when the alert does not exist,
// and a VERIFICATION_FAILED error when the re-read does not show the new
// return time.
// Quiet hours are not consulted when choosing the return time; they are
// only reported in the result.
func (o *Orchestrator) Snooze(ctx context.Context, key alert.Key, delay int64) (*SnoozeResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	log := o.opLogger("snooze")
	rec, ok, err := o.events.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("snooze %s: %w", key, err)
	}
	if !ok {
		log.Info().Stringer("key", key).Msg("nothing to snooze")
		o.observe("snooze", false)
		return nil, nil
	}

	now := o.clock.NowMillis()
	until := SnoozeUntil(rec, now, delay)
	if delay <= 0 && until == now+alert.FallbackShortSnooze {
		log.Warn().Stringer("key", key).Int64("delay", delay).Msg("snooze time is in the past, using short snooze")
	}

	_, err = o.events.Update(ctx, key, events.Patch{
		SnoozedUntil:         events.Ptr(until),
		LastStatusChangeTime: events.Ptr(now),
		DisplayStatus:        events.Ptr(alert.Hidden),
	})
	if storage.IsNotFound(err) {
		o.observe("snooze", false)
		return nil, nil
	}
	if err != nil {
		o.observe("snooze", false)
		return nil, fmt.Errorf("snooze %s: %w", key, err)
	}

	updated, ok, err := o.events.Get(ctx, key)
	if err != nil {
		o.observe("snooze", false)
		return nil, fmt.Errorf("snooze %s: verify: %w", key, err)
	}
	if !ok || updated.SnoozedUntil != until {
		o.observe("snooze", false)
		log.Error().Stringer("key", key).Int64("until", until).Msg("snooze not stored")
		return nil, storage.NewError(storage.ErrCodeVerificationFailed, nil, "snooze %s", key)
	}

	o.observe("snooze", true)
	o.emit(ctx, log, Change{Kind: ChangeSnoozed, Records: []alert.Record{updated}})

	res := &SnoozeResult{
		Type:         Snoozed,
		SnoozedUntil: updated.SnoozedUntil,
		QuietUntil:   o.quiet.SilentUntil(updated.SnoozedUntil),
	}
	log.Info().Stringer("key", key).Int64("delay", delay).Int64("until", res.SnoozedUntil).
		Int64("quiet_until", res.QuietUntil).Msg("snoozed")
	return res, nil
}

// SnoozeAllOptions configures SnoozeAll.
type SnoozeAllOptions struct {
	Delay int64
	// IsChange re-snoozes alerts that are already snoozed further out.
	IsChange bool
	// OnlySnoozeVisible leaves every already snoozed alert alone.
	OnlySnoozeVisible bool
	// Search, when set, limits the snooze to alerts whose title or
	// description contains it, ignoring case.
	Search string
}

// SnoozeAll snoozes every non-special alert matching opts. Return times are
// staggered by one millisecond per alert so their order stays stable. It
// returns nil when nothing was snoozed or a write failed.
func (o *Orchestrator) SnoozeAll(ctx context.Context, opts SnoozeAllOptions) (*SnoozeResult, error) {
	match := func(alert.Record) bool { return true }
	if opts.Search != "" {
		fold := cases.Fold()
		query := fold.String(opts.Search)
		match = func(r alert.Record) bool {
			return strings.Contains(fold.String(r.Title), query) ||
				strings.Contains(fold.String(r.Description), query)
		}
	}
	return o.snoozeWhere(ctx, "snooze_all", match, opts)
}

// SnoozeAllCollapsed is SnoozeAll restricted to collapsed alerts.
func (o *Orchestrator) SnoozeAllCollapsed(ctx context.Context, delay int64, isChange, onlySnoozeVisible bool) (*SnoozeResult, error) {
	return o.snoozeWhere(ctx, "snooze_all_collapsed", func(r alert.Record) bool {
		return r.DisplayStatus == alert.DisplayedCollapsed
	}, SnoozeAllOptions{Delay: delay, IsChange: isChange, OnlySnoozeVisible: onlySnoozeVisible})
}

func (o *Orchestrator) snoozeWhere(ctx context.Context, op string, match func(alert.Record) bool, opts SnoozeAllOptions) (*SnoozeResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	log := o.opLogger(op)
	all, err := o.events.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := o.clock.NowMillis()
	var (
		snoozed    []alert.Record
		lastUntil  int64
		allSuccess = true
		adjust     int64
	)
	for _, r := range all {
		if r.IsSpecial() || !match(r) {
			continue
		}
		until := now + opts.Delay + adjust

		var apply bool
		if opts.OnlySnoozeVisible {
			apply = r.SnoozedUntil == 0
		} else {
			apply = opts.IsChange || r.SnoozedUntil == 0 || r.SnoozedUntil < until
		}
		if !apply {
			continue
		}

		updated, err := o.events.Update(ctx, r.Key(), events.Patch{
			SnoozedUntil:         events.Ptr(until),
			LastStatusChangeTime: events.Ptr(now),
			DisplayStatus:        events.Ptr(alert.Hidden),
		})
		if err != nil {
			log.Error().Err(err).Stringer("key", r.Key()).Msg("snooze failed")
			allSuccess = false
			continue
		}
		snoozed = append(snoozed, updated)
		adjust++
		lastUntil = until
	}

	o.emit(ctx, log, Change{Kind: ChangeSnoozed, Records: snoozed})

	ok := allSuccess && lastUntil != 0
	o.observe(op, ok)
	if !ok {
		log.Info().Int64("delay", opts.Delay).Int("snoozed", len(snoozed)).Msg("snooze all did not complete")
		return nil, nil
	}
	res := &SnoozeResult{Type: Snoozed, SnoozedUntil: lastUntil, QuietUntil: o.quiet.SilentUntil(lastUntil)}
	log.Info().Int64("delay", opts.Delay).Int("snoozed", len(snoozed)).Int64("until", lastUntil).Msg("snoozed all")
	return res, nil
}

// Mute sets or clears the muted flag of one alert. It returns false when
// the alert does not exist or the re-read does not show the new flag.
func (o *Orchestrator) Mute(ctx context.Context, key alert.Key, muted bool) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	log := o.opLogger("mute")
	if _, err := o.events.Update(ctx, key, events.Patch{Muted: events.Ptr(muted)}); err != nil {
		o.observe("mute", false)
		if storage.IsNotFound(err) {
			log.Info().Stringer("key", key).Msg("nothing to mute")
			return false, nil
		}
		return false, fmt.Errorf("mute %s: %w", key, err)
	}

	updated, found, err := o.events.Get(ctx, key)
	if err != nil {
		o.observe("mute", false)
		return false, fmt.Errorf("mute %s: verify: %w", key, err)
	}
	ok := found && updated.IsMuted() == muted
	o.observe("mute", ok)
	if !ok {
		log.Error().Stringer("key", key).Bool("muted", muted).Msg("mute not stored")
		return false, nil
	}
	o.emit(ctx, log, Change{Kind: ChangeMuteToggled, Records: []alert.Record{updated}})
	log.Info().Stringer("key", key).Bool("muted", muted).Msg("mute toggled")
	return true, nil
}

// MuteAllVisible mutes every alert that is not snoozed, not special and not
// a task. It returns the number muted.
func (o *Orchestrator) MuteAllVisible(ctx context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	log := o.opLogger("mute_all")
	all, err := o.events.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("mute all: %w", err)
	}

	var muted []alert.Record
	for _, r := range all {
		if r.SnoozedUntil != 0 || r.IsSpecial() || r.IsTask() {
			continue
		}
		updated, err := o.events.Update(ctx, r.Key(), events.Patch{Muted: events.Ptr(true)})
		if err != nil {
			log.Error().Err(err).Stringer("key", r.Key()).Msg("mute failed")
			continue
		}
		muted = append(muted, updated)
	}
	o.observe("mute_all", true)
	o.emit(ctx, log, Change{Kind: ChangeMuteToggled, Records: muted})
	return len(muted), nil
}
