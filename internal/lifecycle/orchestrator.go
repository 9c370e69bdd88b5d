// Package lifecycle performs the user- and calendar-driven operations on
// alerts: register, dismiss, snooze, mute, restore and move.
//
// Every operation writes first and then re-reads storage to confirm the
// outcome. The confirmation, never the write call's own result, decides what
// the caller is told. Downstream effects (notification recompute, alarm
// rescheduling) run only after a confirmed change.
//
// Thread-safety: mutating operations are serialized by the Orchestrator.
package lifecycle

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/calendar"
	"github.com/roach88/calnotify/internal/clock"
	"github.com/roach88/calnotify/internal/dismissed"
	"github.com/roach88/calnotify/internal/events"
	"github.com/roach88/calnotify/internal/quiet"
)

// ChangeKind names what an operation did.
type ChangeKind int

const (
	ChangeRegistered ChangeKind = iota
	ChangeDismissed
	ChangeSnoozed
	ChangeMuteToggled
	ChangeRestored
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeRegistered:
		return "registered"
	case ChangeDismissed:
		return "dismissed"
	case ChangeSnoozed:
		return "snoozed"
	case ChangeMuteToggled:
		return "mute_toggled"
	case ChangeRestored:
		return "restored"
	default:
		return "unknown"
	}
}

// Change describes a confirmed storage change.
type Change struct {
	Kind    ChangeKind
	Records []alert.Record
}

// Effects reacts to confirmed changes. notify.Manager is the production
// implementation.
type Effects interface {
	Apply(ctx context.Context, change Change) error
}

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	ObserveOperation(op string, ok bool)
}

// IDGenerator produces operation correlation ids.
type IDGenerator interface {
	NewID() string
}

// UUIDv7 generates time-sortable operation ids.
type UUIDv7 struct{}

// NewID implements IDGenerator.
func (UUIDv7) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

type nopEffects struct{}

func (nopEffects) Apply(context.Context, Change) error { return nil }

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, bool) {}

// Deps are the collaborators of an Orchestrator. Events and Archive are
// required; everything else has a harmless default.
type Deps struct {
	Events   events.Store
	Archive  dismissed.Archive
	Calendar calendar.Provider
	Clock    clock.Clock
	Quiet    quiet.Hours
	Effects  Effects
	Logger   zerolog.Logger
	IDs      IDGenerator
	Recorder Recorder
}

// Orchestrator runs lifecycle operations against the active stores.
type Orchestrator struct {
	mu sync.Mutex

	events   events.Store
	archive  dismissed.Archive
	calendar calendar.Provider
	clock    clock.Clock
	quiet    quiet.Hours
	effects  Effects
	logger   zerolog.Logger
	ids      IDGenerator
	recorder Recorder
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		events:   deps.Events,
		archive:  deps.Archive,
		calendar: deps.Calendar,
		clock:    deps.Clock,
		quiet:    deps.Quiet,
		effects:  deps.Effects,
		logger:   deps.Logger.With().Str("component", "lifecycle").Logger(),
		ids:      deps.IDs,
		recorder: deps.Recorder,
	}
	if o.clock == nil {
		o.clock = clock.System{}
	}
	if o.quiet == nil {
		o.quiet = quiet.None{}
	}
	if o.effects == nil {
		o.effects = nopEffects{}
	}
	if o.ids == nil {
		o.ids = UUIDv7{}
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	return o
}

// opLogger returns a logger tagged with a fresh operation id.
func (o *Orchestrator) opLogger(op string) zerolog.Logger {
	return o.logger.With().Str("op", o.ids.NewID()).Str("operation", op).Logger()
}

// emit runs effects for a confirmed change. Effect failures are logged; the
// storage change already happened and stays.
func (o *Orchestrator) emit(ctx context.Context, log zerolog.Logger, change Change) error {
	if len(change.Records) == 0 {
		return nil
	}
	if err := o.effects.Apply(ctx, change); err != nil {
		log.Error().Err(err).Str("change", change.Kind.String()).Msg("applying effects failed")
		return err
	}
	return nil
}

func (o *Orchestrator) observe(op string, ok bool) {
	o.recorder.ObserveOperation(op, ok)
}

// handledCalendars returns nil, false when every calendar is handled.
func (o *Orchestrator) handledCalendars(ctx context.Context) (map[int64]bool, bool, error) {
	if o.calendar == nil {
		return nil, false, nil
	}
	ids, err := o.calendar.HandledCalendars(ctx)
	if err != nil {
		return nil, false, err
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, true, nil
}
