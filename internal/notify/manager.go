package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/clock"
	"github.com/roach88/calnotify/internal/events"
	"github.com/roach88/calnotify/internal/lifecycle"
	"github.com/roach88/calnotify/internal/quiet"
)

// Sink presents notifications.
type Sink interface {
	Post(ctx context.Context, post Post) error
	Cancel(ctx context.Context, notificationID int32) error
}

// AlarmScheduler arms the next wake-up for snooze returns.
type AlarmScheduler interface {
	// Schedule arms a wake-up at epoch milliseconds at; 0 disarms.
	Schedule(ctx context.Context, at int64) error
}

// DecisionRecorder observes the posts of each pass.
type DecisionRecorder interface {
	ObserveDecision(channel Channel, sound bool)
}

// ManagerDeps are the collaborators of a Manager. Events is required.
type ManagerDeps struct {
	Events   events.Store
	Planner  Planner
	Sink     Sink
	Alarms   AlarmScheduler
	Quiet    quiet.Hours
	Clock    clock.Clock
	Logger   zerolog.Logger
	Recorder DecisionRecorder
}

// Manager recomputes notifications after lifecycle changes. It implements
// lifecycle.Effects.
type Manager struct {
	mu       sync.Mutex
	events   events.Store
	planner  Planner
	sink     Sink
	alarms   AlarmScheduler
	quiet    quiet.Hours
	clock    clock.Clock
	logger   zerolog.Logger
	recorder DecisionRecorder
}

// NewManager creates a Manager.
func NewManager(deps ManagerDeps) *Manager {
	m := &Manager{
		events:   deps.Events,
		planner:  deps.Planner,
		sink:     deps.Sink,
		alarms:   deps.Alarms,
		quiet:    deps.Quiet,
		clock:    deps.Clock,
		logger:   deps.Logger.With().Str("component", "notify").Logger(),
		recorder: deps.Recorder,
	}
	if m.planner.policy.MaxVisible == 0 {
		m.planner = NewPlanner(m.planner.policy)
	}
	if m.sink == nil {
		m.sink = NewLogSink(m.logger)
	}
	if m.alarms == nil {
		m.alarms = noAlarms{}
	}
	if m.quiet == nil {
		m.quiet = quiet.None{}
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	return m
}

// Options selects the kind of pass Refresh runs.
type Options struct {
	Primary  []alert.Key
	Force    bool
	Reminder bool
}

// Apply implements lifecycle.Effects.
func (m *Manager) Apply(ctx context.Context, change lifecycle.Change) error {
	var errs []error
	var opts Options
	switch change.Kind {
	case lifecycle.ChangeDismissed, lifecycle.ChangeSnoozed:
		for _, r := range change.Records {
			if err := m.sink.Cancel(ctx, r.NotificationID); err != nil {
				errs = append(errs, fmt.Errorf("cancel %d: %w", r.NotificationID, err))
			}
		}
	case lifecycle.ChangeRegistered:
		for _, r := range change.Records {
			opts.Primary = append(opts.Primary, r.Key())
		}
	}
	if _, err := m.Refresh(ctx, opts); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Remind runs a periodic reminder pass.
func (m *Manager) Remind(ctx context.Context) (Plan, error) {
	return m.Refresh(ctx, Options{Reminder: true})
}

// Refresh plans notifications for every stored alert, hands the plan to
// the sink, writes display states back and re-arms the wake-up alarm.
func (m *Manager) Refresh(ctx context.Context, opts Options) (Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.events.All(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("refresh notifications: %w", err)
	}

	now := m.clock.NowMillis()
	pass := Pass{
		Now:               now,
		Force:             opts.Force,
		Reminder:          opts.Reminder,
		QuietPeriodActive: m.quiet.SilentUntil(now) != 0,
	}
	if len(opts.Primary) > 0 {
		pass.Primary = make(map[alert.Key]bool, len(opts.Primary))
		for _, k := range opts.Primary {
			pass.Primary[k] = true
		}
	}

	plan, err := m.planner.Plan(all, pass)
	if err != nil {
		return Plan{}, fmt.Errorf("refresh notifications: %w", err)
	}

	var errs []error
	for _, id := range plan.Cancel {
		if err := m.sink.Cancel(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("cancel %d: %w", id, err))
		}
	}
	for _, p := range plan.Posts {
		if err := m.sink.Post(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("post %s: %w", p.Key, err))
		}
		m.observe(p)
	}
	if plan.Summary != nil {
		if err := m.sink.Post(ctx, *plan.Summary); err != nil {
			errs = append(errs, fmt.Errorf("post summary: %w", err))
		}
		m.observe(*plan.Summary)
	} else if err := m.sink.Cancel(ctx, SummaryNotificationID); err != nil {
		errs = append(errs, fmt.Errorf("cancel summary: %w", err))
	}

	for _, u := range plan.Updates {
		patch := events.Patch{DisplayStatus: events.Ptr(u.DisplayStatus)}
		if u.ClearSnooze {
			patch.SnoozedUntil = events.Ptr(int64(0))
		}
		if _, err := m.events.Update(ctx, u.Key, patch); err != nil {
			errs = append(errs, fmt.Errorf("update %s: %w", u.Key, err))
		}
	}

	if err := m.alarms.Schedule(ctx, plan.NextWake); err != nil {
		errs = append(errs, fmt.Errorf("schedule wake-up: %w", err))
	}

	m.logger.Debug().
		Int("posts", len(plan.Posts)).
		Bool("summary", plan.Summary != nil).
		Stringer("channel", plan.Context.CollapsedChannel()).
		Int64("next_wake", plan.NextWake).
		Msg("notifications refreshed")
	return plan, errors.Join(errs...)
}

func (m *Manager) observe(p Post) {
	if m.recorder != nil {
		m.recorder.ObserveDecision(p.Channel, p.Sound)
	}
}

type noAlarms struct{}

func (noAlarms) Schedule(context.Context, int64) error { return nil }

var _ lifecycle.Effects = (*Manager)(nil)
