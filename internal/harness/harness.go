package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/calendar"
	"github.com/roach88/calnotify/internal/dismissed"
	"github.com/roach88/calnotify/internal/events"
	"github.com/roach88/calnotify/internal/lifecycle"
	"github.com/roach88/calnotify/internal/maintenance"
	"github.com/roach88/calnotify/internal/notify"
	"github.com/roach88/calnotify/internal/quiet"
	"github.com/roach88/calnotify/internal/storage"
	"github.com/roach88/calnotify/internal/testutil"
)

// DefaultStart is the clock start of scenarios that do not set one.
const DefaultStart int64 = 1_700_000_000_000

// Harness is the scenario execution engine.
type Harness struct {
	events   *events.Facade
	archive  *dismissed.Facade
	calendar *calendar.Fixture
	orch     *lifecycle.Orchestrator
	manager  *notify.Manager
	clock    *testutil.FakeClock
	logger   zerolog.Logger
	result   *Result
}

// outcome is what an operation reports back to the trace.
type outcome struct {
	Case   string
	Result map[string]interface{}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh temporary directory for isolation.
// Execution flow:
// 1. Open the alert store and the archive
// 2. Wire the orchestrator, notification manager and fake clock
// 3. Execute setup steps
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, zerolog.Nop())
}

// RunWithLogger is Run with the given logger wired into every component.
func RunWithLogger(scenario *Scenario, logger zerolog.Logger) (*Result, error) {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "calnotify-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	h, cleanup, err := newHarness(ctx, scenario, dir, logger)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{Events: h.events, Archive: h.archive, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}
	return h.result, nil
}

func newHarness(ctx context.Context, scenario *Scenario, dir string, logger zerolog.Logger) (*Harness, func(), error) {
	state := storage.NewStateStore(filepath.Join(dir, "state.yaml"))
	ev, err := events.Open(ctx, events.Options{Dir: dir, State: state, Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open alert store: %w", err)
	}
	archive, err := dismissed.Open(ctx, dismissed.Options{Dir: dir, State: state, Logger: logger})
	if err != nil {
		ev.Close()
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	cleanup := func() {
		archive.Close()
		ev.Close()
	}

	hours, policy, err := scenarioPolicy(scenario)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	start := scenario.Start
	if start == 0 {
		start = DefaultStart
	}

	h := &Harness{
		events:   ev,
		archive:  archive,
		calendar: calendar.NewFixture(copyFixture(scenario.Calendar)),
		clock:    testutil.NewFakeClock(start),
		logger:   logger,
		result:   NewResult(),
	}
	h.manager = notify.NewManager(notify.ManagerDeps{
		Events:  ev,
		Planner: notify.NewPlanner(policy),
		Sink:    &traceSink{result: h.result},
		Quiet:   hours,
		Clock:   h.clock,
		Logger:  logger,
	})
	h.orch = lifecycle.New(lifecycle.Deps{
		Events:   ev,
		Archive:  archive,
		Calendar: h.calendar,
		Clock:    h.clock,
		Quiet:    hours,
		Effects:  h.manager,
		Logger:   logger,
		IDs:      testutil.NewSequentialIDs(""),
	})
	return h, cleanup, nil
}

func scenarioPolicy(s *Scenario) (quiet.Hours, notify.Policy, error) {
	mode, err := notify.ParseMode(s.Notifications.Mode)
	if err != nil {
		return nil, notify.Policy{}, fmt.Errorf("notifications.mode: %w", err)
	}
	policy := notify.Policy{
		MaxVisible:  s.Notifications.MaxVisible,
		Mode:        mode,
		MutePrimary: s.Notifications.MutePrimary,
		Vibrate:     true,
	}
	if s.QuietHours == nil {
		return quiet.None{}, policy, nil
	}
	d, err := quiet.ParseDaily(s.QuietHours.From, s.QuietHours.To, time.UTC)
	if err != nil {
		return nil, notify.Policy{}, fmt.Errorf("quiet_hours: %w", err)
	}
	return d, policy, nil
}

// copyFixture keeps calendar writes (moves, copies) out of the scenario.
func copyFixture(d calendar.FixtureData) calendar.FixtureData {
	return calendar.FixtureData{
		Calendars: append([]calendar.Calendar(nil), d.Calendars...),
		Events:    append([]calendar.Event(nil), d.Events...),
	}
}

// executeSetup runs all setup steps. Setup steps must not fail.
func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep) error {
	for i, step := range setup {
		h.result.AddInvocationTrace(step.Action, step.Args)
		out, err := h.invoke(ctx, step.Action, step.Args)
		if err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Action, err)
		}
		h.result.AddCompletionTrace(out.Case, out.Result)
		h.logger.Debug().Int("step", i).Str("action", step.Action).Str("case", out.Case).Msg("setup step completed")
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses against the
// outcome each operation actually produced.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) error {
	for i, step := range flow {
		h.result.AddInvocationTrace(step.Invoke, step.Args)
		out, err := h.invoke(ctx, step.Invoke, step.Args)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
		}
		h.result.AddCompletionTrace(out.Case, out.Result)

		if step.Expect != nil {
			if out.Case != step.Expect.Case {
				h.result.AddError(fmt.Sprintf("flow[%d] %s: expected case %q, got %q", i, step.Invoke, step.Expect.Case, out.Case))
			} else if !matchArgs(out.Result, step.Expect.Result) {
				h.result.AddError(fmt.Sprintf("flow[%d] %s: expected result %v, got %v", i, step.Invoke, step.Expect.Result, out.Result))
			}
		}
		h.logger.Debug().Int("step", i).Str("action", step.Invoke).Str("case", out.Case).Msg("flow step completed")
	}
	return nil
}

type operation func(h *Harness, ctx context.Context, args map[string]interface{}) (outcome, error)

var operations = map[string]operation{
	"register":      (*Harness).register,
	"dismiss":       (*Harness).dismiss,
	"dismiss_by_id": (*Harness).dismissByID,
	"dismiss_all":   (*Harness).dismissAll,
	"snooze":        (*Harness).snooze,
	"snooze_all":    (*Harness).snoozeAll,
	"mute":          (*Harness).mute,
	"mute_all":      (*Harness).muteAll,
	"restore":       (*Harness).restore,
	"move":          (*Harness).move,
	"refresh":       (*Harness).refresh,
	"advance":       (*Harness).advance,
	"purge":         (*Harness).purge,
}

func knownOperation(name string) bool {
	_, ok := operations[name]
	return ok
}

func (h *Harness) invoke(ctx context.Context, name string, args map[string]interface{}) (outcome, error) {
	op, ok := operations[name]
	if !ok {
		return outcome{}, fmt.Errorf("unknown operation %q", name)
	}
	return op(h, ctx, args)
}

func (h *Harness) register(ctx context.Context, args map[string]interface{}) (outcome, error) {
	id, err := requireInt(args, "event")
	if err != nil {
		return outcome{}, err
	}
	ev, ok, err := h.calendar.Event(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		return outcome{Case: "unknown_event"}, nil
	}

	rec := ev.Record(optInt(args, "alert_time", h.clock.NowMillis()))
	if start := optInt(args, "instance_start", 0); start != 0 {
		rec.InstanceEndTime = start + (rec.InstanceEndTime - rec.InstanceStartTime)
		rec.InstanceStartTime = start
	}
	rec.Flags.Alarm = optBool(args, "alarm", false)
	rec.Flags.Muted = optBool(args, "muted", false)
	rec.Flags.Task = optBool(args, "task", false)

	registered, err := h.orch.Register(ctx, rec)
	if err != nil {
		return outcome{}, err
	}
	if !registered {
		return outcome{Case: "not_handled"}, nil
	}
	stored, _, err := h.events.Get(ctx, rec.Key())
	if err != nil {
		return outcome{}, err
	}
	return outcome{Case: "registered", Result: map[string]interface{}{
		"notification_id": int64(stored.NotificationID),
		"instance_start":  stored.InstanceStartTime,
	}}, nil
}

// find returns the alert for args.event, narrowed by args.instance.
func (h *Harness) find(ctx context.Context, args map[string]interface{}) (alert.Record, bool, error) {
	id, err := requireInt(args, "event")
	if err != nil {
		return alert.Record{}, false, err
	}
	if instance := optInt(args, "instance", 0); instance != 0 {
		return h.events.Get(ctx, alert.Key{EventID: id, InstanceStartTime: instance})
	}
	recs, err := h.events.Instances(ctx, id)
	if err != nil || len(recs) == 0 {
		return alert.Record{}, false, err
	}
	return recs[0], true, nil
}

func dismissType(args map[string]interface{}) (alert.DismissType, error) {
	return alert.ParseDismissType(optInt(args, "type", int64(alert.ManuallyDismissedFromNotification)))
}

func (h *Harness) dismiss(ctx context.Context, args map[string]interface{}) (outcome, error) {
	dt, err := dismissType(args)
	if err != nil {
		return outcome{}, err
	}
	rec, ok, err := h.find(ctx, args)
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		return outcome{Case: "not_found"}, nil
	}
	ok, err = h.orch.Dismiss(ctx, rec, dt)
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		return outcome{Case: "not_dismissed"}, nil
	}
	return outcome{Case: "dismissed"}, nil
}

func (h *Harness) dismissByID(ctx context.Context, args map[string]interface{}) (outcome, error) {
	dt, err := dismissType(args)
	if err != nil {
		return outcome{}, err
	}
	ids, err := requireInts(args, "events")
	if err != nil {
		return outcome{}, err
	}
	reports := h.orch.SafeDismissByID(ctx, ids, dt)
	results := make([]interface{}, len(reports))
	for i, r := range reports {
		results[i] = r.Result.String()
	}
	return outcome{Case: "reported", Result: map[string]interface{}{"results": results}}, nil
}

func (h *Harness) dismissAll(ctx context.Context, args map[string]interface{}) (outcome, error) {
	dt, err := dismissType(args)
	if err != nil {
		return outcome{}, err
	}
	n, err := h.orch.DismissAllButRecentAndSnoozed(ctx, dt)
	if err != nil {
		return outcome{}, err
	}
	return outcome{Case: "dismissed", Result: map[string]interface{}{"count": int64(n)}}, nil
}

func snoozed(res *lifecycle.SnoozeResult) outcome {
	return outcome{Case: res.Type.String(), Result: map[string]interface{}{
		"snoozed_until": res.SnoozedUntil,
		"quiet_until":   res.QuietUntil,
	}}
}

func (h *Harness) snooze(ctx context.Context, args map[string]interface{}) (outcome, error) {
	delay, err := requireInt(args, "delay")
	if err != nil {
		return outcome{}, err
	}
	rec, ok, err := h.find(ctx, args)
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		return outcome{Case: "not_found"}, nil
	}
	res, err := h.orch.Snooze(ctx, rec.Key(), delay)
	if err != nil {
		return outcome{}, err
	}
	if res == nil {
		return outcome{Case: "not_found"}, nil
	}
	return snoozed(res), nil
}

func (h *Harness) snoozeAll(ctx context.Context, args map[string]interface{}) (outcome, error) {
	delay, err := requireInt(args, "delay")
	if err != nil {
		return outcome{}, err
	}
	change := optBool(args, "change", false)
	onlyVisible := optBool(args, "only_visible", false)

	var res *lifecycle.SnoozeResult
	if optBool(args, "collapsed", false) {
		res, err = h.orch.SnoozeAllCollapsed(ctx, delay, change, onlyVisible)
	} else {
		res, err = h.orch.SnoozeAll(ctx, lifecycle.SnoozeAllOptions{
			Delay:             delay,
			IsChange:          change,
			OnlySnoozeVisible: onlyVisible,
			Search:            optString(args, "search", ""),
		})
	}
	if err != nil {
		return outcome{}, err
	}
	if res == nil {
		return outcome{Case: "none"}, nil
	}
	return snoozed(res), nil
}

func (h *Harness) mute(ctx context.Context, args map[string]interface{}) (outcome, error) {
	rec, ok, err := h.find(ctx, args)
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		return outcome{Case: "not_found"}, nil
	}
	muted := optBool(args, "muted", true)
	changed, err := h.orch.Mute(ctx, rec.Key(), muted)
	if err != nil {
		return outcome{}, err
	}
	switch {
	case !changed:
		return outcome{Case: "not_found"}, nil
	case muted:
		return outcome{Case: "muted"}, nil
	default:
		return outcome{Case: "unmuted"}, nil
	}
}

func (h *Harness) muteAll(ctx context.Context, _ map[string]interface{}) (outcome, error) {
	n, err := h.orch.MuteAllVisible(ctx)
	if err != nil {
		return outcome{}, err
	}
	return outcome{Case: "muted", Result: map[string]interface{}{"count": int64(n)}}, nil
}

func (h *Harness) restore(ctx context.Context, args map[string]interface{}) (outcome, error) {
	id, err := requireInt(args, "event")
	if err != nil {
		return outcome{}, err
	}
	entries, err := h.archive.ForDisplay(ctx)
	if err != nil {
		return outcome{}, err
	}
	instance := optInt(args, "instance", 0)
	for _, e := range entries {
		if e.Event.EventID != id || (instance != 0 && e.Event.InstanceStartTime != instance) {
			continue
		}
		rec, err := h.orch.Restore(ctx, e)
		if errors.Is(err, lifecycle.ErrNotRestorable) {
			return outcome{Case: "not_restorable"}, nil
		}
		if err != nil {
			return outcome{}, err
		}
		return outcome{Case: "restored", Result: map[string]interface{}{
			"notification_id": int64(rec.NotificationID),
			"calendar_id":     rec.CalendarID,
		}}, nil
	}
	return outcome{Case: "not_found"}, nil
}

func (h *Harness) move(ctx context.Context, args map[string]interface{}) (outcome, error) {
	by, err := requireInt(args, "by")
	if err != nil {
		return outcome{}, err
	}
	rec, ok, err := h.find(ctx, args)
	if err != nil {
		return outcome{}, err
	}
	if !ok {
		return outcome{Case: "not_found"}, nil
	}

	newID := rec.EventID
	var moved bool
	if copyTo := optInt(args, "copy_to", 0); copyTo != 0 {
		newID, moved, err = h.orch.MoveAsCopy(ctx, copyTo, rec, by)
	} else {
		moved, err = h.orch.Move(ctx, rec, by)
	}
	if err != nil {
		return outcome{}, err
	}
	if !moved {
		return outcome{Case: "not_moved"}, nil
	}
	return outcome{Case: "moved", Result: map[string]interface{}{"new_event_id": newID}}, nil
}

func (h *Harness) refresh(ctx context.Context, args map[string]interface{}) (outcome, error) {
	plan, err := h.manager.Refresh(ctx, notify.Options{
		Reminder: optBool(args, "reminder", false),
		Force:    optBool(args, "force", false),
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{Case: "planned", Result: map[string]interface{}{
		"posts":     int64(len(plan.Posts)),
		"summary":   plan.Summary != nil,
		"next_wake": plan.NextWake,
	}}, nil
}

func (h *Harness) advance(_ context.Context, args map[string]interface{}) (outcome, error) {
	ms, err := requireInt(args, "ms")
	if err != nil {
		return outcome{}, err
	}
	return outcome{Case: "advanced", Result: map[string]interface{}{"now": h.clock.Advance(ms)}}, nil
}

func (h *Harness) purge(ctx context.Context, args map[string]interface{}) (outcome, error) {
	maxAge, err := requireInt(args, "max_age")
	if err != nil {
		return outcome{}, err
	}
	p := &maintenance.Pruner{
		Archive: h.archive,
		Clock:   h.clock,
		MaxAge:  time.Duration(maxAge) * time.Millisecond,
		Logger:  h.logger,
	}
	n, err := p.Purge(ctx)
	if err != nil {
		return outcome{}, err
	}
	return outcome{Case: "purged", Result: map[string]interface{}{"count": int64(n)}}, nil
}

// traceSink records every sink call in the trace.
type traceSink struct {
	result *Result
}

func (s *traceSink) Post(_ context.Context, p notify.Post) error {
	args := map[string]interface{}{
		"notification_id": int64(p.NotificationID),
		"channel":         p.Channel.ID(),
		"sound":           p.Sound,
	}
	if p.Key.EventID != 0 {
		args["event_id"] = p.Key.EventID
	} else {
		args["count"] = int64(p.Count)
	}
	s.result.AddNotificationTrace("post", args)
	return nil
}

func (s *traceSink) Cancel(_ context.Context, id int32) error {
	s.result.AddNotificationTrace("cancel", map[string]interface{}{"notification_id": int64(id)})
	return nil
}
