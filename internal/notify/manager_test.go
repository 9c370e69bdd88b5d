package notify

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/calendar"
	"github.com/roach88/calnotify/internal/dismissed"
	"github.com/roach88/calnotify/internal/events"
	"github.com/roach88/calnotify/internal/lifecycle"
	"github.com/roach88/calnotify/internal/testutil"
)

type recordingAlarms struct {
	mu  sync.Mutex
	all []int64
}

func (a *recordingAlarms) Schedule(_ context.Context, at int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.all = append(a.all, at)
	return nil
}

func (a *recordingAlarms) last() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.all) == 0 {
		return -1
	}
	return a.all[len(a.all)-1]
}

type countingDecisions struct {
	mu    sync.Mutex
	count map[Channel]int
}

func (d *countingDecisions) ObserveDecision(c Channel, _ bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == nil {
		d.count = map[Channel]int{}
	}
	d.count[c]++
}

type failingSink struct{ *MemorySink }

func (*failingSink) Post(context.Context, Post) error { return errors.New("sink down") }

type managerFixture struct {
	manager   *Manager
	events    events.Store
	sink      *MemorySink
	alarms    *recordingAlarms
	decisions *countingDecisions
	clock     *testutil.FakeClock
}

func newManagerFixture(t *testing.T, policy Policy) *managerFixture {
	t.Helper()
	store, err := events.OpenLegacy(filepath.Join(t.TempDir(), "events.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &managerFixture{
		events:    store,
		sink:      NewMemorySink(),
		alarms:    &recordingAlarms{},
		decisions: &countingDecisions{},
		clock:     testutil.NewFakeClock(now),
	}
	f.manager = NewManager(ManagerDeps{
		Events:   store,
		Planner:  NewPlanner(policy),
		Sink:     f.sink,
		Alarms:   f.alarms,
		Clock:    f.clock,
		Logger:   zerolog.Nop(),
		Recorder: f.decisions,
	})
	return f
}

func (f *managerFixture) add(t *testing.T, recs ...alert.Record) []alert.Record {
	t.Helper()
	ctx := context.Background()
	out := make([]alert.Record, len(recs))
	for i, r := range recs {
		require.NoError(t, f.events.Add(ctx, r))
		got, ok, err := f.events.Get(ctx, r.Key())
		require.NoError(t, err)
		require.True(t, ok)
		out[i] = got
	}
	return out
}

func (f *managerFixture) status(t *testing.T, key alert.Key) alert.Record {
	t.Helper()
	got, ok, err := f.events.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	return got
}

func TestManager_RefreshPostsAndWritesBack(t *testing.T) {
	f := newManagerFixture(t, Policy{})
	recs := f.add(t, records(3)...)

	plan, err := f.manager.Refresh(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, plan.Posts, 3)
	assert.Equal(t, 3, f.sink.Visible())
	for _, r := range recs {
		p, ok := f.sink.Shown(r.NotificationID)
		require.True(t, ok)
		assert.Equal(t, r.Key(), p.Key)
		assert.Equal(t, alert.DisplayedNormal, f.status(t, r.Key()).DisplayStatus)
	}
	assert.Equal(t, 3, f.decisions.count[Events])
	assert.Equal(t, int64(0), f.alarms.last())

	// A second pass reposts the same alerts quietly.
	plan, err = f.manager.Refresh(context.Background(), Options{})
	require.NoError(t, err)
	for _, p := range plan.Posts {
		assert.False(t, p.Sound)
		assert.Equal(t, Reminders, p.Channel)
	}
	assert.Empty(t, plan.Updates)
}

func TestManager_CollapsesAndClearsSnooze(t *testing.T) {
	f := newManagerFixture(t, Policy{MaxVisible: 2})
	in := records(3)
	in[0].SnoozedUntil = now - 5000
	recs := f.add(t, in...)

	plan, err := f.manager.Refresh(context.Background(), Options{})
	require.NoError(t, err)
	require.NotNil(t, plan.Summary)
	assert.Equal(t, 2, plan.Summary.Count)

	_, summaryShown := f.sink.Shown(SummaryNotificationID)
	assert.True(t, summaryShown)
	assert.Equal(t, 2, f.sink.Visible())

	first := f.status(t, recs[0].Key())
	assert.Equal(t, alert.DisplayedCollapsed, first.DisplayStatus)
	assert.Zero(t, first.SnoozedUntil)
}

func TestManager_SummaryCancelledWhenNoLongerNeeded(t *testing.T) {
	f := newManagerFixture(t, Policy{MaxVisible: 2})
	recs := f.add(t, records(3)...)
	ctx := context.Background()

	_, err := f.manager.Refresh(ctx, Options{})
	require.NoError(t, err)
	_, shown := f.sink.Shown(SummaryNotificationID)
	require.True(t, shown)

	_, err = f.events.Delete(ctx, recs[0].Key())
	require.NoError(t, err)
	_, err = f.manager.Refresh(ctx, Options{})
	require.NoError(t, err)
	_, shown = f.sink.Shown(SummaryNotificationID)
	assert.False(t, shown)
}

func TestManager_ApplySnoozedCancelsAndArmsAlarm(t *testing.T) {
	f := newManagerFixture(t, Policy{})
	recs := f.add(t, records(2)...)
	ctx := context.Background()
	_, err := f.manager.Refresh(ctx, Options{})
	require.NoError(t, err)

	until := now + testutil.Hour
	snoozed, err := f.events.Update(ctx, recs[0].Key(), events.Patch{SnoozedUntil: events.Ptr(until)})
	require.NoError(t, err)

	require.NoError(t, f.manager.Apply(ctx, lifecycle.Change{Kind: lifecycle.ChangeSnoozed, Records: []alert.Record{snoozed}}))

	_, shown := f.sink.Shown(recs[0].NotificationID)
	assert.False(t, shown)
	_, shown = f.sink.Shown(recs[1].NotificationID)
	assert.True(t, shown)
	assert.Equal(t, until, f.alarms.last())
	assert.Equal(t, alert.Hidden, f.status(t, recs[0].Key()).DisplayStatus)
}

func TestManager_Remind(t *testing.T) {
	f := newManagerFixture(t, Policy{})
	r := records(1)[0]
	r.Flags.Alarm = true
	r.DisplayStatus = alert.DisplayedNormal
	f.add(t, r)

	plan, err := f.manager.Remind(context.Background())
	require.NoError(t, err)
	require.Len(t, plan.Posts, 1)
	assert.Equal(t, AlarmReminders, plan.Posts[0].Channel)
	assert.True(t, plan.Posts[0].Sound)
}

func TestManager_SinkErrorsAreReturned(t *testing.T) {
	f := newManagerFixture(t, Policy{})
	f.add(t, records(1)...)
	f.manager.sink = &failingSink{NewMemorySink()}

	_, err := f.manager.Refresh(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Equal(t, alert.DisplayedNormal, f.status(t, records(1)[0].Key()).DisplayStatus)
}

func TestManager_DrivesLifecycle(t *testing.T) {
	f := newManagerFixture(t, Policy{})
	archive, err := dismissed.OpenModern(filepath.Join(t.TempDir(), "dismissed.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	orch := lifecycle.New(lifecycle.Deps{
		Events:  f.events,
		Archive: archive,
		Calendar: calendar.NewFixture(calendar.FixtureData{
			Calendars: []calendar.Calendar{{ID: 1, Name: "Work", Handled: true}},
		}),
		Clock:   f.clock,
		Effects: f.manager,
		Logger:  zerolog.Nop(),
	})
	ctx := context.Background()

	first := testutil.NewRecord(1, now)
	ok, err := orch.Register(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)

	second := testutil.NewRecord(2, now)
	second.Flags.Alarm = true
	ok, err = orch.Register(ctx, second)
	require.NoError(t, err)
	require.True(t, ok)

	posts := f.sink.Posts()
	require.Len(t, posts, 3)
	assert.True(t, posts[0].Sound)
	assert.Equal(t, first.Key(), posts[1].Key)
	assert.False(t, posts[1].Sound)
	assert.Equal(t, second.Key(), posts[2].Key)
	assert.Equal(t, Alarm, posts[2].Channel)
	assert.True(t, posts[2].Sound)

	stored := f.status(t, first.Key())
	res, err := orch.Snooze(ctx, first.Key(), testutil.Hour)
	require.NoError(t, err)
	require.NotNil(t, res)
	_, shown := f.sink.Shown(stored.NotificationID)
	assert.False(t, shown)
	assert.Equal(t, res.SnoozedUntil, f.alarms.last())

	latest := f.status(t, second.Key())
	ok, err = orch.Dismiss(ctx, latest, alert.ManuallyDismissedFromNotification)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, f.sink.Visible())
}
