package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/calnotify/internal/alert"
)

// DefaultMaxVisible is the default number of notifications on screen,
// counting the collapsed summary.
const DefaultMaxVisible = 8

// SummaryNotificationID is the fixed id of the collapsed summary. It sits
// below alert.NotificationIDFloor so it never collides with an alert.
const SummaryNotificationID int32 = 1

// Policy is the user-configurable part of planning.
type Policy struct {
	MaxVisible  int
	Mode        Mode
	MutePrimary bool
	Vibrate     bool
}

// Pass describes why a plan is computed.
type Pass struct {
	Now int64
	// Primary holds the alerts that triggered this pass.
	Primary map[alert.Key]bool
	// Force reposts everything quietly.
	Force bool
	// Reminder marks a periodic reminder pass.
	Reminder          bool
	QuietPeriodActive bool
}

// Post is one notification for the sink.
type Post struct {
	NotificationID int32
	// Key is zero for the summary post.
	Key     alert.Key
	Channel Channel
	Sound   bool
	Vibrate bool
	Title   string
	Body    string
	// Count is the number of alerts behind a summary post.
	Count int
}

// StatusUpdate is a display state change to write back to storage.
type StatusUpdate struct {
	Key           alert.Key
	DisplayStatus alert.DisplayStatus
	// ClearSnooze resets SnoozedUntil to 0.
	ClearSnooze bool
}

// Plan is the outcome of one planning pass.
type Plan struct {
	Context Context
	Posts   []Post
	Summary *Post
	// Cancel lists notifications of alerts that are no longer shown.
	Cancel  []int32
	Updates []StatusUpdate
	// NextWake is the earliest pending snooze return, or 0.
	NextWake int64
}

// Planner turns stored alerts into posts.
type Planner struct {
	policy Policy
}

// NewPlanner returns a Planner. A MaxVisible below 1 means DefaultMaxVisible.
func NewPlanner(policy Policy) Planner {
	if policy.MaxVisible < 1 {
		policy.MaxVisible = DefaultMaxVisible
	}
	return Planner{policy: policy}
}

// Policy returns the effective policy.
func (p Planner) Policy() Policy {
	return p.policy
}

// IsActive reports whether rec should be on screen at now: not snoozed, or
// its snooze return is due within AlarmThreshold.
func IsActive(rec alert.Record, now int64) bool {
	return rec.SnoozedUntil == 0 || rec.SnoozedUntil < now+alert.AlarmThreshold
}

// Plan computes posts for recs.
func (p Planner) Plan(recs []alert.Record, pass Pass) (Plan, error) {
	var active []alert.Record
	var plan Plan
	for _, r := range recs {
		if IsActive(r, pass.Now) {
			active = append(active, r)
			continue
		}
		if r.DisplayStatus != alert.Hidden {
			plan.Updates = append(plan.Updates, StatusUpdate{Key: r.Key(), DisplayStatus: alert.Hidden})
		}
		plan.Cancel = append(plan.Cancel, r.NotificationID)
		if plan.NextWake == 0 || r.SnoozedUntil < plan.NextWake {
			plan.NextWake = r.SnoozedUntil
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.DisplayedStartTime() != b.DisplayedStartTime() {
			return a.DisplayedStartTime() < b.DisplayedStartTime()
		}
		return a.LastStatusChangeTime < b.LastStatusChangeTime
	})

	ctx, err := FromAlerts(active, p.policy.Mode, pass.Reminder, pass.QuietPeriodActive)
	if err != nil {
		return Plan{}, err
	}
	plan.Context = ctx

	individual, collapsed := p.split(active)

	for _, r := range individual {
		plan.Posts = append(plan.Posts, p.post(r, ctx, pass))
		if r.DisplayStatus != alert.DisplayedNormal {
			plan.Updates = append(plan.Updates, StatusUpdate{Key: r.Key(), DisplayStatus: alert.DisplayedNormal})
		}
	}

	if len(collapsed) > 0 {
		summary, err := p.summary(collapsed, pass)
		if err != nil {
			return Plan{}, err
		}
		plan.Summary = &summary
		for _, r := range collapsed {
			plan.Cancel = append(plan.Cancel, r.NotificationID)
			if r.DisplayStatus != alert.DisplayedCollapsed || r.SnoozedUntil != 0 {
				plan.Updates = append(plan.Updates, StatusUpdate{
					Key:           r.Key(),
					DisplayStatus: alert.DisplayedCollapsed,
					ClearSnooze:   true,
				})
			}
		}
	}
	return plan, nil
}

// split returns the alerts posted individually and the ones collapsed into
// the summary. active must be sorted oldest first.
func (p Planner) split(active []alert.Record) (individual, collapsed []alert.Record) {
	switch p.policy.Mode {
	case ModeIndividual:
		return active, nil
	case ModeAllCollapsed:
		return nil, active
	}
	if len(active) <= p.policy.MaxVisible {
		return active, nil
	}
	cut := len(active) - (p.policy.MaxVisible - 1)
	return active[cut:], active[:cut]
}

func (p Planner) quiet(r alert.Record, ctx Context, pass Pass) bool {
	q := ShouldBeQuiet(QuietInput{
		Force:             pass.Force,
		AlreadyDisplayed:  r.DisplayStatus != alert.Hidden,
		QuietPeriodActive: pass.QuietPeriodActive,
		IsPrimary:         pass.Primary[r.Key()],
		MutePrimary:       p.policy.MutePrimary,
		IsAlarm:           r.IsAlarm() && !r.IsTask(),
		IsMuted:           r.IsMuted(),
	})
	return ReminderOverride(q, pass.Reminder, ctx.HasAlarms() && r.IsAlarm() && !r.IsTask(), r.IsMuted())
}

func (p Planner) post(r alert.Record, ctx Context, pass Pass) Post {
	sound := !p.quiet(r, ctx, pass)
	return Post{
		NotificationID: r.NotificationID,
		Key:            r.Key(),
		Channel:        ChannelFor(r.IsAlarm() && !r.IsTask(), r.IsMuted(), pass.Reminder || !r.IsNew()),
		Sound:          sound,
		Vibrate:        sound && p.policy.Vibrate,
		Title:          r.Title,
		Body:           body(r),
		Count:          1,
	}
}

func (p Planner) summary(collapsed []alert.Record, pass Pass) (Post, error) {
	ctx, err := FromAlerts(collapsed, p.policy.Mode, pass.Reminder, pass.QuietPeriodActive)
	if err != nil {
		return Post{}, err
	}
	sound := false
	titles := make([]string, 0, len(collapsed))
	for i := len(collapsed) - 1; i >= 0; i-- {
		r := collapsed[i]
		if !p.quiet(r, ctx, pass) {
			sound = true
		}
		titles = append(titles, r.Title)
	}
	return Post{
		NotificationID: SummaryNotificationID,
		Channel:        ctx.CollapsedChannel(),
		Sound:          sound,
		Vibrate:        sound && p.policy.Vibrate,
		Title:          fmt.Sprintf("%d more events", len(collapsed)),
		Body:           strings.Join(titles, "\n"),
		Count:          len(collapsed),
	}, nil
}

func body(r alert.Record) string {
	if r.Location == "" {
		return r.Description
	}
	if r.Description == "" {
		return r.Location
	}
	return r.Location + "\n" + r.Description
}
