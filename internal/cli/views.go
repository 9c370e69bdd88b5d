package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/roach88/calnotify/internal/alert"
	"github.com/roach88/calnotify/internal/lifecycle"
	"github.com/roach88/calnotify/internal/notify"
)

// formatTime renders epoch milliseconds in UTC; 0 renders as "-".
func formatTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

func table(header string, rows [][]string) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, header)
	for _, r := range rows {
		fmt.Fprintln(w, strings.Join(r, "\t"))
	}
	w.Flush()
	return b.String()
}

type alertView struct {
	EventID        int64  `json:"event_id"`
	InstanceStart  int64  `json:"instance_start"`
	CalendarID     int64  `json:"calendar_id"`
	NotificationID int32  `json:"notification_id"`
	Title          string `json:"title"`
	Start          int64  `json:"start"`
	End            int64  `json:"end"`
	SnoozedUntil   int64  `json:"snoozed_until,omitempty"`
	Display        string `json:"display"`
	Muted          bool   `json:"muted,omitempty"`
	Alarm          bool   `json:"alarm,omitempty"`
	Task           bool   `json:"task,omitempty"`
	Repeating      bool   `json:"repeating,omitempty"`
}

func newAlertView(r alert.Record) alertView {
	return alertView{
		EventID:        r.EventID,
		InstanceStart:  r.InstanceStartTime,
		CalendarID:     r.CalendarID,
		NotificationID: r.NotificationID,
		Title:          r.Title,
		Start:          r.DisplayedStartTime(),
		End:            r.DisplayedEndTime(),
		SnoozedUntil:   r.SnoozedUntil,
		Display:        r.DisplayStatus.String(),
		Muted:          r.IsMuted(),
		Alarm:          r.IsAlarm(),
		Task:           r.IsTask(),
		Repeating:      r.IsRepeating,
	}
}

func (v alertView) flags() string {
	var f []string
	if v.Alarm {
		f = append(f, "alarm")
	}
	if v.Muted {
		f = append(f, "muted")
	}
	if v.Task {
		f = append(f, "task")
	}
	if v.Repeating {
		f = append(f, "repeating")
	}
	if len(f) == 0 {
		return "-"
	}
	return strings.Join(f, ",")
}

func (v alertView) row() []string {
	return []string{
		fmt.Sprint(v.EventID),
		fmt.Sprint(v.InstanceStart),
		fmt.Sprint(v.NotificationID),
		formatTime(v.Start),
		v.Display,
		formatTime(v.SnoozedUntil),
		v.flags(),
		v.Title,
	}
}

const alertHeader = "EVENT\tINSTANCE\tNOTIFICATION\tSTART\tDISPLAY\tSNOOZED UNTIL\tFLAGS\tTITLE"

func (v alertView) String() string {
	return table(alertHeader, [][]string{v.row()})
}

type alertList []alertView

func newAlertList(recs []alert.Record) alertList {
	out := make(alertList, len(recs))
	for i, r := range recs {
		out[i] = newAlertView(r)
	}
	return out
}

func (l alertList) String() string {
	if len(l) == 0 {
		return "No alerts.\n"
	}
	rows := make([][]string, len(l))
	for i, v := range l {
		rows[i] = v.row()
	}
	return table(alertHeader, rows)
}

type dismissedView struct {
	alertView
	DismissTime int64  `json:"dismiss_time"`
	DismissType string `json:"dismiss_type"`
	Restorable  bool   `json:"restorable"`
}

type dismissedList []dismissedView

func newDismissedList(entries []alert.DismissedRecord) dismissedList {
	out := make(dismissedList, len(entries))
	for i, e := range entries {
		out[i] = dismissedView{
			alertView:   newAlertView(e.Event),
			DismissTime: e.DismissTime,
			DismissType: e.DismissType.String(),
			Restorable:  e.DismissType.CanBeRestored(),
		}
	}
	return out
}

func (l dismissedList) String() string {
	if len(l) == 0 {
		return "No dismissed alerts.\n"
	}
	rows := make([][]string, len(l))
	for i, v := range l {
		rows[i] = []string{
			fmt.Sprint(v.EventID),
			fmt.Sprint(v.InstanceStart),
			formatTime(v.DismissTime),
			v.DismissType,
			fmt.Sprint(v.Restorable),
			v.Title,
		}
	}
	return table("EVENT\tINSTANCE\tDISMISSED\tTYPE\tRESTORABLE\tTITLE", rows)
}

type dismissReportList []dismissReportView

type dismissReportView struct {
	EventID       int64  `json:"event_id"`
	InstanceStart int64  `json:"instance_start,omitempty"`
	Result        string `json:"result"`
}

func (l dismissReportList) String() string {
	rows := make([][]string, len(l))
	for i, v := range l {
		rows[i] = []string{fmt.Sprint(v.EventID), v.Result}
	}
	return table("EVENT\tRESULT", rows)
}

func (l dismissReportList) failed() int {
	n := 0
	for _, v := range l {
		if v.Result != alert.DismissSuccess.String() {
			n++
		}
	}
	return n
}

type snoozeView struct {
	Type         string `json:"type"`
	SnoozedUntil int64  `json:"snoozed_until"`
	QuietUntil   int64  `json:"quiet_until,omitempty"`
}

func newSnoozeView(r *lifecycle.SnoozeResult) snoozeView {
	return snoozeView{Type: r.Type.String(), SnoozedUntil: r.SnoozedUntil, QuietUntil: r.QuietUntil}
}

func (v snoozeView) String() string {
	s := fmt.Sprintf("%s until %s\n", v.Type, formatTime(v.SnoozedUntil))
	if v.QuietUntil != 0 {
		s += fmt.Sprintf("returns during quiet hours, silent until %s\n", formatTime(v.QuietUntil))
	}
	return s
}

type countView struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

func (v countView) String() string {
	return fmt.Sprintf("%s: %d\n", v.Action, v.Count)
}

type postView struct {
	NotificationID int32  `json:"notification_id"`
	EventID        int64  `json:"event_id,omitempty"`
	InstanceStart  int64  `json:"instance_start,omitempty"`
	Channel        string `json:"channel"`
	Sound          bool   `json:"sound"`
	Vibrate        bool   `json:"vibrate"`
	Title          string `json:"title"`
	Count          int    `json:"count"`
}

func newPostView(p notify.Post) postView {
	return postView{
		NotificationID: p.NotificationID,
		EventID:        p.Key.EventID,
		InstanceStart:  p.Key.InstanceStartTime,
		Channel:        p.Channel.ID(),
		Sound:          p.Sound,
		Vibrate:        p.Vibrate,
		Title:          p.Title,
		Count:          p.Count,
	}
}

type planView struct {
	Events           int        `json:"events"`
	HasAlarms        bool       `json:"has_alarms"`
	AllMuted         bool       `json:"all_muted"`
	HasNew           bool       `json:"has_new_triggering_event"`
	CollapsedChannel string     `json:"collapsed_channel"`
	Posts            []postView `json:"posts"`
	Summary          *postView  `json:"summary,omitempty"`
	NextWake         int64      `json:"next_wake,omitempty"`
}

func newPlanView(p notify.Plan) planView {
	v := planView{
		Events:           p.Context.EventCount(),
		HasAlarms:        p.Context.HasAlarms(),
		AllMuted:         p.Context.AllMuted(),
		HasNew:           p.Context.HasNewTriggeringEvent(),
		CollapsedChannel: p.Context.CollapsedChannel().ID(),
		Posts:            make([]postView, 0, len(p.Posts)),
		NextWake:         p.NextWake,
	}
	for _, post := range p.Posts {
		v.Posts = append(v.Posts, newPostView(post))
	}
	if p.Summary != nil {
		s := newPostView(*p.Summary)
		v.Summary = &s
	}
	return v
}

func (v planView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Active alerts: %d (alarms: %t, all muted: %t, new: %t)\n", v.Events, v.HasAlarms, v.AllMuted, v.HasNew)
	fmt.Fprintf(&b, "Collapsed channel: %s\n", v.CollapsedChannel)
	rows := make([][]string, 0, len(v.Posts)+1)
	for _, p := range v.Posts {
		rows = append(rows, []string{fmt.Sprint(p.NotificationID), fmt.Sprint(p.EventID), p.Channel, fmt.Sprint(p.Sound), p.Title})
	}
	if v.Summary != nil {
		rows = append(rows, []string{fmt.Sprint(v.Summary.NotificationID), "-", v.Summary.Channel, fmt.Sprint(v.Summary.Sound), v.Summary.Title})
	}
	if len(rows) > 0 {
		b.WriteString(table("NOTIFICATION\tEVENT\tCHANNEL\tSOUND\tTITLE", rows))
	}
	if v.NextWake != 0 {
		fmt.Fprintf(&b, "Next snooze return: %s\n", formatTime(v.NextWake))
	}
	return b.String()
}

type storeStatusView struct {
	Backend        string `json:"backend"`
	Database       string `json:"database"`
	Outcome        string `json:"outcome"`
	Records        int    `json:"records"`
	MigrationError string `json:"migration_error,omitempty"`
}

type statusView struct {
	Dir       string          `json:"dir"`
	StateFile string          `json:"state_file"`
	Events    storeStatusView `json:"events"`
	Dismissed storeStatusView `json:"dismissed"`
	Calendars int             `json:"calendars"`
	Handled   []int64         `json:"handled_calendars"`
}

func (v statusView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Storage dir: %s\n", v.Dir)
	fmt.Fprintf(&b, "State file:  %s\n", v.StateFile)
	rows := [][]string{
		{"events", v.Events.Backend, v.Events.Database, v.Events.Outcome, fmt.Sprint(v.Events.Records)},
		{"dismissed", v.Dismissed.Backend, v.Dismissed.Database, v.Dismissed.Outcome, fmt.Sprint(v.Dismissed.Records)},
	}
	b.WriteString(table("DATASET\tBACKEND\tDATABASE\tOUTCOME\tRECORDS", rows))
	if v.Events.MigrationError != "" {
		fmt.Fprintf(&b, "events migration error: %s\n", v.Events.MigrationError)
	}
	if v.Dismissed.MigrationError != "" {
		fmt.Fprintf(&b, "dismissed migration error: %s\n", v.Dismissed.MigrationError)
	}
	fmt.Fprintf(&b, "Calendars: %d (handled: %v)\n", v.Calendars, v.Handled)
	return b.String()
}

type moveView struct {
	EventID    int64 `json:"event_id"`
	NewEventID int64 `json:"new_event_id"`
}

func (v moveView) String() string {
	if v.NewEventID != v.EventID {
		return fmt.Sprintf("event %d copied to event %d\n", v.EventID, v.NewEventID)
	}
	return fmt.Sprintf("event %d moved\n", v.EventID)
}
