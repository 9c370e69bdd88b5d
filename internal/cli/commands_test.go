package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const calendarFixture = `calendars:
  - id: 1
    account_name: me@local
    account_type: local
    owner_account: me@local
    display_name: Work
    name: Work
    handled: true
  - id: 2
    account_name: me@local
    account_type: local
    owner_account: me@local
    display_name: Private
    name: Private
events:
  - id: 42
    calendar: 1
    title: Standup
    start: 1700038800000
    end: 1700040600000
  - id: 43
    calendar: 1
    title: Review
    start: 1700042400000
    end: 1700046000000
  - id: 50
    calendar: 2
    title: Dentist
    start: 1700042400000
    end: 1700046000000
`

type cliEnv struct {
	t      *testing.T
	config string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	fixture := filepath.Join(dir, "calendar.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(calendarFixture), 0o644))

	config := filepath.Join(dir, "calnotify.yaml")
	conf := "storage:\n  dir: " + filepath.Join(dir, "data") + "\n" +
		"logger:\n  level: debug\n" +
		"calendar:\n  fixture: " + fixture + "\n"
	require.NoError(t, os.WriteFile(config, []byte(conf), 0o644))
	return &cliEnv{t: t, config: config}
}

// run executes the command tree and returns stdout and the exit code.
func (e *cliEnv) run(args ...string) (string, int) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(&RootOptions{}, append([]string{"--config", e.config}, args...), &stdout, &stderr)
	return stdout.String(), code
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, code := e.run(args...)
	require.Equal(e.t, ExitSuccess, code, out)
	return out
}

func decodeData(t *testing.T, out string, v interface{}) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func decodeError(t *testing.T, out string) CLIError {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func TestList_Golden(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "42", "--alert-time", "1700037000000")
	env.mustRun("register", "43", "--alert-time", "1700037000000", "--alarm")

	out := env.mustRun("list")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "list", []byte(out))
}

func TestList_Empty(t *testing.T) {
	env := newCLIEnv(t)
	assert.Equal(t, "No alerts.\n", env.mustRun("list"))
}

func TestRegister(t *testing.T) {
	env := newCLIEnv(t)

	var v alertView
	decodeData(t, env.mustRun("--format", "json", "register", "42", "--alert-time", "1700037000000"), &v)
	assert.Equal(t, int64(42), v.EventID)
	assert.Equal(t, int64(1700038800000), v.InstanceStart)
	assert.Equal(t, int32(10001), v.NotificationID)
	assert.Equal(t, "displayed", v.Display)

	t.Run("unknown event", func(t *testing.T) {
		out, code := env.run("--format", "json", "register", "999")
		assert.Equal(t, ExitFailure, code)
		assert.Equal(t, ErrCodeNotFound, decodeError(t, out).Code)
	})

	t.Run("unhandled calendar", func(t *testing.T) {
		out, code := env.run("--format", "json", "register", "50")
		assert.Equal(t, ExitFailure, code)
		assert.Equal(t, ErrCodeNotApplied, decodeError(t, out).Code)
	})

	t.Run("bad event id", func(t *testing.T) {
		out, code := env.run("--format", "json", "register", "abc")
		assert.Equal(t, ExitCommandError, code)
		assert.Equal(t, ErrCodeBadArgument, decodeError(t, out).Code)
	})
}

func TestDismissAndRestore(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "42")
	env.mustRun("register", "43")

	var reports dismissReportList
	out, code := env.run("--format", "json", "dismiss", "42", "77")
	assert.Equal(t, ExitFailure, code)
	// The report is printed before the failure.
	var resp struct {
		Data dismissReportList `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewBufferString(out))
	require.NoError(t, dec.Decode(&resp))
	reports = resp.Data
	require.Len(t, reports, 2)
	assert.Equal(t, "success", reports[0].Result)
	assert.Equal(t, "event_not_found", reports[1].Result)

	var archived dismissedList
	decodeData(t, env.mustRun("--format", "json", "dismissed"), &archived)
	require.Len(t, archived, 1)
	assert.Equal(t, int64(42), archived[0].EventID)
	assert.True(t, archived[0].Restorable)

	var restored alertView
	decodeData(t, env.mustRun("--format", "json", "restore", "42"), &restored)
	assert.Equal(t, int64(42), restored.EventID)

	var live alertList
	decodeData(t, env.mustRun("--format", "json", "list"), &live)
	assert.Len(t, live, 2)

	decodeData(t, env.mustRun("--format", "json", "dismissed"), &archived)
	assert.Empty(t, archived)

	out, code = env.run("--format", "json", "restore", "42")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, out).Code)
}

func TestDismiss_Arguments(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no ids", []string{"dismiss"}},
		{"all with ids", []string{"dismiss", "--all", "42"}},
		{"instance with two ids", []string{"dismiss", "--instance", "1", "42", "43"}},
		{"unknown type", []string{"dismiss", "--type", "bogus", "42"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, code := env.run(append([]string{"--format", "json"}, tt.args...)...)
			assert.Equal(t, ExitCommandError, code)
			assert.Equal(t, ErrCodeBadArgument, decodeError(t, out).Code)
		})
	}
}

func TestDismiss_MovedCannotBeRestored(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "42")
	env.mustRun("dismiss", "42", "--instance", "1700038800000", "--type", "moved")

	out, code := env.run("--format", "json", "restore", "42")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, ErrCodeNotApplied, decodeError(t, out).Code)
}

func TestSnoozeAndMute(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "42")
	env.mustRun("register", "43")

	var s snoozeView
	decodeData(t, env.mustRun("--format", "json", "snooze", "42", "--for", "1h"), &s)
	assert.Equal(t, "snoozed", s.Type)
	assert.NotZero(t, s.SnoozedUntil)

	var muted alertView
	decodeData(t, env.mustRun("--format", "json", "mute", "43"), &muted)
	assert.True(t, muted.Muted)

	decodeData(t, env.mustRun("--format", "json", "mute", "43", "--off"), &muted)
	assert.False(t, muted.Muted)

	var n countView
	decodeData(t, env.mustRun("--format", "json", "mute-all"), &n)
	assert.Equal(t, countView{Action: "muted", Count: 1}, n)

	out, code := env.run("--format", "json", "snooze", "77")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, out).Code)
}

func TestSnoozeAll(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "42")
	env.mustRun("register", "43")

	var s snoozeView
	decodeData(t, env.mustRun("--format", "json", "snooze-all", "--search", "REVIEW", "--for", "30m"), &s)
	assert.Equal(t, "snoozed", s.Type)

	var live alertList
	decodeData(t, env.mustRun("--format", "json", "list"), &live)
	require.Len(t, live, 2)
	assert.Zero(t, live[0].SnoozedUntil)
	assert.NotZero(t, live[1].SnoozedUntil)

	out, code := env.run("--format", "json", "snooze-all", "--collapsed", "--search", "x")
	assert.Equal(t, ExitCommandError, code)
	assert.Equal(t, ErrCodeBadArgument, decodeError(t, out).Code)
}

func TestMove(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "42")

	var v moveView
	decodeData(t, env.mustRun("--format", "json", "move", "42", "--by", "24h"), &v)
	assert.Equal(t, moveView{EventID: 42, NewEventID: 42}, v)

	var live alertList
	decodeData(t, env.mustRun("--format", "json", "list"), &live)
	assert.Empty(t, live)

	out, code := env.run("--format", "json", "move", "43", "--by", "0s")
	assert.Equal(t, ExitCommandError, code)
	assert.Equal(t, ErrCodeBadArgument, decodeError(t, out).Code)
}

func TestPurgeAndClear(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "42")
	env.mustRun("dismiss", "42")

	var n countView
	decodeData(t, env.mustRun("--format", "json", "purge"), &n)
	assert.Equal(t, countView{Action: "purged", Count: 0}, n)

	decodeData(t, env.mustRun("--format", "json", "dismissed", "--clear"), &n)
	assert.Equal(t, countView{Action: "cleared", Count: 1}, n)
}

func TestDecide(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "42")
	env.mustRun("register", "43", "--alarm")

	var p planView
	decodeData(t, env.mustRun("--format", "json", "decide", "--force"), &p)
	assert.Equal(t, 2, p.Events)
	assert.True(t, p.HasAlarms)
	assert.Len(t, p.Posts, 2)
	assert.Nil(t, p.Summary)

	out := env.mustRun("decide")
	assert.Contains(t, out, "Active alerts: 2")
}

func TestStatus(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("register", "42")

	var s statusView
	decodeData(t, env.mustRun("--format", "json", "status"), &s)
	assert.Equal(t, "modern", s.Events.Backend)
	assert.Equal(t, 1, s.Events.Records)
	assert.Equal(t, 0, s.Dismissed.Records)
	assert.Equal(t, 2, s.Calendars)
	assert.Equal(t, []int64{1}, s.Handled)
}

func TestBadConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute(&RootOptions{}, []string{"--format", "json", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "list"}, &stdout, &stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Equal(t, ErrCodeConfig, decodeError(t, stdout.String()).Code)
}

const passingScenario = `name: advance
description: Advancing the clock is traced
flow:
  - invoke: advance
    args: { ms: 1000 }
    expect:
      case: advanced
      result: { now: 1700000001000 }
assertions:
  - type: trace_count
    action: advance
    count: 1
`

const failingScenario = `name: missing
description: Snoozing an unknown alert finds nothing
flow:
  - invoke: snooze
    args: { event: 7, delay: 1000 }
    expect:
      case: snoozed
assertions:
  - type: state_count
    table: events
    count: 0
`

func TestScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "advance.yaml"), []byte(passingScenario), 0o644))

	run := func(args ...string) (string, int) {
		var stdout, stderr bytes.Buffer
		code := execute(&RootOptions{}, args, &stdout, &stderr)
		return stdout.String(), code
	}

	out, code := run("scenario", dir, "--update")
	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, "✓ advance")
	assert.FileExists(t, filepath.Join(dir, "golden", "advance.golden"))

	var report ScenarioReport
	out, code = run("--format", "json", "scenario", dir)
	require.Equal(t, ExitSuccess, code, out)
	decodeData(t, out, &report)
	assert.Equal(t, 1, report.Passed)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "advance.golden"), []byte("{}\n"), 0o644))
	out, code = run("scenario", dir)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "does not match golden file")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "missing.yaml"), []byte(failingScenario), 0o644))
	out, code = run("scenario", dir, "--filter", "miss*")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "✗ missing")
	assert.Contains(t, out, `expected case "snoozed", got "not_found"`)
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")

	_, code = run("scenario", filepath.Join(dir, "nope"))
	assert.Equal(t, ExitCommandError, code)
}
