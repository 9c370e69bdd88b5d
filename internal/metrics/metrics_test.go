package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/calnotify/internal/config"
	"github.com/roach88/calnotify/internal/notify"
	"github.com/roach88/calnotify/internal/storage"
)

func TestNew_NoopWhenDisabled(t *testing.T) {
	r := New(&config.Config{})
	_, ok := r.(Noop)
	assert.True(t, ok, "should return Noop when disabled")

	r.ObserveSelection("events", storage.BackendModern, storage.OutcomeFresh)
	r.ObserveOperation("dismiss", true)
	r.ObserveDecision(notify.Alarm, true)
	r.SetRecords("events", 3)
	r.IncPurged(2)
}

func TestNew_PrometheusWhenEnabled(t *testing.T) {
	r := New(&config.Config{Metrics: config.MetricsConfig{Enabled: true}})
	_, ok := r.(*Prometheus)
	assert.True(t, ok)

	// Each recorder owns its registry, so a second one does not collide.
	assert.NotPanics(t, func() { New(&config.Config{Metrics: config.MetricsConfig{Enabled: true}}) })
}

func TestPrometheus_Counters(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry())

	p.ObserveSelection("events_storage_state", storage.BackendLegacy, storage.OutcomeFallback)
	p.ObserveOperation("snooze", true)
	p.ObserveOperation("snooze", true)
	p.ObserveOperation("snooze", false)
	p.ObserveDecision(notify.AlarmReminders, true)
	p.ObserveDecision(notify.Silent, false)
	p.SetRecords("events", 7)
	p.IncPurged(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.selections.WithLabelValues("events_storage_state", "legacy", "fallback")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.operations.WithLabelValues("snooze", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.operations.WithLabelValues("snooze", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.decisions.WithLabelValues("calendar_alarm_reminders", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.decisions.WithLabelValues("calendar_silent", "false")))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.records.WithLabelValues("events")))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.purged))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus(prometheus.NewRegistry())
	p.ObserveOperation("register", true)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `calnotify_operations_total{operation="register",result="ok"} 1`))
}
