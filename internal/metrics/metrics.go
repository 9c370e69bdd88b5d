// Package metrics exposes calnotify counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/calnotify/internal/config"
	"github.com/roach88/calnotify/internal/lifecycle"
	"github.com/roach88/calnotify/internal/notify"
	"github.com/roach88/calnotify/internal/storage"
)

// Recorder is every observation point the application reports to.
type Recorder interface {
	storage.Observer
	lifecycle.Recorder
	notify.DecisionRecorder

	SetRecords(dataset string, count int)
	IncPurged(count int)

	// Handler serves the collected metrics.
	Handler() http.Handler
}

type Prometheus struct {
	registry   *prometheus.Registry
	selections *prometheus.CounterVec
	operations *prometheus.CounterVec
	decisions  *prometheus.CounterVec
	records    *prometheus.GaugeVec
	purged     prometheus.Counter
}

// New returns a Prometheus recorder with its own registry, or a no-op
// recorder when metrics are disabled.
func New(conf *config.Config) Recorder {
	if !conf.Metrics.Enabled {
		return Noop{}
	}
	return NewPrometheus(prometheus.NewRegistry())
}

// NewPrometheus registers the calnotify collectors on reg.
func NewPrometheus(reg *prometheus.Registry) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		registry: reg,
		selections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "calnotify_storage_selections_total",
			Help: "Backend selections at startup by dataset, backend and migration outcome",
		}, []string{"dataset", "backend", "outcome"}),

		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "calnotify_operations_total",
			Help: "Lifecycle operations by name and result",
		}, []string{"operation", "result"}),

		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "calnotify_notifications_total",
			Help: "Notification posts by channel and whether they made a sound",
		}, []string{"channel", "sound"}),

		records: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "calnotify_records",
			Help: "Stored records per dataset",
		}, []string{"dataset"}),

		purged: f.NewCounter(prometheus.CounterOpts{
			Name: "calnotify_archive_purged_total",
			Help: "Dismissed entries removed by archive pruning",
		}),
	}
}

func (p *Prometheus) ObserveSelection(namespace string, backend storage.Backend, outcome storage.Outcome) {
	p.selections.WithLabelValues(namespace, string(backend), string(outcome)).Inc()
}

func (p *Prometheus) ObserveOperation(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	p.operations.WithLabelValues(op, result).Inc()
}

func (p *Prometheus) ObserveDecision(channel notify.Channel, sound bool) {
	p.decisions.WithLabelValues(channel.ID(), strconv.FormatBool(sound)).Inc()
}

func (p *Prometheus) SetRecords(dataset string, count int) {
	p.records.WithLabelValues(dataset).Set(float64(count))
}

func (p *Prometheus) IncPurged(count int) {
	p.purged.Add(float64(count))
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Noop discards every observation.
type Noop struct{}

func (Noop) ObserveSelection(string, storage.Backend, storage.Outcome) {}
func (Noop) ObserveOperation(string, bool)                             {}
func (Noop) ObserveDecision(notify.Channel, bool)                      {}
func (Noop) SetRecords(string, int)                                    {}
func (Noop) IncPurged(int)                                             {}
func (Noop) Handler() http.Handler                                     { return http.NotFoundHandler() }
