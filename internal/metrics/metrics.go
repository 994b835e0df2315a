package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "harmony"

// Advance triggers.
const (
	TriggerStart = "start"
	TriggerSkip  = "skip"
	TriggerEnded = "ended"
)

// Metrics holds the collectors the playback path updates. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	songsDelivered   prometheus.Counter
	advances         *prometheus.CounterVec
	fetchFailures    prometheus.Counter
	lifecycleDefects prometheus.Counter
	commands         *prometheus.CounterVec
	fetchDuration    prometheus.Histogram
}

// New creates the collectors on a private registry together with the Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		songsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "songs_delivered_total",
			Help:      "Files handed to the player.",
		}),
		advances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advances_total",
			Help:      "Queue advances by trigger.",
		}, []string{"trigger"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Downloads that failed or timed out.",
		}),
		lifecycleDefects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_defects_total",
			Help:      "Temp file accounting errors.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Routed commands by name and error kind.",
		}, []string{"command", "outcome"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent materializing a file.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
	}
	registry.MustRegister(m.songsDelivered, m.advances, m.fetchFailures, m.lifecycleDefects, m.commands, m.fetchDuration)
	return m
}

// RegisterGauges exposes values owned by other components, sampled at scrape time.
func (m *Metrics) RegisterGauges(liveReferences, pendingSongs func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_file_references",
			Help:      "Temp files currently registered.",
		}, func() float64 { return float64(liveReferences()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_songs",
			Help:      "Songs waiting behind the current one.",
		}, func() float64 { return float64(pendingSongs()) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SongDelivered() {
	if m != nil {
		m.songsDelivered.Inc()
	}
}

func (m *Metrics) Advance(trigger string) {
	if m != nil {
		m.advances.WithLabelValues(trigger).Inc()
	}
}

func (m *Metrics) FetchFailed() {
	if m != nil {
		m.fetchFailures.Inc()
	}
}

func (m *Metrics) LifecycleDefect() {
	if m != nil {
		m.lifecycleDefects.Inc()
	}
}

func (m *Metrics) ObserveFetch(seconds float64) {
	if m != nil {
		m.fetchDuration.Observe(seconds)
	}
}

// Command counts a routed command. outcome is "ok" or the error kind.
func (m *Metrics) Command(name, outcome string) {
	if m != nil {
		m.commands.WithLabelValues(name, outcome).Inc()
	}
}
