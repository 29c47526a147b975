package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the monitor's own Prometheus instrumentation
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal       *prometheus.CounterVec
	CycleDuration     *prometheus.HistogramVec
	ProbeDuration     *prometheus.HistogramVec
	ProbeFailures     *prometheus.CounterVec
	AlertsDispatched  *prometheus.CounterVec
	AlertsSuppressed  prometheus.Counter
	AlertsRateLimited prometheus.Counter
	AlertsEscalated   prometheus.Counter
	HealthScore       *prometheus.GaugeVec
	HistorySize       *prometheus.GaugeVec
	BreakerState      *prometheus.GaugeVec
}

// New creates and registers the monitor metrics under the given namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Completed check cycles per task",
			},
			[]string{"task", "status"},
		),
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of one full check cycle",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		ProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Duration of individual subsystem probes",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"probe"},
		),
		ProbeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_failures_total",
				Help:      "Probe executions that failed or timed out",
			},
			[]string{"probe"},
		),
		AlertsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_dispatched_total",
				Help:      "Alerts delivered per channel and severity",
			},
			[]string{"channel", "severity"},
		),
		AlertsSuppressed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_suppressed_total",
				Help:      "Alerts held during quiet hours",
			},
		),
		AlertsRateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_rate_limited_total",
				Help:      "Alerts dropped by the per-key rate limiter",
			},
		),
		AlertsEscalated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_escalated_total",
				Help:      "Unresolved alerts promoted by the escalation ladder",
			},
		),
		HealthScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "health_score",
				Help:      "Latest health score per subsystem and overall",
			},
			[]string{"subsystem"},
		),
		HistorySize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "history_size",
				Help:      "Entries held in the in-memory history buffers",
			},
			[]string{"buffer"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_open",
				Help:      "1 when the named probe breaker is open",
			},
			[]string{"target"},
		),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.CyclesTotal,
		m.CycleDuration,
		m.ProbeDuration,
		m.ProbeFailures,
		m.AlertsDispatched,
		m.AlertsSuppressed,
		m.AlertsRateLimited,
		m.AlertsEscalated,
		m.HealthScore,
		m.HistorySize,
		m.BreakerState,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
