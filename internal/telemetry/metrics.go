package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for finishing runs and the
// supervisor. All methods are safe on a nil receiver so components can be
// constructed without metrics.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	activeJobs    prometheus.Gauge
	indexEntries  *prometheus.GaugeVec
	ticksTotal    *prometheus.CounterVec
	triggersTotal prometheus.Counter
	liveCells     prometheus.Gauge
	retriesTotal  *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courtclip_jobs_total",
			Help: "Finishing jobs completed, by terminal status",
		}, []string{"status"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courtclip_stage_duration_seconds",
			Help:    "Duration of finishing stages",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "courtclip_active_jobs",
			Help: "Finishing jobs currently running",
		}),
		indexEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courtclip_index_entries",
			Help: "Entries in the last published recency index, by cell",
		}, []string{"cell"}),
		ticksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courtclip_supervisor_ticks_total",
			Help: "Supervisor ticks, by decision",
		}, []string{"decision"}),
		triggersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "courtclip_supervisor_triggers_total",
			Help: "Finishing runs triggered by the supervisor",
		}),
		liveCells: factory.NewGauge(prometheus.GaugeOpts{
			Name: "courtclip_live_cells",
			Help: "Cells with a fresh heartbeat at the last tick",
		}),
		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courtclip_retries_total",
			Help: "Retried operations, by operation",
		}, []string{"operation"}),
	}
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Inc()
}

func (m *Metrics) JobDone() {
	if m == nil {
		return
	}
	m.activeJobs.Dec()
}

func (m *Metrics) IndexPublished(cell string, entries int) {
	if m == nil {
		return
	}
	m.indexEntries.WithLabelValues(cell).Set(float64(entries))
}

func (m *Metrics) Tick(decision string) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) Triggered() {
	if m == nil {
		return
	}
	m.triggersTotal.Inc()
}

func (m *Metrics) SetLiveCells(n int) {
	if m == nil {
		return
	}
	m.liveCells.Set(float64(n))
}

func (m *Metrics) Retried(operation string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(operation).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
