// Package metrics holds the Prometheus collectors of the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sachinfortude/RAMP-UP/internal/queue"
)

// Collectors groups every metric a process exports.
type Collectors struct {
	registry *prometheus.Registry

	jobsEnqueued     *prometheus.CounterVec
	jobAttempts      *prometheus.CounterVec
	jobsTerminal     *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	studentsImported prometheus.Counter
	notifications    *prometheus.CounterVec
	wsClients        prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		registry: reg,
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_jobs_enqueued_total",
			Help: "Jobs accepted by the queue.",
		}, []string{"type"}),
		jobAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_job_attempts_total",
			Help: "Job attempts by outcome.",
		}, []string{"type", "outcome"}),
		jobsTerminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_jobs_terminal_total",
			Help: "Jobs that reached a terminal state.",
		}, []string{"type", "state"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_job_duration_seconds",
			Help:    "Duration of a single job attempt.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"type"}),
		studentsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_students_imported_total",
			Help: "Student rows written by import jobs.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_notifications_total",
			Help: "Job outcome events published to live clients.",
		}, []string{"kind"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_ws_clients",
			Help: "Connected websocket clients.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.jobsEnqueued, c.jobAttempts, c.jobsTerminal, c.jobDuration,
		c.studentsImported, c.notifications, c.wsClients,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// JobEnqueued implements queue.Observer.
func (c *Collectors) JobEnqueued(jobType string) {
	c.jobsEnqueued.WithLabelValues(jobType).Inc()
}

// JobAttempt implements queue.Observer.
func (c *Collectors) JobAttempt(jobType, outcome string, took time.Duration) {
	c.jobAttempts.WithLabelValues(jobType, outcome).Inc()
	c.jobDuration.WithLabelValues(jobType).Observe(took.Seconds())
}

// JobTerminal implements queue.Observer.
func (c *Collectors) JobTerminal(jobType string, state queue.State) {
	c.jobsTerminal.WithLabelValues(jobType, string(state)).Inc()
}

// StudentsImported adds n imported rows.
func (c *Collectors) StudentsImported(n int) {
	c.studentsImported.Add(float64(n))
}

// NotificationPublished counts one event pushed to the hub.
func (c *Collectors) NotificationPublished(kind string) {
	c.notifications.WithLabelValues(kind).Inc()
}

// ClientConnected and ClientDisconnected track the websocket gauge.
func (c *Collectors) ClientConnected()    { c.wsClients.Inc() }
func (c *Collectors) ClientDisconnected() { c.wsClients.Dec() }

var _ queue.Observer = (*Collectors)(nil)
