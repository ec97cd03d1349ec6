package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the Tollbook ledger
// service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ledger metrics.
	SwitchesTotal       prometheus.Counter
	ReportsAppliedTotal *prometheus.CounterVec
	ReportsDroppedTotal *prometheus.CounterVec
	MessagesBoundTotal  prometheus.Counter

	// Journal (write-behind persistence) metrics.
	JournalFlushesTotal  *prometheus.CounterVec
	JournalFlushDuration prometheus.Histogram
	JournalEntriesTotal  prometheus.Counter

	// Rate limiting metrics.
	RateLimitRejectionsTotal prometheus.Counter

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tollbook_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"kind", "method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tollbook_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "method", "path_pattern"}),

		SwitchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollbook_model_switches_total",
			Help: "Total number of model switches recorded.",
		}),

		ReportsAppliedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tollbook_reports_applied_total",
			Help: "Total number of usage reports applied, by report kind.",
		}, []string{"kind"}),

		ReportsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tollbook_reports_dropped_total",
			Help: "Total number of usage reports dropped, by outcome.",
		}, []string{"kind", "outcome"}),

		MessagesBoundTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollbook_messages_bound_total",
			Help: "Total number of messages tagged with a model period.",
		}),

		JournalFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tollbook_journal_flushes_total",
			Help: "Total number of journal flushes.",
		}, []string{"status"}),

		JournalFlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tollbook_journal_flush_duration_seconds",
			Help:    "Duration of journal flush operations in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		JournalEntriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollbook_journal_entries_total",
			Help: "Total number of ledger mutations journaled.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollbook_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tollbook_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tollbook_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tollbook_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	// Register all metrics.
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SwitchesTotal,
		m.ReportsAppliedTotal,
		m.ReportsDroppedTotal,
		m.MessagesBoundTotal,
		m.JournalFlushesTotal,
		m.JournalFlushDuration,
		m.JournalEntriesTotal,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.ServerStartTime,
	)

	// Set server start time.
	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}

// IncMessagesBound adds n to the bound-messages counter.
func (m *Metrics) IncMessagesBound(n int) {
	m.MessagesBoundTotal.Add(float64(n))
}

// JournalFlush records a flush attempt. Satisfies journal.FlushObserver.
func (m *Metrics) JournalFlush(entries int, took time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.JournalFlushesTotal.WithLabelValues(status).Inc()
	m.JournalFlushDuration.Observe(took.Seconds())
	m.JournalEntriesTotal.Add(float64(entries))
}
