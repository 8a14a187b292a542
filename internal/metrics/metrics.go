// Package metrics exposes Prometheus collectors for the tracker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tick results.
const (
	TickOK         = "ok"
	TickProbeError = "probe_error"
	TickPaused     = "paused"
)

// Flush outcomes.
const (
	FlushPersisted      = "persisted"
	FlushDiscardedShort = "discarded_short"
	FlushIgnored        = "ignored"
	FlushRedacted       = "redacted"
	FlushEmpty          = "empty"
	FlushError          = "error"
)

// Metrics holds every collector. All methods are no-ops on a nil receiver so
// components can run without metrics.
type Metrics struct {
	registry prometheus.Gatherer

	ticks          *prometheus.CounterVec
	flushes        *prometheus.CounterVec
	clockJumps     prometheus.Counter
	reloads        *prometheus.CounterVec
	flushDuration  prometheus.Histogram
	queryDuration  *prometheus.HistogramVec
	openSegmentAge prometheus.Gauge
	wsClients      prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "atracker_ticks_total",
			Help: "Segmentation ticks by result",
		}, []string{"result"}),
		flushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "atracker_flushes_total",
			Help: "Segment flushes by outcome",
		}, []string{"outcome"}),
		clockJumps: f.NewCounter(prometheus.CounterOpts{
			Name: "atracker_clock_jumps_total",
			Help: "Tick gaps treated as suspend or scheduler stalls",
		}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "atracker_settings_reloads_total",
			Help: "Settings and filter rule reloads by result",
		}, []string{"result"}),
		flushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "atracker_flush_duration_seconds",
			Help:    "Time spent persisting a closed segment",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "atracker_query_duration_seconds",
			Help:    "Aggregation query latency by view",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"view"}),
		openSegmentAge: f.NewGauge(prometheus.GaugeOpts{
			Name: "atracker_open_segment_seconds",
			Help: "Age of the currently open segment",
		}),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "atracker_websocket_clients",
			Help: "Connected live-update clients",
		}),
	}
}

// Tick counts one machine tick.
func (m *Metrics) Tick(result string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(result).Inc()
}

// Flush counts one segment close.
func (m *Metrics) Flush(outcome string) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(outcome).Inc()
}

// ObserveFlush records persistence latency.
func (m *Metrics) ObserveFlush(d time.Duration) {
	if m == nil {
		return
	}
	m.flushDuration.Observe(d.Seconds())
}

// ClockJump counts a detected discontinuity.
func (m *Metrics) ClockJump() {
	if m == nil {
		return
	}
	m.clockJumps.Inc()
}

// Reload counts a settings reload attempt.
func (m *Metrics) Reload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.reloads.WithLabelValues(result).Inc()
}

// ObserveQuery records the latency of an aggregation view.
func (m *Metrics) ObserveQuery(view string, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(view).Observe(d.Seconds())
}

// SetOpenSegmentAge reports how long the open segment has been running.
func (m *Metrics) SetOpenSegmentAge(secs float64) {
	if m == nil {
		return
	}
	m.openSegmentAge.Set(secs)
}

// WSClients adjusts the connected client gauge by delta.
func (m *Metrics) WSClients(delta float64) {
	if m == nil {
		return
	}
	m.wsClients.Add(delta)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
