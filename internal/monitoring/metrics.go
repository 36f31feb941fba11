package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the log/metrics sync layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Fetches         *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	PollFallbacks   *prometheus.CounterVec
	RealtimeDials   *prometheus.CounterVec
	RealtimeEvents  *prometheus.CounterVec
	Subscribers     prometheus.Gauge
	RejectedRecords prometheus.Counter
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novadash_fetches_total",
				Help: "Snapshot fetches by feed and result",
			},
			[]string{"feed", "result"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "novadash_fetch_duration_seconds",
				Help:    "Time taken to fetch a snapshot",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"feed"},
		),
		PollFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novadash_poll_fallbacks_total",
				Help: "Times a feed fell back to interval polling",
			},
			[]string{"feed"},
		),
		RealtimeDials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novadash_realtime_dials_total",
				Help: "Push channel connection attempts by result",
			},
			[]string{"result"},
		),
		RealtimeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novadash_realtime_events_total",
				Help: "Push channel events received by name",
			},
			[]string{"event"},
		),
		Subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "novadash_realtime_subscribers",
				Help: "Active subscriptions on the shared push connection",
			},
		),
		RejectedRecords: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "novadash_rejected_records_total",
				Help: "Log records quarantined by schema validation",
			},
		),
	}

	m.registry.MustRegister(
		m.Fetches,
		m.FetchDuration,
		m.PollFallbacks,
		m.RealtimeDials,
		m.RealtimeEvents,
		m.Subscribers,
		m.RejectedRecords,
	)

	return m
}

// RecordFetch records one fetch outcome for feed.
func (m *Metrics) RecordFetch(feed string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Fetches.WithLabelValues(feed, result).Inc()
	m.FetchDuration.WithLabelValues(feed).Observe(d.Seconds())
}

// RecordPollFallback records a feed switching to polling.
func (m *Metrics) RecordPollFallback(feed string) {
	if m == nil {
		return
	}
	m.PollFallbacks.WithLabelValues(feed).Inc()
}

// RecordDial records a push channel connection attempt.
func (m *Metrics) RecordDial(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RealtimeDials.WithLabelValues(result).Inc()
}

// RecordEvent records a push channel event.
func (m *Metrics) RecordEvent(name string) {
	if m == nil {
		return
	}
	m.RealtimeEvents.WithLabelValues(name).Inc()
}

// SetSubscribers sets the active subscription count.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

// AddRejected records quarantined log records.
func (m *Metrics) AddRejected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RejectedRecords.Add(float64(n))
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
