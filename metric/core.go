package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the client-level metrics for the feed
type Metrics struct {
	// Stream metrics
	EventsReceived  *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	ConnectionState prometheus.Gauge
	Reconnects      prometheus.Counter
	BackoffSeconds  prometheus.Gauge

	// Bootstrap metrics
	BootstrapDuration *prometheus.HistogramVec

	// Output metrics
	EventsPublished *prometheus.CounterVec

	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "stream",
				Name:      "events_received_total",
				Help:      "Total number of envelopes delivered by the stream",
			},
			[]string{"type"},
		),

		FramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "stream",
				Name:      "frames_dropped_total",
				Help:      "Total number of frames dropped before delivery",
			},
			[]string{"reason"},
		),

		ConnectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "stream",
				Name:      "connection_state",
				Help:      "Connection state (0=idle, 1=connecting, 2=open, 3=reconnecting, 4=closed)",
			},
		),

		Reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "stream",
				Name:      "reconnects_total",
				Help:      "Total number of reconnect attempts after a failure",
			},
		),

		BackoffSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "stream",
				Name:      "backoff_seconds",
				Help:      "Delay before the next reconnect attempt",
			},
		),

		BootstrapDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "bootstrap",
				Name:      "duration_seconds",
				Help:      "Duration of bootstrap fetches in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource", "status"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "output",
				Name:      "published_total",
				Help:      "Total number of envelopes republished",
			},
			[]string{"subject"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "class"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EventsReceived,
		m.FramesDropped,
		m.ConnectionState,
		m.Reconnects,
		m.BackoffSeconds,
		m.BootstrapDuration,
		m.EventsPublished,
		m.ErrorsTotal,
	}
}

// RecordEventReceived increments the received counter for an event type.
func (m *Metrics) RecordEventReceived(eventType string) {
	m.EventsReceived.WithLabelValues(eventType).Inc()
}

// RecordFrameDropped increments the dropped frame counter.
func (m *Metrics) RecordFrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordConnectionState sets the connection state gauge.
func (m *Metrics) RecordConnectionState(state int) {
	m.ConnectionState.Set(float64(state))
}

// RecordReconnect increments the reconnect counter and records the wait.
func (m *Metrics) RecordReconnect(delay time.Duration) {
	m.Reconnects.Inc()
	m.BackoffSeconds.Set(delay.Seconds())
}

// RecordBootstrap records the duration of a bootstrap fetch.
func (m *Metrics) RecordBootstrap(resource string, ok bool, duration time.Duration) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.BootstrapDuration.WithLabelValues(resource, status).Observe(duration.Seconds())
}

// RecordPublished increments the republish counter.
func (m *Metrics) RecordPublished(subject string) {
	m.EventsPublished.WithLabelValues(subject).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, class string) {
	m.ErrorsTotal.WithLabelValues(component, class).Inc()
}
