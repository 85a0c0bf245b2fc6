package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/signalfeed/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.Same(t, registry.Metrics, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterTypes(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "c"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "g"})
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_hist", Help: "h"})
	cvec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cvec", Help: "cv"}, []string{"k"})
	gvec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_gvec", Help: "gv"}, []string{"k"})

	require.NoError(t, registry.RegisterCounter("svc", "counter", counter))
	require.NoError(t, registry.RegisterGauge("svc", "gauge", gauge))
	require.NoError(t, registry.RegisterHistogram("svc", "hist", hist))
	require.NoError(t, registry.RegisterCounterVec("svc", "cvec", cvec))
	require.NoError(t, registry.RegisterGaugeVec("svc", "gvec", gvec))

	counter.Inc()
	gauge.Set(1)
	hist.Observe(0.1)
	cvec.WithLabelValues("a").Inc()
	gvec.WithLabelValues("a").Set(2)

	names := gatheredNames(t, registry)
	for _, n := range []string{"test_counter", "test_gauge", "test_hist", "test_cvec", "test_gvec"} {
		assert.True(t, names[n], "missing %s", n)
	}
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	c1 := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "c"})
	c2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "c"})

	require.NoError(t, registry.RegisterCounter("svc", "dup", c1))

	err := registry.RegisterCounter("svc", "dup", c2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Different key but same Prometheus descriptor
	err = registry.RegisterCounter("other", "dup", c2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "gone_gauge", Help: "g"})
	require.NoError(t, registry.RegisterGauge("svc", "gone", gauge))

	assert.True(t, registry.Unregister("svc", "gone"))
	assert.False(t, registry.Unregister("svc", "gone"))
	assert.False(t, gatheredNames(t, registry)["gone_gauge"])

	// Re-registration after unregister succeeds
	require.NoError(t, registry.RegisterGauge("svc", "gone", gauge))
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetricsRegistry().CoreMetrics()

	m.RecordEventReceived("CollectorTick")
	m.RecordEventReceived("CollectorTick")
	m.RecordFrameDropped("malformed")
	m.RecordConnectionState(2)
	m.RecordReconnect(4 * time.Second)
	m.RecordPublished("signals.CollectorTick")
	m.RecordError("stream", "transient")
	m.RecordBootstrap("events", true, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsReceived.WithLabelValues("CollectorTick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues("malformed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BackoffSeconds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("signals.CollectorTick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("stream", "transient")))
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordEventReceived("NewsUpdated")

	srv := httptest.NewServer(NewServer("", "", registry).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "signalfeed_stream_events_received_total"))

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServer_Defaults(t *testing.T) {
	s := NewServer("", "", NewMetricsRegistry())
	assert.Equal(t, "http://:9090/metrics", s.Address())

	s = NewServer("127.0.0.1:9100", "/prom", NewMetricsRegistry())
	assert.Equal(t, "http://127.0.0.1:9100/prom", s.Address())
}
