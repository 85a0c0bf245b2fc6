package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/signalfeed/metric"
)

// Option configures a Ring.
type Option[T any] func(*ringOptions[T])

type ringOptions[T any] struct {
	policy   OverflowPolicy
	onDrop   DropCallback[T]
	registry *metric.MetricsRegistry
	name     string
}

// WithOverflowPolicy sets the full-ring behavior. The default is DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(o *ringOptions[T]) { o.policy = policy }
}

// WithDropCallback sets the callback for discarded items.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(o *ringOptions[T]) { o.onDrop = callback }
}

// WithMetrics exports ring counters labelled buffer=name. A nil registry or
// empty name is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry, name string) Option[T] {
	return func(o *ringOptions[T]) {
		if registry != nil && name != "" {
			o.registry, o.name = registry, name
		}
	}
}

func applyOptions[T any](options ...Option[T]) *ringOptions[T] {
	o := &ringOptions[T]{policy: DropOldest}
	for _, opt := range options {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

type ringMetrics struct {
	writes      prometheus.Counter
	drops       prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newRingMetrics(registry *metric.MetricsRegistry, name string) (*ringMetrics, error) {
	labels := prometheus.Labels{"buffer": name}
	opts := func(n, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: metric.Namespace, Subsystem: "buffer", Name: n, Help: help, ConstLabels: labels}
	}

	m := &ringMetrics{
		writes:      prometheus.NewCounter(prometheus.CounterOpts(opts("writes_total", "Items written to the ring"))),
		drops:       prometheus.NewCounter(prometheus.CounterOpts(opts("drops_total", "Items discarded at capacity"))),
		size:        prometheus.NewGauge(prometheus.GaugeOpts(opts("size", "Items currently held"))),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts(opts("utilization", "Size over capacity, 0 to 1"))),
	}

	for _, reg := range []func() error{
		func() error { return registry.RegisterCounter(name, "buffer_writes", m.writes) },
		func() error { return registry.RegisterCounter(name, "buffer_drops", m.drops) },
		func() error { return registry.RegisterGauge(name, "buffer_size", m.size) },
		func() error { return registry.RegisterGauge(name, "buffer_utilization", m.utilization) },
	} {
		if err := reg(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *ringMetrics) observe(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
