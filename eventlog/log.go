package eventlog

import (
	"sync"

	"github.com/c360/signalfeed/envelope"
	"github.com/c360/signalfeed/metric"
	"github.com/c360/signalfeed/pkg/buffer"
)

// DefaultCapacity is the log bound used when none is configured.
const DefaultCapacity = 200

// Option configures a Log.
type Option func(*options)

type options struct {
	registry *metric.MetricsRegistry
	prefix   string
}

// WithMetrics exports both buffers' statistics under the given prefix.
func WithMetrics(registry *metric.MetricsRegistry, prefix string) Option {
	return func(o *options) {
		o.registry = registry
		o.prefix = prefix
	}
}

// Log is the visible event log plus its pause buffer. Methods are safe for
// concurrent use; appends are expected to come from a single writer so that
// arrival order is meaningful.
type Log struct {
	mu       sync.RWMutex
	visible  *buffer.Ring[envelope.Envelope]
	pending  *buffer.Ring[envelope.Envelope]
	paused   bool
	capacity int
}

// Stats is a point-in-time view of the log.
type Stats struct {
	Capacity       int   `json:"capacity"`
	Visible        int   `json:"visible"`
	Pending        int   `json:"pending"`
	Paused         bool  `json:"paused"`
	Appended       int64 `json:"appended"`
	Evicted        int64 `json:"evicted"`
	PendingEvicted int64 `json:"pending_evicted"`
}

// New creates a log bounded to capacity entries. Non-positive capacity uses
// DefaultCapacity. An error is returned only when metrics registration fails.
func New(capacity int, opts ...Option) (*Log, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var visibleOpts, pendingOpts []buffer.Option[envelope.Envelope]
	if o.registry != nil && o.prefix != "" {
		visibleOpts = append(visibleOpts, buffer.WithMetrics[envelope.Envelope](o.registry, o.prefix+"_visible"))
		pendingOpts = append(pendingOpts, buffer.WithMetrics[envelope.Envelope](o.registry, o.prefix+"_pending"))
	}

	visible, err := buffer.NewRing(capacity, visibleOpts...)
	if err != nil {
		return nil, err
	}
	pending, err := buffer.NewRing(capacity, pendingOpts...)
	if err != nil {
		return nil, err
	}

	return &Log{
		visible:  visible,
		pending:  pending,
		capacity: capacity,
	}, nil
}

// Append records an envelope. While paused it is held in the pause buffer.
func (l *Log) Append(e envelope.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		_ = l.pending.Write(e)
		return
	}
	_ = l.visible.Write(e)
}

// SetPaused freezes or unfreezes the visible log. Unpausing flushes the
// pause buffer into the visible log in arrival order.
func (l *Log) SetPaused(paused bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused == paused {
		return
	}
	l.paused = paused
	if paused {
		return
	}

	for _, e := range l.pending.Drain() {
		_ = l.visible.Write(e)
	}
}

// Paused reports whether the visible log is frozen.
func (l *Log) Paused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.paused
}

// Entries returns a copy of the visible log, oldest first.
func (l *Log) Entries() []envelope.Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.visible.Items()
}

// Pending returns a copy of the pause buffer, oldest first.
func (l *Log) Pending() []envelope.Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pending.Items()
}

// Seed replaces the visible log with the last Capacity envelopes of entries.
// The pause buffer is left untouched.
func (l *Log) Seed(entries []envelope.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(entries) > l.capacity {
		entries = entries[len(entries)-l.capacity:]
	}
	l.visible.Clear()
	for _, e := range entries {
		_ = l.visible.Write(e)
	}
}

// Len returns the number of visible entries.
func (l *Log) Len() int {
	return l.visible.Size()
}

// Capacity returns the bound shared by the visible log and the pause buffer.
func (l *Log) Capacity() int {
	return l.capacity
}

// Stats returns counters for both buffers.
func (l *Log) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	vs := l.visible.Stats()
	return Stats{
		Capacity:       l.capacity,
		Visible:        l.visible.Size(),
		Pending:        l.pending.Size(),
		Paused:         l.paused,
		Appended:       vs.Writes,
		Evicted:        vs.Drops,
		PendingEvicted: l.pending.Stats().Drops,
	}
}
