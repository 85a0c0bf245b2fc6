package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/signalfeed/bootstrap"
	"github.com/c360/signalfeed/envelope"
	"github.com/c360/signalfeed/errors"
	"github.com/c360/signalfeed/eventlog"
	"github.com/c360/signalfeed/health"
	"github.com/c360/signalfeed/metric"
	"github.com/c360/signalfeed/snapshot"
	"github.com/c360/signalfeed/stream"
)

// Bootstrapper fetches initial state. *bootstrap.Client implements it.
type Bootstrapper interface {
	Fetch(ctx context.Context) (bootstrap.Result, error)
}

// Sink receives every envelope after it was applied to the log and the
// snapshot. Deliver runs on the connection goroutine and must not block.
type Sink interface {
	Deliver(e envelope.Envelope)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(envelope.Envelope)

// Deliver calls f(e).
func (f SinkFunc) Deliver(e envelope.Envelope) { f(e) }

// Option configures a Session.
type Option func(*Session)

// WithCapacity bounds the event log and pause buffer.
func WithCapacity(n int) Option {
	return func(s *Session) { s.capacity = n }
}

// WithBootstrap sets the bootstrapper run by Start.
func WithBootstrap(b Bootstrapper) Option {
	return func(s *Session) { s.boot = b }
}

// WithSink adds a sink. Sinks are called in registration order.
func WithSink(sink Sink) Option {
	return func(s *Session) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithStreamOptions passes options to the underlying connection.
func WithStreamOptions(opts ...stream.Option) Option {
	return func(s *Session) { s.streamOpts = append(s.streamOpts, opts...) }
}

// WithLogger sets the logger for the session and its connection.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics exports log and connection metrics to registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Session) { s.registry = registry }
}

// WithMonitor registers the session's health checkers on m.
func WithMonitor(m *health.Monitor) Option {
	return func(s *Session) { s.monitor = m }
}

// Status is the diagnostics view of a session.
type Status struct {
	ID           string         `json:"id"`
	Connection   stream.Stats   `json:"connection"`
	Log          eventlog.Stats `json:"log"`
	Paused       bool           `json:"paused"`
	Pending      int            `json:"pending"`
	Types        []string       `json:"types"`
	Bootstrapped bool           `json:"bootstrapped"`
	BootstrapErr string         `json:"bootstrap_error,omitempty"`
	Started      time.Time      `json:"started,omitempty"`
}

// Session is the single owner of the log and the snapshot.
type Session struct {
	id         string
	capacity   int
	boot       Bootstrapper
	sinks      []Sink
	streamOpts []stream.Option
	logger     *slog.Logger
	registry   *metric.MetricsRegistry
	monitor    *health.Monitor

	log  *eventlog.Log
	conn *stream.Connection

	mu           sync.RWMutex
	snap         *snapshot.Snapshot
	bootstrapped bool
	bootErr      error
	started      time.Time
}

// New builds a session over transport. Nothing is fetched or opened until
// Start.
func New(transport stream.Transport, opts ...Option) (*Session, error) {
	s := &Session{
		id:       uuid.NewString(),
		capacity: eventlog.DefaultCapacity,
		logger:   slog.Default(),
		snap:     snapshot.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session", "session_id", s.id)

	var logOpts []eventlog.Option
	if s.registry != nil {
		logOpts = append(logOpts, eventlog.WithMetrics(s.registry, "event_log"))
	}
	log, err := eventlog.New(s.capacity, logOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Session", "New", "create event log")
	}
	s.log = log

	connOpts := []stream.Option{stream.WithLogger(s.logger)}
	if s.registry != nil {
		connOpts = append(connOpts, stream.WithMetrics(s.registry.CoreMetrics()))
	}
	connOpts = append(connOpts, s.streamOpts...)
	s.conn = stream.New(transport, s.handle, connOpts...)

	if s.monitor != nil {
		s.monitor.Register("stream", s.conn.Health)
		s.monitor.Register("bootstrap", s.bootstrapHealth)
	}
	return s, nil
}

// ID returns the session instance id.
func (s *Session) ID() string {
	return s.id
}

// Start bootstraps, if configured, and then opens the live stream.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	if s.boot != nil {
		s.bootstrap(ctx)
	}
	if err := s.conn.Start(ctx); err != nil {
		return errors.Wrap(err, "Session", "Start", "start stream")
	}
	return nil
}

func (s *Session) bootstrap(ctx context.Context) {
	result, err := s.boot.Fetch(ctx)

	if len(result.Events) > 0 {
		s.log.Seed(result.Events)
	}

	s.mu.Lock()
	if result.Snapshot != nil {
		s.snap = snapshot.Normalize(result.Snapshot)
	}
	s.bootstrapped = err == nil
	s.bootErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Bootstrap incomplete, continuing with live stream",
			"error", err, "events", len(result.Events), "snapshot", result.Snapshot != nil)
		return
	}
	s.logger.Info("Bootstrap complete", "events", len(result.Events), "dropped", result.Dropped)
}

// Close stops the live stream. After Close returns no envelope reaches the
// log, the snapshot or any sink.
func (s *Session) Close() error {
	err := s.conn.Close()
	if s.monitor != nil {
		s.monitor.Remove("stream")
		s.monitor.Remove("bootstrap")
	}
	return err
}

// handle is the connection listener.
func (s *Session) handle(e envelope.Envelope) {
	s.mu.Lock()
	s.log.Append(e)
	s.snap = snapshot.Apply(s.snap, e)
	s.mu.Unlock()

	for _, sink := range s.sinks {
		sink.Deliver(e)
	}
}

// SetPaused freezes or unfreezes the visible log. The snapshot keeps
// updating while paused.
func (s *Session) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.SetPaused(paused)
	s.logger.Debug("Event log pause toggled", "paused", paused)
}

// Paused reports whether the visible log is frozen.
func (s *Session) Paused() bool {
	return s.log.Paused()
}

// Events returns visible entries of the given type matching search and q,
// newest first.
func (s *Session) Events(typeFilter, search string, q eventlog.Query) []envelope.Envelope {
	return eventlog.FilterQuery(s.log.Entries(), typeFilter, search, q)
}

// Snapshot returns the current snapshot. It must not be modified.
func (s *Session) Snapshot() *snapshot.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// State returns the connection state.
func (s *Session) State() stream.State {
	return s.conn.State()
}

// BootstrapErr returns the error of the last bootstrap, if any.
func (s *Session) BootstrapErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bootErr
}

// Status collects connection, log and bootstrap diagnostics.
func (s *Session) Status() Status {
	logStats := s.log.Stats()

	s.mu.RLock()
	st := Status{
		ID:           s.id,
		Log:          logStats,
		Paused:       logStats.Paused,
		Pending:      logStats.Pending,
		Bootstrapped: s.bootstrapped,
		Started:      s.started,
	}
	if s.bootErr != nil {
		st.BootstrapErr = health.Sanitize(s.bootErr.Error())
	}
	s.mu.RUnlock()

	st.Connection = s.conn.Stats()
	st.Types = eventlog.Types(s.log.Entries())
	return st
}

// Health aggregates stream and bootstrap health.
func (s *Session) Health() health.Status {
	return health.Aggregate("session", []health.Status{s.conn.Health(), s.bootstrapHealth()})
}

func (s *Session) bootstrapHealth() health.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.boot == nil:
		return health.NewHealthy("bootstrap", "bootstrap disabled")
	case s.bootErr != nil:
		return health.FromError("bootstrap", s.bootErr, health.StateDegraded)
	case !s.bootstrapped:
		return health.NewDegraded("bootstrap", "bootstrap pending")
	default:
		return health.NewHealthy("bootstrap", "bootstrap complete")
	}
}
