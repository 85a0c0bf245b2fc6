package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/c360/signalfeed/envelope"
	"github.com/c360/signalfeed/errors"
	"github.com/c360/signalfeed/health"
	"github.com/c360/signalfeed/metric"
	"github.com/c360/signalfeed/pkg/retry"
)

// Listener receives each decoded envelope on the connection's run goroutine.
// It must not block for long; the next frame is not read until it returns.
type Listener func(envelope.Envelope)

// StateListener observes state transitions on the run goroutine. The final
// transition to StateClosed is reported on the goroutine that called Close,
// after the run goroutine has exited.
type StateListener func(from, to State)

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithChannels sets the named channels whose frames are delivered in
// addition to the default channel. Defaults to KnownEventTypes.
func WithChannels(channels []string) Option {
	return func(c *Connection) {
		c.channels = channelSet(channels)
	}
}

// WithBackoff sets the reconnect delay floor and ceiling.
func WithBackoff(floor, ceiling time.Duration) Option {
	return func(c *Connection) {
		c.backoff = retry.NewBackoff(floor, ceiling)
	}
}

// WithStateListener registers a callback for state transitions.
func WithStateListener(fn StateListener) Option {
	return func(c *Connection) {
		c.onState = fn
	}
}

// WithMetrics records connection activity on the given core metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Connection) {
		c.metrics = m
	}
}

// WithName sets the component name used in logs and health.
func WithName(name string) Option {
	return func(c *Connection) {
		if name != "" {
			c.name = name
		}
	}
}

// Stats is a snapshot of connection counters.
type Stats struct {
	ID           string        `json:"id"`
	State        State         `json:"state"`
	Frames       int64         `json:"frames"`
	Delivered    int64         `json:"delivered"`
	Malformed    int64         `json:"malformed"`
	Unsubscribed int64         `json:"unsubscribed"`
	Opens        int64         `json:"opens"`
	Reconnects   int64         `json:"reconnects"`
	LastDelay    time.Duration `json:"last_delay"`
	LastError    string        `json:"last_error,omitempty"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

// Connection is a reconnecting client for the feed stream.
type Connection struct {
	id        string
	name      string
	transport Transport
	listener  Listener
	onState   StateListener
	channels  map[string]bool
	backoff   *retry.Backoff
	logger    *slog.Logger
	metrics   *metric.Metrics
	dropLog   *rate.Limiter

	// wait sleeps between attempts; tests replace it.
	wait func(ctx context.Context, d time.Duration) error

	state atomic.Int32

	frames       atomic.Int64
	delivered    atomic.Int64
	malformed    atomic.Int64
	unsubscribed atomic.Int64
	opens        atomic.Int64
	reconnects   atomic.Int64
	lastDelay    atomic.Int64
	lastErr      atomic.Value // string
	lastActivity atomic.Value // time.Time
	startTime    time.Time

	lifecycleMu sync.Mutex
	started     bool
	closed      bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	subMu   sync.Mutex
	sub     Subscription
	closing bool
}

// New creates a connection. It does no I/O until Start.
func New(transport Transport, listener Listener, opts ...Option) *Connection {
	c := &Connection{
		id:        uuid.NewString(),
		name:      "stream",
		transport: transport,
		listener:  listener,
		channels:  channelSet(KnownEventTypes),
		backoff:   retry.NewBackoff(retry.DefaultFloor, retry.DefaultCeiling),
		logger:    slog.Default(),
		dropLog:   rate.NewLimiter(rate.Every(time.Second), 5),
		wait:      retry.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", c.name, "connection_id", c.id)
	return c
}

func channelSet(channels []string) map[string]bool {
	set := make(map[string]bool, len(channels)+2)
	set[DefaultChannel] = true
	set["message"] = true
	for _, ch := range channels {
		set[ch] = true
	}
	return set
}

// ID returns the connection's instance id.
func (c *Connection) ID() string {
	return c.id
}

// Start opens the first subscription in the background and returns.
// The connection runs until Close or until ctx is cancelled.
func (c *Connection) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed {
		return errors.WrapInvalid(errors.ErrClosed, "Connection", "Start", "connection closed")
	}
	if c.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Connection", "Start", "check started state")
	}
	if c.transport == nil {
		return errors.WrapFatal(fmt.Errorf("nil transport"), "Connection", "Start", "validate transport")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true
	c.startTime = time.Now()

	c.setState(StateConnecting)

	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

// Close stops the connection. It cancels any pending backoff wait, closes
// the active subscription and waits for the run goroutine to exit. No
// listener call happens after Close returns. Close is idempotent.
func (c *Connection) Close() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.cancel != nil {
		c.cancel()
	}

	c.subMu.Lock()
	c.closing = true
	sub := c.sub
	c.sub = nil
	c.subMu.Unlock()
	if sub != nil {
		_ = sub.Close()
	}

	c.wg.Wait()
	c.setState(StateClosed)
	c.logger.Info("Stream connection closed")
	return nil
}

// State returns the current state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Stats returns a snapshot of the connection counters.
func (c *Connection) Stats() Stats {
	s := Stats{
		ID:           c.id,
		State:        c.State(),
		Frames:       c.frames.Load(),
		Delivered:    c.delivered.Load(),
		Malformed:    c.malformed.Load(),
		Unsubscribed: c.unsubscribed.Load(),
		Opens:        c.opens.Load(),
		Reconnects:   c.reconnects.Load(),
		LastDelay:    time.Duration(c.lastDelay.Load()),
	}
	if v, ok := c.lastErr.Load().(string); ok {
		s.LastError = v
	}
	if v, ok := c.lastActivity.Load().(time.Time); ok {
		s.LastActivity = v
	}
	return s
}

// Health maps the state to a health status: open is healthy, connecting
// and reconnecting are degraded, idle and closed are unhealthy.
func (c *Connection) Health() health.Status {
	stats := c.Stats()
	var status health.Status
	switch stats.State {
	case StateOpen:
		status = health.NewHealthy(c.name, "stream open")
	case StateConnecting:
		status = health.NewDegraded(c.name, "connecting")
	case StateReconnecting:
		msg := fmt.Sprintf("reconnecting in %s", stats.LastDelay)
		if stats.LastError != "" {
			msg += ": " + health.Sanitize(stats.LastError)
		}
		status = health.NewDegraded(c.name, msg)
	default:
		status = health.NewUnhealthy(c.name, "stream "+stats.State.String())
	}

	var uptime time.Duration
	if !c.startTime.IsZero() {
		uptime = time.Since(c.startTime)
	}
	return status.WithMetrics(&health.Metrics{
		Uptime:            uptime,
		ErrorCount:        int(stats.Malformed + stats.Reconnects),
		MessagesProcessed: stats.Delivered,
		LastActivity:      stats.LastActivity,
	})
}

func (c *Connection) setState(to State) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	if c.metrics != nil {
		c.metrics.RecordConnectionState(int(to))
	}
	c.logger.Debug("Stream state changed", "from", from.String(), "to", to.String())
	if c.onState != nil {
		c.onState(from, to)
	}
}

func (c *Connection) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)

		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}

		delay := c.backoff.Next()
		c.reconnects.Add(1)
		c.lastDelay.Store(int64(delay))
		if err != nil {
			c.lastErr.Store(err.Error())
		}
		if c.metrics != nil {
			c.metrics.RecordReconnect(delay)
			c.metrics.RecordError(c.name, errors.Classify(err).String())
		}
		c.setState(StateReconnecting)
		c.logger.Warn("Stream transport failed, reconnecting",
			"error", err, "delay", delay, "attempt", c.reconnects.Load())

		if err := c.wait(ctx, delay); err != nil {
			return
		}
	}
}

// session runs one subscription to completion and returns why it ended.
func (c *Connection) session(ctx context.Context) error {
	sub, err := c.transport.Subscribe(ctx)
	if err != nil {
		return err
	}
	if !c.attach(sub) {
		_ = sub.Close()
		return errors.ErrClosed
	}
	defer c.detach(sub)

	c.opens.Add(1)
	c.backoff.Reset()
	c.setState(StateOpen)
	c.logger.Info("Stream connection open")

	for {
		frame, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.handleFrame(frame)
	}
}

func (c *Connection) attach(sub Subscription) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closing {
		return false
	}
	c.sub = sub
	return true
}

func (c *Connection) detach(sub Subscription) {
	c.subMu.Lock()
	if c.sub == sub {
		c.sub = nil
	}
	c.subMu.Unlock()
	_ = sub.Close()
}

func (c *Connection) handleFrame(frame Frame) {
	c.frames.Add(1)
	c.lastActivity.Store(time.Now())

	if !c.channels[frame.Channel] {
		c.unsubscribed.Add(1)
		if c.metrics != nil {
			c.metrics.RecordFrameDropped("unsubscribed")
		}
		return
	}

	env, err := envelope.Decode(frame.Data)
	if err != nil {
		c.malformed.Add(1)
		if c.metrics != nil {
			c.metrics.RecordFrameDropped("malformed")
		}
		if c.dropLog.Allow() {
			c.logger.Debug("Dropped malformed frame", "channel", frame.Channel, "error", err)
		}
		return
	}

	c.deliver(env)
}

func (c *Connection) deliver(env envelope.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Listener panicked", "type", env.Type, "panic", r)
			if c.metrics != nil {
				c.metrics.RecordError(c.name, "listener_panic")
			}
		}
	}()

	if c.listener != nil {
		c.listener(env)
	}
	c.delivered.Add(1)
	if c.metrics != nil {
		c.metrics.RecordEventReceived(env.Type)
	}
}
