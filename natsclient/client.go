package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/signalfeed/errors"
	"github.com/c360/signalfeed/health"
)

// State is the client lifecycle position.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by publishes made without a live connection.
var ErrNotConnected = stderrors.New("not connected to NATS")

// Stats counts client activity since creation.
type Stats struct {
	State       string `json:"state"`
	Published   uint64 `json:"published"`
	Failed      uint64 `json:"failed"`
	Disconnects uint64 `json:"disconnects"`
	Reconnects  uint64 `json:"reconnects"`
}

// Client is a single managed NATS connection. Safe for concurrent use.
type Client struct {
	url    string
	name   string
	logger *slog.Logger

	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	dialTimeout   time.Duration
	drainTimeout  time.Duration

	username, password, token string

	onState func(State)
	state   atomic.Int32
	started time.Time

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream

	published   atomic.Uint64
	failed      atomic.Uint64
	disconnects atomic.Uint64
	reconnects  atomic.Uint64
	lastPublish atomic.Int64 // unix nanos
}

// NewClient validates options and returns an unconnected client.
func NewClient(serverURL string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(serverURL) == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "url is required")
	}

	c := &Client{
		url:           serverURL,
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		dialTimeout:   5 * time.Second,
		drainTimeout:  10 * time.Second,
		started:       time.Now(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient")
	return c, nil
}

// URL returns the server URL with credentials removed.
func (c *Client) URL() string { return redactURL(c.url) }

// redactURL drops userinfo from each entry of a comma-separated server list.
func redactURL(raw string) string {
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if u, err := url.Parse(p); err == nil && u.User != nil {
			u.User = nil
			p = u.String()
		}
		parts[i] = p
	}
	return strings.Join(parts, ",")
}

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	if c.onState != nil {
		c.onState(s)
	}
}

// Connect dials the server, giving up when ctx is done. Once connected,
// drops are handled by the nats.go reconnect loop.
func (c *Client) Connect(ctx context.Context) error {
	switch c.State() {
	case StateClosed:
		return errors.WrapInvalid(errors.ErrClosed, "Client", "Connect", "client closed")
	case StateConnected, StateReconnecting, StateConnecting:
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Client", "Connect", "already connected")
	}

	c.setState(StateConnecting)
	c.logger.Info("Connecting to NATS", "url", c.URL())

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.natsOptions()...)
		done <- result{conn, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// Whatever the dial eventually returns is discarded.
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		c.setState(StateDisconnected)
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "dial cancelled")
	}
	if res.err != nil {
		c.setState(StateDisconnected)
		return errors.WrapTransient(res.err, "Client", "Connect", "dial "+c.URL())
	}

	js, err := jetstream.New(res.conn)
	if err != nil {
		c.logger.Warn("JetStream unavailable", "error", err)
	}

	c.mu.Lock()
	c.conn, c.js = res.conn, js
	c.mu.Unlock()

	c.setState(StateConnected)
	c.logger.Info("Connected to NATS", "server", res.conn.ConnectedServerId())
	return nil
}

func (c *Client) natsOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.dialTimeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if c.State() == StateClosed {
				return
			}
			c.disconnects.Add(1)
			c.setState(StateReconnecting)
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			c.reconnects.Add(1)
			c.setState(StateConnected)
			c.logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			if c.State() != StateClosed {
				c.setState(StateDisconnected)
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			c.logger.Error("NATS async error", "error", err)
		}),
	}
	if c.name != "" {
		opts = append(opts, nats.Name(c.name))
	}
	if c.username != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	return opts
}

func (c *Client) live(method string) (*nats.Conn, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil || !conn.IsConnected() {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", method, "check connection")
	}
	return conn, nil
}

func (c *Client) record(err error) error {
	if err != nil {
		c.failed.Add(1)
		return err
	}
	c.published.Add(1)
	c.lastPublish.Store(time.Now().UnixNano())
	return nil
}

// Publish sends data on a core NATS subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn, err := c.live("Publish")
	if err != nil {
		return c.record(err)
	}
	if err := conn.Publish(subject, data); err != nil {
		return c.record(errors.WrapTransient(err, "Client", "Publish", "publish "+subject))
	}
	return c.record(nil)
}

func (c *Client) jetStream(method string) (jetstream.JetStream, error) {
	if _, err := c.live(method); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, errors.WrapFatal(fmt.Errorf("JetStream not initialized"), "Client", method, "get JetStream context")
	}
	return c.js, nil
}

// EnsureStream creates the stream or updates it to cfg.
func (c *Client) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	js, err := c.jetStream("EnsureStream")
	if err != nil {
		return nil, err
	}
	stream, err := js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "EnsureStream", "create stream "+cfg.Name)
	}
	c.logger.Info("JetStream stream ready", "stream", cfg.Name, "subjects", cfg.Subjects)
	return stream, nil
}

// PublishToStream publishes to a JetStream subject and waits for the ack.
func (c *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	js, err := c.jetStream("PublishToStream")
	if err != nil {
		return c.record(err)
	}
	if _, err := js.Publish(ctx, subject, data); err != nil {
		return c.record(errors.WrapTransient(err, "Client", "PublishToStream", "publish "+subject))
	}
	return c.record(nil)
}

// RTT measures the round trip to the server.
func (c *Client) RTT() (time.Duration, error) {
	conn, err := c.live("RTT")
	if err != nil {
		return 0, err
	}
	return conn.RTT()
}

// Stats returns activity counters.
func (c *Client) Stats() Stats {
	return Stats{
		State:       c.State().String(),
		Published:   c.published.Load(),
		Failed:      c.failed.Load(),
		Disconnects: c.disconnects.Load(),
		Reconnects:  c.reconnects.Load(),
	}
}

// Health maps the state to a health status with publish counters attached.
func (c *Client) Health() health.Status {
	var st health.Status
	switch s := c.State(); s {
	case StateConnected:
		msg := "connected"
		if rtt, err := c.RTT(); err == nil {
			msg = fmt.Sprintf("connected, rtt %s", rtt)
		}
		st = health.NewHealthy("nats", msg)
	case StateConnecting, StateReconnecting:
		st = health.NewDegraded("nats", s.String())
	default:
		st = health.NewUnhealthy("nats", s.String())
	}

	m := &health.Metrics{
		Uptime:            time.Since(c.started),
		ErrorCount:        int(c.failed.Load()),
		MessagesProcessed: int64(c.published.Load()),
	}
	if ns := c.lastPublish.Load(); ns > 0 {
		m.LastActivity = time.Unix(0, ns)
	}
	return st.WithMetrics(m)
}

// Close drains the connection, bounded by the drain timeout and ctx. It is
// idempotent and clears stored credentials.
func (c *Client) Close(ctx context.Context) error {
	if State(c.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}
	if c.onState != nil {
		c.onState(StateClosed)
	}

	c.mu.Lock()
	conn := c.conn
	c.conn, c.js = nil, nil
	c.username, c.password, c.token = "", "", ""
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, c.drainTimeout)
	defer cancel()

	drained := make(chan error, 1)
	go func() { drained <- conn.Drain() }()

	select {
	case err := <-drained:
		if err != nil {
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Client", "Close", "drain")
	}
}
