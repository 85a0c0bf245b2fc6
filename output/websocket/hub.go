package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/signalfeed/envelope"
	"github.com/c360/signalfeed/errors"
	"github.com/c360/signalfeed/health"
	"github.com/c360/signalfeed/metric"
)

const (
	defaultClientBuffer = 64
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	maxClientMessage    = 4096
)

// Option configures a Hub.
type Option func(*Hub)

// WithClientBuffer sets how many events may queue per client.
func WithClientBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.clientBuffer = n
		}
	}
}

// WithWriteTimeout bounds each write to a client.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithPingInterval sets how often idle clients are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithCheckOrigin replaces the upgrader's same-origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// WithMetrics registers hub metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(h *Hub) {
		h.registry = registry
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Stats counts hub activity.
type Stats struct {
	Clients     int   `json:"clients"`
	Connections int64 `json:"connections_total"`
	Sent        int64 `json:"sent_total"`
	Dropped     int64 `json:"dropped_total"`
}

// Hub fans feed events out to connected WebSocket clients.
type Hub struct {
	upgrader     websocket.Upgrader
	clientBuffer int
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
	registry     *metric.MetricsRegistry
	metrics      *hubMetrics

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup

	connections atomic.Int64
	sent        atomic.Int64
	dropped     atomic.Int64
}

type hubMetrics struct {
	clients prometheus.Gauge
	sent    prometheus.Counter
	dropped prometheus.Counter
}

// client is one connection. queue is never closed; done ends the writer.
type client struct {
	conn      *websocket.Conn
	queue     chan []byte
	types     map[string]bool
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) wants(eventType string) bool {
	return len(c.types) == 0 || c.types[eventType]
}

func (c *client) stop() {
	c.closeOnce.Do(func() { close(c.done) })
}

// NewHub creates a hub with no clients.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clientBuffer: defaultClientBuffer,
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		logger:       slog.Default(),
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "websocket-hub")
	h.metrics = newHubMetrics(h.registry, h.logger)
	return h
}

func newHubMetrics(registry *metric.MetricsRegistry, logger *slog.Logger) *hubMetrics {
	if registry == nil {
		return nil
	}

	m := &hubMetrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "live",
			Name:      "clients_connected",
			Help:      "Number of connected live WebSocket clients",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "live",
			Name:      "messages_sent_total",
			Help:      "Events written to live clients",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "live",
			Name:      "messages_dropped_total",
			Help:      "Events dropped because a client queue was full",
		}),
	}

	for name, err := range map[string]error{
		"clients_connected":      registry.RegisterGauge("live", "clients_connected", m.clients),
		"messages_sent_total":    registry.RegisterCounter("live", "messages_sent_total", m.sent),
		"messages_dropped_total": registry.RegisterCounter("live", "messages_dropped_total", m.dropped),
	} {
		if err != nil {
			logger.Warn("Failed to register live metric", "metric", name, "error", err)
		}
	}
	return m
}

// Deliver queues e for every interested client. It never blocks.
func (h *Hub) Deliver(e envelope.Envelope) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Debug("Dropping unencodable event", "type", e.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	for c := range h.clients {
		if !c.wants(e.Type) {
			continue
		}
		select {
		case c.queue <- data:
		default:
			h.dropped.Add(1)
			if h.metrics != nil {
				h.metrics.dropped.Inc()
			}
		}
	}
}

// LivePath is the route the hub mounts under a gateway prefix.
const LivePath = "live"

// RegisterHTTPHandlers mounts the hub at prefix + LivePath.
func (h *Hub) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	mux.Handle(prefix+LivePath, h)
}

// ServeHTTP upgrades the request and serves the client until it leaves or
// the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "live feed closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn:  conn,
		queue: make(chan []byte, h.clientBuffer),
		types: parseTypes(r.URL.Query().Get("types")),
		done:  make(chan struct{}),
	}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	h.logger.Debug("Live client connected", "remote", r.RemoteAddr, "types", len(c.types))

	go h.writeLoop(c)
	h.readLoop(c)
}

func parseTypes(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	types := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[t] = true
		}
	}
	return types
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.connections.Add(1)
	if h.metrics != nil {
		h.metrics.clients.Set(float64(len(h.clients)))
	}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.wg.Done()
	if h.metrics != nil {
		h.metrics.clients.Set(float64(len(h.clients)))
	}
}

// readLoop consumes client frames so control messages are processed, and
// ends the client on the first read error.
func (h *Hub) readLoop(c *client) {
	defer func() {
		c.stop()
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxClientMessage)
	deadline := func() { _ = c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval)) }
	deadline()
	c.conn.SetPongHandler(func(string) error {
		deadline()
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		deadline()
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(h.writeTimeout))
			_ = c.conn.Close()
			return

		case data := <-c.queue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.stop()
				_ = c.conn.Close()
				return
			}
			h.sent.Add(1)
			if h.metrics != nil {
				h.metrics.sent.Inc()
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				c.stop()
				_ = c.conn.Close()
				return
			}
		}
	}
}

// Close disconnects every client and rejects new ones. It waits for the
// clients to leave and is idempotent.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for c := range h.clients {
		c.stop()
	}
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

// Stats returns the current counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	clients := len(h.clients)
	h.mu.RUnlock()

	return Stats{
		Clients:     clients,
		Connections: h.connections.Load(),
		Sent:        h.sent.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Health reports the hub as healthy until it is closed.
func (h *Hub) Health() health.Status {
	h.mu.RLock()
	closed := h.closed
	clients := len(h.clients)
	h.mu.RUnlock()

	if closed {
		return health.FromError("live", errors.ErrClosed, health.StateUnhealthy)
	}
	status := health.NewHealthy("live", fmt.Sprintf("%d clients connected", clients))
	return status.WithMetrics(&health.Metrics{
		MessagesProcessed: h.sent.Load(),
		ErrorCount:        int(h.dropped.Load()),
	})
}
