// Package http serves the feed session as a JSON HTTP API.
package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/signalfeed/envelope"
	"github.com/c360/signalfeed/errors"
	"github.com/c360/signalfeed/eventlog"
	"github.com/c360/signalfeed/gateway"
	"github.com/c360/signalfeed/health"
	"github.com/c360/signalfeed/metric"
	"github.com/c360/signalfeed/pkg/cache"
	"github.com/c360/signalfeed/pkg/timestamp"
	"github.com/c360/signalfeed/session"
	"github.com/c360/signalfeed/snapshot"
)

// Source is the session surface the gateway reads and controls.
// *session.Session implements it.
type Source interface {
	Events(typeFilter, search string, q eventlog.Query) []envelope.Envelope
	Snapshot() *snapshot.Snapshot
	SetPaused(paused bool)
	Paused() bool
	Status() session.Status
	Health() health.Status
}

// getOrGenerateRequestID extracts request ID from headers or generates a new one
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	return uuid.NewString()
}

// Entry is one event in an events response.
type Entry struct {
	Type      string         `json:"type"`
	Timestamp float64        `json:"timestamp"`
	Time      string         `json:"time"`
	Summary   string         `json:"summary"`
	Event     map[string]any `json:"event"`
}

// EventsResponse is the body of an events request.
type EventsResponse struct {
	Events  []Entry  `json:"events"`
	Count   int      `json:"count"`
	Matched int      `json:"matched"`
	Paused  bool     `json:"paused"`
	Types   []string `json:"types"`
}

// Gateway implements the HTTP API over a Source
type Gateway struct {
	name   string
	config gateway.Config
	source Source
	logger *slog.Logger

	// compiled CEL expressions keyed by their trimmed source
	queries *cache.LRU[eventlog.Query]

	mu           sync.RWMutex
	startTime    time.Time
	lastActivity time.Time

	requestsTotal   atomic.Uint64
	requestsSuccess atomic.Uint64
	requestsFailed  atomic.Uint64
}

// Stats counts gateway requests.
type Stats struct {
	RequestsTotal   uint64      `json:"requests_total"`
	RequestsSuccess uint64      `json:"requests_success"`
	RequestsFailed  uint64      `json:"requests_failed"`
	LastActivity    time.Time   `json:"last_activity,omitempty"`
	QueryCache      cache.Stats `json:"query_cache"`
}

// queryCacheSize bounds the number of compiled expressions kept.
const queryCacheSize = 128

// Option configures a Gateway.
type Option func(*options)

type options struct {
	registry *metric.MetricsRegistry
}

// WithMetrics exports query cache counters to registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.registry = registry }
}

// NewGateway creates a gateway serving source.
func NewGateway(config gateway.Config, source Source, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Gateway", "NewGateway", "config validation")
	}
	if source == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway", "session is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	queries, err := cache.NewLRU(queryCacheSize, cache.WithMetrics[eventlog.Query](o.registry, "gateway_queries"))
	if err != nil {
		return nil, errors.Wrap(err, "Gateway", "NewGateway", "create query cache")
	}

	return &Gateway{
		name:      "http-gateway",
		config:    config,
		source:    source,
		logger:    logger.With("component", "http-gateway"),
		queries:   queries,
		startTime: time.Now(),
	}, nil
}

// compileQuery returns the cached program for expr, compiling it on a miss.
// Failed compilations are not cached.
func (g *Gateway) compileQuery(expr string) (eventlog.Query, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return eventlog.Query{}, nil
	}
	if q, ok := g.queries.Get(expr); ok {
		return q, nil
	}
	q, err := eventlog.CompileQuery(expr)
	if err != nil {
		return eventlog.Query{}, err
	}
	if _, err := g.queries.Set(expr, q); err != nil {
		g.logger.Warn("Failed to cache query", "error", err)
	}
	return q, nil
}

type route struct {
	path    string
	method  string
	handler func(w http.ResponseWriter, r *http.Request) error
}

func (g *Gateway) routes() []route {
	return []route{
		{path: "events", method: http.MethodGet, handler: g.handleEvents},
		{path: "snapshot", method: http.MethodGet, handler: g.handleSnapshot},
		{path: "pause", method: http.MethodPost, handler: g.handlePause(true)},
		{path: "resume", method: http.MethodPost, handler: g.handlePause(false)},
		{path: "status", method: http.MethodGet, handler: g.handleStatus},
		{path: "health", method: http.MethodGet, handler: g.handleHealth},
	}
}

// RegisterHTTPHandlers registers gateway routes with the HTTP mux. An empty
// prefix uses the configured one.
func (g *Gateway) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if prefix == "" {
		prefix = g.config.Prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	for _, rt := range g.routes() {
		mux.HandleFunc(prefix+rt.path, g.createRouteHandler(rt))
	}
}

// Handler returns a mux with every route mounted under the configured prefix.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	g.RegisterHTTPHandlers("", mux)
	return mux
}

func (g *Gateway) createRouteHandler(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)

		g.requestsTotal.Add(1)
		g.mu.Lock()
		g.lastActivity = time.Now()
		g.mu.Unlock()

		if g.config.EnableCORS {
			g.applyCORS(w, r)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		if r.Method != rt.method {
			w.Header().Set("Allow", rt.method)
			g.writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
			g.requestsFailed.Add(1)
			return
		}

		if err := rt.handler(w, r); err != nil {
			g.logger.Debug("Request failed", "path", r.URL.Path, "request_id", requestID, "error", err)
			g.writeError(w, g.mapErrorToHTTPStatus(err), g.sanitizeError(err))
			g.requestsFailed.Add(1)
			return
		}
		g.requestsSuccess.Add(1)
	}
}

func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()

	limit := g.config.MaxEvents
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return errors.WrapInvalid(fmt.Errorf("limit %q must be a positive integer", raw),
				"Gateway", "handleEvents", "parse limit")
		}
		if n < limit {
			limit = n
		}
	}

	q, err := g.compileQuery(query.Get("expr"))
	if err != nil {
		return err
	}

	typeFilter := query.Get("type")
	if typeFilter == "" {
		typeFilter = eventlog.AllTypes
	}

	matched := g.source.Events(typeFilter, query.Get("q"), q)
	page := matched
	if len(page) > limit {
		page = page[:limit]
	}

	status := g.source.Status()
	resp := EventsResponse{
		Events:  make([]Entry, 0, len(page)),
		Count:   len(page),
		Matched: len(matched),
		Paused:  status.Paused,
		Types:   status.Types,
	}
	if resp.Types == nil {
		resp.Types = []string{}
	}
	for _, e := range page {
		resp.Events = append(resp.Events, Entry{
			Type:      e.Type,
			Timestamp: e.Timestamp,
			Time:      timestamp.Format(e.Timestamp),
			Summary:   envelope.Summarize(e),
			Event:     e.Payload,
		})
	}
	return g.writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleSnapshot(w http.ResponseWriter, _ *http.Request) error {
	return g.writeJSON(w, http.StatusOK, g.source.Snapshot())
}

func (g *Gateway) handlePause(paused bool) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, _ *http.Request) error {
		g.source.SetPaused(paused)
		status := g.source.Status()
		return g.writeJSON(w, http.StatusOK, map[string]any{
			"paused":  status.Paused,
			"pending": status.Pending,
		})
	}
}

func (g *Gateway) handleStatus(w http.ResponseWriter, _ *http.Request) error {
	return g.writeJSON(w, http.StatusOK, map[string]any{
		"session": g.source.Status(),
		"gateway": g.Stats(),
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	status := g.source.Health()
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	return g.writeJSON(w, code, status)
}

// applyCORS applies CORS headers to the response
func (g *Gateway) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	allowed := false
	for _, allowedOrigin := range g.config.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}

	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// mapErrorToHTTPStatus maps classified errors to HTTP status codes
func (g *Gateway) mapErrorToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}

	if errors.IsInvalid(err) {
		return http.StatusBadRequest
	}
	if errors.IsTransient(err) {
		if strings.Contains(err.Error(), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// sanitizeError returns a safe error message for external clients
func (g *Gateway) sanitizeError(err error) string {
	if err == nil {
		return "internal server error"
	}

	if errors.IsInvalid(err) {
		// Query errors describe the caller's own input.
		if c := errors.ComponentOf(err); c == "eventlog" || c == "Gateway" {
			return health.Sanitize(err.Error())
		}
		return "invalid request"
	}
	if errors.IsTransient(err) {
		if strings.Contains(err.Error(), "timeout") {
			return "request timeout"
		}
		return "service temporarily unavailable"
	}
	return "internal server error"
}

func (g *Gateway) writeJSON(w http.ResponseWriter, statusCode int, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.WrapFatal(err, "Gateway", "writeJSON", "marshal response")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
	return nil
}

// writeError writes an error response
func (g *Gateway) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]any{
		"error":  message,
		"status": statusCode,
	}

	data, _ := json.Marshal(response)
	_, _ = w.Write(data)
}

// Stats returns request counters.
func (g *Gateway) Stats() Stats {
	g.mu.RLock()
	lastActivity := g.lastActivity
	g.mu.RUnlock()

	return Stats{
		RequestsTotal:   g.requestsTotal.Load(),
		RequestsSuccess: g.requestsSuccess.Load(),
		RequestsFailed:  g.requestsFailed.Load(),
		LastActivity:    lastActivity,
		QueryCache:      g.queries.Stats(),
	}
}

// Health reports the gateway itself as healthy once constructed, with
// request counters attached.
func (g *Gateway) Health() health.Status {
	g.mu.RLock()
	startTime := g.startTime
	lastActivity := g.lastActivity
	g.mu.RUnlock()

	return health.NewHealthy(g.name, "serving").WithMetrics(&health.Metrics{
		Uptime:            time.Since(startTime),
		ErrorCount:        int(g.requestsFailed.Load()),
		MessagesProcessed: int64(g.requestsSuccess.Load()),
		LastActivity:      lastActivity,
	})
}
