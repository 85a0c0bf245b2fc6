package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/c360/signalfeed/bootstrap"
	"github.com/c360/signalfeed/config"
	"github.com/c360/signalfeed/gateway"
	gatewayhttp "github.com/c360/signalfeed/gateway/http"
	"github.com/c360/signalfeed/health"
	"github.com/c360/signalfeed/metric"
	"github.com/c360/signalfeed/natsclient"
	"github.com/c360/signalfeed/output/natspub"
	wsout "github.com/c360/signalfeed/output/websocket"
	"github.com/c360/signalfeed/session"
	"github.com/c360/signalfeed/stream"
)

// app owns every long-lived component of one signalfeed process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	monitor  *health.Monitor

	session *session.Session
	nats    *natsclient.Client
	sink    *natspub.Sink
	gateway *gatewayhttp.Gateway
	hub     *wsout.Hub

	httpServer    *http.Server
	metricsServer *metric.Server
}

// monitoredSource reports process-wide health through the gateway.
type monitoredSource struct {
	*session.Session
	monitor *health.Monitor
}

func (s monitoredSource) Health() health.Status {
	return s.monitor.Check(appName)
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
		monitor:  health.NewMonitor(),
	}

	opts := []session.Option{
		session.WithCapacity(cfg.Log.Capacity),
		session.WithLogger(logger),
		session.WithMetrics(a.registry),
		session.WithMonitor(a.monitor),
		session.WithStreamOptions(
			stream.WithChannels(cfg.Stream.EventChannels()),
			stream.WithBackoff(cfg.Stream.BackoffFloor, cfg.Stream.BackoffCeiling),
		),
	}

	if cfg.Bootstrap.Enabled {
		client, err := bootstrap.New(cfg.Bootstrap.BaseURL,
			bootstrap.WithLimit(cfg.Bootstrap.Limit),
			bootstrap.WithTimeout(cfg.Bootstrap.Timeout),
			bootstrap.WithMetrics(a.registry.CoreMetrics()),
			bootstrap.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create bootstrap client: %w", err)
		}
		opts = append(opts, session.WithBootstrap(client))
	}

	if cfg.NATS.Enabled {
		sink, err := a.setupNATS(ctx)
		if err != nil {
			a.closeNATS()
			return nil, err
		}
		opts = append(opts, session.WithSink(sink))
	}

	if cfg.HTTP.Enabled && cfg.HTTP.Live {
		a.hub = wsout.NewHub(
			wsout.WithClientBuffer(cfg.HTTP.LiveBuffer),
			wsout.WithCheckOrigin(originChecker(cfg.HTTP.Gateway)),
			wsout.WithMetrics(a.registry),
			wsout.WithLogger(logger))
		a.monitor.Register("live", a.hub.Health)
		opts = append(opts, session.WithSink(a.hub))
	}

	sess, err := session.New(buildTransport(cfg.Stream), opts...)
	if err != nil {
		a.closeNATS()
		return nil, fmt.Errorf("create session: %w", err)
	}
	a.session = sess

	if cfg.HTTP.Enabled {
		gw, err := gatewayhttp.NewGateway(cfg.HTTP.Gateway, monitoredSource{Session: sess, monitor: a.monitor}, logger,
			gatewayhttp.WithMetrics(a.registry))
		if err != nil {
			a.closeNATS()
			return nil, fmt.Errorf("create gateway: %w", err)
		}
		a.gateway = gw
		a.monitor.Register("gateway", gw.Health)
		handlers := []gateway.HTTPHandler{gw}
		if a.hub != nil {
			handlers = append(handlers, a.hub)
		}
		mux := http.NewServeMux()
		for _, h := range handlers {
			h.RegisterHTTPHandlers(cfg.HTTP.Gateway.Prefix, mux)
		}
		a.httpServer = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	if cfg.Metrics.Enabled {
		a.metricsServer = metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, a.registry)
	}
	return a, nil
}

// setupNATS connects the client and builds the republishing sink. With a
// configured stream, events go through JetStream and wait for acks.
func (a *app) setupNATS(ctx context.Context) (*natspub.Sink, error) {
	cfg := a.cfg.NATS

	clientOpts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(a.logger),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait),
	}
	if cfg.Token != "" {
		clientOpts = append(clientOpts, natsclient.WithToken(cfg.Token))
	}
	if cfg.Username != "" {
		clientOpts = append(clientOpts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}

	client, err := natsclient.NewClient(cfg.URL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	a.nats = client

	a.logger.Info("Connecting to NATS")
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connCtx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	a.monitor.Register("nats", client.Health)

	var pub natspub.Publisher = client
	prefix := strings.Trim(cfg.SubjectPrefix, ".")
	if cfg.Stream != "" {
		if _, err := client.EnsureStream(connCtx, jetstream.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{prefix + ".>"},
		}); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
		}
		pub = natspub.PublisherFunc(client.PublishToStream)
	}

	sink, err := natspub.New(pub,
		natspub.WithSubjectPrefix(prefix),
		natspub.WithQueueSize(cfg.QueueSize),
		natspub.WithMetrics(a.registry.CoreMetrics()),
		natspub.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("create NATS sink: %w", err)
	}
	a.sink = sink
	return sink, nil
}

// buildTransport picks the stream transport. WebSocket URLs given with an
// http scheme are dialed as ws.
func buildTransport(cfg config.StreamConfig) stream.Transport {
	if cfg.Transport == config.TransportWebSocket {
		opts := []stream.WebSocketOption{}
		if cfg.HandshakeTimeout > 0 {
			opts = append(opts, stream.WithHandshakeTimeout(cfg.HandshakeTimeout))
		}
		for k, v := range cfg.Headers {
			opts = append(opts, stream.WithRequestHeader(k, v))
		}
		return stream.NewWebSocketTransport(websocketURL(cfg.URL), opts...)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.HandshakeTimeout > 0 {
		transport.ResponseHeaderTimeout = cfg.HandshakeTimeout
	}
	opts := []stream.SSEOption{stream.WithHTTPClient(&http.Client{Transport: transport})}
	if cfg.MaxFrameSize > 0 {
		opts = append(opts, stream.WithMaxFrameSize(cfg.MaxFrameSize))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, stream.WithHeader(k, v))
	}
	return stream.NewSSETransport(cfg.URL, opts...)
}

// originChecker admits same-origin upgrades, plus the configured CORS
// origins when CORS is enabled.
func originChecker(cfg gateway.Config) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
			return true
		}
		if !cfg.EnableCORS {
			return false
		}
		for _, allowed := range cfg.CORSOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}
}

func websocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	default:
		return u
	}
}

// run starts every component and blocks until ctx is done or a server
// fails, then shuts down within shutdownTimeout.
func (a *app) run(ctx context.Context, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	var ln net.Listener
	if a.httpServer != nil {
		var err error
		if ln, err = net.Listen("tcp", a.httpServer.Addr); err != nil {
			return fmt.Errorf("listen on %s: %w", a.httpServer.Addr, err)
		}
	}

	// The sink outlives ctx; shutdown closes it after the stream stops.
	if a.sink != nil {
		if err := a.sink.Start(context.Background()); err != nil {
			return fmt.Errorf("start NATS sink: %w", err)
		}
	}

	if a.metricsServer != nil {
		g.Go(a.metricsServer.Start)
		a.logger.Info("Metrics server listening", "address", a.metricsServer.Address())
	}

	if ln != nil {
		a.logger.Info("HTTP API listening", "address", ln.Addr().String(), "prefix", a.cfg.HTTP.Gateway.Prefix)
		g.Go(func() error {
			if err := a.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("serve HTTP API: %w", err)
			}
			return nil
		})
	}

	if err := a.session.Start(gctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	a.logger.Info("Signalfeed started",
		"stream_url", a.cfg.Stream.URL,
		"transport", a.cfg.Stream.Transport,
		"session_id", a.session.ID())

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.shutdown(shutdownCtx)
	})

	return g.Wait()
}

// shutdown closes the stream before the sink, and the sink before NATS, so
// queued events are published.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error

	if err := a.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close NATS sink: %w", err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close live hub: %w", err))
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown HTTP API: %w", err))
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close NATS: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (a *app) closeNATS() {
	if a.nats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.nats.Close(ctx)
}
