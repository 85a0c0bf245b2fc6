package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/c360/signalfeed/errors"
	"github.com/c360/signalfeed/gateway"
	"github.com/c360/signalfeed/stream"
)

// Transport names accepted by StreamConfig.Transport.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Config is the complete signalfeed configuration.
type Config struct {
	Stream    StreamConfig    `json:"stream"`
	Log       LogConfig       `json:"log"`
	Bootstrap BootstrapConfig `json:"bootstrap"`
	HTTP      HTTPConfig      `json:"http"`
	Metrics   MetricsConfig   `json:"metrics"`
	NATS      NATSConfig      `json:"nats"`
	Logging   LoggingConfig   `json:"logging"`
}

// StreamConfig describes the live event subscription.
type StreamConfig struct {
	URL       string `json:"url"`
	Transport string `json:"transport"`

	// Channels lists the named SSE events to accept besides the default
	// channel. Empty means stream.KnownEventTypes.
	Channels []string `json:"channels,omitempty"`

	BackoffFloor     time.Duration     `json:"backoff_floor"`
	BackoffCeiling   time.Duration     `json:"backoff_ceiling"`
	HandshakeTimeout time.Duration     `json:"handshake_timeout"`
	MaxFrameSize     int               `json:"max_frame_size,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
}

// LogConfig sizes the in-memory event log.
type LogConfig struct {
	Capacity int `json:"capacity"`
}

// BootstrapConfig controls the startup fetch of recent events and the
// signal snapshot.
type BootstrapConfig struct {
	Enabled bool          `json:"enabled"`
	BaseURL string        `json:"base_url,omitempty"`
	Limit   int           `json:"limit"`
	Timeout time.Duration `json:"timeout"`
}

// HTTPConfig controls the JSON API.
type HTTPConfig struct {
	Enabled bool           `json:"enabled"`
	Addr    string         `json:"addr"`
	Gateway gateway.Config `json:"gateway"`

	// Live mounts a WebSocket push of every event at <prefix>live.
	Live       bool `json:"live"`
	LiveBuffer int  `json:"live_buffer"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	Path    string `json:"path"`
}

// NATSConfig controls republishing of events to NATS.
type NATSConfig struct {
	Enabled       bool          `json:"enabled"`
	URL           string        `json:"url"`
	Token         string        `json:"token,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	SubjectPrefix string        `json:"subject_prefix"`
	MaxReconnects int           `json:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnect_wait"`
	QueueSize     int           `json:"queue_size"`

	// Stream, when set, publishes through JetStream into a stream of this
	// name covering SubjectPrefix.>, created if missing.
	Stream string `json:"stream,omitempty"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Stream: StreamConfig{
			URL:              "http://localhost:8080/api/stream",
			Transport:        TransportSSE,
			BackoffFloor:     time.Second,
			BackoffCeiling:   10 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		Log: LogConfig{Capacity: 200},
		Bootstrap: BootstrapConfig{
			Enabled: true,
			Limit:   100,
			Timeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:       ":8090",
			Gateway:    gateway.DefaultConfig(),
			Live:       true,
			LiveBuffer: 64,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "signalfeed.events",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			QueueSize:     1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration and fills derived values.
func (c *Config) Validate() error {
	if err := c.Stream.validate(); err != nil {
		return err
	}

	if c.Log.Capacity < 1 {
		return invalid("log.capacity must be at least 1, got %d", c.Log.Capacity)
	}

	if c.Bootstrap.Enabled {
		if c.Bootstrap.BaseURL == "" {
			base, err := baseURL(c.Stream.URL)
			if err != nil {
				return err
			}
			c.Bootstrap.BaseURL = base
		}
		if c.Bootstrap.Limit < 1 {
			return invalid("bootstrap.limit must be at least 1, got %d", c.Bootstrap.Limit)
		}
		if c.Bootstrap.Timeout <= 0 {
			return invalid("bootstrap.timeout must be positive")
		}
	}

	if c.HTTP.Enabled {
		if c.HTTP.Addr == "" {
			return invalid("http.addr is required when http is enabled")
		}
		if err := c.HTTP.Gateway.Validate(); err != nil {
			return err
		}
		if c.HTTP.Live && c.HTTP.LiveBuffer < 1 {
			return invalid("http.live_buffer must be at least 1, got %d", c.HTTP.LiveBuffer)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			return invalid("metrics.addr is required when metrics is enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path must start with /")
		}
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return invalid("nats.url is required when nats is enabled")
		}
		if strings.Trim(c.NATS.SubjectPrefix, ".") == "" {
			return invalid("nats.subject_prefix is required when nats is enabled")
		}
		if strings.ContainsAny(c.NATS.SubjectPrefix, "*> \t") {
			return invalid("nats.subject_prefix %q must not contain wildcards or whitespace", c.NATS.SubjectPrefix)
		}
		if c.NATS.QueueSize < 1 {
			return invalid("nats.queue_size must be at least 1, got %d", c.NATS.QueueSize)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("invalid logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return invalid("invalid logging.format %q", c.Logging.Format)
	}

	return nil
}

func (s *StreamConfig) validate() error {
	if s.URL == "" {
		return invalid("stream.url is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" {
		return invalid("stream.url %q is not an absolute URL", s.URL)
	}

	switch s.Transport {
	case TransportSSE:
		if u.Scheme != "http" && u.Scheme != "https" {
			return invalid("stream.url scheme %q requires transport websocket", u.Scheme)
		}
	case TransportWebSocket:
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return invalid("stream.url scheme %q is not supported", u.Scheme)
		}
	default:
		return invalid("stream.transport must be %q or %q, got %q", TransportSSE, TransportWebSocket, s.Transport)
	}

	if s.BackoffFloor <= 0 {
		return invalid("stream.backoff_floor must be positive")
	}
	if s.BackoffCeiling < s.BackoffFloor {
		return invalid("stream.backoff_ceiling %s is below backoff_floor %s", s.BackoffCeiling, s.BackoffFloor)
	}
	if s.HandshakeTimeout < 0 {
		return invalid("stream.handshake_timeout cannot be negative")
	}
	if s.MaxFrameSize < 0 {
		return invalid("stream.max_frame_size cannot be negative")
	}
	return nil
}

// EventChannels returns the configured channels or the known event types.
func (s StreamConfig) EventChannels() []string {
	if len(s.Channels) > 0 {
		return s.Channels
	}
	return stream.KnownEventTypes
}

// baseURL derives the bootstrap origin from the stream URL.
func baseURL(streamURL string) (string, error) {
	u, err := url.Parse(streamURL)
	if err != nil {
		return "", invalid("stream.url %q: %v", streamURL, err)
	}
	scheme := u.Scheme
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Config", "Validate", "check configuration")
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return DefaultConfig()
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Redacted returns a copy with credentials masked, for logging.
func (c *Config) Redacted() *Config {
	out := c.Clone()
	if out.NATS.Token != "" {
		out.NATS.Token = "***"
	}
	if out.NATS.Password != "" {
		out.NATS.Password = "***"
	}
	for k := range out.Stream.Headers {
		if strings.EqualFold(k, "Authorization") || strings.EqualFold(k, "Cookie") {
			out.Stream.Headers[k] = "***"
		}
	}
	return out
}

// String returns the redacted configuration as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}
