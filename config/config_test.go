package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/signalfeed/errors"
	"github.com/c360/signalfeed/stream"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return l
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := newTestLoader(nil).Load()
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.Log.Capacity)
	assert.Equal(t, time.Second, cfg.Stream.BackoffFloor)
	assert.Equal(t, 10*time.Second, cfg.Stream.BackoffCeiling)
	assert.Equal(t, 100, cfg.Bootstrap.Limit)
	assert.Equal(t, TransportSSE, cfg.Stream.Transport)
	assert.Equal(t, "http://localhost:8080", cfg.Bootstrap.BaseURL)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, "/api/", cfg.HTTP.Gateway.Prefix)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, stream.KnownEventTypes, cfg.Stream.EventChannels())
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"stream": {
			"url": "wss://feed.example.com/api/stream",
			"transport": "websocket",
			"channels": ["AlertRaised", "WeatherUpdated"],
			"backoff_floor": "500ms",
			"backoff_ceiling": "5s"
		},
		"log": {"capacity": 50},
		"bootstrap": {"limit": 25, "timeout": "3s"},
		"nats": {"enabled": true, "url": "nats://nats:4222", "reconnect_wait": "1s", "stream": "SIGNALS"}
	}`)

	cfg, err := newTestLoader(nil).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, TransportWebSocket, cfg.Stream.Transport)
	assert.Equal(t, []string{"AlertRaised", "WeatherUpdated"}, cfg.Stream.EventChannels())
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.BackoffFloor)
	assert.Equal(t, 5*time.Second, cfg.Stream.BackoffCeiling)
	assert.Equal(t, 50, cfg.Log.Capacity)
	assert.Equal(t, 25, cfg.Bootstrap.Limit)
	assert.Equal(t, 3*time.Second, cfg.Bootstrap.Timeout)
	assert.Equal(t, "https://feed.example.com", cfg.Bootstrap.BaseURL)
	assert.Equal(t, time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, "SIGNALS", cfg.NATS.Stream)

	// Untouched sections keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Stream.HandshakeTimeout)
	assert.Equal(t, "signalfeed.events", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoader_LayersMergeInOrder(t *testing.T) {
	base := writeConfig(t, "base.json", `{
		"stream": {"url": "http://a.example.com/api/stream", "backoff_ceiling": "30s"},
		"logging": {"level": "debug", "format": "text"}
	}`)
	override := writeConfig(t, "override.json", `{
		"stream": {"url": "http://b.example.com/api/stream"},
		"logging": {"level": "warn"}
	}`)

	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://b.example.com/api/stream", cfg.Stream.URL)
	assert.Equal(t, 30*time.Second, cfg.Stream.BackoffCeiling)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoader_EnvOverrides(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{
		"SIGNALFEED_STREAM_URL":        "http://feed.internal:8080/api/stream",
		"SIGNALFEED_LOG_CAPACITY":      "75",
		"SIGNALFEED_BOOTSTRAP_ENABLED": "false",
		"SIGNALFEED_NATS_URL":          "nats://nats.internal:4222",
		"SIGNALFEED_LOGGING_FORMAT":    "text",
		"SIGNALFEED_HTTP_ADDR":         "",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://feed.internal:8080/api/stream", cfg.Stream.URL)
	assert.Equal(t, 75, cfg.Log.Capacity)
	assert.False(t, cfg.Bootstrap.Enabled)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://nats.internal:4222", cfg.NATS.URL)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, ":8090", cfg.HTTP.Addr, "empty env values are ignored")
}

func TestLoader_EnvOverrideErrors(t *testing.T) {
	tests := map[string]string{
		"SIGNALFEED_LOG_CAPACITY":      "many",
		"SIGNALFEED_BOOTSTRAP_ENABLED": "maybe",
		"SIGNALFEED_STREAM_URL":        "http://x\n/api/stream",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := newTestLoader(map[string]string{key: val}).Load()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoader_SchemaRejectsUnknownAndMistyped(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown section", `{"streams": {}}`, "streams"},
		{"unknown key", `{"stream": {"uri": "http://x"}}`, "uri"},
		{"wrong type", `{"log": {"capacity": "big"}}`, "capacity"},
		{"bad transport", `{"stream": {"transport": "grpc"}}`, "transport"},
		{"bad duration", `{"stream": {"backoff_floor": "soon"}}`, "backoff_floor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.json", tt.body)
			_, err := newTestLoader(nil).LoadFile(path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoader_IntegerDurations(t *testing.T) {
	path := writeConfig(t, "config.json", `{"bootstrap": {"timeout": 2000000000}}`)
	cfg, err := newTestLoader(nil).LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Bootstrap.Timeout)
}

func TestLoader_ValidationCanBeDisabled(t *testing.T) {
	path := writeConfig(t, "config.json", `{"log": {"capacity": 1}, "logging": {"level": "debug"}}`)
	l := newTestLoader(map[string]string{"SIGNALFEED_LOGGING_LEVEL": "loud"})

	_, err := l.LoadFile(path)
	require.Error(t, err)

	l.EnableValidation(false)
	cfg, err := l.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "loud", cfg.Logging.Level)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"missing url", func(c *Config) { c.Stream.URL = "" }, "stream.url is required"},
		{"relative url", func(c *Config) { c.Stream.URL = "/api/stream" }, "absolute"},
		{"sse over ws", func(c *Config) { c.Stream.URL = "ws://x/api/stream" }, "requires transport websocket"},
		{"unknown transport", func(c *Config) { c.Stream.Transport = "poll" }, "stream.transport"},
		{"ceiling below floor", func(c *Config) { c.Stream.BackoffCeiling = 500 * time.Millisecond }, "backoff_ceiling"},
		{"zero floor", func(c *Config) { c.Stream.BackoffFloor = 0 }, "backoff_floor"},
		{"zero capacity", func(c *Config) { c.Log.Capacity = 0 }, "log.capacity"},
		{"zero limit", func(c *Config) { c.Bootstrap.Limit = 0 }, "bootstrap.limit"},
		{"missing http addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"cors without origins", func(c *Config) { c.HTTP.Gateway.EnableCORS = true }, "cors_origins"},
		{"live buffer", func(c *Config) { c.HTTP.LiveBuffer = 0 }, "live_buffer"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"nats wildcard prefix", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.SubjectPrefix = "signals.>"
		}, "wildcards"},
		{"nats empty prefix", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.SubjectPrefix = "..."
		}, "subject_prefix"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_ValidateDisabledSectionsSkipChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTP.Enabled = false
	cfg.HTTP.Addr = ""
	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = ""
	cfg.Bootstrap.Enabled = false
	cfg.Bootstrap.Limit = 0
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Bootstrap.BaseURL)
}

func TestConfig_CloneAndRedact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NATS.Token = "s3cret"
	cfg.Stream.Headers = map[string]string{"Authorization": "Bearer abc", "X-Client": "cli"}

	clone := cfg.Clone()
	clone.Stream.Headers["X-Client"] = "changed"
	assert.Equal(t, "cli", cfg.Stream.Headers["X-Client"])

	out := cfg.String()
	assert.NotContains(t, out, "s3cret")
	assert.NotContains(t, out, "Bearer abc")
	assert.Contains(t, out, `"X-Client": "cli"`)
	assert.Equal(t, "s3cret", cfg.NATS.Token, "redaction must not modify the original")
}

func TestSchema_IsCopy(t *testing.T) {
	s := Schema()
	s[0] = 'x'
	assert.True(t, strings.HasPrefix(string(Schema()), "{"))
}
