package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	StreamURL       string
	Transport       string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	NoBootstrap     bool
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
	PrintConfig     bool
	PrintSchema     bool
}

type layerFlag struct {
	paths *[]string
}

func (f layerFlag) String() string {
	if f.paths == nil {
		return ""
	}
	return fmt.Sprint(*f.paths)
}

func (f layerFlag) Set(v string) error {
	*f.paths = append(*f.paths, v)
	return nil
}

func parseFlags(args []string, getenv func(string) string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	env := envReader{getenv: getenv}

	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.Var(layerFlag{&cfg.ConfigPaths}, "config",
		"Configuration file, repeatable; later files win (env: SIGNALFEED_CONFIG)")
	fs.Var(layerFlag{&cfg.ConfigPaths}, "c", "Shorthand for --config")

	fs.StringVar(&cfg.StreamURL, "stream-url", "",
		"Event stream URL, overrides stream.url")
	fs.StringVar(&cfg.Transport, "transport", "",
		"Stream transport: sse, websocket; overrides stream.transport")

	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error; overrides logging.level")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text; overrides logging.format")
	fs.BoolVar(&cfg.Debug, "debug",
		env.bool("SIGNALFEED_DEBUG", false),
		"Enable debug logging (env: SIGNALFEED_DEBUG)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		env.duration("SIGNALFEED_SHUTDOWN_TIMEOUT", 15*time.Second),
		"Graceful shutdown timeout (env: SIGNALFEED_SHUTDOWN_TIMEOUT)")
	fs.BoolVar(&cfg.NoBootstrap, "no-bootstrap", false,
		"Skip the startup fetch of recent events and signals")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")
	fs.BoolVar(&cfg.PrintConfig, "print-config", false, "Print the resolved configuration and exit")
	fs.BoolVar(&cfg.PrintSchema, "print-schema", false, "Print the configuration JSON Schema and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if len(cfg.ConfigPaths) == 0 {
		if path := env.str("SIGNALFEED_CONFIG", ""); path != "" {
			cfg.ConfigPaths = []string{path}
		}
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp || cfg.PrintSchema {
		return nil
	}

	for _, path := range cfg.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}
	if cfg.LogLevel != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.Transport != "" && !slices.Contains([]string{"sse", "websocket"}, cfg.Transport) {
		return fmt.Errorf("invalid transport: %s", cfg.Transport)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive: %s", cfg.ShutdownTimeout)
	}
	return nil
}

func printHelp(w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - live signal feed client

Subscribes to a signal server's event stream, keeps a bounded event log and
a snapshot of the latest signals, and serves both over a JSON API. Events can
be republished to NATS.

Usage: %s [options]

Options:
  -c, --config PATH        Configuration file, repeatable (env: SIGNALFEED_CONFIG)
      --stream-url URL     Event stream URL
      --transport NAME     sse or websocket
      --log-level LEVEL    debug, info, warn, error (env: SIGNALFEED_LOGGING_LEVEL)
      --log-format FORMAT  json, text (env: SIGNALFEED_LOGGING_FORMAT)
      --debug              Debug logging (env: SIGNALFEED_DEBUG)
      --shutdown-timeout   Graceful shutdown timeout (env: SIGNALFEED_SHUTDOWN_TIMEOUT)
      --no-bootstrap       Skip the startup fetch
      --validate           Validate configuration and exit
      --print-config       Print the resolved configuration and exit
      --print-schema       Print the configuration JSON Schema and exit
  -v, --version            Show version information
  -h, --help               Show this help

Examples:
  # Follow a local server
  %s --stream-url=http://localhost:8080/api/stream

  # Layer a production override over a base file
  %s -c configs/base.json -c configs/prod.json

  # Republish to NATS
  export SIGNALFEED_NATS_URL=nats://localhost:4222
  %s

Version: %s
Build: %s
`, appName, appName, appName, appName, appName, Version, BuildTime)
}

type envReader struct {
	getenv func(string) string
}

func (e envReader) str(key, defaultValue string) string {
	if value := e.getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e envReader) bool(key string, defaultValue bool) bool {
	if value := e.getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (e envReader) duration(key string, defaultValue time.Duration) time.Duration {
	if value := e.getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
