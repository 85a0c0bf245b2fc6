// Package main implements the signalfeed command. It follows a signal
// server's live event stream, keeps a bounded event log and a snapshot of
// the latest signals, serves both over a JSON API, and can republish every
// event to NATS.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/signalfeed/config"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "signalfeed"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cli, err := parseFlags(args, os.Getenv)
	if err != nil {
		printHelp(os.Stderr)
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	switch {
	case cli.ShowVersion:
		_, _ = fmt.Fprintf(stdout, "%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	case cli.ShowHelp:
		printHelp(stdout)
		return nil
	case cli.PrintSchema:
		_, err := stdout.Write(config.Schema())
		return err
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	if cli.PrintConfig {
		_, _ = fmt.Fprintln(stdout, cfg.String())
		return nil
	}
	if cli.Validate {
		_, _ = fmt.Fprintln(stdout, "Configuration is valid")
		return nil
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	logger.Info("Starting signalfeed",
		"version", Version,
		"build_time", BuildTime,
		"config_paths", cli.ConfigPaths)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.run(ctx, cli.ShutdownTimeout); err != nil {
		return err
	}

	logger.Info("Signalfeed shutdown complete")
	return nil
}

// loadConfig resolves file layers, environment and flag overrides, then
// validates the result.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(false)
	for _, path := range cli.ConfigPaths {
		loader.AddLayer(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyFlagOverrides(cfg, cli)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config, cli *CLIConfig) {
	if cli.StreamURL != "" {
		cfg.Stream.URL = cli.StreamURL
	}
	if cli.Transport != "" {
		cfg.Stream.Transport = cli.Transport
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	if cli.NoBootstrap {
		cfg.Bootstrap.Enabled = false
	}
}
