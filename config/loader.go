package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/signalfeed/errors"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "SIGNALFEED"

// durationFields lists the section.key paths that hold time.Duration values.
var durationFields = map[string][]string{
	"stream":    {"backoff_floor", "backoff_ceiling", "handshake_timeout"},
	"bootstrap": {"timeout"},
	"nats":      {"reconnect_wait"},
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader with validation enabled.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment variable prefix.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = strings.TrimSuffix(prefix, "_")
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range l.layers {
		raw, err := l.loadRawJSON(path)
		if err != nil {
			return nil, err
		}
		merged, err := mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "merge "+path)
		}
		cfg = merged
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRawJSON reads, schema-checks and decodes one layer.
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRawJSON", "read "+path)
	}

	if err := validateJSONDepth(data); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRawJSON", "check structure of "+path)
	}

	if err := validateSchema(data); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRawJSON", "validate "+path)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRawJSON", "decode "+path)
	}

	if err := parseDurations(raw); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRawJSON", "parse durations in "+path)
	}
	return raw, nil
}

// mergeFromMap overrides only the fields present in override.
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// parseDurations converts duration strings to nanoseconds in place.
func parseDurations(data map[string]any) error {
	for section, keys := range durationFields {
		m, ok := data[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			s, ok := m[key].(string)
			if !ok {
				continue
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", section, key, err)
			}
			m[key] = d.Nanoseconds()
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) error {
		val, ok := l.env(name)
		if !ok {
			return nil
		}
		if err := validateEnvVar(l.key(name), val); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "read "+l.key(name))
		}
		*dst = val
		return nil
	}

	overrides := []struct {
		name string
		dst  *string
	}{
		{"STREAM_URL", &cfg.Stream.URL},
		{"STREAM_TRANSPORT", &cfg.Stream.Transport},
		{"BOOTSTRAP_URL", &cfg.Bootstrap.BaseURL},
		{"HTTP_ADDR", &cfg.HTTP.Addr},
		{"METRICS_ADDR", &cfg.Metrics.Addr},
		{"NATS_TOKEN", &cfg.NATS.Token},
		{"NATS_SUBJECT_PREFIX", &cfg.NATS.SubjectPrefix},
		{"LOGGING_LEVEL", &cfg.Logging.Level},
		{"LOGGING_FORMAT", &cfg.Logging.Format},
	}
	for _, o := range overrides {
		if err := str(o.name, o.dst); err != nil {
			return err
		}
	}

	if _, ok := l.env("NATS_URL"); ok {
		if err := str("NATS_URL", &cfg.NATS.URL); err != nil {
			return err
		}
		cfg.NATS.Enabled = true
	}

	if val, ok := l.env("BOOTSTRAP_ENABLED"); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "parse "+l.key("BOOTSTRAP_ENABLED"))
		}
		cfg.Bootstrap.Enabled = b
	}

	if val, ok := l.env("LOG_CAPACITY"); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "parse "+l.key("LOG_CAPACITY"))
		}
		cfg.Log.Capacity = n
	}
	return nil
}

func (l *Loader) key(name string) string {
	return l.envPrefix + "_" + name
}

func (l *Loader) env(name string) (string, bool) {
	val, ok := l.lookupEnv(l.key(name))
	if !ok || val == "" {
		return "", false
	}
	return val, true
}
