package gateway

import (
	"strings"

	"github.com/c360/signalfeed/errors"
)

// Config holds configuration for the HTTP gateway
type Config struct {
	// Prefix is the URL path prefix for every route (default "/api/").
	Prefix string `json:"prefix"`

	// EnableCORS enables CORS headers (default: false, requires explicit cors_origins)
	EnableCORS bool `json:"enable_cors"`

	// CORSOrigins lists allowed CORS origins (required when EnableCORS is true)
	// Use ["*"] for development only
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// MaxEvents caps the entries returned by one events request (default 200).
	MaxEvents int `json:"max_events,omitempty"`
}

// Validate ensures the gateway configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Prefix == "" {
		c.Prefix = "/api/"
	}
	if !strings.HasPrefix(c.Prefix, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"prefix must start with /")
	}
	if !strings.HasSuffix(c.Prefix, "/") {
		c.Prefix += "/"
	}

	if c.MaxEvents < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_events cannot be negative")
	}
	if c.MaxEvents == 0 {
		c.MaxEvents = 200
	}

	// CORS requires explicit origin configuration
	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"enable_cors requires explicit cors_origins configuration (use [\"*\"] for development only)")
	}

	return nil
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		Prefix:      "/api/",
		EnableCORS:  false,
		CORSOrigins: []string{},
		MaxEvents:   200,
	}
}
