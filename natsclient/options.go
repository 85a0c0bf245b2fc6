package natsclient

import (
	"fmt"
	"log/slog"
	"time"
)

// ClientOption configures a Client. Options reject out-of-range values.
type ClientOption func(*Client) error

func nonNegative(name string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%s must not be negative, got %s", name, d)
	}
	return nil
}

// WithName sets the connection name shown by the server.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.name = name
		return nil
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMaxReconnects bounds reconnect attempts after a drop. -1 retries
// forever.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		if n < -1 {
			return fmt.Errorf("max reconnects must be -1 or greater, got %d", n)
		}
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the pause between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.reconnectWait = d
		return nonNegative("reconnect wait", d)
	}
}

// WithPingInterval sets the server ping interval.
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.pingInterval = d
		return nonNegative("ping interval", d)
	}
}

// WithTimeout bounds the initial dial.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.dialTimeout = d
		return nonNegative("timeout", d)
	}
}

// WithDrainTimeout bounds Close. A shorter context deadline wins.
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = d
		return nonNegative("drain timeout", d)
	}
}

// WithToken authenticates with a bearer token.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithCredentials authenticates with a username and password. Both are
// required.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if (username == "") != (password == "") {
			return fmt.Errorf("username and password must be set together")
		}
		c.username, c.password = username, password
		return nil
	}
}

// WithStateListener registers fn for every state transition. It runs on
// nats.go callback goroutines and must not block.
func WithStateListener(fn func(State)) ClientOption {
	return func(c *Client) error {
		c.onState = fn
		return nil
	}
}
