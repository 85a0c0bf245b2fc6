package bootstrap

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/signalfeed/envelope"
	"github.com/c360/signalfeed/errors"
	"github.com/c360/signalfeed/metric"
	"github.com/c360/signalfeed/pkg/retry"
	"github.com/c360/signalfeed/snapshot"
)

const (
	// DefaultLimit is the number of recent events requested.
	DefaultLimit = 100
	// DefaultTimeout bounds a single request attempt.
	DefaultTimeout = 10 * time.Second

	eventsPath   = "/api/events"
	snapshotPath = "/api/signals"

	maxBodySize = 32 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithLimit sets the number of recent events requested by Fetch.
func WithLimit(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.limit = n
		}
	}
}

// WithRetry sets the retry policy. Retryable is always replaced so that
// only transient failures are retried.
func WithRetry(cfg retry.Config) Option {
	return func(cl *Client) {
		cl.retry = cfg
	}
}

// WithMetrics records fetch durations on the given core metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// Client fetches bootstrap state from the feed server.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	limit   int
	retry   retry.Config
	metrics *metric.Metrics
	logger  *slog.Logger
}

// Result is the outcome of Fetch. Fields are populated independently; a
// failed resource leaves its field empty.
type Result struct {
	Events   []envelope.Envelope
	Dropped  int
	Snapshot *snapshot.Snapshot
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.WrapInvalid(err, "bootstrap", "New", "parse base url")
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: base url %q must be http(s)", errors.ErrInvalidConfig, baseURL),
			"bootstrap", "New", "validate base url")
	}

	c := &Client{
		base:    base,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		limit:   DefaultLimit,
		retry:   retry.DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.Retryable = errors.IsTransient
	c.logger = c.logger.With("component", "bootstrap")
	return c, nil
}

// Fetch requests recent events and the snapshot concurrently. The error
// joins the failures of both requests.
func (c *Client) Fetch(ctx context.Context) (Result, error) {
	var (
		result             Result
		eventsErr, snapErr error
		g                  errgroup.Group
	)

	g.Go(func() error {
		result.Events, result.Dropped, eventsErr = c.FetchEvents(ctx, c.limit)
		return nil
	})
	g.Go(func() error {
		result.Snapshot, snapErr = c.FetchSnapshot(ctx)
		return nil
	})
	_ = g.Wait()

	return result, stderrors.Join(eventsErr, snapErr)
}

// FetchEvents returns up to limit recent events, oldest first. Items that
// do not normalize are skipped and counted in the second return value.
func (c *Client) FetchEvents(ctx context.Context, limit int) ([]envelope.Envelope, int, error) {
	if limit <= 0 {
		limit = c.limit
	}
	query := url.Values{"limit": []string{strconv.Itoa(limit)}}

	var (
		events  []envelope.Envelope
		dropped int
	)
	err := c.get(ctx, "events", eventsPath, query, func(body []byte) error {
		var err error
		events, dropped, err = envelope.DecodeAll(body)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if dropped > 0 {
		c.logger.Debug("Skipped malformed bootstrap events", "dropped", dropped)
	}
	return events, dropped, nil
}

// FetchSnapshot returns the server's current snapshot with every map
// allocated.
func (c *Client) FetchSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	err := c.get(ctx, "snapshot", snapshotPath, nil, func(body []byte) error {
		if err := json.Unmarshal(body, &snap); err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
				"bootstrap", "FetchSnapshot", "decode snapshot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot.Normalize(&snap), nil
}

// get performs a retried GET and hands the body to decode. Decode errors
// are not retried.
func (c *Client) get(ctx context.Context, resource, path string, query url.Values, decode func([]byte) error) error {
	target := c.base.JoinPath(path)
	if query != nil {
		target.RawQuery = query.Encode()
	}

	start := time.Now()
	attempts := 0
	err := retry.Do(ctx, c.retry, func() error {
		attempts++
		body, err := c.once(ctx, target.String())
		if err != nil {
			c.logger.Debug("Bootstrap request failed", "resource", resource, "attempt", attempts, "error", err)
			return err
		}
		return decode(body)
	})

	if c.metrics != nil {
		c.metrics.RecordBootstrap(resource, err == nil, time.Since(start))
	}
	if err != nil {
		c.logger.Warn("Bootstrap fetch failed", "resource", resource, "attempts", attempts, "error", err)
		return errors.WrapTransient(fmt.Errorf("%w: %s: %w", errors.ErrBootstrapFailed, resource, err),
			"bootstrap", "get", "GET "+path)
	}
	c.logger.Debug("Bootstrap fetch complete", "resource", resource, "attempts", attempts,
		"duration", time.Since(start))
	return nil
}

func (c *Client) once(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.WrapFatal(err, "bootstrap", "once", "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "bootstrap", "once", "GET "+req.URL.Path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := fmt.Errorf("%w: %s", errors.ErrUnexpectedStatus, resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, errors.WrapTransient(statusErr, "bootstrap", "once", "check status")
		}
		return nil, errors.WrapInvalid(statusErr, "bootstrap", "once", "check status")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, errors.WrapTransient(err, "bootstrap", "once", "read body")
	}
	if len(body) > maxBodySize {
		return nil, errors.WrapInvalid(fmt.Errorf("response exceeds %d bytes", maxBodySize),
			"bootstrap", "once", "read body")
	}
	return body, nil
}
