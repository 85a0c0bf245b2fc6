package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/c360/signalfeed/errors"
)

// SSEOption configures an SSETransport.
type SSEOption func(*SSETransport)

// WithHTTPClient sets the client used for stream requests. The client must
// not set a Timeout, since the response body stays open indefinitely.
func WithHTTPClient(c *http.Client) SSEOption {
	return func(t *SSETransport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithHeader adds a request header to every stream request.
func WithHeader(key, value string) SSEOption {
	return func(t *SSETransport) {
		t.header.Add(key, value)
	}
}

// WithMaxFrameSize bounds the size of one event's data. Larger events end
// the subscription.
func WithMaxFrameSize(n int) SSEOption {
	return func(t *SSETransport) {
		if n > 0 {
			t.maxFrame = n
		}
	}
}

// SSETransport subscribes to a server-sent events endpoint.
type SSETransport struct {
	url      string
	client   *http.Client
	header   http.Header
	maxFrame int

	mu          sync.Mutex
	lastEventID string
}

// NewSSETransport creates a transport for the given endpoint URL.
func NewSSETransport(url string, opts ...SSEOption) *SSETransport {
	t := &SSETransport{
		url:      url,
		client:   &http.Client{},
		header:   make(http.Header),
		maxFrame: 1 << 20,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LastEventID returns the id of the most recent event seen on any
// subscription. It is sent as Last-Event-ID when resubscribing.
func (t *SSETransport) LastEventID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastEventID
}

func (t *SSETransport) setLastEventID(id string) {
	t.mu.Lock()
	t.lastEventID = id
	t.mu.Unlock()
}

// Subscribe issues the stream request and returns once the server answered
// with a 2xx text/event-stream response.
func (t *SSETransport) Subscribe(ctx context.Context) (Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, errors.WrapFatal(err, "SSETransport", "Subscribe", "build request")
	}
	for k, vs := range t.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if id := t.LastEventID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "SSETransport", "Subscribe", "GET stream")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %s", errors.ErrUnexpectedStatus, resp.Status),
			"SSETransport", "Subscribe", "check status")
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		resp.Body.Close()
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: content type %q", errors.ErrHandshakeFailed, resp.Header.Get("Content-Type")),
			"SSETransport", "Subscribe", "check content type")
	}

	return &sseSubscription{
		transport: t,
		body:      resp.Body,
		reader:    bufio.NewReader(resp.Body),
		maxFrame:  t.maxFrame,
	}, nil
}

type sseSubscription struct {
	transport *SSETransport
	body      io.ReadCloser
	reader    *bufio.Reader
	maxFrame  int

	closeOnce sync.Once
}

// lineSlack covers the field name and line terminator around a data value.
const lineSlack = 64

// readLine reads one line, failing once it grows past the frame limit so a
// line without a terminator cannot buffer without bound.
func (s *sseSubscription) readLine() (string, error) {
	var line []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if len(line)+len(chunk) > s.maxFrame+lineSlack {
			return "", errors.WrapTransient(
				fmt.Errorf("line exceeds %d bytes", s.maxFrame),
				"SSETransport", "Next", "read line")
		}
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			continue
		}
		return string(line), err
	}
}

// Next reads lines until a complete event is dispatched. Comments and
// events without data are skipped.
func (s *sseSubscription) Next(ctx context.Context) (Frame, error) {
	var (
		eventType string
		eventID   string
		hasID     bool
		data      strings.Builder
		hasData   bool
	)

	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		line, err := s.readLine()
		if err != nil {
			if err == io.EOF {
				return Frame{}, errors.WrapTransient(errors.ErrConnectionLost, "SSETransport", "Next", "read stream")
			}
			return Frame{}, errors.WrapTransient(err, "SSETransport", "Next", "read stream")
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasID {
				s.transport.setLastEventID(eventID)
			}
			if !hasData {
				eventType, eventID, hasID = "", "", false
				continue
			}
			return Frame{Channel: eventType, ID: eventID, Data: []byte(data.String())}, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			eventType = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
			if data.Len() > s.maxFrame {
				return Frame{}, errors.WrapTransient(
					fmt.Errorf("event data exceeds %d bytes", s.maxFrame),
					"SSETransport", "Next", "read event")
			}
		case "id":
			if !strings.Contains(value, "\x00") {
				eventID = value
				hasID = true
			}
		}
	}
}

func (s *sseSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
