package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/signalfeed/errors"
)

// WebSocketOption configures a WebSocketTransport.
type WebSocketOption func(*WebSocketTransport)

// WithDialer replaces the default dialer.
func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(t *WebSocketTransport) {
		if d != nil {
			t.dialer = d
		}
	}
}

// WithHandshakeTimeout sets the opening handshake timeout.
func WithHandshakeTimeout(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		if d > 0 {
			t.dialer.HandshakeTimeout = d
		}
	}
}

// WithReadIdleTimeout ends a subscription when no frame, ping or pong
// arrives for d. Zero disables the deadline.
func WithReadIdleTimeout(d time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.idle = d
	}
}

// WithRequestHeader adds a header to the opening handshake.
func WithRequestHeader(key, value string) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.header.Add(key, value)
	}
}

// WebSocketTransport subscribes to a WebSocket endpoint that pushes one
// JSON message per text frame.
type WebSocketTransport struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	idle   time.Duration
}

// NewWebSocketTransport creates a transport for a ws:// or wss:// URL.
func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Subscribe dials and completes the handshake.
func (t *WebSocketTransport) Subscribe(ctx context.Context) (Subscription, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		if resp != nil {
			return nil, errors.WrapTransient(
				fmt.Errorf("%w: %s: %v", errors.ErrHandshakeFailed, resp.Status, err),
				"WebSocketTransport", "Subscribe", "dial")
		}
		return nil, errors.WrapTransient(err, "WebSocketTransport", "Subscribe", "dial")
	}

	sub := &wsSubscription{conn: conn, idle: t.idle}
	if t.idle > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(t.idle))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(t.idle))
		})
		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(t.idle))
			err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
			if err == websocket.ErrCloseSent {
				return nil
			}
			return err
		})
	}
	return sub, nil
}

type wsSubscription struct {
	conn *websocket.Conn
	idle time.Duration

	closeOnce sync.Once
}

// channelFrame is the named-channel form {"event": "<name>", "data": ...}.
type channelFrame struct {
	Event *string         `json:"event"`
	Data  json.RawMessage `json:"data"`
	ID    string          `json:"id"`
}

func (s *wsSubscription) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Frame{}, errors.WrapTransient(errors.ErrConnectionLost, "WebSocketTransport", "Next", "server closed")
			}
			return Frame{}, errors.WrapTransient(err, "WebSocketTransport", "Next", "read message")
		}
		if s.idle > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		return splitFrame(data), nil
	}
}

// splitFrame recognizes the named-channel form. Anything else, including a
// wrapped envelope whose "event" is an object, is a bare frame on the
// default channel.
func splitFrame(data []byte) Frame {
	var cf channelFrame
	if err := json.Unmarshal(data, &cf); err != nil || cf.Event == nil || len(cf.Data) == 0 {
		return Frame{Channel: DefaultChannel, Data: data}
	}

	body := []byte(cf.Data)
	// data may be the JSON document itself or a string holding it
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			body = []byte(s)
		}
	}
	return Frame{Channel: *cf.Event, ID: cf.ID, Data: body}
}

func (s *wsSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
