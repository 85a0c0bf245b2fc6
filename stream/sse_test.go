package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/signalfeed/envelope"
	"github.com/c360/signalfeed/errors"
)

func sseServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readAll(t *testing.T, sub Subscription) ([]Frame, error) {
	t.Helper()
	var frames []Frame
	for {
		f, err := sub.Next(context.Background())
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

func TestSSE_ParsesEvents(t *testing.T) {
	body := ": keepalive\n\n" +
		"event: WeatherUpdated\n" +
		"id: 7\n" +
		`data: {"type":"WeatherUpdated",` + "\n" +
		`data: "timestamp":1}` + "\n\n" +
		"data:{\"type\":\"AlertRaised\"}\r\n\r\n" +
		"event: Nothing\n\n" +
		"retry: 1000\n" +
		"data: {\"type\":\"NewsUpdated\"}\n\n"
	srv := sseServer(t, body)

	transport := NewSSETransport(srv.URL)
	sub, err := transport.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	frames, err := readAll(t, sub)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConnectionLost)
	assert.True(t, errors.IsTransient(err))

	require.Len(t, frames, 3)
	assert.Equal(t, "WeatherUpdated", frames[0].Channel)
	assert.Equal(t, "7", frames[0].ID)
	assert.Equal(t, "{\"type\":\"WeatherUpdated\",\n\"timestamp\":1}", string(frames[0].Data))

	env, err := envelope.Decode(frames[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "WeatherUpdated", env.Type)

	assert.Equal(t, DefaultChannel, frames[1].Channel)
	assert.Equal(t, `{"type":"AlertRaised"}`, string(frames[1].Data))
	assert.Equal(t, DefaultChannel, frames[2].Channel, "event name does not leak into the next event")

	assert.Equal(t, "7", transport.LastEventID())
}

func TestSSE_SendsHeadersAndLastEventID(t *testing.T) {
	var mu sync.Mutex
	var seen []http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Clone())
		mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "id: abc\ndata: {\"type\":\"A\"}\n\n")
	}))
	defer srv.Close()

	transport := NewSSETransport(srv.URL, WithHeader("Authorization", "Bearer t"))
	for i := 0; i < 2; i++ {
		sub, err := transport.Subscribe(context.Background())
		require.NoError(t, err)
		_, _ = readAll(t, sub)
		require.NoError(t, sub.Close())
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, "text/event-stream", seen[0].Get("Accept"))
	assert.Equal(t, "Bearer t", seen[0].Get("Authorization"))
	assert.Empty(t, seen[0].Get("Last-Event-ID"))
	assert.Equal(t, "abc", seen[1].Get("Last-Event-ID"))
}

func TestSSE_HandshakeFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		want        error
	}{
		{"server error", http.StatusServiceUnavailable, "text/event-stream", errors.ErrUnexpectedStatus},
		{"not found", http.StatusNotFound, "text/plain", errors.ErrUnexpectedStatus},
		{"wrong content type", http.StatusOK, "application/json", errors.ErrHandshakeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewSSETransport(srv.URL).Subscribe(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, errors.IsTransient(err))
		})
	}
}

func TestSSE_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewSSETransport(url).Subscribe(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestSSE_FrameTooLarge(t *testing.T) {
	srv := sseServer(t, "data: "+strings.Repeat("x", 64)+"\n\n")

	sub, err := NewSSETransport(srv.URL, WithMaxFrameSize(16)).Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	_, err = sub.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")
}

func TestSSE_UnterminatedLineIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: ")
		chunk := strings.Repeat("x", 4096)
		for i := 0; i < 1024; i++ {
			if _, err := fmt.Fprint(w, chunk); err != nil {
				return
			}
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	sub, err := NewSSETransport(srv.URL, WithMaxFrameSize(1024)).Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errCh <- err
	}()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line exceeds 1024 bytes")
		assert.True(t, errors.IsTransient(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Next kept buffering an unterminated line")
	}
}

func TestSSE_LongLineWithinLimit(t *testing.T) {
	payload := strings.Repeat("a", 10000)
	srv := sseServer(t, `data: {"type":"A","timestamp":1,"note":"`+payload+`"}`+"\n\n")

	sub, err := NewSSETransport(srv.URL).Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	f, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(f.Data), payload)
}

func TestSSE_CloseUnblocksNext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	sub, err := NewSSETransport(srv.URL).Subscribe(context.Background())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestConnection_ReconnectsOverSSE(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprintf(w, "event: AlertRaised\ndata: {\"type\":\"AlertRaised\",\"timestamp\":%d,\"event\":{\"message\":\"m%d\"}}\n\n", n, n)
	}))
	defer srv.Close()

	rec := &recorder{}
	conn := New(NewSSETransport(srv.URL), rec.listen)
	conn.wait = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	require.NoError(t, conn.Start(context.Background()))
	require.Eventually(t, func() bool { return len(rec.types()) >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, conn.Close())

	stats := conn.Stats()
	assert.GreaterOrEqual(t, stats.Opens, int64(3))
	assert.GreaterOrEqual(t, stats.Reconnects, int64(2))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "m1", rec.events[0].String("message"))
	assert.Equal(t, 1.0, rec.events[0].Timestamp)
}
