package natsclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/signalfeed/errors"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, client.State())
	assert.Equal(t, "nats://localhost:4222", client.URL())

	_, err = NewClient("  ")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNewClient_OptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{"max reconnects", WithMaxReconnects(-2)},
		{"reconnect wait", WithReconnectWait(-time.Second)},
		{"ping interval", WithPingInterval(-time.Second)},
		{"timeout", WithTimeout(-time.Second)},
		{"drain timeout", WithDrainTimeout(-time.Second)},
		{"half credentials", WithCredentials("user", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestURL_RedactsCredentials(t *testing.T) {
	client, err := NewClient("nats://user:secret@a:4222, nats://b:4222")
	require.NoError(t, err)
	assert.Equal(t, "nats://a:4222,nats://b:4222", client.URL())
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateReconnecting: "reconnecting",
		StateClosed:       "closed",
		State(42):         "unknown",
	}
	for s, want := range tests {
		assert.Equal(t, want, s.String())
	}
}

func TestPublish_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	ctx := context.Background()

	err = client.Publish(ctx, "a.b", []byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, errors.IsTransient(err))

	err = client.PublishToStream(ctx, "a.b", []byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.EnsureStream(ctx, jetstream.StreamConfig{Name: "S"})
	assert.ErrorIs(t, err, ErrNotConnected)

	st := client.Stats()
	assert.Equal(t, uint64(2), st.Failed)
	assert.Zero(t, st.Published)
}

func TestConnect_Unreachable(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)
	client, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(200*time.Millisecond),
		WithMaxReconnects(0),
		WithStateListener(func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StateDisconnected, client.State())

	mu.Lock()
	assert.Equal(t, []State{StateConnecting, StateDisconnected}, states)
	mu.Unlock()

	h := client.Health()
	assert.True(t, h.IsUnhealthy())
}

func TestConnect_ContextCancelled(t *testing.T) {
	client, err := NewClient("nats://10.255.255.1:4222", WithTimeout(5*time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithToken("secret"), WithCredentials("u", "p"))
	require.NoError(t, err)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))
	assert.Equal(t, StateClosed, client.State())
	assert.Empty(t, client.token)
	assert.Empty(t, client.password)

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, errors.ErrClosed)
}
