package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/signalfeed/errors"
	"github.com/c360/signalfeed/metric"
	"github.com/c360/signalfeed/pkg/retry"
)

const eventsBody = `[
	{"type":"SiteFetched","timestamp":"2026-02-12T20:00:00Z","event":{"siteId":"a"}},
	{"timestamp":1},
	"junk",
	{"type":"AlertRaised","timestamp":1770926430.5,"message":"hot"}
]`

const signalsBody = `{
	"sites": {"a": {"siteId":"a","url":"https://a.example","hash":"h","title":null,"linkCount":3,
		"lastChecked":"2026-02-12T20:00:00Z","lastChanged":1770926400}},
	"news": {},
	"weather": {"Boston": {"location":"Boston","tempF":41.5,"conditions":"Rain","alerts":["Flood"],"updatedAt":1770926400}}
}`

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func feedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_Validation(t *testing.T) {
	for _, bad := range []string{"", "localhost:8080", "ftp://host", "http://"} {
		_, err := New(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.IsInvalid(err), bad)
	}

	c, err := New("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, c.limit)
}

func TestFetchEvents(t *testing.T) {
	limits := make(chan string, 1)
	srv := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events", r.URL.Path)
		limits <- r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(eventsBody))
	})

	c, err := New(srv.URL, WithLimit(25))
	require.NoError(t, err)

	events, dropped, err := c.FetchEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "25", <-limits)
	assert.Equal(t, 2, dropped)
	require.Len(t, events, 2)
	assert.Equal(t, "SiteFetched", events[0].Type)
	assert.Equal(t, float64(1770926400), events[0].Timestamp)
	assert.Equal(t, "a", events[0].String("siteId"))
	assert.Equal(t, "AlertRaised", events[1].Type)
	assert.Equal(t, "hot", events[1].String("message"))
}

func TestFetchSnapshot(t *testing.T) {
	srv := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/signals", r.URL.Path)
		_, _ = w.Write([]byte(signalsBody))
	})

	c, err := New(srv.URL)
	require.NoError(t, err)

	snap, err := c.FetchSnapshot(context.Background())
	require.NoError(t, err)

	site := snap.Sites["a"]
	assert.Nil(t, site.Title)
	assert.Equal(t, 3, site.LinkCount)
	assert.Equal(t, 1770926400.0, site.LastChecked.Float())
	assert.Equal(t, []string{"Flood"}, snap.Weather["Boston"].Alerts)
	assert.NotNil(t, snap.AirQuality, "optional maps are allocated")
	assert.NotNil(t, snap.Markets)
	assert.NotNil(t, snap.LocalHappenings)
}

func TestFetch_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	c, err := New(srv.URL, WithRetry(fastRetry()))
	require.NoError(t, err)

	events, _, err := c.FetchEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"invalid_query_params"}`, http.StatusBadRequest)
	})

	c, err := New(srv.URL, WithRetry(fastRetry()))
	require.NoError(t, err)

	_, _, err = c.FetchEvents(context.Background(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBootstrapFailed)
	assert.ErrorIs(t, err, errors.ErrUnexpectedStatus)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_MalformedBodyNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"not":"an array"`))
	})

	c, err := New(srv.URL, WithRetry(fastRetry()))
	require.NoError(t, err)

	_, err = c.FetchSnapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBootstrapFailed)
	assert.ErrorIs(t, err, errors.ErrParsingFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_PartialResult(t *testing.T) {
	srv := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/signals" {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(eventsBody))
	})

	registry := metric.NewMetricsRegistry()
	c, err := New(srv.URL, WithRetry(fastRetry()), WithMetrics(registry.CoreMetrics()))
	require.NoError(t, err)

	result, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBootstrapFailed)
	assert.Len(t, result.Events, 2)
	assert.Nil(t, result.Snapshot)

	hist := registry.CoreMetrics().BootstrapDuration
	assert.Equal(t, 2, testutil.CollectAndCount(hist))
}

func TestFetch_ContextCancelled(t *testing.T) {
	srv := feedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})

	c, err := New(srv.URL, WithRetry(retry.Config{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err = c.FetchEvents(ctx, 1)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, errors.ErrBootstrapFailed)
}
