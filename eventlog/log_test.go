package eventlog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/signalfeed/envelope"
	"github.com/c360/signalfeed/metric"
)

func ev(n int) envelope.Envelope {
	return envelope.Envelope{
		Type:      "CollectorTickStarted",
		Timestamp: float64(n),
		Payload:   map[string]any{"seq": float64(n)},
	}
}

func seqs(entries []envelope.Envelope) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = int(e.Timestamp)
	}
	return out
}

func newLog(t *testing.T, capacity int) *Log {
	t.Helper()
	l, err := New(capacity)
	require.NoError(t, err)
	return l
}

func TestLog_DefaultCapacity(t *testing.T) {
	l := newLog(t, 0)
	assert.Equal(t, DefaultCapacity, l.Capacity())
}

func TestLog_BoundedCapacity(t *testing.T) {
	for _, tc := range []struct{ capacity, extra int }{{1, 0}, {3, 2}, {5, 12}, {200, 1}} {
		t.Run(fmt.Sprintf("cap=%d,k=%d", tc.capacity, tc.extra), func(t *testing.T) {
			l := newLog(t, tc.capacity)
			total := tc.capacity + tc.extra
			for i := 1; i <= total; i++ {
				l.Append(ev(i))
			}

			got := seqs(l.Entries())
			require.Len(t, got, tc.capacity)
			assert.Equal(t, tc.extra+1, got[0], "oldest retained")
			assert.Equal(t, total, got[len(got)-1], "newest retained")
			assert.Equal(t, int64(tc.extra), l.Stats().Evicted)
		})
	}
}

func TestLog_PauseFreezesVisible(t *testing.T) {
	l := newLog(t, 10)
	l.Append(ev(1))
	l.Append(ev(2))

	l.SetPaused(true)
	assert.True(t, l.Paused())
	l.Append(ev(3))
	l.Append(ev(4))
	l.Append(ev(5))

	assert.Equal(t, []int{1, 2}, seqs(l.Entries()))
	assert.Equal(t, []int{3, 4, 5}, seqs(l.Pending()))

	l.SetPaused(false)
	assert.False(t, l.Paused())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seqs(l.Entries()))
	assert.Empty(t, l.Pending())
}

func TestLog_ResumeTruncatesFromFront(t *testing.T) {
	l := newLog(t, 4)
	for i := 1; i <= 4; i++ {
		l.Append(ev(i))
	}

	l.SetPaused(true)
	for i := 5; i <= 7; i++ {
		l.Append(ev(i))
	}
	l.SetPaused(false)

	assert.Equal(t, []int{4, 5, 6, 7}, seqs(l.Entries()))
}

func TestLog_PauseBufferIsBounded(t *testing.T) {
	l := newLog(t, 3)
	l.SetPaused(true)
	for i := 1; i <= 5; i++ {
		l.Append(ev(i))
	}

	assert.Equal(t, []int{3, 4, 5}, seqs(l.Pending()))
	assert.Equal(t, int64(2), l.Stats().PendingEvicted)

	l.SetPaused(false)
	assert.Equal(t, []int{3, 4, 5}, seqs(l.Entries()))
}

func TestLog_RepeatedSetPausedIsNoop(t *testing.T) {
	l := newLog(t, 5)
	l.SetPaused(true)
	l.Append(ev(1))
	l.SetPaused(true)
	assert.Equal(t, []int{1}, seqs(l.Pending()))

	l.SetPaused(false)
	l.SetPaused(false)
	assert.Equal(t, []int{1}, seqs(l.Entries()))
}

func TestLog_NoLossNoDuplication(t *testing.T) {
	l := newLog(t, 50)
	n := 0
	for cycle := 0; cycle < 5; cycle++ {
		for i := 0; i < 3; i++ {
			n++
			l.Append(ev(n))
		}
		l.SetPaused(true)
		for i := 0; i < 4; i++ {
			n++
			l.Append(ev(n))
		}
		l.SetPaused(false)
	}

	got := seqs(l.Entries())
	require.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, i+1, v)
	}
}

func TestLog_Seed(t *testing.T) {
	l := newLog(t, 3)
	l.Append(ev(100))

	l.Seed([]envelope.Envelope{ev(1), ev(2), ev(3), ev(4), ev(5)})
	assert.Equal(t, []int{3, 4, 5}, seqs(l.Entries()))
	assert.Equal(t, 3, l.Len())

	l.Seed(nil)
	assert.Empty(t, l.Entries())
}

func TestLog_SeedWhilePausedKeepsPending(t *testing.T) {
	l := newLog(t, 5)
	l.SetPaused(true)
	l.Append(ev(9))
	l.Seed([]envelope.Envelope{ev(1), ev(2)})
	l.SetPaused(false)

	assert.Equal(t, []int{1, 2, 9}, seqs(l.Entries()))
}

func TestLog_EntriesIsCopy(t *testing.T) {
	l := newLog(t, 3)
	l.Append(ev(1))
	entries := l.Entries()
	entries[0] = ev(42)
	assert.Equal(t, []int{1}, seqs(l.Entries()))
}

func TestLog_Stats(t *testing.T) {
	l := newLog(t, 2)
	l.Append(ev(1))
	l.SetPaused(true)
	l.Append(ev(2))

	s := l.Stats()
	assert.Equal(t, Stats{Capacity: 2, Visible: 1, Pending: 1, Paused: true, Appended: 1}, s)
}

func TestLog_WithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	l, err := New(5, WithMetrics(registry, "event_log"))
	require.NoError(t, err)
	l.Append(ev(1))

	_, err = New(5, WithMetrics(registry, "event_log"))
	assert.Error(t, err)
}
