package retry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_GrowthIsCapped(t *testing.T) {
	b := NewBackoff(1000*time.Millisecond, 10000*time.Millisecond)

	for k := 1; k <= 8; k++ {
		expected := time.Duration(1000*(1<<(k-1))) * time.Millisecond
		if expected > 10*time.Second {
			expected = 10 * time.Second
		}
		assert.Equal(t, expected, b.Next(), "failure %d", k)
	}
}

func TestBackoff_ResetReturnsToFloor(t *testing.T) {
	b := NewBackoff(time.Second, 10*time.Second)
	b.Next()
	b.Next()
	b.Next()
	assert.Equal(t, 8*time.Second, b.Peek())

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(0, -1)
	assert.Equal(t, DefaultFloor, b.Floor())
	assert.Equal(t, DefaultCeiling, b.Ceiling())

	inverted := NewBackoff(5*time.Second, time.Second)
	assert.Equal(t, 5*time.Second, inverted.Ceiling())
	assert.Equal(t, 5*time.Second, inverted.Next())
	assert.Equal(t, 5*time.Second, inverted.Next())
}

func TestBackoff_ConcurrentUse(t *testing.T) {
	b := NewBackoff(time.Millisecond, 50*time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d := b.Next()
				assert.LessOrEqual(t, d, 50*time.Millisecond)
				if j%10 == 0 {
					b.Reset()
				}
			}
		}()
	}
	wg.Wait()
}
