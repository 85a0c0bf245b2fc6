package retry

import (
	"sync"
	"time"
)

// Default reconnect bounds for long-lived stream subscriptions.
const (
	DefaultFloor   = 1 * time.Second
	DefaultCeiling = 10 * time.Second
)

// Backoff tracks the delay before the next reconnect attempt of a long-lived
// subscription. Unlike Do there is no attempt limit: the owner decides when to
// stop. The sequence is floor, 2*floor, 4*floor, ... capped at ceiling, and
// Reset returns it to floor after a successful open.
type Backoff struct {
	mu      sync.Mutex
	floor   time.Duration
	ceiling time.Duration
	current time.Duration
}

// NewBackoff creates a Backoff. Non-positive values fall back to the defaults,
// and a ceiling below the floor is raised to the floor.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultFloor
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{floor: floor, ceiling: ceiling, current: floor}
}

// Next returns the delay to wait for this failure and doubles the delay
// scheduled for the following one.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	wait := b.current
	b.current = scale(b.current, 2.0, b.ceiling)
	return wait
}

// Peek returns the delay the next failure would wait, without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Reset returns the delay to the floor.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.current = b.floor
	b.mu.Unlock()
}

// Floor returns the configured floor.
func (b *Backoff) Floor() time.Duration { return b.floor }

// Ceiling returns the configured ceiling.
func (b *Backoff) Ceiling() time.Duration { return b.ceiling }
