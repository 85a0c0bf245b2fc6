package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// maxMultiplier keeps float scaling finite.
const maxMultiplier = 1000

// Config bounds a Do call.
type Config struct {
	MaxAttempts  int           // total attempts; values below 1 mean one
	InitialDelay time.Duration // wait after the first failure
	MaxDelay     time.Duration // cap on any single wait
	Multiplier   float64       // growth factor between waits
	AddJitter    bool          // add up to 25% to each wait

	// Retryable reports whether err deserves another attempt. Nil retries
	// every error.
	Retryable func(error) bool
}

// DefaultConfig is three attempts between 100ms and 5s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Quick is ten fast attempts for startup paths.
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

// normalized fills zero fields from DefaultConfig and rejects negative or
// inverted bounds.
func (c Config) normalized() (Config, error) {
	if c.InitialDelay < 0 || c.MaxDelay < 0 || c.Multiplier < 0 {
		return c, errors.New("retry: delays and multiplier must not be negative")
	}
	def := DefaultConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = def.Multiplier
	}
	c.Multiplier = min(c.Multiplier, maxMultiplier)
	if c.MaxDelay < c.InitialDelay {
		return c, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return c, nil
}

func (c Config) wait(delay time.Duration) time.Duration {
	if !c.AddJitter || delay < 4 {
		return delay
	}
	return delay + rand.N(delay/4)
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. The final error wraps the last failure.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.normalized()
	if err != nil {
		return err
	}

	delay := cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		switch {
		case err == nil:
			return nil
		case cfg.Retryable != nil && !cfg.Retryable(err):
			return err
		case ctx.Err() != nil:
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		case attempt >= cfg.MaxAttempts:
			return fmt.Errorf("retry failed after %d attempts: %w", attempt, err)
		}

		if serr := Sleep(ctx, cfg.wait(delay)); serr != nil {
			return fmt.Errorf("retry cancelled waiting for attempt %d: %w", attempt+1, serr)
		}
		delay = scale(delay, cfg.Multiplier, cfg.MaxDelay)
	}
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var ferr error
		result, ferr = fn()
		return ferr
	})
	return result, err
}

// Sleep waits d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func scale(delay time.Duration, multiplier float64, limit time.Duration) time.Duration {
	next := float64(delay) * multiplier
	if next >= float64(limit) {
		return limit
	}
	return time.Duration(next)
}
