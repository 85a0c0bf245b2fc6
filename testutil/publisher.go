package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Message is one recorded publish.
type Message struct {
	Subject string
	Data    []byte
}

// MockPublisher is an in-memory publisher that records every message in
// order. Safe for concurrent use.
type MockPublisher struct {
	mu       sync.Mutex
	messages []Message
	failures map[string]error
	gate     chan struct{}
	closed   bool
}

// NewMockPublisher creates an empty publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{failures: make(map[string]error)}
}

// Publish records data under subject, or returns the failure configured for
// subject. It blocks while a gate is held.
func (p *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}
	if err := p.failures[subject]; err != nil {
		return err
	}
	p.messages = append(p.messages, Message{Subject: subject, Data: append([]byte(nil), data...)})
	return nil
}

// FailSubject makes every publish to subject return err. A nil err clears it.
func (p *MockPublisher) FailSubject(subject string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, subject)
		return
	}
	p.failures[subject] = err
}

// Hold makes Publish block until the returned release function is called.
func (p *MockPublisher) Hold() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.gate = gate
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.gate = nil
			p.mu.Unlock()
			close(gate)
		})
	}
}

// Close makes further publishes fail.
func (p *MockPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// All returns every recorded message in publish order.
func (p *MockPublisher) All() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

// Messages returns the payloads published to subject.
func (p *MockPublisher) Messages(subject string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out [][]byte
	for _, m := range p.messages {
		if m.Subject == subject {
			out = append(out, m.Data)
		}
	}
	return out
}

// Subjects returns the subject of every recorded message in order.
func (p *MockPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.messages))
	for i, m := range p.messages {
		out[i] = m.Subject
	}
	return out
}

// Count returns the number of recorded messages.
func (p *MockPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// WaitForCount polls until at least n messages are recorded or timeout
// elapses.
func (p *MockPublisher) WaitForCount(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if p.Count() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// Clear drops recorded messages.
func (p *MockPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}
