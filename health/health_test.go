package health

import (
	"fmt"
	"sync"
	"testing"
)

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		name      string
		status    Status
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{"healthy", NewHealthy("c", "ok"), true, false, false},
		{"degraded", NewDegraded("c", "slow"), false, true, false},
		{"unhealthy", NewUnhealthy("c", "down"), false, false, true},
		{"empty", Status{}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsHealthy(); got != tt.healthy {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.healthy)
			}
			if got := tt.status.IsDegraded(); got != tt.degraded {
				t.Errorf("IsDegraded() = %v, want %v", got, tt.degraded)
			}
			if got := tt.status.IsUnhealthy(); got != tt.unhealthy {
				t.Errorf("IsUnhealthy() = %v, want %v", got, tt.unhealthy)
			}
			if tt.status.Healthy != tt.healthy {
				t.Errorf("Healthy field = %v, want %v", tt.status.Healthy, tt.healthy)
			}
		})
	}
}

func TestWithSubStatus_SliceIsolation(t *testing.T) {
	base := NewHealthy("root", "ok").WithSubStatus(NewHealthy("a", "ok"))
	one := base.WithSubStatus(NewHealthy("b", "ok"))
	two := base.WithSubStatus(NewDegraded("c", "slow"))

	if len(base.SubStatuses) != 1 {
		t.Fatalf("base modified: %d sub-statuses", len(base.SubStatuses))
	}
	if one.SubStatuses[1].Component != "b" || two.SubStatuses[1].Component != "c" {
		t.Errorf("sub-status slices share storage: %v / %v", one.SubStatuses, two.SubStatuses)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain failure", "plain failure"},
		{`Get "http://example.com:8080/api/signals": EOF`, `Get "[URL]": EOF`},
		{"dial tcp 10.0.0.5:443: refused", "dial tcp [IP]: refused"},
		{"auth token=abc123 rejected", "auth [REDACTED] rejected"},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFromError(t *testing.T) {
	if s := FromError("bootstrap", nil, StateDegraded); !s.IsHealthy() {
		t.Errorf("nil error should be healthy, got %s", s.Status)
	}
	if s := FromError("bootstrap", fmt.Errorf("boom"), StateDegraded); !s.IsDegraded() || s.Message != "boom" {
		t.Errorf("expected degraded boom, got %s %q", s.Status, s.Message)
	}
	if s := FromError("stream", fmt.Errorf("boom"), StateUnhealthy); !s.IsUnhealthy() {
		t.Errorf("expected unhealthy, got %s", s.Status)
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name    string
		subs    []Status
		want    string
		wantMsg string
	}{
		{"empty", nil, StateHealthy, "no components registered"},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy, "2 components healthy"},
		{"degraded wins over healthy", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded, "degraded: b"},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StateUnhealthy, "unhealthy: a, b"},
		{"unknown state is unhealthy", []Status{{Component: "x", Status: "weird"}}, StateUnhealthy, "unhealthy: x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("sys", tt.subs)
			if got.Status != tt.want {
				t.Errorf("Aggregate() = %s, want %s", got.Status, tt.want)
			}
			if got.Message != tt.wantMsg {
				t.Errorf("Aggregate() message = %q, want %q", got.Message, tt.wantMsg)
			}
			if got.Healthy != (tt.want == StateHealthy) {
				t.Errorf("Healthy = %v for state %s", got.Healthy, got.Status)
			}
			if len(got.SubStatuses) != len(tt.subs) {
				t.Errorf("Aggregate() kept %d sub-statuses, want %d", len(got.SubStatuses), len(tt.subs))
			}
		})
	}
}

func TestMonitor_UpdateAndGet(t *testing.T) {
	m := NewMonitor()
	m.Update("stream", Status{Component: "wrong", Status: StateHealthy})

	got, ok := m.Get("stream")
	if !ok {
		t.Fatal("expected stream status")
	}
	if got.Component != "stream" {
		t.Errorf("component = %q, want stream", got.Component)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}

	m.Update("bootstrap", NewDegraded("", "retrying"))
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}

	m.Remove("bootstrap")
	if _, ok := m.Get("bootstrap"); ok {
		t.Error("bootstrap still recorded after Remove")
	}
}

func TestMonitor_CheckPollsCheckers(t *testing.T) {
	m := NewMonitor()
	var mu sync.Mutex
	state := StateDegraded
	m.Register("stream", func() Status {
		mu.Lock()
		defer mu.Unlock()
		return Status{Status: state}
	})
	m.Update("bootstrap", NewHealthy("", "ok"))

	if got := m.Check("signalfeed"); got.Status != StateDegraded {
		t.Errorf("Check() = %s, want degraded", got.Status)
	}

	mu.Lock()
	state = StateHealthy
	mu.Unlock()
	got := m.Check("signalfeed")
	if got.Status != StateHealthy {
		t.Errorf("Check() = %s, want healthy", got.Status)
	}
	if got.SubStatuses[0].Component != "bootstrap" || got.SubStatuses[1].Component != "stream" {
		t.Errorf("sub-statuses not ordered by name: %v", got.SubStatuses)
	}

	m.Remove("stream")
	if got := m.Check("signalfeed"); len(got.SubStatuses) != 1 {
		t.Errorf("removed checker still polled: %v", got.SubStatuses)
	}
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	m.Register("stream", func() Status { return NewHealthy("stream", "open") })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("part-%d", n)
			for j := 0; j < 50; j++ {
				m.Update(name, NewHealthy(name, "ok"))
				_ = m.Check("sys")
				_, _ = m.Get(name)
			}
		}(i)
	}
	wg.Wait()

	if m.Count() != 9 {
		t.Errorf("Count() = %d, want 9", m.Count())
	}
}
