package health

import (
	"slices"
	"sync"
	"time"
)

// Checker reports the current status of one part on demand.
type Checker func() Status

// Monitor holds named statuses, either pushed with Update or pulled from
// registered checkers on Check. Safe for concurrent use.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	checkers map[string]Checker
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		checkers: make(map[string]Checker),
	}
}

// Register adds a checker polled by Check, replacing any previous one with
// the same name.
func (m *Monitor) Register(name string, check Checker) {
	m.mu.Lock()
	m.checkers[name] = check
	m.mu.Unlock()
}

// Update records a pushed status. The component is forced to name.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	m.statuses[name] = stamp(name, status)
	m.mu.Unlock()
}

// Get returns the last recorded status for name.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[name]
	return s, ok
}

// Remove forgets name and its checker.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	delete(m.statuses, name)
	delete(m.checkers, name)
	m.mu.Unlock()
}

// Count returns the number of recorded statuses.
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}

// Check polls every checker outside the lock, records the results and
// returns the aggregate.
func (m *Monitor) Check(system string) Status {
	m.mu.RLock()
	checkers := make(map[string]Checker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	polled := make(map[string]Status, len(checkers))
	for name, c := range checkers {
		polled[name] = stamp(name, c())
	}

	m.mu.Lock()
	for name, s := range polled {
		// A checker removed while polling stays removed.
		if _, ok := m.checkers[name]; ok {
			m.statuses[name] = s
		}
	}
	m.mu.Unlock()

	return m.AggregateHealth(system)
}

// AggregateHealth aggregates recorded statuses, ordered by name, without
// polling.
func (m *Monitor) AggregateHealth(system string) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	slices.Sort(names)
	subs := make([]Status, len(names))
	for i, name := range names {
		subs[i] = m.statuses[name]
	}
	m.mu.RUnlock()

	return Aggregate(system, subs)
}

func stamp(name string, s Status) Status {
	s.Component = name
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return s
}
