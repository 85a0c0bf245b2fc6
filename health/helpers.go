package health

import (
	"fmt"
	"strings"
	"time"
)

// NewHealthy returns a healthy status for component.
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewDegraded returns a degraded status for component.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// NewUnhealthy returns an unhealthy status for component.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// severity orders states so the worst one wins. Unknown states count as
// unhealthy.
func severity(state string) int {
	switch state {
	case StateHealthy:
		return 0
	case StateDegraded:
		return 1
	default:
		return 2
	}
}

// Aggregate takes the worst state among subs. The message names the
// components that are not healthy.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "no components registered")
	}

	worst := StateHealthy
	var failing []string
	for _, sub := range subs {
		if severity(sub.Status) > severity(worst) {
			worst = sub.Status
			if severity(worst) == 2 {
				worst = StateUnhealthy
			}
		}
		if !sub.IsHealthy() {
			failing = append(failing, sub.Component)
		}
	}

	msg := fmt.Sprintf("%d components healthy", len(subs))
	if len(failing) > 0 {
		msg = fmt.Sprintf("%s: %s", worst, strings.Join(failing, ", "))
	}

	status := newStatus(component, worst, msg)
	status.SubStatuses = append([]Status(nil), subs...)
	return status
}
