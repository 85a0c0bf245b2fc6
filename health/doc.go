// Package health reports the health of the feed client's parts.
//
// Three states are used: healthy, degraded and unhealthy. A live stream is
// healthy; a stream that is connecting or backing off is degraded; a closed
// stream is unhealthy. A failed bootstrap degrades the session without
// making it unhealthy, since the live stream still runs.
//
// A Monitor holds named statuses. Parts that can report on demand register a
// Checker and are polled by Check:
//
//	monitor := health.NewMonitor()
//	monitor.Register("stream", conn.Health)
//	overall := monitor.Check("signalfeed")
package health
