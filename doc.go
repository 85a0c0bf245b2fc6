// Package signalfeed consumes a live feed of collector events, keeps a
// bounded recent-event log plus a reduced "current signals" snapshot, and
// serves both over a local HTTP API.
//
// # Data flow
//
//	feed server ──SSE/WebSocket──▶ stream.Connection
//	                                   │ envelope.Decode
//	                                   ▼
//	                               session.Session ──▶ eventlog.Log (newest N)
//	                                   │          └──▶ snapshot.Apply (latest per key)
//	                                   ├──▶ output/natspub  (republish to NATS)
//	                                   └──▶ output/websocket (live push to browsers)
//	                                   ▲
//	bootstrap.Client ── GET /api/events?limit=N, /api/signals
//
// gateway/http exposes the session as JSON: filtered events, the snapshot,
// pause/resume, status and aggregated health.
//
// # Packages
//
// Feed handling:
//   - stream: transport-agnostic stream connection with reconnect and backoff
//   - envelope: classification of inbound frames into typed envelopes
//   - eventlog: bounded newest-first log with type, text and CEL filtering
//   - snapshot: pure reducer from events to current signals
//   - bootstrap: one-shot fetch of recent history and the server snapshot
//   - session: ties the above together behind a single Start/Close lifecycle
//
// Outputs:
//   - gateway/http: JSON API over a session
//   - output/natspub: per-event republishing to NATS core or JetStream
//   - output/websocket: fan-out of live events to WebSocket clients
//
// Infrastructure:
//   - config: layered JSON configuration with schema and env overrides
//   - errors: classified errors (invalid, transient, fatal)
//   - health: component health status and aggregation
//   - metric: Prometheus registry and /metrics server
//   - natsclient: NATS connection management with reconnect tracking
//   - pkg/buffer, pkg/cache, pkg/retry, pkg/timestamp: small generic helpers
//
// The signalfeed binary in cmd/signalfeed wires everything from a config
// file, environment and flags.
package signalfeed
