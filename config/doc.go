// Package config loads signalfeed configuration.
//
// Configuration is resolved in layers:
//
//  1. Built-in defaults (DefaultConfig)
//  2. JSON files added with Loader.AddLayer, deep-merged in order
//  3. SIGNALFEED_* environment variables
//
// Each file is checked against an embedded JSON Schema before it is merged,
// so unknown keys and mistyped values are reported with their path instead
// of being silently ignored. Durations may be written as Go duration strings
// ("1500ms", "10s") or as integer nanoseconds.
//
// A minimal file only names the upstream server:
//
//	{
//	  "stream": {"url": "http://localhost:8080/api/stream"}
//	}
//
// The bootstrap base URL defaults to the scheme and host of stream.url, with
// ws and wss mapped to http and https.
//
// Environment overrides:
//
//	SIGNALFEED_STREAM_URL          stream.url
//	SIGNALFEED_STREAM_TRANSPORT    stream.transport (sse, websocket)
//	SIGNALFEED_BOOTSTRAP_URL       bootstrap.base_url
//	SIGNALFEED_BOOTSTRAP_ENABLED   bootstrap.enabled
//	SIGNALFEED_LOG_CAPACITY        log.capacity
//	SIGNALFEED_HTTP_ADDR           http.addr
//	SIGNALFEED_METRICS_ADDR        metrics.addr
//	SIGNALFEED_NATS_URL            nats.url (also enables nats)
//	SIGNALFEED_NATS_TOKEN          nats.token
//	SIGNALFEED_NATS_SUBJECT_PREFIX nats.subject_prefix
//	SIGNALFEED_LOGGING_LEVEL       logging.level
//	SIGNALFEED_LOGGING_FORMAT      logging.format
package config
