// Package gateway exposes a running feed session over HTTP.
//
// The HTTP gateway (gateway/http) serves a read-mostly JSON API:
//
//	GET  {prefix}events?type=ALL&q=boston&expr=payload.tempF>40&limit=50
//	GET  {prefix}snapshot
//	POST {prefix}pause
//	POST {prefix}resume
//	GET  {prefix}status
//	GET  {prefix}health
//
// events returns the visible log newest first, filtered by event type
// ("ALL" or empty matches everything), a case-insensitive search string and
// an optional CEL expression over type, timestamp and payload. Each entry
// carries a one-line summary.
//
// CORS is disabled unless origins are listed explicitly.
//
// # Example Configuration
//
//	{
//	  "http": {
//	    "addr": ":8080",
//	    "gateway": {
//	      "prefix": "/api/",
//	      "enable_cors": true,
//	      "cors_origins": ["http://localhost:5173"],
//	      "max_events": 200
//	    }
//	  }
//	}
package gateway
