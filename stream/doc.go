// Package stream maintains the live connection to the feed server.
//
// A Connection owns one Transport subscription at a time and a single run
// goroutine that reads frames, decodes them with envelope.Decode and hands
// each envelope to the listener in arrival order. When the subscription
// fails the connection moves to StateReconnecting, waits the current backoff
// delay and dials again. Delays double from the floor up to the ceiling and
// return to the floor after every successful open.
//
// State transitions:
//
//	Idle -> Connecting -> Open -> Reconnecting -> Connecting -> ...
//	any  -> Closed (only through Close)
//
// Malformed frames are dropped and counted; they never close the
// connection. Only Close stops reconnecting.
//
// Two transports are provided. SSETransport issues a GET with
// Accept: text/event-stream and parses the event stream line by line.
// WebSocketTransport dials with gorilla/websocket and treats each text frame
// as one message.
package stream
