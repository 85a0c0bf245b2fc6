// Package websocket pushes live feed events to WebSocket clients.
//
// A Hub is both a session sink and an http.Handler. Mount it on a mux and
// pass it to the session with session.WithSink:
//
//	hub := websocket.NewHub(websocket.WithClientBuffer(64))
//	mux.Handle("/api/live", hub)
//	sess, _ := session.New(transport, session.WithSink(hub))
//
// Each event is written as one text message in the feed's wrapped shape:
//
//	{"type":"WeatherUpdated","timestamp":1700000000,"event":{"location":"Boston"}}
//
// Clients may narrow the stream with a comma-separated type list,
// /api/live?types=AlertRaised,WeatherUpdated. Every client has its own
// bounded queue; when a slow client's queue is full, new events for that
// client are dropped and counted rather than delaying the others. Messages
// sent by clients are read and discarded.
package websocket
