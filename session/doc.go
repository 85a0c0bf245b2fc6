// Package session wires a stream connection to an event log and a snapshot.
//
// A Session owns one stream.Connection, one eventlog.Log and the current
// snapshot.Snapshot. Every envelope delivered by the connection is appended
// to the log (or its pause buffer), folded into the snapshot and handed to
// each registered Sink, in that order, on the connection's run goroutine.
//
// Start runs the optional bootstrap synchronously before the live stream is
// opened. A bootstrap failure is recorded and reported through Status and
// Health; it never prevents the live stream from starting.
package session
