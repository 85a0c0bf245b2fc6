// Package natspub republishes normalized feed envelopes to NATS.
//
// A Sink implements session.Sink. Deliver never blocks the stream: each
// envelope is queued in a bounded ring buffer (oldest dropped on overflow)
// and a single worker publishes the queue in order to
// "<prefix>.<event type>". Publishing goes through the Publisher interface;
// *natsclient.Client satisfies it for core NATS, and PublisherFunc adapts
// its PublishToStream method for JetStream.
package natspub
