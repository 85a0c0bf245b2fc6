// Package testutil provides shared test doubles and fixtures for signalfeed
// packages.
//
// MockPublisher stands in for a NATS connection anywhere a
// natspub.Publisher is accepted:
//
//	pub := testutil.NewMockPublisher()
//	sink, _ := natspub.New(pub)
//	...
//	msgs := pub.Messages("signalfeed.events.AlertRaised")
//
// Fixture helpers build envelopes with realistic payloads for each known
// event type, so tests don't repeat the same literal maps.
package testutil
