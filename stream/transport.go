package stream

import "context"

// DefaultChannel is the channel of frames that carry no event name.
const DefaultChannel = ""

// KnownEventTypes are the named channels the feed server emits.
var KnownEventTypes = []string{
	"CollectorTickStarted",
	"CollectorTickCompleted",
	"AlertRaised",
	"SiteFetched",
	"ContentChanged",
	"WeatherUpdated",
	"NewsUpdated",
	"EnvWeatherUpdated",
	"EnvAqiUpdated",
	"UserRegistered",
	"LoginSucceeded",
	"LoginFailed",
	"PasswordResetRequested",
	"PasswordResetSucceeded",
	"PasswordResetFailed",
}

// Frame is one message read from a transport.
type Frame struct {
	// Channel is the event name, or DefaultChannel.
	Channel string
	// ID is the transport-level event id, if any.
	ID string
	// Data is the frame body, expected to be a JSON document.
	Data []byte
}

// Subscription is one live transport session.
type Subscription interface {
	// Next blocks until a frame arrives. Any error ends the subscription.
	Next(ctx context.Context) (Frame, error)
	// Close releases the subscription and unblocks Next. It is idempotent.
	Close() error
}

// Transport opens subscriptions. Subscribe returns only after the server
// signalled the stream is ready.
type Transport interface {
	Subscribe(ctx context.Context) (Subscription, error)
}
