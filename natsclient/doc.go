// Package natsclient owns the NATS connection used to republish feed
// envelopes.
//
// The client layers a small state machine (disconnected, connecting,
// connected, reconnecting, closed) over the nats.go reconnect loop so the
// rest of the process can report NATS health without touching the raw
// connection. Core publishing and JetStream publishing are both supported;
// EnsureStream creates or updates a stream before the first PublishToStream.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("signalfeed"),
//	    natsclient.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	err = client.Publish(ctx, "signalfeed.events.AlertRaised", data)
package natsclient
