// Package bootstrap fetches the initial state of the feed before the live
// stream takes over: recent events from /api/events and the reconciled
// snapshot from /api/signals.
//
// Both requests retry transient failures (network errors, 5xx, 429) with
// exponential backoff. Client errors are returned after the first attempt.
// Any failure is reported wrapping errors.ErrBootstrapFailed.
//
// Usage:
//
//	client, err := bootstrap.New("http://localhost:8080", bootstrap.WithLimit(100))
//	if err != nil {
//	    return err
//	}
//	result, err := client.Fetch(ctx)
//	// result holds whatever succeeded even when err != nil
package bootstrap
