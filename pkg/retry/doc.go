// Package retry holds the two delay policies signalfeed uses.
//
// Do runs a bounded number of attempts with exponential backoff. Bootstrap
// fetches use it with a Retryable predicate so only transient failures are
// repeated:
//
//	cfg := retry.DefaultConfig()
//	cfg.Retryable = errors.IsTransient
//	err := retry.Do(ctx, cfg, func() error { return fetch(ctx) })
//
// Backoff is the unbounded floor/ceiling doubling used by stream reconnect
// loops:
//
//	b := retry.NewBackoff(time.Second, 10*time.Second)
//	for {
//	    if err := open(ctx); err != nil {
//	        _ = retry.Sleep(ctx, b.Next()) // 1s, 2s, 4s, 8s, 10s, 10s, ...
//	        continue
//	    }
//	    b.Reset()
//	}
//
// Both honor context cancellation during the wait.
package retry
