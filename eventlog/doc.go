// Package eventlog keeps the bounded, pause-able client-side log of feed
// envelopes and the predicates used to view it.
//
// A Log holds two circular buffers of the same capacity. While unpaused,
// appends go to the visible buffer and the oldest entry is evicted once
// capacity is reached. While paused, appends go to the pending buffer and
// the visible buffer is frozen. Resuming moves every pending envelope to the
// visible buffer in arrival order and clears the pending buffer.
//
// Filter and FilterQuery never mutate their input and return entries
// newest-first.
//
//	log, _ := eventlog.New(200)
//	log.Append(env)
//	recent := eventlog.Filter(log.Entries(), eventlog.AllTypes, "boston")
package eventlog
