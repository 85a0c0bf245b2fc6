// Package errors provides standardized error handling for signalfeed components.
//
// # Error Classification
//
// Errors fall into three classes:
//
//   - Transient: transport failures, dial errors, bootstrap fetch failures. The stream
//     connection reacts by entering the Reconnecting state; bootstrap retries them.
//   - Invalid: malformed frames and envelopes. They are dropped and counted; the
//     connection stays open.
//   - Fatal: unusable configuration at startup.
//
// Classification works with errors.Is and errors.As through the wrap chain.
//
// # Wrapping
//
// Wrap third-party errors with component context:
//
//	if err := json.Unmarshal(data, &raw); err != nil {
//	    return errors.WrapInvalid(err, "envelope", "Decode", "unmarshal frame")
//	}
//
// The message follows "component.method: action failed: cause".
//
// # Checking
//
//	switch errors.Classify(err) {
//	case errors.ErrorInvalid:
//	    // drop and continue
//	case errors.ErrorTransient:
//	    // schedule retry
//	case errors.ErrorFatal:
//	    // abort startup
//	}
package errors
