package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// ErrorClass decides how a caller reacts to an error.
type ErrorClass int

const (
	// ErrorTransient may succeed if retried.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid stems from bad input or configuration; retrying won't help.
	ErrorInvalid
	// ErrorFatal stops processing.
	ErrorFatal
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Lifecycle
var (
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrClosed         = errors.New("closed")
)

// Transport
var (
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrHandshakeFailed   = errors.New("stream handshake failed")
	ErrUnexpectedStatus  = errors.New("unexpected http status")
)

// Data
var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrParsingFailed     = errors.New("parsing failed")
)

// Bootstrap
var ErrBootstrapFailed = errors.New("bootstrap failed")

// Configuration
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// Unclassified errors are matched against these, in order.
var (
	fatalSentinels     = []error{ErrInvalidConfig, ErrMissingConfig}
	invalidSentinels   = []error{ErrMalformedEnvelope, ErrParsingFailed}
	transientSentinels = []error{
		ErrConnectionLost, ErrConnectionTimeout, ErrHandshakeFailed, ErrBootstrapFailed,
		io.EOF, io.ErrUnexpectedEOF, context.DeadlineExceeded,
	}
	transientHints = []string{"timeout", "connection", "network", "temporary", "unavailable", "reset by peer"}
)

// ClassifiedError carries a class and the component context it was wrapped
// in. Message, when set, replaces Err's text.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error { return ce.Err }

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classOf reports err's class and whether it was recognised at all. An
// explicit ClassifiedError anywhere in the chain wins over content.
func classOf(err error) (ErrorClass, bool) {
	if err == nil {
		return ErrorTransient, false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	switch {
	case matchesAny(err, fatalSentinels):
		return ErrorFatal, true
	case matchesAny(err, invalidSentinels):
		return ErrorInvalid, true
	case matchesAny(err, transientSentinels):
		return ErrorTransient, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTransient, true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return ErrorTransient, true
		}
	}
	return ErrorTransient, false
}

// Classify returns err's class. Unrecognised errors are transient so the
// stream keeps retrying.
func Classify(err error) ErrorClass {
	class, _ := classOf(err)
	return class
}

// IsTransient reports whether err is recognisably worth retrying.
func IsTransient(err error) bool {
	class, known := classOf(err)
	return known && class == ErrorTransient
}

// IsInvalid reports whether err stems from bad input.
func IsInvalid(err error) bool {
	class, known := classOf(err)
	return known && class == ErrorInvalid
}

// IsFatal reports whether err should stop the process.
func IsFatal(err error) bool {
	class, known := classOf(err)
	return known && class == ErrorFatal
}

// Wrap adds context in the form "component.method: action failed: cause".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err with context and marks it transient.
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapInvalid wraps err with context and marks it invalid.
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

// WrapFatal wraps err with context and marks it fatal.
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// ComponentOf returns the component of the outermost classified error, or
// "" for plain errors.
func ComponentOf(err error) string {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Component
	}
	return ""
}
