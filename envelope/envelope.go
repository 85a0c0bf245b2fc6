// Package envelope normalizes inbound feed messages into a canonical
// {type, timestamp, payload} record.
//
// Producers send two shapes. A wrapped message carries its payload under an
// object-valued "event" field:
//
//	{"type": "WeatherUpdated", "timestamp": 1700000000, "event": {"location": "Boston"}}
//
// A raw message carries the payload fields at the top level, including its
// own "type" and "timestamp":
//
//	{"type": "WeatherUpdated", "timestamp": "2023-11-14T22:13:20Z", "location": "Boston"}
//
// Both normalize to the same Envelope. Normalize never panics; input that
// lacks a usable type is rejected.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/c360/signalfeed/errors"
	"github.com/c360/signalfeed/pkg/timestamp"
)

// Envelope is a normalized feed event. Treat it as immutable; use Clone
// before mutating Payload.
type Envelope struct {
	Type      string         `json:"type"`
	Timestamp float64        `json:"timestamp"`
	Payload   map[string]any `json:"event"`
}

// Shape reports which wire shape a message arrived in.
type Shape int

const (
	// ShapeInvalid means the input was not a JSON object.
	ShapeInvalid Shape = iota
	// ShapeWrapped means the payload was nested under "event".
	ShapeWrapped
	// ShapeRaw means the payload was the message itself.
	ShapeRaw
)

func (s Shape) String() string {
	switch s {
	case ShapeWrapped:
		return "wrapped"
	case ShapeRaw:
		return "raw"
	default:
		return "invalid"
	}
}

// message is the classified form of one inbound value.
type message struct {
	shape   Shape
	outer   map[string]any
	payload map[string]any
}

func classify(raw any) message {
	outer, ok := raw.(map[string]any)
	if !ok || outer == nil {
		return message{shape: ShapeInvalid}
	}
	if nested, ok := outer["event"].(map[string]any); ok && nested != nil {
		return message{shape: ShapeWrapped, outer: outer, payload: nested}
	}
	return message{shape: ShapeRaw, outer: outer, payload: outer}
}

// Classify reports the wire shape of a decoded JSON value.
func Classify(raw any) Shape {
	return classify(raw).shape
}

// Normalize converts a decoded JSON value to an Envelope. The second return
// value is false when the input is not an object or names no type.
func Normalize(raw any) (Envelope, bool) {
	msg := classify(raw)
	if msg.shape == ShapeInvalid {
		return Envelope{}, false
	}

	eventType, ok := resolveType(msg)
	if !ok {
		return Envelope{}, false
	}

	ts := msg.outer["timestamp"]
	if ts == nil {
		ts = msg.payload["timestamp"]
	}

	payload := make(map[string]any, len(msg.payload))
	for k, v := range msg.payload {
		payload[k] = v
	}

	return Envelope{
		Type:      eventType,
		Timestamp: timestamp.EpochSeconds(ts),
		Payload:   payload,
	}, true
}

func resolveType(msg message) (string, bool) {
	if s, ok := msg.outer["type"].(string); ok && s != "" {
		return s, true
	}
	if s, ok := msg.payload["type"].(string); ok && s != "" {
		return s, true
	}
	return "", false
}

// Decode parses one JSON document and normalizes it. Syntax errors and
// rejected documents are reported as ErrMalformedEnvelope.
func Decode(data []byte) (Envelope, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Envelope{}, errors.WrapInvalid(errors.ErrMalformedEnvelope, "envelope", "Decode", "empty frame")
	}

	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Envelope{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err),
			"envelope", "Decode", "parse JSON")
	}
	if _, err := dec.Token(); err != io.EOF {
		return Envelope{}, errors.WrapInvalid(errors.ErrMalformedEnvelope, "envelope", "Decode", "trailing data")
	}

	raw = numbersToFloat(raw)
	env, ok := Normalize(raw)
	if !ok {
		return Envelope{}, errors.WrapInvalid(errors.ErrMalformedEnvelope, "envelope", "Decode", "missing event type")
	}
	return env, nil
}

// DecodeAll parses a JSON array of messages, dropping entries that do not
// normalize. The order of accepted entries is preserved.
func DecodeAll(data []byte) ([]Envelope, int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, 0, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err),
			"envelope", "DecodeAll", "parse JSON array")
	}

	out := make([]Envelope, 0, len(items))
	dropped := 0
	for _, item := range items {
		env, err := Decode(item)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, env)
	}
	return out, dropped, nil
}

// numbersToFloat converts json.Number values produced by UseNumber back to
// float64 so payloads look like ordinary encoding/json output. Numbers that
// overflow float64 are kept as their string form.
func numbersToFloat(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, item := range t {
			t[k] = numbersToFloat(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = numbersToFloat(item)
		}
		return t
	default:
		return v
	}
}

// Clone returns a copy whose top-level payload map can be mutated safely.
func (e Envelope) Clone() Envelope {
	payload := make(map[string]any, len(e.Payload))
	for k, v := range e.Payload {
		payload[k] = v
	}
	e.Payload = payload
	return e
}

// String returns a value from the payload as a string, or "" when absent or
// not a string.
func (e Envelope) String(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// Number returns a numeric payload value and whether it was present.
func (e Envelope) Number(key string) (float64, bool) {
	switch v := e.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool returns a boolean payload value.
func (e Envelope) Bool(key string) bool {
	b, _ := e.Payload[key].(bool)
	return b
}
