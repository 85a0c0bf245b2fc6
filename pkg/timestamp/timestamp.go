// Package timestamp provides tolerant epoch-seconds handling for feed envelopes.
//
// Envelope timestamps are float64 seconds since the Unix epoch and may carry a
// fractional part. Upstream producers emit them as JSON numbers, numeric
// strings, or ISO-8601 instants, so every conversion here accepts all three.
//
// Zero Value Semantics:
//   - A Seconds value of 0 means "not set"
//   - EpochSeconds never returns 0 for unusable input; it returns the current time
//
// Usage Examples:
//
//	// Coerce an arbitrary decoded JSON value
//	ts := timestamp.EpochSeconds(raw["timestamp"])
//
//	// Convert to time.Time
//	t := timestamp.FromSeconds(ts)
//
//	// Format for display
//	display := timestamp.Format(ts)
package timestamp

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// nowFunc is the wall clock used for fallbacks.
var nowFunc = time.Now

// layouts accepted for ISO-8601 strings, tried in order.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Now returns the current time as fractional epoch seconds.
func Now() float64 {
	return ToSeconds(nowFunc())
}

// ToSeconds converts a time.Time to fractional epoch seconds.
// Returns 0 for the zero time.
func ToSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// FromSeconds converts fractional epoch seconds to time.Time.
// Returns zero time if the value is 0 or not finite.
func FromSeconds(sec float64) time.Time {
	if sec == 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// Format converts epoch seconds to an RFC3339 string for display.
// Returns empty string if the value is 0.
func Format(sec float64) string {
	t := FromSeconds(sec)
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Parse converts a value to epoch seconds and reports whether it was usable.
// Supports:
//   - finite numbers of any Go numeric type, taken as seconds
//   - json.Number and numeric strings, parsed as float seconds
//   - ISO-8601 strings (RFC3339 with or without zone; zoneless values are UTC)
//   - time.Time
func Parse(input any) (float64, bool) {
	switch v := input.(type) {
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case json.Number:
		return parseString(string(v))
	case string:
		return parseString(v)
	case time.Time:
		if v.IsZero() {
			return 0, false
		}
		return ToSeconds(v), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return 0, false
		}
		return ToSeconds(*v), true
	default:
		return 0, false
	}
}

// EpochSeconds coerces any value to finite epoch seconds, falling back to the
// current wall clock when the value is unusable. It never returns NaN or Inf.
func EpochSeconds(input any) float64 {
	if sec, ok := Parse(input); ok {
		return sec
	}
	return Now()
}

func finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return finite(f)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ToSeconds(t), true
		}
	}
	return 0, false
}
