package timestamp

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

var (
	testTime    = time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	testSeconds = float64(1700000000)
)

func withClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := nowFunc
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = prev })
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
		ok       bool
	}{
		{"float seconds", 1700000000.0, testSeconds, true},
		{"fractional seconds", 1700000000.25, 1700000000.25, true},
		{"int seconds", 1700000000, testSeconds, true},
		{"int64 seconds", int64(1700000000), testSeconds, true},
		{"json number", json.Number("1700000000.5"), 1700000000.5, true},
		{"numeric string", "1700000000", testSeconds, true},
		{"padded numeric string", "  1700000000.5 ", 1700000000.5, true},
		{"rfc3339", "2023-11-14T22:13:20Z", testSeconds, true},
		{"rfc3339 offset", "2023-11-14T23:13:20+01:00", testSeconds, true},
		{"rfc3339 nano", "2023-11-14T22:13:20.500Z", 1700000000.5, true},
		{"zoneless iso", "2023-11-14T22:13:20", testSeconds, true},
		{"far future", "2500-01-01T00:00:00Z", 16725225600, true},
		{"max year", "9999-12-31T00:00:00Z", 253402214400, true},
		{"before 1678", "1600-01-01T00:00:00Z", -11676096000, true},
		{"time value", testTime, testSeconds, true},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
		{"empty string", "", 0, false},
		{"garbage string", "not a date", 0, false},
		{"nan", math.NaN(), 0, false},
		{"inf", math.Inf(1), 0, false},
		{"nan string", "NaN", 0, false},
		{"map", map[string]any{"a": 1}, 0, false},
		{"zero time", time.Time{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if ok != tt.ok {
				t.Fatalf("Parse(%v) ok = %v, expected %v", tt.input, ok, tt.ok)
			}
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("Parse(%v) = %f, expected %f", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEpochSecondsFallsBackToNow(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	withClock(t, now)

	for _, input := range []any{nil, "bogus", math.NaN(), math.Inf(-1), false, []any{1}} {
		got := EpochSeconds(input)
		if got != float64(now.Unix()) {
			t.Errorf("EpochSeconds(%v) = %f, expected now %d", input, got, now.Unix())
		}
	}

	if got := EpochSeconds("1700000000"); got != testSeconds {
		t.Errorf("EpochSeconds(numeric string) = %f, expected %f", got, testSeconds)
	}
}

func TestEpochSecondsIsAlwaysFinite(t *testing.T) {
	inputs := []any{nil, 0, -1, 1e308, "1e400", "-Inf", math.NaN(), struct{}{}}
	for _, input := range inputs {
		got := EpochSeconds(input)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Errorf("EpochSeconds(%v) = %f, expected finite", input, got)
		}
	}
}

func TestFromSeconds(t *testing.T) {
	if got := FromSeconds(testSeconds); !got.Equal(testTime) {
		t.Errorf("FromSeconds(%f) = %v, expected %v", testSeconds, got, testTime)
	}
	if got := FromSeconds(1700000000.5); got.Nanosecond() != 500000000 {
		t.Errorf("FromSeconds fractional nanos = %d, expected 500000000", got.Nanosecond())
	}
	if got := FromSeconds(0); !got.IsZero() {
		t.Errorf("FromSeconds(0) = %v, expected zero time", got)
	}
	if got := FromSeconds(math.NaN()); !got.IsZero() {
		t.Errorf("FromSeconds(NaN) = %v, expected zero time", got)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(testSeconds); got != "2023-11-14T22:13:20Z" {
		t.Errorf("Format(%f) = %q", testSeconds, got)
	}
	if got := Format(0); got != "" {
		t.Errorf("Format(0) = %q, expected empty", got)
	}
}

func TestSecondsJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Seconds
	}{
		{"number", `1700000000`, Seconds(testSeconds)},
		{"fraction", `1700000000.5`, Seconds(1700000000.5)},
		{"numeric string", `"1700000000"`, Seconds(testSeconds)},
		{"iso string", `"2023-11-14T22:13:20Z"`, Seconds(testSeconds)},
		{"null", `null`, 0},
		{"garbage", `"soon"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Seconds
			if err := json.Unmarshal([]byte(tt.input), &s); err != nil {
				t.Fatalf("Unmarshal(%s) error: %v", tt.input, err)
			}
			if s != tt.expected {
				t.Errorf("Unmarshal(%s) = %f, expected %f", tt.input, s, tt.expected)
			}
		})
	}

	out, err := json.Marshal(struct {
		At Seconds `json:"at"`
	}{At: Seconds(1700000000.5)})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(out) != `{"at":1700000000.5}` {
		t.Errorf("Marshal = %s", out)
	}
}
