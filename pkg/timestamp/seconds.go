package timestamp

import (
	"encoding/json"
	"strconv"
)

// Seconds is an epoch-seconds value that decodes from a JSON number, a
// numeric string, or an ISO-8601 string, and always encodes as a number.
// Unusable or null input decodes to 0.
type Seconds float64

// Float returns the value as float64.
func (s Seconds) Float() float64 {
	return float64(s)
}

// String formats the value as RFC3339, or "" when unset.
func (s Seconds) String() string {
	return Format(float64(s))
}

// MarshalJSON encodes the value as a JSON number.
func (s Seconds) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(s), 'f', -1, 64)), nil
}

// UnmarshalJSON accepts numbers, numeric strings, and ISO-8601 strings.
func (s *Seconds) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	sec, ok := Parse(raw)
	if !ok {
		sec = 0
	}
	*s = Seconds(sec)
	return nil
}
