// Package snapshot holds the latest known state per entity and the reducer
// that folds feed envelopes into it.
//
// A Snapshot is treated as immutable. Apply returns a new Snapshot that
// shares every sub-map with its input except the one it changed, which is
// copied before the single record is replaced. Records are always replaced
// wholesale; fields an event does not carry are taken from the previous
// record for the same key.
package snapshot

import (
	"github.com/c360/signalfeed/pkg/timestamp"
)

// SiteSignal is the latest status of a monitored site.
type SiteSignal struct {
	SiteID      string            `json:"siteId"`
	URL         string            `json:"url"`
	Hash        string            `json:"hash"`
	Title       *string           `json:"title"`
	LinkCount   int               `json:"linkCount"`
	LastChecked timestamp.Seconds `json:"lastChecked"`
	LastChanged timestamp.Seconds `json:"lastChanged"`
}

// NewsStory is one headline from a news source.
type NewsStory struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	PublishedAt string `json:"publishedAt"`
	Source      string `json:"source"`
}

// NewsSignal is the latest story list for a source.
type NewsSignal struct {
	Source    string            `json:"source"`
	Stories   []NewsStory       `json:"stories"`
	UpdatedAt timestamp.Seconds `json:"updatedAt"`
}

// WeatherSignal is the latest reading for a location.
type WeatherSignal struct {
	Location   string            `json:"location"`
	TempF      float64           `json:"tempF"`
	Conditions string            `json:"conditions"`
	Alerts     []string          `json:"alerts"`
	UpdatedAt  timestamp.Seconds `json:"updatedAt"`
}

// AirQualitySignal is the latest AQI observation for a location.
type AirQualitySignal struct {
	Location  string            `json:"location"`
	AQI       int               `json:"aqi"`
	Category  string            `json:"category"`
	UpdatedAt timestamp.Seconds `json:"updatedAt"`
}

// LocalHappeningsSignal is the latest set of local headlines for a location.
type LocalHappeningsSignal struct {
	Location  string            `json:"location"`
	Headlines []string          `json:"headlines"`
	UpdatedAt timestamp.Seconds `json:"updatedAt"`
}

// MarketQuoteSignal is the latest quote for a ticker symbol.
type MarketQuoteSignal struct {
	Symbol    string            `json:"symbol"`
	Price     float64           `json:"price"`
	Change    float64           `json:"change"`
	UpdatedAt timestamp.Seconds `json:"updatedAt"`
}

// Snapshot is the reconciled state keyed by entity.
type Snapshot struct {
	Sites           map[string]SiteSignal            `json:"sites"`
	News            map[string]NewsSignal            `json:"news"`
	Weather         map[string]WeatherSignal         `json:"weather"`
	AirQuality      map[string]AirQualitySignal      `json:"airQuality,omitempty"`
	LocalHappenings map[string]LocalHappeningsSignal `json:"localHappenings,omitempty"`
	Markets         map[string]MarketQuoteSignal     `json:"markets,omitempty"`
}

// New returns an empty snapshot with every map allocated.
func New() *Snapshot {
	return &Snapshot{
		Sites:           map[string]SiteSignal{},
		News:            map[string]NewsSignal{},
		Weather:         map[string]WeatherSignal{},
		AirQuality:      map[string]AirQualitySignal{},
		LocalHappenings: map[string]LocalHappeningsSignal{},
		Markets:         map[string]MarketQuoteSignal{},
	}
}

// Normalize returns s with nil maps replaced by empty ones. s itself is not
// modified. Bootstrap responses omit optional maps.
func Normalize(s *Snapshot) *Snapshot {
	if s == nil {
		return New()
	}
	out := s.shallow()
	if out.Sites == nil {
		out.Sites = map[string]SiteSignal{}
	}
	if out.News == nil {
		out.News = map[string]NewsSignal{}
	}
	if out.Weather == nil {
		out.Weather = map[string]WeatherSignal{}
	}
	if out.AirQuality == nil {
		out.AirQuality = map[string]AirQualitySignal{}
	}
	if out.LocalHappenings == nil {
		out.LocalHappenings = map[string]LocalHappeningsSignal{}
	}
	if out.Markets == nil {
		out.Markets = map[string]MarketQuoteSignal{}
	}
	return out
}

func (s *Snapshot) shallow() *Snapshot {
	out := *s
	return &out
}

// copyMap returns a copy of m with room for one more entry.
func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
