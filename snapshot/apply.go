package snapshot

import (
	"encoding/json"

	"github.com/c360/signalfeed/envelope"
	"github.com/c360/signalfeed/pkg/timestamp"
)

// Event types the reducer understands.
const (
	TypeWeatherUpdated         = "WeatherUpdated"
	TypeEnvWeatherUpdated      = "EnvWeatherUpdated"
	TypeEnvAqiUpdated          = "EnvAqiUpdated"
	TypeSiteFetched            = "SiteFetched"
	TypeContentChanged         = "ContentChanged"
	TypeNewsUpdated            = "NewsUpdated"
	TypeMarketQuoteUpdated     = "MarketQuoteUpdated"
	TypeLocalHappeningsUpdated = "LocalHappeningsUpdated"
)

type reducer func(s *Snapshot, e envelope.Envelope) *Snapshot

var reducers = map[string]reducer{
	TypeWeatherUpdated:         applyWeather,
	TypeEnvWeatherUpdated:      applyEnvWeather,
	TypeEnvAqiUpdated:          applyEnvAqi,
	TypeSiteFetched:            applySiteFetched,
	TypeContentChanged:         applyContentChanged,
	TypeNewsUpdated:            applyNews,
	TypeMarketQuoteUpdated:     applyMarketQuote,
	TypeLocalHappeningsUpdated: applyLocalHappenings,
}

// Handles reports whether Apply changes state for events of the given type.
func Handles(eventType string) bool {
	_, ok := reducers[eventType]
	return ok
}

// Apply folds e into s and returns the next snapshot. s is never modified.
// Unrecognized types, and recognized types missing their key field, return
// s itself.
func Apply(s *Snapshot, e envelope.Envelope) *Snapshot {
	r, ok := reducers[e.Type]
	if !ok {
		return s
	}
	base := s
	if base == nil {
		base = New()
	}
	next := r(base, e)
	if next == base {
		return s
	}
	return next
}

func applyWeather(s *Snapshot, e envelope.Envelope) *Snapshot {
	location := e.String("location")
	if location == "" {
		return s
	}
	temp, _ := e.Number("tempF")
	rec := WeatherSignal{
		Location:   location,
		TempF:      temp,
		Conditions: e.String("conditions"),
		Alerts:     alertsFor(s.Weather[location], e),
		UpdatedAt:  timestamp.Seconds(e.Timestamp),
	}

	out := s.shallow()
	out.Weather = copyMap(s.Weather)
	out.Weather[location] = rec
	return out
}

func applyEnvWeather(s *Snapshot, e envelope.Envelope) *Snapshot {
	zip := e.String("zip")
	if zip == "" || e.String("status") != "OK" {
		return s
	}
	temp, _ := e.Number("tempF")
	label := e.String("locationLabel")
	if label == "" {
		label = zip
	}
	rec := WeatherSignal{
		Location:   label,
		TempF:      temp,
		Conditions: e.String("conditions"),
		Alerts:     alertsFor(s.Weather[zip], e),
		UpdatedAt:  timestamp.Seconds(e.Timestamp),
	}

	out := s.shallow()
	out.Weather = copyMap(s.Weather)
	out.Weather[zip] = rec
	return out
}

func applyEnvAqi(s *Snapshot, e envelope.Envelope) *Snapshot {
	zip := e.String("zip")
	aqi, ok := e.Number("aqi")
	if zip == "" || !ok || e.String("status") != "OK" {
		return s
	}
	label := e.String("locationLabel")
	if label == "" {
		label = zip
	}
	rec := AirQualitySignal{
		Location:  label,
		AQI:       int(aqi),
		Category:  e.String("category"),
		UpdatedAt: timestamp.Seconds(e.Timestamp),
	}

	out := s.shallow()
	out.AirQuality = copyMap(s.AirQuality)
	out.AirQuality[zip] = rec
	return out
}

func applySiteFetched(s *Snapshot, e envelope.Envelope) *Snapshot {
	siteID := e.String("siteId")
	if siteID == "" {
		return s
	}
	rec := s.Sites[siteID]
	rec.SiteID = siteID
	if u := e.String("url"); u != "" {
		rec.URL = u
	}
	rec.LastChecked = timestamp.Seconds(e.Timestamp)

	out := s.shallow()
	out.Sites = copyMap(s.Sites)
	out.Sites[siteID] = rec
	return out
}

func applyContentChanged(s *Snapshot, e envelope.Envelope) *Snapshot {
	siteID := e.String("siteId")
	if siteID == "" {
		return s
	}
	rec := s.Sites[siteID]
	rec.SiteID = siteID
	if u := e.String("url"); u != "" {
		rec.URL = u
	}
	if h := e.String("newHash"); h != "" {
		rec.Hash = h
	}
	rec.LastChecked = timestamp.Seconds(e.Timestamp)
	rec.LastChanged = timestamp.Seconds(e.Timestamp)

	out := s.shallow()
	out.Sites = copyMap(s.Sites)
	out.Sites[siteID] = rec
	return out
}

// applyNews replaces the story list when the event carries one. Count-only
// events refresh updatedAt and keep the known stories.
func applyNews(s *Snapshot, e envelope.Envelope) *Snapshot {
	source := e.String("source")
	if source == "" {
		return s
	}
	prev := s.News[source]
	stories := prev.Stories
	if raw, ok := e.Payload["stories"]; ok {
		stories = decodeList[NewsStory](raw)
	}
	if stories == nil {
		stories = []NewsStory{}
	}

	out := s.shallow()
	out.News = copyMap(s.News)
	out.News[source] = NewsSignal{
		Source:    source,
		Stories:   stories,
		UpdatedAt: timestamp.Seconds(e.Timestamp),
	}
	return out
}

func applyMarketQuote(s *Snapshot, e envelope.Envelope) *Snapshot {
	symbol := e.String("symbol")
	if symbol == "" {
		return s
	}
	price, _ := e.Number("price")
	change, _ := e.Number("change")

	out := s.shallow()
	out.Markets = copyMap(s.Markets)
	out.Markets[symbol] = MarketQuoteSignal{
		Symbol:    symbol,
		Price:     price,
		Change:    change,
		UpdatedAt: timestamp.Seconds(e.Timestamp),
	}
	return out
}

func applyLocalHappenings(s *Snapshot, e envelope.Envelope) *Snapshot {
	location := e.String("location")
	if location == "" {
		return s
	}
	headlines := decodeList[string](e.Payload["headlines"])
	if headlines == nil {
		headlines = []string{}
	}

	out := s.shallow()
	out.LocalHappenings = copyMap(s.LocalHappenings)
	out.LocalHappenings[location] = LocalHappeningsSignal{
		Location:  location,
		Headlines: headlines,
		UpdatedAt: timestamp.Seconds(e.Timestamp),
	}
	return out
}

// alertsFor prefers alerts carried by the event, then the previous record's.
func alertsFor(prev WeatherSignal, e envelope.Envelope) []string {
	if raw, ok := e.Payload["alerts"]; ok {
		if alerts := decodeList[string](raw); alerts != nil {
			return alerts
		}
	}
	if prev.Alerts != nil {
		return prev.Alerts
	}
	return []string{}
}

// decodeList converts a decoded JSON array into typed elements. Elements
// that do not fit T are skipped; non-arrays yield nil.
func decodeList[T any](raw any) []T {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if v, ok := item.(T); ok {
			out = append(out, v)
			continue
		}
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
