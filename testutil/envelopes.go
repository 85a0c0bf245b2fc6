package testutil

import (
	"github.com/c360/signalfeed/envelope"
)

// BaseTimestamp is the first timestamp used by Sequence: 2026-02-12T20:00:00Z.
const BaseTimestamp = 1770926400.0

// Envelope builds an envelope with a copy of payload.
func Envelope(eventType string, ts float64, payload map[string]any) envelope.Envelope {
	p := make(map[string]any, len(payload))
	for k, v := range payload {
		p[k] = v
	}
	return envelope.Envelope{Type: eventType, Timestamp: ts, Payload: p}
}

// Weather is a WeatherUpdated envelope.
func Weather(ts float64, location string, tempF float64, conditions string) envelope.Envelope {
	return Envelope("WeatherUpdated", ts, map[string]any{
		"location":   location,
		"tempF":      tempF,
		"conditions": conditions,
	})
}

// Site is a SiteFetched envelope.
func Site(ts float64, siteID, url string, linkCount int) envelope.Envelope {
	return Envelope("SiteFetched", ts, map[string]any{
		"siteId":    siteID,
		"url":       url,
		"linkCount": float64(linkCount),
	})
}

// Alert is an AlertRaised envelope.
func Alert(ts float64, message string) envelope.Envelope {
	return Envelope("AlertRaised", ts, map[string]any{"message": message})
}

// Sequence returns one envelope of each of the common types, one second
// apart starting at BaseTimestamp.
func Sequence() []envelope.Envelope {
	return []envelope.Envelope{
		Weather(BaseTimestamp, "Denver", 28, "Snow"),
		Site(BaseTimestamp+1, "site-1", "https://example.com", 12),
		Alert(BaseTimestamp+2, "Winter storm warning"),
		Weather(BaseTimestamp+3, "Austin", 71, "Clear"),
	}
}
