package envelope

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var authSummaries = map[string]string{
	"UserRegistered":         "user registered",
	"LoginSucceeded":         "login succeeded",
	"LoginFailed":            "login failed",
	"PasswordResetRequested": "password reset requested",
	"PasswordResetSucceeded": "password reset succeeded",
	"PasswordResetFailed":    "password reset failed",
}

// Summarize renders a one-line description of an envelope for display.
// Unknown types render as the type name.
func Summarize(e Envelope) string {
	switch e.Type {
	case "WeatherUpdated":
		temp, _ := e.Number("tempF")
		return fmt.Sprintf("%s: %.1fF, %s", e.String("location"), temp, e.String("conditions"))
	case "EnvWeatherUpdated":
		return summarizeEnvWeather(e)
	case "EnvAqiUpdated":
		return summarizeEnvAqi(e)
	case "NewsUpdated":
		return fmt.Sprintf("%s: %s stories", e.String("source"), e.integer("storyCount"))
	case "SiteFetched":
		return fmt.Sprintf("%s: status %s, %sms", e.String("siteId"), e.integer("status"), e.integer("durationMillis"))
	case "ContentChanged":
		return e.String("siteId") + ": content hash changed"
	case "AlertRaised":
		return e.String("category") + ": " + e.String("message")
	case "CollectorTickStarted":
		return "collector " + e.String("collectorName") + " started"
	case "CollectorTickCompleted":
		outcome := "failed"
		if e.Bool("success") {
			outcome = "ok"
		}
		return fmt.Sprintf("collector %s %s in %sms", e.String("collectorName"), outcome, e.integer("durationMillis"))
	}
	if s, ok := authSummaries[e.Type]; ok {
		return s
	}
	return e.Type
}

func summarizeEnvWeather(e Envelope) string {
	when := formatFetchedAt(e.Payload["fetchedAtEpochMillis"])
	endpoint := shortenRequestURL(e.Payload["requestUrl"])
	source := normalizeSource(e.Payload["source"])
	status := e.String("status")
	if status != "OK" {
		reason := e.String("error")
		if reason == "" {
			reason = "unavailable"
		}
		return fmt.Sprintf("%s: weather %s (%s) @ %s - %s [%s]",
			e.String("zip"), strings.ToLower(status), source, when, reason, endpoint)
	}
	temp, _ := e.Number("tempF")
	return fmt.Sprintf("%s: %.1fF, %s (%s) @ %s [%s]",
		e.String("zip"), temp, e.String("conditions"), source, when, endpoint)
}

func summarizeEnvAqi(e Envelope) string {
	when := formatFetchedAt(e.Payload["fetchedAtEpochMillis"])
	endpoint := shortenRequestURL(e.Payload["requestUrl"])
	source := normalizeSource(e.Payload["source"])
	zip := e.String("zip")
	status := e.String("status")
	if status != "OK" {
		reason := firstNonEmpty(e.String("error"), e.String("message"), "unavailable")
		return fmt.Sprintf("%s: AQI %s (%s) @ %s - %s [%s]",
			zip, strings.ToLower(status), source, when, reason, endpoint)
	}
	if _, ok := e.Number("aqi"); !ok {
		return fmt.Sprintf("%s: %s (%s) @ %s [%s]",
			zip, firstNonEmpty(e.String("message"), "AQI unavailable"), source, when, endpoint)
	}
	return fmt.Sprintf("%s: AQI %s (%s) via %s @ %s [%s]",
		zip, e.integer("aqi"), firstNonEmpty(e.String("category"), "Unknown"), source, when, endpoint)
}

// integer renders a numeric payload field without a fractional part when
// it has none.
func (e Envelope) integer(key string) string {
	v, ok := e.Number(key)
	if !ok {
		return "?"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFetchedAt(v any) string {
	var ms float64
	switch t := v.(type) {
	case float64:
		ms = t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return "-"
		}
		ms = f
	default:
		return "-"
	}
	return time.UnixMilli(int64(ms)).UTC().Format("15:04:05")
}

func normalizeSource(v any) string {
	s, _ := v.(string)
	if strings.TrimSpace(s) == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(s)
}

func shortenRequestURL(v any) string {
	raw, _ := v.(string)
	if strings.TrimSpace(raw) == "" {
		return "request-url:n/a"
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host + u.Path
	}
	return strings.SplitN(raw, "?", 2)[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
