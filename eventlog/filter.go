package eventlog

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/c360/signalfeed/envelope"
)

// AllTypes is the type filter that passes every envelope.
const AllTypes = "ALL"

// Filter returns the entries matching typeFilter and search, newest first.
// typeFilter is matched exactly; AllTypes or "" passes everything. search is
// trimmed and matched case-insensitively against the type followed by the
// payload's JSON encoding.
func Filter(entries []envelope.Envelope, typeFilter, search string) []envelope.Envelope {
	query := strings.ToLower(strings.TrimSpace(search))

	out := make([]envelope.Envelope, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !matchesType(e, typeFilter) {
			continue
		}
		if query != "" && !strings.Contains(searchText(e), query) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesType(e envelope.Envelope, typeFilter string) bool {
	return typeFilter == "" || typeFilter == AllTypes || e.Type == typeFilter
}

// searchText is the lower-cased haystack for text search. encoding/json
// sorts map keys, so the payload encoding is stable. HTML escaping is off so
// that &, < and > stay searchable.
func searchText(e envelope.Envelope) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	payload := "{}"
	if err := enc.Encode(e.Payload); err == nil {
		payload = strings.TrimSuffix(buf.String(), "\n")
	}
	return strings.ToLower(e.Type + " " + payload)
}

// Types returns the distinct types present in entries, in first-seen order.
func Types(entries []envelope.Envelope) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if !seen[e.Type] {
			seen[e.Type] = true
			out = append(out, e.Type)
		}
	}
	return out
}
