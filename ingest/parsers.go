package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"seclabel/core"
)

const maxFieldLength = 50000
const maxSanitizeDepth = 20

// sanitizeFields truncates oversized strings and rejects payloads nested
// deeper than maxSanitizeDepth.
func sanitizeFields(fields map[string]interface{}, depth int) error {
	if depth > maxSanitizeDepth {
		return fmt.Errorf("maximum nesting depth exceeded")
	}
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			fields[k] = truncateField(val)
		case map[string]interface{}:
			if err := sanitizeFields(val, depth+1); err != nil {
				return err
			}
		case []interface{}:
			for i, elem := range val {
				switch e := elem.(type) {
				case map[string]interface{}:
					if err := sanitizeFields(e, depth+1); err != nil {
						return err
					}
				case string:
					val[i] = truncateField(e)
				}
			}
		}
	}
	return nil
}

func truncateField(s string) string {
	if len(s) > maxFieldLength {
		return s[:maxFieldLength] + "..."
	}
	return s
}

// ParseJSONEvent turns one SIEM alert document into an event. The whole
// document is kept as the raw log. Recognized keys are event_id (or id),
// timestamp (or @timestamp), source_ip (or src_ip), severity and siem_source.
func ParseJSONEvent(raw []byte, defaultSource string) (*FetchedEvent, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := sanitizeFields(data, 0); err != nil {
		return nil, err
	}

	e := core.Event{
		EventID:    firstString(data, "event_id", "id"),
		SourceIP:   firstString(data, "source_ip", "src_ip"),
		Severity:   strings.ToLower(firstString(data, "severity", "level")),
		SIEMSource: firstString(data, "siem_source"),
	}
	if e.EventID == "" {
		return nil, fmt.Errorf("event has no event_id")
	}
	if e.SIEMSource == "" {
		e.SIEMSource = defaultSource
	}
	if !core.IsValidSeverity(e.Severity) {
		e.Severity = core.SeverityLow
	}
	if ts := firstString(data, "timestamp", "@timestamp"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		e.Timestamp = t.UTC()
	}

	var logTime *time.Time
	if !e.Timestamp.IsZero() {
		ts := e.Timestamp
		logTime = &ts
	}
	return &FetchedEvent{
		Event:   e,
		RawLogs: []core.RawLog{{Source: e.SIEMSource, Timestamp: logTime, LogData: data}},
	}, nil
}

func firstString(data map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := data[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func sortNewestFirst(events []FetchedEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Event.Timestamp.After(events[j].Event.Timestamp)
	})
}
