package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Severity levels, in ascending order
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Severities lists every valid severity in ascending order.
var Severities = []string{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// IsValidSeverity reports whether s is one of Severities (case-insensitive).
func IsValidSeverity(s string) bool {
	s = strings.ToLower(s)
	for _, v := range Severities {
		if v == s {
			return true
		}
	}
	return false
}

// Event is a security event pulled from a SIEM source.
type Event struct {
	ID             int64      `json:"id"`
	EventID        string     `json:"event_id"`
	Timestamp      time.Time  `json:"timestamp"`
	SourceIP       string     `json:"source_ip"`
	Severity       string     `json:"severity"`
	SIEMSource     string     `json:"siem_source"`
	ManualReview   bool       `json:"manual_review"`
	Labels         Labels     `json:"labels"`
	AttackType     string     `json:"attack_type,omitempty"`
	MitreTactic    string     `json:"mitre_tactic,omitempty"`
	MitreTechnique string     `json:"mitre_technique,omitempty"`
	TruePositive   *bool      `json:"true_positive"`
	MLProcessed    bool       `json:"ml_processed"`
	MLConfidence   float64    `json:"ml_confidence"`
	MLTimestamp    *time.Time `json:"ml_timestamp,omitempty"`
	HumanVerified  bool       `json:"human_verified"`
	RawLogs        []RawLog   `json:"raw_logs,omitempty"`
}

// RawLog is the original SIEM payload an event was built from.
type RawLog struct {
	ID        int64                  `json:"id"`
	EventID   int64                  `json:"event_id"`
	Source    string                 `json:"source"`
	Timestamp *time.Time             `json:"timestamp,omitempty"`
	LogData   map[string]interface{} `json:"log_data"`
}

// EventFilter narrows event listings, exports and batch labeling.
// The zero value matches every event.
type EventFilter struct {
	Severity     string     `json:"severity,omitempty" validate:"severity"`
	SIEMSource   string     `json:"siem_source,omitempty" validate:"max=50"`
	SourceIP     string     `json:"source_ip,omitempty" validate:"omitempty,ip"`
	ManualReview *bool      `json:"manual_review,omitempty"`
	AttackType   string     `json:"attack_type,omitempty" validate:"max=100"`
	DateFrom     *time.Time `json:"date_from,omitempty"`
	DateTo       *time.Time `json:"date_to,omitempty"`
}

// IsEmpty reports whether no criteria are set.
func (f EventFilter) IsEmpty() bool {
	return f.Severity == "" && f.SIEMSource == "" && f.SourceIP == "" &&
		f.ManualReview == nil && f.AttackType == "" && f.DateFrom == nil && f.DateTo == nil
}

// UnmarshalJSON accepts the loose shapes the console sends: dates without a
// zone or as plain days, and manual_review as a bool or "true"/"false".
func (f *EventFilter) UnmarshalJSON(data []byte) error {
	var raw struct {
		Severity     string          `json:"severity"`
		SIEMSource   string          `json:"siem_source"`
		SourceIP     string          `json:"source_ip"`
		ManualReview json.RawMessage `json:"manual_review"`
		AttackType   string          `json:"attack_type"`
		DateFrom     string          `json:"date_from"`
		DateTo       string          `json:"date_to"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := EventFilter{
		Severity:   strings.ToLower(strings.TrimSpace(raw.Severity)),
		SIEMSource: strings.TrimSpace(raw.SIEMSource),
		SourceIP:   strings.TrimSpace(raw.SourceIP),
		AttackType: strings.TrimSpace(raw.AttackType),
	}

	if len(raw.ManualReview) > 0 && string(raw.ManualReview) != "null" {
		var b bool
		if err := json.Unmarshal(raw.ManualReview, &b); err != nil {
			var s string
			if err := json.Unmarshal(raw.ManualReview, &s); err != nil {
				return fmt.Errorf("manual_review: %w", err)
			}
			if s != "" {
				parsed, err := strconv.ParseBool(s)
				if err != nil {
					return fmt.Errorf("manual_review: %w", err)
				}
				out.ManualReview = &parsed
			}
		} else {
			out.ManualReview = &b
		}
	}

	if raw.DateFrom != "" {
		t, err := ParseFilterTime(raw.DateFrom, false)
		if err != nil {
			return fmt.Errorf("date_from: %w", err)
		}
		out.DateFrom = &t
	}
	if raw.DateTo != "" {
		t, err := ParseFilterTime(raw.DateTo, true)
		if err != nil {
			return fmt.Errorf("date_to: %w", err)
		}
		out.DateTo = &t
	}

	*f = out
	return nil
}

var filterTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseFilterTime parses the date formats accepted by list filters. Times
// without a zone are UTC. A bare day (2006-01-02) means the start of that day,
// or its last second when endOfDay is set so date_to stays inclusive.
func ParseFilterTime(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range filterTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
