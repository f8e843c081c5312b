package core

// DashboardStats is the overview returned by /api/dashboard/stats.
type DashboardStats struct {
	TotalEvents   int           `json:"total_events"`
	EventsToday   int           `json:"events_today"`
	LabeledEvents int           `json:"labeled_events"`
	TruePositives int           `json:"true_positives"`
	SIEMSources   []SourceCount `json:"siem_sources"`
}

// SourceCount is the number of events from one SIEM.
type SourceCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// AttackCount is one row of the top attack types.
type AttackCount struct {
	AttackType string  `json:"attack_type"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// TimelinePoint is one bucket of the event timeline.
type TimelinePoint struct {
	Date     string `json:"date"`
	Total    int    `json:"total"`
	Low      int    `json:"low"`
	Medium   int    `json:"medium"`
	High     int    `json:"high"`
	Critical int    `json:"critical"`
}

// MitreDistribution counts events per MITRE tactic and technique.
type MitreDistribution struct {
	Tactics    map[string]int `json:"tactics"`
	Techniques map[string]int `json:"techniques"`
}

// Timeline ranges
const (
	TimelineRange24Hours = "24hours"
	TimelineRange7Days   = "7days"
	TimelineRange30Days  = "30days"
	TimelineRange90Days  = "90days"
)

// Timeline bucket widths
const (
	BucketHour = "hour"
	BucketDay  = "day"
	BucketWeek = "week"
)
