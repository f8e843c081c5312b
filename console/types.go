package console

import "seclabel/core"

// EventPage is one page of GET /api/events.
type EventPage struct {
	Events     []core.Event `json:"events"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalCount int          `json:"total_count"`
	TotalPages int          `json:"total_pages"`
}

// ExportJobPage is one page of GET /api/export-jobs.
type ExportJobPage struct {
	Jobs       []core.ExportJob `json:"jobs"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalCount int              `json:"total_count"`
	TotalPages int              `json:"total_pages"`
}

type BatchLabelResult struct {
	Message      string `json:"message"`
	UpdatedCount int    `json:"updated_count"`
}

// FetchResult summarises a fetch from an event source.
type FetchResult struct {
	Status     string `json:"status"`
	Source     string `json:"source"`
	Fetched    int    `json:"fetched"`
	Imported   int    `json:"imported"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed,omitempty"`
}

type Dashboard struct {
	Stats      core.DashboardStats    `json:"stats"`
	TopAttacks []core.AttackCount     `json:"top_attacks"`
	Severity   map[string]int         `json:"severity"`
	Timeline   []core.TimelinePoint   `json:"timeline"`
	Mitre      core.MitreDistribution `json:"mitre_distribution"`
}

// MLStatus is the body of GET /api/ml/status.
type MLStatus struct {
	Status            string                 `json:"status"`
	Message           string                 `json:"message"`
	ModelInfo         *core.ModelInfo        `json:"model_info,omitempty"`
	ConnectionDetails map[string]interface{} `json:"connection_details,omitempty"`
	LatestMetrics     *core.MLMetrics        `json:"latest_metrics,omitempty"`
}

// MetricsUpdate is the body of POST /api/ml/update-metrics. Success is false
// with a Message when there was nothing to measure.
type MetricsUpdate struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Metrics *core.MLMetrics `json:"metrics,omitempty"`
}

type UnverifiedPage struct {
	Events     []core.Event `json:"events"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	Total      int          `json:"total"`
	TotalPages int          `json:"total_pages"`
}

type ServicesStatus struct {
	SIEMs   map[string]string `json:"siems"`
	ML      *MLStatus         `json:"ml"`
	Sources []string          `json:"sources"`
}
