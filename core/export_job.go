package core

import (
	"fmt"
	"strings"
	"time"
)

// Export formats
const (
	ExportFormatCSV  = "csv"
	ExportFormatJSON = "json"
)

// Export job statuses
const (
	ExportStatusPending    = "pending"
	ExportStatusProcessing = "processing"
	ExportStatusCompleted  = "completed"
	ExportStatusFailed     = "failed"
)

// ExportJob is an asynchronous export of filtered events to a file.
type ExportJob struct {
	ID          int64       `json:"id"`
	Format      string      `json:"format"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	FilePath    string      `json:"file_path,omitempty"`
	RecordCount int         `json:"record_count"`
	Filters     EventFilter `json:"filters"`
	Message     string      `json:"message,omitempty"`
}

// IsFinished reports whether the job reached a terminal status.
func (j *ExportJob) IsFinished() bool {
	return j.Status == ExportStatusCompleted || j.Status == ExportStatusFailed
}

// IsValidExportStatus reports whether s is a known job status.
func IsValidExportStatus(s string) bool {
	switch s {
	case ExportStatusPending, ExportStatusProcessing, ExportStatusCompleted, ExportStatusFailed:
		return true
	}
	return false
}

// ExportRequest is the body of POST /api/events/export.
type ExportRequest struct {
	Format  string      `json:"format" validate:"omitempty,oneof=csv json"`
	Filters EventFilter `json:"filters"`
}

// Normalize lower-cases the format and falls back to defaultFormat.
func (r *ExportRequest) Normalize(defaultFormat string) {
	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
	if r.Format == "" {
		r.Format = defaultFormat
	}
	if r.Format == "" {
		r.Format = ExportFormatCSV
	}
}

// Validate checks the format and the filters.
func (r *ExportRequest) Validate() error {
	if r.Format != ExportFormatCSV && r.Format != ExportFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidExportFormat, r.Format)
	}
	if err := Validate(r.Filters); err != nil {
		return err
	}
	return nil
}
