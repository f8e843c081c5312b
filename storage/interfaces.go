package storage

import (
	"context"
	"time"

	"seclabel/core"
)

// EventStorage persists events, their raw logs and label state.
type EventStorage interface {
	ListEvents(ctx context.Context, filter core.EventFilter, page, pageSize int) ([]core.Event, int, error)
	GetEvent(ctx context.Context, id int64) (*core.Event, error)
	InsertEvent(ctx context.Context, event *core.Event, rawLogs []core.RawLog) (bool, error)
	LabelEvent(ctx context.Context, id int64, req *core.LabelRequest) (*core.Event, error)
	BatchLabel(ctx context.Context, filter core.EventFilter, req *core.LabelRequest) (int, error)
	IterateEvents(ctx context.Context, filter core.EventFilter, max int, withRawLogs bool, fn func(*core.Event) error) (int, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GetEventsByIDs(ctx context.Context, ids []int64) ([]core.Event, error)
	ApplyClassification(ctx context.Context, id int64, c *core.Classification, confidence float64, humanVerified bool, at time.Time) (*core.Event, error)
	VerifyLabel(ctx context.Context, id int64, req *core.VerifyRequest, at time.Time) (*core.Event, error)
	ListUnverified(ctx context.Context, page, pageSize int) ([]core.Event, int, error)
	ListVerifiedForMetrics(ctx context.Context, start, end *time.Time) ([]core.Event, error)
}

// DashboardStorage computes dashboard aggregates.
type DashboardStorage interface {
	GetStats(ctx context.Context, now time.Time) (*core.DashboardStats, error)
	GetTopAttacks(ctx context.Context, limit int) ([]core.AttackCount, error)
	GetSeverityDistribution(ctx context.Context) (map[string]int, error)
	GetTimeline(ctx context.Context, rangeName string, now time.Time) ([]core.TimelinePoint, error)
	GetMitreDistribution(ctx context.Context) (*core.MitreDistribution, error)
}

// ExportJobStorage persists export jobs.
type ExportJobStorage interface {
	CreateExportJob(ctx context.Context, job *core.ExportJob) error
	GetExportJob(ctx context.Context, id int64) (*core.ExportJob, error)
	UpdateExportJob(ctx context.Context, job *core.ExportJob) error
	ListExportJobs(ctx context.Context, status string, page, pageSize int) ([]core.ExportJob, int, error)
	ListPendingExportJobs(ctx context.Context) ([]core.ExportJob, error)
	ResetProcessingExportJobs(ctx context.Context) (int64, error)
}

// UserStorage persists console users.
type UserStorage interface {
	ListUsers(ctx context.Context) ([]core.User, error)
	CreateUser(ctx context.Context, user *core.User) error
	DeleteUser(ctx context.Context, id int64) error
}

// SettingsStorage persists API integration settings and system config rows.
type SettingsStorage interface {
	GetAPIConfig(ctx context.Context) (*core.APIConfig, error)
	SaveAPIConfig(ctx context.Context, cfg *core.APIConfig) (*core.APIConfig, error)
	GetSystemConfigRows(ctx context.Context) (map[string]string, error)
	SaveSystemConfigRows(ctx context.Context, rows map[string]string) error
	GetSystemConfig(ctx context.Context) (core.SystemConfig, error)
}

// MLMetricsStorage persists ML evaluation snapshots.
type MLMetricsStorage interface {
	InsertMLMetrics(ctx context.Context, m *core.MLMetrics) error
	LatestMLMetrics(ctx context.Context, limit int) ([]core.MLMetrics, error)
}
