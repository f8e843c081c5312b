package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"seclabel/core"
)

const exportJobColumns = "id, format, status, created_at, completed_at, file_path, record_count, filters, message"

// SQLiteExportJobStorage implements ExportJobStorage using SQLite
type SQLiteExportJobStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteExportJobStorage creates a new SQLite-based export job storage
func NewSQLiteExportJobStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteExportJobStorage {
	return &SQLiteExportJobStorage{sqlite: sqlite, logger: logger}
}

func scanExportJob(row rowScanner) (*core.ExportJob, error) {
	var (
		job         core.ExportJob
		createdAt   string
		completedAt sql.NullString
		filters     string
	)
	if err := row.Scan(&job.ID, &job.Format, &job.Status, &createdAt, &completedAt,
		&job.FilePath, &job.RecordCount, &filters, &job.Message); err != nil {
		return nil, err
	}

	var err error
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if filters != "" {
		if err := json.Unmarshal([]byte(filters), &job.Filters); err != nil {
			return nil, fmt.Errorf("decode filters of export job %d: %w", job.ID, err)
		}
	}
	return &job, nil
}

// CreateExportJob inserts a job and sets its ID and CreatedAt.
func (s *SQLiteExportJobStorage) CreateExportJob(ctx context.Context, job *core.ExportJob) error {
	filters, err := json.Marshal(job.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}
	if job.Status == "" {
		job.Status = core.ExportStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO export_jobs (format, status, created_at, completed_at, file_path, record_count, filters, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Format, job.Status, formatTime(job.CreatedAt), formatTimePtr(job.CompletedAt),
		job.FilePath, job.RecordCount, string(filters), job.Message)
	if err != nil {
		return fmt.Errorf("failed to create export job: %w", err)
	}
	job.ID, err = res.LastInsertId()
	return err
}

// GetExportJob returns one job.
func (s *SQLiteExportJobStorage) GetExportJob(ctx context.Context, id int64) (*core.ExportJob, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, "SELECT "+exportJobColumns+" FROM export_jobs WHERE id = ?", id)
	job, err := scanExportJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExportJobNotFound
		}
		return nil, fmt.Errorf("failed to get export job %d: %w", id, err)
	}
	return job, nil
}

// UpdateExportJob saves the job's status and results.
func (s *SQLiteExportJobStorage) UpdateExportJob(ctx context.Context, job *core.ExportJob) error {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		UPDATE export_jobs SET status = ?, completed_at = ?, file_path = ?, record_count = ?, message = ?
		WHERE id = ?`,
		job.Status, formatTimePtr(job.CompletedAt), job.FilePath, job.RecordCount, job.Message, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update export job %d: %w", job.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrExportJobNotFound
	}
	return nil
}

// ListExportJobs returns one page of jobs, newest first, optionally limited
// to one status.
func (s *SQLiteExportJobStorage) ListExportJobs(ctx context.Context, status string, page, pageSize int) ([]core.ExportJob, int, error) {
	where := "1=1"
	var args []interface{}
	if status != "" {
		where = "status = ?"
		args = append(args, status)
	}

	var total int
	if err := s.sqlite.ReadDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM export_jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count export jobs: %w", err)
	}

	jobs, err := s.queryJobs(ctx,
		"SELECT "+exportJobColumns+" FROM export_jobs WHERE "+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// ListPendingExportJobs returns jobs that never started, oldest first.
func (s *SQLiteExportJobStorage) ListPendingExportJobs(ctx context.Context) ([]core.ExportJob, error) {
	return s.queryJobs(ctx,
		"SELECT "+exportJobColumns+" FROM export_jobs WHERE status = ? ORDER BY id", core.ExportStatusPending)
}

// ResetProcessingExportJobs moves jobs interrupted mid-run back to pending
// and returns how many were reset.
func (s *SQLiteExportJobStorage) ResetProcessingExportJobs(ctx context.Context) (int64, error) {
	res, err := s.sqlite.WriteDB.ExecContext(ctx,
		"UPDATE export_jobs SET status = ?, message = ? WHERE status = ?",
		core.ExportStatusPending, "Re-queued after an interrupted run", core.ExportStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing export jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteExportJobStorage) queryJobs(ctx context.Context, query string, args ...interface{}) ([]core.ExportJob, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query export jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]core.ExportJob, 0)
	for rows.Next() {
		job, err := scanExportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
