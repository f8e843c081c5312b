package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"seclabel/core"
	"seclabel/metrics"
	"seclabel/storage"
)

var (
	// ErrInvalidFileName is returned for download names that are not a bare file name
	ErrInvalidFileName = errors.New("invalid file name")

	// ErrFileNotFound is returned when a download name does not exist in the export directory
	ErrFileNotFound = errors.New("file not found")
)

const jobTimeout = 10 * time.Minute

// Config tunes the Exporter.
type Config struct {
	Dir       string
	Workers   int
	QueueSize int
}

// Exporter runs export jobs on a worker pool.
type Exporter struct {
	jobs     storage.ExportJobStorage
	events   storage.EventStorage
	settings storage.SettingsStorage
	dir      string
	pool     *core.WorkerPool
	logger   *zap.SugaredLogger
	now      func() time.Time

	// running jobs derive from ctx; Stop cancels it once the pool has drained
	ctx    context.Context
	cancel context.CancelFunc

	// OnStatus is called after every status change
	OnStatus func(core.ExportJob)
}

// NewExporter creates the export directory and the worker pool. Workers do
// not start until Start.
func NewExporter(ctx context.Context, jobs storage.ExportJobStorage, events storage.EventStorage, settings storage.SettingsStorage, cfg Config, logger *zap.SugaredLogger) (*Exporter, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	jobCtx, cancel := context.WithCancel(ctx)
	return &Exporter{
		jobs:     jobs,
		events:   events,
		settings: settings,
		dir:      cfg.Dir,
		pool:     core.NewWorkerPoolWithContext(ctx, cfg.Workers, cfg.QueueSize, "export", logger),
		logger:   logger,
		now:      time.Now,
		ctx:      jobCtx,
		cancel:   cancel,
	}, nil
}

// Dir returns the export directory.
func (x *Exporter) Dir() string { return x.dir }

// Start launches the workers and re-queues jobs left pending by a previous
// run. Jobs a previous run left processing are reset to pending first.
func (x *Exporter) Start(ctx context.Context) error {
	if err := x.pool.Start(); err != nil {
		return err
	}
	reset, err := x.jobs.ResetProcessingExportJobs(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		x.logger.Warnw("Recovered interrupted export jobs", "count", reset)
	}
	pending, err := x.jobs.ListPendingExportJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending export jobs: %w", err)
	}
	for i := range pending {
		job := pending[i]
		if err := x.enqueue(job); err != nil {
			x.logger.Warnw("Could not re-queue export job", "job_id", job.ID, "error", err)
		}
	}
	if len(pending) > 0 {
		x.logger.Infow("Re-queued pending export jobs", "count", len(pending))
	}
	return nil
}

// Stop waits for running jobs, then cancels any that outlived the pool's
// stop timeout. Jobs still queued stay pending in the database.
func (x *Exporter) Stop() {
	x.pool.Stop()
	x.cancel()
}

// Create stores a pending job for req and queues it. A job the pool rejects
// is marked failed.
func (x *Exporter) Create(ctx context.Context, req core.ExportRequest) (*core.ExportJob, error) {
	job := &core.ExportJob{
		Format:    req.Format,
		Status:    core.ExportStatusPending,
		CreatedAt: x.now().UTC(),
		Filters:   req.Filters,
	}
	if err := x.jobs.CreateExportJob(ctx, job); err != nil {
		return nil, err
	}
	x.notify(*job)

	if err := x.enqueue(*job); err != nil {
		x.logger.Warnw("Export queue rejected job", "job_id", job.ID, "error", err)
		x.finish(ctx, job, core.ExportStatusFailed, "Export could not be queued: "+err.Error())
	}
	return job, nil
}

func (x *Exporter) enqueue(job core.ExportJob) error {
	return x.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(x.ctx, jobTimeout)
		defer cancel()
		x.Process(ctx, &job)
	})
}

// Process runs one job to completion, recording the outcome on the job.
func (x *Exporter) Process(ctx context.Context, job *core.ExportJob) {
	start := time.Now()
	job.Status = core.ExportStatusProcessing
	if err := x.jobs.UpdateExportJob(ctx, job); err != nil {
		x.logger.Errorw("Failed to mark export job processing", "job_id", job.ID, "error", err)
		return
	}
	x.notify(*job)

	name, count, err := x.write(ctx, job)
	metrics.ExportDuration.Observe(time.Since(start).Seconds())
	if errors.Is(ctx.Err(), context.Canceled) {
		// left processing; the next Start re-queues it
		x.logger.Warnw("Export job interrupted by shutdown", "job_id", job.ID)
		return
	}
	if err != nil {
		x.logger.Errorw("Export job failed", "job_id", job.ID, "format", job.Format, "error", err)
		x.finish(ctx, job, core.ExportStatusFailed, "Export failed: "+err.Error())
		return
	}

	job.FilePath = name
	job.RecordCount = count
	x.finish(ctx, job, core.ExportStatusCompleted, fmt.Sprintf("Exported %d events", count))
	x.logger.Infow("Export job completed", "job_id", job.ID, "format", job.Format, "records", count, "file", name)
}

func (x *Exporter) finish(ctx context.Context, job *core.ExportJob, status, message string) {
	now := x.now().UTC()
	job.Status = status
	job.CompletedAt = &now
	job.Message = message
	if err := x.jobs.UpdateExportJob(ctx, job); err != nil {
		x.logger.Errorw("Failed to record export job outcome", "job_id", job.ID, "status", status, "error", err)
	}
	metrics.ExportJobs.WithLabelValues(job.Format, status).Inc()
	x.notify(*job)
}

func (x *Exporter) notify(job core.ExportJob) {
	if x.OnStatus != nil {
		x.OnStatus(job)
	}
}

// FileName builds an export file name for format at t.
func FileName(format string, t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("events_%s_%s.%s", t.UTC().Format("20060102_150405"), suffix, format)
}

// write streams matching events into a new file and returns its base name.
// The file only appears under its final name once complete.
func (x *Exporter) write(ctx context.Context, job *core.ExportJob) (string, int, error) {
	sys, err := x.settings.GetSystemConfig(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read export settings: %w", err)
	}

	name := FileName(job.Format, x.now())
	final := filepath.Join(x.dir, name)
	tmp, err := os.CreateTemp(x.dir, ".export-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	rw := newRecordWriter(job.Format, tmp)
	if err := rw.Begin(); err != nil {
		return "", 0, err
	}
	count, err := x.events.IterateEvents(ctx, job.Filters, sys.Export.MaxRecordsPerExport, sys.Export.IncludeRawLogs,
		func(e *core.Event) error { return rw.Write(e) })
	if err != nil {
		return "", 0, err
	}
	if err := rw.End(); err != nil {
		return "", 0, err
	}
	if err := tmp.Close(); err != nil {
		return "", 0, err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", 0, fmt.Errorf("failed to finalize export file: %w", err)
	}
	return name, count, nil
}

// Resolve maps a download name to a path inside the export directory. Only
// bare file names are accepted.
func (x *Exporter) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidFileName
	}
	path := filepath.Join(x.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrFileNotFound
	}
	return path, nil
}

// ContentType returns the MIME type for an export file name.
func ContentType(name string) string {
	if strings.HasSuffix(name, "."+core.ExportFormatJSON) {
		return "application/json"
	}
	return "text/csv"
}
