package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"seclabel/core"
)

func TestExportJobs_Lifecycle(t *testing.T) {
	sqlite := setupTestSQLite(t)
	s := NewSQLiteExportJobStorage(sqlite, zap.NewNop().Sugar())
	ctx := context.Background()

	job := &core.ExportJob{
		Format:  core.ExportFormatJSON,
		Filters: core.EventFilter{Severity: "high", ManualReview: boolPtr(true)},
	}
	require.NoError(t, s.CreateExportJob(ctx, job))
	assert.NotZero(t, job.ID)
	assert.Equal(t, core.ExportStatusPending, job.Status)

	got, err := s.GetExportJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "high", got.Filters.Severity)
	require.NotNil(t, got.Filters.ManualReview)
	assert.True(t, *got.Filters.ManualReview)
	assert.Nil(t, got.CompletedAt)

	pending, err := s.ListPendingExportJobs(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	done := time.Now().UTC()
	got.Status = core.ExportStatusCompleted
	got.CompletedAt = &done
	got.FilePath = "/tmp/events.json"
	got.RecordCount = 42
	require.NoError(t, s.UpdateExportJob(ctx, got))

	got, err = s.GetExportJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ExportStatusCompleted, got.Status)
	assert.Equal(t, 42, got.RecordCount)
	require.NotNil(t, got.CompletedAt)

	pending, err = s.ListPendingExportJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = s.GetExportJob(ctx, 999)
	assert.ErrorIs(t, err, ErrExportJobNotFound)
	assert.ErrorIs(t, s.UpdateExportJob(ctx, &core.ExportJob{ID: 999}), ErrExportJobNotFound)
}

func TestExportJobs_ListNewestFirst(t *testing.T) {
	sqlite := setupTestSQLite(t)
	s := NewSQLiteExportJobStorage(sqlite, zap.NewNop().Sugar())
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		job := &core.ExportJob{Format: core.ExportFormatCSV, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if i == 2 {
			job.Status = core.ExportStatusFailed
		}
		require.NoError(t, s.CreateExportJob(ctx, job))
	}

	jobs, total, err := s.ListExportJobs(ctx, "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, jobs, 2)
	assert.Equal(t, core.ExportStatusFailed, jobs[0].Status)

	jobs, total, err = s.ListExportJobs(ctx, core.ExportStatusPending, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, jobs, 2)
}

func TestExportJobs_ResetProcessing(t *testing.T) {
	sqlite := setupTestSQLite(t)
	s := NewSQLiteExportJobStorage(sqlite, zap.NewNop().Sugar())
	ctx := context.Background()

	running := &core.ExportJob{Format: core.ExportFormatCSV, Status: core.ExportStatusProcessing}
	done := &core.ExportJob{Format: core.ExportFormatCSV, Status: core.ExportStatusCompleted}
	require.NoError(t, s.CreateExportJob(ctx, running))
	require.NoError(t, s.CreateExportJob(ctx, done))

	n, err := s.ResetProcessingExportJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := s.ListPendingExportJobs(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, running.ID, pending[0].ID)

	got, err := s.GetExportJob(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ExportStatusCompleted, got.Status)
}
