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

func TestMLMetrics_InsertAndLatest(t *testing.T) {
	sqlite := setupTestSQLite(t)
	s := NewSQLiteMLMetricsStorage(sqlite, zap.NewNop().Sugar())
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 12; i++ {
		m := &core.MLMetrics{
			ModelVersion:  "dummy-1.0",
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			TruePositives: i,
			ClassMetrics: map[string]core.ClassMetric{
				"Malware": core.NewClassMetric(i, 1, 1),
			},
		}
		m.Calculate()
		require.NoError(t, s.InsertMLMetrics(ctx, m))
		assert.NotZero(t, m.ID)
	}

	latest, err := s.LatestMLMetrics(ctx, 0)
	require.NoError(t, err)
	require.Len(t, latest, DefaultMLMetricsLimit)
	assert.Equal(t, 11, latest[0].TruePositives, "newest first")
	assert.Equal(t, 11+1, latest[0].ClassMetrics["Malware"].Support, "tp+fn")

	latest, err = s.LatestMLMetrics(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, latest, 3)
}

func TestMLMetrics_NilClassMetrics(t *testing.T) {
	sqlite := setupTestSQLite(t)
	s := NewSQLiteMLMetricsStorage(sqlite, zap.NewNop().Sugar())
	ctx := context.Background()

	require.NoError(t, s.InsertMLMetrics(ctx, &core.MLMetrics{ModelVersion: "unknown"}))

	latest, err := s.LatestMLMetrics(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.NotNil(t, latest[0].ClassMetrics)
	assert.False(t, latest[0].Timestamp.IsZero())
}
