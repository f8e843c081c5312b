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

func TestDashboard_StatsAndDistributions(t *testing.T) {
	sqlite, events := setupEventStorage(t)
	dash := NewSQLiteDashboardStorage(sqlite, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Date(2024, 7, 15, 15, 0, 0, 0, time.UTC)

	e1 := insertTestEvent(t, events, "1", "high", "wazuh", now.Add(-time.Hour))
	e2 := insertTestEvent(t, events, "2", "low", "wazuh", now.Add(-2*time.Hour))
	insertTestEvent(t, events, "3", "critical", "splunk", now.Add(-30*time.Hour))

	_, err := events.LabelEvent(ctx, e1.ID, &core.LabelRequest{
		TruePositive: boolPtr(true), AttackType: "Brute Force",
		MitreTactic: "Credential Access", MitreTechnique: "Password Guessing",
	})
	require.NoError(t, err)
	_, err = events.LabelEvent(ctx, e2.ID, &core.LabelRequest{
		TruePositive: boolPtr(false), AttackType: "Brute Force", MitreTactic: "Credential Access",
	})
	require.NoError(t, err)

	stats, err := dash.GetStats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEvents)
	assert.Equal(t, 2, stats.EventsToday)
	assert.Equal(t, 2, stats.LabeledEvents)
	assert.Equal(t, 1, stats.TruePositives)
	require.Len(t, stats.SIEMSources, 2)
	assert.Equal(t, core.SourceCount{Name: "wazuh", Count: 2}, stats.SIEMSources[0])

	top, err := dash.GetTopAttacks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, core.AttackCount{AttackType: "Brute Force", Count: 2, Percentage: 100}, top[0])

	sev, err := dash.GetSeverityDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"high": 1, "low": 1, "critical": 1}, sev)

	mitre, err := dash.GetMitreDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mitre.Tactics["Credential Access"])
	assert.Equal(t, 1, mitre.Techniques["Password Guessing"])
}

func TestDashboard_TimelineBuckets(t *testing.T) {
	sqlite, events := setupEventStorage(t)
	dash := NewSQLiteDashboardStorage(sqlite, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Date(2024, 7, 15, 15, 30, 0, 0, time.UTC)

	insertTestEvent(t, events, "1", "high", "wazuh", now.Add(-10*time.Minute))
	insertTestEvent(t, events, "2", "medium", "wazuh", now.Add(-20*time.Minute))
	insertTestEvent(t, events, "3", "critical", "wazuh", now.Add(-26*time.Hour))
	insertTestEvent(t, events, "4", "low", "wazuh", now.AddDate(0, 0, -20))

	hourly, err := dash.GetTimeline(ctx, core.TimelineRange24Hours, now)
	require.NoError(t, err)
	require.Len(t, hourly, 1)
	assert.Equal(t, core.TimelinePoint{Date: "2024-07-15 15:00", Total: 2, Medium: 1, High: 1}, hourly[0])

	daily, err := dash.GetTimeline(ctx, "bogus", now)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "2024-07-14", daily[0].Date)
	assert.Equal(t, 1, daily[0].Critical)
	assert.Equal(t, "2024-07-15", daily[1].Date)

	monthly, err := dash.GetTimeline(ctx, core.TimelineRange30Days, now)
	require.NoError(t, err)
	assert.Len(t, monthly, 3)
}

func TestBucketKey(t *testing.T) {
	// Wednesday
	ts := time.Date(2024, 7, 17, 9, 45, 0, 0, time.UTC)
	assert.Equal(t, "2024-07-17 09:00", BucketKey(ts, core.BucketHour))
	assert.Equal(t, "2024-07-17", BucketKey(ts, core.BucketDay))
	assert.Equal(t, "2024-07-15", BucketKey(ts, core.BucketWeek))

	sunday := time.Date(2024, 7, 21, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-07-15", BucketKey(sunday, core.BucketWeek))
}

func TestTimelineWindow(t *testing.T) {
	d, b := TimelineWindow(core.TimelineRange90Days)
	assert.Equal(t, 90*24*time.Hour, d)
	assert.Equal(t, core.BucketWeek, b)

	d, b = TimelineWindow("")
	assert.Equal(t, 7*24*time.Hour, d)
	assert.Equal(t, core.BucketDay, b)
}
