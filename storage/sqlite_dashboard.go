package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"seclabel/core"
)

// SQLiteDashboardStorage implements DashboardStorage using SQLite
type SQLiteDashboardStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteDashboardStorage creates a new SQLite-based dashboard storage
func NewSQLiteDashboardStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteDashboardStorage {
	return &SQLiteDashboardStorage{sqlite: sqlite, logger: logger}
}

func (s *SQLiteDashboardStorage) count(ctx context.Context, where string, args ...interface{}) (int, error) {
	var n int
	if err := s.sqlite.ReadDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// GetStats returns event totals. "Today" is the UTC day containing now.
func (s *SQLiteDashboardStorage) GetStats(ctx context.Context, now time.Time) (*core.DashboardStats, error) {
	stats := &core.DashboardStats{SIEMSources: []core.SourceCount{}}
	var err error

	if stats.TotalEvents, err = s.count(ctx, "1=1"); err != nil {
		return nil, err
	}

	dayStart := now.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)
	if stats.EventsToday, err = s.count(ctx, "timestamp >= ? AND timestamp < ?", formatTime(dayStart), formatTime(dayEnd)); err != nil {
		return nil, err
	}
	if stats.LabeledEvents, err = s.count(ctx, "manual_review = 1"); err != nil {
		return nil, err
	}
	if stats.TruePositives, err = s.count(ctx, "true_positive = 1"); err != nil {
		return nil, err
	}

	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		"SELECT siem_source, COUNT(*) FROM events GROUP BY siem_source ORDER BY COUNT(*) DESC, siem_source")
	if err != nil {
		return nil, fmt.Errorf("failed to group by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc core.SourceCount
		if err := rows.Scan(&sc.Name, &sc.Count); err != nil {
			return nil, err
		}
		stats.SIEMSources = append(stats.SIEMSources, sc)
	}
	return stats, rows.Err()
}

// GetTopAttacks returns the most frequent attack types with their share of
// all events that carry one, rounded to one decimal.
func (s *SQLiteDashboardStorage) GetTopAttacks(ctx context.Context, limit int) ([]core.AttackCount, error) {
	if limit <= 0 {
		limit = 5
	}

	total, err := s.count(ctx, "attack_type != ''")
	if err != nil {
		return nil, err
	}

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT attack_type, COUNT(*) AS n FROM events
		WHERE attack_type != ''
		GROUP BY attack_type ORDER BY n DESC, attack_type LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top attacks: %w", err)
	}
	defer rows.Close()

	out := make([]core.AttackCount, 0, limit)
	for rows.Next() {
		var ac core.AttackCount
		if err := rows.Scan(&ac.AttackType, &ac.Count); err != nil {
			return nil, err
		}
		if total > 0 {
			ac.Percentage = math.Round(float64(ac.Count)/float64(total)*1000) / 10
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}

// GetSeverityDistribution counts events per severity.
func (s *SQLiteDashboardStorage) GetSeverityDistribution(ctx context.Context) (map[string]int, error) {
	return s.groupCount(ctx, "severity")
}

func (s *SQLiteDashboardStorage) groupCount(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM events WHERE "+column+" != '' GROUP BY "+column)
	if err != nil {
		return nil, fmt.Errorf("failed to group by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

// TimelineWindow maps a range name to its lookback and bucket width.
// Unknown names fall back to 7days.
func TimelineWindow(rangeName string) (time.Duration, string) {
	switch rangeName {
	case core.TimelineRange24Hours:
		return 24 * time.Hour, core.BucketHour
	case core.TimelineRange30Days:
		return 30 * 24 * time.Hour, core.BucketDay
	case core.TimelineRange90Days:
		return 90 * 24 * time.Hour, core.BucketWeek
	default:
		return 7 * 24 * time.Hour, core.BucketDay
	}
}

// BucketKey formats t for the given bucket width. Weeks start on Monday.
func BucketKey(t time.Time, bucket string) string {
	t = t.UTC()
	switch bucket {
	case core.BucketHour:
		return t.Format("2006-01-02 15:00")
	case core.BucketWeek:
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset).Format("2006-01-02")
	default:
		return t.Format("2006-01-02")
	}
}

// GetTimeline buckets events since the start of the range by severity,
// sorted by bucket.
func (s *SQLiteDashboardStorage) GetTimeline(ctx context.Context, rangeName string, now time.Time) ([]core.TimelinePoint, error) {
	lookback, bucket := TimelineWindow(rangeName)
	start := now.Add(-lookback)

	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		"SELECT timestamp, severity FROM events WHERE timestamp >= ? ORDER BY timestamp", formatTime(start))
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	points := make(map[string]*core.TimelinePoint)
	for rows.Next() {
		var ts, severity string
		if err := rows.Scan(&ts, &severity); err != nil {
			return nil, err
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}

		key := BucketKey(t, bucket)
		p, ok := points[key]
		if !ok {
			p = &core.TimelinePoint{Date: key}
			points[key] = p
		}
		p.Total++
		switch strings.ToLower(severity) {
		case core.SeverityMedium:
			p.Medium++
		case core.SeverityHigh:
			p.High++
		case core.SeverityCritical:
			p.Critical++
		default:
			p.Low++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]core.TimelinePoint, 0, len(points))
	for _, p := range points {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// GetMitreDistribution counts events per MITRE tactic and technique.
func (s *SQLiteDashboardStorage) GetMitreDistribution(ctx context.Context) (*core.MitreDistribution, error) {
	tactics, err := s.groupCount(ctx, "mitre_tactic")
	if err != nil {
		return nil, err
	}
	techniques, err := s.groupCount(ctx, "mitre_technique")
	if err != nil {
		return nil, err
	}
	return &core.MitreDistribution{Tactics: tactics, Techniques: techniques}, nil
}
