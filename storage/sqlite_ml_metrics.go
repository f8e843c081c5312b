package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"seclabel/core"
)

// DefaultMLMetricsLimit is how many snapshots LatestMLMetrics returns when
// the caller passes a non-positive limit.
const DefaultMLMetricsLimit = 10

// SQLiteMLMetricsStorage implements MLMetricsStorage using SQLite
type SQLiteMLMetricsStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteMLMetricsStorage creates a new SQLite-based ML metrics storage
func NewSQLiteMLMetricsStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteMLMetricsStorage {
	return &SQLiteMLMetricsStorage{sqlite: sqlite, logger: logger}
}

// InsertMLMetrics stores a snapshot and sets its ID.
func (s *SQLiteMLMetricsStorage) InsertMLMetrics(ctx context.Context, m *core.MLMetrics) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	classMetrics := m.ClassMetrics
	if classMetrics == nil {
		classMetrics = map[string]core.ClassMetric{}
	}
	classJSON, err := json.Marshal(classMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal class metrics: %w", err)
	}

	res, err := s.sqlite.WriteDB.ExecContext(ctx, `
		INSERT INTO ml_performance_metrics (
			model_version, timestamp, true_positives, false_positives, true_negatives, false_negatives,
			accuracy, precision, recall, f1_score, class_metrics
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ModelVersion, formatTime(m.Timestamp),
		m.TruePositives, m.FalsePositives, m.TrueNegatives, m.FalseNegatives,
		m.Accuracy, m.Precision, m.Recall, m.F1Score, string(classJSON))
	if err != nil {
		return fmt.Errorf("failed to insert ML metrics: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

// LatestMLMetrics returns the newest snapshots first.
func (s *SQLiteMLMetricsStorage) LatestMLMetrics(ctx context.Context, limit int) ([]core.MLMetrics, error) {
	if limit <= 0 {
		limit = DefaultMLMetricsLimit
	}

	rows, err := s.sqlite.ReadDB.QueryContext(ctx, `
		SELECT id, model_version, timestamp, true_positives, false_positives, true_negatives, false_negatives,
			accuracy, precision, recall, f1_score, class_metrics
		FROM ml_performance_metrics
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ML metrics: %w", err)
	}
	defer rows.Close()

	out := make([]core.MLMetrics, 0)
	for rows.Next() {
		var (
			m         core.MLMetrics
			ts        string
			classJSON string
		)
		if err := rows.Scan(&m.ID, &m.ModelVersion, &ts,
			&m.TruePositives, &m.FalsePositives, &m.TrueNegatives, &m.FalseNegatives,
			&m.Accuracy, &m.Precision, &m.Recall, &m.F1Score, &classJSON); err != nil {
			return nil, fmt.Errorf("failed to scan ML metrics: %w", err)
		}
		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		m.ClassMetrics = map[string]core.ClassMetric{}
		if classJSON != "" {
			if err := json.Unmarshal([]byte(classJSON), &m.ClassMetrics); err != nil {
				s.logger.Warnw("Ignoring unreadable class metrics", "metrics_id", m.ID, "error", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
