package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"seclabel/core"
)

const eventColumns = `id, event_id, timestamp, source_ip, severity, siem_source, manual_review,
	labels, attack_type, mitre_tactic, mitre_technique, true_positive,
	ml_processed, ml_confidence, ml_timestamp, human_verified`

// iterateBatchSize is how many events IterateEvents loads per query.
const iterateBatchSize = 500

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// SQLiteEventStorage implements EventStorage using SQLite
type SQLiteEventStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteEventStorage creates a new SQLite-based event storage
func NewSQLiteEventStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteEventStorage {
	return &SQLiteEventStorage{sqlite: sqlite, logger: logger}
}

func scanEvent(row rowScanner) (*core.Event, error) {
	var (
		e            core.Event
		ts           string
		labels       string
		truePositive sql.NullInt64
		mlTimestamp  sql.NullString
		manualReview int
		mlProcessed  int
		verified     int
	)
	err := row.Scan(&e.ID, &e.EventID, &ts, &e.SourceIP, &e.Severity, &e.SIEMSource, &manualReview,
		&labels, &e.AttackType, &e.MitreTactic, &e.MitreTechnique, &truePositive,
		&mlProcessed, &e.MLConfidence, &mlTimestamp, &verified)
	if err != nil {
		return nil, err
	}

	if e.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	if e.MLTimestamp, err = parseNullTime(mlTimestamp); err != nil {
		return nil, err
	}
	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &e.Labels); err != nil {
			return nil, fmt.Errorf("decode labels of event %d: %w", e.ID, err)
		}
	}
	if e.Labels.ManualTags == nil {
		e.Labels.ManualTags = core.Tags{}
	}
	if truePositive.Valid {
		v := truePositive.Int64 == 1
		e.TruePositive = &v
	}
	e.ManualReview = manualReview == 1
	e.MLProcessed = mlProcessed == 1
	e.HumanVerified = verified == 1
	return &e, nil
}

func nullableBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

// buildEventWhere turns a filter into a WHERE clause (without the keyword).
func buildEventWhere(f core.EventFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if f.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, strings.ToLower(f.Severity))
	}
	if f.SIEMSource != "" {
		clauses = append(clauses, "siem_source = ?")
		args = append(args, f.SIEMSource)
	}
	if f.SourceIP != "" {
		clauses = append(clauses, "source_ip = ?")
		args = append(args, f.SourceIP)
	}
	if f.ManualReview != nil {
		clauses = append(clauses, "manual_review = ?")
		args = append(args, boolToInt(*f.ManualReview))
	}
	if f.AttackType != "" {
		clauses = append(clauses, "attack_type = ?")
		args = append(args, f.AttackType)
	}
	if f.DateFrom != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, formatTime(*f.DateFrom))
	}
	if f.DateTo != nil {
		to := *f.DateTo
		// whole-second bounds include the rest of that second
		if to.Nanosecond() == 0 {
			to = to.Add(time.Second - time.Microsecond)
		}
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, formatTime(to))
	}

	if len(clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *SQLiteEventStorage) queryEvents(ctx context.Context, q rowQuerier, query string, args ...interface{}) ([]core.Event, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]core.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *SQLiteEventStorage) countEvents(ctx context.Context, where string, args []interface{}) (int, error) {
	var total int
	err := s.sqlite.ReadDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE "+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return total, nil
}

// ListEvents returns one page of events matching filter, newest first.
func (s *SQLiteEventStorage) ListEvents(ctx context.Context, filter core.EventFilter, page, pageSize int) ([]core.Event, int, error) {
	where, args := buildEventWhere(filter)

	total, err := s.countEvents(ctx, where, args)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT " + eventColumns + " FROM events WHERE " + where +
		" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	events, err := s.queryEvents(ctx, s.sqlite.ReadDB, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func getEventWith(ctx context.Context, q rowQuerier, id int64) (*core.Event, error) {
	row := q.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event %d: %w", id, err)
	}
	return e, nil
}

// GetEvent returns one event with its raw logs.
func (s *SQLiteEventStorage) GetEvent(ctx context.Context, id int64) (*core.Event, error) {
	e, err := getEventWith(ctx, s.sqlite.ReadDB, id)
	if err != nil {
		return nil, err
	}

	logs, err := s.rawLogsFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	e.RawLogs = logs[id]
	if e.RawLogs == nil {
		e.RawLogs = []core.RawLog{}
	}
	return e, nil
}

func (s *SQLiteEventStorage) rawLogsFor(ctx context.Context, ids []int64) (map[int64][]core.RawLog, error) {
	out := make(map[int64][]core.RawLog, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		"SELECT id, event_id, source, timestamp, log_data FROM raw_logs WHERE event_id IN ("+placeholders(len(ids))+") ORDER BY id",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rl   core.RawLog
			ts   sql.NullString
			data string
		)
		if err := rows.Scan(&rl.ID, &rl.EventID, &rl.Source, &ts, &data); err != nil {
			return nil, fmt.Errorf("failed to scan raw log: %w", err)
		}
		if rl.Timestamp, err = parseNullTime(ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &rl.LogData); err != nil {
			s.logger.Warnw("Raw log payload is not a JSON object", "raw_log_id", rl.ID, "error", err)
			rl.LogData = map[string]interface{}{"raw": data}
		}
		out[rl.EventID] = append(out[rl.EventID], rl)
	}
	return out, rows.Err()
}

// InsertEvent stores a new event and its raw logs. It reports false without
// error when an event with the same event_id already exists.
func (s *SQLiteEventStorage) InsertEvent(ctx context.Context, event *core.Event, rawLogs []core.RawLog) (bool, error) {
	if strings.TrimSpace(event.EventID) == "" {
		return false, fmt.Errorf("event_id is required")
	}
	event.Severity = strings.ToLower(event.Severity)
	if !core.IsValidSeverity(event.Severity) {
		event.Severity = core.SeverityLow
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	labels, err := json.Marshal(event.Labels)
	if err != nil {
		return false, fmt.Errorf("failed to marshal labels: %w", err)
	}

	inserted := false
	err = s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO events (event_id, timestamp, source_ip, severity, siem_source, manual_review,
				labels, attack_type, mitre_tactic, mitre_technique, true_positive,
				ml_processed, ml_confidence, ml_timestamp, human_verified, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(event_id) DO NOTHING`,
			event.EventID,
			formatTime(event.Timestamp),
			event.SourceIP,
			event.Severity,
			event.SIEMSource,
			boolToInt(event.ManualReview),
			string(labels),
			event.AttackType,
			event.MitreTactic,
			event.MitreTechnique,
			nullableBool(event.TruePositive),
			boolToInt(event.MLProcessed),
			event.MLConfidence,
			formatTimePtr(event.MLTimestamp),
			boolToInt(event.HumanVerified),
			formatTime(time.Now()),
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if event.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		for i := range rawLogs {
			rl := &rawLogs[i]
			data, err := json.Marshal(rl.LogData)
			if err != nil {
				return fmt.Errorf("failed to marshal raw log: %w", err)
			}
			res, err := tx.ExecContext(ctx,
				"INSERT INTO raw_logs (event_id, source, timestamp, log_data) VALUES (?, ?, ?, ?)",
				event.ID, rl.Source, formatTimePtr(rl.Timestamp), string(data))
			if err != nil {
				return fmt.Errorf("failed to insert raw log: %w", err)
			}
			rl.EventID = event.ID
			if rl.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if inserted {
		event.RawLogs = rawLogs
	}
	return inserted, nil
}

func updateEventTx(ctx context.Context, tx *sql.Tx, e *core.Event) error {
	if e.Labels.ManualTags == nil {
		e.Labels.ManualTags = core.Tags{}
	}
	labels, err := json.Marshal(e.Labels)
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE events SET manual_review = ?, labels = ?, attack_type = ?, mitre_tactic = ?,
			mitre_technique = ?, true_positive = ?, ml_processed = ?, ml_confidence = ?,
			ml_timestamp = ?, human_verified = ?
		WHERE id = ?`,
		boolToInt(e.ManualReview),
		string(labels),
		e.AttackType,
		e.MitreTactic,
		e.MitreTechnique,
		nullableBool(e.TruePositive),
		boolToInt(e.MLProcessed),
		e.MLConfidence,
		formatTimePtr(e.MLTimestamp),
		boolToInt(e.HumanVerified),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update event %d: %w", e.ID, err)
	}
	return nil
}

// mutateEvent loads an event inside a write transaction, applies fn and saves it.
func (s *SQLiteEventStorage) mutateEvent(ctx context.Context, id int64, fn func(*core.Event) error) (*core.Event, error) {
	var out *core.Event
	err := s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		e, err := getEventWith(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		if err := updateEventTx(ctx, tx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// LabelEvent replaces the analyst labels of one event.
func (s *SQLiteEventStorage) LabelEvent(ctx context.Context, id int64, req *core.LabelRequest) (*core.Event, error) {
	return s.mutateEvent(ctx, id, func(e *core.Event) error {
		req.Apply(e)
		return nil
	})
}

// BatchLabel merges labels into every event matching filter and returns how
// many were updated.
func (s *SQLiteEventStorage) BatchLabel(ctx context.Context, filter core.EventFilter, req *core.LabelRequest) (int, error) {
	where, args := buildEventWhere(filter)
	updated := 0

	err := s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		events, err := s.queryEvents(ctx, tx, "SELECT "+eventColumns+" FROM events WHERE "+where+" ORDER BY id", args...)
		if err != nil {
			return err
		}
		for i := range events {
			req.Merge(&events[i])
			if err := updateEventTx(ctx, tx, &events[i]); err != nil {
				return err
			}
		}
		updated = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// IterateEvents calls fn for up to max events matching filter, newest first.
// A max of zero or less means no cap. It returns the number of events visited.
func (s *SQLiteEventStorage) IterateEvents(ctx context.Context, filter core.EventFilter, max int, withRawLogs bool, fn func(*core.Event) error) (int, error) {
	where, args := buildEventWhere(filter)
	query := "SELECT " + eventColumns + " FROM events WHERE " + where +
		" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"

	visited := 0
	for {
		if err := ctx.Err(); err != nil {
			return visited, err
		}
		limit := iterateBatchSize
		if max > 0 && max-visited < limit {
			limit = max - visited
		}
		if limit <= 0 {
			return visited, nil
		}

		batch, err := s.queryEvents(ctx, s.sqlite.ReadDB, query, append(append([]interface{}{}, args...), limit, visited)...)
		if err != nil {
			return visited, err
		}
		if len(batch) == 0 {
			return visited, nil
		}

		if withRawLogs {
			ids := make([]int64, len(batch))
			for i := range batch {
				ids[i] = batch[i].ID
			}
			logs, err := s.rawLogsFor(ctx, ids)
			if err != nil {
				return visited, err
			}
			for i := range batch {
				batch[i].RawLogs = logs[batch[i].ID]
			}
		}

		for i := range batch {
			if err := fn(&batch[i]); err != nil {
				return visited, err
			}
			visited++
		}
		if len(batch) < limit {
			return visited, nil
		}
	}
}

// DeleteEventsBefore removes events older than cutoff together with their raw logs.
func (s *SQLiteEventStorage) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.sqlite.WriteDB.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	return res.RowsAffected()
}

// GetEventsByIDs returns the events with the given ids, with raw logs, in id order.
// Unknown ids are skipped.
func (s *SQLiteEventStorage) GetEventsByIDs(ctx context.Context, ids []int64) ([]core.Event, error) {
	if len(ids) == 0 {
		return []core.Event{}, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	events, err := s.queryEvents(ctx, s.sqlite.ReadDB,
		"SELECT "+eventColumns+" FROM events WHERE id IN ("+placeholders(len(ids))+") ORDER BY id", args...)
	if err != nil {
		return nil, err
	}

	logs, err := s.rawLogsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].RawLogs = logs[events[i].ID]
	}
	return events, nil
}

// ApplyClassification stores an ML suggestion on the event.
func (s *SQLiteEventStorage) ApplyClassification(ctx context.Context, id int64, c *core.Classification, confidence float64, humanVerified bool, at time.Time) (*core.Event, error) {
	return s.mutateEvent(ctx, id, func(e *core.Event) error {
		c.ApplyTo(e, confidence, humanVerified, at)
		return nil
	})
}

// VerifyLabel records an analyst's verdict on an ML classification.
func (s *SQLiteEventStorage) VerifyLabel(ctx context.Context, id int64, req *core.VerifyRequest, at time.Time) (*core.Event, error) {
	return s.mutateEvent(ctx, id, func(e *core.Event) error {
		if !e.MLProcessed {
			return ErrNotMLProcessed
		}
		req.Apply(e, at)
		return nil
	})
}

// ListUnverified returns ML-classified events still awaiting analyst review.
func (s *SQLiteEventStorage) ListUnverified(ctx context.Context, page, pageSize int) ([]core.Event, int, error) {
	const where = "ml_processed = 1 AND human_verified = 0"

	total, err := s.countEvents(ctx, where, nil)
	if err != nil {
		return nil, 0, err
	}
	events, err := s.queryEvents(ctx, s.sqlite.ReadDB,
		"SELECT "+eventColumns+" FROM events WHERE "+where+" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?",
		pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListVerifiedForMetrics returns ML-classified, analyst-verified events whose
// ml_timestamp falls within the optional bounds.
func (s *SQLiteEventStorage) ListVerifiedForMetrics(ctx context.Context, start, end *time.Time) ([]core.Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE ml_processed = 1 AND human_verified = 1"
	var args []interface{}
	if start != nil {
		query += " AND ml_timestamp >= ?"
		args = append(args, formatTime(*start))
	}
	if end != nil {
		query += " AND ml_timestamp <= ?"
		args = append(args, formatTime(*end))
	}
	query += " ORDER BY id"
	return s.queryEvents(ctx, s.sqlite.ReadDB, query, args...)
}
