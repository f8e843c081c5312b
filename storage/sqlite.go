package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// timeLayout is a fixed-width UTC layout so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SQLite holds the database connections. Writes go through a single-connection
// pool; reads use a separate pool so they proceed concurrently under WAL.
type SQLite struct {
	DB      *sql.DB // same as WriteDB
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Path    string
	Logger  *zap.SugaredLogger
}

// connectionPragmas are applied by the driver to every new connection.
var connectionPragmas = []string{"foreign_keys(1)", "busy_timeout(5000)", "journal_mode(WAL)"}

// buildDSN maps a path to a driver URI carrying the per-connection pragmas.
// ":memory:" becomes a shared-cache URI so both pools see the same database.
func buildDSN(dbPath string) string {
	base := "file:" + dbPath
	if dbPath == ":memory:" {
		base = "file::memory:?cache=shared"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	for _, p := range connectionPragmas {
		base += sep + "_pragma=" + p
		sep = "&"
	}
	return base
}

func configureSQLiteConnection(db *sql.DB, dbPath, poolType string, logger *zap.SugaredLogger) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		return fmt.Errorf("failed to verify foreign keys: %w", err)
	}
	if fkEnabled != 1 {
		return fmt.Errorf("foreign keys not enabled on %s pool", poolType)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	// in-memory databases report "memory"
	if dbPath != ":memory:" && journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled on %s pool (got %s)", poolType, journalMode)
	}

	logger.Debugw("SQLite pool configured", "pool", poolType, "journal_mode", journalMode)
	return nil
}

// NewSQLite opens the database at dbPath and creates the schema.
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	if err := validateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	dsn := buildDSN(dbPath)

	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)
	if err := configureSQLiteConnection(writeDB, dbPath, "write", logger); err != nil {
		_ = writeDB.Close()
		return nil, err
	}

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to open SQLite read database: %w", err)
	}
	readDB.SetMaxOpenConns(8)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxIdleTime(10 * time.Minute)
	if err := configureSQLiteConnection(readDB, dbPath, "read", logger); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, err
	}

	s := &SQLite{
		DB:      writeDB,
		WriteDB: writeDB,
		ReadDB:  readDB,
		Path:    dbPath,
		Logger:  logger,
	}

	if err := s.createTables(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Infof("SQLite database initialized at %s", dbPath)
	return s, nil
}

// WithTransaction runs fn in a write transaction, rolling back on error or panic.
func (s *SQLite) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.WriteDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction (original error: %w, rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLite) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		source_ip TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL DEFAULT 'low',
		siem_source TEXT NOT NULL DEFAULT '',
		manual_review INTEGER NOT NULL DEFAULT 0,
		labels TEXT NOT NULL DEFAULT '{}', -- JSON document
		attack_type TEXT NOT NULL DEFAULT '',
		mitre_tactic TEXT NOT NULL DEFAULT '',
		mitre_technique TEXT NOT NULL DEFAULT '',
		true_positive INTEGER, -- NULL until labeled
		ml_processed INTEGER NOT NULL DEFAULT 0,
		ml_confidence REAL NOT NULL DEFAULT 0,
		ml_timestamp TEXT,
		human_verified INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_events_severity ON events(severity);
	CREATE INDEX IF NOT EXISTS idx_events_siem_source ON events(siem_source);
	CREATE INDEX IF NOT EXISTS idx_events_attack_type ON events(attack_type);
	CREATE INDEX IF NOT EXISTS idx_events_ml ON events(ml_processed, human_verified);

	CREATE TABLE IF NOT EXISTS raw_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		source TEXT NOT NULL DEFAULT '',
		timestamp TEXT,
		log_data TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_raw_logs_event ON raw_logs(event_id);

	CREATE TABLE IF NOT EXISTS export_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		format TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		completed_at TEXT,
		file_path TEXT NOT NULL DEFAULT '',
		record_count INTEGER NOT NULL DEFAULT 0,
		filters TEXT NOT NULL DEFAULT '{}',
		message TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_export_jobs_status ON export_jobs(status, created_at DESC);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'analyst',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS api_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		wazuh_api_url TEXT NOT NULL DEFAULT '',
		wazuh_api_key TEXT NOT NULL DEFAULT '',
		splunk_api_url TEXT NOT NULL DEFAULT '',
		splunk_api_key TEXT NOT NULL DEFAULT '',
		elastic_api_url TEXT NOT NULL DEFAULT '',
		elastic_api_key TEXT NOT NULL DEFAULT '',
		ml_api_url TEXT NOT NULL DEFAULT '',
		ml_api_key TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS system_config (
		config_key TEXT PRIMARY KEY, -- section.key
		config_value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ml_performance_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		model_version TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		true_positives INTEGER NOT NULL DEFAULT 0,
		false_positives INTEGER NOT NULL DEFAULT 0,
		true_negatives INTEGER NOT NULL DEFAULT 0,
		false_negatives INTEGER NOT NULL DEFAULT 0,
		accuracy REAL NOT NULL DEFAULT 0,
		precision REAL NOT NULL DEFAULT 0,
		recall REAL NOT NULL DEFAULT 0,
		f1_score REAL NOT NULL DEFAULT 0,
		class_metrics TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_ml_metrics_timestamp ON ml_performance_metrics(timestamp DESC);
	`

	if _, err := s.WriteDB.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes both connection pools.
func (s *SQLite) Close() error {
	var writeErr, readErr error
	if s.WriteDB != nil {
		writeErr = s.WriteDB.Close()
	}
	if s.ReadDB != nil {
		readErr = s.ReadDB.Close()
	}
	if writeErr != nil {
		return fmt.Errorf("failed to close write pool: %w", writeErr)
	}
	if readErr != nil {
		return fmt.Errorf("failed to close read pool: %w", readErr)
	}
	return nil
}

// HealthCheck verifies the database connection is alive
func (s *SQLite) HealthCheck(ctx context.Context) error {
	return s.WriteDB.PingContext(ctx)
}

func validateDatabasePath(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if dbPath == ":memory:" {
		return nil
	}
	if len(dbPath) > 512 {
		return fmt.Errorf("database path exceeds maximum length of 512 characters")
	}
	if strings.Contains(dbPath, "\x00") {
		return fmt.Errorf("null bytes not allowed in path")
	}
	for _, part := range strings.Split(filepath.ToSlash(dbPath), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed (..): %s", dbPath)
		}
	}
	return nil
}
