package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"seclabel/core"
)

// setupTestSQLite creates a test SQLite database
func setupTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	sqlite, err := NewSQLite(dbPath, zap.NewNop().Sugar())
	require.NoError(t, err, "Failed to create SQLite database")
	require.NotNil(t, sqlite.DB, "Database connection should not be nil")
	t.Cleanup(func() { _ = sqlite.Close() })

	return sqlite
}

// insertTestEvent stores an event with sensible defaults and returns it.
func insertTestEvent(t *testing.T, s *SQLiteEventStorage, eventID, severity, source string, ts time.Time) *core.Event {
	t.Helper()
	e := &core.Event{
		EventID:    eventID,
		Timestamp:  ts,
		SourceIP:   "10.0.0.1",
		Severity:   severity,
		SIEMSource: source,
	}
	inserted, err := s.InsertEvent(context.Background(), e, []core.RawLog{
		{Source: source, LogData: map[string]interface{}{"rule": "test", "id": eventID}},
	})
	require.NoError(t, err)
	require.True(t, inserted)
	return e
}

func TestNewSQLite_Success(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	sqlite, err := NewSQLite(dbPath, zap.NewNop().Sugar())
	require.NoError(t, err, "Should successfully create SQLite database")
	assert.Equal(t, dbPath, sqlite.Path)

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")

	assert.NoError(t, sqlite.HealthCheck(context.Background()))
	assert.NoError(t, sqlite.Close())
}

func TestNewSQLite_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	sqlite, err := NewSQLite(dbPath, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer sqlite.Close()

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err, "Parent directory should be created")
}

func TestNewSQLite_PragmasOnBothPools(t *testing.T) {
	sqlite := setupTestSQLite(t)

	for name, db := range map[string]*sql.DB{"write": sqlite.WriteDB, "read": sqlite.ReadDB} {
		var fk int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
		assert.Equal(t, 1, fk, "%s pool should enforce foreign keys", name)

		var mode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", mode, "%s pool should use WAL", name)
	}
}

func TestValidateDatabasePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"memory", ":memory:", false},
		{"relative", "data/seclabel.db", false},
		{"absolute", "/var/lib/seclabel/seclabel.db", false},
		{"empty", "", true},
		{"traversal", "../etc/seclabel.db", true},
		{"nested traversal", "data/../../seclabel.db", true},
		{"null byte", "data/sec\x00label.db", true},
		{"too long", strings.Repeat("a", 513), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDatabasePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	sqlite := setupTestSQLite(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO system_config (config_key, config_value, updated_at) VALUES ('general.demo_mode_enabled', 'true', '')")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, sqlite.ReadDB.QueryRow("SELECT COUNT(*) FROM system_config").Scan(&n))
	assert.Zero(t, n, "Insert should have been rolled back")
}

func TestWithTransaction_RollsBackOnPanic(t *testing.T) {
	sqlite := setupTestSQLite(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
			_, _ = tx.ExecContext(ctx,
				"INSERT INTO system_config (config_key, config_value, updated_at) VALUES ('a.b', 'c', '')")
			panic("boom")
		})
	})

	var n int
	require.NoError(t, sqlite.ReadDB.QueryRow("SELECT COUNT(*) FROM system_config").Scan(&n))
	assert.Zero(t, n)
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.FixedZone("X", 3600))
	out, err := parseTime(formatTime(in))
	require.NoError(t, err)
	assert.True(t, out.Equal(in.Truncate(time.Microsecond)))
	assert.Equal(t, time.UTC, out.Location())

	// text order matches time order
	assert.Less(t, formatTime(in), formatTime(in.Add(time.Microsecond)))

	legacy, err := parseTime("2024-03-01T11:30:45Z")
	require.NoError(t, err)
	assert.Equal(t, 11, legacy.Hour())

	nt, err := parseNullTime(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, nt)
}
