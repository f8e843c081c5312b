package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"seclabel/config"
	"seclabel/core"
	"seclabel/export"
	"seclabel/ingest"
	"seclabel/mitre"
	"seclabel/ml"
	"seclabel/storage"
)

type testServer struct {
	api      *API
	cfg      *config.Config
	events   *storage.SQLiteEventStorage
	settings *storage.SQLiteSettingsStorage
	jobs     *storage.SQLiteExportJobStorage
	users    *storage.SQLiteUserStorage
}

// setupTestAPI builds an API over a temporary SQLite database with the demo
// source registered. opts can adjust deps and config before the API is built.
func setupTestAPI(t *testing.T, opts ...func(*Deps, *config.Config)) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dir := t.TempDir()
	db, err := storage.NewSQLite(filepath.Join(dir, "api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Server.MaxBodyBytes = 1 << 20

	ts := &testServer{
		cfg:      cfg,
		events:   storage.NewSQLiteEventStorage(db, logger),
		settings: storage.NewSQLiteSettingsStorage(db, logger),
		jobs:     storage.NewSQLiteExportJobStorage(db, logger),
		users:    storage.NewSQLiteUserStorage(db, logger),
	}

	fetcher, err := ingest.NewFetcher(ts.events, ts.settings, ingest.NewRegistry(ingest.NewDemoSource(7)),
		ingest.FetcherConfig{DefaultSource: ingest.DemoSourceName}, logger)
	require.NoError(t, err)

	exporter, err := export.NewExporter(ctx, ts.jobs, ts.events, ts.settings,
		export.Config{Dir: filepath.Join(dir, "exports"), Workers: 1, QueueSize: 10}, logger)
	require.NoError(t, err)
	require.NoError(t, exporter.Start(ctx))
	t.Cleanup(exporter.Stop)

	deps := Deps{
		Events:    ts.events,
		Dashboard: storage.NewSQLiteDashboardStorage(db, logger),
		Jobs:      ts.jobs,
		Users:     ts.users,
		Settings:  ts.settings,
		Fetcher:   fetcher,
		Exporter:  exporter,
		ML: ml.NewService(ts.events, ts.settings, storage.NewSQLiteMLMetricsStorage(db, logger),
			ml.ServiceConfig{CacheSize: 10, CacheTTL: time.Minute, Seed: 3}, logger),
		Mitre: mitre.NewResolver(logger),
	}
	for _, opt := range opts {
		opt(&deps, cfg)
	}

	ts.api = NewAPI(deps, cfg, logger)
	return ts
}

// do runs a request through the router and returns the recorder.
func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.api.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, w)["error"]
}

// addEvent stores an event and returns its database id.
func (ts *testServer) addEvent(t *testing.T, e core.Event) int64 {
	t.Helper()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = core.SeverityLow
	}
	if e.SIEMSource == "" {
		e.SIEMSource = "wazuh"
	}
	inserted, err := ts.events.InsertEvent(context.Background(), &e, nil)
	require.NoError(t, err)
	require.True(t, inserted)
	return e.ID
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func trimNewline(s string) string { return strings.TrimRight(s, "\n") }

func eventWithID(id string) core.Event { return core.Event{EventID: id} }
