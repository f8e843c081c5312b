package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"seclabel/api"
	"seclabel/config"
	"seclabel/console"
	"seclabel/core"
	"seclabel/export"
	"seclabel/ingest"
	"seclabel/mitre"
	"seclabel/ml"
	"seclabel/storage"
)

type cliEnv struct {
	url    string
	events *storage.SQLiteEventStorage
}

// startServer runs the full REST API over a temporary database.
func startServer(t *testing.T) *cliEnv {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dir := t.TempDir()
	db, err := storage.NewSQLite(filepath.Join(dir, "cli.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	events := storage.NewSQLiteEventStorage(db, logger)
	settings := storage.NewSQLiteSettingsStorage(db, logger)
	jobs := storage.NewSQLiteExportJobStorage(db, logger)

	fetcher, err := ingest.NewFetcher(events, settings, ingest.NewRegistry(ingest.NewDemoSource(11)),
		ingest.FetcherConfig{DefaultSource: ingest.DemoSourceName}, logger)
	require.NoError(t, err)
	exporter, err := export.NewExporter(ctx, jobs, events, settings,
		export.Config{Dir: filepath.Join(dir, "exports"), Workers: 1, QueueSize: 10}, logger)
	require.NoError(t, err)
	require.NoError(t, exporter.Start(ctx))
	t.Cleanup(exporter.Stop)

	cfg := &config.Config{}
	cfg.Server.MaxBodyBytes = 1 << 20
	a := api.NewAPI(api.Deps{
		Events:    events,
		Dashboard: storage.NewSQLiteDashboardStorage(db, logger),
		Jobs:      jobs,
		Users:     storage.NewSQLiteUserStorage(db, logger),
		Settings:  settings,
		Fetcher:   fetcher,
		Exporter:  exporter,
		ML: ml.NewService(events, settings, storage.NewSQLiteMLMetricsStorage(db, logger),
			ml.ServiceConfig{CacheSize: 10, CacheTTL: time.Minute, Seed: 5}, logger),
		Mitre: mitre.NewResolver(logger),
	}, cfg, logger)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return &cliEnv{url: srv.URL, events: events}
}

func (env *cliEnv) addEvent(t *testing.T, e core.Event) int64 {
	t.Helper()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC().Add(-time.Hour)
	}
	if e.SIEMSource == "" {
		e.SIEMSource = "wazuh"
	}
	_, err := env.events.InsertEvent(context.Background(), &e, nil)
	require.NoError(t, err)
	return e.ID
}

// execute runs the console command tree against the test server.
func (env *cliEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewConsoleCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server", env.url, "--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

func (env *cliEnv) json(t *testing.T, v interface{}, args ...string) {
	t.Helper()
	out, err := env.execute(t, append(args, "--json")...)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func findCommand(root *cobra.Command, path ...string) *cobra.Command {
	cmd, _, err := root.Find(path)
	if err != nil || cmd == root {
		return nil
	}
	return cmd
}

func TestConsoleCommandStructure(t *testing.T) {
	root := NewConsoleCmd()
	assert.Equal(t, "console", root.Use)

	for _, path := range [][]string{
		{"events", "list"}, {"events", "show"}, {"events", "label"}, {"events", "batch-label"}, {"events", "fetch"},
		{"export", "create"}, {"export", "list"}, {"export", "show"}, {"export", "download"},
		{"users", "list"}, {"users", "add"}, {"users", "delete"},
		{"config", "show"}, {"config", "set"}, {"config", "set-api"},
		{"dashboard"},
		{"ml", "status"}, {"ml", "classify"}, {"ml", "verify"}, {"ml", "metrics"}, {"ml", "unverified"},
		{"mitre", "tactics"}, {"mitre", "techniques"},
		{"status"},
	} {
		assert.NotNil(t, findCommand(root, path...), "missing command: %s", strings.Join(path, " "))
	}
}

func TestConsoleCommandFlags(t *testing.T) {
	root := NewConsoleCmd()
	for _, name := range []string{"server", "json", "no-color", "quiet", "timeout"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}

	list := findCommand(root, "events", "list")
	require.NotNil(t, list)
	for _, name := range []string{"severity", "source", "source-ip", "attack-type", "reviewed", "from", "to", "page", "page-size"} {
		assert.NotNil(t, list.Flags().Lookup(name), name)
	}

	label := findCommand(root, "events", "label")
	require.NotNil(t, label)
	assert.Equal(t, "stringArray", label.Flags().Lookup("tag").Value.Type())
}

func TestParseSettings(t *testing.T) {
	patch, err := parseSettings([]string{
		"ml.min_confidence_threshold=0.8",
		"general.demo_mode_enabled=true",
		"general.data_retention_days=30",
		`mitre.mitre_version="14.1"`,
		"export.default_export_format=json",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.8, patch["ml"]["min_confidence_threshold"])
	assert.Equal(t, true, patch["general"]["demo_mode_enabled"])
	assert.Equal(t, int64(30), patch["general"]["data_retention_days"])
	assert.Equal(t, "14.1", patch["mitre"]["mitre_version"])
	assert.Equal(t, "json", patch["export"]["default_export_format"])

	_, err = parseSettings([]string{"nodot=1"})
	assert.Error(t, err)
	_, err = parseSettings([]string{"ml.threshold"})
	assert.Error(t, err)
}

func TestParseTruePositive(t *testing.T) {
	v, err := parseTruePositive("true")
	require.NoError(t, err)
	assert.True(t, *v)
	v, err = parseTruePositive("unset")
	require.NoError(t, err)
	assert.Nil(t, v)
	_, err = parseTruePositive("maybe")
	assert.Error(t, err)
}

func TestEventsListAndFilters(t *testing.T) {
	env := startServer(t)
	for i := 0; i < 3; i++ {
		env.addEvent(t, core.Event{EventID: "hi-" + strconv.Itoa(i), Severity: core.SeverityHigh, SourceIP: "10.0.0.1"})
	}
	env.addEvent(t, core.Event{EventID: "lo", Severity: core.SeverityLow, SourceIP: "10.0.0.2"})

	var page console.EventPage
	env.json(t, &page, "events", "list", "--severity", "high", "--page-size", "2")
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Events, 2)

	out, err := env.execute(t, "events", "list", "--severity", "high", "--page-size", "2", "--page", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "EVENTS")
	assert.Contains(t, out, "Page 2 of 2 (3 total); --page 1 for previous")
	assert.NotContains(t, out, "for next")

	_, err = env.execute(t, "events", "list", "--severity", "urgent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "severity")

	_, err = env.execute(t, "events", "list", "--reviewed", "sometimes")
	assert.EqualError(t, err, "--reviewed must be true or false")
}

func TestEventsShowAndLabel(t *testing.T) {
	env := startServer(t)
	id := env.addEvent(t, core.Event{EventID: "evt-1", Severity: core.SeverityCritical, SourceIP: "192.168.1.9"})
	sid := strconv.FormatInt(id, 10)

	out, err := env.execute(t, "events", "label", sid,
		"--tp", "true", "--attack-type", "Brute Force", "--tactic", "Credential Access",
		"--technique", "T1110", "--tag", "ssh", "--tag", "night-shift")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Labeled event "+sid)

	var e core.Event
	env.json(t, &e, "events", "show", sid)
	assert.True(t, e.ManualReview)
	require.NotNil(t, e.TruePositive)
	assert.True(t, *e.TruePositive)
	assert.Equal(t, "T1110", e.MitreTechnique)
	assert.Equal(t, core.Tags{"ssh", "night-shift"}, e.Labels.ManualTags)

	// unspecified flags keep the current labels
	_, err = env.execute(t, "events", "label", sid, "--remove-tag", "ssh", "--tag", "reviewed")
	require.NoError(t, err)
	env.json(t, &e, "events", "show", sid)
	assert.Equal(t, "Brute Force", e.AttackType)
	assert.Equal(t, core.Tags{"night-shift", "reviewed"}, e.Labels.ManualTags)

	_, err = env.execute(t, "events", "label", sid, "--tag", "reviewed")
	assert.ErrorIs(t, err, console.ErrDuplicateTag)
	_, err = env.execute(t, "events", "label", sid, "--tag", strings.Repeat("x", 51))
	assert.ErrorIs(t, err, core.ErrTagTooLong)

	out, err = env.execute(t, "events", "show", sid)
	require.NoError(t, err)
	assert.Contains(t, out, "Event "+sid+": evt-1")
	assert.Contains(t, out, "night-shift, reviewed")

	_, err = env.execute(t, "events", "show", "9999")
	assert.EqualError(t, err, "Event not found")
	_, err = env.execute(t, "events", "show", "abc")
	assert.Error(t, err)
}

func TestEventsBatchLabelAndFetch(t *testing.T) {
	env := startServer(t)

	var res console.FetchResult
	env.json(t, &res, "events", "fetch", "--limit", "5")
	assert.Equal(t, "demo", res.Source)
	assert.Equal(t, 5, res.Imported)

	out, err := env.execute(t, "events", "fetch", "--source", "splunk-cloud")
	require.Error(t, err, out)

	env.addEvent(t, core.Event{EventID: "b1", Severity: core.SeverityLow, SIEMSource: "elastic-lab"})
	var batch console.BatchLabelResult
	env.json(t, &batch, "events", "batch-label", "--source", "elastic-lab", "--tag", "bulk", "--tp", "false")
	assert.Equal(t, 1, batch.UpdatedCount)

	_, err = env.execute(t, "events", "batch-label", "--source", "elastic-lab")
	assert.ErrorContains(t, err, "nothing to apply")
}

func TestExportCreateWaitAndDownload(t *testing.T) {
	env := startServer(t)
	env.addEvent(t, core.Event{EventID: "x1", Severity: core.SeverityMedium})
	env.addEvent(t, core.Event{EventID: "x2", Severity: core.SeverityHigh})

	dest := filepath.Join(t.TempDir(), "out.json")
	var job core.ExportJob
	env.json(t, &job, "export", "create", "--format", "json", "--severity", "high", "-o", dest)
	assert.Equal(t, core.ExportStatusCompleted, job.Status)
	assert.Equal(t, 1, job.RecordCount)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"x2"`)
	assert.NotContains(t, string(data), `"x1"`)

	out, err := env.execute(t, "export", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "EXPORT JOBS")
	assert.Contains(t, out, job.FilePath)

	out, err = env.execute(t, "export", "show", strconv.FormatInt(job.ID, 10))
	require.NoError(t, err)
	assert.Contains(t, out, "Export Job "+strconv.FormatInt(job.ID, 10))

	out, err = env.execute(t, "export", "download", job.FilePath, "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, string(data), out)

	missing := filepath.Join(t.TempDir(), "missing.csv")
	_, err = env.execute(t, "export", "download", "events_missing.csv", "-o", missing)
	require.Error(t, err)
	_, statErr := os.Stat(missing)
	assert.True(t, os.IsNotExist(statErr), "partial file is removed")

	existing := filepath.Join(t.TempDir(), "keep.csv")
	require.NoError(t, os.WriteFile(existing, []byte("previous export"), 0o600))
	_, err = env.execute(t, "export", "download", "events_missing.csv", "-o", existing)
	require.Error(t, err)
	kept, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "previous export", string(kept), "failed download leaves the existing file alone")
	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(existing), ".seclabel-download-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	_, err = env.execute(t, "export", "create", "--format", "xml")
	assert.Error(t, err)
}

func TestUsersCommands(t *testing.T) {
	env := startServer(t)

	var u core.User
	env.json(t, &u, "users", "add", "alice", "--role", "admin", "--description", "SOC lead")
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, core.RoleAdmin, u.Role)

	out, err := env.execute(t, "users", "add", "alice")
	require.Error(t, err, out)

	out, err = env.execute(t, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "SOC lead")

	out, err = env.execute(t, "users", "delete", strconv.FormatInt(u.ID, 10))
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted user")

	out, err = env.execute(t, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No users")
}

func TestConfigCommands(t *testing.T) {
	env := startServer(t)

	out, err := env.execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "No API settings saved")
	assert.Contains(t, out, "csv")

	var sys core.SystemConfig
	env.json(t, &sys, "config", "set", "ml.min_confidence_threshold=0.85", "general.demo_mode_enabled=true")
	assert.Equal(t, 0.85, sys.ML.MinConfidenceThreshold)
	assert.True(t, sys.General.DemoModeEnabled)

	_, err = env.execute(t, "config", "set", "ml.min_confidence_threshold=7")
	assert.Error(t, err)

	out, err = env.execute(t, "config", "set-api", "--wazuh-url", "https://wazuh.local:55000", "--wazuh-key", "supersecretkey")
	require.NoError(t, err, out)
	assert.NotContains(t, out, "supersecretkey")

	out, err = env.execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "configured")
	assert.Contains(t, out, "demo")
}

func TestDashboardAndMitre(t *testing.T) {
	env := startServer(t)
	env.addEvent(t, core.Event{EventID: "d1", Severity: core.SeverityHigh, AttackType: "Malware", MitreTactic: "Execution"})

	var d console.Dashboard
	env.json(t, &d, "dashboard", "--range", "24hours")
	assert.Equal(t, 1, d.Stats.TotalEvents)
	assert.Equal(t, 1, d.Severity[core.SeverityHigh])
	require.Len(t, d.TopAttacks, 1)
	assert.Equal(t, 100.0, d.TopAttacks[0].Percentage)

	out, err := env.execute(t, "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "Top Attacks")
	assert.Contains(t, out, "Malware")

	out, err = env.execute(t, "mitre", "tactics")
	require.NoError(t, err)
	assert.Contains(t, out, "TA0001")

	_, err = env.execute(t, "mitre", "techniques", "TA9999")
	assert.EqualError(t, err, "Tactic not found")
}

func TestMLCommands(t *testing.T) {
	env := startServer(t)
	a := env.addEvent(t, core.Event{EventID: "m1", Severity: core.SeverityHigh})
	b := env.addEvent(t, core.Event{EventID: "m2", Severity: core.SeverityLow})
	_, err := env.execute(t, "config", "set", "ml.min_confidence_threshold=0")
	require.NoError(t, err)

	out, err := env.execute(t, "ml", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "active")

	var results []core.ClassificationResult
	env.json(t, &results, "ml", "classify", strconv.FormatInt(a, 10), strconv.FormatInt(b, 10))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
	}

	var pending console.UnverifiedPage
	env.json(t, &pending, "ml", "unverified")
	assert.Equal(t, 2, pending.Total)

	out, err = env.execute(t, "ml", "verify", strconv.FormatInt(a, 10), "--tp", "true", "--comment", "confirmed")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Verified event")

	var update console.MetricsUpdate
	env.json(t, &update, "ml", "metrics", "--update")
	assert.True(t, update.Success)
	require.NotNil(t, update.Metrics)
	assert.Equal(t, 1, update.Metrics.Total())

	out, err = env.execute(t, "ml", "metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "MODEL METRICS")
}
