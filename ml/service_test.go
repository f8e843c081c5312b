package ml

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"seclabel/core"
	"seclabel/storage"
)

type testEnv struct {
	svc      *Service
	events   *storage.SQLiteEventStorage
	settings *storage.SQLiteSettingsStorage
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "ml.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		events:   storage.NewSQLiteEventStorage(db, logger),
		settings: storage.NewSQLiteSettingsStorage(db, logger),
	}
	env.svc = NewService(env.events, env.settings, storage.NewSQLiteMLMetricsStorage(db, logger),
		ServiceConfig{CacheSize: 10, CacheTTL: time.Minute, Seed: 99}, logger)
	return env
}

func (env *testEnv) setConfig(t *testing.T, rows map[string]string) {
	t.Helper()
	require.NoError(t, env.settings.SaveSystemConfigRows(context.Background(), rows))
}

func (env *testEnv) addEvent(t *testing.T, id string) int64 {
	t.Helper()
	e := &core.Event{EventID: id, Severity: "high", SIEMSource: "wazuh", Timestamp: time.Now()}
	_, err := env.events.InsertEvent(context.Background(), e, nil)
	require.NoError(t, err)
	return e.ID
}

// fixedProvider always returns the same result.
type fixedProvider struct {
	DummyProvider
	result ProviderResult
	calls  int
}

func (p *fixedProvider) Name() string { return "fixed" }

func (p *fixedProvider) Classify(ctx context.Context, e *core.Event) ProviderResult {
	p.calls++
	return p.result
}

func (p *fixedProvider) BatchClassify(ctx context.Context, events []core.Event) []ProviderResult {
	out := make([]ProviderResult, len(events))
	for i := range out {
		out[i] = p.Classify(ctx, &events[i])
	}
	return out
}

func TestService_Disabled(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	env.setConfig(t, map[string]string{"general.ml_classification_enabled": "false"})

	st := env.svc.Status(ctx)
	assert.Equal(t, StatusDisabled, st.Status)
	assert.Equal(t, "ML classification is disabled in system settings", st.Message)

	_, err := env.svc.ClassifyEvent(ctx, 1)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = env.svc.BatchClassify(ctx, []int64{1})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestService_StatusActiveWithDummy(t *testing.T) {
	env := setupService(t)

	st := env.svc.Status(context.Background())
	assert.Equal(t, StatusActive, st.Status)
	require.NotNil(t, st.ModelInfo)
	assert.Equal(t, DummyModelVersion, st.ModelInfo.Version)
	assert.Nil(t, st.LatestMetrics)
}

func TestService_ProviderSelection(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	settings := core.DefaultSystemConfig().ML
	assert.Equal(t, "dummy", env.svc.Provider(ctx, settings).Name())

	settings.ModelType = core.ModelTypeAPI
	assert.Equal(t, "dummy", env.svc.Provider(ctx, settings).Name(), "no API settings saved")

	_, err := env.settings.SaveAPIConfig(ctx, &core.APIConfig{MLAPIURL: "http://ml.local"})
	require.NoError(t, err)
	assert.Equal(t, "dummy", env.svc.Provider(ctx, settings).Name(), "URL without key")

	_, err = env.settings.SaveAPIConfig(ctx, &core.APIConfig{MLAPIURL: "http://ml.local", MLAPIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "api", env.svc.Provider(ctx, settings).Name())
}

func TestService_ClassifyAppliesAboveThreshold(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	yes := true
	fp := &fixedProvider{result: ProviderResult{
		Success:        true,
		Confidence:     0.9,
		Classification: core.Classification{TruePositive: &yes, AttackType: "Malware", MitreTactic: "Execution"},
	}}
	env.setConfig(t, map[string]string{"ml.model_type": "api"})
	env.svc.apiProvider = func(url, key string) Provider { return fp }
	_, err := env.settings.SaveAPIConfig(ctx, &core.APIConfig{MLAPIURL: "http://ml", MLAPIKey: "k"})
	require.NoError(t, err)

	id := env.addEvent(t, "a")
	res, err := env.svc.ClassifyEvent(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Applied)
	assert.Equal(t, 0.9, res.Confidence)

	e, err := env.events.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.True(t, e.MLProcessed)
	assert.False(t, e.HumanVerified, "verification is required by default")
	assert.Equal(t, "Malware", e.AttackType)

	// cached per event
	_, err = env.svc.ClassifyEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, fp.calls)

	_, err = env.svc.ClassifyEvent(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrEventNotFound)
}

func TestService_ClassifyBelowThresholdOrAutoApplyOff(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	fp := &fixedProvider{result: ProviderResult{Success: true, Confidence: 0.65, Classification: core.Classification{AttackType: "Phishing"}}}
	env.svc.apiProvider = func(url, key string) Provider { return fp }
	env.setConfig(t, map[string]string{"ml.model_type": "api"})
	_, err := env.settings.SaveAPIConfig(ctx, &core.APIConfig{MLAPIURL: "http://ml", MLAPIKey: "k"})
	require.NoError(t, err)

	id := env.addEvent(t, "low-conf")
	res, err := env.svc.ClassifyEvent(ctx, id)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	e, err := env.events.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.False(t, e.MLProcessed)

	env.setConfig(t, map[string]string{"ml.auto_apply_labels": "false", "ml.min_confidence_threshold": "0.5"})
	id2 := env.addEvent(t, "no-auto")
	res, err = env.svc.ClassifyEvent(ctx, id2)
	require.NoError(t, err)
	assert.True(t, res.Applied, "applied reports the threshold check")
	e, err = env.events.GetEvent(ctx, id2)
	require.NoError(t, err)
	assert.False(t, e.MLProcessed, "nothing stored without auto-apply")
}

func TestService_BatchClassify(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	env.setConfig(t, map[string]string{"ml.min_confidence_threshold": "0", "ml.verification_required": "false"})

	_, err := env.svc.BatchClassify(ctx, nil)
	assert.ErrorIs(t, err, ErrNoEventIDs)
	_, err = env.svc.BatchClassify(ctx, []int64{404})
	assert.ErrorIs(t, err, ErrNoEventsFound)

	a := env.addEvent(t, "a")
	b := env.addEvent(t, "b")
	resp, err := env.svc.BatchClassify(ctx, []int64{a, b, 404})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.ProcessedEvents)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.True(t, r.Success)
		assert.True(t, r.Applied)
	}

	e, err := env.events.GetEvent(ctx, b)
	require.NoError(t, err)
	assert.True(t, e.MLProcessed)
	assert.True(t, e.HumanVerified)
}

func TestService_VerifyAndUpdateMetrics(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	env.setConfig(t, map[string]string{"ml.min_confidence_threshold": "0"})

	_, err := env.svc.UpdateMetrics(ctx, core.MetricsRange{})
	assert.ErrorIs(t, err, ErrNoVerifiedEvents)

	unprocessed := env.addEvent(t, "raw")
	_, err = env.svc.VerifyLabel(ctx, unprocessed, &core.VerifyRequest{})
	assert.ErrorIs(t, err, storage.ErrNotMLProcessed)

	ids := []int64{env.addEvent(t, "a"), env.addEvent(t, "b"), env.addEvent(t, "c")}
	_, err = env.svc.BatchClassify(ctx, ids)
	require.NoError(t, err)

	pending, total, err := env.svc.Unverified(ctx, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, pending, 3)

	yes := true
	for _, id := range ids {
		_, err := env.svc.VerifyLabel(ctx, id, &core.VerifyRequest{TruePositive: &yes})
		require.NoError(t, err)
	}

	m, err := env.svc.UpdateMetrics(ctx, core.MetricsRange{})
	require.NoError(t, err)
	assert.NotZero(t, m.ID)
	assert.Equal(t, DummyModelVersion, m.ModelVersion)
	assert.Equal(t, 3, m.Total())
	assert.Zero(t, m.FalsePositives+m.TrueNegatives, "analyst marked every event a true positive")

	latest, err := env.svc.LatestMetrics(ctx, 10)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, m.ID, latest[0].ID)

	st := env.svc.Status(ctx)
	require.NotNil(t, st.LatestMetrics)
	assert.Equal(t, m.ID, st.LatestMetrics.ID)
}
