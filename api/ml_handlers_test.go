package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seclabel/core"
	"seclabel/ml"
)

func (ts *testServer) setSystemConfig(t *testing.T, rows map[string]string) {
	t.Helper()
	require.NoError(t, ts.settings.SaveSystemConfigRows(context.Background(), rows))
}

func TestML_StatusAndDisabled(t *testing.T) {
	ts := setupTestAPI(t)

	w := ts.do(t, http.MethodGet, "/api/ml/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ml.StatusActive, decode[ml.Status](t, w).Status)

	ts.setSystemConfig(t, map[string]string{"general.ml_classification_enabled": "false"})
	w = ts.do(t, http.MethodGet, "/api/ml/status", nil)
	assert.Equal(t, ml.StatusDisabled, decode[ml.Status](t, w).Status)

	id := ts.addEvent(t, core.Event{EventID: "off"})
	w = ts.do(t, http.MethodPost, "/api/ml/classify/"+itoa(id), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ml.ErrDisabled.Error(), errorMessage(t, w))
}

func TestML_ClassifyAndVerify(t *testing.T) {
	ts := setupTestAPI(t)
	ts.setSystemConfig(t, map[string]string{"ml.min_confidence_threshold": "0"})
	id := ts.addEvent(t, core.Event{EventID: "ml-1", Severity: core.SeverityHigh})

	w := ts.do(t, http.MethodPost, "/api/ml/classify/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[core.ClassificationResult](t, w)
	assert.True(t, res.Success)
	assert.True(t, res.Applied)

	w = ts.do(t, http.MethodPost, "/api/ml/classify/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/ml/unverified-events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode[UnverifiedResponse](t, w)
	assert.True(t, pending.Success)
	assert.Equal(t, 1, pending.Total)
	assert.Equal(t, 50, pending.PageSize)
	assert.Equal(t, 1, pending.TotalPages)

	w = ts.do(t, http.MethodPost, "/api/ml/verify-label/"+itoa(id), map[string]interface{}{
		"true_positive":        false,
		"verification_comment": "benign scanner",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	verified := decode[VerifyResponse](t, w)
	assert.True(t, verified.Success)
	require.NotNil(t, verified.Event)
	assert.True(t, verified.Event.HumanVerified)

	w = ts.do(t, http.MethodGet, "/api/ml/unverified-events", nil)
	assert.Equal(t, 0, decode[UnverifiedResponse](t, w).Total)
}

func TestML_VerifyRequiresClassification(t *testing.T) {
	ts := setupTestAPI(t)
	id := ts.addEvent(t, core.Event{EventID: "raw"})

	w := ts.do(t, http.MethodPost, "/api/ml/verify-label/"+itoa(id), map[string]interface{}{"true_positive": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Event was not processed by ML", errorMessage(t, w))

	w = ts.do(t, http.MethodPost, "/api/ml/verify-label/9999", map[string]interface{}{"true_positive": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestML_BatchClassify(t *testing.T) {
	ts := setupTestAPI(t)
	a := ts.addEvent(t, core.Event{EventID: "a"})
	b := ts.addEvent(t, core.Event{EventID: "b"})

	w := ts.do(t, http.MethodPost, "/api/ml/batch-classify", core.BatchClassifyRequest{EventIDs: []int64{a, b}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[core.BatchClassifyResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.ProcessedEvents)
	assert.Len(t, resp.Results, 2)

	w = ts.do(t, http.MethodPost, "/api/ml/batch-classify", map[string]interface{}{"event_ids": []int64{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/ml/batch-classify", core.BatchClassifyRequest{EventIDs: []int64{777}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ml.ErrNoEventsFound.Error(), errorMessage(t, w))
}

func TestML_Metrics(t *testing.T) {
	ts := setupTestAPI(t)
	ts.setSystemConfig(t, map[string]string{"ml.min_confidence_threshold": "0"})

	w := ts.do(t, http.MethodPost, "/api/ml/update-metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, ml.ErrNoVerifiedEvents.Error(), body["message"])

	id := ts.addEvent(t, core.Event{EventID: "m"})
	w = ts.do(t, http.MethodPost, "/api/ml/classify/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/api/ml/verify-label/"+itoa(id), map[string]interface{}{"true_positive": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/ml/update-metrics", map[string]interface{}{"start_date": "2020-01-01"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode[map[string]interface{}](t, w)
	assert.Equal(t, true, body["success"])
	assert.NotNil(t, body["metrics"])

	w = ts.do(t, http.MethodGet, "/api/ml/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[map[string]interface{}](t, w)
	assert.Equal(t, float64(1), body["count"])

	w = ts.do(t, http.MethodGet, "/api/ml/metrics?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
