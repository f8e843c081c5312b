package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seclabel/core"
)

// waitForJob polls the job endpoint until it reaches a terminal status.
func (ts *testServer) waitForJob(t *testing.T, id int64) core.ExportJob {
	t.Helper()
	var job core.ExportJob
	require.Eventually(t, func() bool {
		w := ts.do(t, http.MethodGet, "/api/export-jobs/"+itoa(id), nil)
		if w.Code != http.StatusOK {
			return false
		}
		job = decode[core.ExportJob](t, w)
		return job.IsFinished()
	}, 5*time.Second, 20*time.Millisecond)
	return job
}

func TestExport_CreateProcessDownload(t *testing.T) {
	ts := setupTestAPI(t)
	ts.addEvent(t, core.Event{EventID: "exp-1", Severity: core.SeverityHigh})
	ts.addEvent(t, core.Event{EventID: "exp-2", Severity: core.SeverityLow})

	w := ts.do(t, http.MethodPost, "/api/events/export", map[string]interface{}{
		"format":  "json",
		"filters": map[string]interface{}{"severity": "high"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	created := decode[core.ExportJob](t, w)
	assert.Equal(t, core.ExportStatusPending, created.Status)
	assert.Equal(t, core.ExportFormatJSON, created.Format)

	job := ts.waitForJob(t, created.ID)
	require.Equal(t, core.ExportStatusCompleted, job.Status, job.Message)
	assert.Equal(t, 1, job.RecordCount)
	require.True(t, strings.HasSuffix(job.FilePath, ".json"))

	w = ts.do(t, http.MethodGet, "/api/download/"+job.FilePath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	var exported []core.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	require.Len(t, exported, 1)
	assert.Equal(t, "exp-1", exported[0].EventID)
}

func TestExport_DefaultFormatFromSettings(t *testing.T) {
	ts := setupTestAPI(t)

	w := ts.do(t, http.MethodPost, "/api/events/export", map[string]interface{}{})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, core.ExportFormatCSV, decode[core.ExportJob](t, w).Format)

	w = ts.do(t, http.MethodPost, "/api/events/export", map[string]interface{}{"format": "xml"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportJobs_ListAndGet(t *testing.T) {
	ts := setupTestAPI(t)
	for i := 0; i < 3; i++ {
		w := ts.do(t, http.MethodPost, "/api/events/export", map[string]interface{}{"format": "csv"})
		require.Equal(t, http.StatusAccepted, w.Code)
		ts.waitForJob(t, decode[core.ExportJob](t, w).ID)
	}

	w := ts.do(t, http.MethodGet, "/api/export-jobs?page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ExportJobListResponse](t, w)
	assert.Len(t, list.Jobs, 2)
	assert.Equal(t, 3, list.TotalCount)
	assert.Equal(t, 2, list.TotalPages)

	w = ts.do(t, http.MethodGet, "/api/export-jobs?status=completed", nil)
	assert.Equal(t, 3, decode[ExportJobListResponse](t, w).TotalCount)

	w = ts.do(t, http.MethodGet, "/api/export-jobs?status=done", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/export-jobs/4242", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Export job not found", errorMessage(t, w))
}

func TestDownload_RejectsBadNames(t *testing.T) {
	ts := setupTestAPI(t)

	w := ts.do(t, http.MethodGet, "/api/download/.hidden", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/download/..%2Fapi.db", nil)
	assert.NotEqual(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/download/events_20260101_000000_deadbeef.csv", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File not found", errorMessage(t, w))
}
