package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"seclabel/core"
	"seclabel/export"
	"seclabel/storage"
)

const (
	defaultJobsPageSize = 20
	maxJobsPageSize     = 100
)

// ExportJobListResponse is the body of GET /api/export-jobs.
type ExportJobListResponse struct {
	Jobs       []core.ExportJob `json:"jobs"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalCount int              `json:"total_count"`
	TotalPages int              `json:"total_pages"`
}

func (a *API) createExport(w http.ResponseWriter, r *http.Request) {
	var req core.ExportRequest
	if !a.decodeJSONBody(w, r, &req) {
		return
	}

	sys, err := a.deps.Settings.GetSystemConfig(r.Context())
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to read export settings", err)
		return
	}
	req.Normalize(sys.Export.DefaultExportFormat)
	if err := req.Validate(); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	job, err := a.deps.Exporter.Create(r.Context(), req)
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to create export job", err)
		return
	}
	a.respondJSON(w, r, http.StatusAccepted, job)
}

func (a *API) listExportJobs(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !core.IsValidExportStatus(status) {
		a.writeError(w, r, http.StatusBadRequest, "status must be one of pending, processing, completed, failed", nil)
		return
	}
	p := ParsePaginationParams(r, defaultJobsPageSize, maxJobsPageSize)

	jobs, total, err := a.deps.Jobs.ListExportJobs(r.Context(), status, p.Page, p.PageSize)
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to list export jobs", err)
		return
	}
	if jobs == nil {
		jobs = []core.ExportJob{}
	}
	a.respondJSON(w, r, http.StatusOK, ExportJobListResponse{
		Jobs:       jobs,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalCount: total,
		TotalPages: TotalPages(total, p.PageSize),
	})
}

func (a *API) getExportJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, "Invalid export job ID", err)
		return
	}
	job, err := a.deps.Jobs.GetExportJob(r.Context(), id)
	if errors.Is(err, storage.ErrExportJobNotFound) {
		a.writeError(w, r, http.StatusNotFound, "Export job not found", err)
		return
	}
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to get export job", err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, job)
}

func (a *API) downloadExport(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["path"]
	path, err := a.deps.Exporter.Resolve(name)
	switch {
	case errors.Is(err, export.ErrInvalidFileName):
		a.writeError(w, r, http.StatusBadRequest, "Invalid file name", err)
		return
	case errors.Is(err, export.ErrFileNotFound):
		a.writeError(w, r, http.StatusNotFound, "File not found", err)
		return
	case err != nil:
		a.writeError(w, r, http.StatusInternalServerError, "Failed to open export file", err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}
