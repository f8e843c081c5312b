package api

import (
	"errors"
	"net/http"
	"strconv"

	"seclabel/core"
	"seclabel/ml"
	"seclabel/storage"
)

const (
	defaultUnverifiedPageSize = 50
	maxUnverifiedPageSize     = 200
	maxMetricsLimit           = 100
)

// mlError maps ML workflow errors to responses. It reports whether it wrote one.
func (a *API) mlError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, storage.ErrEventNotFound):
		a.writeError(w, r, http.StatusNotFound, "Event not found", err)
	case errors.Is(err, storage.ErrNotMLProcessed):
		a.writeError(w, r, http.StatusBadRequest, "Event was not processed by ML", err)
	case errors.Is(err, ml.ErrDisabled), errors.Is(err, ml.ErrNoEventIDs), errors.Is(err, ml.ErrNoEventsFound):
		a.writeError(w, r, http.StatusBadRequest, err.Error(), err)
	default:
		a.writeError(w, r, http.StatusInternalServerError, "ML request failed", err)
	}
	return true
}

func (a *API) mlStatus(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, r, http.StatusOK, a.deps.ML.Status(r.Context()))
}

func (a *API) mlClassify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, "Invalid event ID", err)
		return
	}
	res, err := a.deps.ML.ClassifyEvent(r.Context(), id)
	if a.mlError(w, r, err) {
		return
	}
	if res.Applied {
		a.invalidateStats(r)
	}
	a.respondJSON(w, r, http.StatusOK, res)
}

func (a *API) mlBatchClassify(w http.ResponseWriter, r *http.Request) {
	var req core.BatchClassifyRequest
	if !a.decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.EventIDs) == 0 {
		a.writeError(w, r, http.StatusBadRequest, ml.ErrNoEventIDs.Error(), nil)
		return
	}
	if err := core.Validate(req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	res, err := a.deps.ML.BatchClassify(r.Context(), req.EventIDs)
	if a.mlError(w, r, err) {
		return
	}
	a.invalidateStats(r)
	a.respondJSON(w, r, http.StatusOK, res)
}

// VerifyResponse is the body returned by POST /api/ml/verify-label/{id}.
type VerifyResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Event   *core.Event `json:"event"`
}

func (a *API) mlVerifyLabel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, "Invalid event ID", err)
		return
	}
	var req core.VerifyRequest
	if !a.decodeJSONBody(w, r, &req) {
		return
	}
	if err := core.Validate(req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	event, err := a.deps.ML.VerifyLabel(r.Context(), id, &req)
	if a.mlError(w, r, err) {
		return
	}
	a.invalidateStats(r)
	a.publish(MessageEventLabeled, map[string]interface{}{"id": event.ID, "event_id": event.EventID, "verified": true})
	a.respondJSON(w, r, http.StatusOK, VerifyResponse{Success: true, Message: "Label verified successfully", Event: event})
}

func (a *API) mlUpdateMetrics(w http.ResponseWriter, r *http.Request) {
	var rng core.MetricsRange
	if r.ContentLength != 0 {
		if !a.decodeJSONBody(w, r, &rng) {
			return
		}
	}

	m, err := a.deps.ML.UpdateMetrics(r.Context(), rng)
	if errors.Is(err, ml.ErrNoVerifiedEvents) || errors.Is(err, ml.ErrNoValidData) {
		a.respondJSON(w, r, http.StatusOK, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	if a.mlError(w, r, err) {
		return
	}
	a.respondJSON(w, r, http.StatusOK, map[string]interface{}{"success": true, "metrics": m})
}

func (a *API) mlMetrics(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			a.writeError(w, r, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = min(n, maxMetricsLimit)
	}

	list, err := a.deps.ML.LatestMetrics(r.Context(), limit)
	if a.mlError(w, r, err) {
		return
	}
	if list == nil {
		list = []core.MLMetrics{}
	}
	a.respondJSON(w, r, http.StatusOK, map[string]interface{}{"success": true, "metrics": list, "count": len(list)})
}

// UnverifiedResponse is the body of GET /api/ml/unverified-events.
type UnverifiedResponse struct {
	Success    bool         `json:"success"`
	Events     []core.Event `json:"events"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	Total      int          `json:"total"`
	TotalPages int          `json:"total_pages"`
}

func (a *API) mlUnverified(w http.ResponseWriter, r *http.Request) {
	p := ParsePaginationParams(r, defaultUnverifiedPageSize, maxUnverifiedPageSize)
	events, total, err := a.deps.ML.Unverified(r.Context(), p.Page, p.PageSize)
	if a.mlError(w, r, err) {
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	a.respondJSON(w, r, http.StatusOK, UnverifiedResponse{
		Success:    true,
		Events:     events,
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      total,
		TotalPages: TotalPages(total, p.PageSize),
	})
}
