package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"seclabel/core"
	"seclabel/ingest"
	"seclabel/metrics"
	"seclabel/storage"
)

const (
	defaultEventsPageSize = 10
	maxEventsPageSize     = 100
)

// EventListResponse is the body of GET /api/events.
type EventListResponse struct {
	Events     []core.Event `json:"events"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalCount int          `json:"total_count"`
	TotalPages int          `json:"total_pages"`
}

// parseEventFilter reads the list filters from query parameters.
func parseEventFilter(q url.Values) (core.EventFilter, error) {
	f := core.EventFilter{
		Severity:   strings.ToLower(strings.TrimSpace(q.Get("severity"))),
		SIEMSource: strings.TrimSpace(q.Get("siem_source")),
		SourceIP:   strings.TrimSpace(q.Get("source_ip")),
		AttackType: strings.TrimSpace(q.Get("attack_type")),
	}
	if v := strings.TrimSpace(q.Get("manual_review")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("manual_review must be true or false")
		}
		f.ManualReview = &b
	}
	if v := q.Get("date_from"); v != "" {
		t, err := core.ParseFilterTime(v, false)
		if err != nil {
			return f, fmt.Errorf("date_from: %w", err)
		}
		f.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := core.ParseFilterTime(v, true)
		if err != nil {
			return f, fmt.Errorf("date_to: %w", err)
		}
		f.DateTo = &t
	}
	if err := core.Validate(f); err != nil {
		return f, err
	}
	return f, nil
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r.URL.Query())
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	p := ParsePaginationParams(r, defaultEventsPageSize, maxEventsPageSize)

	events, total, err := a.deps.Events.ListEvents(r.Context(), filter, p.Page, p.PageSize)
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to list events", err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	a.respondJSON(w, r, http.StatusOK, EventListResponse{
		Events:     events,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalCount: total,
		TotalPages: TotalPages(total, p.PageSize),
	})
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, "Invalid event ID", err)
		return
	}
	event, err := a.deps.Events.GetEvent(r.Context(), id)
	if errors.Is(err, storage.ErrEventNotFound) {
		a.writeError(w, r, http.StatusNotFound, "Event not found", err)
		return
	}
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to get event", err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, event)
}

func (a *API) labelEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, "Invalid event ID", err)
		return
	}

	var req core.LabelRequest
	if !a.decodeJSONBody(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	event, err := a.deps.Events.LabelEvent(r.Context(), id, &req)
	if errors.Is(err, storage.ErrEventNotFound) {
		a.writeError(w, r, http.StatusNotFound, "Event not found", err)
		return
	}
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to label event", err)
		return
	}

	metrics.EventsLabeled.WithLabelValues("single").Inc()
	a.invalidateStats(r)
	a.publish(MessageEventLabeled, map[string]interface{}{"id": event.ID, "event_id": event.EventID})
	a.respondJSON(w, r, http.StatusOK, event)
}

// BatchLabelResponse is the body returned by POST /api/events/batch-label.
type BatchLabelResponse struct {
	Message      string `json:"message"`
	UpdatedCount int    `json:"updated_count"`
}

func (a *API) batchLabel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filters *core.EventFilter  `json:"filters"`
		Labels  *core.LabelRequest `json:"labels"`
	}
	if !a.decodeJSONBody(w, r, &body) {
		return
	}
	if body.Filters == nil || body.Labels == nil {
		a.writeError(w, r, http.StatusBadRequest, "filters and labels are required", nil)
		return
	}
	if err := core.Validate(*body.Filters); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	req := body.Labels
	req.Normalize()
	if req.IsEmpty() {
		a.writeError(w, r, http.StatusBadRequest, "labels must set at least one field", nil)
		return
	}
	if err := req.Validate(); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	n, err := a.deps.Events.BatchLabel(r.Context(), *body.Filters, req)
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to label events", err)
		return
	}

	metrics.EventsLabeled.WithLabelValues("batch").Add(float64(n))
	if n > 0 {
		a.invalidateStats(r)
		a.publish(MessageEventLabeled, map[string]interface{}{"updated_count": n})
	}
	a.respondJSON(w, r, http.StatusOK, BatchLabelResponse{
		Message:      fmt.Sprintf("Successfully labeled %d events", n),
		UpdatedCount: n,
	})
}

// FetchRequest is the body of POST /api/events/fetch.
type FetchRequest struct {
	Source string `json:"source"`
	Limit  int    `json:"limit"`
}

func (a *API) fetchEvents(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if r.ContentLength != 0 {
		if !a.decodeJSONBody(w, r, &req) {
			return
		}
	}
	if req.Limit < 0 {
		a.writeError(w, r, http.StatusBadRequest, "limit must not be negative", nil)
		return
	}

	res, err := a.deps.Fetcher.Fetch(r.Context(), strings.TrimSpace(req.Source), req.Limit)
	if errors.Is(err, ingest.ErrUnknownSource) {
		a.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	if err != nil {
		a.writeError(w, r, http.StatusBadGateway, "Failed to fetch events from source", err)
		return
	}
	if res.Imported > 0 {
		a.invalidateStats(r)
	}
	a.respondJSON(w, r, http.StatusOK, res)
}

// publish forwards a message to websocket clients when a hub is configured.
func (a *API) publish(msgType string, data interface{}) {
	if a.deps.Hub != nil {
		_ = a.deps.Hub.BroadcastMessage(msgType, data)
	}
}
