// Package console is the Go side of the labeling console: a typed client for
// the seclabel REST API and the view state behind the labeling screens.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"seclabel/core"
)

const (
	// DefaultTimeout bounds every request made by a Client.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 64 << 10
)

// APIError is a non-2xx response. Message is the server's "message" or
// "error" field, or the status text when the body has neither.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// ErrorMessage turns a request failure into the one-line message shown to
// the analyst.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "Could not reach the server: " + urlErr.Err.Error()
	}
	return err.Error()
}

// Client talks to a seclabel server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:5000". A non-positive timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends a JSON request and decodes the JSON response into out, which may
// be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(data, &body) == nil {
		msg = body.Message
		if msg == "" {
			msg = body.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func idPath(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

// ListEvents fetches one page of events. query carries the filters and
// pagination, see EventFilters.Values.
func (c *Client) ListEvents(ctx context.Context, query url.Values) (*EventPage, error) {
	var page EventPage
	if err := c.do(ctx, http.MethodGet, "/api/events", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetEvent fetches one event with its raw logs.
func (c *Client) GetEvent(ctx context.Context, id int64) (*core.Event, error) {
	var e core.Event
	if err := c.do(ctx, http.MethodGet, idPath("/api/events/", id), nil, nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// LabelEvent replaces an event's labels.
func (c *Client) LabelEvent(ctx context.Context, id int64, req core.LabelRequest) (*core.Event, error) {
	var e core.Event
	if err := c.do(ctx, http.MethodPost, idPath("/api/events/", id)+"/label", nil, req, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// BatchLabel merges labels into every event matching filters and returns
// the number of events updated.
func (c *Client) BatchLabel(ctx context.Context, filters core.EventFilter, labels core.LabelRequest) (*BatchLabelResult, error) {
	body := map[string]interface{}{"filters": filters, "labels": labels}
	var res BatchLabelResult
	if err := c.do(ctx, http.MethodPost, "/api/events/batch-label", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FetchEvents asks the server to pull events from a source. Empty source and
// zero limit use the server defaults.
func (c *Client) FetchEvents(ctx context.Context, source string, limit int) (*FetchResult, error) {
	body := map[string]interface{}{}
	if source != "" {
		body["source"] = source
	}
	if limit > 0 {
		body["limit"] = limit
	}
	var res FetchResult
	if err := c.do(ctx, http.MethodPost, "/api/events/fetch", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateExport queues an export job.
func (c *Client) CreateExport(ctx context.Context, req core.ExportRequest) (*core.ExportJob, error) {
	var job core.ExportJob
	if err := c.do(ctx, http.MethodPost, "/api/events/export", nil, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListExportJobs lists export jobs, newest first. status may be empty.
func (c *Client) ListExportJobs(ctx context.Context, status string, page, pageSize int) (*ExportJobPage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	setPage(q, page, pageSize)
	var out ExportJobPage
	if err := c.do(ctx, http.MethodGet, "/api/export-jobs", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetExportJob fetches one export job.
func (c *Client) GetExportJob(ctx context.Context, id int64) (*core.ExportJob, error) {
	var job core.ExportJob
	if err := c.do(ctx, http.MethodGet, idPath("/api/export-jobs/", id), nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WaitForExport polls a job every interval until it completes or fails.
// onPoll, if set, sees every intermediate state.
func (c *Client) WaitForExport(ctx context.Context, id int64, interval time.Duration, onPoll func(*core.ExportJob)) (*core.ExportJob, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetExportJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if onPoll != nil {
			onPoll(job)
		}
		if job.IsFinished() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Download streams an export file into w and returns the bytes written.
func (c *Client) Download(ctx context.Context, name string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/download/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Del("Accept")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, readAPIError(resp)
	}
	return io.Copy(w, resp.Body)
}

func setPage(q url.Values, page, pageSize int) {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
}
