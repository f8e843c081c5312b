package console

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"seclabel/core"
	"seclabel/mitre"
)

// GetAPIConfig returns the integration settings with keys masked.
func (c *Client) GetAPIConfig(ctx context.Context) (*core.APIConfig, error) {
	var cfg core.APIConfig
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveAPIConfig replaces the integration settings. Empty or masked keys keep
// the stored key.
func (c *Client) SaveAPIConfig(ctx context.Context, cfg core.APIConfig) (*core.APIConfig, error) {
	cfg.UpdatedAt = nil
	var saved core.APIConfig
	if err := c.do(ctx, http.MethodPost, "/api/config", nil, cfg, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// GetSystemConfig returns the tunable system settings.
func (c *Client) GetSystemConfig(ctx context.Context) (*core.SystemConfig, error) {
	var cfg core.SystemConfig
	if err := c.do(ctx, http.MethodGet, "/api/system-config", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateSystemConfig applies a sectioned partial update such as
// {"general": {"demo_mode_enabled": true}} and returns the full result.
func (c *Client) UpdateSystemConfig(ctx context.Context, patch map[string]map[string]interface{}) (*core.SystemConfig, error) {
	var cfg core.SystemConfig
	if err := c.do(ctx, http.MethodPost, "/api/system-config", nil, patch, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListUsers returns every console user.
func (c *Client) ListUsers(ctx context.Context) ([]core.User, error) {
	var users []core.User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser adds a console user.
func (c *Client) CreateUser(ctx context.Context, req core.CreateUserRequest) (*core.User, error) {
	var u core.User
	if err := c.do(ctx, http.MethodPost, "/api/users", nil, req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes a console user.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/api/users/", id), nil, nil, nil)
}

// Dashboard fetches every dashboard view for a timeline range.
func (c *Client) Dashboard(ctx context.Context, timelineRange string) (*Dashboard, error) {
	d := &Dashboard{}
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/stats", nil, nil, &d.Stats); err != nil {
		return nil, err
	}
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/top-attacks", nil, nil, &d.TopAttacks); err != nil {
		return nil, err
	}
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/severity", nil, nil, &d.Severity); err != nil {
		return nil, err
	}
	q := url.Values{}
	if timelineRange != "" {
		q.Set("range", timelineRange)
	}
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/timeline", q, nil, &d.Timeline); err != nil {
		return nil, err
	}
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/mitre-distribution", nil, nil, &d.Mitre); err != nil {
		return nil, err
	}
	return d, nil
}

// Tactics lists the MITRE tactics offered in the label form.
func (c *Client) Tactics(ctx context.Context) ([]mitre.Tactic, error) {
	var out []mitre.Tactic
	if err := c.do(ctx, http.MethodGet, "/api/mitre/tactics", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Techniques lists MITRE techniques, optionally for one tactic.
func (c *Client) Techniques(ctx context.Context, tacticID string) ([]mitre.Technique, error) {
	q := url.Values{}
	if tacticID != "" {
		q.Set("tactic_id", tacticID)
	}
	var out []mitre.Technique
	if err := c.do(ctx, http.MethodGet, "/api/mitre/techniques", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MLStatus reports the ML provider state.
func (c *Client) MLStatus(ctx context.Context) (*MLStatus, error) {
	var st MLStatus
	if err := c.do(ctx, http.MethodGet, "/api/ml/status", nil, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Classify runs the ML provider on one event.
func (c *Client) Classify(ctx context.Context, id int64) (*core.ClassificationResult, error) {
	var res core.ClassificationResult
	if err := c.do(ctx, http.MethodPost, idPath("/api/ml/classify/", id), nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// BatchClassify runs the ML provider on several events.
func (c *Client) BatchClassify(ctx context.Context, ids []int64) (*core.BatchClassifyResponse, error) {
	var res core.BatchClassifyResponse
	body := core.BatchClassifyRequest{EventIDs: ids}
	if err := c.do(ctx, http.MethodPost, "/api/ml/batch-classify", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// VerifyLabel records the analyst's verdict on an ML classification.
func (c *Client) VerifyLabel(ctx context.Context, id int64, req core.VerifyRequest) (*core.Event, error) {
	var res struct {
		Event *core.Event `json:"event"`
	}
	if err := c.do(ctx, http.MethodPost, idPath("/api/ml/verify-label/", id), nil, req, &res); err != nil {
		return nil, err
	}
	return res.Event, nil
}

// UpdateMetrics recomputes model metrics from verified events. Dates are
// optional YYYY-MM-DD strings.
func (c *Client) UpdateMetrics(ctx context.Context, startDate, endDate string) (*MetricsUpdate, error) {
	body := map[string]string{}
	if startDate != "" {
		body["start_date"] = startDate
	}
	if endDate != "" {
		body["end_date"] = endDate
	}
	var res MetricsUpdate
	if err := c.do(ctx, http.MethodPost, "/api/ml/update-metrics", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// MLMetrics returns the latest metric snapshots, newest first.
func (c *Client) MLMetrics(ctx context.Context, limit int) ([]core.MLMetrics, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var res struct {
		Metrics []core.MLMetrics `json:"metrics"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/ml/metrics", q, nil, &res); err != nil {
		return nil, err
	}
	return res.Metrics, nil
}

// Unverified lists ML-labeled events awaiting analyst verification.
func (c *Client) Unverified(ctx context.Context, page, pageSize int) (*UnverifiedPage, error) {
	q := url.Values{}
	setPage(q, page, pageSize)
	var res UnverifiedPage
	if err := c.do(ctx, http.MethodGet, "/api/ml/unverified-events", q, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ServicesStatus reports integration and ML provider state.
func (c *Client) ServicesStatus(ctx context.Context) (*ServicesStatus, error) {
	var st ServicesStatus
	if err := c.do(ctx, http.MethodGet, "/api/services/status", nil, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
