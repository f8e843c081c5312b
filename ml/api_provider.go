package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"seclabel/core"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 10 << 20

// APIProvider calls a remote classification service over HTTP with a bearer key.
type APIProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.SugaredLogger
}

// NewAPIProvider creates a provider for the service at baseURL. A zero
// timeout defaults to 30 seconds.
func NewAPIProvider(baseURL, apiKey string, timeout time.Duration, logger *zap.SugaredLogger) *APIProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (p *APIProvider) Name() string { return core.ModelTypeAPI }

func (p *APIProvider) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("ML API returned error: %d - %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// TestConnection calls GET /health.
func (p *APIProvider) TestConnection(ctx context.Context) core.ConnectionStatus {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	details := map[string]interface{}{}
	if _, err := p.do(ctx, http.MethodGet, "/health", nil, &details); err != nil {
		return core.ConnectionStatus{Success: false, Message: fmt.Sprintf("Failed to connect to ML API: %v", err)}
	}
	return core.ConnectionStatus{Success: true, Message: "Successfully connected to ML API", Details: details}
}

// Classify calls POST /classify with {"event": ...}.
func (p *APIProvider) Classify(ctx context.Context, event *core.Event) ProviderResult {
	var resp struct {
		Classification core.Classification `json:"classification"`
		Confidence     float64             `json:"confidence"`
	}
	if _, err := p.do(ctx, http.MethodPost, "/classify", map[string]interface{}{"event": eventPayload(event)}, &resp); err != nil {
		p.logger.Errorw("ML classify request failed", "event_id", event.ID, "error", err)
		return failed(err.Error())
	}
	return ProviderResult{Success: true, Classification: resp.Classification, Confidence: resp.Confidence}
}

// BatchClassify calls POST /batch-classify with {"events": [...]}. When the
// call fails every event gets a failed result with the same error.
func (p *APIProvider) BatchClassify(ctx context.Context, events []core.Event) []ProviderResult {
	payload := make([]map[string]interface{}, len(events))
	for i := range events {
		payload[i] = eventPayload(&events[i])
	}

	var resp struct {
		Results []ProviderResult `json:"results"`
	}
	_, err := p.do(ctx, http.MethodPost, "/batch-classify", map[string]interface{}{"events": payload}, &resp)

	out := make([]ProviderResult, len(events))
	for i := range out {
		switch {
		case err != nil:
			out[i] = failed(err.Error())
		case i < len(resp.Results):
			out[i] = resp.Results[i]
		default:
			out[i] = failed("no result returned for event")
		}
	}
	if err != nil {
		p.logger.Errorw("ML batch classify request failed", "events", len(events), "error", err)
	}
	return out
}

// ModelInfo calls GET /model-info.
func (p *APIProvider) ModelInfo(ctx context.Context) core.ModelInfo {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var info core.ModelInfo
	if _, err := p.do(ctx, http.MethodGet, "/model-info", nil, &info); err != nil {
		return core.ModelInfo{Version: "unknown", Error: err.Error()}
	}
	if info.Version == "" {
		info.Version = "unknown"
	}
	return info
}
