// Package ml classifies events with a pluggable provider and tracks how well
// the provider agrees with analyst verdicts.
package ml

import (
	"context"
	"encoding/json"

	"seclabel/core"
)

// Provider classifies events. Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	TestConnection(ctx context.Context) core.ConnectionStatus
	Classify(ctx context.Context, event *core.Event) ProviderResult
	BatchClassify(ctx context.Context, events []core.Event) []ProviderResult
	ModelInfo(ctx context.Context) core.ModelInfo
}

// ProviderResult is a provider's answer for one event.
type ProviderResult struct {
	Success        bool                `json:"success"`
	Classification core.Classification `json:"classification"`
	Confidence     float64             `json:"confidence"`
	Error          string              `json:"error,omitempty"`
}

func failed(msg string) ProviderResult {
	return ProviderResult{Success: false, Error: msg}
}

// eventPayload is the JSON document sent to providers: the event itself plus
// the first raw log as raw_log.
func eventPayload(e *core.Event) map[string]interface{} {
	out := map[string]interface{}{}
	data, err := json.Marshal(e)
	if err == nil {
		_ = json.Unmarshal(data, &out)
	}
	delete(out, "raw_logs")

	rawLog := map[string]interface{}{}
	if len(e.RawLogs) > 0 && e.RawLogs[0].LogData != nil {
		rawLog = e.RawLogs[0].LogData
	}
	out["raw_log"] = rawLog
	return out
}
