package core

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// SIEMs lists the integrations with an endpoint in APIConfig.
var SIEMs = []string{"wazuh", "splunk", "elastic"}

// maskedKeyPrefix marks an API key that was masked for display.
const maskedKeyPrefix = "****"

// APIConfig holds integration endpoints and credentials.
type APIConfig struct {
	WazuhAPIURL   string     `json:"wazuh_api_url" validate:"omitempty,url,max=255"`
	WazuhAPIKey   string     `json:"wazuh_api_key" validate:"max=255"`
	SplunkAPIURL  string     `json:"splunk_api_url" validate:"omitempty,url,max=255"`
	SplunkAPIKey  string     `json:"splunk_api_key" validate:"max=255"`
	ElasticAPIURL string     `json:"elastic_api_url" validate:"omitempty,url,max=255"`
	ElasticAPIKey string     `json:"elastic_api_key" validate:"max=255"`
	MLAPIURL      string     `json:"ml_api_url" validate:"omitempty,url,max=255"`
	MLAPIKey      string     `json:"ml_api_key" validate:"max=255"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Normalize trims every field.
func (c *APIConfig) Normalize() {
	for _, f := range c.fields() {
		*f = strings.TrimSpace(*f)
	}
}

func (c *APIConfig) fields() []*string {
	return []*string{
		&c.WazuhAPIURL, &c.WazuhAPIKey,
		&c.SplunkAPIURL, &c.SplunkAPIKey,
		&c.ElasticAPIURL, &c.ElasticAPIKey,
		&c.MLAPIURL, &c.MLAPIKey,
	}
}

func (c *APIConfig) keys() []*string {
	return []*string{&c.WazuhAPIKey, &c.SplunkAPIKey, &c.ElasticAPIKey, &c.MLAPIKey}
}

// Masked returns a copy with every key reduced to its last four characters.
func (c APIConfig) Masked() APIConfig {
	out := c
	for _, k := range out.keys() {
		*k = MaskKey(*k)
	}
	return out
}

// KeepStoredKeys restores keys from stored wherever c carries an empty or
// masked value, so a form that echoes masked keys back does not erase them.
func (c *APIConfig) KeepStoredKeys(stored APIConfig) {
	mine, theirs := c.keys(), stored.keys()
	for i := range mine {
		if *mine[i] == "" || strings.HasPrefix(*mine[i], maskedKeyPrefix) {
			*mine[i] = *theirs[i]
		}
	}
}

// Endpoint returns the URL and key configured for an integration name
// ("wazuh", "splunk", "elastic" or "ml").
func (c APIConfig) Endpoint(name string) (url, key string) {
	switch name {
	case "wazuh":
		return c.WazuhAPIURL, c.WazuhAPIKey
	case "splunk":
		return c.SplunkAPIURL, c.SplunkAPIKey
	case "elastic":
		return c.ElasticAPIURL, c.ElasticAPIKey
	case "ml":
		return c.MLAPIURL, c.MLAPIKey
	}
	return "", ""
}

// SetKey sets the key for an integration name. Unknown names are ignored.
func (c *APIConfig) SetKey(name, key string) {
	switch name {
	case "wazuh":
		c.WazuhAPIKey = key
	case "splunk":
		c.SplunkAPIKey = key
	case "elastic":
		c.ElasticAPIKey = key
	case "ml":
		c.MLAPIKey = key
	}
}

// MaskKey hides all but the last four characters of key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return maskedKeyPrefix
	}
	return maskedKeyPrefix + key[len(key)-4:]
}

// SystemConfig is the tunable configuration edited from the console.
type SystemConfig struct {
	General GeneralSettings `json:"general"`
	Mitre   MitreSettings   `json:"mitre"`
	Export  ExportSettings  `json:"export"`
	ML      MLSettings      `json:"ml"`
}

type GeneralSettings struct {
	DataRetentionDays       int  `json:"data_retention_days"`
	AutoTaggingEnabled      bool `json:"auto_tagging_enabled"`
	MLClassificationEnabled bool `json:"ml_classification_enabled"`
	RefreshIntervalMinutes  int  `json:"refresh_interval_minutes"`
	DemoModeEnabled         bool `json:"demo_mode_enabled"`
}

type MitreSettings struct {
	MitreVersion       string `json:"mitre_version"`
	UseCustomMappings  bool   `json:"use_custom_mappings"`
	CustomMappingsPath string `json:"custom_mappings_path"`
}

type ExportSettings struct {
	DefaultExportFormat string `json:"default_export_format"`
	IncludeRawLogs      bool   `json:"include_raw_logs"`
	MaxRecordsPerExport int    `json:"max_records_per_export"`
}

type MLSettings struct {
	MinConfidenceThreshold float64 `json:"min_confidence_threshold"`
	AutoApplyLabels        bool    `json:"auto_apply_labels"`
	VerificationRequired   bool    `json:"verification_required"`
	ModelType              string  `json:"model_type"`
}

// ML model types
const (
	ModelTypeAPI   = "api"
	ModelTypeDummy = "dummy"
)

// DefaultSystemConfig returns the values used for keys that were never saved.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		General: GeneralSettings{
			DataRetentionDays:       90,
			AutoTaggingEnabled:      true,
			MLClassificationEnabled: true,
			RefreshIntervalMinutes:  30,
		},
		Mitre: MitreSettings{
			MitreVersion: "v10",
		},
		Export: ExportSettings{
			DefaultExportFormat: ExportFormatCSV,
			MaxRecordsPerExport: 5000,
		},
		ML: MLSettings{
			MinConfidenceThreshold: 0.7,
			AutoApplyLabels:        true,
			VerificationRequired:   true,
			ModelType:              ModelTypeDummy,
		},
	}
}

// ParseConfigValue converts a stored string into the JSON value it represents:
// booleans, integers, floats, JSON objects and arrays, and plain strings.
func ParseConfigValue(s string) interface{} {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		var v interface{}
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}

// FormatConfigValue is the inverse of ParseConfigValue.
func FormatConfigValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// SystemConfigFromRows overlays stored "section.key" rows on the defaults.
// Rows that do not fit the target field's type are ignored.
func SystemConfigFromRows(rows map[string]string) SystemConfig {
	cfg := DefaultSystemConfig()
	for k, raw := range rows {
		section, key, ok := strings.Cut(k, ".")
		if !ok || section == "" || key == "" {
			continue
		}
		patch, err := json.Marshal(map[string]map[string]interface{}{
			section: {key: ParseConfigValue(raw)},
		})
		if err != nil {
			continue
		}
		trial := cfg
		if err := json.Unmarshal(patch, &trial); err != nil {
			continue
		}
		cfg = trial
	}
	return cfg
}

// Rows flattens the config into "section.key" rows for storage.
func (c SystemConfig) Rows() map[string]string {
	data, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var sections map[string]map[string]interface{}
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil
	}

	rows := make(map[string]string)
	for section, values := range sections {
		for key, v := range values {
			rows[section+"."+key] = FormatConfigValue(v)
		}
	}
	return rows
}

// Merge applies a partial JSON document over c and returns the result.
func (c SystemConfig) Merge(patch []byte) (SystemConfig, error) {
	out := c
	if err := json.Unmarshal(patch, &out); err != nil {
		return c, err
	}
	return out, nil
}
