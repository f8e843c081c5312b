package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIConfig_MaskAndKeep(t *testing.T) {
	stored := APIConfig{
		WazuhAPIURL: "https://wazuh.local:55000",
		WazuhAPIKey: "wazuh-secret-1234",
		MLAPIKey:    "abc",
	}

	masked := stored.Masked()
	assert.Equal(t, "****1234", masked.WazuhAPIKey)
	assert.Equal(t, "****", masked.MLAPIKey)
	assert.Equal(t, "", masked.SplunkAPIKey)
	assert.Equal(t, stored.WazuhAPIURL, masked.WazuhAPIURL)
	assert.Equal(t, "wazuh-secret-1234", stored.WazuhAPIKey, "Masked must not modify the receiver")

	update := APIConfig{
		WazuhAPIURL:  "https://wazuh2.local",
		WazuhAPIKey:  "****1234",
		SplunkAPIKey: "new-splunk",
	}
	update.KeepStoredKeys(stored)
	assert.Equal(t, "wazuh-secret-1234", update.WazuhAPIKey)
	assert.Equal(t, "new-splunk", update.SplunkAPIKey)
	assert.Equal(t, "abc", update.MLAPIKey)
}

func TestAPIConfig_Validate(t *testing.T) {
	cfg := APIConfig{WazuhAPIURL: "https://wazuh.local"}
	assert.NoError(t, Validate(cfg))

	cfg.SplunkAPIURL = "not a url"
	err := Validate(cfg)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "splunk_api_url must be a valid URL")
}

func TestAPIConfig_Endpoint(t *testing.T) {
	var cfg APIConfig
	cfg.SetKey("elastic", "k")
	cfg.ElasticAPIURL = "http://es:9200"

	url, key := cfg.Endpoint("elastic")
	assert.Equal(t, "http://es:9200", url)
	assert.Equal(t, "k", key)

	url, key = cfg.Endpoint("qradar")
	assert.Empty(t, url)
	assert.Empty(t, key)
}

func TestParseConfigValue(t *testing.T) {
	assert.Equal(t, true, ParseConfigValue("True"))
	assert.Equal(t, false, ParseConfigValue("false"))
	assert.Equal(t, int64(90), ParseConfigValue("90"))
	assert.Equal(t, 0.75, ParseConfigValue("0.75"))
	assert.Equal(t, []interface{}{"a"}, ParseConfigValue(`["a"]`))
	assert.Equal(t, "v10", ParseConfigValue("v10"))
	assert.Equal(t, "", ParseConfigValue(""))
}

func TestSystemConfigFromRows(t *testing.T) {
	cfg := SystemConfigFromRows(map[string]string{
		"general.data_retention_days":   "30",
		"general.auto_tagging_enabled":  "false",
		"ml.min_confidence_threshold":   "0.9",
		"ml.model_type":                 "api",
		"export.max_records_per_export": "not-a-number",
		"unknown.key":                   "x",
		"malformed":                     "x",
	})

	defaults := DefaultSystemConfig()
	assert.Equal(t, 30, cfg.General.DataRetentionDays)
	assert.False(t, cfg.General.AutoTaggingEnabled)
	assert.True(t, cfg.General.MLClassificationEnabled)
	assert.Equal(t, 0.9, cfg.ML.MinConfidenceThreshold)
	assert.Equal(t, ModelTypeAPI, cfg.ML.ModelType)
	assert.Equal(t, defaults.Export.MaxRecordsPerExport, cfg.Export.MaxRecordsPerExport)
	assert.Equal(t, defaults.Mitre, cfg.Mitre)
}

func TestSystemConfig_RowsRoundTrip(t *testing.T) {
	cfg := DefaultSystemConfig()
	cfg.Mitre.UseCustomMappings = true
	cfg.Mitre.CustomMappingsPath = "/etc/seclabel/mitre.yaml"

	rows := cfg.Rows()
	assert.Equal(t, "90", rows["general.data_retention_days"])
	assert.Equal(t, "0.7", rows["ml.min_confidence_threshold"])
	assert.Equal(t, "true", rows["mitre.use_custom_mappings"])
	assert.Equal(t, "csv", rows["export.default_export_format"])

	assert.Equal(t, cfg, SystemConfigFromRows(rows))
}

func TestSystemConfig_Merge(t *testing.T) {
	cfg := DefaultSystemConfig()
	merged, err := cfg.Merge([]byte(`{"export": {"include_raw_logs": true}}`))
	require.NoError(t, err)
	assert.True(t, merged.Export.IncludeRawLogs)
	assert.Equal(t, cfg.Export.MaxRecordsPerExport, merged.Export.MaxRecordsPerExport)
	assert.Equal(t, cfg.General, merged.General)

	_, err = cfg.Merge([]byte(`{"general": {"data_retention_days": "soon"}}`))
	assert.Error(t, err)
}
