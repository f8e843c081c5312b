package api

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"seclabel/core"
	"seclabel/storage"
)

//go:embed schema/system_config.schema.json
var systemConfigSchemaJSON []byte

var (
	systemConfigSchema     *gojsonschema.Schema
	systemConfigSchemaErr  error
	systemConfigSchemaOnce sync.Once
)

func loadSystemConfigSchema() (*gojsonschema.Schema, error) {
	systemConfigSchemaOnce.Do(func() {
		systemConfigSchema, systemConfigSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(systemConfigSchemaJSON))
	})
	return systemConfigSchema, systemConfigSchemaErr
}

// validateSystemConfigPatch checks a system-config update document and
// returns one message per violation.
func validateSystemConfigPatch(doc []byte) ([]string, error) {
	schema, err := loadSystemConfigSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return msgs, nil
}

func (a *API) getAPIConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.deps.Settings.GetAPIConfig(r.Context())
	if errors.Is(err, storage.ErrConfigNotFound) {
		a.writeError(w, r, http.StatusNotFound, "Config not found", err)
		return
	}
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to load config", err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, cfg.Masked())
}

func (a *API) saveAPIConfig(w http.ResponseWriter, r *http.Request) {
	var cfg core.APIConfig
	if !a.decodeJSONBody(w, r, &cfg) {
		return
	}
	cfg.UpdatedAt = nil
	cfg.Normalize()
	if err := core.Validate(cfg); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	saved, err := a.deps.Settings.SaveAPIConfig(r.Context(), &cfg)
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to save config", err)
		return
	}
	a.logger.Infow("API integration settings saved", "request_id", requestID(r))
	a.respondJSON(w, r, http.StatusOK, saved.Masked())
}

func (a *API) getSystemConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.deps.Settings.GetSystemConfig(r.Context())
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to load system config", err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, cfg)
}

// saveSystemConfig applies a partial, sectioned update. Only the keys present
// in the body are written.
func (a *API) saveSystemConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBodyBytes()))
	if err != nil {
		a.writeError(w, r, http.StatusRequestEntityTooLarge, "Request body too large", err)
		return
	}
	if !json.Valid(body) {
		a.writeError(w, r, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}

	violations, err := validateSystemConfigPatch(body)
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to validate system config", err)
		return
	}
	if len(violations) > 0 {
		a.writeError(w, r, http.StatusBadRequest, "Invalid system config: "+strings.Join(violations, "; "), nil)
		return
	}

	var sections map[string]map[string]interface{}
	if err := json.Unmarshal(body, &sections); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "Invalid system config: "+err.Error(), err)
		return
	}
	rows := make(map[string]string)
	for section, values := range sections {
		for key, v := range values {
			rows[section+"."+key] = core.FormatConfigValue(v)
		}
	}

	if err := a.deps.Settings.SaveSystemConfigRows(r.Context(), rows); err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to save system config", err)
		return
	}
	cfg, err := a.deps.Settings.GetSystemConfig(r.Context())
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to load system config", err)
		return
	}
	a.logger.Infow("System config updated", "keys", len(rows), "request_id", requestID(r))
	a.respondJSON(w, r, http.StatusOK, cfg)
}
