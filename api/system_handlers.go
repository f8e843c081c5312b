package api

import (
	"net/http"
	"time"

	"seclabel/core"
	"seclabel/ml"
)

// Integration states reported by /api/services/status
const (
	ServiceConfigured    = "configured"
	ServiceNotConfigured = "not_configured"
)

// ServicesStatus is the body of GET /api/services/status.
type ServicesStatus struct {
	SIEMs   map[string]string `json:"siems"`
	ML      *ml.Status        `json:"ml"`
	Sources []string          `json:"sources"`
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status": "healthy",
		"time":   a.now().UTC().Format(time.RFC3339),
	}
	if a.deps.Hub != nil {
		body["websocket_clients"] = a.deps.Hub.ClientCount()
	}
	a.respondJSON(w, r, http.StatusOK, body)
}

// servicesStatus reports which SIEM integrations have a URL saved and the
// ML provider status.
func (a *API) servicesStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.deps.Settings.GetAPIConfig(r.Context())
	if err != nil {
		cfg = &core.APIConfig{}
	}

	st := ServicesStatus{SIEMs: make(map[string]string, len(core.SIEMs)), Sources: a.deps.Fetcher.Sources()}
	for _, name := range core.SIEMs {
		if url, _ := cfg.Endpoint(name); url != "" {
			st.SIEMs[name] = ServiceConfigured
		} else {
			st.SIEMs[name] = ServiceNotConfigured
		}
	}
	st.ML = a.deps.ML.Status(r.Context())
	a.respondJSON(w, r, http.StatusOK, st)
}
