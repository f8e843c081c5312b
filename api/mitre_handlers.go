package api

import (
	"net/http"
	"strings"

	"seclabel/mitre"
)

func (a *API) catalog(r *http.Request) *mitre.Catalog {
	sys, err := a.deps.Settings.GetSystemConfig(r.Context())
	if err != nil {
		a.logger.Warnw("Falling back to embedded MITRE catalog", "error", err, "request_id", requestID(r))
		return mitre.Default()
	}
	return a.deps.Mitre.Catalog(sys.Mitre)
}

func (a *API) mitreTactics(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, r, http.StatusOK, a.catalog(r).Tactics())
}

// mitreTechniques lists techniques, optionally only those of one tactic.
func (a *API) mitreTechniques(w http.ResponseWriter, r *http.Request) {
	cat := a.catalog(r)
	tacticID := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("tactic_id")))
	if tacticID != "" {
		if _, ok := cat.Tactic(tacticID); !ok {
			a.writeError(w, r, http.StatusNotFound, "Tactic not found", nil)
			return
		}
	}
	techniques := cat.Techniques(tacticID)
	if techniques == nil {
		techniques = []mitre.Technique{}
	}
	a.respondJSON(w, r, http.StatusOK, techniques)
}
