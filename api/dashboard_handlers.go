package api

import (
	"context"
	"net/http"
	"strconv"

	"seclabel/core"
)

const (
	defaultTopAttacks = 5
	maxTopAttacks     = 50
)

// cached serves a dashboard view from Redis when a cache is configured,
// computing and storing it on a miss. Cache failures fall through to compute.
func cached[T any](ctx context.Context, a *API, view string, compute func() (T, error)) (T, error) {
	var out T
	cache := a.deps.Cache
	if cache == nil {
		return compute()
	}

	key := core.StatsCacheKey(view)
	if hit, err := cache.Get(ctx, key, &out); err == nil && hit {
		return out, nil
	}

	out, err := compute()
	if err != nil {
		return out, err
	}
	if err := cache.Set(ctx, key, out, a.config.StatsTTL()); err != nil {
		a.logger.Debugw("Failed to cache dashboard view", "view", view, "error", err)
	}
	return out, nil
}

// invalidateStats drops cached dashboard views after labels or events change.
func (a *API) invalidateStats(r *http.Request) {
	if a.deps.Cache == nil {
		return
	}
	if err := a.deps.Cache.InvalidatePrefix(r.Context(), core.CacheKeyStatsPrefix); err != nil {
		a.logger.Warnw("Failed to invalidate dashboard cache", "error", err, "request_id", requestID(r))
	}
}

func (a *API) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := cached(r.Context(), a, "overview", func() (*core.DashboardStats, error) {
		return a.deps.Dashboard.GetStats(r.Context(), a.now())
	})
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to compute dashboard stats", err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, stats)
}

func (a *API) dashboardTopAttacks(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopAttacks
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			a.writeError(w, r, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = min(n, maxTopAttacks)
	}

	attacks, err := cached(r.Context(), a, "top-attacks:"+strconv.Itoa(limit), func() ([]core.AttackCount, error) {
		return a.deps.Dashboard.GetTopAttacks(r.Context(), limit)
	})
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to compute top attacks", err)
		return
	}
	if attacks == nil {
		attacks = []core.AttackCount{}
	}
	a.respondJSON(w, r, http.StatusOK, attacks)
}

func (a *API) dashboardSeverity(w http.ResponseWriter, r *http.Request) {
	dist, err := cached(r.Context(), a, "severity", func() (map[string]int, error) {
		return a.deps.Dashboard.GetSeverityDistribution(r.Context())
	})
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to compute severity distribution", err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, dist)
}

func (a *API) dashboardTimeline(w http.ResponseWriter, r *http.Request) {
	rangeName := r.URL.Query().Get("range")
	switch rangeName {
	case "":
		rangeName = core.TimelineRange7Days
	case core.TimelineRange24Hours, core.TimelineRange7Days, core.TimelineRange30Days, core.TimelineRange90Days:
	default:
		a.writeError(w, r, http.StatusBadRequest, "range must be one of 24hours, 7days, 30days, 90days", nil)
		return
	}

	points, err := cached(r.Context(), a, "timeline:"+rangeName, func() ([]core.TimelinePoint, error) {
		return a.deps.Dashboard.GetTimeline(r.Context(), rangeName, a.now())
	})
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to compute timeline", err)
		return
	}
	if points == nil {
		points = []core.TimelinePoint{}
	}
	a.respondJSON(w, r, http.StatusOK, points)
}

func (a *API) dashboardMitre(w http.ResponseWriter, r *http.Request) {
	dist, err := cached(r.Context(), a, "mitre", func() (*core.MitreDistribution, error) {
		return a.deps.Dashboard.GetMitreDistribution(r.Context())
	})
	if err != nil {
		a.writeError(w, r, http.StatusInternalServerError, "Failed to compute MITRE distribution", err)
		return
	}
	a.respondJSON(w, r, http.StatusOK, dist)
}
