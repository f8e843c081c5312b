// Package api serves the seclabel REST API consumed by the labeling console.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"seclabel/config"
	"seclabel/core"
	"seclabel/export"
	"seclabel/ingest"
	"seclabel/mitre"
	"seclabel/ml"
	"seclabel/storage"
)

// Deps are the collaborators the handlers use. Cache may be nil.
type Deps struct {
	Events    storage.EventStorage
	Dashboard storage.DashboardStorage
	Jobs      storage.ExportJobStorage
	Users     storage.UserStorage
	Settings  storage.SettingsStorage
	Fetcher   *ingest.Fetcher
	Exporter  *export.Exporter
	ML        *ml.Service
	Mitre     *mitre.Resolver
	Cache     *core.RedisCache
	Hub       *Hub
}

// API holds the API server
type API struct {
	router *mux.Router
	deps   Deps
	config *config.Config
	logger *zap.SugaredLogger

	limiter *ipRateLimiter
	now     func() time.Time

	serverMu sync.Mutex
	server   *http.Server
	stopped  bool
}

// NewAPI creates a new API server
func NewAPI(deps Deps, cfg *config.Config, logger *zap.SugaredLogger) *API {
	a := &API{
		router:  mux.NewRouter(),
		deps:    deps,
		config:  cfg,
		logger:  logger,
		limiter: newIPRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		now:     time.Now,
	}
	a.setupRoutes()
	return a
}

// setupRoutes sets up the API routes
func (a *API) setupRoutes() {
	a.router.Use(a.requestIDMiddleware)
	a.router.Use(a.metricsMiddleware)
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r := a.router.PathPrefix("/api").Subrouter()

	r.HandleFunc("/events", a.listEvents).Methods("GET", "OPTIONS")
	r.HandleFunc("/events/batch-label", a.batchLabel).Methods("POST", "OPTIONS")
	r.HandleFunc("/events/fetch", a.fetchEvents).Methods("POST", "OPTIONS")
	r.HandleFunc("/events/export", a.createExport).Methods("POST", "OPTIONS")
	r.HandleFunc("/events/{id:[0-9]+}", a.getEvent).Methods("GET", "OPTIONS")
	r.HandleFunc("/events/{id:[0-9]+}/label", a.labelEvent).Methods("POST", "OPTIONS")

	r.HandleFunc("/export-jobs", a.listExportJobs).Methods("GET", "OPTIONS")
	r.HandleFunc("/export-jobs/{id:[0-9]+}", a.getExportJob).Methods("GET", "OPTIONS")
	r.HandleFunc("/download/{path}", a.downloadExport).Methods("GET", "OPTIONS")

	r.HandleFunc("/config", a.getAPIConfig).Methods("GET", "OPTIONS")
	r.HandleFunc("/config", a.saveAPIConfig).Methods("POST")
	r.HandleFunc("/system-config", a.getSystemConfig).Methods("GET", "OPTIONS")
	r.HandleFunc("/system-config", a.saveSystemConfig).Methods("POST")

	r.HandleFunc("/users", a.listUsers).Methods("GET", "OPTIONS")
	r.HandleFunc("/users", a.createUser).Methods("POST")
	r.HandleFunc("/users/{id:[0-9]+}", a.deleteUser).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/dashboard/stats", a.dashboardStats).Methods("GET", "OPTIONS")
	r.HandleFunc("/dashboard/top-attacks", a.dashboardTopAttacks).Methods("GET", "OPTIONS")
	r.HandleFunc("/dashboard/severity", a.dashboardSeverity).Methods("GET", "OPTIONS")
	r.HandleFunc("/dashboard/timeline", a.dashboardTimeline).Methods("GET", "OPTIONS")
	r.HandleFunc("/dashboard/mitre-distribution", a.dashboardMitre).Methods("GET", "OPTIONS")

	r.HandleFunc("/mitre/tactics", a.mitreTactics).Methods("GET", "OPTIONS")
	r.HandleFunc("/mitre/techniques", a.mitreTechniques).Methods("GET", "OPTIONS")

	r.HandleFunc("/ml/status", a.mlStatus).Methods("GET", "OPTIONS")
	r.HandleFunc("/ml/classify/{id:[0-9]+}", a.mlClassify).Methods("POST", "OPTIONS")
	r.HandleFunc("/ml/batch-classify", a.mlBatchClassify).Methods("POST", "OPTIONS")
	r.HandleFunc("/ml/verify-label/{id:[0-9]+}", a.mlVerifyLabel).Methods("POST", "OPTIONS")
	r.HandleFunc("/ml/update-metrics", a.mlUpdateMetrics).Methods("POST", "OPTIONS")
	r.HandleFunc("/ml/metrics", a.mlMetrics).Methods("GET", "OPTIONS")
	r.HandleFunc("/ml/unverified-events", a.mlUnverified).Methods("GET", "OPTIONS")

	r.HandleFunc("/services/status", a.servicesStatus).Methods("GET", "OPTIONS")

	if a.deps.Hub != nil {
		r.HandleFunc("/ws", a.serveWebSocket).Methods("GET")
	}
}

// Handler returns the routed handler, used by tests and the server.
func (a *API) Handler() http.Handler {
	return a.router
}

// UpdateConfig applies settings that can change while running.
func (a *API) UpdateConfig(cfg *config.Config) {
	a.limiter.SetLimits(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	a.logger.Infow("Applied live API settings",
		"rate_limit_rps", cfg.Server.RateLimitRPS,
		"rate_limit_burst", cfg.Server.RateLimitBurst)
}

// Start starts the API server and the rate limiter cleanup. It blocks until
// the server stops, and returns http.ErrServerClosed at once if Stop already
// ran.
func (a *API) Start(addr string) error {
	a.serverMu.Lock()
	if a.stopped {
		a.serverMu.Unlock()
		return http.ErrServerClosed
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  a.config.ReadTimeout(),
		WriteTimeout: a.config.WriteTimeout(),
	}
	a.server = srv
	a.serverMu.Unlock()

	a.limiter.StartCleanup()
	a.logger.Infow("API server listening", "addr", addr)
	return srv.ListenAndServe()
}

// Stop stops the API server
func (a *API) Stop(ctx context.Context) error {
	a.serverMu.Lock()
	a.stopped = true
	srv := a.server
	a.serverMu.Unlock()

	a.limiter.Stop()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
