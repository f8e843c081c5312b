package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"seclabel/api"
	"seclabel/config"
	"seclabel/core"
	"seclabel/export"
	"seclabel/ingest"
	"seclabel/mitre"
	"seclabel/ml"

	"go.uber.org/zap"
)

// App represents the labeling server with all its components.
type App struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Storage
	Storage *StorageComponents
	Cache   *core.RedisCache

	// Services
	Sources   *ingest.Registry
	Fetcher   *ingest.Fetcher
	Exporter  *export.Exporter
	ML        *ml.Service
	Mitre     *mitre.Resolver
	Hub       *api.Hub
	APIServer *api.API

	// Lifecycle
	serviceWg *sync.WaitGroup
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates a new application instance and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{serviceWg: &sync.WaitGroup{}}
	app.ctx, app.cancel = context.WithCancel(ctx)

	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("seclabel server starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	sugar.Info("Running pre-flight checks...")
	if err := EnsureDataDirectories(DataDirectoriesFromConfig(cfg), sugar); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	sqlite, err := InitSQLite(cfg.GetSQLitePath(), sugar)
	if err != nil {
		return nil, err
	}
	app.Storage = InitStorage(sqlite, sugar)

	if err := SeedIntegrationSecrets(app.ctx, cfg, app.Storage.Settings, sugar); err != nil {
		sugar.Warnw("Failed to seed integration keys from secret provider", "error", err)
	}

	app.Cache = InitRedis(app.ctx, cfg, sugar)

	app.Mitre = mitre.NewResolver(sugar)
	app.ML = ml.NewService(app.Storage.Events, app.Storage.Settings, app.Storage.MLMetrics, ml.ServiceConfig{
		CacheSize:      cfg.ML.CacheSize,
		CacheTTL:       cfg.MLCacheTTL(),
		RequestTimeout: time.Duration(cfg.ML.RequestTimeout) * time.Second,
		Seed:           time.Now().UnixNano(),
	}, sugar)

	app.Sources = ingest.NewRegistry(ingest.NewDemoSource(time.Now().UnixNano()))
	for _, fs := range cfg.Ingest.FileSources {
		app.Sources.Register(ingest.NewFileSource(fs.Name, fs.Path, sugar))
		sugar.Infow("Registered file source", "name", fs.Name, "path", fs.Path)
	}

	app.Fetcher, err = ingest.NewFetcher(app.Storage.Events, app.Storage.Settings, app.Sources, ingest.FetcherConfig{
		DedupCacheSize:    cfg.Ingest.DedupCacheSize,
		DefaultFetchLimit: cfg.Ingest.DefaultFetchLimit,
		DefaultSource:     cfg.Ingest.DefaultSource,
		ScheduleEnabled:   cfg.Ingest.ScheduleEnabled,
	}, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fetcher: %w", err)
	}

	app.Exporter, err = export.NewExporter(app.ctx, app.Storage.Jobs, app.Storage.Events, app.Storage.Settings, export.Config{
		Dir:       cfg.GetExportDir(),
		Workers:   cfg.Export.Workers,
		QueueSize: cfg.Export.QueueSize,
	}, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize exporter: %w", err)
	}

	app.Hub = api.NewHub(app.ctx, sugar)
	app.Fetcher.OnFetched = app.Hub.PublishFetch
	app.Exporter.OnStatus = app.Hub.PublishExportJob

	app.APIServer = api.NewAPI(api.Deps{
		Events:    app.Storage.Events,
		Dashboard: app.Storage.Dashboard,
		Jobs:      app.Storage.Jobs,
		Users:     app.Storage.Users,
		Settings:  app.Storage.Settings,
		Fetcher:   app.Fetcher,
		Exporter:  app.Exporter,
		ML:        app.ML,
		Mitre:     app.Mitre,
		Cache:     app.Cache,
		Hub:       app.Hub,
	}, cfg, sugar)

	return app, nil
}

// Start starts all application services.
func (a *App) Start(ctx context.Context) error {
	a.started = true
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		a.Hub.Run()
	}()

	if err := a.Exporter.Start(ctx); err != nil {
		return fmt.Errorf("failed to start exporter: %w", err)
	}
	a.Fetcher.Start(a.ctx)
	a.Storage.Retention.Start()

	if config.WatchConfig(a.Sugar, a.APIServer.UpdateConfig) {
		a.Sugar.Info("Watching config file for changes")
	}

	a.startAPIServer()
	return nil
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	a.Sugar.Info("Phase 1: Stopping API server...")
	if a.APIServer != nil {
		timeout := time.Duration(a.Config.Server.ShutdownTimeout) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
		cancel()
	}

	a.Sugar.Info("Phase 2: Stopping scheduled fetch and retention...")
	if a.Fetcher != nil {
		a.Fetcher.Stop()
	}
	if a.Storage != nil && a.Storage.Retention != nil {
		a.Storage.Retention.Stop()
	}

	a.Sugar.Info("Phase 3: Draining export workers...")
	if a.Exporter != nil {
		a.Exporter.Stop()
	}

	a.Sugar.Info("Phase 4: Closing websocket clients...")
	if a.Hub != nil && a.started {
		a.Hub.Stop()
	}
	a.cancel()

	a.Sugar.Info("Phase 5: Waiting for service goroutines to complete...")
	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.Sugar.Info("All service goroutines stopped successfully")
	case <-time.After(10 * time.Second):
		a.Sugar.Warn("Service goroutine shutdown timed out")
	}

	a.Sugar.Info("Phase 6: Closing cache and database connections...")
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Sugar.Errorw("Failed to close Redis connection", "error", err)
		}
	}
	if a.Storage != nil && a.Storage.SQLite != nil {
		if err := a.Storage.SQLite.Close(); err != nil {
			a.Sugar.Errorw("Failed to close SQLite database", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}

// startAPIServer serves the API in the background.
func (a *App) startAPIServer() {
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		addr := a.Config.ListenAddr()
		a.Sugar.Infof("API server started on %s", addr)

		if err := a.APIServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorf("API server error: %v", err)
		}
	}()
}
