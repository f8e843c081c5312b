package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"seclabel/core"
	"seclabel/metrics"
	"seclabel/storage"
)

// Provider status values reported by Status
const (
	StatusActive   = "active"
	StatusError    = "error"
	StatusDisabled = "disabled"
)

// Status is the body of GET /api/ml/status.
type Status struct {
	Status            string                 `json:"status"`
	Message           string                 `json:"message"`
	ModelInfo         *core.ModelInfo        `json:"model_info,omitempty"`
	ConnectionDetails map[string]interface{} `json:"connection_details,omitempty"`
	LatestMetrics     *core.MLMetrics        `json:"latest_metrics,omitempty"`
}

// ServiceConfig sizes the result cache and the remote provider timeout.
type ServiceConfig struct {
	CacheSize      int
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	Seed           int64
}

// Service runs classification against the configured provider and persists
// the outcome. Settings are read from system config on every call so console
// changes take effect immediately.
type Service struct {
	events   storage.EventStorage
	settings storage.SettingsStorage
	store    storage.MLMetricsStorage
	dummy    *DummyProvider
	cache    *expirable.LRU[int64, ProviderResult]
	timeout  time.Duration
	logger   *zap.SugaredLogger

	// overridable in tests
	now         func() time.Time
	apiProvider func(url, key string) Provider
}

// NewService creates the ML service.
func NewService(events storage.EventStorage, settings storage.SettingsStorage, store storage.MLMetricsStorage, cfg ServiceConfig, logger *zap.SugaredLogger) *Service {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Minute
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	s := &Service{
		events:   events,
		settings: settings,
		store:    store,
		dummy:    NewDummyProvider(cfg.Seed),
		cache:    expirable.NewLRU[int64, ProviderResult](cfg.CacheSize, nil, cfg.CacheTTL),
		timeout:  cfg.RequestTimeout,
		logger:   logger,
		now:      time.Now,
	}
	s.apiProvider = func(url, key string) Provider {
		return NewAPIProvider(url, key, s.timeout, s.logger)
	}
	return s
}

// config returns the current system config, falling back to defaults when
// it cannot be read.
func (s *Service) config(ctx context.Context) core.SystemConfig {
	cfg, err := s.settings.GetSystemConfig(ctx)
	if err != nil {
		s.logger.Warnw("Failed to read system config, using defaults", "error", err)
		return core.DefaultSystemConfig()
	}
	return cfg
}

// Provider picks the API provider when model_type is api and both URL and
// key are configured, and the dummy provider otherwise.
func (s *Service) Provider(ctx context.Context, settings core.MLSettings) Provider {
	if settings.ModelType != core.ModelTypeAPI {
		return s.dummy
	}
	api, err := s.settings.GetAPIConfig(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrConfigNotFound) {
			s.logger.Warnw("Failed to read API settings, using dummy ML provider", "error", err)
		}
		return s.dummy
	}
	url, key := api.Endpoint("ml")
	if url == "" || key == "" {
		return s.dummy
	}
	return s.apiProvider(url, key)
}

// Status reports whether ML is enabled and the provider reachable.
func (s *Service) Status(ctx context.Context) *Status {
	cfg := s.config(ctx)
	if !cfg.General.MLClassificationEnabled {
		return &Status{Status: StatusDisabled, Message: ErrDisabled.Error()}
	}

	provider := s.Provider(ctx, cfg.ML)
	conn := provider.TestConnection(ctx)
	info := provider.ModelInfo(ctx)

	st := &Status{
		Status:            StatusActive,
		Message:           conn.Message,
		ModelInfo:         &info,
		ConnectionDetails: conn.Details,
	}
	if !conn.Success {
		st.Status = StatusError
	}

	if latest, err := s.store.LatestMLMetrics(ctx, 1); err != nil {
		s.logger.Warnw("Failed to load latest ML metrics", "error", err)
	} else if len(latest) > 0 {
		st.LatestMetrics = &latest[0]
	}
	return st
}

// TestConnection probes the currently selected provider.
func (s *Service) TestConnection(ctx context.Context) core.ConnectionStatus {
	return s.Provider(ctx, s.config(ctx).ML).TestConnection(ctx)
}

func (s *Service) classifyCached(ctx context.Context, provider Provider, e *core.Event) ProviderResult {
	if r, ok := s.cache.Get(e.ID); ok {
		metrics.CacheHits.WithLabelValues("ml").Inc()
		return r
	}
	metrics.CacheMisses.WithLabelValues("ml").Inc()

	r := provider.Classify(ctx, e)
	if r.Success {
		s.cache.Add(e.ID, r)
	}
	return r
}

// apply stores a successful result on the event when it clears the
// threshold and auto-apply is on, and reports whether it cleared the threshold.
func (s *Service) apply(ctx context.Context, id int64, r ProviderResult, settings core.MLSettings) (bool, error) {
	above := r.Confidence >= settings.MinConfidenceThreshold
	if above && settings.AutoApplyLabels {
		c := r.Classification
		if _, err := s.events.ApplyClassification(ctx, id, &c, r.Confidence, !settings.VerificationRequired, s.now()); err != nil {
			return above, err
		}
	}
	return above, nil
}

func record(provider Provider, r ProviderResult, applied bool) {
	outcome := "failed"
	switch {
	case r.Success && applied:
		outcome = "applied"
	case r.Success:
		outcome = "below_threshold"
	}
	metrics.MLClassifications.WithLabelValues(provider.Name(), outcome).Inc()
}

// ClassifyEvent classifies one event. A provider failure is reported in the
// result, not as an error.
func (s *Service) ClassifyEvent(ctx context.Context, id int64) (*core.ClassificationResult, error) {
	cfg := s.config(ctx)
	if !cfg.General.MLClassificationEnabled {
		return nil, ErrDisabled
	}

	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	provider := s.Provider(ctx, cfg.ML)
	r := s.classifyCached(ctx, provider, e)
	if !r.Success {
		record(provider, r, false)
		return &core.ClassificationResult{Success: false, EventID: id, Error: r.Error}, nil
	}

	applied, err := s.apply(ctx, id, r, cfg.ML)
	if err != nil {
		return nil, fmt.Errorf("failed to apply classification: %w", err)
	}
	record(provider, r, applied)

	c := r.Classification
	return &core.ClassificationResult{
		Success:        true,
		EventID:        id,
		Classification: &c,
		Confidence:     r.Confidence,
		Applied:        applied,
	}, nil
}

// BatchClassify classifies the events with the given ids in one provider call.
// Unknown ids are skipped.
func (s *Service) BatchClassify(ctx context.Context, ids []int64) (*core.BatchClassifyResponse, error) {
	cfg := s.config(ctx)
	if !cfg.General.MLClassificationEnabled {
		return nil, ErrDisabled
	}
	if len(ids) == 0 {
		return nil, ErrNoEventIDs
	}

	events, err := s.events.GetEventsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoEventsFound
	}

	provider := s.Provider(ctx, cfg.ML)
	start := s.now()
	results := provider.BatchClassify(ctx, events)
	elapsed := s.now().Sub(start)

	resp := &core.BatchClassifyResponse{
		Success:               true,
		ProcessedEvents:       len(events),
		ProcessingTimeSeconds: elapsed.Seconds(),
		Results:               make([]core.ClassificationResult, 0, len(events)),
	}
	for i := range events {
		id := events[i].ID
		r := results[i]
		if !r.Success {
			record(provider, r, false)
			resp.Results = append(resp.Results, core.ClassificationResult{EventID: id, Success: false, Error: r.Error})
			continue
		}
		s.cache.Add(id, r)

		applied, err := s.apply(ctx, id, r, cfg.ML)
		if err != nil {
			s.logger.Errorw("Failed to apply classification", "event_id", id, "error", err)
			resp.Results = append(resp.Results, core.ClassificationResult{EventID: id, Success: false, Error: "failed to store classification"})
			continue
		}
		record(provider, r, applied)
		resp.Results = append(resp.Results, core.ClassificationResult{
			EventID:    id,
			Success:    true,
			Confidence: r.Confidence,
			Applied:    applied,
		})
	}

	s.logger.Infow("Batch classification completed", "provider", provider.Name(), "events", len(events), "duration", elapsed)
	return resp, nil
}

// VerifyLabel records an analyst's verdict on an ML classification and drops
// the cached result for the event.
func (s *Service) VerifyLabel(ctx context.Context, id int64, req *core.VerifyRequest) (*core.Event, error) {
	e, err := s.events.VerifyLabel(ctx, id, req, s.now())
	if err != nil {
		return nil, err
	}
	s.cache.Remove(id)
	metrics.EventsLabeled.WithLabelValues("verify").Inc()
	return e, nil
}

// UpdateMetrics scores verified events in the range and stores the snapshot.
func (s *Service) UpdateMetrics(ctx context.Context, rng core.MetricsRange) (*core.MLMetrics, error) {
	events, err := s.events.ListVerifiedForMetrics(ctx, rng.StartDate, rng.EndDate)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoVerifiedEvents
	}

	version := s.Provider(ctx, s.config(ctx).ML).ModelInfo(ctx).Version
	if version == "" {
		version = "unknown"
	}

	m, err := Evaluate(events, version, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertMLMetrics(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Infow("ML metrics updated", "metrics_id", m.ID, "events", m.Total(), "accuracy", m.Accuracy, "f1", m.F1Score)
	return m, nil
}

// LatestMetrics returns the newest stored snapshots.
func (s *Service) LatestMetrics(ctx context.Context, limit int) ([]core.MLMetrics, error) {
	return s.store.LatestMLMetrics(ctx, limit)
}

// Unverified lists classified events awaiting analyst verification.
func (s *Service) Unverified(ctx context.Context, page, pageSize int) ([]core.Event, int, error) {
	return s.events.ListUnverified(ctx, page, pageSize)
}
