package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"seclabel/metrics"
	"seclabel/storage"
)

// MaxFetchLimit caps how many events one fetch may request.
const MaxFetchLimit = 1000

const (
	defaultDedupCacheSize = 10000
	defaultFetchLimit     = 50
	defaultRefreshMinutes = 30
)

// FetchResult summarizes one fetch.
type FetchResult struct {
	Status     string `json:"status"`
	Source     string `json:"source"`
	Fetched    int    `json:"fetched"`
	Imported   int    `json:"imported"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed,omitempty"`
}

// FetcherConfig tunes the Fetcher.
type FetcherConfig struct {
	DedupCacheSize    int
	DefaultFetchLimit int
	DefaultSource     string
	ScheduleEnabled   bool
}

// Fetcher pulls events from registered sources into storage.
type Fetcher struct {
	events   storage.EventStorage
	settings storage.SettingsStorage
	sources  *Registry
	seen     *lru.Cache[string, struct{}]
	cfg      FetcherConfig
	logger   *zap.SugaredLogger

	// OnFetched is called after every successful fetch
	OnFetched func(FetchResult)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFetcher creates a fetcher. The dedup cache remembers recently seen
// event IDs so repeated fetches skip the database.
func NewFetcher(events storage.EventStorage, settings storage.SettingsStorage, sources *Registry, cfg FetcherConfig, logger *zap.SugaredLogger) (*Fetcher, error) {
	if cfg.DedupCacheSize <= 0 {
		cfg.DedupCacheSize = defaultDedupCacheSize
	}
	if cfg.DefaultFetchLimit <= 0 {
		cfg.DefaultFetchLimit = defaultFetchLimit
	}
	if cfg.DefaultSource == "" {
		cfg.DefaultSource = DemoSourceName
	}
	seen, err := lru.New[string, struct{}](cfg.DedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}
	return &Fetcher{
		events:   events,
		settings: settings,
		sources:  sources,
		seen:     seen,
		cfg:      cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Sources lists the names a fetch may use.
func (f *Fetcher) Sources() []string {
	return f.sources.Names()
}

// Fetch pulls up to limit events from the named source and stores the new
// ones. An empty name uses the default source and limit <= 0 the default
// limit.
func (f *Fetcher) Fetch(ctx context.Context, sourceName string, limit int) (*FetchResult, error) {
	if sourceName == "" {
		sourceName = f.cfg.DefaultSource
	}
	if limit <= 0 {
		limit = f.cfg.DefaultFetchLimit
	}
	if limit > MaxFetchLimit {
		limit = MaxFetchLimit
	}

	src, err := f.sources.Get(sourceName)
	if err != nil {
		return nil, err
	}

	sys, err := f.settings.GetSystemConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config: %w", err)
	}

	fetched, err := src.Fetch(ctx, limit)
	if err != nil {
		metrics.EventsIngested.WithLabelValues(sourceName, "error").Inc()
		return nil, fmt.Errorf("failed to fetch from %s: %w", sourceName, err)
	}

	res := FetchResult{Status: "success", Source: sourceName, Fetched: len(fetched)}
	for i := range fetched {
		fe := &fetched[i]
		if fe.Event.EventID == "" {
			res.Failed++
			continue
		}
		if f.seen.Contains(fe.Event.EventID) {
			res.Duplicates++
			metrics.CacheHits.WithLabelValues("ingest_dedup").Inc()
			continue
		}
		metrics.CacheMisses.WithLabelValues("ingest_dedup").Inc()

		if fe.Event.SIEMSource == "" {
			fe.Event.SIEMSource = sourceName
		}
		if sys.General.AutoTaggingEnabled {
			fe.Event.Labels.AutoTags = []string{fe.Event.SIEMSource}
		}

		inserted, err := f.events.InsertEvent(ctx, &fe.Event, fe.RawLogs)
		if err != nil {
			f.logger.Errorw("Failed to store fetched event", "event_id", fe.Event.EventID, "source", sourceName, "error", err)
			res.Failed++
			continue
		}
		f.seen.Add(fe.Event.EventID, struct{}{})
		if inserted {
			res.Imported++
		} else {
			res.Duplicates++
		}
	}

	metrics.EventsIngested.WithLabelValues(sourceName, "imported").Add(float64(res.Imported))
	metrics.EventsIngested.WithLabelValues(sourceName, "duplicate").Add(float64(res.Duplicates))
	if res.Failed > 0 {
		metrics.EventsIngested.WithLabelValues(sourceName, "failed").Add(float64(res.Failed))
	}

	f.logger.Infow("Fetched events",
		"source", sourceName,
		"fetched", res.Fetched,
		"imported", res.Imported,
		"duplicates", res.Duplicates,
		"failed", res.Failed)

	if f.OnFetched != nil {
		f.OnFetched(res)
	}
	return &res, nil
}

// Start runs scheduled fetches from the default source in the background
// when scheduling is enabled. The interval is re-read from system config
// before each wait.
func (f *Fetcher) Start(ctx context.Context) {
	if !f.cfg.ScheduleEnabled {
		f.logger.Infow("Scheduled fetch disabled")
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			timer := time.NewTimer(f.interval(ctx))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-f.stopCh:
				timer.Stop()
				return
			case <-timer.C:
				f.scheduledFetch(ctx)
			}
		}
	}()
	f.logger.Infow("Scheduled fetch started", "source", f.cfg.DefaultSource)
}

// Stop ends scheduled fetching and waits for an in-flight fetch.
func (f *Fetcher) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})
	f.wg.Wait()
}

func (f *Fetcher) interval(ctx context.Context) time.Duration {
	minutes := defaultRefreshMinutes
	if sys, err := f.settings.GetSystemConfig(ctx); err == nil && sys.General.RefreshIntervalMinutes > 0 {
		minutes = sys.General.RefreshIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (f *Fetcher) scheduledFetch(ctx context.Context) {
	if f.cfg.DefaultSource == DemoSourceName {
		sys, err := f.settings.GetSystemConfig(ctx)
		if err != nil {
			f.logger.Warnw("Skipping scheduled fetch, system config unreadable", "error", err)
			return
		}
		if !sys.General.DemoModeEnabled {
			f.logger.Debugw("Skipping scheduled demo fetch, demo mode is off")
			return
		}
	}
	if _, err := f.Fetch(ctx, "", 0); err != nil {
		f.logger.Errorw("Scheduled fetch failed", "source", f.cfg.DefaultSource, "error", err)
	}
}
