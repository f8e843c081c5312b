package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"seclabel/metrics"
)

// RetentionManager deletes events older than general.data_retention_days.
// The retention period is re-read from system config on every run so console
// edits apply without a restart.
type RetentionManager struct {
	events        EventStorage
	settings      SettingsStorage
	checkInterval time.Duration
	logger        *zap.SugaredLogger
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewRetentionManager creates a new retention manager
func NewRetentionManager(events EventStorage, settings SettingsStorage, checkInterval time.Duration, logger *zap.SugaredLogger) *RetentionManager {
	if checkInterval <= 0 {
		checkInterval = 24 * time.Hour
	}
	return &RetentionManager{
		events:        events,
		settings:      settings,
		checkInterval: checkInterval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start runs a cleanup immediately and then once per check interval.
func (rm *RetentionManager) Start() {
	rm.wg.Add(1)
	go rm.run()
}

func (rm *RetentionManager) run() {
	defer rm.wg.Done()

	ticker := time.NewTicker(rm.checkInterval)
	defer ticker.Stop()

	rm.cleanup()
	for {
		select {
		case <-ticker.C:
			rm.cleanup()
		case <-rm.stopCh:
			return
		}
	}
}

// Stop stops the retention manager and waits for a running cleanup.
func (rm *RetentionManager) Stop() {
	rm.stopOnce.Do(func() { close(rm.stopCh) })
	rm.wg.Wait()
}

func (rm *RetentionManager) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := rm.RunOnce(ctx, time.Now().UTC()); err != nil {
		rm.logger.Errorf("Failed to cleanup old events: %v", err)
	}
}

// RunOnce deletes events older than the configured retention relative to now.
// A retention of zero or less disables cleanup.
func (rm *RetentionManager) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	cfg, err := rm.settings.GetSystemConfig(ctx)
	if err != nil {
		return 0, err
	}
	days := cfg.General.DataRetentionDays
	if days <= 0 {
		rm.logger.Debug("Data retention disabled")
		return 0, nil
	}

	cutoff := now.AddDate(0, 0, -days)
	deleted, err := rm.events.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		metrics.EventsPurged.Add(float64(deleted))
		rm.logger.Infow("Data retention cleanup completed", "deleted", deleted, "retention_days", days)
	}
	return deleted, nil
}
