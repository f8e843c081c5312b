package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"seclabel/config"
	"seclabel/core"
	"seclabel/storage"

	"go.uber.org/zap"
)

// retentionInterval is how often the retention manager prunes old events.
const retentionInterval = 24 * time.Hour

// StorageComponents holds all storage-related components.
type StorageComponents struct {
	SQLite    *storage.SQLite
	Events    *storage.SQLiteEventStorage
	Dashboard *storage.SQLiteDashboardStorage
	Jobs      *storage.SQLiteExportJobStorage
	Users     *storage.SQLiteUserStorage
	Settings  *storage.SQLiteSettingsStorage
	MLMetrics *storage.SQLiteMLMetricsStorage
	Retention *storage.RetentionManager
}

// InitSQLite initializes SQLite connection.
func InitSQLite(dbPath string, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	sqlite, err := storage.NewSQLite(dbPath, sugar)
	if err != nil {
		errMsg := ClassifySQLiteError(err, dbPath)
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: SQLite Initialization Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", errMsg)
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	sugar.Infow("SQLite initialized successfully", "path", dbPath)
	return sqlite, nil
}

// InitStorage builds every SQLite-backed store on top of one connection.
func InitStorage(sqlite *storage.SQLite, sugar *zap.SugaredLogger) *StorageComponents {
	sc := &StorageComponents{
		SQLite:    sqlite,
		Events:    storage.NewSQLiteEventStorage(sqlite, sugar),
		Dashboard: storage.NewSQLiteDashboardStorage(sqlite, sugar),
		Jobs:      storage.NewSQLiteExportJobStorage(sqlite, sugar),
		Users:     storage.NewSQLiteUserStorage(sqlite, sugar),
		Settings:  storage.NewSQLiteSettingsStorage(sqlite, sugar),
		MLMetrics: storage.NewSQLiteMLMetricsStorage(sqlite, sugar),
	}
	sc.Retention = storage.NewRetentionManager(sc.Events, sc.Settings, retentionInterval, sugar)
	return sc
}

// InitRedis connects the optional dashboard cache. A nil cache is returned
// when Redis is disabled or unreachable; the server runs without it.
func InitRedis(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) *core.RedisCache {
	if !cfg.Redis.Enabled {
		sugar.Info("Redis cache disabled by configuration")
		return nil
	}

	cache := core.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, sugar)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		sugar.Warnf("Continuing without dashboard cache:\n%s", ClassifyConnectionError(err, cfg.Redis.Addr))
		_ = cache.Close()
		return nil
	}

	sugar.Infow("Connected to Redis", "addr", cfg.Redis.Addr, "stats_ttl", cfg.StatsTTL())
	return cache
}

// SeedIntegrationSecrets copies integration keys from the configured secret
// provider into the API settings row. Keys already saved through the console
// are never overwritten.
func SeedIntegrationSecrets(ctx context.Context, cfg *config.Config, settings storage.SettingsStorage, sugar *zap.SugaredLogger) error {
	manager, err := config.NewSecretManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	secrets, err := config.LoadIntegrationSecrets(manager)
	if err != nil {
		return err
	}
	if len(secrets) == 0 {
		return nil
	}

	current, err := settings.GetAPIConfig(ctx)
	switch {
	case errors.Is(err, storage.ErrConfigNotFound):
		current = &core.APIConfig{}
	case err != nil:
		return fmt.Errorf("failed to read api settings: %w", err)
	}

	var seeded []string
	for key, value := range secrets {
		name := strings.TrimSuffix(key, "_api_key")
		if _, existing := current.Endpoint(name); existing != "" || value == "" {
			continue
		}
		current.SetKey(name, value)
		seeded = append(seeded, name)
	}
	if len(seeded) == 0 {
		return nil
	}

	if _, err := settings.SaveAPIConfig(ctx, current); err != nil {
		return fmt.Errorf("failed to save seeded api keys: %w", err)
	}
	sugar.Infow("Seeded integration keys from secret provider",
		"provider", cfg.Secrets.Provider,
		"integrations", seeded)
	return nil
}
