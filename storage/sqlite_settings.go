package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"seclabel/core"
)

// SQLiteSettingsStorage implements SettingsStorage using SQLite.
// api_settings holds a single row with id 1; system_config holds one row per
// "section.key".
type SQLiteSettingsStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteSettingsStorage creates a new SQLite-based settings storage
func NewSQLiteSettingsStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteSettingsStorage {
	return &SQLiteSettingsStorage{sqlite: sqlite, logger: logger}
}

const apiConfigColumns = `wazuh_api_url, wazuh_api_key, splunk_api_url, splunk_api_key,
	elastic_api_url, elastic_api_key, ml_api_url, ml_api_key, updated_at`

func getAPIConfig(ctx context.Context, q rowQuerier) (*core.APIConfig, error) {
	var (
		cfg       core.APIConfig
		updatedAt string
	)
	err := q.QueryRowContext(ctx, "SELECT "+apiConfigColumns+" FROM api_settings WHERE id = 1").Scan(
		&cfg.WazuhAPIURL, &cfg.WazuhAPIKey,
		&cfg.SplunkAPIURL, &cfg.SplunkAPIKey,
		&cfg.ElasticAPIURL, &cfg.ElasticAPIKey,
		&cfg.MLAPIURL, &cfg.MLAPIKey, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get api settings: %w", err)
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	cfg.UpdatedAt = &t
	return &cfg, nil
}

// GetAPIConfig returns the stored integration settings with keys in clear.
// ErrConfigNotFound means nothing was ever saved.
func (s *SQLiteSettingsStorage) GetAPIConfig(ctx context.Context) (*core.APIConfig, error) {
	return getAPIConfig(ctx, s.sqlite.ReadDB)
}

// SaveAPIConfig upserts the settings row. Empty or masked keys keep the
// stored value. It returns the saved row.
func (s *SQLiteSettingsStorage) SaveAPIConfig(ctx context.Context, cfg *core.APIConfig) (*core.APIConfig, error) {
	var saved *core.APIConfig
	err := s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		stored, err := getAPIConfig(ctx, tx)
		switch {
		case errors.Is(err, ErrConfigNotFound):
			stored = &core.APIConfig{}
		case err != nil:
			return err
		}

		next := *cfg
		next.KeepStoredKeys(*stored)
		now := time.Now().UTC()
		next.UpdatedAt = &now

		_, err = tx.ExecContext(ctx, `
			INSERT INTO api_settings (id, `+apiConfigColumns+`)
			VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				wazuh_api_url = excluded.wazuh_api_url,
				wazuh_api_key = excluded.wazuh_api_key,
				splunk_api_url = excluded.splunk_api_url,
				splunk_api_key = excluded.splunk_api_key,
				elastic_api_url = excluded.elastic_api_url,
				elastic_api_key = excluded.elastic_api_key,
				ml_api_url = excluded.ml_api_url,
				ml_api_key = excluded.ml_api_key,
				updated_at = excluded.updated_at`,
			next.WazuhAPIURL, next.WazuhAPIKey,
			next.SplunkAPIURL, next.SplunkAPIKey,
			next.ElasticAPIURL, next.ElasticAPIKey,
			next.MLAPIURL, next.MLAPIKey, formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to save api settings: %w", err)
		}
		saved = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// GetSystemConfigRows returns every stored "section.key" value.
func (s *SQLiteSettingsStorage) GetSystemConfigRows(ctx context.Context) (map[string]string, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx, "SELECT config_key, config_value FROM system_config")
	if err != nil {
		return nil, fmt.Errorf("failed to read system config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan system config row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SaveSystemConfigRows upserts the given rows in one transaction.
func (s *SQLiteSettingsStorage) SaveSystemConfigRows(ctx context.Context, values map[string]string) error {
	now := formatTime(time.Now().UTC())
	return s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO system_config (config_key, config_value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(config_key) DO UPDATE SET config_value = excluded.config_value, updated_at = excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare system config upsert: %w", err)
		}
		defer stmt.Close()

		for k, v := range values {
			if _, err := stmt.ExecContext(ctx, k, v, now); err != nil {
				return fmt.Errorf("failed to save system config %s: %w", k, err)
			}
		}
		return nil
	})
}

// GetSystemConfig returns the stored config over the defaults.
func (s *SQLiteSettingsStorage) GetSystemConfig(ctx context.Context) (core.SystemConfig, error) {
	rows, err := s.GetSystemConfigRows(ctx)
	if err != nil {
		return core.DefaultSystemConfig(), err
	}
	return core.SystemConfigFromRows(rows), nil
}
