package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DataPaths holds all data directory and file path configuration
// These paths can be overridden via environment variables
type DataPaths struct {
	// DataDir is the base data directory (SECLABEL_DATA_DIR, default: ./data)
	DataDir string `mapstructure:"data_dir"`
	// SQLitePath is the SQLite database file path (SECLABEL_SQLITE_PATH, default: ${DataDir}/seclabel.db)
	SQLitePath string `mapstructure:"sqlite_path"`
	// ExportDir is where export job files are written (SECLABEL_EXPORT_DIR, default: ${DataDir}/exports)
	ExportDir string `mapstructure:"export_dir"`
}

// FileSourceConfig registers an NDJSON spool file as a fetch source.
type FileSourceConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

// Config holds all configuration for the labeling server
type Config struct {
	DataPaths DataPaths `mapstructure:"data_paths"`

	Server struct {
		Host            string   `mapstructure:"host"`
		Port            int      `mapstructure:"port"`
		ReadTimeout     int      `mapstructure:"read_timeout"`  // seconds
		WriteTimeout    int      `mapstructure:"write_timeout"` // seconds
		AllowedOrigins  []string `mapstructure:"allowed_origins"`
		MaxBodyBytes    int64    `mapstructure:"max_body_bytes"`
		RateLimitRPS    float64  `mapstructure:"rate_limit_rps"`
		RateLimitBurst  int      `mapstructure:"rate_limit_burst"`
		ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // seconds
	} `mapstructure:"server"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"pool_size"`
		StatsTTL int    `mapstructure:"stats_ttl"` // seconds
	} `mapstructure:"redis"`

	Export struct {
		Workers   int `mapstructure:"workers"`
		QueueSize int `mapstructure:"queue_size"`
	} `mapstructure:"export"`

	Ingest struct {
		ScheduleEnabled   bool               `mapstructure:"schedule_enabled"`
		DedupCacheSize    int                `mapstructure:"dedup_cache_size"`
		DefaultFetchLimit int                `mapstructure:"default_fetch_limit"`
		DefaultSource     string             `mapstructure:"default_source"`
		FileSources       []FileSourceConfig `mapstructure:"file_sources"`
	} `mapstructure:"ingest"`

	ML struct {
		CacheSize      int `mapstructure:"cache_size"`
		CacheTTL       int `mapstructure:"cache_ttl"`       // minutes
		RequestTimeout int `mapstructure:"request_timeout"` // seconds
	} `mapstructure:"ml"`

	Secrets struct {
		Provider string `mapstructure:"provider"` // env, vault, aws
		Vault    struct {
			Address string `mapstructure:"address"`
			Token   string `mapstructure:"token"`
			Path    string `mapstructure:"path"`
		} `mapstructure:"vault"`
		AWS struct {
			Region    string `mapstructure:"region"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
			SecretID  string `mapstructure:"secret_id"`
		} `mapstructure:"aws"`
	} `mapstructure:"secrets"`
}

func setDefaults() {
	// Base directory - all other paths derive from this by default
	viper.SetDefault("data_paths.data_dir", "./data")
	viper.SetDefault("data_paths.sqlite_path", "") // Empty = derive from data_dir
	viper.SetDefault("data_paths.export_dir", "")  // Empty = derive from data_dir

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 5000)
	viper.SetDefault("server.read_timeout", 15)
	viper.SetDefault("server.write_timeout", 60)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.max_body_bytes", 1<<20)
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.rate_limit_burst", 40)
	viper.SetDefault("server.shutdown_timeout", 5)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.stats_ttl", 30)

	viper.SetDefault("export.workers", 2)
	viper.SetDefault("export.queue_size", 64)

	viper.SetDefault("ingest.schedule_enabled", false)
	viper.SetDefault("ingest.dedup_cache_size", 10000)
	viper.SetDefault("ingest.default_fetch_limit", 50)
	viper.SetDefault("ingest.default_source", "demo")

	viper.SetDefault("ml.cache_size", 1000)
	viper.SetDefault("ml.cache_ttl", 60)
	viper.SetDefault("ml.request_timeout", 30)

	viper.SetDefault("secrets.provider", "env")
	viper.SetDefault("secrets.vault.path", "secret/seclabel")
	viper.SetDefault("secrets.aws.secret_id", "seclabel/secrets")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("SECLABEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicit bindings for path settings so the short names work
	_ = viper.BindEnv("data_paths.data_dir", "SECLABEL_DATA_DIR")
	_ = viper.BindEnv("data_paths.sqlite_path", "SECLABEL_SQLITE_PATH")
	_ = viper.BindEnv("data_paths.export_dir", "SECLABEL_EXPORT_DIR")
	_ = viper.BindEnv("server.port", "SECLABEL_PORT")
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config.ResolveDataPaths()

	return &config, nil
}

// ResolveDataPaths derives unset paths from DataDir
func (c *Config) ResolveDataPaths() {
	dataDir := c.DataPaths.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}

	if c.DataPaths.SQLitePath == "" {
		c.DataPaths.SQLitePath = filepath.Join(dataDir, "seclabel.db")
	} else if c.DataPaths.SQLitePath != ":memory:" && !filepath.IsAbs(c.DataPaths.SQLitePath) {
		c.DataPaths.SQLitePath = filepath.Clean(c.DataPaths.SQLitePath)
	}

	if c.DataPaths.ExportDir == "" {
		c.DataPaths.ExportDir = filepath.Join(dataDir, "exports")
	} else if !filepath.IsAbs(c.DataPaths.ExportDir) {
		c.DataPaths.ExportDir = filepath.Clean(c.DataPaths.ExportDir)
	}

	c.DataPaths.DataDir = dataDir
}

// GetDataDir returns the resolved base data directory
func (c *Config) GetDataDir() string {
	if c.DataPaths.DataDir == "" {
		return "./data"
	}
	return c.DataPaths.DataDir
}

// GetSQLitePath returns the resolved SQLite database path
func (c *Config) GetSQLitePath() string {
	if c.DataPaths.SQLitePath == "" {
		return filepath.Join(c.GetDataDir(), "seclabel.db")
	}
	return c.DataPaths.SQLitePath
}

// GetExportDir returns the resolved export directory
func (c *Config) GetExportDir() string {
	if c.DataPaths.ExportDir == "" {
		return filepath.Join(c.GetDataDir(), "exports")
	}
	return c.DataPaths.ExportDir
}

// ListenAddr returns host:port for the HTTP server
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, fmt.Sprintf("%d", c.Server.Port))
}

// ReadTimeout returns the server read timeout as a duration
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeout) * time.Second
}

// WriteTimeout returns the server write timeout as a duration
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeout) * time.Second
}

// StatsTTL returns how long dashboard aggregates stay cached
func (c *Config) StatsTTL() time.Duration {
	if c.Redis.StatsTTL <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Redis.StatsTTL) * time.Second
}

// MLCacheTTL returns how long ML classification results stay cached
func (c *Config) MLCacheTTL() time.Duration {
	if c.ML.CacheTTL <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.ML.CacheTTL) * time.Minute
}

// validateConfig validates the configuration for correctness
func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d: must be between 1 and 65535", config.Server.Port)
	}
	if config.Server.Host != "" && config.Server.Host != "localhost" && net.ParseIP(config.Server.Host) == nil {
		return fmt.Errorf("invalid server host %q: must be an IP address or localhost", config.Server.Host)
	}
	if config.Server.RateLimitRPS < 0 || config.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings cannot be negative")
	}
	if config.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}

	if config.Redis.Enabled {
		if _, _, err := net.SplitHostPort(config.Redis.Addr); err != nil {
			return fmt.Errorf("invalid redis address %q: %w", config.Redis.Addr, err)
		}
	}

	if config.Export.Workers < 1 {
		return fmt.Errorf("export.workers must be at least 1")
	}
	if config.Export.QueueSize < 1 {
		return fmt.Errorf("export.queue_size must be at least 1")
	}

	if config.Ingest.DedupCacheSize < 1 {
		return fmt.Errorf("ingest.dedup_cache_size must be at least 1")
	}
	seen := make(map[string]bool)
	for _, fs := range config.Ingest.FileSources {
		if fs.Name == "" || fs.Path == "" {
			return fmt.Errorf("ingest.file_sources entries need both name and path")
		}
		if seen[fs.Name] {
			return fmt.Errorf("duplicate ingest file source %q", fs.Name)
		}
		seen[fs.Name] = true
	}
	if config.ML.CacheSize < 1 {
		return fmt.Errorf("ml.cache_size must be at least 1")
	}

	switch config.Secrets.Provider {
	case "", "env", "vault", "aws":
	default:
		return fmt.Errorf("unsupported secret provider: %s", config.Secrets.Provider)
	}

	return nil
}
