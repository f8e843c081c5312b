package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// WatchConfig re-reads the config file whenever it changes and hands the
// decoded result to onChange. Invalid files are logged and ignored.
// It is a no-op when no config file was found at load time.
func WatchConfig(logger *zap.SugaredLogger, onChange func(*Config)) bool {
	if viper.ConfigFileUsed() == "" {
		return false
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		var cfg Config
		if err := viper.Unmarshal(&cfg); err != nil {
			logger.Warnw("Ignoring config change: decode failed", "file", e.Name, "error", err)
			return
		}
		if err := validateConfig(&cfg); err != nil {
			logger.Warnw("Ignoring config change: validation failed", "file", e.Name, "error", err)
			return
		}
		cfg.ResolveDataPaths()

		logger.Infow("Config file changed", "file", e.Name)
		onChange(&cfg)
	})
	viper.WatchConfig()
	return true
}
