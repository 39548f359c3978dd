package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// ServerConfig configures the HTTP control plane.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // local, production
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig tunes the run execution engine.
type EngineConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`       // adapter call retries after the first attempt (default 3)
	RetryBaseWait   time.Duration `mapstructure:"retry_base_wait"`   // first backoff delay, doubled per retry (default 1s)
	EventBufferSize int           `mapstructure:"event_buffer_size"` // per-subscriber mailbox size (default 256)
}

// Load reads configuration in layers, lowest priority first:
// defaults → global ~/.evalgate/config.yaml → project-local ./config.yaml →
// EVALGATE_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Global config ~/.evalgate/config.yaml (API hosts, database location)
	globalDir := filepath.Join(os.Getenv("HOME"), ".evalgate")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
	}

	// Project-local overlay: ./config/config.yaml or ./config.yaml
	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	v.SetEnvPrefix("EVALGATE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "local")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", filepath.Join("apps", "api", "var", "data.sqlite"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.retry_base_wait", time.Second)
	v.SetDefault("engine.event_buffer_size", 256)
}
