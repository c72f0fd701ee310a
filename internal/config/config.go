// Package config loads client configuration via viper.
//
// Precedence: explicit flags > TASKMIRROR_* environment variables > the
// config file (~/.taskmirror/config.yaml by default) > built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved client configuration.
type Config struct {
	// RemoteURL is the task store endpoint.
	RemoteURL string `mapstructure:"remote_url"`
	// ScoringURL is the websocket endpoint for visibility updates.
	ScoringURL string `mapstructure:"scoring_url"`
	// Token authenticates against both endpoints.
	Token string `mapstructure:"token"`
	// UserID identifies the syncing user; keys the persisted flags.
	UserID string `mapstructure:"user_id"`

	// DataDir holds the cache database and settings file.
	DataDir string `mapstructure:"data_dir"`
	// LogFile, when set, routes logs through rotation instead of stderr.
	LogFile string `mapstructure:"log_file"`

	PageSize        int           `mapstructure:"page_size"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	// CreatedWindowDays is the creation-date floor for partition queries,
	// as a lookback in days. Zero disables the floor.
	CreatedWindowDays int `mapstructure:"created_window_days"`
}

// CreatedWindow returns the lookback as a duration.
func (c *Config) CreatedWindow() time.Duration {
	return time.Duration(c.CreatedWindowDays) * 24 * time.Hour
}

// CachePath returns the cache database location.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// SettingsPath returns the persisted flags file location.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// Load reads configuration from the given file (empty means the default
// location), the environment, and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	v.SetDefault("remote_url", "")
	v.SetDefault("scoring_url", "")
	v.SetDefault("user_id", "default")
	v.SetDefault("data_dir", filepath.Join(home, ".taskmirror"))
	v.SetDefault("page_size", 100)
	v.SetDefault("refresh_interval", 30*time.Second)
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("created_window_days", 30)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(home, ".taskmirror"))
	}

	v.SetEnvPrefix("TASKMIRROR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
