// Package config loads planner configuration from an optional YAML file,
// PLANNER_* environment overrides, and built-in defaults, in that order of
// precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DatabasePath string `mapstructure:"database_path"`
	DayStartHour int    `mapstructure:"day_start_hour"`

	Remote RemoteConfig `mapstructure:"remote"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Queue  QueueConfig  `mapstructure:"queue"`
	Log    LogConfig    `mapstructure:"log"`
}

type RemoteConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type SyncConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	BatchLimit      int `mapstructure:"batch_limit"`
	MaxRetries      int `mapstructure:"max_retries"`
}

type CacheConfig struct {
	MaxBytes      int64 `mapstructure:"max_bytes"`
	RetentionDays int   `mapstructure:"retention_days"`
}

type QueueConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_path", ".homeplanner/planner.db")
	v.SetDefault("day_start_hour", 4)
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout_seconds", 30)
	v.SetDefault("sync.interval_seconds", 300)
	v.SetDefault("sync.batch_limit", 50)
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("cache.max_bytes", int64(20*1024*1024))
	v.SetDefault("cache.retention_days", 7)
	v.SetDefault("queue.max_bytes", int64(5*1024*1024))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply. A missing file at an explicit path is an
// error; any other read failure is surfaced as-is.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PLANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DayStartHour < 0 || c.DayStartHour > 23 {
		return fmt.Errorf("config: day_start_hour %d out of range", c.DayStartHour)
	}
	if c.Cache.MaxBytes <= 0 {
		return errors.New("config: cache.max_bytes must be positive")
	}
	if c.Queue.MaxBytes <= 0 {
		return errors.New("config: queue.max_bytes must be positive")
	}
	if c.Sync.BatchLimit <= 0 {
		return errors.New("config: sync.batch_limit must be positive")
	}
	return nil
}

func (c Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

func (c Config) Retention() time.Duration {
	return time.Duration(c.Cache.RetentionDays) * 24 * time.Hour
}
