// Package config loads application configuration from environment
// variables (with defaults) via viper, matching spec.md's env-var
// contract.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full set of tunables spec.md §6 names.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Probe  ProbeConfig  `mapstructure:"probe"`
	Log    LogConfig    `mapstructure:"log"`
	Data   DataConfig   `mapstructure:"data"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig holds the admin-login and session tunables.
type AuthConfig struct {
	AdminPassword      string `mapstructure:"admin_password"`
	SessionExpireHours int    `mapstructure:"session_expire_hours"`
	LoginLockoutMinutes int   `mapstructure:"login_lockout_minutes"`
	MaxLoginAttempts   int    `mapstructure:"max_login_attempts"`
}

// ProbeConfig holds monitor scheduling and execution tunables.
type ProbeConfig struct {
	DefaultMonitorInterval int `mapstructure:"default_monitor_interval"`
	MinMonitorInterval     int `mapstructure:"min_monitor_interval"`
	MaxMonitorInterval     int `mapstructure:"max_monitor_interval"`
	HistoryRetentionDays   int `mapstructure:"history_retention_days"`
	MaxConcurrentMonitors  int `mapstructure:"max_concurrent_monitors"`
	RequestTimeoutMs       int `mapstructure:"request_timeout_ms"`
}

// LogConfig holds structured-logging tunables.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DataConfig holds the KV store file location.
type DataConfig struct {
	Path string `mapstructure:"path"`
}

// Load binds every spec.md §6 environment variable (with its default)
// and returns a validated Config.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnv(v, "server.port", "PORT")
	bindEnv(v, "auth.admin_password", "ADMIN_PASSWORD")
	bindEnv(v, "auth.session_expire_hours", "SESSION_EXPIRE_HOURS")
	bindEnv(v, "auth.login_lockout_minutes", "LOGIN_LOCKOUT_MINUTES")
	bindEnv(v, "auth.max_login_attempts", "MAX_LOGIN_ATTEMPTS")
	bindEnv(v, "probe.default_monitor_interval", "DEFAULT_MONITOR_INTERVAL")
	bindEnv(v, "probe.min_monitor_interval", "MIN_MONITOR_INTERVAL")
	bindEnv(v, "probe.max_monitor_interval", "MAX_MONITOR_INTERVAL")
	bindEnv(v, "probe.history_retention_days", "HISTORY_RETENTION_DAYS")
	bindEnv(v, "probe.max_concurrent_monitors", "MAX_CONCURRENT_MONITORS")
	bindEnv(v, "probe.request_timeout_ms", "REQUEST_TIMEOUT")
	bindEnv(v, "log.level", "LOG_LEVEL")
	bindEnv(v, "data.path", "DATA_PATH")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func bindEnv(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("auth.admin_password", "admin123")
	v.SetDefault("auth.session_expire_hours", 24)
	v.SetDefault("auth.login_lockout_minutes", 15)
	v.SetDefault("auth.max_login_attempts", 5)
	v.SetDefault("probe.default_monitor_interval", 1)
	v.SetDefault("probe.min_monitor_interval", 1)
	v.SetDefault("probe.max_monitor_interval", 60)
	v.SetDefault("probe.history_retention_days", 30)
	v.SetDefault("probe.max_concurrent_monitors", 10)
	v.SetDefault("probe.request_timeout_ms", 30000)
	v.SetDefault("log.level", "info")
	v.SetDefault("data.path", "./data/sitepulse.db")
}

// Validate checks the loaded configuration is internally consistent
// before the composition root acts on it.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Probe.MinMonitorInterval <= 0 {
		return fmt.Errorf("min_monitor_interval must be positive")
	}
	if c.Probe.MaxMonitorInterval < c.Probe.MinMonitorInterval {
		return fmt.Errorf("max_monitor_interval must be >= min_monitor_interval")
	}
	if c.Probe.DefaultMonitorInterval < c.Probe.MinMonitorInterval || c.Probe.DefaultMonitorInterval > c.Probe.MaxMonitorInterval {
		return fmt.Errorf("default_monitor_interval must be within [min,max]")
	}
	if c.Probe.MaxConcurrentMonitors <= 0 {
		return fmt.Errorf("max_concurrent_monitors must be positive")
	}
	if c.Probe.RequestTimeoutMs <= 0 {
		return fmt.Errorf("request_timeout_ms must be positive")
	}
	if c.Auth.AdminPassword == "" {
		return fmt.Errorf("admin_password cannot be empty")
	}
	if c.Data.Path == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	return nil
}

// ValidateURL reports whether raw parses as an absolute http(s) URL,
// the same check the monitor-create/update validation contract (§4.8)
// requires before accepting a MonitorConfig.
func ValidateURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
