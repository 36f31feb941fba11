package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transport names accepted by realtime.transport.
const (
	TransportSocketIO = "socketio"
	TransportRedis    = "redis"
	TransportNone     = "none"
)

// Config holds all configuration for novadash.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// APIConfig holds the REST API settings.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RealtimeConfig holds push channel settings.
type RealtimeConfig struct {
	Transport   string        `mapstructure:"transport"`
	URL         string        `mapstructure:"url"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// RedisConfig is used when realtime.transport is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// ChannelPrefix is prepended to topic names, e.g. "novadash:".
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// MetricsConfig holds the optional Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// DashboardConfig points at the web dashboard for "open in browser".
type DashboardConfig struct {
	WebURL string `mapstructure:"web_url"`
}

// Dir returns ~/.novadash.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".novadash"), nil
}

// Load reads configuration from an optional config file, NOVADASH_* env vars
// and defaults. An explicit path must exist; otherwise config.yaml is looked
// up in the working directory and ~/.novadash.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NOVADASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config.Load: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.Log.File == "" {
		if dir, err := Dir(); err == nil {
			cfg.Log.File = filepath.Join(dir, "novadash.log")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:4000")
	v.SetDefault("api.timeout", "12s")

	v.SetDefault("realtime.transport", TransportSocketIO)
	v.SetDefault("realtime.url", "")
	v.SetDefault("realtime.dial_timeout", "10s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "")

	v.SetDefault("log.env", "production")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("dashboard.web_url", "")
}

// Validate rejects settings the sync layer cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url %q must be an http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.Realtime.DialTimeout <= 0 {
		return fmt.Errorf("realtime.dial_timeout must be positive, got %s", c.Realtime.DialTimeout)
	}
	switch c.Realtime.Transport {
	case TransportSocketIO, TransportRedis, TransportNone:
	default:
		return fmt.Errorf("realtime.transport %q must be one of socketio, redis, none", c.Realtime.Transport)
	}
	return nil
}

// RealtimeURL is the push channel origin, defaulting to the API base URL.
func (c *Config) RealtimeURL() string {
	if c.Realtime.URL != "" {
		return c.Realtime.URL
	}
	return c.API.BaseURL
}

// WebURL is the web dashboard origin, defaulting to the API base URL.
func (c *Config) WebURL() string {
	if c.Dashboard.WebURL != "" {
		return strings.TrimRight(c.Dashboard.WebURL, "/")
	}
	return strings.TrimRight(c.API.BaseURL, "/")
}
