// Package config loads the catalog-search configuration from a TOML file
// and the environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// DefaultFileName is looked up in the user config directory.
const DefaultFileName = "catalog-search.toml"

// Environment overrides.
const (
	EnvBaseURL     = "CATALOG_BASE_URL"
	EnvUserAgent   = "CATALOG_USER_AGENT"
	EnvRedisURL    = "REDIS_URL"
	EnvLogLevel    = "LOG_LEVEL"
	EnvMetricsAddr = "METRICS_ADDR"
)

type Config struct {
	Backend  BackendConfig  `toml:"backend"`
	Cache    CacheConfig    `toml:"cache"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Messages MessagesConfig `toml:"messages"`
}

type BackendConfig struct {
	BaseURL     string   `toml:"base_url"`
	UserAgent   string   `toml:"user_agent"`
	Timeout     Duration `toml:"timeout"`
	MaxAttempts int      `toml:"max_attempts"`
}

type CacheConfig struct {
	RedisAddr  string `toml:"redis_addr"`
	RedisDB    int    `toml:"redis_db"`
	ShareQuota bool   `toml:"share_quota"`
}

// Enabled reports whether a Redis address is configured.
func (c CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

type MessagesConfig struct {
	// HostUnreachable is shown when the catalog host cannot be resolved.
	HostUnreachable string `toml:"host_unreachable"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			UserAgent:   "catalog-search/dev",
			Timeout:     Duration{15 * time.Second},
			MaxAttempts: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// DefaultPath returns the config file path in the user config directory.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("getting user config directory: %w", err)
	}
	return filepath.Join(configDir, "catalog-search", DefaultFileName), nil
}

// Load reads configPath, falling back to defaults when the file does not
// exist, then applies environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("unmarshaling config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Backend.Timeout.Duration <= 0 {
		cfg.Backend.Timeout = Duration{15 * time.Second}
	}
	if cfg.Backend.MaxAttempts <= 0 {
		cfg.Backend.MaxAttempts = 3
	}

	return cfg, nil
}

// applyEnv overrides file settings with non-empty environment variables.
// REDIS_URL takes a redis:// URL; its path selects the database.
func (c *Config) applyEnv() error {
	c.Backend.BaseURL = getEnv(EnvBaseURL, c.Backend.BaseURL)
	c.Backend.UserAgent = getEnv(EnvUserAgent, c.Backend.UserAgent)
	c.Log.Level = getEnv(EnvLogLevel, c.Log.Level)
	c.Metrics.Addr = getEnv(EnvMetricsAddr, c.Metrics.Addr)

	if raw := os.Getenv(EnvRedisURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid %s %q", EnvRedisURL, raw)
		}
		c.Cache.RedisAddr = u.Host
		if db := u.Path; len(db) > 1 {
			n, err := strconv.Atoi(db[1:])
			if err != nil {
				return fmt.Errorf("invalid database in %s: %w", EnvRedisURL, err)
			}
			c.Cache.RedisDB = n
		}
	}

	return nil
}

// Validate checks the settings needed to talk to a backend.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required (or set %s)", EnvBaseURL)
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL)
	}
	if c.Backend.UserAgent == "" {
		return fmt.Errorf("backend.user_agent is required")
	}
	if c.Cache.RedisDB < 0 {
		return fmt.Errorf("cache.redis_db must be >= 0")
	}
	if c.Cache.ShareQuota && !c.Cache.Enabled() {
		return fmt.Errorf("cache.share_quota requires cache.redis_addr")
	}
	return nil
}

// SaveTemplate writes the annotated sample configuration to configPath.
func SaveTemplate(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(configPath, []byte(configTemplate), 0644)
}

// getEnv returns the environment variable or defaultValue if unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
