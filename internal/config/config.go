package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xZoluGames/skinarb/internal/errs"
)

// Settings holds the global knobs read from settings.yaml.
type Settings struct {
	TimeoutSeconds        int     `yaml:"timeout_seconds"`
	MaxRetries            int     `yaml:"max_retries"`
	RetryBackoffMS        int     `yaml:"retry_backoff_ms"`
	RetryBackoffCapMS     int     `yaml:"retry_backoff_cap_ms"`
	MaxConnections        int     `yaml:"max_connections"`
	MaxConnectionsPerHost int     `yaml:"max_connections_per_host"`
	UseProxy              bool    `yaml:"use_proxy"`
	ProxyPools            int     `yaml:"proxy_pools"`
	ProxiesPerPool        int     `yaml:"proxies_per_pool"`
	CacheEnabled          bool    `yaml:"cache_enabled"`
	CacheMemoryLimit      int     `yaml:"cache_memory_limit"`
	CacheTTLSeconds       int     `yaml:"cache_ttl_seconds"`
	CacheRedisAddr        string  `yaml:"cache_redis_addr"`
	MinConcurrency        int     `yaml:"min_concurrency"`
	MaxConcurrency        int     `yaml:"max_concurrency"`
	AdapterTimeoutSeconds int     `yaml:"adapter_timeout_seconds"`
	SteamMaxConcurrent    int     `yaml:"steam_max_concurrent"`
	MinProfitPercentage   float64 `yaml:"min_profit_percentage"`
	MinPrice              float64 `yaml:"min_price"`
	MaxResults            int     `yaml:"max_results"`
	HistoryDSN            string  `yaml:"history_dsn"`
	LogLevel              string  `yaml:"log_level"`
}

// Scraper holds per-venue overrides read from scrapers.yaml. Zero values
// fall back to the defaults applied in Scraper().
type Scraper struct {
	Enabled         *bool             `yaml:"enabled"`
	IntervalSeconds int               `yaml:"interval_seconds"`
	RatePerMinute   int               `yaml:"rate_per_minute"`
	Burst           int               `yaml:"burst"`
	UseProxy        *bool             `yaml:"use_proxy"`
	TimeoutSeconds  int               `yaml:"timeout_seconds"`
	MaxRetries      int               `yaml:"max_retries"`
	MaxConcurrent   int               `yaml:"max_concurrent"`
	RequiresAPIKey  bool              `yaml:"requires_api_key"`
	Antibot         bool              `yaml:"antibot"`
	Dynamic         bool              `yaml:"dynamic"`
	ConversionRate  float64           `yaml:"conversion_rate"`
	BonusRate       float64           `yaml:"bonus_rate"`
	Headers         map[string]string `yaml:"headers"`
}

// FilterPreset is a named opportunity filter from search_filters.yaml.
type FilterPreset struct {
	MinProfitPercentage float64  `yaml:"min_profit_percentage"`
	MinPrice            float64  `yaml:"min_price"`
	MaxPrice            float64  `yaml:"max_price"`
	MaxResults          int      `yaml:"max_results"`
	Platforms           []string `yaml:"platforms"`
	Query               string   `yaml:"query"`
}

// Config is the full parsed configuration tree.
type Config struct {
	Settings Settings                `yaml:"settings"`
	Scrapers map[string]Scraper      `yaml:"scrapers"`
	Presets  map[string]FilterPreset `yaml:"presets"`
}

func defaults() Settings {
	return Settings{
		TimeoutSeconds:        30,
		MaxRetries:            3,
		RetryBackoffMS:        1000,
		RetryBackoffCapMS:     30000,
		MaxConnections:        100,
		MaxConnectionsPerHost: 30,
		UseProxy:              false,
		ProxyPools:            5,
		ProxiesPerPool:        1000,
		CacheEnabled:          true,
		CacheMemoryLimit:      10000,
		CacheTTLSeconds:       300,
		MinConcurrency:        2,
		MaxConcurrency:        32,
		AdapterTimeoutSeconds: 600,
		SteamMaxConcurrent:    5,
		MinProfitPercentage:   0.01,
		MinPrice:              1.0,
		MaxResults:            100,
		LogLevel:              "info",
	}
}

// Load reads settings.yaml, scrapers.yaml and search_filters.yaml from dir.
// Missing files are fine; malformed ones are a config error. Environment
// toggles BOT_USE_PROXY, BOT_CACHE_ENABLED and BOT_LOG_LEVEL win over file
// values.
func Load(dir string) (*Config, error) {
	cfg := &Config{
		Settings: defaults(),
		Scrapers: map[string]Scraper{},
		Presets:  map[string]FilterPreset{},
	}

	if err := readYAML(dir+"/settings.yaml", &struct {
		Settings *Settings `yaml:"settings"`
	}{&cfg.Settings}); err != nil {
		return nil, err
	}
	if err := readYAML(dir+"/scrapers.yaml", &struct {
		Scrapers map[string]Scraper `yaml:"scrapers"`
	}{cfg.Scrapers}); err != nil {
		return nil, err
	}
	if err := readYAML(dir+"/search_filters.yaml", &struct {
		Presets map[string]FilterPreset `yaml:"presets"`
	}{cfg.Presets}); err != nil {
		return nil, err
	}

	applyEnv(&cfg.Settings)
	return cfg, nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.KindConfig, "", err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return errs.Wrap(errs.KindConfig, "", fmt.Errorf("%s: %w", path, err))
	}
	return nil
}

func applyEnv(s *Settings) {
	if v, ok := boolEnv("BOT_USE_PROXY"); ok {
		s.UseProxy = v
	}
	if v, ok := boolEnv("BOT_CACHE_ENABLED"); ok {
		s.CacheEnabled = v
	}
	if v := os.Getenv("BOT_LOG_LEVEL"); v != "" {
		s.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("SKINARB_PG_DSN"); v != "" {
		s.HistoryDSN = v
	}
	if v := os.Getenv("BOT_CACHE_REDIS_ADDR"); v != "" {
		s.CacheRedisAddr = v
	}
}

func boolEnv(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Scraper returns the effective per-venue configuration, merged with the
// global defaults.
func (c *Config) Scraper(venue string) Scraper {
	sc := c.Scrapers[venue]
	if sc.RatePerMinute <= 0 {
		sc.RatePerMinute = 60
	}
	if sc.Burst <= 0 {
		sc.Burst = 10
	}
	if sc.TimeoutSeconds <= 0 {
		sc.TimeoutSeconds = c.Settings.TimeoutSeconds
	}
	if sc.MaxRetries <= 0 {
		sc.MaxRetries = c.Settings.MaxRetries
	}
	if sc.MaxConcurrent <= 0 {
		sc.MaxConcurrent = 5
	}
	if sc.IntervalSeconds <= 0 {
		sc.IntervalSeconds = 3600
	}
	return sc
}

// Enabled reports whether a venue adapter is switched on. Adapters default
// to enabled unless scrapers.yaml says otherwise.
func (c *Config) Enabled(venue string) bool {
	sc, ok := c.Scrapers[venue]
	if !ok || sc.Enabled == nil {
		return true
	}
	return *sc.Enabled
}

// UseProxyFor resolves the per-venue proxy flag against the global one.
func (c *Config) UseProxyFor(venue string) bool {
	if sc, ok := c.Scrapers[venue]; ok && sc.UseProxy != nil {
		return *sc.UseProxy
	}
	return c.Settings.UseProxy
}

// RequestTimeout is the per-attempt timeout for a venue.
func (c *Config) RequestTimeout(venue string) time.Duration {
	return time.Duration(c.Scraper(venue).TimeoutSeconds) * time.Second
}
