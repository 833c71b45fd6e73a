package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	BaseURL     string `toml:"base_url"`
	WSBaseURL   string `toml:"ws_base_url"`
	CacheFile   string `toml:"cache_file"`
	CredsFile   string `toml:"creds_file"`
	Env         string `toml:"env"`
	MetricsAddr string `toml:"metrics_addr"`

	ReconnectWaitRaw  string `toml:"reconnect_wait"`
	RequestTimeoutRaw string `toml:"request_timeout"`

	ReconnectWait  time.Duration `toml:"-"`
	RequestTimeout time.Duration `toml:"-"`
}

// Load builds the configuration: defaults, then the optional TOML file,
// then environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		CacheFile:         "talkie-cache.db",
		CredsFile:         "talkie-creds.db",
		Env:               "prod",
		ReconnectWaitRaw:  "3s",
		RequestTimeoutRaw: "30s",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.BaseURL = getEnv("TALKIE_BASE_URL", cfg.BaseURL)
	cfg.WSBaseURL = getEnv("TALKIE_WS_URL", cfg.WSBaseURL)
	cfg.CacheFile = getEnv("TALKIE_CACHE", cfg.CacheFile)
	cfg.CredsFile = getEnv("TALKIE_CREDS", cfg.CredsFile)
	cfg.Env = getEnv("TALKIE_ENV", cfg.Env)
	cfg.MetricsAddr = getEnv("TALKIE_METRICS_ADDR", cfg.MetricsAddr)
	cfg.ReconnectWaitRaw = getEnv("TALKIE_RECONNECT_WAIT", cfg.ReconnectWaitRaw)
	cfg.RequestTimeoutRaw = getEnv("TALKIE_TIMEOUT", cfg.RequestTimeoutRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required (TALKIE_BASE_URL)")
	}

	if c.WSBaseURL == "" {
		c.WSBaseURL = deriveWSURL(c.BaseURL)
	}

	var err error
	c.ReconnectWait, err = time.ParseDuration(c.ReconnectWaitRaw)
	if err != nil {
		return fmt.Errorf("bad reconnect wait: %w", err)
	}
	c.RequestTimeout, err = time.ParseDuration(c.RequestTimeoutRaw)
	if err != nil {
		return fmt.Errorf("bad request timeout: %w", err)
	}

	if c.ReconnectWait <= 0 {
		return fmt.Errorf("reconnect wait must be greater than 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}

	return nil
}

// deriveWSURL maps the REST base to the websocket endpoint when no explicit
// ws_base_url is configured.
func deriveWSURL(baseURL string) string {
	ws := baseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimRight(ws, "/") + "/ws"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
