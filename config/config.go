package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/usagecast/usagecast/core/metrics"
)

// StoreConfig selects the configuration backend. At most one of File and
// SQLitePath may be set; neither means an empty in-memory store.
type StoreConfig struct {
	File       string `json:"file"`
	SQLitePath string `json:"sqlite_path"`
}

// MQTTConfig is the global retry policy of the MQTT transport.
type MQTTConfig struct {
	MaxRetries      int `json:"max_retries"`
	RetryDelayMs    int `json:"retry_delay_ms"`
	SweepIntervalMs int `json:"sweep_interval_ms"`
}

// WebhookConfig paces the webhook retry queue; per-destination retry budgets
// live on the webhook bindings themselves.
type WebhookConfig struct {
	SweepIntervalMs int `json:"sweep_interval_ms"`
}

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}

type Config struct {
	Store   StoreConfig    `json:"store"`
	MQTT    MQTTConfig     `json:"mqtt"`
	Webhook WebhookConfig  `json:"webhook"`
	Metrics metrics.Config `json:"metrics"`
	API     APIConfig      `json:"api"`
}

// SetDefaults applies the stock retry policy and listen addresses.
func (c *Config) SetDefaults() {
	if c.MQTT.MaxRetries == 0 {
		c.MQTT.MaxRetries = 3
	}
	if c.MQTT.RetryDelayMs == 0 {
		c.MQTT.RetryDelayMs = 5000
	}
	if c.MQTT.SweepIntervalMs == 0 {
		c.MQTT.SweepIntervalMs = 5000
	}
	if c.Webhook.SweepIntervalMs == 0 {
		c.Webhook.SweepIntervalMs = 5000
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8099"
	}
	c.Metrics.SetDefaults()
}

// Validate rejects nonsensical values.
func (c *Config) Validate() error {
	if c.Store.File != "" && c.Store.SQLitePath != "" {
		return fmt.Errorf("store: file and sqlite_path are mutually exclusive")
	}
	if c.MQTT.MaxRetries < 0 {
		return fmt.Errorf("mqtt: max_retries must not be negative")
	}
	if c.MQTT.RetryDelayMs < 0 || c.MQTT.SweepIntervalMs < 0 {
		return fmt.Errorf("mqtt: delays must not be negative")
	}
	if c.Webhook.SweepIntervalMs < 0 {
		return fmt.Errorf("webhook: sweep_interval_ms must not be negative")
	}
	if c.Metrics.InfluxEnabled && c.Metrics.InfluxURL == "" {
		return fmt.Errorf("metrics: influx_url required when influx is enabled")
	}
	return nil
}

// Load reads a yaml or json configuration file, applies U_-prefixed
// environment overrides (U_MQTT__MAX_RETRIES maps to mqtt.max_retries),
// fills defaults and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("U_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "u_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
