// Package config handles obol configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/obol/config.yaml, /etc/obol/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "obol", "config.yaml"))
	}

	paths = append(paths, "/etc/obol/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all obol configuration.
type Config struct {
	DataDir       string          `yaml:"data_dir"`
	LogLevel      string          `yaml:"log_level"`
	Language      string          `yaml:"language"` // default reply language: en or ru
	Telegram      TelegramConfig  `yaml:"telegram"`
	Providers     ProvidersConfig `yaml:"providers"`
	Feed          FeedConfig      `yaml:"feed"`
	Billing       BillingConfig   `yaml:"billing"`
	Limits        LimitsConfig    `yaml:"limits"`
	Alerts        AlertsConfig    `yaml:"alerts"`
	Subscriptions SubsConfig      `yaml:"subscriptions"`
}

// TelegramConfig defines the outbound notification sink.
type TelegramConfig struct {
	Token string `yaml:"token"`
	// ChannelID is the private access-group chat; empty disables
	// membership grants and revocations.
	ChannelID string `yaml:"channel_id"`
}

// ProvidersConfig defines the configured inference providers.
// Order matters for the ordered-fallback call mode: Gemini is tried
// before OpenAI, matching the reference deployment.
type ProvidersConfig struct {
	Gemini GeminiConfig `yaml:"gemini"`
	OpenAI OpenAIConfig `yaml:"openai"`
}

// GeminiConfig defines Google Gemini API settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // default: gemini-1.5-flash-latest
}

// OpenAIConfig defines OpenAI API settings.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // default: gpt-4o-mini
}

// FeedConfig defines the market price feed.
type FeedConfig struct {
	BaseURL string `yaml:"base_url"` // default: https://api.coingecko.com/api/v3
	APIKey  string `yaml:"api_key"`
	// SymbolCacheSize bounds the symbol→provider-id cache (default 512).
	SymbolCacheSize int `yaml:"symbol_cache_size"`
}

// BillingConfig defines the billing oracle endpoint.
type BillingConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// LimitsConfig defines free-tier ceilings.
type LimitsConfig struct {
	DailyFreeTurns     int `yaml:"daily_free_turns"`     // default 20
	PortfolioFreeSlots int `yaml:"portfolio_free_slots"` // default 5
}

// AlertsConfig defines the price alert poller.
type AlertsConfig struct {
	PollIntervalSec int `yaml:"poll_interval_sec"` // default 60
}

// SubsConfig defines the subscription reconciliation job.
type SubsConfig struct {
	CheckIntervalHours int `yaml:"check_interval_hours"` // default 24
}

// Load reads configuration from a YAML file. Environment variables in
// the file body are expanded, so secrets can live in the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		DataDir:  ".",
		Language: "en",
		Providers: ProvidersConfig{
			Gemini: GeminiConfig{Model: "gemini-1.5-flash-latest"},
			OpenAI: OpenAIConfig{Model: "gpt-4o-mini"},
		},
		Feed: FeedConfig{
			BaseURL:         "https://api.coingecko.com/api/v3",
			SymbolCacheSize: 512,
		},
		Limits: LimitsConfig{
			DailyFreeTurns:     20,
			PortfolioFreeSlots: 5,
		},
		Alerts:        AlertsConfig{PollIntervalSec: 60},
		Subscriptions: SubsConfig{CheckIntervalHours: 24},
	}
}

// Validate checks for settings that would make the service inoperable.
// A missing provider key is not an error: the pipeline degrades to the
// unsupported intent, which is a specified terminal state.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Alerts.PollIntervalSec <= 0 {
		return fmt.Errorf("alerts.poll_interval_sec must be positive")
	}
	if c.Limits.DailyFreeTurns <= 0 {
		return fmt.Errorf("limits.daily_free_turns must be positive")
	}
	switch c.Language {
	case "en", "ru":
	default:
		return fmt.Errorf("language must be en or ru, got %q", c.Language)
	}
	return nil
}
