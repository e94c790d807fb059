// Package config provides configuration loading and validation for pricefeed-go.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	// Validate and sanitize path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	// Read config file
	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in YAML
	expanded := os.ExpandEnv(string(data))

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults
	ApplyDefaults(&cfg)

	return &cfg, nil
}

// ApplyDefaults sets default values for optional fields and canonicalizes
// symbols to uppercase.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.WebSocket.Enabled && cfg.Server.WebSocket.Addr == "" {
		cfg.Server.WebSocket.Addr = ":8081"
	}

	// Fetch defaults
	if cfg.Fetch.MaxAttempts == 0 {
		cfg.Fetch.MaxAttempts = 3
	}
	if cfg.Fetch.BaseBackoff.ToDuration() == 0 {
		cfg.Fetch.BaseBackoff = Duration(250 * time.Millisecond)
	}
	if cfg.Fetch.AdapterTimeout.ToDuration() == 0 {
		cfg.Fetch.AdapterTimeout = Duration(10 * time.Second)
	}
	if cfg.Fetch.AggregationTimeout.ToDuration() == 0 {
		cfg.Fetch.AggregationTimeout = Duration(5 * time.Second)
	}

	// Scoring defaults
	if cfg.Scoring.Staleness.FreshMaxSeconds == 0 {
		cfg.Scoring.Staleness.FreshMaxSeconds = 30
	}
	if cfg.Scoring.Staleness.AgingMaxSeconds == 0 {
		cfg.Scoring.Staleness.AgingMaxSeconds = 90
	}
	if cfg.Scoring.Staleness.StaleMaxSeconds == 0 {
		cfg.Scoring.Staleness.StaleMaxSeconds = 180
	}
	if cfg.Scoring.Confidence.VeryHighMaxPercent == 0 {
		cfg.Scoring.Confidence.VeryHighMaxPercent = 0.5
	}
	if cfg.Scoring.Confidence.HighMaxPercent == 0 {
		cfg.Scoring.Confidence.HighMaxPercent = 1.0
	}
	if cfg.Scoring.Confidence.MediumMaxPercent == 0 {
		cfg.Scoring.Confidence.MediumMaxPercent = 2.5
	}
	if cfg.Scoring.Volatility.StableMaxPercent == 0 {
		cfg.Scoring.Volatility.StableMaxPercent = 0.5
	}
	if cfg.Scoring.Volatility.ModerateMaxPercent == 0 {
		cfg.Scoring.Volatility.ModerateMaxPercent = 2.0
	}
	if cfg.Scoring.Volatility.VolatileMaxPercent == 0 {
		cfg.Scoring.Volatility.VolatileMaxPercent = 5.0
	}
	if cfg.Scoring.ReportCacheTTL.ToDuration() == 0 {
		cfg.Scoring.ReportCacheTTL = Duration(10 * time.Second)
	}
	if cfg.Scoring.RejectCutoff == 0 {
		cfg.Scoring.RejectCutoff = 50
	}

	// Health monitor defaults
	if cfg.Health.Interval.ToDuration() == 0 {
		cfg.Health.Interval = Duration(60 * time.Second)
	}
	if cfg.Health.PingTimeout.ToDuration() == 0 {
		cfg.Health.PingTimeout = Duration(5 * time.Second)
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// Feed defaults
	for i := range cfg.Feeds {
		ApplyFeedDefaults(&cfg.Feeds[i])
	}

	// Validation rule symbols are canonical uppercase
	for i := range cfg.Validation {
		cfg.Validation[i].Symbol = strings.ToUpper(cfg.Validation[i].Symbol)
	}
}

// ApplyFeedDefaults fills in the per-feed defaults used when a field is absent.
func ApplyFeedDefaults(feed *FeedConfig) {
	feed.Symbol = strings.ToUpper(feed.Symbol)
	if feed.RefreshInterval.ToDuration() == 0 {
		feed.RefreshInterval = Duration(30 * time.Second)
	}
	if feed.MaxStaleness.ToDuration() == 0 {
		feed.MaxStaleness = Duration(180 * time.Second)
	}
	if feed.ConfidenceThreshold == 0 {
		feed.ConfidenceThreshold = 0.8
	}
}

// DefaultValidationRules is used for symbols without an explicit rule entry.
var DefaultValidationRules = ValidationRules{
	MaxPriceDeviationPercent: 10,
	MaxStalenessSeconds:      180,
}

// RulesForSymbol returns the validation rules configured for a symbol, or the
// default rule set when none is configured.
func (c *Config) RulesForSymbol(symbol string) ValidationRules {
	symbol = strings.ToUpper(symbol)
	for _, rules := range c.Validation {
		if rules.Symbol == symbol {
			return rules
		}
	}
	rules := DefaultValidationRules
	rules.Symbol = symbol
	return rules
}

// FeedForSymbol returns the feed config for a symbol, if present.
func (c *Config) FeedForSymbol(symbol string) (FeedConfig, bool) {
	symbol = strings.ToUpper(symbol)
	for _, feed := range c.Feeds {
		if feed.Symbol == symbol {
			return feed, true
		}
	}
	return FeedConfig{}, false
}

// GetString retrieves a string value from the adapter configuration.
func (ac *AdapterConfig) GetString(key, defaultValue string) string {
	if val, ok := ac.Config[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}

// GetStringSlice retrieves a string slice from adapter config.
func (ac *AdapterConfig) GetStringSlice(key string) []string {
	if val, ok := ac.Config[key]; ok {
		if slice, ok := val.([]interface{}); ok {
			result := make([]string, 0, len(slice))
			for _, item := range slice {
				if str, ok := item.(string); ok {
					result = append(result, str)
				}
			}
			return result
		}
	}
	return nil
}

// GetInt retrieves an integer from adapter config.
func (ac *AdapterConfig) GetInt(key string, defaultValue int) int {
	if val, ok := ac.Config[key]; ok {
		if i, ok := val.(int); ok {
			return i
		}
	}
	return defaultValue
}

// GetBool retrieves a boolean from adapter config.
func (ac *AdapterConfig) GetBool(key string, defaultValue bool) bool {
	if val, ok := ac.Config[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return defaultValue
}
