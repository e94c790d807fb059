package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateFetchConfig(&cfg.Fetch); err != nil {
		return fmt.Errorf("fetch config: %w", err)
	}

	if err := validateScoringConfig(&cfg.Scoring); err != nil {
		return fmt.Errorf("scoring config: %w", err)
	}

	if len(cfg.Adapters) == 0 {
		return ErrNoAdaptersConfigured
	}
	adapterNames := make(map[string]bool, len(cfg.Adapters))
	for i, adapter := range cfg.Adapters {
		if err := validateAdapterConfig(&adapter); err != nil {
			return fmt.Errorf("adapter %d (%s.%s): %w", i, adapter.Type, adapter.Name, err)
		}
		if adapter.Enabled {
			adapterNames[adapter.Name] = true
		}
	}

	if len(cfg.Feeds) == 0 {
		return ErrNoFeedsConfigured
	}
	for i, feed := range cfg.Feeds {
		if err := validateFeedConfig(&feed, adapterNames); err != nil {
			return fmt.Errorf("feed %d (%s): %w", i, feed.Symbol, err)
		}
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSCertNotFound, cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSKeyNotFound, cfg.HTTP.TLS.Key)
		}
	}
	return nil
}

func validateFetchConfig(cfg *FetchConfig) error {
	if cfg.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	return nil
}

func validateScoringConfig(cfg *ScoringConfig) error {
	s := cfg.Staleness
	if s.FreshMaxSeconds <= 0 || s.AgingMaxSeconds <= s.FreshMaxSeconds || s.StaleMaxSeconds <= s.AgingMaxSeconds {
		return ErrInvalidStalenessBands
	}
	c := cfg.Confidence
	if c.VeryHighMaxPercent <= 0 || c.HighMaxPercent <= c.VeryHighMaxPercent || c.MediumMaxPercent <= c.HighMaxPercent {
		return ErrInvalidConfidenceBands
	}
	v := cfg.Volatility
	if v.StableMaxPercent <= 0 || v.ModerateMaxPercent <= v.StableMaxPercent || v.VolatileMaxPercent <= v.ModerateMaxPercent {
		return ErrInvalidVolatilityBands
	}
	return nil
}

func validateAdapterConfig(cfg *AdapterConfig) error {
	if cfg.Type == "" {
		return ErrAdapterTypeRequired
	}
	if cfg.Name == "" {
		return ErrAdapterNameRequired
	}
	return nil
}

func validateFeedConfig(cfg *FeedConfig, adapterNames map[string]bool) error {
	if cfg.Symbol == "" {
		return ErrFeedSymbolRequired
	}
	if cfg.PrimarySource == "" {
		return ErrPrimarySourceRequired
	}
	if !adapterNames[cfg.PrimarySource] {
		return fmt.Errorf("%w: %s", ErrUnknownFeedSource, cfg.PrimarySource)
	}
	for _, fallback := range cfg.FallbackSources {
		if !adapterNames[fallback] {
			return fmt.Errorf("%w: %s", ErrUnknownFeedSource, fallback)
		}
	}
	if cfg.RefreshInterval.ToDuration() <= 0 {
		return ErrInvalidRefreshInterval
	}
	if cfg.MaxStaleness.ToDuration() <= 0 {
		return ErrInvalidMaxStaleness
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return ErrInvalidConfidenceThreshold
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	format := strings.ToLower(cfg.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
