// Package config provides configuration loading and validation for pricefeed-go.
package config

import "errors"

var (
	// ErrNoAdaptersConfigured indicates that no provider adapters are configured.
	ErrNoAdaptersConfigured = errors.New("at least one adapter must be configured")
	// ErrNoFeedsConfigured indicates that no feeds are configured.
	ErrNoFeedsConfigured = errors.New("at least one feed must be configured")
	// ErrAdapterTypeRequired indicates that adapter type is required.
	ErrAdapterTypeRequired = errors.New("adapter type is required")
	// ErrAdapterNameRequired indicates that adapter name is required.
	ErrAdapterNameRequired = errors.New("adapter name is required")
	// ErrFeedSymbolRequired indicates that a feed symbol is required.
	ErrFeedSymbolRequired = errors.New("feed symbol is required")
	// ErrPrimarySourceRequired indicates that a feed primary source is required.
	ErrPrimarySourceRequired = errors.New("feed primary_source is required")
	// ErrUnknownFeedSource indicates that a feed references an adapter that is not configured.
	ErrUnknownFeedSource = errors.New("feed references unknown source")
	// ErrInvalidRefreshInterval indicates a non-positive refresh interval.
	ErrInvalidRefreshInterval = errors.New("refresh_interval must be positive")
	// ErrInvalidMaxStaleness indicates a non-positive max staleness.
	ErrInvalidMaxStaleness = errors.New("max_staleness must be positive")
	// ErrInvalidConfidenceThreshold indicates a confidence threshold outside [0,1].
	ErrInvalidConfidenceThreshold = errors.New("confidence_threshold must be in [0,1]")
	// ErrInvalidStalenessBands indicates band boundaries that are not strictly increasing.
	ErrInvalidStalenessBands = errors.New("staleness bands must be strictly increasing")
	// ErrInvalidConfidenceBands indicates confidence thresholds that are not strictly increasing.
	ErrInvalidConfidenceBands = errors.New("confidence bands must be strictly increasing")
	// ErrInvalidVolatilityBands indicates volatility thresholds that are not strictly increasing.
	ErrInvalidVolatilityBands = errors.New("volatility bands must be strictly increasing")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrTLSCertNotFound indicates that the TLS cert file was not found.
	ErrTLSCertNotFound = errors.New("TLS cert file not found")
	// ErrTLSKeyNotFound indicates that the TLS key file was not found.
	ErrTLSKeyNotFound = errors.New("TLS key file not found")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
	// ErrInvalidMaxAttempts indicates a non-positive retry attempt count.
	ErrInvalidMaxAttempts = errors.New("max_attempts must be positive")
)
