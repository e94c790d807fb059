package config

import "time"

// Config is the root configuration structure
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Fetch      FetchConfig       `yaml:"fetch"`
	Scoring    ScoringConfig     `yaml:"scoring"`
	Health     HealthConfig      `yaml:"health"`
	Adapters   []AdapterConfig   `yaml:"adapters"`
	Feeds      []FeedConfig      `yaml:"feeds"`
	Validation []ValidationRules `yaml:"validation"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the consumer-facing API server
type ServerConfig struct {
	HTTP      HTTPConfig `yaml:"http"`
	WebSocket WSConfig   `yaml:"websocket"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// WSConfig configures the WebSocket streaming server
type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// FetchConfig configures adapter call retries and timeouts
type FetchConfig struct {
	MaxAttempts        int      `yaml:"max_attempts"`        // retries per adapter (default: 3)
	BaseBackoff        Duration `yaml:"base_backoff"`        // first retry delay, doubled per attempt
	AdapterTimeout     Duration `yaml:"adapter_timeout"`     // per-call timeout
	AggregationTimeout Duration `yaml:"aggregation_timeout"` // per-adapter timeout in the fan-out
}

// ScoringConfig configures the confidence scorer band boundaries
type ScoringConfig struct {
	Staleness      StalenessBands  `yaml:"staleness"`
	Confidence     ConfidenceBands `yaml:"confidence"`
	Volatility     VolatilityBands `yaml:"volatility"`
	ReportCacheTTL Duration        `yaml:"report_cache_ttl"`
	RejectCutoff   int             `yaml:"reject_cutoff"` // overall score below this rejects
}

// StalenessBands holds staleness band boundaries in seconds
type StalenessBands struct {
	FreshMaxSeconds float64 `yaml:"fresh_max_seconds"`
	AgingMaxSeconds float64 `yaml:"aging_max_seconds"`
	StaleMaxSeconds float64 `yaml:"stale_max_seconds"` // above this a sample is expired
}

// ConfidenceBands holds confidence-interval ratio thresholds in percent of price
type ConfidenceBands struct {
	VeryHighMaxPercent float64 `yaml:"very_high_max_percent"`
	HighMaxPercent     float64 `yaml:"high_max_percent"`
	MediumMaxPercent   float64 `yaml:"medium_max_percent"`
}

// VolatilityBands holds volatility thresholds in percent
type VolatilityBands struct {
	StableMaxPercent   float64 `yaml:"stable_max_percent"`
	ModerateMaxPercent float64 `yaml:"moderate_max_percent"`
	VolatileMaxPercent float64 `yaml:"volatile_max_percent"` // above this is extreme
}

// HealthConfig configures the background health monitor
type HealthConfig struct {
	Interval    Duration `yaml:"interval"`
	PingTimeout Duration `yaml:"ping_timeout"`
}

// AdapterConfig configures a provider adapter
type AdapterConfig struct {
	Type    string                 `yaml:"type"`
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// FeedConfig configures one tracked symbol
type FeedConfig struct {
	Symbol              string   `yaml:"symbol"`
	PrimarySource       string   `yaml:"primary_source"`
	FallbackSources     []string `yaml:"fallback_sources"`
	RefreshInterval     Duration `yaml:"refresh_interval"`
	MaxStaleness        Duration `yaml:"max_staleness"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
}

// ValidationRules holds per-symbol sanity bounds. Stablecoins get tighter
// deviation bounds than volatile assets.
type ValidationRules struct {
	Symbol                   string  `yaml:"symbol"`
	MaxPriceDeviationPercent float64 `yaml:"max_price_deviation_percent"`
	MaxStalenessSeconds      float64 `yaml:"max_staleness_seconds"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
