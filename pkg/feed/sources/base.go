package sources

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/feedcore/pricefeed-go/pkg/logging"
)

// BaseAdapter provides common bookkeeping for provider adapters: identity,
// symbol mapping, health state, and last-success tracking.
type BaseAdapter struct {
	name       string
	symbols    map[string]string // canonical symbol -> source-specific symbol
	healthy    bool
	healthMu   sync.RWMutex
	lastUpdate time.Time
	updateMu   sync.RWMutex
	logger     *logging.Logger
}

// NewBaseAdapter creates a new base adapter with symbol mappings.
// symbols: map of canonical symbol (e.g. "SOL") -> source-specific symbol
// (e.g. "SOLUSDT").
func NewBaseAdapter(name string, symbols map[string]string, logger *logging.Logger) *BaseAdapter {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &BaseAdapter{
		name:    name,
		symbols: symbols,
		logger:  logger,
	}
}

// Name returns the adapter identity.
func (b *BaseAdapter) Name() string {
	return b.name
}

// IsHealthy returns the health status.
func (b *BaseAdapter) IsHealthy() bool {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthy
}

// SetHealthy sets the health status.
func (b *BaseAdapter) SetHealthy(healthy bool) {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	b.healthy = healthy
}

// LastUpdate returns the time of the last successful fetch.
func (b *BaseAdapter) LastUpdate() time.Time {
	b.updateMu.RLock()
	defer b.updateMu.RUnlock()
	return b.lastUpdate
}

// SetLastUpdate sets the last successful fetch time.
func (b *BaseAdapter) SetLastUpdate(t time.Time) {
	b.updateMu.Lock()
	defer b.updateMu.Unlock()
	b.lastUpdate = t
}

// SourceSymbol converts a canonical symbol to the source-specific symbol.
// When no mapping table is configured the canonical symbol is used as-is.
func (b *BaseAdapter) SourceSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(symbol)
	if len(b.symbols) == 0 {
		return symbol, nil
	}
	mapped, ok := b.symbols[symbol]
	if !ok {
		return "", fmt.Errorf("%w: %s (adapter %s)", ErrUnknownSymbol, symbol, b.name)
	}
	return mapped, nil
}

// Symbols returns the canonical symbols this adapter has mappings for.
func (b *BaseAdapter) Symbols() []string {
	out := make([]string, 0, len(b.symbols))
	for symbol := range b.symbols {
		out = append(out, symbol)
	}
	return out
}

// Logger returns the adapter logger.
func (b *BaseAdapter) Logger() *logging.Logger {
	return b.logger
}

// GetLoggerFromConfig extracts a logger from a config map or returns a noop
// logger so adapters never dereference a nil logger.
func GetLoggerFromConfig(config map[string]interface{}) *logging.Logger {
	if loggerInterface, ok := config["logger"]; ok {
		if logger, ok := loggerInterface.(*logging.Logger); ok {
			return logger
		}
	}
	return logging.NewNoopLogger()
}

// ParseSymbolsFromMap extracts symbol mappings from config.
// Expected format: symbols: { "SOL": "SOLUSDT", "BTC": "BTCUSDT" }.
// Canonical symbols are uppercased. An absent key yields an empty map, which
// means the adapter passes canonical symbols through unchanged.
func ParseSymbolsFromMap(config map[string]interface{}) (map[string]string, error) {
	symbolsRaw, ok := config["symbols"]
	if !ok {
		return map[string]string{}, nil
	}

	symbolsMap, ok := symbolsRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: symbols must be a map of strings", ErrInvalidConfig)
	}

	symbols := make(map[string]string, len(symbolsMap))
	for canonical, sourceRaw := range symbolsMap {
		source, ok := sourceRaw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: symbol %s maps to %T", ErrInvalidConfig, canonical, sourceRaw)
		}
		symbols[strings.ToUpper(canonical)] = source
	}

	return symbols, nil
}
