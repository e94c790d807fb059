package sources

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradingStatus is the provider-reported market state for a symbol.
type TradingStatus string

const (
	// TradingStatusTrading means the market is open and the price is live.
	TradingStatusTrading TradingStatus = "trading"
	// TradingStatusHalted means trading is suspended.
	TradingStatusHalted TradingStatus = "halted"
	// TradingStatusUnknown means the provider did not report a status.
	TradingStatusUnknown TradingStatus = "unknown"
)

// PriceSample is one provider's observation of a symbol. Samples are
// constructed fresh on every successful adapter call and never mutated;
// the staleness field is filled in by the caller at evaluation time.
type PriceSample struct {
	Symbol             string          `json:"symbol"`
	Price              decimal.Decimal `json:"price"`
	ConfidenceInterval decimal.Decimal `json:"confidence_interval"`
	EMAPrice           decimal.Decimal `json:"ema_price,omitempty"`
	EMAConfidence      decimal.Decimal `json:"ema_confidence,omitempty"`
	StalenessSeconds   float64         `json:"staleness_seconds"`
	TradingStatus      TradingStatus   `json:"trading_status"`
	Source             string          `json:"source"`
	Timestamp          time.Time       `json:"timestamp"`
}

// WithStaleness returns a copy of the sample with staleness computed
// against the given evaluation time.
func (s PriceSample) WithStaleness(now time.Time) PriceSample {
	s.StalenessSeconds = now.Sub(s.Timestamp).Seconds()
	if s.StalenessSeconds < 0 {
		s.StalenessSeconds = 0
	}
	return s
}

// Validate checks that the sample is structurally usable. Adapters must call
// this before handing a sample inward so loosely-typed provider payloads never
// propagate past the boundary.
func (s PriceSample) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return ErrMalformedResponse
	}
	if s.Price.IsNegative() {
		return ErrMalformedResponse
	}
	if s.ConfidenceInterval.IsNegative() {
		return ErrMalformedResponse
	}
	if s.Timestamp.IsZero() {
		return ErrMalformedResponse
	}
	if s.Source == "" {
		return ErrMalformedResponse
	}
	return nil
}

// Adapter is the capability the core consumes from one upstream price source.
// The adapter owns its wire protocol, authentication, and the translation of
// transport failures into the core's error taxonomy.
type Adapter interface {
	// FetchPrice performs one network round trip for a symbol.
	FetchPrice(ctx context.Context, symbol string) (PriceSample, error)

	// Ping performs a lightweight reachability check without fetching a price.
	Ping(ctx context.Context) error

	// Name returns the unique identity of this adapter.
	Name() string

	// IsHealthy returns whether the last interaction with the upstream succeeded.
	IsHealthy() bool

	// LastUpdate returns the timestamp of the last successful fetch.
	LastUpdate() time.Time
}

// AdapterFactory creates a new Adapter instance from its config block.
type AdapterFactory func(name string, config map[string]interface{}) (Adapter, error)
