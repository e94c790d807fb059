// Package simulated implements a deterministic in-memory provider adapter.
// It serves fixed prices from config and supports scripted failures, which
// makes it the swappable stand-in for a real upstream in tests and demos.
package simulated

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
)

// Adapter serves configured samples without any network I/O.
type Adapter struct {
	*sources.BaseAdapter

	mu        sync.Mutex
	samples   map[string]sources.PriceSample
	failures  map[string]error // per-symbol scripted error
	failNext  int              // fail the next N calls regardless of symbol
	pingErr   error
	callCount int
}

// New creates a simulated adapter from config.
//
// Config format:
//
//	prices:
//	  SOL: "100.0"
//	  BTC: "64000"
//	confidence_interval: "0.5"
func New(name string, config map[string]interface{}) (sources.Adapter, error) {
	logger := sources.GetLoggerFromConfig(config)

	adapter := &Adapter{
		BaseAdapter: sources.NewBaseAdapter(name, map[string]string{}, logger),
		samples:     make(map[string]sources.PriceSample),
		failures:    make(map[string]error),
	}
	adapter.SetHealthy(true)

	conf := decimal.Zero
	if raw, ok := config["confidence_interval"].(string); ok && raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: confidence_interval: %v", sources.ErrInvalidConfig, err)
		}
		conf = parsed
	}

	if pricesRaw, ok := config["prices"].(map[string]interface{}); ok {
		for symbol, priceRaw := range pricesRaw {
			priceStr, ok := priceRaw.(string)
			if !ok {
				priceStr = fmt.Sprintf("%v", priceRaw)
			}
			price, err := decimal.NewFromString(priceStr)
			if err != nil {
				return nil, fmt.Errorf("%w: price for %s: %v", sources.ErrInvalidConfig, symbol, err)
			}
			adapter.SetSample(sources.PriceSample{
				Symbol:             strings.ToUpper(symbol),
				Price:              price,
				ConfidenceInterval: conf,
				TradingStatus:      sources.TradingStatusTrading,
				Source:             name,
				Timestamp:          time.Now(),
			})
		}
	}

	return adapter, nil
}

// FetchPrice returns the configured sample for a symbol, honoring any
// scripted failures first.
func (a *Adapter) FetchPrice(ctx context.Context, symbol string) (sources.PriceSample, error) {
	if err := ctx.Err(); err != nil {
		return sources.PriceSample{}, fmt.Errorf("%w: %v", sources.ErrSourceUnavailable, err)
	}

	symbol = strings.ToUpper(symbol)

	a.mu.Lock()
	a.callCount++
	if a.failNext > 0 {
		a.failNext--
		a.mu.Unlock()
		a.SetHealthy(false)
		return sources.PriceSample{}, fmt.Errorf("%w: scripted failure", sources.ErrSourceUnavailable)
	}
	if err, ok := a.failures[symbol]; ok {
		a.mu.Unlock()
		a.SetHealthy(false)
		return sources.PriceSample{}, err
	}
	sample, ok := a.samples[symbol]
	a.mu.Unlock()

	if !ok {
		return sources.PriceSample{}, fmt.Errorf("%w: %s", sources.ErrUnknownSymbol, symbol)
	}

	// Serve a fresh observation; the configured sample keeps its timestamp
	// only when one was explicitly scripted.
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	a.SetHealthy(true)
	a.SetLastUpdate(time.Now())
	return sample, nil
}

// Ping reports the scripted reachability state.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", sources.ErrSourceUnavailable, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pingErr
}

// SetSample installs or replaces the sample served for a symbol.
func (a *Adapter) SetSample(sample sources.PriceSample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sample.Source == "" {
		sample.Source = a.Name()
	}
	a.samples[strings.ToUpper(sample.Symbol)] = sample
	delete(a.failures, strings.ToUpper(sample.Symbol))
}

// SetError scripts a persistent per-symbol failure.
func (a *Adapter) SetError(symbol string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[strings.ToUpper(symbol)] = err
}

// FailNext makes the next n FetchPrice calls fail with ErrSourceUnavailable.
func (a *Adapter) FailNext(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNext = n
}

// SetPingError scripts the Ping result.
func (a *Adapter) SetPingError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pingErr = err
}

// CallCount returns how many FetchPrice calls the adapter has served.
func (a *Adapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.callCount
}
