// Package httpjson implements a generic HTTP/JSON provider adapter. The
// response layout is described by gjson field paths so one adapter type can
// cover most REST price APIs without a bespoke client per provider.
package httpjson

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
	"github.com/feedcore/pricefeed-go/pkg/version"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20 // 1 MiB
)

// Adapter fetches prices from an HTTP JSON endpoint.
type Adapter struct {
	*sources.BaseAdapter

	url         string
	pingURL     string
	pricePath   string
	confPath    string
	emaPath     string
	emaConfPath string
	statusPath  string
	tsPath      string
	headers     map[string]string
	client      *http.Client
}

// New creates a new HTTP/JSON adapter from config.
//
// Required config keys: url (with a {symbol} placeholder), price_path.
// Optional: confidence_path, ema_price_path, ema_confidence_path,
// status_path, timestamp_path, ping_url, timeout, headers, symbols.
func New(name string, config map[string]interface{}) (sources.Adapter, error) {
	logger := sources.GetLoggerFromConfig(config)

	symbols, err := sources.ParseSymbolsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse symbols: %w", err)
	}

	url, _ := config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("%w: 'url' is required", sources.ErrInvalidConfig)
	}

	pricePath, _ := config["price_path"].(string)
	if pricePath == "" {
		return nil, fmt.Errorf("%w: 'price_path' is required", sources.ErrInvalidConfig)
	}

	timeout := defaultTimeout
	if raw, ok := config["timeout"].(string); ok && raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: timeout: %v", sources.ErrInvalidConfig, err)
		}
		timeout = parsed
	}

	headers := make(map[string]string)
	if raw, ok := config["headers"].(map[string]interface{}); ok {
		for key, val := range raw {
			if str, ok := val.(string); ok {
				headers[key] = str
			}
		}
	}

	pingURL, _ := config["ping_url"].(string)

	adapter := &Adapter{
		BaseAdapter: sources.NewBaseAdapter(name, symbols, logger),
		url:         url,
		pingURL:     pingURL,
		pricePath:   pricePath,
		headers:     headers,
		client:      &http.Client{Timeout: timeout},
	}
	adapter.confPath, _ = config["confidence_path"].(string)
	adapter.emaPath, _ = config["ema_price_path"].(string)
	adapter.emaConfPath, _ = config["ema_confidence_path"].(string)
	adapter.statusPath, _ = config["status_path"].(string)
	adapter.tsPath, _ = config["timestamp_path"].(string)

	return adapter, nil
}

// FetchPrice performs one HTTP round trip for a symbol.
func (a *Adapter) FetchPrice(ctx context.Context, symbol string) (sources.PriceSample, error) {
	sourceSymbol, err := a.SourceSymbol(symbol)
	if err != nil {
		return sources.PriceSample{}, err
	}

	url := strings.ReplaceAll(a.url, "{symbol}", sourceSymbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sources.PriceSample{}, fmt.Errorf("%w: %v", sources.ErrSourceUnavailable, err)
	}
	req.Header.Set("User-Agent", version.AgentString())
	for key, val := range a.headers {
		req.Header.Set(key, val)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.SetHealthy(false)
		return sources.PriceSample{}, translateTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		a.SetHealthy(false)
		return sources.PriceSample{}, fmt.Errorf("%w: %v", sources.ErrSourceUnavailable, sources.ErrRateLimitExceeded)
	}
	if resp.StatusCode != http.StatusOK {
		a.SetHealthy(false)
		return sources.PriceSample{}, fmt.Errorf("%w: HTTP %d", sources.ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		a.SetHealthy(false)
		return sources.PriceSample{}, fmt.Errorf("%w: %v", sources.ErrSourceUnavailable, err)
	}

	sample, err := a.parseSample(symbol, sourceSymbol, body)
	if err != nil {
		a.SetHealthy(false)
		return sources.PriceSample{}, err
	}

	a.SetHealthy(true)
	a.SetLastUpdate(time.Now())
	return sample, nil
}

// parseSample extracts a validated PriceSample from a response body. Anything
// it cannot parse is a malformed response; it never coerces missing fields
// into a valid-looking zero price. Field paths may carry a {symbol}
// placeholder for APIs that key the payload by symbol.
func (a *Adapter) parseSample(symbol, sourceSymbol string, body []byte) (sources.PriceSample, error) {
	if !gjson.ValidBytes(body) {
		return sources.PriceSample{}, fmt.Errorf("%w: invalid JSON", sources.ErrMalformedResponse)
	}

	path := func(p string) string {
		return strings.ReplaceAll(p, "{symbol}", sourceSymbol)
	}

	price, err := decimalAt(body, path(a.pricePath))
	if err != nil {
		return sources.PriceSample{}, fmt.Errorf("%w: price: %v", sources.ErrMalformedResponse, err)
	}

	sample := sources.PriceSample{
		Symbol:        strings.ToUpper(symbol),
		Price:         price,
		TradingStatus: sources.TradingStatusUnknown,
		Source:        a.Name(),
		Timestamp:     time.Now(),
	}

	if a.confPath != "" {
		conf, err := decimalAt(body, path(a.confPath))
		if err != nil {
			return sources.PriceSample{}, fmt.Errorf("%w: confidence: %v", sources.ErrMalformedResponse, err)
		}
		sample.ConfidenceInterval = conf
	}
	if a.emaPath != "" {
		if ema, err := decimalAt(body, path(a.emaPath)); err == nil {
			sample.EMAPrice = ema
		}
	}
	if a.emaConfPath != "" {
		if emaConf, err := decimalAt(body, path(a.emaConfPath)); err == nil {
			sample.EMAConfidence = emaConf
		}
	}
	if a.statusPath != "" {
		sample.TradingStatus = parseTradingStatus(gjson.GetBytes(body, path(a.statusPath)).String())
	}
	if a.tsPath != "" {
		ts := gjson.GetBytes(body, path(a.tsPath))
		if !ts.Exists() {
			return sources.PriceSample{}, fmt.Errorf("%w: missing timestamp", sources.ErrMalformedResponse)
		}
		sample.Timestamp = parseTimestamp(ts.Int())
	}

	if err := sample.Validate(); err != nil {
		return sources.PriceSample{}, err
	}
	return sample, nil
}

// Ping performs a lightweight reachability check.
func (a *Adapter) Ping(ctx context.Context) error {
	url := a.pingURL
	if url == "" {
		// Fall back to the price endpoint for any configured symbol.
		symbols := a.Symbols()
		probe := "{symbol}"
		if len(symbols) > 0 {
			probe, _ = a.SourceSymbol(symbols[0])
		}
		url = strings.ReplaceAll(a.url, "{symbol}", probe)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", sources.ErrSourceUnavailable, err)
	}
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := a.client.Do(req)
	if err != nil {
		return translateTransportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: HTTP %d", sources.ErrSourceUnavailable, resp.StatusCode)
	}
	return nil
}

// decimalAt reads a decimal value at a gjson path, accepting both string and
// numeric JSON representations.
func decimalAt(body []byte, path string) (decimal.Decimal, error) {
	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return decimal.Zero, fmt.Errorf("missing field %q", path)
	}
	value, err := decimal.NewFromString(result.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %q: %v", path, err)
	}
	return value, nil
}

func parseTradingStatus(raw string) sources.TradingStatus {
	switch strings.ToLower(raw) {
	case "trading", "open", "online":
		return sources.TradingStatusTrading
	case "halted", "halt", "suspended", "closed":
		return sources.TradingStatusHalted
	default:
		return sources.TradingStatusUnknown
	}
}

// parseTimestamp accepts unix seconds or milliseconds.
func parseTimestamp(raw int64) time.Time {
	if raw > 1e12 {
		return time.UnixMilli(raw)
	}
	return time.Unix(raw, 0)
}

func translateTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", sources.ErrSourceTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", sources.ErrSourceTimeout, err)
	}
	return fmt.Errorf("%w: %v", sources.ErrSourceUnavailable, err)
}
