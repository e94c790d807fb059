// Package manager implements the feed manager: the single authoritative entry
// point for prices, owning the per-symbol cache, the fallback chain, retry
// policy, refresh scheduling, and status bookkeeping.
package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/feedcore/pricefeed-go/pkg/config"
	"github.com/feedcore/pricefeed-go/pkg/feed/aggregator"
	"github.com/feedcore/pricefeed-go/pkg/feed/quality"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
	"github.com/feedcore/pricefeed-go/pkg/logging"
	"github.com/feedcore/pricefeed-go/pkg/metrics"
)

// healthyScoreThreshold is the overall score at which a feed counts as healthy.
const healthyScoreThreshold = 80

type cacheEntry struct {
	result    PriceResult
	fetchedAt time.Time
}

// Manager owns all mutable feed state. It is constructed explicitly and wired
// via dependency injection; there is no package-level instance.
type Manager struct {
	fetchCfg   config.FetchConfig
	adapters   map[string]sources.Adapter
	scorer     *quality.Scorer
	aggregator *aggregator.Aggregator
	logger     *logging.Logger

	mu       sync.RWMutex
	feeds    map[string]config.FeedConfig
	cache    map[string]cacheEntry
	statuses map[string]*FeedStatus

	group singleflight.Group

	statsMu       sync.Mutex
	totalRequests int64
	cacheHits     int64
	responseTime  time.Duration
	responses     int64

	subscribersMu sync.RWMutex
	subscribers   []chan<- PriceUpdate

	refreshMu      sync.Mutex
	refreshRunner  *refreshRunner
	refreshEntries map[string]refreshEntry
}

// New creates a feed manager from validated configuration and constructed
// adapters (keyed by adapter name).
func New(cfg *config.Config, adapters map[string]sources.Adapter, scorer *quality.Scorer, agg *aggregator.Aggregator, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	feeds := make(map[string]config.FeedConfig, len(cfg.Feeds))
	statuses := make(map[string]*FeedStatus, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		feeds[feed.Symbol] = feed
		statuses[feed.Symbol] = &FeedStatus{
			Symbol:        feed.Symbol,
			Status:        StatusUnknown,
			PrimarySource: feed.PrimarySource,
		}
	}

	return &Manager{
		fetchCfg:       cfg.Fetch,
		adapters:       adapters,
		scorer:         scorer,
		aggregator:     agg,
		logger:         logger,
		feeds:          feeds,
		cache:          make(map[string]cacheEntry),
		statuses:       statuses,
		refreshEntries: make(map[string]refreshEntry),
	}
}

// GetPrice returns the current price for a symbol. Requests for the same
// symbol are coalesced: a call arriving while a fetch is in flight awaits the
// in-flight result instead of issuing a duplicate upstream call.
func (m *Manager) GetPrice(ctx context.Context, symbol string, forceRefresh bool) (*PriceResult, error) {
	symbol = strings.ToUpper(symbol)
	start := time.Now()
	defer m.recordResponse(start)

	m.statsMu.Lock()
	m.totalRequests++
	m.statsMu.Unlock()

	feedCfg, ok := m.feedConfig(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: no feed configured for %s", sources.ErrConfiguration, symbol)
	}

	if !forceRefresh {
		if cached, ok := m.cachedFresh(symbol, feedCfg.RefreshInterval.ToDuration()); ok {
			metrics.RecordCacheLookup(true)
			m.statsMu.Lock()
			m.cacheHits++
			m.statsMu.Unlock()
			return cached, nil
		}
		metrics.RecordCacheLookup(false)
	}

	value, err, _ := m.group.Do(symbol, func() (interface{}, error) {
		return m.fetchCycle(ctx, symbol, feedCfg)
	})
	if err != nil {
		return nil, err
	}
	result := value.(*PriceResult)
	return result, nil
}

// GetPrices fetches many symbols in parallel. Each symbol succeeds or fails
// independently; one symbol's failure never blocks another's.
func (m *Manager) GetPrices(ctx context.Context, symbols []string) map[string]Result {
	results := make(map[string]Result, len(symbols))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			result, err := m.GetPrice(ctx, symbol, false)
			mu.Lock()
			results[strings.ToUpper(symbol)] = Result{Result: result, Err: err}
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return results
}

// fetchCycle walks the fallback chain: primary with retries, then each
// fallback with the same retry policy, then the aggregation path. Transient
// per-adapter errors are swallowed here and never surface past the manager.
func (m *Manager) fetchCycle(ctx context.Context, symbol string, feedCfg config.FeedConfig) (*PriceResult, error) {
	chain := append([]string{feedCfg.PrimarySource}, feedCfg.FallbackSources...)

	var lastErr error
	for i, sourceName := range chain {
		adapter, ok := m.adapters[sourceName]
		if !ok {
			lastErr = fmt.Errorf("%w: adapter %s not available", sources.ErrConfiguration, sourceName)
			continue
		}

		sample, report, err := m.fetchWithRetries(ctx, adapter, symbol)
		if err != nil {
			lastErr = err
			m.logger.Warn("Source exhausted, trying next",
				"symbol", symbol, "source", sourceName, "error", err.Error())
			continue
		}

		if i > 0 {
			metrics.RecordFallback(symbol)
		}

		result := &PriceResult{
			Symbol:    symbol,
			Price:     sample.Price,
			Source:    sample.Source,
			Sample:    &sample,
			Report:    report,
			FetchedAt: time.Now(),
		}
		m.commitSuccess(symbol, result, statusForReport(report))
		return result, nil
	}

	// Direct resolution failed everywhere; fan out across all of the feed's
	// adapters with fresh attempts, not gated by the retry budget above.
	aggregated, err := m.aggregator.Aggregate(ctx, symbol, m.chainAdapters(chain))
	if err != nil {
		m.scorer.RecordOutcome(symbol, false)
		m.commitFailure(symbol, lastErr, err)
		return nil, fmt.Errorf("%w: %s", sources.ErrAllSourcesExhausted, symbol)
	}

	status := StatusHealthy
	if aggregated.QualityScore < healthyScoreThreshold || aggregated.Confidence < feedCfg.ConfidenceThreshold {
		status = StatusDegraded
	}
	result := &PriceResult{
		Symbol:     symbol,
		Price:      aggregated.PrimaryPrice,
		Source:     aggregated.AggregationMethod,
		Aggregated: aggregated,
		FetchedAt:  time.Now(),
	}
	m.commitSuccess(symbol, result, status)
	return result, nil
}

// fetchWithRetries attempts one adapter with bounded retries and exponential
// backoff. A sample whose evaluation recommends reject is treated as a
// failure of this source, not retried against it.
func (m *Manager) fetchWithRetries(ctx context.Context, adapter sources.Adapter, symbol string) (sources.PriceSample, *quality.QualityReport, error) {
	var lastErr error
	backoff := m.fetchCfg.BaseBackoff.ToDuration()

	for attempt := 0; attempt < m.fetchCfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return sources.PriceSample{}, nil, fmt.Errorf("%w: %v", sources.ErrSourceUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, m.fetchCfg.AdapterTimeout.ToDuration())
		sample, err := adapter.FetchPrice(callCtx, symbol)
		cancel()

		if err != nil {
			metrics.RecordFetch(adapter.Name(), symbol, "failure", time.Since(start))
			m.recordError(symbol, err)
			lastErr = err
			continue
		}
		metrics.RecordFetch(adapter.Name(), symbol, "success", time.Since(start))

		sample = sample.WithStaleness(time.Now())
		report := m.scorer.Evaluate(sample)
		if report.Recommendation == quality.RecommendationReject {
			err := fmt.Errorf("sample rejected (score %d)", report.OverallScore)
			m.recordError(symbol, err)
			return sources.PriceSample{}, nil, err
		}

		m.scorer.RecordOutcome(symbol, true)
		return sample, report, nil
	}

	return sources.PriceSample{}, nil, lastErr
}

func (m *Manager) chainAdapters(chain []string) []sources.Adapter {
	adapters := make([]sources.Adapter, 0, len(chain))
	for _, name := range chain {
		if adapter, ok := m.adapters[name]; ok {
			adapters = append(adapters, adapter)
		}
	}
	return adapters
}

// statusForReport maps a quality report onto the feed state machine.
func statusForReport(report *quality.QualityReport) Status {
	if report.OverallScore >= healthyScoreThreshold && report.Recommendation == quality.RecommendationUse {
		return StatusHealthy
	}
	return StatusDegraded
}

func (m *Manager) commitSuccess(symbol string, result *PriceResult, status Status) {
	m.mu.Lock()
	m.cache[symbol] = cacheEntry{result: *result, fetchedAt: result.FetchedAt}
	feedStatus := m.statusLocked(symbol)
	feedStatus.Status = status
	feedStatus.PrimarySource = result.Source
	feedStatus.LastUpdate = result.FetchedAt
	m.mu.Unlock()

	metrics.RecordFeedStatus(symbol, status.metricValue())
	m.notifySubscribers(PriceUpdate{Symbol: symbol, Result: *result})
}

func (m *Manager) commitFailure(symbol string, directErr, aggErr error) {
	m.mu.Lock()
	feedStatus := m.statusLocked(symbol)
	feedStatus.Status = StatusFailed
	feedStatus.ErrorCount++
	if directErr != nil {
		feedStatus.LastError = directErr.Error()
	} else if aggErr != nil {
		feedStatus.LastError = aggErr.Error()
	}
	feedStatus.LastUpdate = time.Now()
	m.mu.Unlock()

	metrics.RecordFeedStatus(symbol, StatusFailed.metricValue())
}

// recordError keeps the latest error visible on the status without changing
// the state machine; transitions happen only at cycle boundaries.
func (m *Manager) recordError(symbol string, err error) {
	m.mu.Lock()
	feedStatus := m.statusLocked(symbol)
	feedStatus.ErrorCount++
	feedStatus.LastError = err.Error()
	m.mu.Unlock()
}

// statusLocked returns the status entry for a symbol, creating it if needed.
// Callers must hold m.mu.
func (m *Manager) statusLocked(symbol string) *FeedStatus {
	feedStatus, ok := m.statuses[symbol]
	if !ok {
		feedStatus = &FeedStatus{Symbol: symbol, Status: StatusUnknown}
		m.statuses[symbol] = feedStatus
	}
	return feedStatus
}

func (m *Manager) feedConfig(symbol string) (config.FeedConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.feeds[symbol]
	return cfg, ok
}

func (m *Manager) cachedFresh(symbol string, maxAge time.Duration) (*PriceResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.cache[symbol]
	if !ok || time.Since(entry.fetchedAt) >= maxAge {
		return nil, false
	}
	result := entry.result
	return &result, true
}

// LastKnown returns the most recent successful result regardless of age, for
// consumers that prefer a stale value with a warning over a blank display.
func (m *Manager) LastKnown(symbol string) (*PriceResult, bool) {
	symbol = strings.ToUpper(symbol)
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.cache[symbol]
	if !ok {
		return nil, false
	}
	result := entry.result
	result.Stale = true
	return &result, true
}

// GetFeedStatus returns a copy of a symbol's status, or nil when untracked.
func (m *Manager) GetFeedStatus(symbol string) *FeedStatus {
	symbol = strings.ToUpper(symbol)
	m.mu.RLock()
	defer m.mu.RUnlock()
	feedStatus, ok := m.statuses[symbol]
	if !ok {
		return nil
	}
	copied := *feedStatus
	return &copied
}

// GetAllFeedStatuses returns a copy of every tracked feed's status.
func (m *Manager) GetAllFeedStatuses() map[string]FeedStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]FeedStatus, len(m.statuses))
	for symbol, feedStatus := range m.statuses {
		out[symbol] = *feedStatus
	}
	return out
}

// TrackedSymbols returns the symbols with an active feed status.
func (m *Manager) TrackedSymbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.statuses))
	for symbol := range m.statuses {
		out = append(out, symbol)
	}
	return out
}

// FeedAdapters returns the adapters in a symbol's fallback chain, primary
// first. Used by the health monitor for lightweight reachability checks.
func (m *Manager) FeedAdapters(symbol string) []sources.Adapter {
	symbol = strings.ToUpper(symbol)
	cfg, ok := m.feedConfig(symbol)
	if !ok {
		return nil
	}
	return m.chainAdapters(append([]string{cfg.PrimarySource}, cfg.FallbackSources...))
}

// FeedConfigUpdate is a partial per-symbol configuration change; nil fields
// are left unchanged.
type FeedConfigUpdate struct {
	PrimarySource       *string
	FallbackSources     *[]string
	RefreshInterval     *time.Duration
	MaxStaleness        *time.Duration
	ConfidenceThreshold *float64
}

// SetFeedConfig applies a partial config update, creating the feed when it
// does not exist yet (a new feed requires PrimarySource). A running refresh
// schedule for the symbol is adjusted to the new interval.
func (m *Manager) SetFeedConfig(symbol string, update FeedConfigUpdate) error {
	symbol = strings.ToUpper(symbol)

	m.mu.Lock()
	cfg, exists := m.feeds[symbol]
	if !exists {
		if update.PrimarySource == nil {
			m.mu.Unlock()
			return fmt.Errorf("%w: new feed %s requires primary_source", sources.ErrConfiguration, symbol)
		}
		cfg = config.FeedConfig{Symbol: symbol}
	}
	if update.PrimarySource != nil {
		if _, ok := m.adapters[*update.PrimarySource]; !ok {
			m.mu.Unlock()
			return fmt.Errorf("%w: unknown source %s", sources.ErrConfiguration, *update.PrimarySource)
		}
		cfg.PrimarySource = *update.PrimarySource
	}
	if update.FallbackSources != nil {
		for _, name := range *update.FallbackSources {
			if _, ok := m.adapters[name]; !ok {
				m.mu.Unlock()
				return fmt.Errorf("%w: unknown source %s", sources.ErrConfiguration, name)
			}
		}
		cfg.FallbackSources = *update.FallbackSources
	}
	if update.RefreshInterval != nil {
		if *update.RefreshInterval <= 0 {
			m.mu.Unlock()
			return fmt.Errorf("%w: refresh interval must be positive", sources.ErrConfiguration)
		}
		cfg.RefreshInterval = config.Duration(*update.RefreshInterval)
	}
	if update.MaxStaleness != nil {
		if *update.MaxStaleness <= 0 {
			m.mu.Unlock()
			return fmt.Errorf("%w: max staleness must be positive", sources.ErrConfiguration)
		}
		cfg.MaxStaleness = config.Duration(*update.MaxStaleness)
	}
	if update.ConfidenceThreshold != nil {
		if *update.ConfidenceThreshold < 0 || *update.ConfidenceThreshold > 1 {
			m.mu.Unlock()
			return fmt.Errorf("%w: confidence threshold must be in [0,1]", sources.ErrConfiguration)
		}
		cfg.ConfidenceThreshold = *update.ConfidenceThreshold
	}
	config.ApplyFeedDefaults(&cfg)
	m.feeds[symbol] = cfg
	m.statusLocked(symbol)
	m.mu.Unlock()

	m.rescheduleRefresh(symbol, cfg.RefreshInterval.ToDuration())
	return nil
}

// ClearCache drops the cached result for one symbol, or every symbol when
// symbol is empty.
func (m *Manager) ClearCache(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if symbol == "" {
		m.cache = make(map[string]cacheEntry)
		return
	}
	delete(m.cache, strings.ToUpper(symbol))
}

// GetStats returns the manager-wide aggregate counters.
func (m *Manager) GetStats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	stats := Stats{TotalRequests: m.totalRequests}
	if m.totalRequests > 0 {
		stats.CacheHitRate = float64(m.cacheHits) / float64(m.totalRequests)
	}
	if m.responses > 0 {
		stats.AverageResponseTime = m.responseTime / time.Duration(m.responses)
	}

	m.mu.RLock()
	stats.TotalFeeds = len(m.feeds)
	m.mu.RUnlock()
	return stats
}

// GenerateQualityReport re-evaluates the freshest known sample for a symbol,
// fetching one when nothing is cached.
func (m *Manager) GenerateQualityReport(ctx context.Context, symbol string) (*quality.QualityReport, error) {
	symbol = strings.ToUpper(symbol)

	m.mu.RLock()
	entry, ok := m.cache[symbol]
	m.mu.RUnlock()

	if ok && entry.result.Sample != nil {
		sample := entry.result.Sample.WithStaleness(time.Now())
		return m.scorer.Evaluate(sample), nil
	}

	result, err := m.GetPrice(ctx, symbol, false)
	if err != nil {
		return nil, err
	}
	if result.Report != nil {
		return result.Report, nil
	}
	return nil, fmt.Errorf("%w: no direct sample available for %s", sources.ErrConfiguration, symbol)
}

// GetCachedQualityReport returns the last report for a symbol without
// recomputation, or nil when the cache TTL has lapsed.
func (m *Manager) GetCachedQualityReport(symbol string) *quality.QualityReport {
	return m.scorer.CachedReport(symbol)
}

func (m *Manager) recordResponse(start time.Time) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.responseTime += time.Since(start)
	m.responses++
}
