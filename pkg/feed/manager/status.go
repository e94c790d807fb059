package manager

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/feedcore/pricefeed-go/pkg/feed/aggregator"
	"github.com/feedcore/pricefeed-go/pkg/feed/quality"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
)

// Status is the feed state machine position for one symbol.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// metricValue encodes a status for the feed_status gauge.
func (s Status) metricValue() float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 2
	case StatusFailed:
		return 3
	default:
		return 0
	}
}

// FeedStatus is the per-symbol bookkeeping owned by the manager. Status is
// recomputed fresh on every fetch cycle, not incrementally healed.
type FeedStatus struct {
	Symbol        string    `json:"symbol"`
	Status        Status    `json:"status"`
	PrimarySource string    `json:"primary_source"` // source that served the last result
	ErrorCount    int       `json:"error_count"`
	LastError     string    `json:"last_error,omitempty"`
	LastUpdate    time.Time `json:"last_update"`
}

// PriceResult is what the manager hands to consumers: a direct sample or an
// aggregated price, plus the quality evaluation that justified serving it.
type PriceResult struct {
	Symbol     string                      `json:"symbol"`
	Price      decimal.Decimal             `json:"price"`
	Source     string                      `json:"source"`
	Sample     *sources.PriceSample        `json:"sample,omitempty"`
	Aggregated *aggregator.AggregatedPrice `json:"aggregated,omitempty"`
	Report     *quality.QualityReport      `json:"report,omitempty"`
	Stale      bool                        `json:"stale,omitempty"` // last-known-good served after exhaustion
	FetchedAt  time.Time                   `json:"fetched_at"`
}

// Result pairs a per-symbol outcome for GetPrices; each entry succeeds or
// fails independently.
type Result struct {
	Result *PriceResult
	Err    error
}

// PriceUpdate is pushed to subscribers after every successful fetch cycle.
type PriceUpdate struct {
	Symbol string
	Result PriceResult
}

// Stats are the manager-wide aggregate counters.
type Stats struct {
	TotalRequests       int64         `json:"total_requests"`
	CacheHitRate        float64       `json:"cache_hit_rate"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	TotalFeeds          int           `json:"total_feeds"`
}
