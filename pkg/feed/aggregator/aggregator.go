// Package aggregator combines samples from multiple providers into a single
// confidence-weighted price. It is the last resort of the fallback chain:
// the feed manager invokes it only after every direct source has failed.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feedcore/pricefeed-go/pkg/feed/quality"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
	"github.com/feedcore/pricefeed-go/pkg/logging"
	"github.com/feedcore/pricefeed-go/pkg/metrics"
)

// MethodWeightedAverage is the only aggregation method currently implemented.
const MethodWeightedAverage = "weighted_average"

// SourceContribution records one provider's share of an aggregated price.
type SourceContribution struct {
	Source string          `json:"source"`
	Price  decimal.Decimal `json:"price"`
	Weight float64         `json:"weight"`
}

// AggregatedPrice is a multi-source price. Weights sum to 1 and each source's
// weight increases monotonically with its confidence score. Staleness is the
// worst case among contributors, never the average.
type AggregatedPrice struct {
	Symbol            string               `json:"symbol"`
	PrimaryPrice      decimal.Decimal      `json:"primary_price"`
	Confidence        float64              `json:"confidence"`
	Sources           []SourceContribution `json:"sources"`
	AggregationMethod string               `json:"aggregation_method"`
	QualityScore      int                  `json:"quality_score"`
	StalenessSeconds  float64              `json:"staleness_seconds"`
}

// Aggregator fans out to all reachable adapters and merges the survivors.
type Aggregator struct {
	scorer  *quality.Scorer
	timeout time.Duration
	logger  *logging.Logger
}

// New creates an aggregator. timeout bounds each adapter call in the fan-out.
func New(scorer *quality.Scorer, timeout time.Duration, logger *logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Aggregator{
		scorer:  scorer,
		timeout: timeout,
		logger:  logger,
	}
}

type fanoutResult struct {
	source string
	sample sources.PriceSample
	err    error
}

// Aggregate queries every adapter in parallel, each with its own timeout,
// and combines the usable samples into one weighted-average price. It fails
// with ErrAllSourcesExhausted when no adapter produces a usable sample.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string, adapters []sources.Adapter) (*AggregatedPrice, error) {
	start := time.Now()

	if len(adapters) == 0 {
		metrics.RecordAggregation(symbol, "failure", time.Since(start))
		return nil, fmt.Errorf("%w: no adapters configured for %s", sources.ErrAllSourcesExhausted, symbol)
	}

	results := make(chan fanoutResult, len(adapters))
	var wg sync.WaitGroup
	for _, adapter := range adapters {
		wg.Add(1)
		go func(adapter sources.Adapter) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			sample, err := adapter.FetchPrice(callCtx, symbol)
			results <- fanoutResult{source: adapter.Name(), sample: sample, err: err}
		}(adapter)
	}
	// Closing after the last send keeps the collector loop below from ever
	// blocking on a cancelled caller.
	go func() {
		wg.Wait()
		close(results)
	}()

	now := time.Now()
	type scored struct {
		sample sources.PriceSample
		report *quality.QualityReport
	}
	survivors := make([]scored, 0, len(adapters))
	for result := range results {
		if result.err != nil {
			a.logger.Debug("Aggregation source failed",
				"symbol", symbol, "source", result.source, "error", result.err.Error())
			continue
		}
		sample := result.sample.WithStaleness(now)
		report := a.scorer.Evaluate(sample)
		if report.Recommendation == quality.RecommendationReject {
			a.logger.Debug("Aggregation source rejected",
				"symbol", symbol, "source", result.source, "score", report.OverallScore)
			continue
		}
		survivors = append(survivors, scored{sample: sample, report: report})
	}

	if len(survivors) == 0 {
		metrics.RecordAggregation(symbol, "failure", time.Since(start))
		return nil, fmt.Errorf("%w: %s", sources.ErrAllSourcesExhausted, symbol)
	}

	// Weight each survivor by its confidence score, normalized to sum to 1.
	totalConfidence := 0.0
	for _, sc := range survivors {
		totalConfidence += float64(sc.report.Confidence.Score)
	}

	aggregated := &AggregatedPrice{
		Symbol:            symbol,
		AggregationMethod: MethodWeightedAverage,
		Sources:           make([]SourceContribution, 0, len(survivors)),
	}

	weightedPrice := decimal.Zero
	weightedQuality := 0.0
	weightedConfidence := 0.0
	for _, sc := range survivors {
		weight := 1.0 / float64(len(survivors))
		if totalConfidence > 0 {
			weight = float64(sc.report.Confidence.Score) / totalConfidence
		}
		weightedPrice = weightedPrice.Add(sc.sample.Price.Mul(decimal.NewFromFloat(weight)))
		weightedQuality += weight * float64(sc.report.OverallScore)
		weightedConfidence += weight * float64(sc.report.Confidence.Score)
		if sc.sample.StalenessSeconds > aggregated.StalenessSeconds {
			aggregated.StalenessSeconds = sc.sample.StalenessSeconds
		}
		aggregated.Sources = append(aggregated.Sources, SourceContribution{
			Source: sc.sample.Source,
			Price:  sc.sample.Price,
			Weight: weight,
		})
	}

	sort.Slice(aggregated.Sources, func(i, j int) bool {
		return aggregated.Sources[i].Source < aggregated.Sources[j].Source
	})

	aggregated.PrimaryPrice = weightedPrice
	aggregated.QualityScore = int(weightedQuality + 0.5)
	aggregated.Confidence = weightedConfidence / 100

	metrics.RecordAggregation(symbol, "success", time.Since(start))
	a.logger.Info("Aggregated price from multiple sources",
		"symbol", symbol,
		"sources", len(aggregated.Sources),
		"price", aggregated.PrimaryPrice.String(),
		"quality", aggregated.QualityScore)

	return aggregated, nil
}
