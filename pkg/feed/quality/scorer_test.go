package quality

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedcore/pricefeed-go/pkg/config"
	"github.com/feedcore/pricefeed-go/pkg/feed/history"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
	"github.com/feedcore/pricefeed-go/pkg/logging"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Staleness: config.StalenessBands{
			FreshMaxSeconds: 30,
			AgingMaxSeconds: 90,
			StaleMaxSeconds: 180,
		},
		Confidence: config.ConfidenceBands{
			VeryHighMaxPercent: 0.5,
			HighMaxPercent:     1.0,
			MediumMaxPercent:   2.5,
		},
		Volatility: config.VolatilityBands{
			StableMaxPercent:   0.5,
			ModerateMaxPercent: 2.0,
			VolatileMaxPercent: 5.0,
		},
		ReportCacheTTL: config.Duration(10 * time.Second),
		RejectCutoff:   50,
	}
}

func newTestScorer(rules ...config.ValidationRules) *Scorer {
	return NewScorer(testScoringConfig(), rules, history.NewStore(history.DefaultCapacity), logging.NewNoopLogger())
}

func testSample(symbol string, price, confidence float64, staleness float64) sources.PriceSample {
	return sources.PriceSample{
		Symbol:             symbol,
		Price:              decimal.NewFromFloat(price),
		ConfidenceInterval: decimal.NewFromFloat(confidence),
		StalenessSeconds:   staleness,
		TradingStatus:      sources.TradingStatusTrading,
		Source:             "simulated",
		Timestamp:          time.Now(),
	}
}

func TestScorer_FreshTightSampleIsUsable(t *testing.T) {
	scorer := newTestScorer()

	report := scorer.Evaluate(testSample("SOL", 100, 0.5, 10))

	assert.Equal(t, "SOL", report.Symbol)
	assert.Equal(t, StalenessFresh, report.Staleness.Level)
	assert.Equal(t, ConfidenceVeryHigh, report.Confidence.Level)
	assert.GreaterOrEqual(t, report.OverallScore, 80)
	assert.Equal(t, RecommendationUse, report.Recommendation)
	assert.Empty(t, report.Warnings)
}

func TestScorer_ExpiredSampleRejected(t *testing.T) {
	scorer := newTestScorer()

	report := scorer.Evaluate(testSample("SOL", 100, 0.5, 200))

	assert.Equal(t, StalenessExpired, report.Staleness.Level)
	assert.Equal(t, RecommendationReject, report.Recommendation)
	assert.Equal(t, 0, report.OverallScore)
	assert.Contains(t, report.Warnings, WarningExpired)
	assert.Contains(t, report.Actions, ActionRefreshPrice)
}

func TestScorer_NonPositivePriceRejected(t *testing.T) {
	scorer := newTestScorer()

	report := scorer.Evaluate(testSample("SOL", 0, 0.5, 10))

	assert.Equal(t, RecommendationReject, report.Recommendation)
	assert.Equal(t, ConfidenceLow, report.Confidence.Level)
	assert.Equal(t, 0, report.Confidence.Score)
}

func TestScorer_StalenessDampsScore(t *testing.T) {
	scorer := newTestScorer()

	fresh := scorer.Evaluate(testSample("SOL", 100, 0.5, 5))
	stale := scorer.Evaluate(testSample("SOL", 100, 0.5, 150))

	assert.Greater(t, fresh.OverallScore, stale.OverallScore)
	assert.Equal(t, StalenessStale, stale.Staleness.Level)
}

func TestScorer_CompositeTracksStalenessScore(t *testing.T) {
	scorer := newTestScorer()

	// Confidence score 95 (0.5% interval), neutral consistency 75 on an
	// empty history, damped by the staleness score at half the 180s expiry.
	report := scorer.Evaluate(testSample("SOL", 100, 0.5, 90))

	base := 0.6*95 + 0.4*75.0
	assert.Equal(t, int(base*0.5+0.5), report.OverallScore)
}

func TestScorer_ConfidenceBands(t *testing.T) {
	scorer := newTestScorer()

	tests := []struct {
		name       string
		confidence float64 // interval on a price of 100
		level      ConfidenceLevel
	}{
		{"very high", 0.3, ConfidenceVeryHigh},
		{"high", 0.8, ConfidenceHigh},
		{"medium", 2.0, ConfidenceMedium},
		{"low", 4.0, ConfidenceLow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report := scorer.Evaluate(testSample("BAND", 100, tc.confidence, 5))
			assert.Equal(t, tc.level, report.Confidence.Level)
		})
	}
}

func TestScorer_ConfidenceScoreMonotonic(t *testing.T) {
	scorer := newTestScorer()

	tight := scorer.Evaluate(testSample("MONO", 100, 0.2, 5))
	wide := scorer.Evaluate(testSample("MONO", 100, 3.0, 5))

	assert.Greater(t, tight.Confidence.Score, wide.Confidence.Score)
}

func TestScorer_EMADeviationFlagged(t *testing.T) {
	scorer := newTestScorer()

	sample := testSample("SOL", 130, 0.5, 5)
	sample.EMAPrice = decimal.NewFromInt(100) // 30% off, default bound is 10%

	report := scorer.Evaluate(sample)

	assert.Contains(t, report.Warnings, WarningEMADeviation)
	assert.Contains(t, report.Actions, ActionVerifyAlternativeSources)
	assert.Equal(t, RecommendationUseWithCaution, report.Recommendation)
}

func TestScorer_TwoFlagsRecommendFallback(t *testing.T) {
	scorer := newTestScorer()

	sample := testSample("SOL", 130, 0.5, 5)
	sample.EMAPrice = decimal.NewFromInt(100)
	sample.TradingStatus = sources.TradingStatusHalted

	report := scorer.Evaluate(sample)

	assert.Contains(t, report.Warnings, WarningNotTrading)
	assert.Equal(t, RecommendationFallback, report.Recommendation)
}

func TestScorer_ShortHistoryIsNeutral(t *testing.T) {
	scorer := newTestScorer()

	report := scorer.Evaluate(testSample("NEW", 100, 0.5, 5))

	assert.Equal(t, StabilityStable, report.Consistency.Stability)
	assert.Zero(t, report.Consistency.Volatility)
}

func TestScorer_ExtremeVolatilityWarns(t *testing.T) {
	scorer := newTestScorer()

	for _, price := range []float64{100, 130, 80, 140} {
		scorer.History().Append("VOL", history.Entry{
			Price:     decimal.NewFromFloat(price),
			Timestamp: time.Now(),
		})
	}

	report := scorer.Evaluate(testSample("VOL", 90, 0.5, 5))

	assert.Equal(t, StabilityExtreme, report.Consistency.Stability)
	assert.Contains(t, report.Warnings, WarningHighVolatility)
}

func TestScorer_StableHistoryScoresHigh(t *testing.T) {
	scorer := newTestScorer()

	for _, price := range []float64{100, 100.1, 99.9, 100.05} {
		scorer.History().Append("STABLE", history.Entry{
			Price:     decimal.NewFromFloat(price),
			Timestamp: time.Now(),
		})
	}

	report := scorer.Evaluate(testSample("STABLE", 100, 0.5, 5))

	assert.Equal(t, StabilityStable, report.Consistency.Stability)
	assert.Equal(t, RecommendationUse, report.Recommendation)
}

func TestScorer_PerSymbolStalenessBound(t *testing.T) {
	scorer := newTestScorer(config.ValidationRules{
		Symbol:                   "USDC",
		MaxPriceDeviationPercent: 1,
		MaxStalenessSeconds:      60,
	})

	// 70s is within the global 180s bound but past the symbol's own 60s.
	report := scorer.Evaluate(testSample("USDC", 1, 0.001, 70))

	assert.Equal(t, StalenessExpired, report.Staleness.Level)
	assert.Equal(t, RecommendationReject, report.Recommendation)
}

func TestScorer_SuccessRate(t *testing.T) {
	scorer := newTestScorer()

	// No recorded attempts defaults to a full success rate.
	report := scorer.Evaluate(testSample("SOL", 100, 0.5, 5))
	assert.Equal(t, float64(100), report.Reliability.SuccessRate)

	scorer.RecordOutcome("SOL", true)
	scorer.RecordOutcome("SOL", true)
	scorer.RecordOutcome("SOL", false)
	scorer.RecordOutcome("SOL", false)

	report = scorer.Evaluate(testSample("SOL", 100, 0.5, 5))
	assert.Equal(t, float64(50), report.Reliability.SuccessRate)
}

func TestScorer_CachedReport(t *testing.T) {
	cfg := testScoringConfig()
	cfg.ReportCacheTTL = config.Duration(30 * time.Millisecond)
	scorer := NewScorer(cfg, nil, history.NewStore(history.DefaultCapacity), logging.NewNoopLogger())

	require.Nil(t, scorer.CachedReport("SOL"))

	report := scorer.Evaluate(testSample("SOL", 100, 0.5, 5))
	cached := scorer.CachedReport("sol")
	require.NotNil(t, cached)
	assert.Equal(t, report.OverallScore, cached.OverallScore)

	time.Sleep(50 * time.Millisecond)
	assert.Nil(t, scorer.CachedReport("SOL"))
}

func TestScorer_EvaluateAppendsHistory(t *testing.T) {
	scorer := newTestScorer()

	scorer.Evaluate(testSample("SOL", 100, 0.5, 5))
	scorer.Evaluate(testSample("SOL", 101, 0.5, 5))

	assert.Equal(t, 2, scorer.History().Len("SOL"))
}
