package quality

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feedcore/pricefeed-go/pkg/config"
	"github.com/feedcore/pricefeed-go/pkg/feed/history"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
	"github.com/feedcore/pricefeed-go/pkg/logging"
	"github.com/feedcore/pricefeed-go/pkg/metrics"
)

// Composite weights for the overall score. The weighted base is damped by the
// staleness factor so the composite itself decays to zero at the expired
// boundary, independent of the hard reject override.
const (
	confidenceWeight  = 0.6
	consistencyWeight = 0.4

	// neutralConsistencyScore is used when the history is too short for a
	// volatility estimate.
	neutralConsistencyScore = 75
)

type cachedReport struct {
	report    *QualityReport
	expiresAt time.Time
}

type feedOutcomes struct {
	attempts  int64
	successes int64
}

// Scorer evaluates price samples against configured bands, per-symbol
// validation rules, and the bounded price history. Scoring is synchronous and
// CPU-only; it never performs I/O.
type Scorer struct {
	cfg     config.ScoringConfig
	rules   map[string]config.ValidationRules
	history *history.Store
	logger  *logging.Logger

	mu       sync.RWMutex
	cache    map[string]cachedReport
	outcomes map[string]*feedOutcomes
}

// NewScorer creates a scorer. rules entries are keyed by their symbol; symbols
// without an entry get config.DefaultValidationRules.
func NewScorer(cfg config.ScoringConfig, rules []config.ValidationRules, hist *history.Store, logger *logging.Logger) *Scorer {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	ruleMap := make(map[string]config.ValidationRules, len(rules))
	for _, r := range rules {
		ruleMap[strings.ToUpper(r.Symbol)] = r
	}
	return &Scorer{
		cfg:      cfg,
		rules:    ruleMap,
		history:  hist,
		logger:   logger,
		cache:    make(map[string]cachedReport),
		outcomes: make(map[string]*feedOutcomes),
	}
}

// History exposes the scorer's backing history store.
func (s *Scorer) History() *history.Store {
	return s.history
}

// RecordOutcome feeds the reliability assessment with fetch outcomes.
func (s *Scorer) RecordOutcome(symbol string, success bool) {
	symbol = strings.ToUpper(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, ok := s.outcomes[symbol]
	if !ok {
		outcome = &feedOutcomes{}
		s.outcomes[symbol] = outcome
	}
	outcome.attempts++
	if success {
		outcome.successes++
	}
}

// Evaluate produces a quality report for a sample. The sample is appended to
// the symbol's history and the report replaces the symbol's cached report.
func (s *Scorer) Evaluate(sample sources.PriceSample) *QualityReport {
	symbol := strings.ToUpper(sample.Symbol)
	rules := s.rulesFor(symbol)

	// History is updated first so the consistency analysis sees the sample
	// under evaluation as its most recent point.
	s.history.Append(symbol, history.Entry{Price: sample.Price, Timestamp: sample.Timestamp})

	report := &QualityReport{
		Symbol:      symbol,
		Reliability: ReliabilityAssessment{SuccessRate: s.successRate(symbol)},
		Warnings:    []string{},
		Actions:     []string{},
		GeneratedAt: time.Now(),
	}

	staleness, stalenessScore := s.assessStaleness(sample.StalenessSeconds, rules)
	report.Staleness = staleness
	report.Confidence = s.assessConfidence(sample)

	consistency, consistencyScore := s.assessConsistency(symbol)
	report.Consistency = consistency
	if consistency.Stability == StabilityExtreme {
		report.Warnings = append(report.Warnings, WarningHighVolatility)
	}

	deviationFlag := s.checkEMADeviation(sample, rules, report)
	tradingFlag := s.checkTradingStatus(sample, report)
	lowConfidenceFlag := report.Confidence.Level == ConfidenceLow

	report.OverallScore = compositeScore(report.Confidence.Score, consistencyScore, stalenessScore)
	report.Recommendation = s.recommend(sample, report, lowConfidenceFlag, tradingFlag, deviationFlag)

	if report.Staleness.Level == StalenessExpired {
		report.Warnings = append(report.Warnings, WarningExpired)
		report.Actions = append(report.Actions, ActionRefreshPrice)
	}

	metrics.RecordQuality(symbol, report.OverallScore, sample.StalenessSeconds)

	s.mu.Lock()
	s.cache[symbol] = cachedReport{
		report:    report,
		expiresAt: time.Now().Add(s.cfg.ReportCacheTTL.ToDuration()),
	}
	s.mu.Unlock()

	s.logger.Debug("Evaluated sample",
		"symbol", symbol,
		"score", report.OverallScore,
		"recommendation", string(report.Recommendation))

	return report
}

// CachedReport returns the last report for a symbol if it is still within the
// cache TTL, nil otherwise.
func (s *Scorer) CachedReport(symbol string) *QualityReport {
	symbol = strings.ToUpper(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()

	cached, ok := s.cache[symbol]
	if !ok || time.Now().After(cached.expiresAt) {
		return nil
	}
	return cached.report
}

func (s *Scorer) rulesFor(symbol string) config.ValidationRules {
	if rules, ok := s.rules[symbol]; ok {
		return rules
	}
	rules := config.DefaultValidationRules
	rules.Symbol = symbol
	return rules
}

func (s *Scorer) successRate(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	outcome, ok := s.outcomes[symbol]
	if !ok || outcome.attempts == 0 {
		return 100
	}
	return float64(outcome.successes) / float64(outcome.attempts) * 100
}

// expiredThreshold is the effective expiry boundary for a symbol: the global
// stale band, tightened by the symbol's own max staleness when stricter.
func (s *Scorer) expiredThreshold(rules config.ValidationRules) float64 {
	threshold := s.cfg.Staleness.StaleMaxSeconds
	if rules.MaxStalenessSeconds > 0 && rules.MaxStalenessSeconds < threshold {
		threshold = rules.MaxStalenessSeconds
	}
	return threshold
}

func (s *Scorer) assessStaleness(seconds float64, rules config.ValidationRules) (StalenessAssessment, float64) {
	bands := s.cfg.Staleness
	expiredAt := s.expiredThreshold(rules)

	assessment := StalenessAssessment{Seconds: seconds}
	switch {
	case seconds < bands.FreshMaxSeconds && seconds < expiredAt:
		assessment.Level = StalenessFresh
		assessment.Recommendation = "safe to use"
	case seconds < bands.AgingMaxSeconds && seconds < expiredAt:
		assessment.Level = StalenessAging
		assessment.Recommendation = "consider refreshing"
	case seconds < expiredAt:
		assessment.Level = StalenessStale
		assessment.Recommendation = "refresh required"
	default:
		assessment.Level = StalenessExpired
		assessment.Recommendation = "do not use"
	}

	score := 0.0
	if seconds < expiredAt {
		score = 100 * (1 - seconds/expiredAt)
	}
	return assessment, score
}

func (s *Scorer) assessConfidence(sample sources.PriceSample) ConfidenceAssessment {
	if !sample.Price.IsPositive() {
		return ConfidenceAssessment{Level: ConfidenceLow, Score: 0}
	}

	hundred := decimal.NewFromInt(100)
	ratioPct, _ := sample.ConfidenceInterval.Mul(hundred).Div(sample.Price).Float64()

	// Monotonic mapping: a tighter interval always yields a higher score.
	score := int(math.Round(100 - 10*ratioPct))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	bands := s.cfg.Confidence
	assessment := ConfidenceAssessment{Score: score}
	switch {
	case ratioPct <= bands.VeryHighMaxPercent:
		assessment.Level = ConfidenceVeryHigh
	case ratioPct <= bands.HighMaxPercent:
		assessment.Level = ConfidenceHigh
	case ratioPct <= bands.MediumMaxPercent:
		assessment.Level = ConfidenceMedium
	default:
		assessment.Level = ConfidenceLow
	}
	return assessment
}

// assessConsistency computes volatility as the population standard deviation
// of percentage returns between consecutive history points.
func (s *Scorer) assessConsistency(symbol string) (ConsistencyAssessment, float64) {
	entries := s.history.Entries(symbol)
	if len(entries) < 2 {
		return ConsistencyAssessment{Volatility: 0, Stability: StabilityStable}, neutralConsistencyScore
	}

	returns := make([]float64, 0, len(entries)-1)
	for i := 1; i < len(entries); i++ {
		prev := entries[i-1].Price
		if !prev.IsPositive() {
			continue
		}
		pct, _ := entries[i].Price.Sub(prev).Div(prev).Float64()
		returns = append(returns, pct*100)
	}
	if len(returns) == 0 {
		return ConsistencyAssessment{Volatility: 0, Stability: StabilityStable}, neutralConsistencyScore
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	volatility := math.Sqrt(variance)

	bands := s.cfg.Volatility
	assessment := ConsistencyAssessment{Volatility: volatility}
	var score float64
	switch {
	case volatility <= bands.StableMaxPercent:
		assessment.Stability = StabilityStable
		score = 100
	case volatility <= bands.ModerateMaxPercent:
		assessment.Stability = StabilityModerate
		score = 80
	case volatility <= bands.VolatileMaxPercent:
		assessment.Stability = StabilityVolatile
		score = 50
	default:
		assessment.Stability = StabilityExtreme
		score = 20
	}
	return assessment, score
}

func (s *Scorer) checkEMADeviation(sample sources.PriceSample, rules config.ValidationRules, report *QualityReport) bool {
	if !sample.EMAPrice.IsPositive() {
		return false
	}
	hundred := decimal.NewFromInt(100)
	deviationPct, _ := sample.Price.Sub(sample.EMAPrice).Abs().Div(sample.EMAPrice).Mul(hundred).Float64()
	if deviationPct <= rules.MaxPriceDeviationPercent {
		return false
	}
	report.Warnings = append(report.Warnings, WarningEMADeviation)
	report.Actions = append(report.Actions, ActionVerifyAlternativeSources)
	return true
}

func (s *Scorer) checkTradingStatus(sample sources.PriceSample, report *QualityReport) bool {
	if sample.TradingStatus == sources.TradingStatusTrading {
		return false
	}
	report.Warnings = append(report.Warnings, WarningNotTrading)
	report.Actions = append(report.Actions, ActionVerifyMarketStatus)
	return true
}

// compositeScore blends the confidence and consistency scores and damps the
// result by the staleness score, so it decays to 0 at the expiry boundary.
func compositeScore(confidenceScore int, consistencyScore, stalenessScore float64) int {
	base := confidenceWeight*float64(confidenceScore) + consistencyWeight*consistencyScore

	score := int(math.Round(base * stalenessScore / 100))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// recommend applies the recommendation rules in priority order; the first
// match wins.
func (s *Scorer) recommend(sample sources.PriceSample, report *QualityReport, lowConfidence, nonTrading, deviation bool) Recommendation {
	if report.Staleness.Level == StalenessExpired {
		return RecommendationReject
	}
	if report.OverallScore < s.cfg.RejectCutoff || !sample.Price.IsPositive() {
		return RecommendationReject
	}

	flags := 0
	for _, flagged := range []bool{lowConfidence, nonTrading, deviation} {
		if flagged {
			flags++
		}
	}
	switch {
	case flags >= 2:
		return RecommendationFallback
	case flags == 1:
		return RecommendationUseWithCaution
	default:
		return RecommendationUse
	}
}
