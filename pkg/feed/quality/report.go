// Package quality turns raw price samples into quality reports: a composite
// score, banded assessments, and a usage recommendation.
package quality

import "time"

// ConfidenceLevel bands the provider-reported confidence interval.
type ConfidenceLevel string

const (
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceLow      ConfidenceLevel = "low"
)

// StalenessLevel bands the age of a sample.
type StalenessLevel string

const (
	StalenessFresh   StalenessLevel = "fresh"
	StalenessAging   StalenessLevel = "aging"
	StalenessStale   StalenessLevel = "stale"
	StalenessExpired StalenessLevel = "expired"
)

// Stability bands the observed price volatility.
type Stability string

const (
	StabilityStable   Stability = "stable"
	StabilityModerate Stability = "moderate"
	StabilityVolatile Stability = "volatile"
	StabilityExtreme  Stability = "extreme"
)

// Recommendation is the scorer's verdict on a sample.
type Recommendation string

const (
	RecommendationUse            Recommendation = "use"
	RecommendationUseWithCaution Recommendation = "use_with_caution"
	RecommendationFallback       Recommendation = "fallback"
	RecommendationReject         Recommendation = "reject"
)

// Warning and action strings attached to reports.
const (
	WarningHighVolatility = "High price volatility detected"
	WarningEMADeviation   = "Significant price deviation from EMA"
	WarningNotTrading     = "Market not in trading status"
	WarningExpired        = "Price data expired"

	ActionVerifyAlternativeSources = "Verify price against alternative sources"
	ActionVerifyMarketStatus       = "Verify market status before trading"
	ActionRefreshPrice             = "Fetch fresh price data"
)

// ConfidenceAssessment is the confidence-interval evaluation.
type ConfidenceAssessment struct {
	Level ConfidenceLevel `json:"level"`
	Score int             `json:"score"`
}

// StalenessAssessment is the sample-age evaluation.
type StalenessAssessment struct {
	Level          StalenessLevel `json:"level"`
	Seconds        float64        `json:"seconds"`
	Recommendation string         `json:"recommendation"`
}

// ConsistencyAssessment is the history-based volatility evaluation.
type ConsistencyAssessment struct {
	Volatility float64   `json:"volatility"`
	Stability  Stability `json:"stability"`
}

// ReliabilityAssessment is the feed-level success-rate evaluation.
type ReliabilityAssessment struct {
	SuccessRate float64 `json:"success_rate"`
}

// QualityReport is a derived, read-only snapshot of one sample's
// trustworthiness. Reports are regenerated on every evaluation and
// superseded, never updated in place.
type QualityReport struct {
	Symbol         string                `json:"symbol"`
	OverallScore   int                   `json:"overall_score"`
	Confidence     ConfidenceAssessment  `json:"confidence"`
	Staleness      StalenessAssessment   `json:"staleness"`
	Consistency    ConsistencyAssessment `json:"consistency"`
	Reliability    ReliabilityAssessment `json:"reliability"`
	Recommendation Recommendation        `json:"recommendation"`
	Warnings       []string              `json:"warnings"`
	Actions        []string              `json:"actions"`
	GeneratedAt    time.Time             `json:"generated_at"`
}
