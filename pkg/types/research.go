package types

import "time"

// ————————————————————————————————————————————————————————————————————————
// Research objects
// ————————————————————————————————————————————————————————————————————————
// These types flow through the agent pipeline: the research provider
// produces Factors and citations, the synthesizer turns them into an
// AnalysisResult, the verifier scores it, and the orchestrator persists a
// PredictionLog row. Theses and Alerts are user-authored inputs.

// ThesisStatus is the lifecycle of a user-authored thesis.
type ThesisStatus string

const (
	ThesisDraft    ThesisStatus = "draft"
	ThesisActive   ThesisStatus = "active"
	ThesisResolved ThesisStatus = "resolved"
	ThesisVoid     ThesisStatus = "void"
)

// Thesis is a user-authored research object pinned to one or more markets.
// ID is a UUID string, never numeric.
type Thesis struct {
	ID                string
	Title             string
	Markets           []string // tickers this thesis covers
	Notes             string
	YourProbability   float64
	MarketProbability float64 // market-implied probability when authored
	Confidence        Confidence
	Status            ThesisStatus
	ResolutionOutcome string // "yes"/"no" once resolved, else ""
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Polarity labels the direction a factor argues relative to YES.
type Polarity string

const (
	PolarityBullish Polarity = "bullish"
	PolarityBearish Polarity = "bearish"
	PolarityNeutral Polarity = "neutral"
)

// Factor is one piece of evidence in an analysis. Factual claims must carry
// at least one citation URL from the research bundle or the verifier marks
// them ungrounded.
type Factor struct {
	Claim     string   `json:"claim"`
	Polarity  Polarity `json:"polarity"`
	Citations []string `json:"citations,omitempty"`
}

// AnalysisResult is the synthesizer's structured output. Immutable once
// produced.
type AnalysisResult struct {
	Ticker               string     `json:"ticker"`
	PredictedProbability float64    `json:"predicted_probability"` // in [0,1]
	Confidence           Confidence `json:"confidence"`
	Reasoning            string     `json:"reasoning"`
	Factors              []Factor   `json:"factors"`
	Citations            []string   `json:"citations"` // the full source URL set
}

// VerificationReport is the deterministic verifier's judgment of an
// AnalysisResult. Advisory in phase 1: logged and returned, never blocking.
type VerificationReport struct {
	Passed              bool     `json:"passed"`
	GroundingScore      float64  `json:"grounding_score"` // grounded factors / total factors
	UngroundedFactors   []string `json:"ungrounded_factors,omitempty"`
	CalibrationNote     string   `json:"calibration_note,omitempty"`
	ConsistencyIssues   []string `json:"consistency_issues,omitempty"`
	SuggestedEscalation bool     `json:"suggested_escalation"`
}

// PredictionStatus marks how an agent run ended.
type PredictionStatus string

const (
	PredictionOK     PredictionStatus = "ok"
	PredictionFailed PredictionStatus = "failed"
)

// PredictionLog is the persisted trace of one agent run against one market.
// ActualOutcome, ResolvedAt, and BrierScore are filled in asynchronously
// when the referenced market settles.
type PredictionLog struct {
	ID               int64
	Ticker           string
	PredictedProb    float64
	MarketProbAtTime float64
	Confidence       Confidence
	Reasoning        string
	FactorsJSON      string // serialized []Factor
	Status           PredictionStatus
	Diagnostic       string // failure detail when Status == failed
	Escalated        bool
	PredictedAt      time.Time
	ActualOutcome    *int       // 0 or 1 once the market settles
	ResolvedAt       *time.Time
	BrierScore       *float64 // (predicted − outcome)²
}

// ————————————————————————————————————————————————————————————————————————
// Alerts, news, sentiment
// ————————————————————————————————————————————————————————————————————————

// AlertKind selects which market quantity an alert watches.
type AlertKind string

const (
	AlertPrice     AlertKind = "price"
	AlertVolume    AlertKind = "volume"
	AlertSpread    AlertKind = "spread"
	AlertSentiment AlertKind = "sentiment"
)

// AlertDirection selects which side of the threshold fires.
type AlertDirection string

const (
	AlertAbove AlertDirection = "above"
	AlertBelow AlertDirection = "below"
)

// Alert is a user-configured threshold watch, evaluated by the monitor loop
// against the latest snapshots.
type Alert struct {
	ID        int64
	Kind      AlertKind
	Ticker    string
	Threshold float64 // cents for price/spread, contracts for volume, score for sentiment
	Direction AlertDirection
	Active    bool
	CreatedAt time.Time
}

// NewsItem is a stored external headline relevant to one or more markets.
type NewsItem struct {
	ID          int64
	Ticker      string
	Title       string
	URL         string
	Source      string
	PublishedAt time.Time
	FetchedAt   time.Time
}

// SentimentScore is an externally derived sentiment value for a ticker.
// The platform stores and evaluates these; their derivation is out of scope.
type SentimentScore struct {
	Ticker     string
	Score      float64 // [-1, 1]
	SampleSize int
	ScoredAt   time.Time
}
