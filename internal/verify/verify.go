// Package verify runs deterministic checks over a synthesized
// analysis: citation grounding, calibration sanity, and polarity
// consistency. No model calls. The report is advisory: it is logged
// and persisted alongside the prediction but never blocks it.
package verify

import (
	"fmt"
	"log/slog"
	"math"

	"kalshi-edge/internal/liquidity"
	"kalshi-edge/pkg/types"
)

// Config holds the verifier thresholds.
type Config struct {
	// HighEVDelta is the |predicted − market| gap that, on a
	// reasonably liquid market, suggests escalating to a deeper run.
	HighEVDelta float64
	// HighConfidenceDelta is the gap beyond which high confidence
	// needs at least MinCitationsForBold distinct citations.
	HighConfidenceDelta float64
	MinCitationsForBold int
	// AgreementBand is how close to the market a prediction can sit
	// while still claiming more than low confidence.
	AgreementBand float64
}

func DefaultConfig() Config {
	return Config{
		HighEVDelta:         0.15,
		HighConfidenceDelta: 0.35,
		MinCitationsForBold: 3,
		AgreementBand:       0.02,
	}
}

// Verifier applies Config to analyses.
type Verifier struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Verifier {
	return &Verifier{cfg: cfg, logger: logger.With("component", "verify")}
}

// Verify checks the analysis against its research sources and the
// market state it was produced from. sources is the URL set the
// research step actually returned; factor citations must come from it.
func (v *Verifier) Verify(a types.AnalysisResult, sources []string, marketProb float64, grade liquidity.Grade) types.VerificationReport {
	rep := types.VerificationReport{}

	known := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		known[s] = struct{}{}
	}

	// Grounding: each factor must cite at least one URL the research
	// step actually produced. No factors means nothing to ground.
	grounded := 0
	for _, f := range a.Factors {
		if factorGrounded(f, known) {
			grounded++
			continue
		}
		rep.UngroundedFactors = append(rep.UngroundedFactors, f.Claim)
	}
	if len(a.Factors) == 0 {
		rep.GroundingScore = 1
	} else {
		rep.GroundingScore = float64(grounded) / float64(len(a.Factors))
	}

	delta := a.PredictedProbability - marketProb

	// Calibration sanity.
	distinct := distinctCitations(a.Citations)
	switch {
	case a.Confidence == types.ConfidenceHigh &&
		math.Abs(delta) > v.cfg.HighConfidenceDelta &&
		distinct < v.cfg.MinCitationsForBold:
		rep.CalibrationNote = fmt.Sprintf(
			"high confidence on a %.2f gap from market needs at least %d distinct citations, got %d",
			math.Abs(delta), v.cfg.MinCitationsForBold, distinct)
	case math.Abs(delta) <= v.cfg.AgreementBand && a.Confidence != types.ConfidenceLow:
		rep.CalibrationNote = fmt.Sprintf(
			"prediction within %.2f of market cannot claim %s confidence", v.cfg.AgreementBand, a.Confidence)
	}

	// Consistency: the factors' net polarity must not contradict the
	// direction of the prediction relative to the market.
	if issue := polarityIssue(a.Factors, delta, v.cfg.AgreementBand); issue != "" {
		rep.ConsistencyIssues = append(rep.ConsistencyIssues, issue)
	}

	rep.Passed = rep.CalibrationNote == "" &&
		len(rep.UngroundedFactors) == 0 &&
		len(rep.ConsistencyIssues) == 0

	rep.SuggestedEscalation = !rep.Passed ||
		a.Confidence == types.ConfidenceLow ||
		(math.Abs(delta) > v.cfg.HighEVDelta &&
			(grade == liquidity.GradeModerate || grade == liquidity.GradeLiquid)) ||
		(distinct < 2 && a.Confidence != types.ConfidenceLow)

	v.logger.Info("verification complete",
		"ticker", a.Ticker,
		"passed", rep.Passed,
		"grounding_score", rep.GroundingScore,
		"escalate", rep.SuggestedEscalation)
	return rep
}

func factorGrounded(f types.Factor, known map[string]struct{}) bool {
	for _, c := range f.Citations {
		if _, ok := known[c]; ok {
			return true
		}
	}
	return false
}

func distinctCitations(urls []string) int {
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		seen[u] = struct{}{}
	}
	return len(seen)
}

// polarityIssue reports a contradiction between the evidence's net
// lean and the prediction's direction. Predictions inside the
// agreement band have no direction to contradict.
func polarityIssue(factors []types.Factor, delta, band float64) string {
	net := 0
	for _, f := range factors {
		switch f.Polarity {
		case types.PolarityBullish:
			net++
		case types.PolarityBearish:
			net--
		}
	}
	switch {
	case delta > band && net < 0:
		return fmt.Sprintf("prediction is %.2f above market but factors lean bearish (%+d)", delta, net)
	case delta < -band && net > 0:
		return fmt.Sprintf("prediction is %.2f below market but factors lean bullish (%+d)", -delta, net)
	}
	return ""
}
