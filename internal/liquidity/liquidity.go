// Package liquidity scores how tradable a market is.
//
// Everything here is pure computation over a Market and an Orderbook
// snapshot: book depth around the midpoint, a slippage walker that
// simulates consuming the book, the largest order size that stays inside a
// slippage tolerance, and a composite 0–100 score with a letter grade.
package liquidity

import (
	"fmt"
	"math"

	"kalshi-edge/pkg/types"
)

// Grade buckets the composite score.
type Grade string

const (
	GradeIlliquid Grade = "illiquid"
	GradeThin     Grade = "thin"
	GradeModerate Grade = "moderate"
	GradeLiquid   Grade = "liquid"
)

// gradeFor applies the cutoffs: ≥76 liquid, ≥51 moderate, ≥26 thin.
func gradeFor(score int) Grade {
	switch {
	case score >= 76:
		return GradeLiquid
	case score >= 51:
		return GradeModerate
	case score >= 26:
		return GradeThin
	default:
		return GradeIlliquid
	}
}

// Weights splits the composite score across its four components. They
// must sum to 1.
type Weights struct {
	Spread       float64
	Depth        float64
	Volume       float64
	OpenInterest float64
}

// Config tunes the analysis. DefaultConfig matches the standard profile.
type Config struct {
	Weights                Weights
	DepthRadiusCents       int64
	SlippageToleranceCents float64
	ProbeSizes             []int64 // order sizes in the slippage table
}

// DefaultConfig returns the standard weighting and probes.
func DefaultConfig() Config {
	return Config{
		Weights:                Weights{Spread: 0.30, Depth: 0.30, Volume: 0.20, OpenInterest: 0.20},
		DepthRadiusCents:       5,
		SlippageToleranceCents: 2,
		ProbeSizes:             []int64{10, 50, 100, 250, 500},
	}
}

// Validate checks the weights sum to 1 within float tolerance.
func (c Config) Validate() error {
	sum := c.Weights.Spread + c.Weights.Depth + c.Weights.Volume + c.Weights.OpenInterest
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("liquidity: weights sum to %v, want 1", sum)
	}
	if c.DepthRadiusCents <= 0 {
		return fmt.Errorf("liquidity: depth radius must be positive")
	}
	return nil
}

// Analysis is the full liquidity report for one market.
type Analysis struct {
	Ticker        string
	Score         int // 0..100
	Grade         Grade
	Depth         DepthReport
	SlippageTable []SlippageEstimate
	MaxSafeSize   int64
	Warnings      []string
}

// Analyze builds the composite report. The market supplies quote, volume,
// and open-interest context; the book supplies depth and slippage.
func Analyze(m types.Market, ob types.Orderbook, cfg Config) (Analysis, error) {
	if err := cfg.Validate(); err != nil {
		return Analysis{}, err
	}

	depth := DepthScore(ob, cfg.DepthRadiusCents)

	a := Analysis{
		Ticker: m.Ticker,
		Depth:  depth,
		Score:  compositeScore(m.SpreadCents(), depth.WeightedScore, m.Volume24h, m.OpenInterest, cfg.Weights),
	}
	a.Grade = gradeFor(a.Score)

	for _, n := range cfg.ProbeSizes {
		a.SlippageTable = append(a.SlippageTable,
			EstimateSlippage(ob, types.SideYes, types.ActionBuy, n))
	}
	a.MaxSafeSize = MaxSafeSize(ob, types.SideYes, types.ActionBuy, cfg.SlippageToleranceCents)

	if spread := m.SpreadCents(); spread > 10 {
		a.Warnings = append(a.Warnings, fmt.Sprintf("wide spread: %d cents", spread))
	}
	if total := depth.YesContracts + depth.NoContracts; total < 100 {
		a.Warnings = append(a.Warnings, fmt.Sprintf("shallow book: %d resting contracts", total))
	}
	if math.Abs(depth.Imbalance) > 0.5 {
		a.Warnings = append(a.Warnings, fmt.Sprintf("one-sided book: imbalance %.2f", depth.Imbalance))
	}
	if m.Volume24h < 1000 {
		a.Warnings = append(a.Warnings, fmt.Sprintf("low 24h volume: %d", m.Volume24h))
	}
	return a, nil
}

// compositeScore maps raw inputs to 0–100 components, rounds each, and
// blends them by weight.
//
//	spread → max(0, 100 − 5·spread_cents)
//	depth  → min(100, weighted_score / 10)
//	volume → min(100, volume_24h / 100)
//	oi     → min(100, open_interest / 50)
func compositeScore(spreadCents int64, weightedDepth float64, volume24h, openInterest int64, w Weights) int {
	spread := math.Max(0, 100-5*float64(spreadCents))
	depth := math.Min(100, weightedDepth/10)
	volume := math.Min(100, float64(volume24h)/100)
	oi := math.Min(100, float64(openInterest)/50)

	// Components round before weighting so reported sub-scores and the
	// composite stay consistent.
	total := math.Round(spread)*w.Spread +
		math.Round(depth)*w.Depth +
		math.Round(volume)*w.Volume +
		math.Round(oi)*w.OpenInterest
	return int(math.Round(total))
}
