package synth

import (
	"context"
	"fmt"

	"kalshi-edge/pkg/types"
)

// Mock is a deterministic backend for dry runs and tests. The
// prediction leans away from the market price by a fixed step per net
// bullish or bearish factor, so pipelines see non-trivial but
// reproducible output.
type Mock struct {
	CostDollars float64
	LeanPerNet  float64 // probability shift per net factor polarity
}

func NewMock() *Mock {
	return &Mock{CostDollars: 0.02, LeanPerNet: 0.03}
}

func (m *Mock) Synthesize(_ context.Context, in Input) (Result, error) {
	net := 0
	for _, f := range in.Factors {
		switch f.Polarity {
		case types.PolarityBullish:
			net++
		case types.PolarityBearish:
			net--
		}
	}
	predicted := clampProb(in.MarketProb + float64(net)*m.LeanPerNet)

	confidence := types.ConfidenceLow
	switch {
	case len(in.Citations) >= 3 && len(in.Factors) >= 3:
		confidence = types.ConfidenceHigh
	case len(in.Citations) >= 1:
		confidence = types.ConfidenceMedium
	}

	return Result{
		Analysis: types.AnalysisResult{
			Ticker:               in.Ticker,
			PredictedProbability: predicted,
			Confidence:           confidence,
			Reasoning: fmt.Sprintf("Synthetic analysis of %s: %d factors, net polarity %+d against market %.2f.",
				in.Ticker, len(in.Factors), net, in.MarketProb),
			Factors:   in.Factors,
			Citations: in.Citations,
		},
		CostDollars: m.CostDollars,
	}, nil
}

func clampProb(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

var _ Synthesizer = (*Mock)(nil)
