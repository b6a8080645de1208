package liquidity

import (
	"math"

	"kalshi-edge/pkg/types"
)

// DepthReport describes how much size rests near the midpoint.
type DepthReport struct {
	WeightedScore float64 // Σ q·w over both sides within the radius
	YesContracts  int64   // raw resting YES-bid contracts (all levels)
	NoContracts   int64   // raw resting NO-bid contracts (all levels)
	Imbalance     float64 // (yes − no) / total, 0 for an empty book
}

// DepthScore weighs each resting level by its distance from the midpoint:
// a level at effective price p (YES bids as-is, NO bids inverted to
// 100−p) and distance d = |p − mid| contributes q·(1 − d/(r+1)) when
// d ≤ r, nothing beyond the radius. An empty or one-sided book without a
// midpoint scores 0.
func DepthScore(ob types.Orderbook, radiusCents int64) DepthReport {
	var report DepthReport
	for _, lv := range ob.YesBids {
		report.YesContracts += lv.Quantity
	}
	for _, lv := range ob.NoBids {
		report.NoContracts += lv.Quantity
	}
	if total := report.YesContracts + report.NoContracts; total > 0 {
		report.Imbalance = float64(report.YesContracts-report.NoContracts) / float64(total)
	}

	mid, ok := ob.MidCents()
	if !ok {
		return report
	}
	r := float64(radiusCents)

	weigh := func(effPrice float64, qty int64) {
		d := math.Abs(effPrice - mid)
		if d > r {
			return
		}
		report.WeightedScore += float64(qty) * (1 - d/(r+1))
	}
	for _, lv := range ob.YesBids {
		weigh(float64(lv.PriceCents), lv.Quantity)
	}
	for _, lv := range ob.NoBids {
		weigh(float64(100-lv.PriceCents), lv.Quantity)
	}
	return report
}
