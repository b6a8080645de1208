package liquidity

import (
	"math"

	"kalshi-edge/pkg/types"
)

// SlippageEstimate is the result of simulating one marketable order
// against the book. Prices are in cents.
type SlippageEstimate struct {
	Side              types.Side
	Action            types.Action
	Requested         int64
	Filled            int64
	RemainingUnfilled int64
	BestPrice         int64   // first price the walk would consume
	WorstPrice        int64   // last price the walk consumed
	AvgFill           float64 // volume-weighted average of consumed prices
	SlippageCents     float64 // |avg_fill − best_price|
	SlippagePct       float64
	LevelsCrossed     int
	TotalCostCents    int64
}

// ladder returns the levels a marketable (side, action) order consumes,
// in consumption order. Buying consumes the implied asks best-first
// (lowest ask first); selling consumes the side's own bids best-first
// (highest bid first).
func ladder(ob types.Orderbook, side types.Side, action types.Action) []types.Level {
	switch {
	case side == types.SideYes && action == types.ActionBuy:
		return ob.YesAsks()
	case side == types.SideYes && action == types.ActionSell:
		return ob.YesBids
	case side == types.SideNo && action == types.ActionBuy:
		return ob.NoAsks()
	default:
		return ob.NoBids
	}
}

// EstimateSlippage walks the book for a marketable order of the given
// size. Filled + RemainingUnfilled always equals the requested quantity;
// an empty ladder fills nothing.
func EstimateSlippage(ob types.Orderbook, side types.Side, action types.Action, quantity int64) SlippageEstimate {
	est := SlippageEstimate{Side: side, Action: action, Requested: quantity}
	if quantity <= 0 {
		return est
	}

	levels := ladder(ob, side, action)
	if len(levels) == 0 {
		est.RemainingUnfilled = quantity
		return est
	}
	est.BestPrice = levels[0].PriceCents

	remaining := quantity
	for _, lv := range levels {
		if remaining == 0 {
			break
		}
		take := lv.Quantity
		if take > remaining {
			take = remaining
		}
		est.Filled += take
		est.TotalCostCents += take * lv.PriceCents
		est.WorstPrice = lv.PriceCents
		est.LevelsCrossed++
		remaining -= take
	}
	est.RemainingUnfilled = remaining

	if est.Filled > 0 {
		est.AvgFill = float64(est.TotalCostCents) / float64(est.Filled)
		est.SlippageCents = math.Abs(est.AvgFill - float64(est.BestPrice))
		if est.BestPrice > 0 {
			est.SlippagePct = est.SlippageCents / float64(est.BestPrice) * 100
		}
	}
	return est
}

// MaxSafeSize finds the largest order that both fills completely and
// stays within the slippage tolerance. Slippage grows monotonically with
// size, so a binary search over [1, total book size] suffices. Returns 0
// when even a single contract violates the tolerance or nothing rests on
// the relevant side.
func MaxSafeSize(ob types.Orderbook, side types.Side, action types.Action, toleranceCents float64) int64 {
	var total int64
	for _, lv := range ladder(ob, side, action) {
		total += lv.Quantity
	}
	if total == 0 {
		return 0
	}

	ok := func(n int64) bool {
		est := EstimateSlippage(ob, side, action, n)
		return est.RemainingUnfilled == 0 && est.SlippageCents <= toleranceCents
	}
	if !ok(1) {
		return 0
	}

	lo, hi := int64(1), total
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if ok(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
