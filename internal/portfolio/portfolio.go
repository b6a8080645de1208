// Package portfolio derives positions and P&L from the account's fill
// history. Positions are never stored: they are recomputed on demand
// from the ordered fill stream, so the whole package is a pure fold
// over fills plus settlements, with marks applied at the end.
package portfolio

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"kalshi-edge/pkg/types"
)

// key identifies one FIFO book: contracts on one side of one market.
type key struct {
	Ticker string
	Side   types.Side
}

// Position is the derived state of one (ticker, side) book. Cash
// amounts are Price units. NetCash excludes fees; FeesPaid carries
// them separately.
type Position struct {
	Ticker   string
	Side     types.Side
	Lots     []Lot // open lots, oldest first
	Qty      int64 // total open contracts
	Realized types.Price
	FeesPaid types.Price
	NetCash  types.Price // sell proceeds minus buy cost

	Mark       types.Price // YES midpoint used for unrealized, 0 if unmarked
	Marked     bool
	Unrealized types.Price
}

// Reconciler folds fills and settlements into positions. It is not
// safe for concurrent use; build one per reconcile pass or guard it.
type Reconciler struct {
	books  map[key]*book
	seen   map[string]struct{} // fill idempotency
	logger *slog.Logger
}

type book struct {
	queue    lotQueue
	realized types.Price
	fees     types.Price
	netCash  types.Price
}

func NewReconciler(logger *slog.Logger) *Reconciler {
	return &Reconciler{
		books:  make(map[key]*book),
		seen:   make(map[string]struct{}),
		logger: logger.With("component", "portfolio"),
	}
}

func (r *Reconciler) book(k key) *book {
	b, ok := r.books[k]
	if !ok {
		b = &book{}
		r.books[k] = b
	}
	return b
}

// Apply folds fills into the books. Fills are replayed in trade time,
// ties broken by fill id, and each fill id is applied at most once, so
// re-feeding an overlapping batch is a no-op for the overlap.
func (r *Reconciler) Apply(fills []types.Fill) {
	ordered := make([]types.Fill, len(fills))
	copy(ordered, fills)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].TradeTS.Equal(ordered[j].TradeTS) {
			return ordered[i].TradeTS.Before(ordered[j].TradeTS)
		}
		return ordered[i].FillID < ordered[j].FillID
	})

	for _, f := range ordered {
		if _, dup := r.seen[f.FillID]; dup {
			continue
		}
		r.seen[f.FillID] = struct{}{}
		r.apply(f)
	}
}

func (r *Reconciler) apply(f types.Fill) {
	b := r.book(key{Ticker: f.Ticker, Side: f.Side})
	b.fees += f.Fees

	switch f.Action {
	case types.ActionBuy:
		b.queue.push(Lot{Qty: f.Count, UnitCost: f.Price, AcquiredTS: f.TradeTS})
		b.netCash -= types.Price(f.Count) * f.Price
	case types.ActionSell:
		remaining := f.Count
		b.netCash += types.Price(f.Count) * f.Price
		for remaining > 0 && !b.queue.empty() {
			lot := b.queue.front()
			take := min64(remaining, lot.Qty)
			b.realized += types.Price(take) * (f.Price - lot.UnitCost)
			lot.Qty -= take
			remaining -= take
			if lot.Qty == 0 {
				b.queue.pop()
			}
		}
		if remaining > 0 {
			// Sell with no matching lots means the fill history is
			// incomplete; the proceeds stay in NetCash but nothing
			// realizes against a cost basis.
			r.logger.Warn("sell exceeds open lots",
				"fill_id", f.FillID, "ticker", f.Ticker, "side", f.Side, "excess", remaining)
		}
	}
}

// ApplySettlements realizes every open lot of a settled ticker at the
// settlement value and clears the book. YES lots realize against the
// value directly, NO lots against its complement.
func (r *Reconciler) ApplySettlements(settlements []types.Settlement) {
	for _, st := range settlements {
		value := types.Price(st.Value) * types.PerDollar
		for side, payout := range map[types.Side]types.Price{
			types.SideYes: value,
			types.SideNo:  types.PerDollar - value,
		} {
			b, ok := r.books[key{Ticker: st.Ticker, Side: side}]
			if !ok {
				continue
			}
			for _, lot := range b.queue.open() {
				b.realized += types.Price(lot.Qty) * (payout - lot.UnitCost)
				b.netCash += types.Price(lot.Qty) * payout
			}
			b.queue.clear()
		}
	}
}

func positionFrom(k key, b *book) Position {
	lots := b.queue.open()
	p := Position{
		Ticker:   k.Ticker,
		Side:     k.Side,
		Lots:     lots,
		Realized: b.realized,
		FeesPaid: b.fees,
		NetCash:  b.netCash,
	}
	for _, lot := range lots {
		p.Qty += lot.Qty
	}
	return p
}

func sortPositions(out []Position) []Position {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Side < out[j].Side
	})
	return out
}

// Positions returns the books that still hold contracts, sorted by
// ticker then side. Books whose lots have fully drained (sold off or
// settled) are omitted; their realized history stays reachable through
// Closed and the Mark rollup.
func (r *Reconciler) Positions() []Position {
	var out []Position
	for k, b := range r.books {
		if b.queue.empty() {
			continue
		}
		out = append(out, positionFrom(k, b))
	}
	return sortPositions(out)
}

// Closed returns the drained books that still carry realized-P&L, fee,
// or cash history, sorted by ticker then side.
func (r *Reconciler) Closed() []Position {
	var out []Position
	for k, b := range r.books {
		if !b.queue.empty() {
			continue
		}
		if b.realized == 0 && b.fees == 0 && b.netCash == 0 {
			continue
		}
		out = append(out, positionFrom(k, b))
	}
	return sortPositions(out)
}

// ————————————————————————————————————————————————————————————————————————
// Marks and P&L reporting
// ————————————————————————————————————————————————————————————————————————

// MarkSource supplies a YES midpoint for a ticker. Implementations
// report ok=false when they have no price rather than guessing.
type MarkSource interface {
	YesMid(ctx context.Context, ticker string) (types.Price, bool)
}

// ChainMarks tries each source in order, so a live book source can sit
// in front of a snapshot fallback.
type ChainMarks []MarkSource

func (c ChainMarks) YesMid(ctx context.Context, ticker string) (types.Price, bool) {
	for _, src := range c {
		if mark, ok := src.YesMid(ctx, ticker); ok {
			return mark, true
		}
	}
	return 0, false
}

// BookSource is the live-orderbook dependency of BookMarks.
// *exchange.Client satisfies it.
type BookSource interface {
	GetOrderbook(ctx context.Context, ticker string, depth int) (types.Orderbook, error)
}

// BookMarks marks from the live orderbook midpoint.
type BookMarks struct {
	Books BookSource
}

func (b BookMarks) YesMid(ctx context.Context, ticker string) (types.Price, bool) {
	ob, err := b.Books.GetOrderbook(ctx, ticker, 1)
	if err != nil {
		return 0, false
	}
	mid, ok := ob.MidCents()
	if !ok {
		return 0, false
	}
	return types.Price(math.Round(mid * float64(types.PerCent))), true
}

// SnapshotSource is the stored-history dependency of SnapshotMarks.
// *store.Store satisfies it.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context, ticker string) (types.PriceSnapshot, error)
}

// SnapshotMarks marks from the most recent stored snapshot.
type SnapshotMarks struct {
	History SnapshotSource
}

func (s SnapshotMarks) YesMid(ctx context.Context, ticker string) (types.Price, bool) {
	snap, err := s.History.LatestSnapshot(ctx, ticker)
	if err != nil {
		return 0, false
	}
	return types.Price(math.Round(snap.MidCents() * float64(types.PerCent))), true
}

// Report is the portfolio-wide P&L rollup. Totals cover every book,
// including drained ones that no longer appear in Positions.
type Report struct {
	Positions  []Position
	Closed     []Position
	Realized   types.Price
	Unrealized types.Price
	FeesPaid   types.Price
	NetPnL     types.Price // realized + unrealized − fees
}

// Mark prices open lots and rolls up the portfolio report. Unmarked
// positions contribute zero unrealized and are flagged via Marked.
func (r *Reconciler) Mark(ctx context.Context, marks MarkSource) Report {
	rep := Report{Positions: r.Positions(), Closed: r.Closed()}
	for _, b := range r.books {
		rep.Realized += b.realized
		rep.FeesPaid += b.fees
	}
	for i := range rep.Positions {
		p := &rep.Positions[i]
		yesMid, ok := marks.YesMid(ctx, p.Ticker)
		if !ok {
			r.logger.Warn("no mark available, unrealized omitted", "ticker", p.Ticker, "side", p.Side)
			continue
		}
		p.Mark = yesMid
		p.Marked = true
		mark := yesMid
		if p.Side == types.SideNo {
			mark = types.PerDollar - yesMid
		}
		for _, lot := range p.Lots {
			p.Unrealized += types.Price(lot.Qty) * (mark - lot.UnitCost)
		}
		rep.Unrealized += p.Unrealized
	}
	rep.NetPnL = rep.Realized + rep.Unrealized - rep.FeesPaid
	return rep
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
