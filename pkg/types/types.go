// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the platform — markets, events,
// order books, price snapshots, fills, settlements, and the research objects
// produced by the agent pipeline. It has no dependencies on internal
// packages, so it can be imported by any layer.
//
// Everything here is a frozen value object: the wire layer in
// internal/exchange builds these from validated payloads, the store
// round-trips them, and nothing downstream ever mutates one in place.
package types

import (
	"fmt"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side identifies which half of a binary contract a quote or fill refers to.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Action is the direction of a trade: buy or sell.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// MarketStatus is the lifecycle state of a market.
type MarketStatus string

const (
	StatusUnopened MarketStatus = "unopened"
	StatusOpen     MarketStatus = "open"
	StatusPaused   MarketStatus = "paused"
	StatusClosed   MarketStatus = "closed"
	StatusSettled  MarketStatus = "settled"
)

// ValidMarketStatus reports whether s is one of the recognized states.
func ValidMarketStatus(s MarketStatus) bool {
	switch s {
	case StatusUnopened, StatusOpen, StatusPaused, StatusClosed, StatusSettled:
		return true
	}
	return false
}

// Confidence is the synthesizer's self-reported confidence bucket.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ————————————————————————————————————————————————————————————————————————
// Markets, events, series
// ————————————————————————————————————————————————————————————————————————

// Market is the internal representation of a binary prediction market.
// Prices are Price fixed-point units. The order book carries bids only;
// opposite-side asks are implied (NoAsk = $1 − YesBid and vice versa), so
// only the two bid-side quotes and the YES ask are stored.
type Market struct {
	Ticker       string
	EventTicker  string
	SeriesTicker string
	Title        string
	Subtitle     string
	Status       MarketStatus
	Multivariate bool // joint-combination market from the collection endpoints

	YesBid    Price // best YES bid
	YesAsk    Price // best YES ask
	LastPrice Price // most recent trade price

	Volume       int64  // lifetime contracts traded
	Volume24h    int64  // trailing 24h contracts traded
	OpenInterest int64  // open contracts
	Liquidity    *Price // book liquidity in dollars; nil when upstream sends its sentinel

	CreatedTime    time.Time
	OpenTime       time.Time
	CloseTime      time.Time
	ExpirationTime time.Time
	SettlementTime time.Time // zero until settled

	Result string // "yes", "no", or "" while unsettled
}

// NoBid returns the implied best NO bid: $1 − YesAsk.
func (m Market) NoBid() Price {
	if m.YesAsk == 0 {
		return 0
	}
	return PerDollar - m.YesAsk
}

// NoAsk returns the implied best NO ask: $1 − YesBid.
func (m Market) NoAsk() Price {
	if m.YesBid == 0 {
		return PerDollar
	}
	return PerDollar - m.YesBid
}

// MidCents is the YES midpoint in cents: (yes_bid + yes_ask) / 2.
func (m Market) MidCents() float64 {
	return float64(m.YesBid.Cents()+m.YesAsk.Cents()) / 2
}

// MidProb is the market-implied probability of YES, in [0, 1].
func (m Market) MidProb() float64 {
	return (m.YesBid.Prob() + m.YesAsk.Prob()) / 2
}

// SpreadCents is the quoted spread in cents.
func (m Market) SpreadCents() int64 {
	return m.YesAsk.Cents() - m.YesBid.Cents()
}

// Unpriced reports whether the market carries placeholder quotes:
// (0, 100) means awaiting price discovery, (0, 0) means no quotes at all.
func (m Market) Unpriced() bool {
	return m.YesBid == 0 && (m.YesAsk == PerDollar || m.YesAsk == 0)
}

// Tradable reports whether the market accepts orders.
func (m Market) Tradable() bool {
	return m.Status == StatusOpen
}

// Event groups the markets of one real-world event.
type Event struct {
	Ticker       string
	SeriesTicker string
	Title        string
	SubTitle     string
	Category     string
	Multivariate bool
	StrikeDate   time.Time
}

// Series groups related events (e.g. a recurring economic release).
type Series struct {
	Ticker            string
	Title             string
	Category          string
	Frequency         string
	SettlementSources []string
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// Level is a single resting bid level: integer cents and contract count.
type Level struct {
	PriceCents int64
	Quantity   int64
}

// Orderbook is an immutable snapshot of one market's book. The exchange
// publishes bids only; asks on either side are implied by the opposite
// side's bids (a NO bid at p is a YES ask at 100−p). Both slices are
// sorted best-first, i.e. descending by price.
type Orderbook struct {
	Ticker    string
	YesBids   []Level
	NoBids    []Level
	FetchedAt time.Time
}

// Validate checks the structural invariants: positive quantities, no
// duplicate price levels per side, prices within (0, 100) cents.
func (ob Orderbook) Validate() error {
	for side, levels := range map[Side][]Level{SideYes: ob.YesBids, SideNo: ob.NoBids} {
		seen := make(map[int64]bool, len(levels))
		for _, lv := range levels {
			if lv.Quantity <= 0 {
				return fmt.Errorf("%s bid at %d¢: quantity %d must be positive", side, lv.PriceCents, lv.Quantity)
			}
			if lv.PriceCents <= 0 || lv.PriceCents >= 100 {
				return fmt.Errorf("%s bid price %d¢ out of range", side, lv.PriceCents)
			}
			if seen[lv.PriceCents] {
				return fmt.Errorf("duplicate %s bid level at %d¢", side, lv.PriceCents)
			}
			seen[lv.PriceCents] = true
		}
	}
	return nil
}

// BestYesBid returns the top YES bid in cents, or 0 if the side is empty.
func (ob Orderbook) BestYesBid() int64 {
	if len(ob.YesBids) == 0 {
		return 0
	}
	return ob.YesBids[0].PriceCents
}

// BestNoBid returns the top NO bid in cents, or 0 if the side is empty.
func (ob Orderbook) BestNoBid() int64 {
	if len(ob.NoBids) == 0 {
		return 0
	}
	return ob.NoBids[0].PriceCents
}

// YesAsks derives the implied YES ask ladder from the NO bids: each NO bid
// at p becomes a YES ask at 100−p. Returned best-first (ascending price),
// which is the natural walk order for a YES buyer.
func (ob Orderbook) YesAsks() []Level {
	return invertBids(ob.NoBids)
}

// NoAsks derives the implied NO ask ladder from the YES bids.
func (ob Orderbook) NoAsks() []Level {
	return invertBids(ob.YesBids)
}

// invertBids maps bids (best-first, descending) to implied opposite-side
// asks (best-first, ascending). Best bid inverts to best ask, so order is
// preserved.
func invertBids(bids []Level) []Level {
	asks := make([]Level, len(bids))
	for i, lv := range bids {
		asks[i] = Level{PriceCents: 100 - lv.PriceCents, Quantity: lv.Quantity}
	}
	return asks
}

// MidCents is the book midpoint in cents: (best_yes_bid + (100 − best_no_bid)) / 2.
// Returns false when either side is empty.
func (ob Orderbook) MidCents() (float64, bool) {
	if len(ob.YesBids) == 0 || len(ob.NoBids) == 0 {
		return 0, false
	}
	return float64(ob.BestYesBid()+(100-ob.BestNoBid())) / 2, true
}

// SpreadCents is 100 − best_yes_bid − best_no_bid. A negative spread means
// the two sides cross, which for binary complements is an arbitrage signal.
func (ob Orderbook) SpreadCents() (int64, bool) {
	if len(ob.YesBids) == 0 || len(ob.NoBids) == 0 {
		return 0, false
	}
	return 100 - ob.BestYesBid() - ob.BestNoBid(), true
}

// ————————————————————————————————————————————————————————————————————————
// Time series and terminal records
// ————————————————————————————————————————————————————————————————————————

// PriceSnapshot is one append-only observation of a market's quotes and
// activity. SnapshotTS is always UTC. Readers treat equal timestamps by
// insertion order.
type PriceSnapshot struct {
	Ticker       string
	SnapshotTS   time.Time
	YesBid       Price
	YesAsk       Price
	Volume       int64
	OpenInterest int64
	Liquidity    *Price
}

// MidCents is the snapshot midpoint in cents.
func (s PriceSnapshot) MidCents() float64 {
	return float64(s.YesBid.Cents()+s.YesAsk.Cents()) / 2
}

// Candlestick is an OHLC aggregate for one market over one interval.
// Retrieved on demand for movers backfill; never persisted.
type Candlestick struct {
	Ticker    string
	PeriodTS  time.Time
	Open      Price
	High      Price
	Low       Price
	Close     Price
	Volume    int64
	OpenInt   int64
	YesBidEnd Price
	YesAskEnd Price
}

// Settlement is the terminal record for a market. Value is what a YES
// contract paid out: 0 or 1. Created once; immutable.
type Settlement struct {
	Ticker             string
	Value              int // 1 = YES, 0 = NO
	SettledAt          time.Time
	ActualSettlementTS time.Time // exchange-reported determination time
	Revenue            Price     // gross payout credited to the account
}

// Fill is one trade attributed to the authenticated user. FillID is the
// global idempotency key.
type Fill struct {
	FillID  string
	OrderID string
	Ticker  string
	Side    Side
	Action  Action
	Count   int64
	Price   Price // per-contract price for the filled side
	Fees    Price
	TradeTS time.Time
}

// Order is a resting or historical order on the authenticated account.
type Order struct {
	OrderID        string
	Ticker         string
	Side           Side
	Action         Action
	Status         string // resting, canceled, executed, pending
	Count          int64
	RemainingCount int64
	Price          Price
	CreatedTS      time.Time
	ExpirationTS   time.Time
}

// Balance is the authenticated account's cash position.
type Balance struct {
	Available Price
	Payout    Price // pending settlement payouts
	UpdatedAt time.Time
}

// ExchangePosition is the exchange's own view of a position, used to
// cross-check the locally derived FIFO positions. Contracts is signed:
// positive = net YES, negative = net NO.
type ExchangePosition struct {
	Ticker         string
	Contracts      int64
	MarketExposure Price
	RealizedPnL    Price
	FeesPaid       Price
}
