// wire.go is the strict wire-model boundary. Every JSON payload from the
// exchange is decoded into the wire structs below and then normalized into
// frozen pkg/types values. This file is the only place that knows about the
// deprecated integer-cent price fields, their dollar-string replacements,
// and the negative-liquidity sentinel; downstream code sees exactly one
// representation (fixed-point hundredths of a cent).
package exchange

import (
	"errors"
	"fmt"
	"time"

	"kalshi-edge/pkg/types"
)

// ErrValidation marks payloads that violate the wire schema. Terminal for
// the offending item; batch decoding continues with the next item where
// possible.
var ErrValidation = errors.New("wire validation failed")

// ————————————————————————————————————————————————————————————————————————
// Wire shapes
// ————————————————————————————————————————————————————————————————————————
// Unknown fields are ignored by encoding/json, which is the contract:
// the exchange adds fields freely.

type wireMarket struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	SeriesTicker string `json:"series_ticker"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	Status       string `json:"status"`
	MarketType   string `json:"market_type"`
	Result       string `json:"result"`

	// Deprecated integer-cent quote fields and their dollar-string
	// replacements. Both may be present; dollars win when non-empty.
	YesBid        int64  `json:"yes_bid"`
	YesBidDollars string `json:"yes_bid_dollars"`
	YesAsk        int64  `json:"yes_ask"`
	YesAskDollars string `json:"yes_ask_dollars"`
	LastPrice     int64  `json:"last_price"`
	LastPriceDlr  string `json:"last_price_dollars"`

	Volume           int64  `json:"volume"`
	Volume24h        int64  `json:"volume_24h"`
	OpenInterest     int64  `json:"open_interest"`
	Liquidity        int64  `json:"liquidity"`
	LiquidityDollars string `json:"liquidity_dollars"`

	CreatedTime    string `json:"created_time"`
	OpenTime       string `json:"open_time"`
	CloseTime      string `json:"close_time"`
	ExpirationTime string `json:"expiration_time"`
	SettlementTime string `json:"settlement_time"`
}

type wireEvent struct {
	EventTicker       string `json:"event_ticker"`
	SeriesTicker      string `json:"series_ticker"`
	Title             string `json:"title"`
	SubTitle          string `json:"sub_title"`
	Category          string `json:"category"`
	MutuallyExclusive bool   `json:"mutually_exclusive"`
	StrikeDate        string `json:"strike_date"`
	Collateral        string `json:"collateral_return_type"`
}

type wireSeries struct {
	Ticker            string   `json:"ticker"`
	Title             string   `json:"title"`
	Category          string   `json:"category"`
	Frequency         string   `json:"frequency"`
	SettlementSources []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"settlement_sources"`
}

// wireOrderbook carries bids only; each level is a [price_cents, quantity]
// pair.
type wireOrderbook struct {
	Yes [][]int64 `json:"yes"`
	No  [][]int64 `json:"no"`
}

type wireFill struct {
	TradeID     string `json:"trade_id"`
	OrderID     string `json:"order_id"`
	Ticker      string `json:"ticker"`
	Side        string `json:"side"`
	Action      string `json:"action"`
	Count       int64  `json:"count"`
	YesPrice    int64  `json:"yes_price"`
	YesPriceDlr string `json:"yes_price_dollars"`
	NoPrice     int64  `json:"no_price"`
	NoPriceDlr  string `json:"no_price_dollars"`
	IsTaker     bool   `json:"is_taker"`
	FeeCostDlr  string `json:"fee_cost_dollars"`
	FeeCost     int64  `json:"fee_cost"`
	CreatedTime string `json:"created_time"`
}

type wireSettlement struct {
	Ticker         string `json:"ticker"`
	MarketResult   string `json:"market_result"`
	Revenue        int64  `json:"revenue"`
	RevenueDollars string `json:"revenue_dollars"`
	SettledTime    string `json:"settled_time"`
	DeterminedTime string `json:"determined_time"`
}

type wireOrder struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Side           string `json:"side"`
	Action         string `json:"action"`
	Status         string `json:"status"`
	Count          int64  `json:"count"`
	RemainingCount int64  `json:"remaining_count"`
	YesPrice       int64  `json:"yes_price"`
	YesPriceDlr    string `json:"yes_price_dollars"`
	NoPrice        int64  `json:"no_price"`
	NoPriceDlr     string `json:"no_price_dollars"`
	CreatedTime    string `json:"created_time"`
	ExpirationTime string `json:"expiration_time"`
}

type wireBalance struct {
	Balance       int64  `json:"balance"`
	BalanceDlr    string `json:"balance_dollars"`
	Payout        int64  `json:"payout"`
	PayoutDollars string `json:"payout_dollars"`
	UpdatedTS     string `json:"updated_ts"`
}

type wireCandlestick struct {
	EndPeriodTS int64 `json:"end_period_ts"`
	Price       struct {
		Open         int64  `json:"open"`
		OpenDollars  string `json:"open_dollars"`
		High         int64  `json:"high"`
		HighDollars  string `json:"high_dollars"`
		Low          int64  `json:"low"`
		LowDollars   string `json:"low_dollars"`
		Close        int64  `json:"close"`
		CloseDollars string `json:"close_dollars"`
	} `json:"price"`
	YesBid struct {
		Close        int64  `json:"close"`
		CloseDollars string `json:"close_dollars"`
	} `json:"yes_bid"`
	YesAsk struct {
		Close        int64  `json:"close"`
		CloseDollars string `json:"close_dollars"`
	} `json:"yes_ask"`
	Volume       int64 `json:"volume"`
	OpenInterest int64 `json:"open_interest"`
}

// ————————————————————————————————————————————————————————————————————————
// Normalization helpers
// ————————————————————————————————————————————————————————————————————————

// priceField normalizes the deprecated cent field + dollar-string pair to
// one Price. The dollar string is authoritative when present.
func priceField(dollars string, cents int64) (types.Price, error) {
	if dollars != "" {
		p, err := types.ParseDollars(dollars)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return p, nil
	}
	if cents < 0 {
		return 0, fmt.Errorf("%w: negative cent amount %d", ErrValidation, cents)
	}
	return types.FromCents(cents), nil
}

// parseWireTime parses an RFC3339 timestamp into UTC. Naive timestamps (no
// zone offset) fail RFC3339 parsing and are rejected. Empty strings map to
// the zero time, which the domain treats as "not set".
func parseWireTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrValidation, s, err)
	}
	return t.UTC(), nil
}

func parseSide(s string) (types.Side, error) {
	switch types.Side(s) {
	case types.SideYes, types.SideNo:
		return types.Side(s), nil
	}
	return "", fmt.Errorf("%w: unknown side %q", ErrValidation, s)
}

func parseAction(s string) (types.Action, error) {
	switch types.Action(s) {
	case types.ActionBuy, types.ActionSell:
		return types.Action(s), nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrValidation, s)
}

// ————————————————————————————————————————————————————————————————————————
// Wire → domain
// ————————————————————————————————————————————————————————————————————————

// decodeMarket normalizes one wire market. The returned warnings are
// payload oddities that were repaired (currently only the negative
// liquidity sentinel); callers log them.
func decodeMarket(w wireMarket) (types.Market, []string, error) {
	var warns []string

	status := types.MarketStatus(w.Status)
	if !types.ValidMarketStatus(status) {
		return types.Market{}, nil, fmt.Errorf("%w: market %s: unknown status %q", ErrValidation, w.Ticker, w.Status)
	}
	if w.Ticker == "" {
		return types.Market{}, nil, fmt.Errorf("%w: market with empty ticker", ErrValidation)
	}

	yesBid, err := priceField(w.YesBidDollars, w.YesBid)
	if err != nil {
		return types.Market{}, nil, fmt.Errorf("market %s yes_bid: %w", w.Ticker, err)
	}
	yesAsk, err := priceField(w.YesAskDollars, w.YesAsk)
	if err != nil {
		return types.Market{}, nil, fmt.Errorf("market %s yes_ask: %w", w.Ticker, err)
	}
	if yesBid > yesAsk && yesAsk != 0 {
		return types.Market{}, nil, fmt.Errorf("%w: market %s: yes_bid %v above yes_ask %v", ErrValidation, w.Ticker, yesBid, yesAsk)
	}
	lastPrice, err := priceField(w.LastPriceDlr, w.LastPrice)
	if err != nil {
		return types.Market{}, nil, fmt.Errorf("market %s last_price: %w", w.Ticker, err)
	}

	// Negative liquidity is an upstream sentinel for "unknown"; normalize
	// to nil rather than propagating a nonsense number.
	var liquidity *types.Price
	if w.LiquidityDollars != "" {
		p, err := types.ParseDollars(w.LiquidityDollars)
		if err != nil {
			return types.Market{}, nil, fmt.Errorf("market %s liquidity: %w", w.Ticker, err)
		}
		liquidity = &p
	} else if w.Liquidity >= 0 {
		p := types.FromCents(w.Liquidity)
		liquidity = &p
	} else {
		warns = append(warns, fmt.Sprintf("market %s: negative liquidity %d normalized to null", w.Ticker, w.Liquidity))
	}

	created, err := parseWireTime(w.CreatedTime)
	if err != nil {
		return types.Market{}, nil, fmt.Errorf("market %s created_time: %w", w.Ticker, err)
	}
	open, err := parseWireTime(w.OpenTime)
	if err != nil {
		return types.Market{}, nil, fmt.Errorf("market %s open_time: %w", w.Ticker, err)
	}
	closeT, err := parseWireTime(w.CloseTime)
	if err != nil {
		return types.Market{}, nil, fmt.Errorf("market %s close_time: %w", w.Ticker, err)
	}
	expiration, err := parseWireTime(w.ExpirationTime)
	if err != nil {
		return types.Market{}, nil, fmt.Errorf("market %s expiration_time: %w", w.Ticker, err)
	}
	settlement, err := parseWireTime(w.SettlementTime)
	if err != nil {
		return types.Market{}, nil, fmt.Errorf("market %s settlement_time: %w", w.Ticker, err)
	}

	return types.Market{
		Ticker:         w.Ticker,
		EventTicker:    w.EventTicker,
		SeriesTicker:   w.SeriesTicker,
		Title:          w.Title,
		Subtitle:       w.Subtitle,
		Status:         status,
		Multivariate:   w.MarketType == "multivariate",
		YesBid:         yesBid,
		YesAsk:         yesAsk,
		LastPrice:      lastPrice,
		Volume:         w.Volume,
		Volume24h:      w.Volume24h,
		OpenInterest:   w.OpenInterest,
		Liquidity:      liquidity,
		CreatedTime:    created,
		OpenTime:       open,
		CloseTime:      closeT,
		ExpirationTime: expiration,
		SettlementTime: settlement,
		Result:         w.Result,
	}, warns, nil
}

func decodeEvent(w wireEvent) (types.Event, error) {
	if w.EventTicker == "" {
		return types.Event{}, fmt.Errorf("%w: event with empty ticker", ErrValidation)
	}
	strike, err := parseWireTime(w.StrikeDate)
	if err != nil {
		return types.Event{}, fmt.Errorf("event %s strike_date: %w", w.EventTicker, err)
	}
	return types.Event{
		Ticker:       w.EventTicker,
		SeriesTicker: w.SeriesTicker,
		Title:        w.Title,
		SubTitle:     w.SubTitle,
		Category:     w.Category,
		StrikeDate:   strike,
	}, nil
}

func decodeSeries(w wireSeries) types.Series {
	sources := make([]string, 0, len(w.SettlementSources))
	for _, s := range w.SettlementSources {
		if s.URL != "" {
			sources = append(sources, s.URL)
		} else {
			sources = append(sources, s.Name)
		}
	}
	return types.Series{
		Ticker:            w.Ticker,
		Title:             w.Title,
		Category:          w.Category,
		Frequency:         w.Frequency,
		SettlementSources: sources,
	}
}

// decodeOrderbook builds a validated Orderbook from the wire level arrays.
func decodeOrderbook(ticker string, w wireOrderbook, fetchedAt time.Time) (types.Orderbook, error) {
	toLevels := func(raw [][]int64, side string) ([]types.Level, error) {
		levels := make([]types.Level, 0, len(raw))
		for _, pair := range raw {
			if len(pair) != 2 {
				return nil, fmt.Errorf("%w: %s level has %d elements, want 2", ErrValidation, side, len(pair))
			}
			levels = append(levels, types.Level{PriceCents: pair[0], Quantity: pair[1]})
		}
		// Best-first: bids sort descending by price.
		for i := 1; i < len(levels); i++ {
			for j := i; j > 0 && levels[j].PriceCents > levels[j-1].PriceCents; j-- {
				levels[j], levels[j-1] = levels[j-1], levels[j]
			}
		}
		return levels, nil
	}

	yes, err := toLevels(w.Yes, "yes")
	if err != nil {
		return types.Orderbook{}, err
	}
	no, err := toLevels(w.No, "no")
	if err != nil {
		return types.Orderbook{}, err
	}

	ob := types.Orderbook{Ticker: ticker, YesBids: yes, NoBids: no, FetchedAt: fetchedAt.UTC()}
	if err := ob.Validate(); err != nil {
		return types.Orderbook{}, fmt.Errorf("%w: orderbook %s: %v", ErrValidation, ticker, err)
	}
	return ob, nil
}

func decodeFill(w wireFill) (types.Fill, error) {
	side, err := parseSide(w.Side)
	if err != nil {
		return types.Fill{}, fmt.Errorf("fill %s: %w", w.TradeID, err)
	}
	action, err := parseAction(w.Action)
	if err != nil {
		return types.Fill{}, fmt.Errorf("fill %s: %w", w.TradeID, err)
	}
	if w.TradeID == "" {
		return types.Fill{}, fmt.Errorf("%w: fill with empty trade_id", ErrValidation)
	}
	if w.Count <= 0 {
		return types.Fill{}, fmt.Errorf("%w: fill %s: count %d must be positive", ErrValidation, w.TradeID, w.Count)
	}

	// A fill carries both side prices; keep the price of the side traded.
	var price types.Price
	if side == types.SideYes {
		price, err = priceField(w.YesPriceDlr, w.YesPrice)
	} else {
		price, err = priceField(w.NoPriceDlr, w.NoPrice)
	}
	if err != nil {
		return types.Fill{}, fmt.Errorf("fill %s price: %w", w.TradeID, err)
	}

	fees, err := priceField(w.FeeCostDlr, w.FeeCost)
	if err != nil {
		return types.Fill{}, fmt.Errorf("fill %s fees: %w", w.TradeID, err)
	}
	tradeTS, err := parseWireTime(w.CreatedTime)
	if err != nil {
		return types.Fill{}, fmt.Errorf("fill %s created_time: %w", w.TradeID, err)
	}

	return types.Fill{
		FillID:  w.TradeID,
		OrderID: w.OrderID,
		Ticker:  w.Ticker,
		Side:    side,
		Action:  action,
		Count:   w.Count,
		Price:   price,
		Fees:    fees,
		TradeTS: tradeTS,
	}, nil
}

func decodeSettlement(w wireSettlement) (types.Settlement, error) {
	var value int
	switch w.MarketResult {
	case "yes":
		value = 1
	case "no":
		value = 0
	default:
		return types.Settlement{}, fmt.Errorf("%w: settlement %s: unknown result %q", ErrValidation, w.Ticker, w.MarketResult)
	}
	settled, err := parseWireTime(w.SettledTime)
	if err != nil {
		return types.Settlement{}, fmt.Errorf("settlement %s settled_time: %w", w.Ticker, err)
	}
	determined, err := parseWireTime(w.DeterminedTime)
	if err != nil {
		return types.Settlement{}, fmt.Errorf("settlement %s determined_time: %w", w.Ticker, err)
	}
	revenue, err := priceField(w.RevenueDollars, w.Revenue)
	if err != nil {
		return types.Settlement{}, fmt.Errorf("settlement %s revenue: %w", w.Ticker, err)
	}
	return types.Settlement{
		Ticker:             w.Ticker,
		Value:              value,
		SettledAt:          settled,
		ActualSettlementTS: determined,
		Revenue:            revenue,
	}, nil
}

func decodeOrder(w wireOrder) (types.Order, error) {
	side, err := parseSide(w.Side)
	if err != nil {
		return types.Order{}, fmt.Errorf("order %s: %w", w.OrderID, err)
	}
	action, err := parseAction(w.Action)
	if err != nil {
		return types.Order{}, fmt.Errorf("order %s: %w", w.OrderID, err)
	}
	var price types.Price
	if side == types.SideYes {
		price, err = priceField(w.YesPriceDlr, w.YesPrice)
	} else {
		price, err = priceField(w.NoPriceDlr, w.NoPrice)
	}
	if err != nil {
		return types.Order{}, fmt.Errorf("order %s price: %w", w.OrderID, err)
	}
	created, err := parseWireTime(w.CreatedTime)
	if err != nil {
		return types.Order{}, fmt.Errorf("order %s created_time: %w", w.OrderID, err)
	}
	expiration, err := parseWireTime(w.ExpirationTime)
	if err != nil {
		return types.Order{}, fmt.Errorf("order %s expiration_time: %w", w.OrderID, err)
	}
	return types.Order{
		OrderID:        w.OrderID,
		Ticker:         w.Ticker,
		Side:           side,
		Action:         action,
		Status:         w.Status,
		Count:          w.Count,
		RemainingCount: w.RemainingCount,
		Price:          price,
		CreatedTS:      created,
		ExpirationTS:   expiration,
	}, nil
}

func decodeBalance(w wireBalance) (types.Balance, error) {
	avail, err := priceField(w.BalanceDlr, w.Balance)
	if err != nil {
		return types.Balance{}, fmt.Errorf("balance: %w", err)
	}
	payout, err := priceField(w.PayoutDollars, w.Payout)
	if err != nil {
		return types.Balance{}, fmt.Errorf("balance payout: %w", err)
	}
	updated, err := parseWireTime(w.UpdatedTS)
	if err != nil {
		return types.Balance{}, fmt.Errorf("balance updated_ts: %w", err)
	}
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return types.Balance{Available: avail, Payout: payout, UpdatedAt: updated}, nil
}

func decodeCandlestick(ticker string, w wireCandlestick) (types.Candlestick, error) {
	open, err := priceField(w.Price.OpenDollars, w.Price.Open)
	if err != nil {
		return types.Candlestick{}, fmt.Errorf("candlestick %s open: %w", ticker, err)
	}
	high, err := priceField(w.Price.HighDollars, w.Price.High)
	if err != nil {
		return types.Candlestick{}, fmt.Errorf("candlestick %s high: %w", ticker, err)
	}
	low, err := priceField(w.Price.LowDollars, w.Price.Low)
	if err != nil {
		return types.Candlestick{}, fmt.Errorf("candlestick %s low: %w", ticker, err)
	}
	closeP, err := priceField(w.Price.CloseDollars, w.Price.Close)
	if err != nil {
		return types.Candlestick{}, fmt.Errorf("candlestick %s close: %w", ticker, err)
	}
	bidEnd, err := priceField(w.YesBid.CloseDollars, w.YesBid.Close)
	if err != nil {
		return types.Candlestick{}, fmt.Errorf("candlestick %s yes_bid: %w", ticker, err)
	}
	askEnd, err := priceField(w.YesAsk.CloseDollars, w.YesAsk.Close)
	if err != nil {
		return types.Candlestick{}, fmt.Errorf("candlestick %s yes_ask: %w", ticker, err)
	}
	return types.Candlestick{
		Ticker:    ticker,
		PeriodTS:  time.Unix(w.EndPeriodTS, 0).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    w.Volume,
		OpenInt:   w.OpenInterest,
		YesBidEnd: bidEnd,
		YesAskEnd: askEnd,
	}, nil
}

// marketToSnapshot projects a freshly-decoded market into an append-only
// price snapshot stamped with the collection time.
func marketToSnapshot(m types.Market, at time.Time) types.PriceSnapshot {
	return types.PriceSnapshot{
		Ticker:       m.Ticker,
		SnapshotTS:   at.UTC(),
		YesBid:       m.YesBid,
		YesAsk:       m.YesAsk,
		Volume:       m.Volume24h,
		OpenInterest: m.OpenInterest,
		Liquidity:    m.Liquidity,
	}
}

// roundTripMarket re-serializes a domain market into its canonical wire
// form (dollar strings only). Used by tests to pin the parse → serialize →
// parse identity.
func roundTripMarket(m types.Market) wireMarket {
	w := wireMarket{
		Ticker:        m.Ticker,
		EventTicker:   m.EventTicker,
		SeriesTicker:  m.SeriesTicker,
		Title:         m.Title,
		Subtitle:      m.Subtitle,
		Status:        string(m.Status),
		Result:        m.Result,
		YesBidDollars: m.YesBid.Dollars(),
		YesAskDollars: m.YesAsk.Dollars(),
		LastPriceDlr:  m.LastPrice.Dollars(),
		Volume:        m.Volume,
		Volume24h:     m.Volume24h,
		OpenInterest:  m.OpenInterest,
	}
	if m.Multivariate {
		w.MarketType = "multivariate"
	}
	if m.Liquidity != nil {
		w.LiquidityDollars = m.Liquidity.Dollars()
	} else {
		w.Liquidity = -1
	}
	fmtTime := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	}
	w.CreatedTime = fmtTime(m.CreatedTime)
	w.OpenTime = fmtTime(m.OpenTime)
	w.CloseTime = fmtTime(m.CloseTime)
	w.ExpirationTime = fmtTime(m.ExpirationTime)
	w.SettlementTime = fmtTime(m.SettlementTime)
	return w
}
