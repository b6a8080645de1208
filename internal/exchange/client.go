// Package exchange implements the signed REST client for the prediction
// market API.
//
// Two client flavors share one implementation: a public client for market
// data (markets, events, order books, candlesticks) and an authenticated
// client that additionally reaches the portfolio endpoints (fills,
// settlements, positions, balance, orders). Authenticated requests carry
// an access-key header, a millisecond timestamp, and an RSA-PSS/SHA-256
// signature over timestamp||METHOD||path (query string excluded).
//
// Every request is rate-limited through the process-wide tiered
// RateLimiter, retried on 429/5xx/transport failures with jittered
// exponential backoff (Retry-After honored as a floor), and decoded
// through the strict wire layer in wire.go.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"kalshi-edge/pkg/types"
)

// apiPrefix is the versioned path prefix all endpoints share. It is part
// of the signed path.
const apiPrefix = "/trade-api/v2"

// Per-endpoint page caps.
const (
	maxPageMarkets     = 1000
	maxPageEvents      = 200
	maxPageFills       = 200
	maxPageSettlements = 200
	maxBatchCandles    = 100
)

// Retry policy constants.
const (
	retryCount    = 5
	retryBase     = time.Second
	retryCap      = 60 * time.Second
	clientTimeout = 30 * time.Second
)

// MultivariateFilter controls whether joint-combination markets appear in
// market listings.
type MultivariateFilter string

const (
	MultivariateInclude MultivariateFilter = "include"
	MultivariateOnly    MultivariateFilter = "only"
	MultivariateExclude MultivariateFilter = "exclude"
)

// MarketFilter narrows GetMarkets. Zero values mean "no constraint".
type MarketFilter struct {
	Status       types.MarketStatus
	Tickers      []string
	EventTicker  string
	SeriesTicker string
	MinCloseTS   time.Time
	MaxCloseTS   time.Time
	Multivariate MultivariateFilter
	Cursor       string // resume point for a restarted iteration
	MaxPages     int    // safety cap, 0 = unlimited
}

// FillFilter narrows GetFills.
type FillFilter struct {
	Ticker   string
	OrderID  string
	MinTS    time.Time
	MaxTS    time.Time
	Cursor   string
	MaxPages int
}

// OrderSpec describes an order to create. Prices are integer cents.
type OrderSpec struct {
	Ticker        string
	Side          types.Side
	Action        types.Action
	Type          string // "limit" or "market"
	Count         int64
	PriceCents    int64
	ClientOrderID string
}

// Validate enforces the order constraints checked before any request is
// built, dry-run or not.
func (s OrderSpec) Validate() error {
	if s.Ticker == "" {
		return fmt.Errorf("order: ticker required")
	}
	if s.Count <= 0 {
		return fmt.Errorf("order: count %d must be positive", s.Count)
	}
	if s.Side != types.SideYes && s.Side != types.SideNo {
		return fmt.Errorf("order: side must be yes or no")
	}
	if s.Action != types.ActionBuy && s.Action != types.ActionSell {
		return fmt.Errorf("order: action must be buy or sell")
	}
	if s.Type != "market" && (s.PriceCents < 1 || s.PriceCents > 99) {
		return fmt.Errorf("order: price %d¢ outside 1..99", s.PriceCents)
	}
	return nil
}

// CreateOrderResult is the outcome of CreateOrder. For dry runs the order
// ID is the literal "DRY_RUN" and Spec echoes the validated input.
type CreateOrderResult struct {
	OrderID string
	Status  string
	Spec    OrderSpec
}

// MultivariateCollection describes one multivariate event collection.
type MultivariateCollection struct {
	Ticker           string `json:"collection_ticker"`
	Title            string `json:"title"`
	SeriesTicker     string `json:"series_ticker"`
	AssociatedEvents int    `json:"associated_event_count"`
	Closed           bool   `json:"closed"`
}

// Client talks to the exchange REST API. A nil signer makes it
// public-only; authenticated methods then fail fast.
type Client struct {
	http   *resty.Client
	signer *Signer
	rl     *RateLimiter
	logger *slog.Logger
}

// NewPublicClient creates a client for unauthenticated market data access.
func NewPublicClient(baseURL string, rl *RateLimiter, logger *slog.Logger) *Client {
	return newClient(baseURL, nil, rl, logger)
}

// NewClient creates an authenticated client. The rate limiter is shared
// process-wide; pass the same instance to every client.
func NewClient(baseURL string, signer *Signer, rl *RateLimiter, logger *slog.Logger) *Client {
	return newClient(baseURL, signer, rl, logger)
}

func newClient(baseURL string, signer *Signer, rl *RateLimiter, logger *slog.Logger) *Client {
	log := logger.With("component", "exchange")

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(clientTimeout).
		SetRetryCount(retryCount).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return retryableTransport(err)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			attempt := 1
			if resp != nil && resp.Request != nil {
				attempt = resp.Request.Attempt
			}
			backoff := retryBase << (attempt - 1)
			if backoff > retryCap {
				backoff = retryCap
			}
			// Full jitter over the exponential window.
			delay := time.Duration(rand.Int63n(int64(backoff) + 1))
			// Retry-After is a floor, never a ceiling.
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if ra := parseRetryAfter(resp.Header().Get("Retry-After")); ra > delay {
					delay = ra
				}
			}
			return delay, nil
		})

	return &Client{http: httpClient, signer: signer, rl: rl, logger: log}
}

// Authenticated reports whether portfolio endpoints are available.
func (c *Client) Authenticated() bool {
	return c.signer != nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// wireError is the server's error envelope.
type wireError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (w wireError) code() string {
	if w.Error.Code != "" {
		return w.Error.Code
	}
	return w.Code
}

func (w wireError) message() string {
	if w.Error.Message != "" {
		return w.Error.Message
	}
	return w.Message
}

// get performs a rate-limited, optionally signed GET and decodes into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, authed bool, op string, out any) error {
	if authed && c.signer == nil {
		return &APIError{Kind: KindAuth, Message: op + " requires an authenticated client"}
	}
	if err := c.rl.WaitRead(ctx, op); err != nil {
		return err
	}
	return c.do(ctx, http.MethodGet, path, query, nil, authed, op, out)
}

// post performs a rate-limited, signed POST. cost lets bulk operations
// charge fractional write tokens.
func (c *Client) post(ctx context.Context, path string, body any, cost float64, op string, out any) error {
	if c.signer == nil {
		return &APIError{Kind: KindAuth, Message: op + " requires an authenticated client"}
	}
	if err := c.rl.WaitWrite(ctx, cost, op); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, body, true, op, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, authed bool, op string, out any) error {
	fullPath := apiPrefix + path

	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	if authed {
		headers, err := c.signer.Headers(method, fullPath)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		req.SetHeaders(headers)
	}

	var errBody wireError
	req.SetError(&errBody)

	resp, err := req.Execute(method, fullPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &APIError{Kind: KindTransport, Message: fmt.Sprintf("%s: %v", op, err)}
	}
	if resp.StatusCode() >= 400 {
		apiErr := apiErrorFromStatus(resp.StatusCode(), errBody.code(), errBody.message())
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(resp.String())
		}
		return apiErr
	}
	return nil
}

// ————————————————————————————————————————————————————————————————————————
// Market data (public)
// ————————————————————————————————————————————————————————————————————————

// Markets returns a lazy pager over markets matching the filter. Pages are
// capped at 1000 items by the endpoint.
func (c *Client) Markets(filter MarketFilter) *Pager[types.Market] {
	return NewPager("get_markets", filter.Cursor, filter.MaxPages, c.logger,
		func(ctx context.Context, cursor string) ([]types.Market, string, error) {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(maxPageMarkets))
			if cursor != "" {
				q.Set("cursor", cursor)
			}
			if filter.Status != "" {
				q.Set("status", string(filter.Status))
			}
			if len(filter.Tickers) > 0 {
				q.Set("tickers", strings.Join(filter.Tickers, ","))
			}
			if filter.EventTicker != "" {
				q.Set("event_ticker", filter.EventTicker)
			}
			if filter.SeriesTicker != "" {
				q.Set("series_ticker", filter.SeriesTicker)
			}
			if !filter.MinCloseTS.IsZero() {
				q.Set("min_close_ts", strconv.FormatInt(filter.MinCloseTS.Unix(), 10))
			}
			if !filter.MaxCloseTS.IsZero() {
				q.Set("max_close_ts", strconv.FormatInt(filter.MaxCloseTS.Unix(), 10))
			}

			var env struct {
				Markets []wireMarket `json:"markets"`
				Cursor  string       `json:"cursor"`
			}
			if err := c.get(ctx, "/markets", q, false, "get_markets", &env); err != nil {
				return nil, "", err
			}

			markets := make([]types.Market, 0, len(env.Markets))
			for _, wm := range env.Markets {
				m, warns, err := decodeMarket(wm)
				if err != nil {
					// A malformed item is terminal for that item only.
					c.logger.Warn("skipping malformed market", "error", err)
					continue
				}
				for _, w := range warns {
					c.logger.Warn(w)
				}
				if filter.Multivariate == MultivariateExclude && m.Multivariate {
					continue
				}
				if filter.Multivariate == MultivariateOnly && !m.Multivariate {
					continue
				}
				markets = append(markets, m)
			}
			return markets, env.Cursor, nil
		})
}

// GetMarkets drains the market pager into one slice. Partial results come
// back alongside a mid-stream error.
func (c *Client) GetMarkets(ctx context.Context, filter MarketFilter) ([]types.Market, error) {
	return collect(ctx, c.Markets(filter))
}

// GetMarket fetches one market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (types.Market, error) {
	var env struct {
		Market wireMarket `json:"market"`
	}
	if err := c.get(ctx, "/markets/"+ticker, nil, false, "get_market", &env); err != nil {
		return types.Market{}, err
	}
	m, warns, err := decodeMarket(env.Market)
	for _, w := range warns {
		c.logger.Warn(w)
	}
	return m, err
}

// Events returns a lazy pager over events. Pages cap at 200 items.
func (c *Client) Events(status string, cursor string, maxPages int) *Pager[types.Event] {
	return NewPager("get_events", cursor, maxPages, c.logger,
		func(ctx context.Context, cur string) ([]types.Event, string, error) {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(maxPageEvents))
			if cur != "" {
				q.Set("cursor", cur)
			}
			if status != "" {
				q.Set("status", status)
			}
			var env struct {
				Events []wireEvent `json:"events"`
				Cursor string      `json:"cursor"`
			}
			if err := c.get(ctx, "/events", q, false, "get_events", &env); err != nil {
				return nil, "", err
			}
			events := make([]types.Event, 0, len(env.Events))
			for _, we := range env.Events {
				e, err := decodeEvent(we)
				if err != nil {
					c.logger.Warn("skipping malformed event", "error", err)
					continue
				}
				events = append(events, e)
			}
			return events, env.Cursor, nil
		})
}

// GetSeries fetches one series by ticker.
func (c *Client) GetSeries(ctx context.Context, ticker string) (types.Series, error) {
	var env struct {
		Series wireSeries `json:"series"`
	}
	if err := c.get(ctx, "/series/"+ticker, nil, false, "get_series", &env); err != nil {
		return types.Series{}, err
	}
	return decodeSeries(env.Series), nil
}

// GetOrderbook fetches the book for one market. depth 0 means all levels;
// a positive depth caps levels per side.
func (c *Client) GetOrderbook(ctx context.Context, ticker string, depth int) (types.Orderbook, error) {
	q := url.Values{}
	if depth > 0 {
		q.Set("depth", strconv.Itoa(depth))
	}
	var env struct {
		Orderbook wireOrderbook `json:"orderbook"`
	}
	if err := c.get(ctx, "/markets/"+ticker+"/orderbook", q, false, "get_orderbook", &env); err != nil {
		return types.Orderbook{}, err
	}
	return decodeOrderbook(ticker, env.Orderbook, time.Now())
}

// GetMarketCandlesticks fetches OHLC aggregates for one market. Interval
// is in minutes (1, 60, or 1440). The endpoint accepts at most 100 periods
// per call; wider ranges are split client-side.
func (c *Client) GetMarketCandlesticks(ctx context.Context, seriesTicker, ticker string, from, to time.Time, intervalMin int) ([]types.Candlestick, error) {
	if intervalMin <= 0 {
		return nil, fmt.Errorf("candlesticks: interval must be positive")
	}
	step := time.Duration(intervalMin) * time.Minute * maxBatchCandles

	var all []types.Candlestick
	for start := from; start.Before(to); start = start.Add(step) {
		end := start.Add(step)
		if end.After(to) {
			end = to
		}

		q := url.Values{}
		q.Set("start_ts", strconv.FormatInt(start.Unix(), 10))
		q.Set("end_ts", strconv.FormatInt(end.Unix(), 10))
		q.Set("period_interval", strconv.Itoa(intervalMin))

		var env struct {
			Candlesticks []wireCandlestick `json:"candlesticks"`
		}
		path := "/series/" + seriesTicker + "/markets/" + ticker + "/candlesticks"
		if err := c.get(ctx, path, q, false, "get_candlesticks", &env); err != nil {
			return all, err
		}
		for _, wc := range env.Candlesticks {
			cs, err := decodeCandlestick(ticker, wc)
			if err != nil {
				c.logger.Warn("skipping malformed candlestick", "error", err)
				continue
			}
			all = append(all, cs)
		}
	}
	return all, nil
}

// GetMultivariateEventCollections lists the multivariate collections.
// Multivariate markets only surface through this discovery path.
func (c *Client) GetMultivariateEventCollections(ctx context.Context) ([]MultivariateCollection, error) {
	pager := NewPager("get_collections", "", 0, c.logger,
		func(ctx context.Context, cursor string) ([]MultivariateCollection, string, error) {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(maxPageEvents))
			if cursor != "" {
				q.Set("cursor", cursor)
			}
			var env struct {
				Collections []MultivariateCollection `json:"multivariate_event_collections"`
				Cursor      string                   `json:"cursor"`
			}
			if err := c.get(ctx, "/multivariate_event_collections", q, false, "get_collections", &env); err != nil {
				return nil, "", err
			}
			return env.Collections, env.Cursor, nil
		})
	return collect(ctx, pager)
}

// LookupMultivariateTickers resolves the joint market for a selection of
// member markets within a collection. This is a write-class call on the
// exchange side because it can create the market on first lookup.
func (c *Client) LookupMultivariateTickers(ctx context.Context, collectionTicker string, selected []string) (types.Market, error) {
	body := map[string]any{"selected_markets": selected}
	var env struct {
		Market wireMarket `json:"market"`
	}
	path := "/multivariate_event_collections/" + collectionTicker + "/lookup"
	if err := c.post(ctx, path, body, 1, "lookup_multivariate", &env); err != nil {
		return types.Market{}, err
	}
	m, warns, err := decodeMarket(env.Market)
	for _, w := range warns {
		c.logger.Warn(w)
	}
	return m, err
}

// ————————————————————————————————————————————————————————————————————————
// Portfolio (authenticated)
// ————————————————————————————————————————————————————————————————————————

// Settlements returns a lazy pager over the account's settlements.
func (c *Client) Settlements(cursor string, maxPages int) *Pager[types.Settlement] {
	return NewPager("get_settlements", cursor, maxPages, c.logger,
		func(ctx context.Context, cur string) ([]types.Settlement, string, error) {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(maxPageSettlements))
			if cur != "" {
				q.Set("cursor", cur)
			}
			var env struct {
				Settlements []wireSettlement `json:"settlements"`
				Cursor      string           `json:"cursor"`
			}
			if err := c.get(ctx, "/portfolio/settlements", q, true, "get_settlements", &env); err != nil {
				return nil, "", err
			}
			out := make([]types.Settlement, 0, len(env.Settlements))
			for _, ws := range env.Settlements {
				s, err := decodeSettlement(ws)
				if err != nil {
					c.logger.Warn("skipping malformed settlement", "error", err)
					continue
				}
				out = append(out, s)
			}
			return out, env.Cursor, nil
		})
}

// GetSettlements drains the settlements pager.
func (c *Client) GetSettlements(ctx context.Context, maxPages int) ([]types.Settlement, error) {
	return collect(ctx, c.Settlements("", maxPages))
}

// Fills returns a lazy pager over the account's fills. Pages cap at 200.
func (c *Client) Fills(filter FillFilter) *Pager[types.Fill] {
	return NewPager("get_fills", filter.Cursor, filter.MaxPages, c.logger,
		func(ctx context.Context, cur string) ([]types.Fill, string, error) {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(maxPageFills))
			if cur != "" {
				q.Set("cursor", cur)
			}
			if filter.Ticker != "" {
				q.Set("ticker", filter.Ticker)
			}
			if filter.OrderID != "" {
				q.Set("order_id", filter.OrderID)
			}
			if !filter.MinTS.IsZero() {
				q.Set("min_ts", strconv.FormatInt(filter.MinTS.Unix(), 10))
			}
			if !filter.MaxTS.IsZero() {
				q.Set("max_ts", strconv.FormatInt(filter.MaxTS.Unix(), 10))
			}
			var env struct {
				Fills  []wireFill `json:"fills"`
				Cursor string     `json:"cursor"`
			}
			if err := c.get(ctx, "/portfolio/fills", q, true, "get_fills", &env); err != nil {
				return nil, "", err
			}
			out := make([]types.Fill, 0, len(env.Fills))
			for _, wf := range env.Fills {
				f, err := decodeFill(wf)
				if err != nil {
					c.logger.Warn("skipping malformed fill", "error", err)
					continue
				}
				out = append(out, f)
			}
			return out, env.Cursor, nil
		})
}

// GetFills drains the fills pager.
func (c *Client) GetFills(ctx context.Context, filter FillFilter) ([]types.Fill, error) {
	return collect(ctx, c.Fills(filter))
}

// GetPositions fetches the exchange's view of open positions.
func (c *Client) GetPositions(ctx context.Context) ([]types.ExchangePosition, error) {
	var env struct {
		Positions []struct {
			Ticker            string `json:"ticker"`
			Position          int64  `json:"position"`
			MarketExposure    int64  `json:"market_exposure"`
			MarketExposureDlr string `json:"market_exposure_dollars"`
			RealizedPnL       int64  `json:"realized_pnl"`
			RealizedPnLDlr    string `json:"realized_pnl_dollars"`
			FeesPaid          int64  `json:"fees_paid"`
			FeesPaidDlr       string `json:"fees_paid_dollars"`
		} `json:"market_positions"`
	}
	if err := c.get(ctx, "/portfolio/positions", nil, true, "get_positions", &env); err != nil {
		return nil, err
	}

	out := make([]types.ExchangePosition, 0, len(env.Positions))
	for _, wp := range env.Positions {
		exposure, err := priceField(wp.MarketExposureDlr, wp.MarketExposure)
		if err != nil {
			c.logger.Warn("skipping malformed position", "ticker", wp.Ticker, "error", err)
			continue
		}
		realized, err := priceField(wp.RealizedPnLDlr, wp.RealizedPnL)
		if err != nil {
			c.logger.Warn("skipping malformed position", "ticker", wp.Ticker, "error", err)
			continue
		}
		fees, err := priceField(wp.FeesPaidDlr, wp.FeesPaid)
		if err != nil {
			c.logger.Warn("skipping malformed position", "ticker", wp.Ticker, "error", err)
			continue
		}
		out = append(out, types.ExchangePosition{
			Ticker:         wp.Ticker,
			Contracts:      wp.Position,
			MarketExposure: exposure,
			RealizedPnL:    realized,
			FeesPaid:       fees,
		})
	}
	return out, nil
}

// GetBalance fetches the account cash balance.
func (c *Client) GetBalance(ctx context.Context) (types.Balance, error) {
	var env wireBalance
	if err := c.get(ctx, "/portfolio/balance", nil, true, "get_balance", &env); err != nil {
		return types.Balance{}, err
	}
	return decodeBalance(env)
}

// GetOrders fetches the account's orders, optionally filtered by status.
func (c *Client) GetOrders(ctx context.Context, status string, maxPages int) ([]types.Order, error) {
	pager := NewPager("get_orders", "", maxPages, c.logger,
		func(ctx context.Context, cur string) ([]types.Order, string, error) {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(maxPageFills))
			if cur != "" {
				q.Set("cursor", cur)
			}
			if status != "" {
				q.Set("status", status)
			}
			var env struct {
				Orders []wireOrder `json:"orders"`
				Cursor string      `json:"cursor"`
			}
			if err := c.get(ctx, "/portfolio/orders", q, true, "get_orders", &env); err != nil {
				return nil, "", err
			}
			out := make([]types.Order, 0, len(env.Orders))
			for _, wo := range env.Orders {
				o, err := decodeOrder(wo)
				if err != nil {
					c.logger.Warn("skipping malformed order", "error", err)
					continue
				}
				out = append(out, o)
			}
			return out, env.Cursor, nil
		})
	return collect(ctx, pager)
}

// CreateOrder places an order. When dryRun is true the request is never
// sent: the spec is validated exactly as for a live order and a synthesized
// response with OrderID "DRY_RUN" comes back. The platform itself only
// ever calls this with dryRun=true; live placement exists for the thin CLI
// adapter.
func (c *Client) CreateOrder(ctx context.Context, spec OrderSpec, dryRun bool) (CreateOrderResult, error) {
	if err := spec.Validate(); err != nil {
		return CreateOrderResult{}, err
	}
	if dryRun {
		c.logger.Info("dry-run order validated",
			"ticker", spec.Ticker, "side", spec.Side, "action", spec.Action,
			"count", spec.Count, "price_cents", spec.PriceCents)
		return CreateOrderResult{OrderID: "DRY_RUN", Status: "validated", Spec: spec}, nil
	}

	body := map[string]any{
		"ticker": spec.Ticker,
		"side":   string(spec.Side),
		"action": string(spec.Action),
		"type":   spec.Type,
		"count":  spec.Count,
	}
	if spec.Type != "market" {
		if spec.Side == types.SideYes {
			body["yes_price"] = spec.PriceCents
		} else {
			body["no_price"] = spec.PriceCents
		}
	}
	if spec.ClientOrderID != "" {
		body["client_order_id"] = spec.ClientOrderID
	}

	var env struct {
		Order struct {
			OrderID string `json:"order_id"`
			Status  string `json:"status"`
		} `json:"order"`
	}
	if err := c.post(ctx, "/portfolio/orders", body, 1, "create_order", &env); err != nil {
		return CreateOrderResult{}, err
	}
	return CreateOrderResult{OrderID: env.Order.OrderID, Status: env.Order.Status, Spec: spec}, nil
}

// BatchCancelOrders cancels up to 20 resting orders. The server meters
// batch cancels at a fifth of a normal write, hence the fractional token
// cost.
func (c *Client) BatchCancelOrders(ctx context.Context, orderIDs []string) ([]string, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	body := map[string]any{"ids": orderIDs}
	var env struct {
		Canceled []string `json:"canceled_order_ids"`
	}
	if err := c.post(ctx, "/portfolio/orders/batched_cancel", body, CostBulkCancel, "batch_cancel", &env); err != nil {
		return nil, err
	}
	return env.Canceled, nil
}
