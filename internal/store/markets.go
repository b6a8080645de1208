package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"kalshi-edge/pkg/types"
)

// MarketQuery narrows ListMarkets. Zero values mean "no constraint".
type MarketQuery struct {
	Status       types.MarketStatus
	EventTicker  string
	SeriesTicker string
	Tickers      []string
	CloseBefore  time.Time
	CloseAfter   time.Time
}

const marketColumns = `ticker, event_ticker, series_ticker, title, subtitle,
	status, multivariate, yes_bid, yes_ask, last_price, volume, volume_24h,
	open_interest, liquidity, created_time, open_time, close_time,
	expiration_time, settlement_time, result`

// UpsertMarkets writes a batch of markets, replacing existing rows by
// ticker. Unknown parent events get a stub row so the foreign key holds;
// a later event sync fills in the details.
func (s *Store) UpsertMarkets(ctx context.Context, markets []types.Market) error {
	if err := s.writable(); err != nil {
		return err
	}
	now := timeText(time.Now())

	return s.inBatches(ctx, len(markets), func(tx *sql.Tx, from, to int) error {
		for _, m := range markets[from:to] {
			// Stub unconditionally: event_ticker defaults to "" and the
			// foreign key needs a matching events row even for that.
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO events (ticker, series_ticker) VALUES (?, ?)`,
				m.EventTicker, m.SeriesTicker); err != nil {
				return fmt.Errorf("stub event %q: %w", m.EventTicker, err)
			}

			var liquidity any
			if m.Liquidity != nil {
				liquidity = int64(*m.Liquidity)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO markets (`+marketColumns+`, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (ticker) DO UPDATE SET
					event_ticker = excluded.event_ticker,
					series_ticker = excluded.series_ticker,
					title = excluded.title,
					subtitle = excluded.subtitle,
					status = excluded.status,
					multivariate = excluded.multivariate,
					yes_bid = excluded.yes_bid,
					yes_ask = excluded.yes_ask,
					last_price = excluded.last_price,
					volume = excluded.volume,
					volume_24h = excluded.volume_24h,
					open_interest = excluded.open_interest,
					liquidity = excluded.liquidity,
					created_time = excluded.created_time,
					open_time = excluded.open_time,
					close_time = excluded.close_time,
					expiration_time = excluded.expiration_time,
					settlement_time = excluded.settlement_time,
					result = excluded.result,
					updated_at = excluded.updated_at`,
				m.Ticker, m.EventTicker, m.SeriesTicker, m.Title, m.Subtitle,
				string(m.Status), m.Multivariate, int64(m.YesBid), int64(m.YesAsk),
				int64(m.LastPrice), m.Volume, m.Volume24h, m.OpenInterest, liquidity,
				timeText(m.CreatedTime), timeText(m.OpenTime), timeText(m.CloseTime),
				timeText(m.ExpirationTime), timeText(m.SettlementTime), m.Result, now)
			if err != nil {
				return fmt.Errorf("upsert market %s: %w", m.Ticker, err)
			}
		}
		return nil
	})
}

// GetMarket fetches one market by ticker.
func (s *Store) GetMarket(ctx context.Context, ticker string) (types.Market, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE ticker = ?`, ticker)
	m, err := scanMarket(row)
	if err == sql.ErrNoRows {
		return types.Market{}, fmt.Errorf("market %s: %w", ticker, ErrNotFound)
	}
	return m, err
}

// ListMarkets returns markets matching the query, ordered by ticker.
func (s *Store) ListMarkets(ctx context.Context, q MarketQuery) ([]types.Market, error) {
	var (
		where []string
		args  []any
	)
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.EventTicker != "" {
		where = append(where, "event_ticker = ?")
		args = append(args, q.EventTicker)
	}
	if q.SeriesTicker != "" {
		where = append(where, "series_ticker = ?")
		args = append(args, q.SeriesTicker)
	}
	if len(q.Tickers) > 0 {
		where = append(where, "ticker IN (?"+strings.Repeat(",?", len(q.Tickers)-1)+")")
		for _, t := range q.Tickers {
			args = append(args, t)
		}
	}
	if !q.CloseBefore.IsZero() {
		where = append(where, "close_time != '' AND close_time <= ?")
		args = append(args, timeText(q.CloseBefore))
	}
	if !q.CloseAfter.IsZero() {
		where = append(where, "close_time >= ?")
		args = append(args, timeText(q.CloseAfter))
	}

	query := `SELECT ` + marketColumns + ` FROM markets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ticker"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(r rowScanner) (types.Market, error) {
	var (
		m         types.Market
		status    string
		liquidity sql.NullInt64
	)
	var created, open, closeT, expiration, settlement string
	err := r.Scan(&m.Ticker, &m.EventTicker, &m.SeriesTicker, &m.Title, &m.Subtitle,
		&status, &m.Multivariate, &m.YesBid, &m.YesAsk, &m.LastPrice,
		&m.Volume, &m.Volume24h, &m.OpenInterest, &liquidity,
		&created, &open, &closeT, &expiration, &settlement, &m.Result)
	if err != nil {
		return types.Market{}, err
	}
	m.Status = types.MarketStatus(status)
	if liquidity.Valid {
		p := types.Price(liquidity.Int64)
		m.Liquidity = &p
	}
	m.CreatedTime = textTime(created)
	m.OpenTime = textTime(open)
	m.CloseTime = textTime(closeT)
	m.ExpirationTime = textTime(expiration)
	m.SettlementTime = textTime(settlement)
	return m, nil
}
