package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kalshi-edge/pkg/types"
)

// InsertFills appends fills keyed by their globally unique fill_id.
// Duplicates are skipped, so re-syncing an overlapping window is safe.
// Returns how many rows were new.
func (s *Store) InsertFills(ctx context.Context, fills []types.Fill) (int64, error) {
	if err := s.writable(); err != nil {
		return 0, err
	}
	var inserted int64
	err := s.inBatches(ctx, len(fills), func(tx *sql.Tx, from, to int) error {
		for _, f := range fills[from:to] {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO fills
					(fill_id, order_id, ticker, side, action, count, price, fees, trade_ts)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				f.FillID, f.OrderID, f.Ticker, string(f.Side), string(f.Action),
				f.Count, int64(f.Price), int64(f.Fees), timeText(f.TradeTS))
			if err != nil {
				return fmt.Errorf("insert fill %s: %w", f.FillID, err)
			}
			n, _ := res.RowsAffected()
			inserted += n
		}
		return nil
	})
	return inserted, err
}

const fillColumns = `fill_id, order_id, ticker, side, action, count, price, fees, trade_ts`

// ListFills returns fills in processing order: trade time ascending, ties
// broken by fill_id. Empty ticker means all markets.
func (s *Store) ListFills(ctx context.Context, ticker string) ([]types.Fill, error) {
	query := `SELECT ` + fillColumns + ` FROM fills`
	var args []any
	if ticker != "" {
		query += ` WHERE ticker = ?`
		args = append(args, ticker)
	}
	query += ` ORDER BY trade_ts, fill_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// LatestFillTime returns the most recent trade timestamp on record, the
// natural lower bound for an incremental fill sync. ErrNotFound when no
// fills exist yet.
func (s *Store) LatestFillTime(ctx context.Context) (time.Time, error) {
	var ts sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(trade_ts) FROM fills`).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid || ts.String == "" {
		return time.Time{}, ErrNotFound
	}
	return textTime(ts.String), nil
}

func scanFill(r rowScanner) (types.Fill, error) {
	var (
		f            types.Fill
		side, action string
		ts           string
	)
	err := r.Scan(&f.FillID, &f.OrderID, &f.Ticker, &side, &action,
		&f.Count, &f.Price, &f.Fees, &ts)
	if err != nil {
		return types.Fill{}, err
	}
	f.Side = types.Side(side)
	f.Action = types.Action(action)
	f.TradeTS = textTime(ts)
	return f, nil
}
