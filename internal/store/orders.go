package store

import (
	"context"
	"database/sql"
	"fmt"

	"kalshi-edge/pkg/types"
)

// UpsertOrders mirrors the exchange's view of the account's orders,
// replacing rows by order_id so status transitions overwrite cleanly.
func (s *Store) UpsertOrders(ctx context.Context, orders []types.Order) error {
	if err := s.writable(); err != nil {
		return err
	}
	return s.inBatches(ctx, len(orders), func(tx *sql.Tx, from, to int) error {
		for _, o := range orders[from:to] {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO orders
					(order_id, ticker, side, action, status, count, remaining_count, price, created_ts, expiration_ts)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (order_id) DO UPDATE SET
					status = excluded.status,
					remaining_count = excluded.remaining_count,
					expiration_ts = excluded.expiration_ts`,
				o.OrderID, o.Ticker, string(o.Side), string(o.Action), o.Status,
				o.Count, o.RemainingCount, int64(o.Price),
				timeText(o.CreatedTS), timeText(o.ExpirationTS))
			if err != nil {
				return fmt.Errorf("upsert order %s: %w", o.OrderID, err)
			}
		}
		return nil
	})
}

// ListOrders returns orders, optionally filtered by status, newest first.
func (s *Store) ListOrders(ctx context.Context, status string) ([]types.Order, error) {
	query := `SELECT order_id, ticker, side, action, status, count, remaining_count, price, created_ts, expiration_ts FROM orders`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_ts DESC, order_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Order
	for rows.Next() {
		var (
			o               types.Order
			side, action    string
			created, expiry string
		)
		if err := rows.Scan(&o.OrderID, &o.Ticker, &side, &action, &o.Status,
			&o.Count, &o.RemainingCount, &o.Price, &created, &expiry); err != nil {
			return nil, err
		}
		o.Side = types.Side(side)
		o.Action = types.Action(action)
		o.CreatedTS = textTime(created)
		o.ExpirationTS = textTime(expiry)
		out = append(out, o)
	}
	return out, rows.Err()
}

// SyncCursor reads the persisted pagination cursor for one sync stage.
// Returns "" when the stage has never run or finished cleanly.
func (s *Store) SyncCursor(ctx context.Context, key string) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor FROM sync_state WHERE key = ?`, key).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return cursor, err
}

// SetSyncCursor persists the resume point for one sync stage. An empty
// cursor marks the stage as fully caught up.
func (s *Store) SetSyncCursor(ctx context.Context, key, cursor string) error {
	if err := s.writable(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, cursor, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			cursor = excluded.cursor,
			updated_at = excluded.updated_at`,
		key, cursor, timeText(nowUTC()))
	return err
}
