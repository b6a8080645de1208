package store

import (
	"context"
	"database/sql"
	"fmt"

	"kalshi-edge/pkg/types"
)

// UpsertSettlements writes terminal market records. A settlement is
// immutable on the exchange side, so replaying one is a no-op rewrite of
// identical values.
func (s *Store) UpsertSettlements(ctx context.Context, settlements []types.Settlement) error {
	if err := s.writable(); err != nil {
		return err
	}
	return s.inBatches(ctx, len(settlements), func(tx *sql.Tx, from, to int) error {
		for _, st := range settlements[from:to] {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO settlements (ticker, value, settled_at, determined_at, revenue)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (ticker) DO UPDATE SET
					value = excluded.value,
					settled_at = excluded.settled_at,
					determined_at = excluded.determined_at,
					revenue = excluded.revenue`,
				st.Ticker, st.Value, timeText(st.SettledAt),
				timeText(st.ActualSettlementTS), int64(st.Revenue))
			if err != nil {
				return fmt.Errorf("upsert settlement %s: %w", st.Ticker, err)
			}
		}
		return nil
	})
}

// GetSettlement fetches the settlement for one market.
func (s *Store) GetSettlement(ctx context.Context, ticker string) (types.Settlement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ticker, value, settled_at, determined_at, revenue
		FROM settlements WHERE ticker = ?`, ticker)
	st, err := scanSettlement(row)
	if err == sql.ErrNoRows {
		return types.Settlement{}, fmt.Errorf("settlement %s: %w", ticker, ErrNotFound)
	}
	return st, err
}

// ListSettlements returns all settlements ordered by settle time.
func (s *Store) ListSettlements(ctx context.Context) ([]types.Settlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, value, settled_at, determined_at, revenue
		FROM settlements ORDER BY settled_at, ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanSettlement(r rowScanner) (types.Settlement, error) {
	var (
		st                  types.Settlement
		settled, determined string
	)
	err := r.Scan(&st.Ticker, &st.Value, &settled, &determined, &st.Revenue)
	if err != nil {
		return types.Settlement{}, err
	}
	st.SettledAt = textTime(settled)
	st.ActualSettlementTS = textTime(determined)
	return st, nil
}
