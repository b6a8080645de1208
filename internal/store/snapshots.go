package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kalshi-edge/pkg/types"
)

// InsertSnapshots appends price observations. The (ticker, snapshot_ts)
// unique key makes re-ingestion idempotent; duplicates are silently
// skipped. Returns how many rows were actually inserted.
func (s *Store) InsertSnapshots(ctx context.Context, snaps []types.PriceSnapshot) (int64, error) {
	if err := s.writable(); err != nil {
		return 0, err
	}
	var inserted int64
	err := s.inBatches(ctx, len(snaps), func(tx *sql.Tx, from, to int) error {
		for _, sn := range snaps[from:to] {
			var liquidity any
			if sn.Liquidity != nil {
				liquidity = int64(*sn.Liquidity)
			}
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO price_snapshots
					(ticker, snapshot_ts, yes_bid, yes_ask, volume, open_interest, liquidity)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				sn.Ticker, timeText(sn.SnapshotTS), int64(sn.YesBid), int64(sn.YesAsk),
				sn.Volume, sn.OpenInterest, liquidity)
			if err != nil {
				return fmt.Errorf("insert snapshot %s@%s: %w", sn.Ticker, timeText(sn.SnapshotTS), err)
			}
			n, _ := res.RowsAffected()
			inserted += n
		}
		return nil
	})
	return inserted, err
}

const snapshotColumns = `ticker, snapshot_ts, yes_bid, yes_ask, volume, open_interest, liquidity`

// LatestSnapshot returns the most recent observation for a ticker.
func (s *Store) LatestSnapshot(ctx context.Context, ticker string) (types.PriceSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM price_snapshots
		WHERE ticker = ? ORDER BY snapshot_ts DESC, id DESC LIMIT 1`, ticker)
	sn, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return types.PriceSnapshot{}, fmt.Errorf("snapshot for %s: %w", ticker, ErrNotFound)
	}
	return sn, err
}

// LatestSnapshotBefore returns the most recent observation at or before
// the cutoff. The movers scan uses this to find a baseline at least one
// period old.
func (s *Store) LatestSnapshotBefore(ctx context.Context, ticker string, cutoff time.Time) (types.PriceSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM price_snapshots
		WHERE ticker = ? AND snapshot_ts <= ?
		ORDER BY snapshot_ts DESC, id DESC LIMIT 1`, ticker, timeText(cutoff))
	sn, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return types.PriceSnapshot{}, fmt.Errorf("snapshot for %s before %s: %w",
			ticker, timeText(cutoff), ErrNotFound)
	}
	return sn, err
}

// SnapshotsInRange returns observations in [from, to], oldest first. Equal
// timestamps keep insertion order.
func (s *Store) SnapshotsInRange(ctx context.Context, ticker string, from, to time.Time) ([]types.PriceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM price_snapshots
		WHERE ticker = ? AND snapshot_ts >= ? AND snapshot_ts <= ?
		ORDER BY snapshot_ts, id`, ticker, timeText(from), timeText(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.PriceSnapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func scanSnapshot(r rowScanner) (types.PriceSnapshot, error) {
	var (
		sn        types.PriceSnapshot
		ts        string
		liquidity sql.NullInt64
	)
	err := r.Scan(&sn.Ticker, &ts, &sn.YesBid, &sn.YesAsk, &sn.Volume,
		&sn.OpenInterest, &liquidity)
	if err != nil {
		return types.PriceSnapshot{}, err
	}
	sn.SnapshotTS = textTime(ts)
	if liquidity.Valid {
		p := types.Price(liquidity.Int64)
		sn.Liquidity = &p
	}
	return sn, nil
}
