package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"kalshi-edge/pkg/types"
)

// UpsertEvents writes a batch of events, replacing rows by ticker.
func (s *Store) UpsertEvents(ctx context.Context, events []types.Event) error {
	if err := s.writable(); err != nil {
		return err
	}
	return s.inBatches(ctx, len(events), func(tx *sql.Tx, from, to int) error {
		for _, e := range events[from:to] {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO events (ticker, series_ticker, title, sub_title, category, multivariate, strike_date)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (ticker) DO UPDATE SET
					series_ticker = excluded.series_ticker,
					title = excluded.title,
					sub_title = excluded.sub_title,
					category = excluded.category,
					multivariate = excluded.multivariate,
					strike_date = excluded.strike_date`,
				e.Ticker, e.SeriesTicker, e.Title, e.SubTitle, e.Category,
				e.Multivariate, timeText(e.StrikeDate))
			if err != nil {
				return fmt.Errorf("upsert event %s: %w", e.Ticker, err)
			}
		}
		return nil
	})
}

// GetEvent fetches one event by ticker.
func (s *Store) GetEvent(ctx context.Context, ticker string) (types.Event, error) {
	var (
		e      types.Event
		strike string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ticker, series_ticker, title, sub_title, category, multivariate, strike_date
		FROM events WHERE ticker = ?`, ticker).
		Scan(&e.Ticker, &e.SeriesTicker, &e.Title, &e.SubTitle, &e.Category,
			&e.Multivariate, &strike)
	if err == sql.ErrNoRows {
		return types.Event{}, fmt.Errorf("event %s: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return types.Event{}, err
	}
	e.StrikeDate = textTime(strike)
	return e, nil
}

// ListEvents returns all events, optionally restricted to one series.
func (s *Store) ListEvents(ctx context.Context, seriesTicker string) ([]types.Event, error) {
	query := `SELECT ticker, series_ticker, title, sub_title, category, multivariate, strike_date FROM events`
	var args []any
	if seriesTicker != "" {
		query += ` WHERE series_ticker = ?`
		args = append(args, seriesTicker)
	}
	query += ` ORDER BY ticker`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var (
			e      types.Event
			strike string
		)
		if err := rows.Scan(&e.Ticker, &e.SeriesTicker, &e.Title, &e.SubTitle,
			&e.Category, &e.Multivariate, &strike); err != nil {
			return nil, err
		}
		e.StrikeDate = textTime(strike)
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertSeries writes one series row. Settlement sources are stored as a
// JSON array.
func (s *Store) UpsertSeries(ctx context.Context, sr types.Series) error {
	if err := s.writable(); err != nil {
		return err
	}
	sources, err := json.Marshal(sr.SettlementSources)
	if err != nil {
		return fmt.Errorf("marshal settlement sources: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO series (ticker, title, category, frequency, settlement_sources)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ticker) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			frequency = excluded.frequency,
			settlement_sources = excluded.settlement_sources`,
		sr.Ticker, sr.Title, sr.Category, sr.Frequency, string(sources))
	return err
}

// GetSeries fetches one series by ticker.
func (s *Store) GetSeries(ctx context.Context, ticker string) (types.Series, error) {
	var (
		sr      types.Series
		sources string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ticker, title, category, frequency, settlement_sources
		FROM series WHERE ticker = ?`, ticker).
		Scan(&sr.Ticker, &sr.Title, &sr.Category, &sr.Frequency, &sources)
	if err == sql.ErrNoRows {
		return types.Series{}, fmt.Errorf("series %s: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return types.Series{}, err
	}
	if sources != "" {
		if err := json.Unmarshal([]byte(sources), &sr.SettlementSources); err != nil {
			return types.Series{}, fmt.Errorf("series %s sources: %w", ticker, err)
		}
	}
	return sr, nil
}
