package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kalshi-edge/pkg/types"
)

// InsertNews appends headlines. Returns assigned IDs in input order.
func (s *Store) InsertNews(ctx context.Context, items []types.NewsItem) error {
	if err := s.writable(); err != nil {
		return err
	}
	return s.inBatches(ctx, len(items), func(tx *sql.Tx, from, to int) error {
		for _, it := range items[from:to] {
			fetched := it.FetchedAt
			if fetched.IsZero() {
				fetched = nowUTC()
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO news_items (ticker, title, url, source, published_at, fetched_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				it.Ticker, it.Title, it.URL, it.Source,
				timeText(it.PublishedAt), timeText(fetched))
			if err != nil {
				return fmt.Errorf("insert news %q: %w", it.Title, err)
			}
		}
		return nil
	})
}

// ListNews returns headlines for a ticker, newest first.
func (s *Store) ListNews(ctx context.Context, ticker string, limit int) ([]types.NewsItem, error) {
	query := `SELECT id, ticker, title, url, source, published_at, fetched_at
		FROM news_items WHERE ticker = ? ORDER BY published_at DESC, id DESC`
	args := []any{ticker}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.NewsItem
	for rows.Next() {
		var (
			it                 types.NewsItem
			published, fetched string
		)
		if err := rows.Scan(&it.ID, &it.Ticker, &it.Title, &it.URL, &it.Source,
			&published, &fetched); err != nil {
			return nil, err
		}
		it.PublishedAt = textTime(published)
		it.FetchedAt = textTime(fetched)
		out = append(out, it)
	}
	return out, rows.Err()
}

// InsertSentiment records one sentiment observation. Re-inserting the
// same (ticker, scored_at) overwrites, so a recomputed score wins.
func (s *Store) InsertSentiment(ctx context.Context, sc types.SentimentScore) error {
	if err := s.writable(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sentiment_scores (ticker, scored_at, score, sample_size)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (ticker, scored_at) DO UPDATE SET
			score = excluded.score,
			sample_size = excluded.sample_size`,
		sc.Ticker, timeText(sc.ScoredAt), sc.Score, sc.SampleSize)
	return err
}

// LatestSentiment returns the most recent score for a ticker.
func (s *Store) LatestSentiment(ctx context.Context, ticker string) (types.SentimentScore, error) {
	var (
		sc     types.SentimentScore
		scored string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ticker, scored_at, score, sample_size FROM sentiment_scores
		WHERE ticker = ? ORDER BY scored_at DESC LIMIT 1`, ticker).
		Scan(&sc.Ticker, &scored, &sc.Score, &sc.SampleSize)
	if err == sql.ErrNoRows {
		return types.SentimentScore{}, fmt.Errorf("sentiment for %s: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return types.SentimentScore{}, err
	}
	sc.ScoredAt = textTime(scored)
	return sc, nil
}

// PruneReport is what Prune would (or did) delete.
type PruneReport struct {
	Cutoff    time.Time
	DryRun    bool
	Snapshots int64
	News      int64
	Sentiment int64
}

// Prune deletes price snapshots, news, and sentiment older than the
// cutoff. With dryRun (the default posture for the CLI) nothing is
// deleted; the report carries the would-delete counts.
func (s *Store) Prune(ctx context.Context, cutoff time.Time, dryRun bool) (PruneReport, error) {
	report := PruneReport{Cutoff: cutoff.UTC(), DryRun: dryRun}
	cut := timeText(cutoff)

	if dryRun {
		counts := []struct {
			query string
			dest  *int64
		}{
			{`SELECT COUNT(*) FROM price_snapshots WHERE snapshot_ts < ?`, &report.Snapshots},
			{`SELECT COUNT(*) FROM news_items WHERE published_at < ?`, &report.News},
			{`SELECT COUNT(*) FROM sentiment_scores WHERE scored_at < ?`, &report.Sentiment},
		}
		for _, c := range counts {
			if err := s.db.QueryRowContext(ctx, c.query, cut).Scan(c.dest); err != nil {
				return report, err
			}
		}
		s.logger.Info("prune dry run", "cutoff", cut,
			"snapshots", report.Snapshots, "news", report.News, "sentiment", report.Sentiment)
		return report, nil
	}

	if err := s.writable(); err != nil {
		return report, err
	}
	deletes := []struct {
		query string
		dest  *int64
	}{
		{`DELETE FROM price_snapshots WHERE snapshot_ts < ?`, &report.Snapshots},
		{`DELETE FROM news_items WHERE published_at < ?`, &report.News},
		{`DELETE FROM sentiment_scores WHERE scored_at < ?`, &report.Sentiment},
	}
	for _, d := range deletes {
		res, err := s.db.ExecContext(ctx, d.query, cut)
		if err != nil {
			return report, err
		}
		*d.dest, _ = res.RowsAffected()
	}
	s.logger.Info("pruned", "cutoff", cut,
		"snapshots", report.Snapshots, "news", report.News, "sentiment", report.Sentiment)
	return report, nil
}

// Reclaim compacts the database file after a prune.
func (s *Store) Reclaim(ctx context.Context) error {
	if err := s.writable(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	s.logger.Info("store compacted")
	return nil
}
